package core

import (
	"sync"

	"github.com/keshon/djwillex/internal/messaging"
)

// SessionData is per-guild state that lives as long as the process.
type SessionData struct {
	LastNowPlaying *messaging.Ref
	AutoPaused     bool
}

type sessions struct {
	mu   sync.Mutex
	data map[string]*SessionData
}

func newSessions() *sessions {
	return &sessions{data: make(map[string]*SessionData)}
}

// with runs fn on the guild's session data, creating it on first use.
func (s *sessions) with(guildID string, fn func(sd *SessionData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, ok := s.data[guildID]
	if !ok {
		sd = &SessionData{}
		s.data[guildID] = sd
	}
	fn(sd)
}

func (s *sessions) get(guildID string) SessionData {
	var out SessionData
	s.with(guildID, func(sd *SessionData) { out = *sd })
	return out
}
