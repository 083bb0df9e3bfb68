// Package skipvote tracks skip votes for the current entry of a player and
// computes the quorum needed to force a skip.
package skipvote

import (
	"math"
	"sync"

	"github.com/keshon/djwillex/internal/messaging"
)

// State is the vote set of one player. It is emptied every time the player
// starts a new entry.
type State struct {
	mu       sync.Mutex
	skippers map[string]struct{}
	messages map[messaging.Ref]struct{}
}

func New() *State {
	return &State{
		skippers: make(map[string]struct{}),
		messages: make(map[messaging.Ref]struct{}),
	}
}

// Add records userID as a skipper and returns the number of distinct
// skippers. ref, when set, is remembered so the vote messages can be cleaned
// up later.
func (s *State) Add(userID string, ref messaging.Ref) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skippers[userID] = struct{}{}
	if !ref.Zero() {
		s.messages[ref] = struct{}{}
	}
	return len(s.skippers)
}

func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.skippers)
}

func (s *State) Has(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.skippers[userID]
	return ok
}

// Reset clears the votes and returns the messages that were attached to them.
func (s *State) Reset() []messaging.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]messaging.Ref, 0, len(s.messages))
	for r := range s.messages {
		refs = append(refs, r)
	}
	clear(s.skippers)
	clear(s.messages)
	return refs
}

// Member is a voice channel occupant as seen by the vote.
type Member struct {
	UserID   string
	Deaf     bool
	SelfDeaf bool
}

// Eligible counts members allowed to vote: not deafened by either side and
// neither the owner nor the bot itself.
func Eligible(members []Member, ownerID, selfID string) int {
	n := 0
	for _, m := range members {
		if m.Deaf || m.SelfDeaf || m.UserID == ownerID || m.UserID == selfID {
			continue
		}
		n++
	}
	return n
}

// Required is min(fixed, ceil(eligible*ratio)).
func Required(fixed int, ratio float64, eligible int) int {
	byRatio := int(math.Ceil(float64(eligible) * ratio))
	return min(fixed, byRatio)
}

// Remaining is how many more votes are needed; zero or less means skip.
func Remaining(fixed int, ratio float64, eligible, count int) int {
	return Required(fixed, ratio, eligible) - count
}
