// Package presence derives the single bot status shown across all guilds
// from the current player states.
package presence

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/keshon/djwillex/internal/music/player"
)

const (
	// MaxStatus bounds the whole status, glyph included.
	MaxStatus  = 128
	PauseGlyph = "❚❚ "
)

// Text is the status for the given players: empty with nothing active, the
// title of the only active player, or a guild count.
func Text(snaps []player.Snapshot) string {
	var active []player.Snapshot
	for _, s := range snaps {
		if s.Active() {
			active = append(active, s)
		}
	}

	switch len(active) {
	case 0:
		return ""
	case 1:
		s := active[0]
		text := ""
		if s.Entry != nil {
			text = s.Entry.Title
		}
		if s.State == player.Paused {
			text = PauseGlyph + text
		}
		return truncate(text, MaxStatus)
	default:
		return fmt.Sprintf("music on %d guilds", len(active))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Publisher sets the bot's status; an empty text clears it.
type Publisher interface {
	UpdateStatus(ctx context.Context, text string) error
}

// Aggregator republishes the status whenever it changes.
type Aggregator struct {
	pub    Publisher
	source func() []player.Snapshot

	mu        sync.Mutex
	last      string
	published bool
}

func New(pub Publisher, source func() []player.Snapshot) *Aggregator {
	return &Aggregator{pub: pub, source: source}
}

// Refresh recomputes the status from every player and publishes it if it
// differs from the last one published.
func (a *Aggregator) Refresh(ctx context.Context) error {
	text := Text(a.source())

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.published && text == a.last {
		return nil
	}
	if err := a.pub.UpdateStatus(ctx, text); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	a.last, a.published = text, true
	return nil
}

// Current returns the last published status.
func (a *Aggregator) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *Aggregator) Listener() player.Listener {
	return func(ctx context.Context, ev player.Event) {
		switch ev.Kind {
		case player.EventPlay, player.EventPause, player.EventResume, player.EventStop:
		default:
			return
		}
		if err := a.Refresh(ctx); err != nil {
			log.Printf("[WARN] [Presence] %v", err)
		}
	}
}
