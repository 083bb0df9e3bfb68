package player

import (
	"context"

	"github.com/keshon/djwillex/internal/messaging"
	"github.com/keshon/djwillex/internal/music/playlist"
)

// EventKind is a player transition.
type EventKind int

const (
	EventPlay EventKind = iota
	EventPause
	EventResume
	EventStop
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventStop:
		return "stop"
	case EventFinished:
		return "finished"
	}
	return "unknown"
}

// Event describes a transition that just happened.
type Event struct {
	Kind   EventKind
	Player *Player
	Entry  playlist.Entry // entry started, paused, resumed, stopped or finished
	Err    error          // EventFinished only: why playback ended early

	// StaleVotes are the messages of skip votes cleared by this transition.
	StaleVotes []messaging.Ref
}

// Listener reacts to a transition. Listeners run on the goroutine that
// caused the transition, one after another, and must not block for long.
// They may call back into the player.
type Listener func(ctx context.Context, ev Event)
