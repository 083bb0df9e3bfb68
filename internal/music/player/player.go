// Package player is the per-guild playback state machine. Each Player is
// bound to exactly one voice connection and drives an Output; transitions
// fan out to listeners synchronously, in registration order.
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/keshon/djwillex/internal/music/playlist"
	"github.com/keshon/djwillex/internal/skipvote"
	"github.com/keshon/djwillex/internal/voice"
)

type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrNotPlaying  = errors.New("nothing is playing")
	ErrNotPaused   = errors.New("player is not paused")
	ErrVolumeRange = errors.New("volume must be in (0, 1]")
	ErrKilled      = errors.New("player has been shut down")
)

// Output renders entries into the voice connection.
//
// Start begins playback and returns once audio is flowing. finished must be
// called exactly once when the entry ends on its own or fails mid-way, from
// the output's own goroutine and never from inside Start. After Stop the
// output may still call finished; the player ignores it.
type Output interface {
	Start(ctx context.Context, entry playlist.Entry, volume float64, finished func(error)) error
	Pause()
	Resume()
	Stop()
	Rebind(conn *voice.Connection)
	SetVolume(v float64)
	Position() time.Duration
}

// Snapshot is a consistent copy of a player's visible state.
type Snapshot struct {
	GuildID  string
	State    State
	Entry    *playlist.Entry
	Volume   float64
	Progress time.Duration
	Queued   int
}

// Active reports whether the player is playing or paused.
func (s Snapshot) Active() bool { return s.State != Stopped }

type Player struct {
	guildID  string
	playlist *playlist.Playlist
	skips    *skipvote.State
	out      Output
	emit     func(ctx context.Context, ev Event)

	// opMu serialises transitions, mu guards the fields below.
	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	current *playlist.Entry
	conn    *voice.Connection
	volume  float64
	gen     uint64
	killed  bool
}

func (p *Player) GuildID() string              { return p.guildID }
func (p *Player) Playlist() *playlist.Playlist { return p.playlist }
func (p *Player) SkipState() *skipvote.State   { return p.skips }

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) IsPlaying() bool { return p.State() == Playing }
func (p *Player) IsPaused() bool  { return p.State() == Paused }
func (p *Player) IsStopped() bool { return p.State() == Stopped }

// Current returns the entry being played or paused.
func (p *Player) Current() (playlist.Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return playlist.Entry{}, false
	}
	return *p.current, true
}

func (p *Player) Connection() *voice.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Progress is the playback position in the current entry.
func (p *Player) Progress() time.Duration {
	p.mu.Lock()
	has := p.current != nil
	p.mu.Unlock()
	if !has {
		return 0
	}
	return p.out.Position()
}

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	s := Snapshot{
		GuildID: p.guildID,
		State:   p.state,
		Volume:  p.volume,
		Queued:  p.playlist.Len(),
	}
	if p.current != nil {
		e := *p.current
		s.Entry = &e
	}
	p.mu.Unlock()

	if s.Entry != nil {
		s.Progress = p.out.Position()
	}
	return s
}

// Play starts the next queued entry. A paused player is resumed instead and
// a playing one is left alone. Entries whose output fails to start are
// dropped and the next one is tried.
func (p *Player) Play(ctx context.Context) error {
	p.opMu.Lock()

	p.mu.Lock()
	state, killed := p.state, p.killed
	volume := p.volume
	p.mu.Unlock()

	switch {
	case killed:
		p.opMu.Unlock()
		return ErrKilled
	case state == Paused:
		p.opMu.Unlock()
		return p.Resume(ctx)
	case state == Playing:
		p.opMu.Unlock()
		return nil
	}

	var entry playlist.Entry
	for {
		next, ok := p.playlist.Next()
		if !ok {
			p.opMu.Unlock()
			return ErrQueueEmpty
		}

		p.mu.Lock()
		p.gen++
		gen := p.gen
		p.mu.Unlock()

		err := p.out.Start(ctx, next, volume, func(err error) {
			p.outputDone(gen, err)
		})
		if err != nil {
			log.Printf("[WARN] [Player] %s: skipping %q, output failed to start: %v", p.guildID, next.Title, err)
			if ctx.Err() != nil {
				p.opMu.Unlock()
				return ctx.Err()
			}
			continue
		}
		entry = next
		break
	}

	p.mu.Lock()
	p.state = Playing
	p.current = &entry
	p.mu.Unlock()
	stale := p.skips.Reset()

	p.opMu.Unlock()

	log.Printf("[INFO] [Player] %s: playing %q", p.guildID, entry.Title)
	p.emit(ctx, Event{Kind: EventPlay, Player: p, Entry: entry, StaleVotes: stale})
	return nil
}

func (p *Player) Pause(ctx context.Context) error {
	p.opMu.Lock()
	p.mu.Lock()
	if p.state != Playing {
		p.mu.Unlock()
		p.opMu.Unlock()
		return ErrNotPlaying
	}
	p.state = Paused
	entry := *p.current
	p.mu.Unlock()
	p.out.Pause()
	p.opMu.Unlock()

	p.emit(ctx, Event{Kind: EventPause, Player: p, Entry: entry})
	return nil
}

func (p *Player) Resume(ctx context.Context) error {
	p.opMu.Lock()
	p.mu.Lock()
	if p.state != Paused {
		p.mu.Unlock()
		p.opMu.Unlock()
		return ErrNotPaused
	}
	p.state = Playing
	entry := *p.current
	p.mu.Unlock()
	p.out.Resume()
	stale := p.skips.Reset()
	p.opMu.Unlock()

	p.emit(ctx, Event{Kind: EventResume, Player: p, Entry: entry, StaleVotes: stale})
	return nil
}

// Stop halts the current entry without advancing. The queue is kept.
func (p *Player) Stop(ctx context.Context) error {
	p.opMu.Lock()
	entry, _ := p.halt()
	p.opMu.Unlock()

	p.emit(ctx, Event{Kind: EventStop, Player: p, Entry: entry})
	return nil
}

// Skip ends the current entry early. It resolves through the same path as
// an entry finishing on its own, so the next entry starts before Skip
// returns.
func (p *Player) Skip(ctx context.Context) error {
	p.opMu.Lock()
	entry, ok := p.halt()
	p.opMu.Unlock()
	if !ok {
		return ErrNotPlaying
	}

	p.finished(ctx, entry, nil)
	return nil
}

// Kill stops the player for good and drops its queue.
func (p *Player) Kill(ctx context.Context) {
	p.opMu.Lock()
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	entry, wasActive := p.halt()
	p.playlist.Clear()
	p.opMu.Unlock()

	if wasActive {
		p.emit(ctx, Event{Kind: EventStop, Player: p, Entry: entry})
	}
}

// halt stops the output and moves to Stopped. Caller holds opMu.
func (p *Player) halt() (playlist.Entry, bool) {
	p.mu.Lock()
	p.gen++
	var entry playlist.Entry
	wasActive := p.current != nil
	if wasActive {
		entry = *p.current
	}
	p.state = Stopped
	p.current = nil
	p.mu.Unlock()

	p.out.Stop()
	return entry, wasActive
}

// outputDone is the output's finished callback for generation gen.
func (p *Player) outputDone(gen uint64, err error) {
	p.opMu.Lock()
	p.mu.Lock()
	if gen != p.gen || p.killed || p.current == nil {
		p.mu.Unlock()
		p.opMu.Unlock()
		return
	}
	entry := *p.current
	p.state = Stopped
	p.current = nil
	p.mu.Unlock()
	p.opMu.Unlock()

	if err != nil {
		log.Printf("[ERR] [Player] %s: playback of %q failed: %v", p.guildID, entry.Title, err)
	}
	p.finished(context.Background(), entry, err)
}

// finished fires EventFinished, then advances the queue if no listener
// already did. A player left with nothing to play reports EventStop.
func (p *Player) finished(ctx context.Context, entry playlist.Entry, cause error) {
	p.emit(ctx, Event{Kind: EventFinished, Player: p, Entry: entry, Err: cause})

	p.mu.Lock()
	stopped, killed := p.state == Stopped, p.killed
	p.mu.Unlock()
	if !stopped || killed {
		return
	}

	err := p.Play(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrQueueEmpty):
		p.emit(ctx, Event{Kind: EventStop, Player: p, Entry: entry})
	default:
		log.Printf("[ERR] [Player] %s: advancing queue: %v", p.guildID, err)
	}
}

// Rebind moves the output onto a new connection.
func (p *Player) Rebind(conn *voice.Connection) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	p.out.Rebind(conn)
}

func (p *Player) SetVolume(v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%w: got %.2f", ErrVolumeRange, v)
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	p.out.SetVolume(v)
	return nil
}
