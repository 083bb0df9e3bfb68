package player

import (
	"cmp"
	"context"
	"log"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/keshon/djwillex/internal/metrics"
	"github.com/keshon/djwillex/internal/music/playlist"
	"github.com/keshon/djwillex/internal/skipvote"
	"github.com/keshon/djwillex/internal/voice"
)

// OutputFactory creates the output for a new player.
type OutputFactory func(guildID string, conn *voice.Connection) Output

// Registry holds at most one Player per guild and the listeners shared by
// all of them.
type Registry struct {
	newOutput   OutputFactory
	newPlaylist func() *playlist.Playlist
	volume      float64

	mu      sync.RWMutex
	players map[string]*Player

	lmu       sync.RWMutex
	listeners []Listener
}

func NewRegistry(newOutput OutputFactory, newPlaylist func() *playlist.Playlist, defaultVolume float64) *Registry {
	if defaultVolume <= 0 || defaultVolume > 1 {
		defaultVolume = 0.15
	}
	return &Registry{
		newOutput:   newOutput,
		newPlaylist: newPlaylist,
		volume:      defaultVolume,
		players:     make(map[string]*Player),
	}
}

// Listen appends l to the listener list. Order of registration is order
// of invocation.
func (r *Registry) Listen(l Listener) {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	r.listeners = append(r.listeners, l)
}

// GetOrCreate returns the guild's player, creating it bound to conn.
func (r *Registry) GetOrCreate(guildID string, conn *voice.Connection) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[guildID]; ok {
		return p
	}

	p := &Player{
		guildID:  guildID,
		playlist: r.newPlaylist(),
		skips:    skipvote.New(),
		out:      r.newOutput(guildID, conn),
		emit:     r.emit,
		conn:     conn,
		volume:   r.volume,
	}
	r.players[guildID] = p
	return p
}

func (r *Registry) Get(guildID string) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.players[guildID]
}

// Remove kills and forgets the guild's player. It reports whether there was one.
func (r *Registry) Remove(ctx context.Context, guildID string) bool {
	r.mu.Lock()
	p, ok := r.players[guildID]
	delete(r.players, guildID)
	r.mu.Unlock()

	if ok {
		p.Kill(ctx)
	}
	return ok
}

// Snapshots returns every player's snapshot ordered by guild.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(players))
	for _, p := range players {
		out = append(out, p.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return cmp.Compare(a.GuildID, b.GuildID)
	})
	return out
}

func (r *Registry) emit(ctx context.Context, ev Event) {
	metrics.PlayerTransitions.WithLabelValues(ev.Kind.String()).Inc()

	r.lmu.RLock()
	ls := slices.Clone(r.listeners)
	r.lmu.RUnlock()

	for _, l := range ls {
		callListener(ctx, l, ev)
	}

	active := 0
	for _, s := range r.Snapshots() {
		if s.Active() {
			active++
		}
	}
	metrics.ActivePlayers.Set(float64(active))
}

// callListener isolates a panicking listener so the rest still run.
func callListener(ctx context.Context, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERR] [Player] panic in %s listener: %v\n%s", ev.Kind, r, debug.Stack())
		}
	}()
	l(ctx, ev)
}
