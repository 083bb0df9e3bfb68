package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/keshon/djwillex/internal/metrics"
	"github.com/keshon/djwillex/pkg/retrylimit"
)

// Rebindable is the part of a player that Reconnect drives.
type Rebindable interface {
	IsPlaying() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Rebind(conn *Connection)
}

// Registry keeps at most one Connection per guild.
//
// connectMu is process wide: one handshake, retries and their sleeps
// included, is in flight at a time across all guilds. moveMu covers a
// single state push.
type Registry struct {
	est     *Establisher
	gw      Gateway
	settle  time.Duration
	limiter *retrylimit.AdaptiveLimiter

	connectMu sync.Mutex
	moveMu    sync.Mutex

	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry(gw Gateway, cfg Config) *Registry {
	est := NewEstablisher(gw, cfg)
	return &Registry{
		est:     est,
		gw:      gw,
		settle:  est.cfg.SettleDelay,
		limiter: retrylimit.NewAdaptiveLimiter(2, 0.5, 5, 0.5, 0.5),
		conns:   make(map[string]*Connection),
	}
}

// Get returns the guild's connection or nil.
func (r *Registry) Get(guildID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[guildID]
}

// Guilds returns the ids of connected guilds, sorted.
func (r *Registry) Guilds() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// GetOrCreate returns the existing connection or establishes one on channelID.
func (r *Registry) GetOrCreate(ctx context.Context, guildID, channelID string) (*Connection, error) {
	if c := r.Get(guildID); c != nil {
		return c, nil
	}

	r.connectMu.Lock()
	defer r.connectMu.Unlock()

	// another caller may have finished while we queued
	if c := r.Get(guildID); c != nil {
		return c, nil
	}

	conn, err := r.est.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.conns[guildID] = conn
	r.mu.Unlock()
	return conn, nil
}

// Move rebinds the connection to another channel without a new handshake.
func (r *Registry) Move(ctx context.Context, guildID, channelID string) error {
	return r.push(ctx, guildID, func(u *StateUpdate) { u.ChannelID = channelID })
}

func (r *Registry) SetMute(ctx context.Context, guildID string, mute bool) error {
	return r.push(ctx, guildID, func(u *StateUpdate) { u.SelfMute = mute })
}

func (r *Registry) SetDeaf(ctx context.Context, guildID string, deaf bool) error {
	return r.push(ctx, guildID, func(u *StateUpdate) { u.SelfDeaf = deaf })
}

func (r *Registry) push(ctx context.Context, guildID string, change func(*StateUpdate)) error {
	r.moveMu.Lock()
	defer r.moveMu.Unlock()

	conn := r.Get(guildID)
	if conn == nil {
		return ErrNotConnected
	}

	u := conn.stateUpdate()
	change(&u)

	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := r.gw.PushStateUpdate(ctx, u); err != nil {
		r.limiter.Throttled()
		return fmt.Errorf("voice state push for %s: %w", guildID, err)
	}
	r.limiter.Success()
	conn.apply(u)
	return nil
}

// SetChannel records a channel change the transport reported on its own,
// e.g. the bot being dragged to another channel. Unknown guilds are ignored.
func (r *Registry) SetChannel(guildID, channelID string) {
	if conn := r.Get(guildID); conn != nil && channelID != "" {
		conn.setChannel(channelID)
	}
}

// Disconnect tears down the guild's stream and forgets the connection.
// Disconnecting a guild without a connection is a no-op.
func (r *Registry) Disconnect(guildID string) error {
	r.mu.Lock()
	conn, ok := r.conns[guildID]
	delete(r.conns, guildID)
	r.mu.Unlock()

	if !ok || conn.Stream == nil {
		return nil
	}
	if err := conn.Stream.Close(); err != nil {
		return fmt.Errorf("close voice stream for %s: %w", guildID, err)
	}
	log.Printf("[INFO] [Voice] Disconnected from %s", guildID)
	return nil
}

// DisconnectAll disconnects every guild and joins the errors.
func (r *Registry) DisconnectAll() error {
	var errs []error
	for _, id := range r.Guilds() {
		if err := r.Disconnect(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reconnect replaces the guild's session with a fresh one on the same
// channel and moves p onto it. p is paused for the duration only if it was
// playing; a player paused beforehand stays paused.
//
// On failure the stale connection stays registered so the caller can drop
// the player first and then call Disconnect. If the guild is disconnected
// while the handshake runs, the new session is closed and ErrNotConnected
// returned.
func (r *Registry) Reconnect(ctx context.Context, guildID string, p Rebindable) (*Connection, error) {
	old := r.Get(guildID)
	if old == nil {
		return nil, ErrNotConnected
	}

	wasPlaying := p != nil && p.IsPlaying()
	if wasPlaying {
		if err := p.Pause(ctx); err != nil {
			log.Printf("[WARN] [Voice] Pause before reconnect in %s failed: %v", guildID, err)
		}
	}

	if old.Stream != nil {
		if err := old.Stream.Close(); err != nil {
			log.Printf("[WARN] [Voice] Closing old session in %s failed: %v", guildID, err)
		}
	}

	if err := sleepCtx(ctx, r.settle); err != nil {
		return nil, err
	}

	r.connectMu.Lock()
	conn, err := r.est.Connect(ctx, guildID, old.ChannelID())
	r.connectMu.Unlock()
	if err != nil {
		metrics.VoiceReconnects.WithLabelValues("failed").Inc()
		return nil, err
	}

	// A Disconnect during the handshake wins over the reconnect.
	r.mu.Lock()
	current := r.conns[guildID] == old
	if current {
		r.conns[guildID] = conn
	}
	r.mu.Unlock()
	if !current {
		if conn.Stream != nil {
			if err := conn.Stream.Close(); err != nil {
				log.Printf("[WARN] [Voice] Closing abandoned session in %s failed: %v", guildID, err)
			}
		}
		metrics.VoiceReconnects.WithLabelValues("abandoned").Inc()
		log.Printf("[INFO] [Voice] %s was disconnected during reconnect, dropping new session", guildID)
		return nil, ErrNotConnected
	}

	if p != nil {
		p.Rebind(conn)
		if wasPlaying {
			if err := p.Resume(ctx); err != nil {
				log.Printf("[WARN] [Voice] Resume after reconnect in %s failed: %v", guildID, err)
			}
		}
	}

	metrics.VoiceReconnects.WithLabelValues("ok").Inc()
	log.Printf("[INFO] [Voice] Reconnected %s to %s", guildID, conn.ChannelID())
	return conn, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
