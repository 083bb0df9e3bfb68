// Package voice owns per-guild voice connections: the two-part handshake
// with bounded retry, the process-wide connect and move locks, and the
// reconnect sequence that carries a bound player across a new session.
package voice

import (
	"context"
	"sync"
	"time"
)

// StateUpdate is the push-style voice state change sent to the gateway.
// An empty ChannelID leaves the current channel.
type StateUpdate struct {
	GuildID   string
	ChannelID string
	SelfMute  bool
	SelfDeaf  bool
}

// Handshake carries everything the two acknowledgements delivered and is
// what the transport needs to open the audio stream.
type Handshake struct {
	GuildID   string
	ChannelID string
	UserID    string
	SessionID string
	Token     string
	Endpoint  string
}

// Stream is a live audio transport session.
type Stream interface {
	Close() error
}

// Gateway is the contract the voice layer needs from the chat gateway.
// Await must be called before the request that triggers the ack so that
// a fast reply is never missed.
type Gateway interface {
	SelfID() string
	Await(kind AckKind, match func(Ack) bool) *Waiter
	PushStateUpdate(ctx context.Context, u StateUpdate) error
	OpenStream(ctx context.Context, h Handshake) (Stream, error)
}

// Connection is the established voice session of one guild.
type Connection struct {
	GuildID     string
	SessionID   string
	Endpoint    string
	Stream      Stream
	ConnectedAt time.Time

	mu        sync.RWMutex
	channelID string
	selfMute  bool
	selfDeaf  bool
}

func newConnection(h Handshake, s Stream) *Connection {
	return &Connection{
		GuildID:     h.GuildID,
		SessionID:   h.SessionID,
		Endpoint:    h.Endpoint,
		Stream:      s,
		ConnectedAt: time.Now(),
		channelID:   h.ChannelID,
		selfDeaf:    true,
	}
}

// ChannelID returns the voice channel the connection is bound to.
func (c *Connection) ChannelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

// Muted reports the self-mute and self-deaf flags last pushed.
func (c *Connection) Muted() (mute, deaf bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfMute, c.selfDeaf
}

// Uptime is the time since the handshake completed.
func (c *Connection) Uptime() time.Duration {
	return time.Since(c.ConnectedAt)
}

func (c *Connection) stateUpdate() StateUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return StateUpdate{
		GuildID:   c.GuildID,
		ChannelID: c.channelID,
		SelfMute:  c.selfMute,
		SelfDeaf:  c.selfDeaf,
	}
}

func (c *Connection) apply(u StateUpdate) {
	c.mu.Lock()
	c.channelID = u.ChannelID
	c.selfMute = u.SelfMute
	c.selfDeaf = u.SelfDeaf
	c.mu.Unlock()
}

func (c *Connection) setChannel(id string) {
	c.mu.Lock()
	c.channelID = id
	c.mu.Unlock()
}
