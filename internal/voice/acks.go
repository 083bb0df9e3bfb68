package voice

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// AckKind names one of the two handshake acknowledgements.
type AckKind int

const (
	// AckSession is the voice state echo carrying our session id.
	AckSession AckKind = iota
	// AckServer is the voice server assignment carrying token and endpoint.
	AckServer
)

func (k AckKind) String() string {
	switch k {
	case AckSession:
		return "session"
	case AckServer:
		return "server"
	}
	return "unknown"
}

// Ack is an acknowledgement pushed by the gateway. Fields unused by a kind
// are left empty.
type Ack struct {
	Kind      AckKind
	GuildID   string
	UserID    string
	ChannelID string
	SessionID string
	Token     string
	Endpoint  string
}

// SessionAck converts a voice state event into a session acknowledgement.
func SessionAck(v *discordgo.VoiceStateUpdate) Ack {
	return Ack{
		Kind:      AckSession,
		GuildID:   v.GuildID,
		UserID:    v.UserID,
		ChannelID: v.ChannelID,
		SessionID: v.SessionID,
	}
}

func ServerAck(v *discordgo.VoiceServerUpdate) Ack {
	return Ack{
		Kind:     AckServer,
		GuildID:  v.GuildID,
		Token:    v.Token,
		Endpoint: v.Endpoint,
	}
}

// Waiter is a one-shot subscription to an acknowledgement.
type Waiter struct {
	id    uint64
	kind  AckKind
	match func(Ack) bool
	ch    chan Ack
	hub   *AckHub
}

// Wait blocks until a matching ack arrives or ctx ends.
func (w *Waiter) Wait(ctx context.Context) (Ack, error) {
	select {
	case a := <-w.ch:
		return a, nil
	case <-ctx.Done():
		w.Cancel()
		return Ack{}, ctx.Err()
	}
}

// Cancel drops the subscription. Safe to call more than once.
func (w *Waiter) Cancel() {
	w.hub.remove(w.id)
}

// AckHub fans gateway acknowledgements out to registered waiters.
type AckHub struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]*Waiter
}

func NewAckHub() *AckHub {
	return &AckHub{waiters: make(map[uint64]*Waiter)}
}

// Await registers a waiter for the next ack of kind accepted by match.
func (h *AckHub) Await(kind AckKind, match func(Ack) bool) *Waiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	w := &Waiter{
		id:    h.nextID,
		kind:  kind,
		match: match,
		ch:    make(chan Ack, 1),
		hub:   h,
	}
	h.waiters[w.id] = w
	return w
}

// Deliver hands a to every waiter it matches and returns how many there were.
// Matched waiters are consumed.
func (h *AckHub) Deliver(a Ack) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for id, w := range h.waiters {
		if w.kind != a.Kind || (w.match != nil && !w.match(a)) {
			continue
		}
		select {
		case w.ch <- a:
		default:
		}
		delete(h.waiters, id)
		n++
	}
	return n
}

// Pending returns the number of registered waiters.
func (h *AckHub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}

func (h *AckHub) remove(id uint64) {
	h.mu.Lock()
	delete(h.waiters, id)
	h.mu.Unlock()
}
