package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeGateway answers join requests through its AckHub and hands out
// fakeStreams. Behaviour is switched through its fields.
type fakeGateway struct {
	*AckHub
	self string

	mu      sync.Mutex
	updates []StateUpdate
	events  []string
	opens   int
	streams []*fakeStream

	silent      bool                  // never acknowledge
	streamErr   func(open int) error // nil means every open succeeds
	streamDelay time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{AckHub: NewAckHub(), self: "bot"}
}

func (g *fakeGateway) SelfID() string { return g.self }

func (g *fakeGateway) PushStateUpdate(ctx context.Context, u StateUpdate) error {
	g.mu.Lock()
	g.updates = append(g.updates, u)
	n := len(g.updates)
	silent := g.silent
	if u.ChannelID != "" {
		g.events = append(g.events, "join:"+u.GuildID)
	}
	g.mu.Unlock()

	if u.ChannelID == "" || silent {
		return nil
	}
	g.Deliver(Ack{Kind: AckSession, GuildID: u.GuildID, UserID: g.self, ChannelID: u.ChannelID, SessionID: fmt.Sprintf("sess-%d", n)})
	g.Deliver(Ack{Kind: AckServer, GuildID: u.GuildID, Token: "tok", Endpoint: fmt.Sprintf("endpoint-%d", n)})
	return nil
}

func (g *fakeGateway) OpenStream(ctx context.Context, h Handshake) (Stream, error) {
	cur := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		peak := g.maxActive.Load()
		if cur <= peak || g.maxActive.CompareAndSwap(peak, cur) {
			break
		}
	}

	g.mu.Lock()
	delay := g.streamDelay
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	g.mu.Lock()
	g.opens++
	open := g.opens
	fail := g.streamErr
	g.events = append(g.events, "open:"+h.GuildID)
	g.mu.Unlock()

	if fail != nil {
		if err := fail(open); err != nil {
			return nil, err
		}
	}
	st := &fakeStream{guild: h.GuildID}
	g.mu.Lock()
	g.streams = append(g.streams, st)
	g.mu.Unlock()
	return st, nil
}

func (g *fakeGateway) lastStream() *fakeStream {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.streams) == 0 {
		return nil
	}
	return g.streams[len(g.streams)-1]
}

func (g *fakeGateway) muteUpdates() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, u := range g.updates {
		if u.ChannelID == "" && u.SelfMute {
			n++
		}
	}
	return n
}

func (g *fakeGateway) eventLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.events...)
}

type fakeStream struct {
	guild  string
	closed atomic.Int32
	err    error
}

func (s *fakeStream) Close() error {
	s.closed.Add(1)
	return s.err
}

var errUDP = errors.New("udp discovery timed out")

func fastConfig() Config {
	return Config{
		Attempts:    3,
		AckTimeout:  50 * time.Millisecond,
		RetryDelay:  time.Millisecond,
		SettleDelay: time.Millisecond,
	}
}

// fakePlayer records what Reconnect did to it.
type fakePlayer struct {
	mu      sync.Mutex
	playing bool
	paused  bool
	calls   []string
	conn    *Connection
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "pause")
	p.playing, p.paused = false, true
	return nil
}

func (p *fakePlayer) Resume(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "resume")
	p.playing, p.paused = true, false
	return nil
}

func (p *fakePlayer) Rebind(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "rebind")
	p.conn = c
}
