// Package discordgate adapts a discordgo session to the contracts the rest
// of the bot is written against: the voice gateway, the chat client, the
// presence publisher and the member directory.
package discordgate

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/keshon/djwillex/internal/voice"
)

// Gateway issues voice state updates over the session websocket and routes
// the acknowledgements back through its AckHub.
type Gateway struct {
	*voice.AckHub

	s       *discordgo.Session
	limiter *rate.Limiter
}

func NewGateway(s *discordgo.Session) *Gateway {
	return &Gateway{
		AckHub: voice.NewAckHub(),
		s:      s,
		// the gateway allows 120 sends a minute, shared with heartbeats and presence
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func (g *Gateway) SelfID() string {
	if g.s.State == nil || g.s.State.User == nil {
		return ""
	}
	return g.s.State.User.ID
}

// PushStateUpdate sends an opcode 4 voice state update. An empty channel
// leaves voice.
func (g *Gateway) PushStateUpdate(ctx context.Context, u voice.StateUpdate) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := g.s.ChannelVoiceJoinManual(u.GuildID, u.ChannelID, u.SelfMute, u.SelfDeaf); err != nil {
		return fmt.Errorf("voice state update for %s: %w", u.GuildID, err)
	}
	return nil
}

// OpenStream opens the voice websocket and UDP link for an acknowledged
// handshake.
//
// discordgo keeps a VoiceConnection's session id, token and endpoint
// unexported, so one cannot be built from h. ChannelVoiceJoin sends its own
// opcode 4 with the same channel and flags and waits for the session and
// server updates that follow; Discord treats the repeated update as a no-op
// for membership. The acks in h still tell a silent gateway apart from a
// blocked UDP path.
func (g *Gateway) OpenStream(ctx context.Context, h voice.Handshake) (voice.Stream, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan result, 1)
	go func() {
		vc, err := g.s.ChannelVoiceJoin(h.GuildID, h.ChannelID, false, true)
		done <- result{vc, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &Stream{vc: r.vc}, nil
	case <-ctx.Done():
		// the join may still finish; close whatever it produces
		go func() {
			if r := <-done; r.vc != nil {
				r.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// Stream is an open voice connection. It satisfies stream.OpusSink.
type Stream struct {
	vc *discordgo.VoiceConnection
}

func (st *Stream) Close() error {
	return st.vc.Disconnect()
}

func (st *Stream) Speaking(on bool) error {
	return st.vc.Speaking(on)
}

func (st *Stream) SendOpus(ctx context.Context, frame []byte) error {
	select {
	case st.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
