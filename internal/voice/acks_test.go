package voice

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckHub_DeliversToMatchingWaiter(t *testing.T) {
	hub := NewAckHub()
	w := hub.Await(AckSession, func(a Ack) bool { return a.GuildID == "g1" })

	assert.Equal(t, 0, hub.Deliver(Ack{Kind: AckSession, GuildID: "g2"}))
	assert.Equal(t, 0, hub.Deliver(Ack{Kind: AckServer, GuildID: "g1"}))
	assert.Equal(t, 1, hub.Deliver(Ack{Kind: AckSession, GuildID: "g1", SessionID: "s"}))

	a, err := w.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s", a.SessionID)
	assert.Equal(t, 0, hub.Pending())
}

func TestAckHub_AckBeforeWaitIsKept(t *testing.T) {
	hub := NewAckHub()
	w := hub.Await(AckServer, nil)
	hub.Deliver(Ack{Kind: AckServer, Endpoint: "e"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e", a.Endpoint)
}

func TestWaiter_TimeoutCancels(t *testing.T) {
	hub := NewAckHub()
	w := hub.Await(AckSession, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := w.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, hub.Pending())

	w.Cancel()
}

func TestAcksFromEvents(t *testing.T) {
	s := SessionAck(&discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
		GuildID: "g1", UserID: "bot", ChannelID: "vc1", SessionID: "sess",
	}})
	assert.Equal(t, Ack{Kind: AckSession, GuildID: "g1", UserID: "bot", ChannelID: "vc1", SessionID: "sess"}, s)

	v := ServerAck(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "tok", Endpoint: "e.discord.media"})
	assert.Equal(t, Ack{Kind: AckServer, GuildID: "g1", Token: "tok", Endpoint: "e.discord.media"}, v)
}
