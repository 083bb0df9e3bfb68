package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/keshon/djwillex/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlay_RequiresSummon(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.run(t, caller("u1"), "play", "https://y/a")
	require.NotNil(t, resp)
	assert.Contains(t, resp.Content, "!summon")
	assert.Contains(t, resp.Content, "```")
	assert.Equal(t, 30*time.Second, resp.DeleteAfter)
}

func TestPlay_PositionAndEstimate(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, caller("u1"), "summon")

	resp := h.run(t, caller("u1"), "play", "<https://y/a>")
	assert.Equal(t, "Enqueued **Song A** to be played. Position in queue: Up next!", resp.Content)

	resp = h.run(t, caller("u1"), "play", "https://y/b")
	assert.Equal(t, "Enqueued **Song B** to be played. Position in queue: 1 - estimated time until playing: 0:03:00", resp.Content)

	resp = h.run(t, caller("u1"), "play", "https://y/list")
	assert.Equal(t, "Enqueued **2 songs** to be played. Position in queue: 2 - estimated time until playing: 0:05:00", resp.Content)

	assert.Equal(t, []string{"https://y/a"}, h.out.startedURLs())
	assert.Equal(t, 3, h.bot.Players.Get(testGuild).Playlist().Len())
}

func TestPlay_ExtractionFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, caller("u1"), "summon")

	resp := h.run(t, caller("u1"), "play", "https://nope")
	require.NotNil(t, resp)
	assert.Contains(t, resp.Content, "Error extracting info")
}

func TestPlay_PerUserLimit(t *testing.T) {
	h := newHarness(t, map[string]string{"MAX_SONGS_PER_USER": "1"})
	h.run(t, caller("u1"), "summon")
	h.run(t, caller("u1"), "play", "https://y/a")
	h.run(t, caller("u1"), "play", "https://y/b")

	resp := h.run(t, caller("u1"), "play", "https://y/c")
	assert.Contains(t, resp.Content, "enqueued song limit (1)")

	resp = h.run(t, caller(testOwner), "play", "https://y/c")
	assert.Contains(t, resp.Content, "Enqueued **Song C**")
}

func TestVolume(t *testing.T) {
	h := newHarness(t, nil)
	p := h.summon(t)

	resp := h.run(t, caller("u1"), "volume")
	assert.Equal(t, "Current volume: `15%`", resp.Content)

	resp = h.run(t, caller("u1"), "volume", "+10")
	assert.Equal(t, "updated volume from 15 to 25", resp.Content)
	assert.InDelta(t, 0.25, p.Volume(), 1e-9)

	resp = h.run(t, caller("u1"), "volume", "60")
	assert.Equal(t, "updated volume from 25 to 60", resp.Content)

	resp = h.run(t, caller("u1"), "volume", "200")
	assert.Contains(t, resp.Content, "Unreasonable volume provided")
	resp = h.run(t, caller("u1"), "volume", "-60")
	assert.Contains(t, resp.Content, "Unreasonable volume change")
	assert.InDelta(t, 0.60, p.Volume(), 1e-9)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, nil)
	p := h.summon(t, "https://y/a")

	assert.Nil(t, h.run(t, caller("u1"), "pause"))
	assert.True(t, p.IsPaused())
	assert.Contains(t, h.run(t, caller("u1"), "pause").Content, "not playing")

	assert.Nil(t, h.run(t, caller("u1"), "resume"))
	assert.True(t, p.IsPlaying())
	assert.Contains(t, h.run(t, caller("u1"), "resume").Content, "not paused")
}

func TestQueueShuffleClear(t *testing.T) {
	h := newHarness(t, nil)
	p := h.summon(t, "https://y/a", "https://y/b", "https://y/c")

	resp := h.run(t, caller("u1"), "queue")
	assert.Equal(t, "Currently Playing: **Song A** added by **name-req** [0:00:00/0:03:00]\n"+
		"`1.` **Song B** added by **name-req**\n"+
		"`2.` **Song C** added by **name-req**", resp.Content)

	// zero draws swap each element with the head: [B C] -> [C B]
	h.run(t, caller("u1"), "shuffle")
	next, _ := p.Playlist().Peek()
	assert.Equal(t, "Song C", next.Title)

	h.run(t, caller("u1"), "clear")
	assert.Zero(t, p.Playlist().Len())

	resp = h.run(t, caller("u1"), "np")
	assert.Equal(t, "Now Playing: **Song A** added by **name-req** [0:00:00/0:03:00]", resp.Content)
}

func TestDisconnect_RemovesPlayerThenConnection(t *testing.T) {
	h := newHarness(t, nil)
	p := h.summon(t, "https://y/a")

	assert.Nil(t, h.run(t, caller("u1"), "disconnect"))
	assert.Nil(t, h.bot.Players.Get(testGuild))
	assert.Nil(t, h.bot.Voice.Get(testGuild))
	assert.True(t, p.IsStopped())
}

func TestOwnerOnlyCommands(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.run(t, caller("u1"), "restart")
	require.NotNil(t, resp)
	assert.Contains(t, resp.Content, "permission")

	resp, err := h.bot.Handle(context.Background(), caller(testOwner), "restart", nil)
	assert.ErrorIs(t, err, Restart)
	require.NotNil(t, resp)

	_, err = h.bot.Handle(context.Background(), caller(testOwner), "shutdown", nil)
	assert.ErrorIs(t, err, Terminate)
}

func TestDispatch_RaisesSignalAfterReply(t *testing.T) {
	h := newHarness(t, nil)
	c := caller(testOwner)

	require.NoError(t, h.bot.Dispatch(context.Background(), c, "!shutdown"))
	select {
	case sig := <-h.bot.Runtime.Signals():
		assert.Equal(t, Terminate, sig)
	default:
		t.Fatal("no signal raised")
	}
	id, err := h.chat.LatestMessageID(context.Background(), testText)
	require.NoError(t, err)
	assert.Equal(t, "Shutting down.", h.chat.text(id))
}

func TestDispatch_ReplyMentionsCaller(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.bot.Dispatch(context.Background(), caller("u1"), "!id"))
	require.NoError(t, h.bot.Dispatch(context.Background(), caller("u1"), "not a command"))

	id, err := h.chat.LatestMessageID(context.Background(), testText)
	require.NoError(t, err)
	assert.Equal(t, "<@u1>, your id is `u1`", h.chat.text(id))
}

func TestHandle_IgnoresBlacklistedAndUnbound(t *testing.T) {
	h := newHarness(t, map[string]string{"BOUND_CHANNELS": testText})

	resp := h.run(t, caller(testOwner), "blacklist", "+", "<@u1>", "u2")
	assert.Equal(t, "2 users have been added to the blacklist", resp.Content)

	assert.Nil(t, h.run(t, caller("u1"), "id"))
	assert.NotNil(t, h.run(t, caller("u3"), "id"))

	elsewhere := caller("u3")
	elsewhere.ChannelID = "text2"
	assert.Nil(t, h.run(t, elsewhere, "id"))

	resp = h.run(t, caller(testOwner), "blacklist", "-", "u1")
	assert.Equal(t, "1 users have been removed from the blacklist", resp.Content)
	assert.NotNil(t, h.run(t, caller("u1"), "id"))
}

func TestBlacklist_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bl.txt")
	store, err := datastore.Open(path)
	require.NoError(t, err)
	bl, err := LoadBlacklist(store)
	require.NoError(t, err)

	n, err := bl.Add("a", "b", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	store2, err := datastore.Open(path)
	require.NoError(t, err)
	again, err := LoadBlacklist(store2)
	require.NoError(t, err)
	assert.True(t, again.Has("b"))
	assert.Equal(t, []string{"a", "b"}, again.IDs())
}

func TestHelpListsCommandsOnce(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.run(t, caller("u1"), "help")
	assert.Contains(t, resp.Content, "`!skip`")
	assert.NotContains(t, resp.Content, "`!voteskip`")
	assert.Len(t, h.bot.Commands(), 17)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00:00", formatDuration(0))
	assert.Equal(t, "0:03:05", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2:00:01", formatDuration(2*time.Hour+time.Second))
}

func TestHandle_PanickingCommandIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.bot.cmds.register(&command{
		name: "boom",
		run: func(context.Context, *Invocation) (*Response, error) {
			var p *Caller
			return &Response{Content: p.UserID}, nil
		},
	})

	var (
		resp *Response
		err  error
	)
	require.NotPanics(t, func() {
		resp, err = h.bot.Handle(context.Background(), caller("u1"), "boom", nil)
	})
	assert.NoError(t, err)
	assert.Nil(t, resp)

	resp = h.run(t, caller("u1"), "id")
	require.NotNil(t, resp)
	assert.Contains(t, resp.Content, "u1")

	require.NotPanics(t, func() {
		assert.NoError(t, h.bot.Dispatch(context.Background(), caller("u1"), "!boom"))
	})
}
