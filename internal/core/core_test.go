package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keshon/djwillex/datastore"
	"github.com/keshon/djwillex/internal/autoplaylist"
	"github.com/keshon/djwillex/internal/config"
	"github.com/keshon/djwillex/internal/dependencies/mocks"
	"github.com/keshon/djwillex/internal/messaging"
	"github.com/keshon/djwillex/internal/music/extractor"
	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/music/playlist"
	"github.com/keshon/djwillex/internal/skipvote"
	"github.com/keshon/djwillex/internal/voice"
	"github.com/stretchr/testify/require"
)

const (
	testGuild = "g1"
	testText  = "text1"
	testVoice = "vc1"
	testOwner = "owner"
	testSelf  = "bot"
)

// gateway acknowledges every join at once unless silenced.
type gateway struct {
	*voice.AckHub
	silent atomic.Bool
	pushes atomic.Int32
}

func (g *gateway) SelfID() string { return testSelf }

func (g *gateway) PushStateUpdate(_ context.Context, u voice.StateUpdate) error {
	n := g.pushes.Add(1)
	if u.ChannelID == "" || g.silent.Load() {
		return nil
	}
	g.Deliver(voice.Ack{Kind: voice.AckSession, GuildID: u.GuildID, UserID: testSelf, ChannelID: u.ChannelID, SessionID: fmt.Sprintf("s%d", n)})
	g.Deliver(voice.Ack{Kind: voice.AckServer, GuildID: u.GuildID, Token: "tok", Endpoint: fmt.Sprintf("endpoint-%d", n)})
	return nil
}

func (g *gateway) OpenStream(context.Context, voice.Handshake) (voice.Stream, error) {
	return &stream{}, nil
}

type stream struct{ closed atomic.Bool }

func (s *stream) Close() error {
	s.closed.Store(true)
	return nil
}

// output plays nothing; entries end when the test says so.
type output struct {
	mu        sync.Mutex
	started   []string
	finishers map[string]func(error)
	volume    float64
	conn      *voice.Connection
}

func (o *output) Start(_ context.Context, e playlist.Entry, v float64, finished func(error)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, e.URL)
	o.finishers[e.URL] = finished
	o.volume = v
	return nil
}

func (o *output) Pause()  {}
func (o *output) Resume() {}
func (o *output) Stop()   {}

func (o *output) Rebind(c *voice.Connection) {
	o.mu.Lock()
	o.conn = c
	o.mu.Unlock()
}

func (o *output) SetVolume(v float64) {
	o.mu.Lock()
	o.volume = v
	o.mu.Unlock()
}

func (o *output) Position() time.Duration { return 0 }

func (o *output) finish(url string) {
	o.mu.Lock()
	f := o.finishers[url]
	o.mu.Unlock()
	f(nil)
}

func (o *output) startedURLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.started)
}

type prober map[string]*extractor.MediaInfo

func (p prober) Probe(_ context.Context, url string) (*extractor.MediaInfo, error) {
	if info, ok := p[url]; ok {
		return info, nil
	}
	return nil, &extractor.ExtractionError{URL: url, Err: extractor.ErrUnsupportedURL}
}

// chat keeps messages per channel so "latest" is meaningful.
type chat struct {
	mu       sync.Mutex
	next     int
	channels map[string][]string // channel -> message ids, oldest first
	content  map[string]string
	edits    []string
	deleted  []string
}

func newChat() *chat {
	return &chat{channels: map[string][]string{}, content: map[string]string{}}
}

func (c *chat) Send(_ context.Context, channelID, content string) (messaging.Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := fmt.Sprintf("m%d", c.next)
	c.channels[channelID] = append(c.channels[channelID], id)
	c.content[id] = content
	return messaging.Ref{ChannelID: channelID, MessageID: id}, nil
}

func (c *chat) Edit(_ context.Context, ref messaging.Ref, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.content[ref.MessageID]; !ok {
		return messaging.ErrNotFound
	}
	c.content[ref.MessageID] = content
	c.edits = append(c.edits, ref.MessageID)
	return nil
}

func (c *chat) Delete(_ context.Context, ref messaging.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, ref.MessageID)
	if _, ok := c.content[ref.MessageID]; !ok {
		return messaging.ErrNotFound
	}
	delete(c.content, ref.MessageID)
	c.channels[ref.ChannelID] = slices.DeleteFunc(c.channels[ref.ChannelID], func(id string) bool { return id == ref.MessageID })
	return nil
}

func (c *chat) LatestMessageID(_ context.Context, channelID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.channels[channelID]
	if len(ids) == 0 {
		return "", errors.New("empty channel")
	}
	return ids[len(ids)-1], nil
}

func (c *chat) text(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content[id]
}

func (c *chat) deletedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.deleted)
}

func (c *chat) editedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.edits)
}

type directory struct {
	mu      sync.Mutex
	members map[string][]skipvote.Member
}

func (d *directory) SelfID() string { return testSelf }

func (d *directory) VoiceMembers(_, channelID string) []skipvote.Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.members[channelID])
}

func (d *directory) ChannelName(channelID string) string { return "#" + channelID }

func (d *directory) set(channelID string, ms ...skipvote.Member) {
	d.mu.Lock()
	d.members[channelID] = ms
	d.mu.Unlock()
}

type harness struct {
	bot  *Bot
	gw   *gateway
	out  *output
	chat *chat
	dir  *directory
	rnd  *mocks.MockRandom
}

var songs = prober{
	"https://y/a": {URL: "https://y/a", Title: "Song A", Duration: 3 * time.Minute},
	"https://y/b": {URL: "https://y/b", Title: "Song B", Duration: 2 * time.Minute},
	"https://y/c": {URL: "https://y/c", Title: "Song C", Duration: time.Minute},
	"https://y/list": {Playlist: true, Title: "Mix", Entries: []extractor.MediaInfo{
		{URL: "https://y/b", Title: "Song B", Duration: 2 * time.Minute},
		{URL: "https://y/c", Title: "Song C", Duration: time.Minute},
	}},
}

func newHarness(t *testing.T, env map[string]string) *harness {
	t.Helper()
	vars := map[string]string{
		"DISCORD_TOKEN":      "token",
		"OWNER_ID":           testOwner,
		"DELETE_MESSAGES":    "false",
		"AUTO_PLAYLIST":      "false",
		"VOICE_ACK_TIMEOUT":  "30ms",
		"VOICE_RETRY_DELAY":  "1ms",
		"VOICE_SETTLE_DELAY": "1ms",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.FromMap(vars)
	require.NoError(t, err)

	store, err := datastore.Open(filepath.Join(t.TempDir(), "blacklist.txt"))
	require.NoError(t, err)
	bl, err := LoadBlacklist(store)
	require.NoError(t, err)

	h := &harness{
		gw:   &gateway{AckHub: voice.NewAckHub()},
		out:  &output{finishers: map[string]func(error){}},
		chat: newChat(),
		dir:  &directory{members: map[string][]skipvote.Member{}},
		rnd:  mocks.NewMockRandom(),
	}
	var cont *autoplaylist.Continuation
	if cfg.AutoPlaylist {
		store, err := datastore.Open(filepath.Join(t.TempDir(), "autoplaylist.txt"))
		require.NoError(t, err)
		require.NoError(t, store.Save([]string{"https://y/c"}))
		pool, err := autoplaylist.LoadPool(store)
		require.NoError(t, err)
		cont = autoplaylist.New(pool, songs, h.rnd, true)
	}

	players := player.NewRegistry(
		func(string, *voice.Connection) player.Output { return h.out },
		func() *playlist.Playlist { return playlist.New(songs) },
		cfg.DefaultVolume,
	)
	h.bot = New(Deps{
		Config:       cfg,
		Voice:        voice.NewRegistry(h.gw, cfg.Voice()),
		Players:      players,
		Guard:        messaging.NewGuard(h.chat, nil),
		Autoplaylist: cont,
		Directory:    h.dir,
		Blacklist:    bl,
		Runtime:      NewRuntime(),
		Random:       h.rnd,
	})
	t.Cleanup(h.bot.Runtime.Close)
	return h
}

func caller(userID string) Caller {
	return Caller{
		UserID:         userID,
		UserName:       "name-" + userID,
		GuildID:        testGuild,
		ChannelID:      testText,
		MessageID:      "msg-" + userID,
		VoiceChannelID: testVoice,
	}
}

func (h *harness) run(t *testing.T, c Caller, name string, args ...string) *Response {
	t.Helper()
	resp, err := h.bot.Handle(context.Background(), c, name, args)
	require.NoError(t, err)
	return resp
}

// summon joins testVoice and queues urls as "req".
func (h *harness) summon(t *testing.T, urls ...string) *player.Player {
	t.Helper()
	h.run(t, caller("req"), "summon")
	for _, u := range urls {
		h.run(t, caller("req"), "play", u)
	}
	p := h.bot.Players.Get(testGuild)
	require.NotNil(t, p)
	return p
}
