package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/djwillex/datastore"
	"github.com/keshon/djwillex/internal/autoplaylist"
	"github.com/keshon/djwillex/internal/config"
	"github.com/keshon/djwillex/internal/core"
	"github.com/keshon/djwillex/internal/dependencies/random"
	"github.com/keshon/djwillex/internal/discordgate"
	"github.com/keshon/djwillex/internal/messaging"
	"github.com/keshon/djwillex/internal/music/extractor"
	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/music/playlist"
	"github.com/keshon/djwillex/internal/music/stream"
	"github.com/keshon/djwillex/internal/presence"
	"github.com/keshon/djwillex/internal/statusapi"
	"github.com/keshon/djwillex/internal/voice"
)

// app is one fully wired bot lifetime.
type app struct {
	cfg      *config.Config
	session  *discordgo.Session
	gateway  *discordgate.Gateway
	dir      *discordgate.Directory
	voice    *voice.Registry
	players  *player.Registry
	presence *presence.Aggregator
	runtime  *core.Runtime
	bot      *core.Bot
	status   *task
}

// task is a background goroutine that close waits for.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func goTask(ctx context.Context, fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}

// stop cancels the task and blocks until it has returned.
func (t *task) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.DiscordToken == "" {
		return nil, errMissing("DISCORD_TOKEN")
	}
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgate.Intents

	ext := extractor.New(cfg.ExtractorProxy)
	if p := ext.Proxy(); p != "" {
		log.Printf("[INFO] Extractor proxy: %s", p)
	}

	a := &app{
		cfg:     cfg,
		session: dg,
		gateway: discordgate.NewGateway(dg),
		dir:     discordgate.NewDirectory(dg.State),
		runtime: core.NewRuntime(),
	}
	a.voice = voice.NewRegistry(a.gateway, cfg.Voice())
	a.players = player.NewRegistry(
		stream.Factory(ext),
		func() *playlist.Playlist { return playlist.New(ext) },
		cfg.DefaultVolume,
	)
	a.presence = presence.New(discordgate.NewPresence(dg), a.players.Snapshots)

	cont, err := loadAutoplaylist(cfg, ext)
	if err != nil {
		return nil, err
	}

	blStore, err := datastore.Open(cfg.BlacklistFile)
	if err != nil {
		return nil, fmt.Errorf("open blacklist: %w", err)
	}
	bl, err := core.LoadBlacklist(blStore)
	if err != nil {
		return nil, err
	}

	a.bot = core.New(core.Deps{
		Config:       cfg,
		Voice:        a.voice,
		Players:      a.players,
		Guard:        messaging.NewGuard(discordgate.NewChat(dg), a.runtime.Jobs()),
		Presence:     a.presence,
		Autoplaylist: cont,
		Directory:    a.dir,
		Blacklist:    bl,
		Runtime:      a.runtime,
		Random:       random.New(),
	})
	discordgate.Attach(ctx, dg, a.gateway, a.dir, a.bot, cfg.AutojoinChannels)
	return a, nil
}

func loadAutoplaylist(cfg *config.Config, prober autoplaylist.Prober) (*autoplaylist.Continuation, error) {
	if !cfg.AutoPlaylist {
		return nil, nil
	}
	store, err := datastore.Open(cfg.AutoPlaylistFile)
	if err != nil {
		return nil, fmt.Errorf("open autoplaylist: %w", err)
	}
	pool, err := autoplaylist.LoadPool(store)
	if err != nil {
		return nil, err
	}
	if pool.Len() == 0 {
		log.Println("[WARN] Autoplaylist is empty, disabling")
	}
	log.Printf("[INFO] Loaded autoplaylist with %d entries", pool.Len())
	return autoplaylist.New(pool, prober, random.New(), pool.Len() > 0), nil
}

func (a *app) start(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	if err := a.runtime.ScheduleDailyRestart(a.cfg.RestartHour); err != nil {
		log.Printf("[WARN] Scheduling daily restart: %v", err)
	}
	if a.cfg.StatusAddr != "" {
		a.status = serveStatus(ctx, statusapi.New(&statusSource{a}), a.cfg.StatusAddr)
	}
	if err := a.presence.Refresh(ctx); err != nil {
		log.Printf("[WARN] Clearing presence: %v", err)
	}
	return nil
}

// serveStatus runs srv until the returned task is stopped. Stopping waits
// for the listener to be released so a restart can bind the same address.
func serveStatus(ctx context.Context, srv *statusapi.Server, addr string) *task {
	return goTask(ctx, func(ctx context.Context) {
		if err := srv.Run(ctx, addr); err != nil {
			log.Printf("[ERR] Status API: %v", err)
		}
	})
}

func (a *app) close() {
	a.status.stop()
	a.runtime.Close()
	if err := a.session.Close(); err != nil {
		log.Printf("[WARN] Closing session: %v", err)
	}
}

// statusSource exposes the app to the status API.
type statusSource struct{ a *app }

func (s *statusSource) Snapshots() []player.Snapshot { return s.a.players.Snapshots() }
func (s *statusSource) Guilds() []string { return s.a.voice.Guilds() }
func (s *statusSource) Uptime() time.Duration { return s.a.runtime.Uptime() }
func (s *statusSource) Presence() string { return s.a.presence.Current() }
