// Package autoplaylist keeps music going when a queue runs dry by drawing
// random URLs from a persisted pool, pruning the ones that no longer resolve.
package autoplaylist

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/keshon/djwillex/internal/dependencies/random"
	"github.com/keshon/djwillex/internal/metrics"
	"github.com/keshon/djwillex/internal/music/extractor"
	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/music/playlist"
	"github.com/keshon/djwillex/pkg/parallel"
)

const checkWorkers = 4

var (
	ErrDisabled  = errors.New("autoplaylist is disabled")
	ErrExhausted = errors.New("autoplaylist has no playable entries")
	errPlaylist  = errors.New("playlists are not supported in the autoplaylist")
)

// Prober resolves URLs without downloading them.
type Prober interface {
	Probe(ctx context.Context, url string) (*extractor.MediaInfo, error)
}

type Continuation struct {
	pool    *Pool
	prober  Prober
	rnd     random.Random
	enabled atomic.Bool
}

func New(pool *Pool, prober Prober, rnd random.Random, enabled bool) *Continuation {
	c := &Continuation{pool: pool, prober: prober, rnd: rnd}
	c.enabled.Store(enabled && pool != nil)
	return c
}

func (c *Continuation) Enabled() bool { return c.enabled.Load() }

// Disable turns the feature off for the rest of the process.
func (c *Continuation) Disable() { c.enabled.Store(false) }

func (c *Continuation) Pool() *Pool { return c.pool }

// Continue queues one playable pool entry on p and starts it.
func (c *Continuation) Continue(ctx context.Context, p *player.Player) error {
	for c.Enabled() {
		url, ok := c.pool.Pick(c.rnd)
		if !ok {
			log.Printf("[WARN] [Autoplaylist] No playable entries left, disabling")
			c.Disable()
			return ErrExhausted
		}

		info, err := c.validate(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[WARN] [Autoplaylist] Removing unplayable %s: %v", url, err)
			if err := c.pool.Remove(url); err != nil {
				log.Printf("[ERR] [Autoplaylist] %v", err)
			}
			metrics.AutoplaylistPruned.Inc()
			continue
		}

		entry := playlist.Entry{URL: info.URL, Title: info.Title, Duration: info.Duration}
		if entry.URL == "" {
			entry.URL = url
		}
		p.Playlist().Append(entry)
		log.Printf("[INFO] [Autoplaylist] %s: queued %q", p.GuildID(), entry.Title)
		return p.Play(ctx)
	}
	return ErrDisabled
}

func (c *Continuation) validate(ctx context.Context, url string) (*extractor.MediaInfo, error) {
	info, err := c.prober.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if info.Playlist {
		return nil, errPlaylist
	}
	return info, nil
}

// Listener continues a player whose queue ran dry.
func (c *Continuation) Listener() player.Listener {
	return func(ctx context.Context, ev player.Event) {
		if ev.Kind != player.EventFinished || !c.Enabled() {
			return
		}
		if ev.Player.Playlist().Len() > 0 {
			return
		}
		err := c.Continue(ctx, ev.Player)
		if err != nil && !errors.Is(err, ErrExhausted) && !errors.Is(err, ErrDisabled) {
			log.Printf("[ERR] [Autoplaylist] %s: %v", ev.Player.GuildID(), err)
		}
	}
}

// Check probes every pool entry, a few at a time, and returns the ones
// that failed in pool order. With prune set the failures are removed from
// the pool.
func (c *Continuation) Check(ctx context.Context, prune bool) ([]string, error) {
	urls := c.pool.URLs()
	failed := make([]bool, len(urls))

	err := parallel.ForEach(ctx, urls, checkWorkers, func(ctx context.Context, i int, url string) error {
		if _, err := c.validate(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed[i] = true
		}
		return nil
	})

	var bad []string
	for i, url := range urls {
		if failed[i] {
			bad = append(bad, url)
		}
	}
	if err != nil {
		return bad, err
	}

	if prune {
		for _, url := range bad {
			if err := c.pool.Remove(url); err != nil {
				return bad, err
			}
			metrics.AutoplaylistPruned.Inc()
		}
	}
	return bad, nil
}
