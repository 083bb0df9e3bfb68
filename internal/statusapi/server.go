// Package statusapi serves a small read-only HTTP view of the bot:
// health, per-guild playback status and prometheus metrics.
package statusapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keshon/djwillex/internal/music/player"
)

// Source is what the API reports on.
type Source interface {
	Snapshots() []player.Snapshot
	Guilds() []string // guilds with a voice connection
	Uptime() time.Duration
	Presence() string
}

type Server struct {
	src    Source
	router *gin.Engine
}

func New(src Source) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{src: src, router: gin.New()}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/status", s.status)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type guildStatus struct {
	GuildID  string  `json:"guild_id"`
	State    string  `json:"state"`
	Title    string  `json:"title,omitempty"`
	URL      string  `json:"url,omitempty"`
	Progress float64 `json:"progress_seconds"`
	Volume   float64 `json:"volume"`
	Queued   int     `json:"queued"`
}

func (s *Server) status(c *gin.Context) {
	snaps := s.src.Snapshots()
	guilds := make([]guildStatus, 0, len(snaps))
	for _, snap := range snaps {
		gs := guildStatus{
			GuildID:  snap.GuildID,
			State:    snap.State.String(),
			Progress: snap.Progress.Seconds(),
			Volume:   snap.Volume,
			Queued:   snap.Queued,
		}
		if snap.Entry != nil {
			gs.Title = snap.Entry.Title
			gs.URL = snap.Entry.URL
		}
		guilds = append(guilds, gs)
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int64(s.src.Uptime().Seconds()),
		"presence":       s.src.Presence(),
		"connected":      s.src.Guilds(),
		"players":        guilds,
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Status API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
