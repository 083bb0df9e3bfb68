package core

import (
	"context"
	"log"
	"time"

	"github.com/keshon/djwillex/pkg/jobmgr"
)

// Runtime carries process-level concerns: start time, detached jobs and
// the control signal channel read by the run loop.
type Runtime struct {
	StartedAt time.Time

	jobs    *jobmgr.Manager
	signals chan Signal
}

func NewRuntime() *Runtime {
	return &Runtime{
		StartedAt: time.Now(),
		jobs: jobmgr.NewManager(func(msg string) {
			log.Printf("[DEBUG] [Jobs] %s", msg)
		}),
		signals: make(chan Signal, 1),
	}
}

func (r *Runtime) Jobs() *jobmgr.Manager { return r.jobs }

func (r *Runtime) Uptime() time.Duration { return time.Since(r.StartedAt) }

func (r *Runtime) Signals() <-chan Signal { return r.signals }

// Raise queues sig for the run loop. Only the first pending signal is kept.
func (r *Runtime) Raise(sig Signal) bool {
	select {
	case r.signals <- sig:
		return true
	default:
		return false
	}
}

// ScheduleDailyRestart raises Restart at the next occurrence of hour
// (local time). A negative hour disables it.
func (r *Runtime) ScheduleDailyRestart(hour int) error {
	if hour < 0 {
		return nil
	}
	at := nextRestart(time.Now(), hour)
	log.Printf("[INFO] Daily restart scheduled for %s", at.Format(time.RFC1123))
	return r.jobs.StartAfter("autorestart", time.Until(at), func(ctx context.Context) error {
		r.Raise(Restart)
		return nil
	})
}

func nextRestart(now time.Time, hour int) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// Close cancels every pending job.
func (r *Runtime) Close() {
	r.jobs.StopAll()
}
