// Package jobmgr runs detached background jobs with cancellation and
// in-memory tracking of what is still running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(msg string) {
//	    log.Println("JOB:", msg)
//	})
//
//	_ = jm.StartAfter("delete:123", 30*time.Second, func(ctx context.Context) error {
//	    return deleteMessage(ctx, "123")
//	})
//
//	// on shutdown
//	jm.StopAll()
//
// Callers never wait for a job. Jobs are removed automatically on completion.
package jobmgr

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Job represents a running unit of work.
type Job struct {
	Name    string
	Started time.Time
	Cancel  context.CancelFunc
	id      uint64
}

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:autorestart
//	error:delete:123:not found
//	done:delete:123
type StatusReporter func(string)

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	nextID   uint64
	wg       sync.WaitGroup
	Reporter StatusReporter
}

// NewManager creates a new Manager.
// The reporter callback may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// StartAsync runs a job in its own goroutine and returns immediately.
// If a job with the same name is already running, an error is returned.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("job '%s' is already running", name)
	}
	m.nextID++
	job := &Job{Name: name, Started: time.Now(), Cancel: cancel, id: m.nextID}
	m.jobs[name] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()

		m.report("running:" + name)

		if err := runner(ctx); err != nil {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}

		m.mu.Lock()
		if cur, ok := m.jobs[name]; ok && cur.id == job.id {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// StartAfter runs runner once delay has elapsed. Stopping the job before
// that cancels it without running.
func (m *Manager) StartAfter(name string, delay time.Duration, runner func(ctx context.Context) error) error {
	return m.StartAsync(name, func(ctx context.Context) error {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		return runner(ctx)
	})
}

// Stop cancels a running job by name.
// If the job is not running, an error is returned.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}

	job.Cancel()
	delete(m.jobs, name)
	return nil
}

// StopAll cancels every job and waits for their goroutines to return.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, job := range m.jobs {
		job.Cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary of active jobs.
// Example:
//
//	"Running jobs: autorestart, delete:123"
//
// If none are running: "No jobs are running."
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

// report delivers lifecycle messages to the reporter if present.
func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
