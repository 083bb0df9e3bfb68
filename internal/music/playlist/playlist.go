// Package playlist is the per-guild queue of entries waiting to be played.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/keshon/djwillex/internal/dependencies/random"
	"github.com/keshon/djwillex/internal/music/extractor"
)

var ErrPlaylistURL = errors.New("URL is a playlist, import it instead")

// Prober resolves URLs to media metadata.
type Prober interface {
	Probe(ctx context.Context, url string) (*extractor.MediaInfo, error)
}

// Meta is who asked for an entry and where.
type Meta struct {
	AuthorID   string
	AuthorName string
	ChannelID  string
}

type Entry struct {
	URL      string
	Title    string
	Duration time.Duration
	Meta     Meta
}

// Playlist keeps entries in insertion order. Positions are 1-based.
type Playlist struct {
	mu      sync.Mutex
	entries []Entry
	prober  Prober
}

func New(prober Prober) *Playlist {
	return &Playlist{prober: prober}
}

// AddEntry probes url and appends it.
func (p *Playlist) AddEntry(ctx context.Context, url string, meta Meta) (Entry, int, error) {
	info, err := p.prober.Probe(ctx, url)
	if err != nil {
		return Entry{}, 0, err
	}
	if info.Playlist {
		return Entry{}, 0, &extractor.ExtractionError{URL: url, Err: ErrPlaylistURL}
	}

	e := Entry{URL: info.URL, Title: info.Title, Duration: info.Duration, Meta: meta}
	if e.URL == "" {
		e.URL = url
	}
	return e, p.Append(e), nil
}

// Append adds e at the end and returns its position.
func (p *Playlist) Append(e Entry) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return len(p.entries)
}

// ImportFrom expands a playlist URL into entries. A plain video URL imports
// as a single entry. The returned position is that of the first added entry.
func (p *Playlist) ImportFrom(ctx context.Context, url string, meta Meta) ([]Entry, int, error) {
	info, err := p.prober.Probe(ctx, url)
	if err != nil {
		return nil, 0, err
	}

	items := info.Entries
	if !info.Playlist {
		items = []extractor.MediaInfo{*info}
	}

	added := make([]Entry, 0, len(items))
	bad := 0
	for _, it := range items {
		if it.URL == "" {
			bad++
			continue
		}
		added = append(added, Entry{URL: it.URL, Title: it.Title, Duration: it.Duration, Meta: meta})
	}
	if bad > 0 {
		log.Printf("[WARN] [Playlist] Skipped %d unusable item(s) from %s", bad, url)
	}
	if len(added) == 0 {
		return nil, 0, &extractor.ExtractionError{URL: url, Err: extractor.ErrEmptyPlaylist}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	position := len(p.entries) + 1
	p.entries = append(p.entries, added...)
	return added, position, nil
}

// CountForUser returns how many queued entries userID asked for.
func (p *Playlist) CountForUser(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.Meta.AuthorID == userID {
			n++
		}
	}
	return n
}

func (p *Playlist) Peek() (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	return p.entries[0], true
}

// Next removes and returns the first entry.
func (p *Playlist) Next() (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	e := p.entries[0]
	p.entries[0] = Entry{}
	p.entries = p.entries[1:]
	return e, true
}

// EstimateTimeUntil sums the durations queued ahead of position plus what is
// left of the entry playing now.
func (p *Playlist) EstimateTimeUntil(position int, currentRemaining time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := max(currentRemaining, 0)
	for i := 0; i < position-1 && i < len(p.entries); i++ {
		total += p.entries[i].Duration
	}
	return total
}

func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
}

func (p *Playlist) Shuffle(r random.Random) {
	p.mu.Lock()
	defer p.mu.Unlock()
	random.Shuffle(r, len(p.entries), func(i, j int) {
		p.entries[i], p.entries[j] = p.entries[j], p.entries[i]
	})
}

func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries returns a copy of the queue.
func (p *Playlist) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (e Entry) String() string {
	if e.Meta.AuthorName != "" {
		return fmt.Sprintf("%s (added by %s)", e.Title, e.Meta.AuthorName)
	}
	return e.Title
}
