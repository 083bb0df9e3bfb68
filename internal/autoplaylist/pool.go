package autoplaylist

import (
	"fmt"
	"slices"
	"sync"

	"github.com/keshon/djwillex/datastore"
	"github.com/keshon/djwillex/internal/dependencies/random"
)

// Pool is the ordered list of fallback URLs. Removals are written back to
// the backing file, when there is one.
type Pool struct {
	mu    sync.Mutex
	urls  []string
	store *datastore.ListFile
}

// LoadPool reads the pool from store.
func LoadPool(store *datastore.ListFile) (*Pool, error) {
	urls, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load autoplaylist: %w", err)
	}
	return &Pool{urls: urls, store: store}, nil
}

// NewPool builds a pool from urls. store may be nil.
func NewPool(urls []string, store *datastore.ListFile) *Pool {
	return &Pool{urls: slices.Clone(urls), store: store}
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}

func (p *Pool) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.urls)
}

// Pick draws one URL uniformly.
func (p *Pool) Pick(r random.Random) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urls) == 0 {
		return "", false
	}
	return p.urls[r.Intn(len(p.urls))], true
}

// Remove drops every occurrence of url and persists the pool.
func (p *Pool) Remove(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := len(p.urls)
	p.urls = slices.DeleteFunc(p.urls, func(u string) bool { return u == url })
	if len(p.urls) == before || p.store == nil {
		return nil
	}
	if err := p.store.Save(p.urls); err != nil {
		return fmt.Errorf("persist autoplaylist: %w", err)
	}
	return nil
}
