package core

import (
	"fmt"
	"slices"
	"sync"

	"github.com/keshon/djwillex/datastore"
)

// Blacklist is the persisted set of ignored user ids.
type Blacklist struct {
	mu    sync.RWMutex
	ids   []string
	store *datastore.ListFile
}

func LoadBlacklist(store *datastore.ListFile) (*Blacklist, error) {
	ids, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	return &Blacklist{ids: ids, store: store}, nil
}

func (b *Blacklist) Has(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.ids, userID)
}

// Add inserts ids and returns how many were new.
func (b *Blacklist) Add(ids ...string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, id := range ids {
		if !slices.Contains(b.ids, id) {
			b.ids = append(b.ids, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, b.store.Save(b.ids)
}

// Remove drops ids and returns how many were present.
func (b *Blacklist) Remove(ids ...string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.ids)
	b.ids = slices.DeleteFunc(b.ids, func(id string) bool { return slices.Contains(ids, id) })
	n := before - len(b.ids)
	if n == 0 {
		return 0, nil
	}
	return n, b.store.Save(b.ids)
}

func (b *Blacklist) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.ids)
}
