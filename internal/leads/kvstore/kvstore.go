// Package kvstore keeps leads in process memory.
package kvstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m3rciful/mebelbot/internal/leads"
)

// Backend is an in-memory leads.Backend. Records are stored as JSON so
// callers never share slices with the store.
type Backend struct {
	mu      sync.RWMutex
	records map[string][]byte
	index   []string
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{records: make(map[string][]byte)}
}

func (b *Backend) Load(_ context.Context, id string) (leads.Lead, error) {
	b.mu.RLock()
	raw, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		return leads.Lead{}, leads.ErrNotExist
	}
	var l leads.Lead
	if err := json.Unmarshal(raw, &l); err != nil {
		return leads.Lead{}, err
	}
	return l, nil
}

func (b *Backend) Save(_ context.Context, lead leads.Lead) error {
	raw, err := json.Marshal(lead)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.records[lead.ID] = raw
	b.mu.Unlock()
	return nil
}

func (b *Backend) Remove(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[id]; !ok {
		return leads.ErrNotExist
	}
	delete(b.records, id)
	return nil
}

func (b *Backend) IDs(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.index...), nil
}

func (b *Backend) PushID(_ context.Context, id string) error {
	b.mu.Lock()
	b.index = append([]string{id}, b.index...)
	b.mu.Unlock()
	return nil
}

func (b *Backend) RemoveIDs(_ context.Context, ids ...string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.index[:0]
	for _, id := range b.index {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	b.index = kept
	return nil
}

var _ leads.Backend = (*Backend)(nil)
