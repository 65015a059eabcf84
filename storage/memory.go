package storage

import (
	"context"
	"sync"

	"github.com/docsig/signature-service/interfaces"
)

// MemoryBackend keeps entries in process memory. It is the default store
// for development and tests; entries do not survive a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*interfaces.DirectoryEntry
}

// NewMemoryBackend creates an empty in-memory entry store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*interfaces.DirectoryEntry)}
}

// Save writes an entry, overwriting any previous value for its id.
func (b *MemoryBackend) Save(ctx context.Context, entry *interfaces.DirectoryEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *entry
	b.entries[entry.ID] = &cp
	return nil
}

// Delete removes an entry by id.
func (b *MemoryBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
	return nil
}

// Load returns all stored entries.
func (b *MemoryBackend) Load(ctx context.Context) ([]*interfaces.DirectoryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := make([]*interfaces.DirectoryEntry, 0, len(b.entries))
	for _, entry := range b.entries {
		cp := *entry
		entries = append(entries, &cp)
	}
	return entries, nil
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return "memory"
}
