// Package directory implements the registry of public-key identities used
// to verify detached signatures. All invariants live here: id uniqueness
// across the directory's lifetime, immutability of stored keys, and
// exclusive mutation under a single guarded region.
package directory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsig/signature-service/cryptoutils"
	"github.com/docsig/signature-service/interfaces"
)

// idLength is the number of hex characters in a directory entry id.
const idLength = 8

type record struct {
	entry *interfaces.DirectoryEntry
	seq   uint64
}

// Directory is an in-memory registry of public-key identities, optionally
// persisted through an EntryStore. A single RWMutex guards all state:
// register and delete are mutually exclusive with each other and with
// reads, reads run concurrently with each other and always observe a
// consistent snapshot.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]record
	issued  map[string]struct{}
	nextSeq uint64

	store interfaces.EntryStore
	log   *slog.Logger
}

// New creates a directory. If store is non-nil, previously persisted
// entries are loaded and future mutations are written through.
func New(store interfaces.EntryStore, log *slog.Logger) (*Directory, error) {
	d := &Directory{
		entries: make(map[string]record),
		issued:  make(map[string]struct{}),
		store:   store,
		log:     log,
	}

	if store != nil {
		stored, err := store.Load(context.Background())
		if err != nil {
			return nil, interfaces.Wrap(interfaces.KindInternal, "failed to load directory entries", err)
		}

		// Recover deterministic ordering for equal timestamps: sort loaded
		// entries by creation time, then id, and assign sequence numbers.
		sort.Slice(stored, func(i, j int) bool {
			if stored[i].CreatedAt.Equal(stored[j].CreatedAt) {
				return stored[i].ID < stored[j].ID
			}
			return stored[i].CreatedAt.Before(stored[j].CreatedAt)
		})
		for _, entry := range stored {
			d.nextSeq++
			d.entries[entry.ID] = record{entry: entry, seq: d.nextSeq}
			d.issued[entry.ID] = struct{}{}
		}
		log.Info("Loaded directory entries", "count", len(stored), "store", store.Name())
	}

	return d, nil
}

// Register validates and stores a new public-key identity, returning the
// created entry with its freshly generated id.
func (d *Directory) Register(name, department string, publicKey interfaces.PublicKeyPEM) (*interfaces.DirectoryEntry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, interfaces.E(interfaces.KindInvalidInput, "name must not be empty")
	}
	if strings.TrimSpace(department) == "" {
		return nil, interfaces.E(interfaces.KindInvalidInput, "department must not be empty")
	}
	if _, err := cryptoutils.ParseRSAPublicKey(publicKey); err != nil {
		return nil, interfaces.Wrap(interfaces.KindInvalidInput, "malformed public key", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := &interfaces.DirectoryEntry{
		ID:         d.newIDLocked(),
		Name:       name,
		Department: department,
		PublicKey:  append(interfaces.PublicKeyPEM(nil), publicKey...),
		CreatedAt:  time.Now().UTC(),
	}

	if d.store != nil {
		if err := d.store.Save(context.Background(), entry); err != nil {
			// The id stays burned even though the entry was never committed.
			return nil, interfaces.Wrap(interfaces.KindInternal, "failed to persist directory entry", err)
		}
	}

	d.nextSeq++
	d.entries[entry.ID] = record{entry: entry, seq: d.nextSeq}

	d.log.Info("Registered public key", "id", entry.ID, "name", entry.Name, "department", entry.Department)
	return copyEntry(entry), nil
}

// newIDLocked generates a fresh id that has never been issued by this
// directory, including ids of since-deleted entries. Must be called with
// the write lock held.
func (d *Directory) newIDLocked() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
		if _, taken := d.issued[id]; !taken {
			d.issued[id] = struct{}{}
			return id
		}
	}
}

// Lookup returns the entry with the given id.
func (d *Directory) Lookup(id string) (*interfaces.DirectoryEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.entries[id]
	if !ok {
		return nil, interfaces.Errorf(interfaces.KindNotFound, "key %q not found in directory", id)
	}
	return copyEntry(rec.entry), nil
}

// List returns all entries ordered by creation time ascending; entries
// with equal timestamps keep their insertion order.
func (d *Directory) List() []*interfaces.DirectoryEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	records := make([]record, 0, len(d.entries))
	for _, rec := range d.entries {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].entry.CreatedAt.Equal(records[j].entry.CreatedAt) {
			return records[i].seq < records[j].seq
		}
		return records[i].entry.CreatedAt.Before(records[j].entry.CreatedAt)
	})

	entries := make([]*interfaces.DirectoryEntry, len(records))
	for i, rec := range records {
		entries[i] = copyEntry(rec.entry)
	}
	return entries
}

// Delete permanently removes the entry with the given id. The id is never
// reissued. Signatures previously verified against the entry keep their
// cryptographic validity; future verifications against the id fail with
// an unknown-signer error at the call site.
func (d *Directory) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[id]; !ok {
		return interfaces.Errorf(interfaces.KindNotFound, "key %q not found in directory", id)
	}

	if d.store != nil {
		if err := d.store.Delete(context.Background(), id); err != nil {
			return interfaces.Wrap(interfaces.KindInternal, "failed to delete persisted entry", err)
		}
	}

	delete(d.entries, id)
	d.log.Info("Deleted public key", "id", id)
	return nil
}

// copyEntry returns a defensive copy so callers can never mutate stored state.
func copyEntry(e *interfaces.DirectoryEntry) *interfaces.DirectoryEntry {
	cp := *e
	cp.PublicKey = append(interfaces.PublicKeyPEM(nil), e.PublicKey...)
	return &cp
}
