package interfaces

import (
	"context"
	"time"
)

// PrivateKeyPEM is a PEM-encoded RSA private key (PKCS#8 or PKCS#1).
type PrivateKeyPEM []byte

// PublicKeyPEM is a PEM-encoded RSA public key (PKIX or PKCS#1).
type PublicKeyPEM []byte

// KeyPair holds a freshly generated keypair. It is transient: only the
// public half may be stored in the directory, the private half is handed
// to the caller and never persisted by the service.
type KeyPair struct {
	PrivateKey PrivateKeyPEM
	PublicKey  PublicKeyPEM
}

// DirectoryEntry is a registered public-key identity.
//
// The id is generated on creation and never reused for the lifetime of the
// directory, even after the entry is deleted. The public key is immutable
// once stored.
type DirectoryEntry struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Department string       `json:"department"`
	PublicKey  PublicKeyPEM `json:"public_key"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Directory is the registry of public-key identities. Mutations are
// mutually exclusive with each other and with reads; reads may run
// concurrently with each other.
type Directory interface {
	Register(name, department string, publicKey PublicKeyPEM) (*DirectoryEntry, error)
	Lookup(id string) (*DirectoryEntry, error)
	List() []*DirectoryEntry
	Delete(id string) error
}

// EntryStore persists directory entries. It is a dumb key-value store:
// all directory invariants (id uniqueness, ordering, mutation exclusivity)
// are enforced by the directory itself, never by the store.
type EntryStore interface {
	// Save writes an entry, overwriting any previous value for its id.
	Save(ctx context.Context, entry *DirectoryEntry) error

	// Delete removes an entry by id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// Load returns all stored entries in no particular order.
	Load(ctx context.Context) ([]*DirectoryEntry, error)

	// Name returns a unique identifier for this storage backend.
	Name() string
}
