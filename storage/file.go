package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docsig/signature-service/interfaces"
)

// FileBackend persists directory entries as one JSON file per entry under
// a base directory on the local file system.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir,
// creating the directory if it does not exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Save writes an entry, overwriting any previous value for its id.
func (b *FileBackend) Save(ctx context.Context, entry *interfaces.DirectoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	path := b.entryPath(entry.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write entry file: %w", err)
	}

	b.log.Debug("Stored directory entry", slog.String("path", path), slog.Int("size", len(data)))
	return nil
}

// Delete removes the entry file for id. A missing file is not an error.
func (b *FileBackend) Delete(ctx context.Context, id string) error {
	err := os.Remove(b.entryPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove entry file: %w", err)
	}
	return nil
}

// Load reads every entry file under the base directory.
func (b *FileBackend) Load(ctx context.Context) ([]*interfaces.DirectoryEntry, error) {
	files, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	var entries []*interfaces.DirectoryEntry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.baseDir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read entry file %s: %w", f.Name(), err)
		}
		var entry interfaces.DirectoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			b.log.Warn("Skipping unparsable entry file", "file", f.Name(), "err", err)
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

func (b *FileBackend) entryPath(id string) string {
	// Entry ids are hex; Base guards against path traversal anyway.
	return filepath.Join(b.baseDir, filepath.Base(id)+".json")
}
