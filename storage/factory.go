package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/docsig/signature-service/interfaces"
)

// Factory creates entry stores from location URI strings.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a factory instance that can create storage backends.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// BackendFor creates an entry store from a location URI.
//
// Supported schemes:
//   - memory:// - process-local, non-persistent (default for development)
//   - file:// - local filesystem storage, e.g. file:///var/lib/sigsvc/keys
//   - s3:// - Amazon S3 or compatible object storage, e.g.
//     s3://bucket/prefix?region=eu-west-1&endpoint=http://localhost:9000
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) BackendFor(locationURI string) (interfaces.EntryStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid storage location URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryBackend(), nil
	case "file":
		return f.createFileBackend(u)
	case "s3":
		return f.createS3Backend(u)
	default:
		return nil, fmt.Errorf("unsupported storage scheme: %s", u.Scheme)
	}
}

func (f *Factory) createFileBackend(u *url.URL) (interfaces.EntryStore, error) {
	f.log.Debug("Creating file backend", slog.String("uri", u.String()))

	// file:///abs/path has an empty host; file://relative/path does not.
	baseDir := u.Path
	if u.Host != "" {
		baseDir = filepath.Join(u.Host, u.Path)
	}
	if baseDir == "" {
		return nil, fmt.Errorf("file storage URI must carry a path")
	}

	return NewFileBackend(baseDir, f.log)
}

func (f *Factory) createS3Backend(u *url.URL) (interfaces.EntryStore, error) {
	f.log.Debug("Creating S3 backend", slog.String("uri", u.String()))

	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("S3 storage URI must carry a bucket name")
	}

	prefix := strings.TrimPrefix(u.Path, "/")
	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(bucket, prefix, region, endpoint, accessKey, secretKey, f.log)
}
