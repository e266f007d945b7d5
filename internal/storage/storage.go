package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/postmod/apiserver/config"
)

// ObjectStorage defines the object operations the archive needs.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error
	Bucket() string
	Close() error
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend selected by cfg.Archive.Backend and makes sure
// its bucket exists. It returns a nil *Storage when archiving is off.
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	var backend ObjectStorage
	switch cfg.Archive.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		backend = client
	case config.BackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		backend = client
	default:
		return nil, fmt.Errorf("unsupported archive backend %q", cfg.Archive.Backend)
	}

	s := NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", s.Bucket(), err)
	}
	return s, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket. metadata is stored
// alongside the object as user metadata.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	return s.backend.Put(ctx, key, r, size, contentType, metadata)
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Close releases the backend client. It is safe on a nil *Storage.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	return s.backend.Close()
}
