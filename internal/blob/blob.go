package blob

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Store is the blob-storage collaborator: opaque keyed puts and time-limited
// GET URL resolution. Implementations are expected to be eventually
// available; callers treat failures as internal errors.
type Store interface {
	Put(key string, data []byte, contentType string) error
	PresignGet(key string, ttl time.Duration) (string, error)
	Open(key string) (io.ReadCloser, error)
}

// FSStore keeps blobs as flat files under a single directory and serves them
// through the API's uploads endpoint.
type FSStore struct {
	dir     string
	baseURL string
}

func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &FSStore{dir: dir, baseURL: baseURL}, nil
}

func (s *FSStore) Put(key string, data []byte, contentType string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func (s *FSStore) PresignGet(key string, ttl time.Duration) (string, error) {
	if _, err := s.keyPath(key); err != nil {
		return "", err
	}

	expires := strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
	return fmt.Sprintf("%s/%s?expires=%s", s.baseURL, url.PathEscape(key), expires), nil
}

func (s *FSStore) Open(key string) (io.ReadCloser, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	return os.Open(path)
}

// keyPath rejects keys that would escape the store directory.
func (s *FSStore) keyPath(key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("invalid storage key %q", key)
	}

	return filepath.Join(s.dir, key), nil
}
