package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// LocalPrefix is the URL path local files are served under.
const LocalPrefix = "/files/"

// LocalStore keeps files in a directory on disk.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir if needed. baseURL is the public origin of this
// server, e.g. http://localhost:8080; it may be empty for relative URLs.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

func (s *LocalStore) Put(ctx context.Context, obj Object) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	key := NewKey(obj.Name)
	path := filepath.Join(s.dir, key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Stored{}, fmt.Errorf("create %s: %w", key, err)
	}
	n, err := io.Copy(f, obj.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n != obj.Size {
		err = fmt.Errorf("short write: %d of %d bytes", n, obj.Size)
	}
	if err != nil {
		os.Remove(path)
		return Stored{}, fmt.Errorf("write %s: %w", key, err)
	}

	return Stored{Key: key, URL: joinURL(s.baseURL+LocalPrefix, key)}, nil
}

// Handler serves stored files; mount it at LocalPrefix.
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(LocalPrefix, http.FileServer(http.Dir(s.dir)))
}
