package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrInvalidKey indicates an empty key or one that escapes the bucket root.
	ErrInvalidKey = errors.New("objectstore: invalid key")
	// ErrObjectExists indicates an upload would overwrite an existing object.
	ErrObjectExists = errors.New("objectstore: object already exists")
	// ErrNotFound indicates the object does not exist.
	ErrNotFound = errors.New("objectstore: object not found")

	errMissingFilesystem = errors.New("objectstore: filesystem required")
	errMissingBaseURL    = errors.New("objectstore: public base url required")
)

// Receipt describes a stored object.
type Receipt struct {
	Key  string
	Size int64
}

// Config describes a bucket rooted in a filesystem.
type Config struct {
	Filesystem    afero.Fs
	Root          string
	PublicBaseURL string
}

// Store is a flat object bucket backed by an afero filesystem.
type Store struct {
	fs      afero.Fs
	baseURL string
}

// New constructs a Store. The root directory is created when missing.
func New(cfg Config) (*Store, error) {
	if cfg.Filesystem == nil {
		return nil, errMissingFilesystem
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	fs := cfg.Filesystem
	if root := strings.TrimSpace(cfg.Root); root != "" {
		if err := fs.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("objectstore: create root: %w", err)
		}
		fs = afero.NewBasePathFs(fs, root)
	}
	return &Store{fs: fs, baseURL: baseURL}, nil
}

// NewOS constructs a Store on the local disk under root.
func NewOS(root, publicBaseURL string) (*Store, error) {
	return New(Config{Filesystem: afero.NewOsFs(), Root: root, PublicBaseURL: publicBaseURL})
}

// Upload writes the content under key. Existing objects are never overwritten.
func (s *Store) Upload(ctx context.Context, key string, content io.Reader) (Receipt, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return Receipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	file, err := s.fs.OpenFile(cleaned, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return Receipt{}, fmt.Errorf("%w: %s", ErrObjectExists, cleaned)
		}
		return Receipt{}, fmt.Errorf("objectstore: create %s: %w", cleaned, err)
	}
	written, copyErr := io.Copy(file, content)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = s.fs.Remove(cleaned)
		return Receipt{}, fmt.Errorf("objectstore: write %s: %w", cleaned, errors.Join(copyErr, closeErr))
	}
	return Receipt{Key: cleaned, Size: written}, nil
}

// PublicURL resolves the publicly reachable URL of key.
func (s *Store) PublicURL(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/" + url.PathEscape(cleaned), nil
}

// KeyFromURL reverses PublicURL. It reports false for URLs outside this bucket.
func (s *Store) KeyFromURL(publicURL string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil {
		return "", false
	}
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", false
	}
	return cleaned, true
}

// Open returns a reader for key.
func (s *Store) Open(key string) (afero.File, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	file, err := s.fs.Open(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
		}
		return nil, err
	}
	return file, nil
}

// Delete removes key. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(cleaned); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("objectstore: delete %s: %w", cleaned, err)
	}
	return nil
}

func cleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + trimmed)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(trimmed, "/") || strings.Contains(cleaned, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
