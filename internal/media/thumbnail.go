package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"sync"

	"github.com/nfnt/resize"
	"github.com/spf13/afero"
)

const (
	// DefaultThumbnailSize bounds both thumbnail dimensions in pixels.
	DefaultThumbnailSize = 300
	defaultCacheEntries  = 512
	jpegQuality          = 85
)

var (
	// ErrUndecodable indicates the object is not an image this service can decode.
	ErrUndecodable   = errors.New("media: undecodable image")
	errMissingSource = errors.New("media: source required")
)

// Source opens stored objects by key.
type Source interface {
	Open(key string) (afero.File, error)
}

// ThumbnailerConfig configures thumbnail generation.
type ThumbnailerConfig struct {
	Source     Source
	MaxSize    uint
	MaxEntries int
}

// Thumbnailer renders and caches JPEG thumbnails of stored images.
type Thumbnailer struct {
	source     Source
	maxSize    uint
	maxEntries int

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewThumbnailer constructs a Thumbnailer.
func NewThumbnailer(cfg ThumbnailerConfig) (*Thumbnailer, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = DefaultThumbnailSize
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &Thumbnailer{
		source:     cfg.Source,
		maxSize:    maxSize,
		maxEntries: maxEntries,
		cache:      make(map[string][]byte),
	}, nil
}

// Thumbnail returns the JPEG thumbnail for key, generating it on first use.
func (t *Thumbnailer) Thumbnail(key string) ([]byte, error) {
	t.mu.RLock()
	cached, ok := t.cache[key]
	t.mu.RUnlock()
	if ok {
		return cached, nil
	}

	file, err := t.source.Open(key)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	thumbnail := resize.Thumbnail(t.maxSize, t.maxSize, img, resize.Lanczos3)
	buffer := &bytes.Buffer{}
	if err := jpeg.Encode(buffer, thumbnail, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("media: encode thumbnail: %w", err)
	}
	encoded := buffer.Bytes()

	t.mu.Lock()
	if len(t.cache) >= t.maxEntries {
		// Full reset; thumbnails regenerate on demand.
		t.cache = make(map[string][]byte)
	}
	t.cache[key] = encoded
	t.mu.Unlock()

	return encoded, nil
}

// Forget drops a cached thumbnail.
func (t *Thumbnailer) Forget(key string) {
	t.mu.Lock()
	delete(t.cache, key)
	t.mu.Unlock()
}
