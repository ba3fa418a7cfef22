package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/spf13/afero"
)

type memorySource struct {
	fs    afero.Fs
	opens int
}

func (s *memorySource) Open(key string) (afero.File, error) {
	s.opens++
	return s.fs.Open(key)
}

func writePNG(t *testing.T, fs afero.Fs, key string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	buffer := &bytes.Buffer{}
	if err := png.Encode(buffer, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	if err := afero.WriteFile(fs, key, buffer.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write png: %v", err)
	}
}

func TestThumbnailBoundsDimensionsAndCaches(t *testing.T) {
	source := &memorySource{fs: afero.NewMemMapFs()}
	writePNG(t, source.fs, "wide.png", 640, 320)

	thumbnailer, err := NewThumbnailer(ThumbnailerConfig{Source: source, MaxSize: 100})
	if err != nil {
		t.Fatalf("failed to construct thumbnailer: %v", err)
	}

	encoded, err := thumbnailer.Thumbnail("wide.png")
	if err != nil {
		t.Fatalf("thumbnail failed: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("expected jpeg output: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Fatalf("expected 100x50 thumbnail, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	if _, err := thumbnailer.Thumbnail("wide.png"); err != nil {
		t.Fatalf("cached thumbnail failed: %v", err)
	}
	if source.opens != 1 {
		t.Fatalf("expected a single source read, got %d", source.opens)
	}

	thumbnailer.Forget("wide.png")
	if _, err := thumbnailer.Thumbnail("wide.png"); err != nil {
		t.Fatalf("regenerated thumbnail failed: %v", err)
	}
	if source.opens != 2 {
		t.Fatalf("expected regeneration after forget, got %d reads", source.opens)
	}
}

func TestThumbnailRejectsNonImages(t *testing.T) {
	source := &memorySource{fs: afero.NewMemMapFs()}
	if err := afero.WriteFile(source.fs, "notes.txt", []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	thumbnailer, err := NewThumbnailer(ThumbnailerConfig{Source: source})
	if err != nil {
		t.Fatalf("failed to construct thumbnailer: %v", err)
	}
	if _, err := thumbnailer.Thumbnail("notes.txt"); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected undecodable error, got %v", err)
	}
}
