package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"path/filepath"
	"sync"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// MaxCoverSize bounds an uploaded cover image in bytes.
	MaxCoverSize = 5 << 20

	// BlurHash only needs a thumbnail; 64px keeps encoding in milliseconds.
	blurHashSize = 64
	coversDir    = "covers"
)

var (
	// ErrCoverEmpty is returned for an empty upload.
	ErrCoverEmpty = errors.New("cover image is empty")
	// ErrCoverTooLarge is returned when an upload exceeds MaxCoverSize.
	ErrCoverTooLarge = errors.New("cover image too large")
	// ErrCoverFormat is returned when the data is not a supported image.
	ErrCoverFormat = errors.New("unsupported cover image format")
	// ErrCoverNotFound is returned when a book has no stored cover.
	ErrCoverNotFound = errors.New("cover not found")
)

var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Cover is a stored cover image.
type Cover struct {
	Data        []byte
	ContentType string
}

// CoverStore keeps one cover image per book under {base}/covers.
type CoverStore struct {
	dir string
	mu  sync.RWMutex
}

// NewCoverStore creates the covers directory under basePath.
func NewCoverStore(basePath string) (*CoverStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	dir := filepath.Join(basePath, coversDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create covers directory: %w", err)
	}
	return &CoverStore{dir: dir}, nil
}

// Save validates data as an image, stores it for bookID and returns its BlurHash.
func (s *CoverStore) Save(bookID string, data []byte) (string, error) {
	if bookID == "" {
		return "", fmt.Errorf("book ID cannot be empty")
	}
	hash, format, err := ComputeBlurHash(data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// One file per book regardless of format.
	s.removeLocked(bookID)
	if err := os.WriteFile(s.path(bookID, format), data, 0o644); err != nil {
		return "", fmt.Errorf("write cover: %w", err)
	}
	return hash, nil
}

// Get returns the stored cover for bookID.
func (s *CoverStore) Get(bookID string) (*Cover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for format, ct := range contentTypes {
		data, err := os.ReadFile(s.path(bookID, format))
		if err == nil {
			return &Cover{Data: data, ContentType: ct}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read cover: %w", err)
		}
	}
	return nil, ErrCoverNotFound
}

// Delete removes the cover for bookID if one exists.
func (s *CoverStore) Delete(bookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(bookID)
}

func (s *CoverStore) removeLocked(bookID string) {
	for format := range contentTypes {
		_ = os.Remove(s.path(bookID, format))
	}
}

func (s *CoverStore) path(bookID, format string) string {
	return filepath.Join(s.dir, filepath.Base(bookID)+"."+format)
}

// CoverURL is the API path serving a book's uploaded cover.
func CoverURL(bookID string) string {
	return "/api/v1/books/" + bookID + "/cover"
}

// ComputeBlurHash decodes data and returns its BlurHash and image format.
func ComputeBlurHash(data []byte) (hash, format string, err error) {
	if len(data) == 0 {
		return "", "", ErrCoverEmpty
	}
	if len(data) > MaxCoverSize {
		return "", "", ErrCoverTooLarge
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrCoverFormat, err)
	}
	if _, ok := contentTypes[format]; !ok {
		return "", "", ErrCoverFormat
	}

	// 4x3 components suit portrait covers.
	hash, err = blurhash.Encode(4, 3, thumbnail(img))
	if err != nil {
		return "", "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, format, nil
}

// thumbnail scales img to fit within blurHashSize, keeping its aspect ratio.
func thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= blurHashSize && h <= blurHashSize {
		return img
	}

	dw, dh := blurHashSize, blurHashSize
	if w > h {
		dh = max(h*blurHashSize/w, 1)
	} else {
		dw = max(w*blurHashSize/h, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
