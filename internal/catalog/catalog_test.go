package catalog

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/logger"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "  A desert planet.  ", "A desert planet."},
		{"empty", "   ", ""},
		{"paragraphs", "<p>First</p><p>Second</p>", "First\n\nSecond"},
		{"bold", "<p>A <strong>classic</strong> tale</p>", "A **classic** tale"},
		{"angle brackets without tags", "1 < 2 > 0", "1 < 2 > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.in))
		})
	}
}

func TestNormalizeDescription_Caps(t *testing.T) {
	long := strings.Repeat("é", MaxDescriptionLength+10)
	assert.Len(t, []rune(NormalizeDescription(long)), MaxDescriptionLength)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestComputeBlurHash(t *testing.T) {
	hash, format, err := ComputeBlurHash(pngBytes(t, 300, 450))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.NotEmpty(t, hash)

	_, _, err = ComputeBlurHash(nil)
	assert.ErrorIs(t, err, ErrCoverEmpty)

	_, _, err = ComputeBlurHash([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrCoverFormat)
}

func TestThumbnail_KeepsAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 320))
	b := thumbnail(img).Bounds()
	assert.Equal(t, 64, b.Dx())
	assert.Equal(t, 32, b.Dy())

	small := image.NewRGBA(image.Rect(0, 0, 10, 10))
	assert.Same(t, small, thumbnail(small))
}

func TestCoverStore(t *testing.T) {
	s, err := NewCoverStore(t.TempDir())
	require.NoError(t, err)

	data := pngBytes(t, 80, 120)
	hash, err := s.Save("book-1", data)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	cover, err := s.Get("book-1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", cover.ContentType)
	assert.Equal(t, data, cover.Data)

	s.Delete("book-1")
	_, err = s.Get("book-1")
	assert.ErrorIs(t, err, ErrCoverNotFound)

	_, err = s.Save("book-1", []byte("junk"))
	assert.ErrorIs(t, err, ErrCoverFormat)
}

func TestParseManifest(t *testing.T) {
	obj := `{"books":[{"title":"Dune","author":"Frank Herbert","isbn":"9780441172719","total_copies":3}]}`
	m, err := ParseManifest(strings.NewReader(obj))
	require.NoError(t, err)
	require.Len(t, m.Books, 1)
	assert.Equal(t, 3, m.Books[0].TotalCopies)

	arr := `[{"title":"Emma","author":"Jane Austen","isbn":"9780141439587"}]`
	m, err = ParseManifest(strings.NewReader(arr))
	require.NoError(t, err)
	require.Len(t, m.Books, 1)
	assert.Equal(t, 1, m.Books[0].TotalCopies, "defaults to one copy")

	_, err = ParseManifest(strings.NewReader("  "))
	assert.Error(t, err)
	_, err = ParseManifest(strings.NewReader("{not json"))
	assert.Error(t, err)
}

type fakeImporter struct {
	mu    sync.Mutex
	seen  []string
	fails map[string]bool
}

func (f *fakeImporter) ImportBook(_ context.Context, b ManifestBook) (ImportAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[b.Title] {
		return "", errors.New("duplicate isbn")
	}
	for _, s := range f.seen {
		if s == b.Title {
			return ImportUpdated, nil
		}
	}
	f.seen = append(f.seen, b.Title)
	return ImportCreated, nil
}

func TestImport_CollectsFailures(t *testing.T) {
	imp := &fakeImporter{fails: map[string]bool{"Bad": true}}
	m := &Manifest{Books: []ManifestBook{{Title: "Dune"}, {Title: "Bad"}, {Title: "Dune"}, {Title: "Emma"}}}

	report, err := Import(context.Background(), imp, m)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].Index)
	assert.Equal(t, "Bad", report.Failed[0].Title)
}

func TestImport_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Import(ctx, &fakeImporter{}, &Manifest{Books: []ManifestBook{{Title: "Dune"}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInbox_ImportsDroppedManifest(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}

	done := make(chan ImportReport, 4)
	inbox, err := NewInbox(dir, imp, InboxOptions{
		SettleDelay: 20 * time.Millisecond,
		Logger:      logger.Discard(),
		OnImport: func(_ string, r ImportReport, err error) {
			if err == nil {
				done <- r
			}
		},
	})
	require.NoError(t, err)

	// Present before start: picked up by the initial scan.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.json"),
		[]byte(`[{"title":"Dune"}]`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- inbox.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	select {
	case r := <-done:
		assert.Equal(t, 1, r.Created)
	case <-time.After(5 * time.Second):
		t.Fatal("early manifest not imported")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.json"),
		[]byte(`{"books":[{"title":"Emma"},{"title":"Persuasion"}]}`), 0o644))

	select {
	case r := <-done:
		assert.Equal(t, 2, r.Created)
	case <-time.After(5 * time.Second):
		t.Fatal("dropped manifest not imported")
	}

	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "early.json"))
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "late.json"))
	assert.NoFileExists(t, filepath.Join(dir, "late.json"))
}

func TestInbox_MovesBadManifestToFailed(t *testing.T) {
	dir := t.TempDir()
	failed := make(chan struct{}, 1)
	inbox, err := NewInbox(dir, &fakeImporter{}, InboxOptions{
		SettleDelay: 20 * time.Millisecond,
		OnImport: func(_ string, _ ImportReport, err error) {
			if err != nil {
				failed <- struct{}{}
			}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- inbox.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{oops"), 0o644))

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("broken manifest not handled")
	}
	assert.FileExists(t, filepath.Join(dir, FailedDir, "broken.json"))
}
