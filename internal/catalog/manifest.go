package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxManifestSize bounds a manifest file in bytes.
const MaxManifestSize = 10 << 20

// ManifestBook is one catalog entry in an import manifest.
type ManifestBook struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	Description   string `json:"description,omitempty"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
	TotalCopies   int    `json:"total_copies"`
}

// Manifest is a batch of books to add to the catalog.
type Manifest struct {
	Books []ManifestBook `json:"books"`
}

// ParseManifest reads a manifest. Both {"books": [...]} and a bare array
// are accepted; a missing total_copies defaults to 1.
func ParseManifest(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(data) > MaxManifestSize {
		return nil, fmt.Errorf("manifest exceeds %d bytes", MaxManifestSize)
	}

	var m Manifest
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("manifest is empty")
	case trimmed[0] == '[':
		err = json.Unmarshal(trimmed, &m.Books)
	default:
		err = json.Unmarshal(trimmed, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	for i := range m.Books {
		if m.Books[i].TotalCopies == 0 {
			m.Books[i].TotalCopies = 1
		}
	}
	return &m, nil
}

// ParseManifestFile parses the manifest at path.
func ParseManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// ImportAction is what happened to one manifest entry.
type ImportAction string

const (
	ImportCreated ImportAction = "created"
	ImportUpdated ImportAction = "updated"
	ImportSkipped ImportAction = "skipped"
)

// Importer applies a single manifest entry to the catalog.
type Importer interface {
	ImportBook(ctx context.Context, book ManifestBook) (ImportAction, error)
}

// ImportFailure records an entry that could not be imported.
type ImportFailure struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// ImportReport summarizes a manifest import.
type ImportReport struct {
	Created int             `json:"created"`
	Updated int             `json:"updated"`
	Skipped int             `json:"skipped"`
	Failed  []ImportFailure `json:"failed,omitempty"`
}

// Import applies every entry in m. A failing entry is recorded and does not
// stop the rest; only context cancellation aborts early.
func Import(ctx context.Context, imp Importer, m *Manifest) (ImportReport, error) {
	var report ImportReport
	for i, book := range m.Books {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		action, err := imp.ImportBook(ctx, book)
		if err != nil {
			report.Failed = append(report.Failed, ImportFailure{Index: i, Title: book.Title, Error: err.Error()})
			continue
		}
		switch action {
		case ImportCreated:
			report.Created++
		case ImportUpdated:
			report.Updated++
		default:
			report.Skipped++
		}
	}
	return report, nil
}
