package search

import (
	"strings"
	"unicode"

	"github.com/libraryledger/ledger-server/internal/domain"
)

// BookDocument is the indexed form of a catalog entry.
type BookDocument struct {
	ID          string
	Title       string
	Author      string
	ISBN        string
	Description string
}

// NewBookDocument extracts the searchable fields of b.
func NewBookDocument(b *domain.Book) *BookDocument {
	return &BookDocument{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		ISBN:        NormalizeISBN(b.ISBN),
		Description: b.Description,
	}
}

// toMap keys fields by the names the mapping declares.
func (d *BookDocument) toMap() map[string]any {
	return map[string]any{
		"type":        docTypeBook,
		"title":       d.Title,
		"author":      d.Author,
		"isbn":        d.ISBN,
		"description": d.Description,
	}
}

// NormalizeISBN keeps digits and a trailing check character X, lowercased.
func NormalizeISBN(isbn string) string {
	var b strings.Builder
	for _, r := range isbn {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('x')
		}
	}
	return b.String()
}
