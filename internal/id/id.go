// Package id generates prefixed entity identifiers.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefix names the kind of entity an ID belongs to.
type Prefix string

// Entity prefixes.
const (
	Book          Prefix = "book"
	Student       Prefix = "student"
	Staff         Prefix = "staff"
	Loan          Prefix = "loan"
	BookRequest   Prefix = "breq"
	ReturnRequest Prefix = "rreq"
	Session       Prefix = "session"
	Token         Prefix = "token"
	Client        Prefix = "sse"
)

// alphabet omits '-' and '_' so the prefix separator is unambiguous.
const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	size     = 16
)

// Generate creates an ID of the form prefix-xxxxxxxxxxxxxxxx.
// It fails only when the system has insufficient entropy.
func Generate(prefix Prefix) (string, error) {
	id, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return string(prefix) + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix Prefix) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id string, prefix Prefix) bool {
	p, rest, ok := strings.Cut(id, "-")
	return ok && p == string(prefix) && len(rest) == size
}
