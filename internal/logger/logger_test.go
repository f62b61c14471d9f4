package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newPretty(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{Writer: buf, Format: formatPretty, Level: level, NoColor: true})
}

func TestNew_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Environment: "production", Level: slog.LevelInfo})

	log.Info("loan issued", "loan_id", "loan-1")

	assert.Contains(t, buf.String(), `"msg":"loan issued"`)
	assert.Contains(t, buf.String(), `"loan_id":"loan-1"`)
}

func TestNew_PrettyInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Environment: "development", Level: slog.LevelInfo, NoColor: true})

	log.Info("loan issued", "fine", 6)

	line := buf.String()
	assert.Contains(t, line, "INF loan issued fine=6")
	assert.NotContains(t, line, "\033[")
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelWarn)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WRN shown")
}

func TestPrettyHandler_QuotesStringsWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	newPretty(&buf, slog.LevelInfo).Info("issued", "title", "The Great Gatsby", "isbn", "978-0743273565")

	assert.Contains(t, buf.String(), `title="The Great Gatsby"`)
	assert.Contains(t, buf.String(), "isbn=978-0743273565")
}

func TestPrettyHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelInfo)

	log.WithGroup("ledger").Info("stats", "issued", 3)
	log.Info("nested", slog.Group("request", slog.String("id", "breq-1")))

	out := buf.String()
	assert.Contains(t, out, "ledger.issued=3")
	assert.Contains(t, out, "request.id=breq-1")
}

func TestLogger_WithHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelInfo)

	log.WithError(errors.New("boom")).WithField("book_id", "book-1").Info("failed")

	out := buf.String()
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "book_id=book-1")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))

	l := slog.Default()
	assert.Same(t, l, OrDiscard(l))
}
