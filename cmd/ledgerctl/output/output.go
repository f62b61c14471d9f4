// Package output renders ledgerctl results for a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	primaryStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).PaddingRight(2)
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Out is where everything is written. Tests swap it.
var Out io.Writer = os.Stdout

// Success prints a success message.
func Success(format string, args ...any) {
	fmt.Fprintln(Out, successStyle.Render("✓ ")+fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func Warning(format string, args ...any) {
	fmt.Fprintln(Out, warningStyle.Render("⚠ ")+fmt.Sprintf(format, args...))
}

// Error prints an error message.
func Error(format string, args ...any) {
	fmt.Fprintln(Out, errorStyle.Render("✗ ")+fmt.Sprintf(format, args...))
}

// Info prints an info message.
func Info(format string, args ...any) {
	fmt.Fprintln(Out, infoStyle.Render("ℹ ")+fmt.Sprintf(format, args...))
}

// Muted prints a muted message.
func Muted(format string, args ...any) {
	fmt.Fprintln(Out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Section prints a section header.
func Section(title string) {
	fmt.Fprintln(Out)
	fmt.Fprintln(Out, primaryStyle.Render(title))
	fmt.Fprintln(Out, mutedStyle.Render(strings.Repeat("═", lipgloss.Width(title))))
}

// KeyValue prints aligned label/value pairs.
func KeyValue(pairs ...[2]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	label := mutedStyle.Width(width + 2)
	for _, p := range pairs {
		fmt.Fprintln(Out, label.Render(p[0])+p[1])
	}
}

// Table prints rows under a header with columns padded to fit.
func Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = headerStyle.Width(widths[i] + 2).Render(h)
	}
	fmt.Fprintln(Out, lipgloss.JoinHorizontal(lipgloss.Top, cells...))

	for _, row := range rows {
		cells = cells[:0]
		for i, cell := range row {
			if i < len(widths) {
				cells = append(cells, cellStyle.Width(widths[i]+2).Render(cell))
			}
		}
		fmt.Fprintln(Out, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
}

// Status renders a yes/no flag, red when set.
func Status(bad bool, yes, no string) string {
	if bad {
		return errorStyle.Render(yes)
	}
	return successStyle.Render(no)
}

// JSON writes v as indented JSON.
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(Out, string(data))
	return err
}
