// Package output provides consistent CLI output formatting: colored status
// lines when writing to a terminal, plain text otherwise.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette, lime-green accent matching the rest of the corpus's CLI tooling.
const (
	colorLime  = "154"
	colorWhite = "255"
	colorGray  = "245"
	colorRed   = "196"
	colorYellow = "220"
)

type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	errStyle lipgloss.Style
	dim     lipgloss.Style
}

func coloredStyles() styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorWhite)),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime)),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		errStyle: lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
	}
}

func plainStyles() styles {
	return styles{
		header:   lipgloss.NewStyle(),
		success:  lipgloss.NewStyle(),
		warning:  lipgloss.NewStyle(),
		errStyle: lipgloss.NewStyle(),
		dim:      lipgloss.NewStyle(),
	}
}

// Writer prints formatted status lines to out.
type Writer struct {
	out   io.Writer
	style styles
}

// New creates a Writer, auto-detecting whether out is a color-capable
// terminal. Honors NO_COLOR per https://no-color.org.
func New(out io.Writer) *Writer {
	return &Writer{out: out, style: resolveStyles(out)}
}

func resolveStyles(out io.Writer) styles {
	if detectNoColor() || !isTTY(out) {
		return plainStyles()
	}
	return coloredStyles()
}

func detectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Status prints a message with an optional leading icon.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Header prints a bold section header.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintln(w.out, w.style.header.Render(msg))
}

// Success prints a styled success message.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintln(w.out, w.style.success.Render("✓ "+msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a styled warning message.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintln(w.out, w.style.warning.Render("! "+msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a styled error message.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintln(w.out, w.style.errStyle.Render("✗ "+msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Dim prints a de-emphasized message, used for secondary detail lines.
func (w *Writer) Dim(msg string) {
	_, _ = fmt.Fprintln(w.out, w.style.dim.Render(msg))
}

// Newline prints a blank line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress renders an in-place progress bar; a final newline is emitted once
// current reaches total.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", w.style.success.Render(bar), pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
