package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Semantic colors as ANSI codes so they follow the terminal theme.
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// Color modes accepted by SetColorMode, matching the output.color config key.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

func SuccessStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorSuccess) }
func ErrorStyle() lipgloss.Style   { return lipgloss.NewStyle().Foreground(ColorError) }
func WarningStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorWarning) }
func InfoStyle() lipgloss.Style    { return lipgloss.NewStyle().Foreground(ColorInfo) }
func MutedStyle() lipgloss.Style   { return lipgloss.NewStyle().Foreground(ColorMuted) }

// BoldStyle renders headings.
func BoldStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
}

// SetColorMode sets the global color profile for output written to w.
// "auto" honors NO_COLOR and CLICOLOR_FORCE and drops color when w is
// not a terminal.
func SetColorMode(mode string, w io.Writer) {
	switch mode {
	case ColorNever:
		DisableColors()
	case ColorAlways:
		profile := termenv.NewOutput(w).ColorProfile()
		if profile == termenv.Ascii {
			profile = termenv.ANSI
		}
		lipgloss.SetColorProfile(profile)
	default:
		lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	}
}

// DisableColors switches to monochrome output (--no-color).
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsTerminal returns true if f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// isTerminalWriter reports whether w is a terminal file.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && IsTerminal(f)
}
