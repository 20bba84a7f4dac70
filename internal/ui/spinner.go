package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState represents the current state of a spinner.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
	SpinnerSkipped
)

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

const spinnerInterval = 100 * time.Millisecond

// Spinner displays an animated status line with a label. When Animate is
// false only the final line is written, which keeps piped output clean.
type Spinner struct {
	mu           sync.Mutex
	w            io.Writer
	animate      bool
	label        string
	state        SpinnerState
	frame        int
	startTime    time.Time
	stopChan     chan struct{}
	doneChan     chan struct{}
	running      bool
	lastRendered string
}

// NewSpinner creates a spinner writing to w. Animation is enabled when w
// is a terminal.
func NewSpinner(w io.Writer, label string) *Spinner {
	return &Spinner{
		w:       w,
		animate: isTerminalWriter(w),
		label:   label,
		state:   SpinnerPending,
	}
}

// SetAnimate overrides terminal detection.
func (s *Spinner) SetAnimate(animate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.animate = animate
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.state = SpinnerInProgress
	s.startTime = time.Now()
	if !s.animate {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	s.render()
	go s.spin()
}

// Stop halts the animation without changing state.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	<-s.doneChan
}

// Success stops the spinner and marks it as successful.
func (s *Spinner) Success() {
	s.finish(SpinnerSuccess, "")
}

// Fail stops the spinner and prints detail under the label.
func (s *Spinner) Fail(detail string) {
	s.finish(SpinnerFailed, detail)
}

// Skip stops the spinner and marks it as skipped.
func (s *Spinner) Skip(detail string) {
	s.finish(SpinnerSkipped, detail)
}

// State returns the current spinner state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Label returns the spinner's label.
func (s *Spinner) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// Elapsed returns the time since the spinner started.
func (s *Spinner) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

func (s *Spinner) finish(state SpinnerState, detail string) {
	s.Stop()
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.renderFinal(detail)
}

func (s *Spinner) spin() {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	style := lipgloss.NewStyle().Foreground(ColorSecondary)
	line := fmt.Sprintf("%s %s...", style.Render(spinnerFrames[s.frame]), s.label)

	s.clearLine()
	fmt.Fprint(s.w, line)
	s.lastRendered = line
}

func (s *Spinner) renderFinal(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var symbol string
	var style lipgloss.Style
	switch s.state {
	case SpinnerSuccess:
		symbol, style = SymbolSuccess, SuccessStyle()
	case SpinnerFailed:
		symbol, style = SymbolFail, ErrorStyle()
	case SpinnerSkipped:
		symbol, style = SymbolSkipped, WarningStyle()
	default:
		symbol, style = SymbolPending, MutedStyle()
	}

	s.clearLine()
	line := style.Render(symbol) + " " + s.label
	if !s.startTime.IsZero() && s.state != SpinnerSkipped {
		line += " " + MutedStyle().Render(formatDuration(time.Since(s.startTime)))
	}
	fmt.Fprintln(s.w, line)
	for _, l := range strings.Split(strings.TrimSpace(detail), "\n") {
		if l != "" {
			fmt.Fprintln(s.w, "    "+MutedStyle().Render(l))
		}
	}
}

// clearLine erases the previous animation frame. Callers hold mu.
func (s *Spinner) clearLine() {
	if s.lastRendered == "" {
		return
	}
	fmt.Fprint(s.w, "\r"+strings.Repeat(" ", lipgloss.Width(s.lastRendered))+"\r")
	s.lastRendered = ""
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	if secs >= 60 {
		return d.Round(time.Second).String()
	}
	return fmt.Sprintf("%.1fs", secs)
}
