package ui

import (
	"fmt"
	"io"

	"github.com/rileyhilliard/flatpak-sync/internal/flatpak"
	"github.com/rileyhilliard/flatpak-sync/internal/sync"
)

// SyncProgress renders one status line per package as a run proceeds.
// It implements sync.Observer.
type SyncProgress struct {
	w       io.Writer
	animate bool
	current *Spinner
}

// NewSyncProgress creates a progress display writing to w.
func NewSyncProgress(w io.Writer) *SyncProgress {
	return &SyncProgress{w: w, animate: isTerminalWriter(w)}
}

// SetAnimate overrides terminal detection.
func (p *SyncProgress) SetAnimate(animate bool) {
	p.animate = animate
}

func (p *SyncProgress) PackageStarted(pkg flatpak.Package, progress sync.Progress) {
	p.current = NewSpinner(p.w, p.label(pkg.Name, progress.Done+1, progress.Total))
	p.current.SetAnimate(p.animate)
	p.current.Start()
}

func (p *SyncProgress) PackageFinished(outcome sync.Outcome, progress sync.Progress) {
	s := p.current
	p.current = nil

	// Packages skipped after a lost session never get PackageStarted.
	if s == nil {
		s = NewSpinner(p.w, p.label(outcome.Package, progress.Done, progress.Total))
		s.SetAnimate(false)
		s.Skip(outcome.Diagnostic)
		return
	}

	if outcome.Succeeded {
		s.Success()
		return
	}
	s.Fail(outcome.Diagnostic)
}

func (p *SyncProgress) label(name string, n, total int) string {
	return fmt.Sprintf("[%d/%d] %s", n, total, name)
}

var _ sync.Observer = (*SyncProgress)(nil)
