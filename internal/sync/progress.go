package sync

import (
	"strconv"

	"github.com/rileyhilliard/flatpak-sync/internal/flatpak"
)

// Progress is a snapshot of how far a run has got.
type Progress struct {
	Done   int // Packages with an outcome so far
	Total  int // Packages selected for this run
	Failed int // Outcomes that did not succeed
}

// Percentage returns completion as 0-100.
func (p Progress) Percentage() int {
	if p.Total == 0 {
		return 100
	}
	return p.Done * 100 / p.Total
}

// IsComplete returns true once every package has an outcome.
func (p Progress) IsComplete() bool {
	return p.Done >= p.Total
}

// String renders "3/5".
func (p Progress) String() string {
	return strconv.Itoa(p.Done) + "/" + strconv.Itoa(p.Total)
}

// Observer is notified as packages are installed. Calls happen on the
// goroutine running Orchestrator.Run, in package order.
type Observer interface {
	PackageStarted(pkg flatpak.Package, progress Progress)
	PackageFinished(outcome Outcome, progress Progress)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Started  func(pkg flatpak.Package, progress Progress)
	Finished func(outcome Outcome, progress Progress)
}

func (o ObserverFuncs) PackageStarted(pkg flatpak.Package, progress Progress) {
	if o.Started != nil {
		o.Started(pkg, progress)
	}
}

func (o ObserverFuncs) PackageFinished(outcome Outcome, progress Progress) {
	if o.Finished != nil {
		o.Finished(outcome, progress)
	}
}
