package ui

import (
	"context"
	stderrors "errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/flatpak"
)

// ErrPickerCancelled is returned when the user aborts the package picker.
var ErrPickerCancelled = stderrors.New("package selection cancelled")

// maxPickerHeight caps the visible list so long package lists scroll.
const maxPickerHeight = 20

// PickPackages lets the user toggle which packages to sync. Packages
// start selected according to ShouldSync. The returned slice is a copy of
// pkgs with ShouldSync updated; Name and Scope are untouched.
func PickPackages(ctx context.Context, pkgs []flatpak.Package, in io.Reader, out io.Writer) ([]flatpak.Package, error) {
	if len(pkgs) == 0 {
		return nil, nil
	}

	selected := selectedKeys(pkgs)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select applications to sync").
				Description("space toggles, / filters, enter confirms").
				Options(packageOptions(pkgs)...).
				Filterable(true).
				Height(min(len(pkgs)+2, maxPickerHeight)).
				Value(&selected),
		),
	).
		WithInput(in).
		WithOutput(out).
		WithProgramOptions(tea.WithContext(ctx))

	if err := form.Run(); err != nil {
		if stderrors.Is(err, huh.ErrUserAborted) || ctx.Err() != nil {
			return nil, ErrPickerCancelled
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't get your selection",
			"Run without --select and use --exclude to skip applications")
	}

	return ApplySelection(pkgs, selected), nil
}

// ApplySelection returns a copy of pkgs where exactly the packages whose
// Key is in keys have ShouldSync set. Keys carry the scope, so a user and
// a system install of the same application are toggled separately.
func ApplySelection(pkgs []flatpak.Package, keys []string) []flatpak.Package {
	chosen := make(map[string]bool, len(keys))
	for _, k := range keys {
		chosen[k] = true
	}

	out := make([]flatpak.Package, len(pkgs))
	for i, p := range pkgs {
		p.ShouldSync = chosen[p.Key()]
		out[i] = p
	}
	return out
}

func packageOptions(pkgs []flatpak.Package) []huh.Option[string] {
	options := make([]huh.Option[string], len(pkgs))
	for i, p := range pkgs {
		label := p.Name
		if p.Scope == flatpak.ScopeSystem {
			label += " (system)"
		}
		options[i] = huh.NewOption(label, p.Key()).Selected(p.ShouldSync)
	}
	return options
}

func selectedKeys(pkgs []flatpak.Package) []string {
	var keys []string
	for _, p := range flatpak.Selected(pkgs) {
		keys = append(keys, p.Key())
	}
	return keys
}
