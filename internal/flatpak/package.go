// Package flatpak models the installed applications that get synced and
// builds the commands that list and install them.
package flatpak

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/util"
)

// InstallScope says whether an application is installed system-wide or per user.
type InstallScope int

const (
	ScopeUser InstallScope = iota
	ScopeSystem
)

// ParseScope derives the scope from the raw options column of `flatpak list`.
// Any options string containing "system" selects ScopeSystem.
func ParseScope(options string) InstallScope {
	if strings.Contains(options, "system") {
		return ScopeSystem
	}
	return ScopeUser
}

// Flag returns the flatpak CLI flag for the scope.
func (s InstallScope) Flag() string {
	if s == ScopeSystem {
		return "--system"
	}
	return "--user"
}

func (s InstallScope) String() string {
	if s == ScopeSystem {
		return "system"
	}
	return "user"
}

// MarshalText lets the scope render as "system"/"user" in JSON output.
func (s InstallScope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the MarshalText form.
func (s *InstallScope) UnmarshalText(text []byte) error {
	switch string(text) {
	case "user":
		*s = ScopeUser
	case "system":
		*s = ScopeSystem
	default:
		return fmt.Errorf("unknown install scope %q", text)
	}
	return nil
}

// Package describes one installed application.
// Name and Scope are fixed at discovery; ShouldSync is toggled by the
// selection step before packages reach the orchestrator.
type Package struct {
	Name       string       `json:"name"`
	Scope      InstallScope `json:"scope"`
	ShouldSync bool         `json:"should_sync"`
}

// NewPackage creates a Package selected for sync.
func NewPackage(name, options string) Package {
	return Package{
		Name:       name,
		Scope:      ParseScope(options),
		ShouldSync: true,
	}
}

// Selected returns the packages with ShouldSync set, preserving order.
func Selected(pkgs []Package) []Package {
	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		if p.ShouldSync {
			out = append(out, p)
		}
	}
	return out
}

// Key identifies a package together with its scope, e.g.
// "org.gnome.Calculator@system". The same application can be installed
// in both scopes, and each install is selected on its own.
func (p Package) Key() string {
	return p.Name + "@" + p.Scope.String()
}

// Matches reports whether ref names p. A bare application ID matches every
// scope; NAME@user or NAME@system matches one.
func (p Package) Matches(ref string) bool {
	return ref == p.Name || ref == p.Key()
}

// Exclude clears ShouldSync on every package matched by one of refs (see
// Matches). Returns the refs that matched no package so callers can warn
// about typos.
func Exclude(pkgs []Package, refs []string) []string {
	var unmatched []string
	for _, ref := range refs {
		matched := false
		for i := range pkgs {
			if pkgs[i].Matches(ref) {
				pkgs[i].ShouldSync = false
				matched = true
			}
		}
		if !matched {
			unmatched = append(unmatched, ref)
		}
	}
	return unmatched
}

// ValidateName rejects names that cannot be a flatpak application ID.
// Quoting already prevents injection; this catches control characters and
// option-looking names that flatpak itself would misparse.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.ErrExec,
			"Package name is empty",
			"Check the output of: flatpak list --app --columns=application,options")
	}
	if strings.HasPrefix(name, "-") {
		return errors.New(errors.ErrExec,
			fmt.Sprintf("Package name %q looks like a flag", name),
			"Application IDs are reverse-DNS names like org.gnome.Calculator")
	}
	if strings.IndexFunc(name, unicode.IsControl) != -1 {
		return errors.New(errors.ErrExec,
			fmt.Sprintf("Package name %q contains control characters", name),
			"Application IDs are reverse-DNS names like org.gnome.Calculator")
	}
	return nil
}

// InstallCommand builds the remote command line that installs pkg.
// Every argument is shell-quoted so the name can never be interpreted by
// the remote shell.
func InstallCommand(pkg Package) (string, error) {
	if err := ValidateName(pkg.Name); err != nil {
		return "", err
	}
	return util.ShellJoin("flatpak", "install", "--noninteractive", pkg.Scope.Flag(), pkg.Name, "-y"), nil
}
