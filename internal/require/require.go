// Package require checks that the programs a sync depends on exist, on
// this machine and on the remote host.
package require

import (
	"regexp"
)

// validToolName matches safe tool names: alphanumeric, hyphens, underscores, and periods.
// Examples: flatpak, ssh-keygen, ssh-copy-id
var validToolName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)

// ValidateToolName checks if a tool name is safe to use in shell commands.
// Returns true if the name contains only safe characters.
func ValidateToolName(name string) bool {
	return validToolName.MatchString(name)
}

// CheckResult represents the result of checking a single requirement.
type CheckResult struct {
	// Name is the tool name.
	Name string `json:"name"`
	// Satisfied is true if the tool is available.
	Satisfied bool `json:"satisfied"`
	// Path is where the tool was found (if satisfied).
	Path string `json:"path,omitempty"`
}

// Merge combines tool lists. Returns a deduplicated list preserving order
// of first occurrence.
func Merge(sources ...[]string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, source := range sources {
		for _, req := range source {
			if req != "" && !seen[req] {
				seen[req] = true
				result = append(result, req)
			}
		}
	}

	return result
}
