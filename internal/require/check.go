package require

import (
	"context"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/session"
	"github.com/rileyhilliard/flatpak-sync/internal/util"
)

// LookPathFunc finds a program on this machine. exec.LookPath fits.
type LookPathFunc func(file string) (string, error)

// Executor runs a command on the remote host. *session.Session implements it.
type Executor interface {
	Execute(ctx context.Context, cmd string) (session.Output, error)
}

// CheckLocal verifies a single tool exists on this machine.
func CheckLocal(lookPath LookPathFunc, tool string) CheckResult {
	result := CheckResult{Name: tool}
	if !ValidateToolName(tool) {
		return result
	}

	path, err := lookPath(tool)
	if err != nil {
		return result
	}
	result.Satisfied = true
	result.Path = path
	return result
}

// CheckAllLocal checks every tool on this machine, in order.
func CheckAllLocal(lookPath LookPathFunc, tools []string) []CheckResult {
	results := make([]CheckResult, len(tools))
	for i, tool := range tools {
		results[i] = CheckLocal(lookPath, tool)
	}
	return results
}

// CheckRemote verifies a single tool exists on the remote host.
// Uses "command -v <tool>" which is POSIX-compliant and works across shells.
// A missing tool is reported in the result; the error is only set when
// the session itself failed.
func CheckRemote(ctx context.Context, ex Executor, tool string) (CheckResult, error) {
	result := CheckResult{Name: tool}

	// Validate tool name to prevent command injection
	if !ValidateToolName(tool) {
		return result, nil
	}

	out, err := ex.Execute(ctx, util.ShellJoin("command", "-v", tool))
	if err != nil {
		return result, err
	}
	if out.ExitCode != 0 {
		return result, nil
	}

	result.Satisfied = true
	result.Path = strings.TrimSpace(string(out.Stdout))
	return result, nil
}

// FilterMissing returns only the unsatisfied requirements.
func FilterMissing(results []CheckResult) []CheckResult {
	var missing []CheckResult
	for _, r := range results {
		if !r.Satisfied {
			missing = append(missing, r)
		}
	}
	return missing
}

// FormatMissing creates a human-readable list of missing requirements.
func FormatMissing(missing []CheckResult) string {
	if len(missing) == 0 {
		return ""
	}

	parts := make([]string, len(missing))
	for i, m := range missing {
		parts[i] = m.Name
	}
	return strings.Join(parts, ", ")
}
