package exec

import (
	"fmt"
	"regexp"
	"strings"
)

// commandNotFoundPatterns are regex patterns to detect "command not found" errors
// from various shells. These require exit code 127.
var commandNotFoundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bash: (\S+): command not found`),
	regexp.MustCompile(`(?i)zsh: command not found: (\S+)`),
	regexp.MustCompile(`(?i)sh: \d+: (\S+): not found`),
	regexp.MustCompile(`(?i)-bash: (\S+): No such file or directory`),
	regexp.MustCompile(`(?i)(\S+): not found`),
	regexp.MustCompile(`(?i)(\S+): command not found`),
}

// maxDiagnosticLen caps the stderr excerpt carried in a diagnostic.
const maxDiagnosticLen = 200

// IsCommandNotFound checks if the error output indicates a missing command.
// Returns the command name (if extractable) and whether it's a command-not-found error.
func IsCommandNotFound(stderr string, exitCode int) (string, bool) {
	// Exit code 127 is the standard for command not found
	if exitCode != 127 {
		return "", false
	}

	for _, pattern := range commandNotFoundPatterns {
		if matches := pattern.FindStringSubmatch(stderr); len(matches) > 1 {
			return matches[1], true
		}
	}

	// Exit code is 127 but couldn't extract command name
	return "", true
}

// Diagnose turns a failed remote command into a one-line explanation.
// A missing program is named explicitly; otherwise the last non-empty
// stderr line is used, falling back to the exit status.
func Diagnose(cmd, stderr string, exitCode int) string {
	if name, notFound := IsCommandNotFound(stderr, exitCode); notFound {
		if name == "" {
			if fields := strings.Fields(cmd); len(fields) > 0 {
				name = fields[0]
			} else {
				name = "command"
			}
		}
		return fmt.Sprintf("'%s' not found in PATH on remote", name)
	}

	if line := lastLine(stderr); line != "" {
		return fmt.Sprintf("exit status %d: %s", exitCode, line)
	}
	return fmt.Sprintf("exit status %d", exitCode)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(strings.TrimRight(lines[i], "\r"))
		if line == "" {
			continue
		}
		if len(line) > maxDiagnosticLen {
			line = line[:maxDiagnosticLen] + "…"
		}
		return line
	}
	return ""
}
