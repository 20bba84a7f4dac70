package ui

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/sync"
	"github.com/rileyhilliard/flatpak-sync/internal/util"
)

// RenderReport renders the end-of-run summary: counts, then every package
// that did not install with its diagnostic, then any warning.
func RenderReport(r *sync.Report) string {
	if r == nil {
		return ""
	}
	if len(r.Outcomes) == 0 {
		return MutedStyle().Render("Nothing to sync") + "\n"
	}

	installed, failed, skipped := r.Counts()

	var sb strings.Builder
	sb.WriteString("\n")

	parts := []string{SuccessStyle().Render(fmt.Sprintf("%s %d installed", SymbolSuccess, installed))}
	if failed > 0 {
		parts = append(parts, ErrorStyle().Render(fmt.Sprintf("%s %d failed", SymbolFail, failed)))
	}
	if skipped > 0 {
		parts = append(parts, WarningStyle().Render(fmt.Sprintf("%s %d skipped", SymbolSkipped, skipped)))
	}
	sb.WriteString(strings.Join(parts, "  "))
	sb.WriteString(MutedStyle().Render(fmt.Sprintf("  %d %s on %s in %s",
		len(r.Outcomes), util.Pluralize(len(r.Outcomes), "package", "packages"), r.Target.Host, formatDuration(r.Duration))))
	sb.WriteString("\n")

	if problems := r.Failed(); len(problems) > 0 {
		sb.WriteString("\n")
		for _, o := range problems {
			symbol, style := SymbolFail, ErrorStyle()
			if !o.Attempted && strings.HasPrefix(o.Diagnostic, "skipped:") {
				symbol, style = SymbolSkipped, WarningStyle()
			}
			sb.WriteString("  " + style.Render(symbol) + " " + o.Package + "\n")
			for _, line := range strings.Split(o.Diagnostic, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					sb.WriteString("      " + MutedStyle().Render(line) + "\n")
				}
			}
		}
	}

	if w := r.WarningText(); w != "" {
		sb.WriteString("\n" + WarningStyle().Render(SymbolWarning+" "+firstLine(w)) + "\n")
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
