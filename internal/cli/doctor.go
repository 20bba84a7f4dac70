package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/doctor"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/internal/ui"
	"github.com/rileyhilliard/flatpak-sync/internal/util"
	"github.com/spf13/cobra"
)

var (
	doctorTarget TargetFlags
	doctorFix    bool
)

// DoctorOutput represents the JSON output for doctor command.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories"`
	Summary    SummaryOutput    `json:"summary"`
}

// CategoryOutput represents a category of check results.
type CategoryOutput struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	Fixable  int  `json:"fixable"`
	AllClear bool `json:"all_clear"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that a sync can run",
	Long: `Check the config, the local programs a sync needs, the sync key and,
when the key exists, the remote host: that the key opens a session and
that flatpak is installed there with at least one remote.

Examples:
  flatpak-sync doctor
  flatpak-sync doctor -u alice -r desk.local
  flatpak-sync doctor --fix`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand(cmd.Context(), cmd, &doctorTarget, doctorFix)
	},
}

func init() {
	AddTargetFlags(doctorCmd, &doctorTarget)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "attempt automatic fixes where possible")
	rootCmd.AddCommand(doctorCmd)
}

// doctorCommand runs every check that applies. Unlike the other commands
// it keeps going with defaults when the config is broken, since the
// config check reports that.
func doctorCommand(ctx context.Context, cmd *cobra.Command, flags *TargetFlags, fix bool) error {
	out := cmd.OutOrStdout()
	log := logger.Default()

	cfg, _, err := config.Resolve(Config())
	if err != nil || cfg == nil {
		cfg = config.DefaultConfig()
		cfg.KeyDir = config.Expand(cfg.KeyDir)
	}
	if noColor || machineMode {
		ui.DisableColors()
	} else {
		ui.SetColorMode(cfg.Output.Color, out)
	}

	target := flags.merge(cmd, cfg)

	var checks []doctor.Check
	checks = append(checks, doctor.NewConfigChecks(Config(), target)...)
	checks = append(checks, doctor.NewLocalChecks(cfg.Keys.Generator, lookPath)...)
	checks = append(checks, doctor.NewKeyChecks(cfg.KeyDir, target.Host)...)

	// Remote checks need a key to log in with.
	if target.Validate() == nil {
		if cred, ok := (&keys.Provisioner{Dir: cfg.KeyDir}).Lookup(target.Host); ok {
			probe := doctor.NewRemoteProbe(newSession(cfg, log), target, cred)
			defer func() {
				if err := probe.Close(); err != nil {
					log.Debug("closing doctor session: %v", err)
				}
			}()
			checks = append(checks, probe.Checks()...)
		}
	}

	results := doctor.RunAll(ctx, checks)
	if fix {
		results = doctor.FixAll(ctx, checks, results)
	}

	if machineMode {
		if err := WriteJSONSuccess(out, doctorOutput(checks, results)); err != nil {
			return err
		}
	} else {
		renderDoctorText(out, checks, results, fix)
	}

	if doctor.HasFailures(results) {
		return &ExitError{Code: 1}
	}
	return nil
}

// doctorOutput groups results by category in report order.
func doctorOutput(checks []doctor.Check, results []doctor.CheckResult) DoctorOutput {
	grouped := groupByCategory(checks)

	output := DoctorOutput{Categories: make([]CategoryOutput, 0, len(grouped))}
	for _, cat := range doctor.CategoryOrder {
		indices, ok := grouped[cat]
		if !ok {
			continue
		}
		category := CategoryOutput{Name: cat}
		for _, idx := range indices {
			category.Results = append(category.Results, results[idx])
		}
		output.Categories = append(output.Categories, category)
	}

	counts := doctor.CountByStatus(results)
	output.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		Fixable:  doctor.FixableCount(results),
		AllClear: !doctor.HasIssues(results),
	}
	return output
}

func groupByCategory(checks []doctor.Check) map[string][]int {
	grouped := make(map[string][]int) // category -> indices
	for i, check := range checks {
		grouped[check.Category()] = append(grouped[check.Category()], i)
	}
	return grouped
}

func renderDoctorText(w io.Writer, checks []doctor.Check, results []doctor.CheckResult, fixed bool) {
	headerStyle := ui.BoldStyle()

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("flatpak-sync diagnostic report"))
	fmt.Fprintln(w)

	grouped := groupByCategory(checks)
	for _, category := range doctor.CategoryOrder {
		indices, ok := grouped[category]
		if !ok {
			continue
		}
		fmt.Fprintln(w, headerStyle.Render(category))
		for _, idx := range indices {
			renderCheckResult(w, results[idx])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	fmt.Fprintln(w)

	if !doctor.HasIssues(results) {
		fmt.Fprintf(w, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), doctor.Summary(results))
		return
	}

	symbol := ui.WarningStyle().Render(ui.SymbolWarning)
	if doctor.HasFailures(results) {
		symbol = ui.ErrorStyle().Render(ui.SymbolFail)
	}
	fmt.Fprintf(w, "%s %s\n", symbol, doctor.Summary(results))

	if fixable := doctor.FixableCount(results); fixable > 0 && !fixed {
		fmt.Fprintf(w, "\n  Run with %s to fix %d %s automatically.\n",
			ui.MutedStyle().Render("--fix"), fixable, util.Pluralize(fixable, "issue", "issues"))
	}
}

func renderCheckResult(w io.Writer, result doctor.CheckResult) {
	var symbol string
	var style lipgloss.Style

	switch result.Status {
	case doctor.StatusPass:
		symbol, style = ui.SymbolSuccess, ui.SuccessStyle()
	case doctor.StatusWarn:
		symbol, style = ui.SymbolWarning, ui.WarningStyle()
	default:
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}

	fmt.Fprintf(w, "  %s %s\n", style.Render(symbol), result.Message)

	if result.Suggestion != "" && result.Status != doctor.StatusPass {
		for _, line := range strings.Split(result.Suggestion, "\n") {
			fmt.Fprintf(w, "    %s\n", ui.MutedStyle().Render(line))
		}
	}
}
