package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/flatpak"
	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/internal/require"
	"github.com/rileyhilliard/flatpak-sync/internal/sync"
	"github.com/rileyhilliard/flatpak-sync/internal/ui"
	"github.com/rileyhilliard/flatpak-sync/internal/util"
	"github.com/spf13/cobra"
)

// SyncOptions holds the flags that shape a sync run.
type SyncOptions struct {
	Exclude        []string
	Select         bool
	DryRun         bool
	InstallTimeout time.Duration
}

// AddSyncFlags registers the sync flags on cmd.
func AddSyncFlags(cmd *cobra.Command, opts *SyncOptions) {
	cmd.Flags().StringSliceVarP(&opts.Exclude, "exclude", "e", nil, "application IDs to skip, comma-separated; NAME@user or NAME@system skips one scope (adds to config: exclude)")
	cmd.Flags().BoolVar(&opts.Select, "select", false, "pick the applications to sync interactively")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show what would be installed without connecting")
	cmd.Flags().DurationVar(&opts.InstallTimeout, "install-timeout", 0, "limit for each install, e.g. 10m (config: install_timeout)")
}

// syncResult is the JSON form of a finished run.
type syncResult struct {
	RunID      string         `json:"run_id"`
	Target     string         `json:"target"`
	Outcomes   []sync.Outcome `json:"outcomes"`
	Installed  int            `json:"installed"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Warning    string         `json:"warning,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// syncPlan is the JSON form of --dry-run.
type syncPlan struct {
	Target    string            `json:"target"`
	KeyFile   string            `json:"key_file"`
	KeyExists bool              `json:"key_exists"`
	Packages  []flatpak.Package `json:"packages"`
	Commands  []string          `json:"commands"`
}

func syncCommand(ctx context.Context, cmd *cobra.Command, targetFlags *TargetFlags, opts SyncOptions) error {
	out := cmd.OutOrStdout()
	log := logger.Default()

	cfg, err := loadConfig(out)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("install-timeout") {
		cfg.InstallTimeout = opts.InstallTimeout
	}

	target, err := targetFlags.Target(cmd, cfg)
	if err != nil {
		return err
	}

	pkgs, err := discoverPackages(ctx, cfg, opts.Exclude, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if opts.Select {
		pkgs, err = selectPackages(ctx, pkgs, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			if stderrors.Is(err, ui.ErrPickerCancelled) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
				return &ExitError{Code: 130}
			}
			return err
		}
	}

	prov, err := newProvisioner(cfg, log)
	if err != nil {
		return err
	}

	cred, exists := prov.Lookup(target.Host)
	if opts.DryRun {
		return renderPlan(out, target, cred.KeyFile, exists, pkgs)
	}
	if !exists {
		if err := checkProvisionTools(cfg.Keys.Generator); err != nil {
			return err
		}
	}

	orch := &sync.Orchestrator{
		Provisioner:    prov,
		Session:        newSession(cfg, log),
		Logger:         log,
		InstallTimeout: cfg.InstallTimeout,
	}
	if !machineMode {
		orch.Observer = ui.NewSyncProgress(out)
		fmt.Fprintf(out, "Syncing %d %s to %s\n\n",
			len(flatpak.Selected(pkgs)), util.Pluralize(len(flatpak.Selected(pkgs)), "application", "applications"), target)
	}

	report, err := orch.Run(ctx, target, pkgs)
	if err != nil {
		return err
	}

	if machineMode {
		if err := writeSyncResult(out, report); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, ui.RenderReport(report))
	}

	if !report.Succeeded() {
		return &ExitError{Code: 1}
	}
	return nil
}

// checkProvisionTools fails fast when a program key provisioning shells
// out to is missing, before the user is asked for a password.
func checkProvisionTools(generator string) error {
	tools := []string{"ssh-copy-id"}
	if generator == keys.GeneratorSSHKeygen {
		tools = append(tools, "ssh-keygen")
	}
	missing := require.FilterMissing(require.CheckAllLocal(lookPath, tools))
	if len(missing) == 0 {
		return nil
	}
	return errors.New(errors.ErrProvision,
		"Missing "+require.FormatMissing(missing)+", needed to set up the sync key",
		"Install the OpenSSH client, then run flatpak-sync doctor")
}

// discoverPackages lists local applications and applies the exclude list
// from config and flags. Unknown excluded refs are warned about since
// they are usually typos.
func discoverPackages(ctx context.Context, cfg *config.Config, exclude []string, warn io.Writer) ([]flatpak.Package, error) {
	pkgs, err := flatpak.ListInstalled(ctx, localRunner)
	if err != nil {
		return nil, err
	}

	names := util.SplitList(append(append([]string{}, cfg.Exclude...), exclude...)...)
	if unmatched := flatpak.Exclude(pkgs, names); len(unmatched) > 0 && !machineMode {
		fmt.Fprintln(warn, ui.WarningStyle().Render(
			fmt.Sprintf("%s Not installed locally, nothing to exclude: %s", ui.SymbolWarning, util.JoinOrNone(unmatched))))
	}
	return pkgs, nil
}

func selectPackages(ctx context.Context, pkgs []flatpak.Package, in io.Reader, out io.Writer) ([]flatpak.Package, error) {
	if machineMode {
		return nil, errors.New(errors.ErrConfig,
			"--select needs a terminal and can't be combined with --json",
			"Use --exclude to skip applications instead")
	}
	if f, ok := in.(*os.File); !ok || !ui.IsTerminal(f) {
		return nil, errors.New(errors.ErrConfig,
			"--select needs an interactive terminal",
			"Use --exclude to skip applications instead")
	}
	return ui.PickPackages(ctx, pkgs, in, out)
}

func renderPlan(w io.Writer, target host.Target, keyFile string, keyExists bool, pkgs []flatpak.Package) error {
	selected := flatpak.Selected(pkgs)
	commands := make([]string, 0, len(selected))
	for _, p := range selected {
		cmd, err := flatpak.InstallCommand(p)
		if err != nil {
			cmd = "# skipped, invalid package name: " + errors.MessageOf(err)
		}
		commands = append(commands, cmd)
	}

	if machineMode {
		return WriteJSONSuccess(w, syncPlan{
			Target:    target.String(),
			KeyFile:   keyFile,
			KeyExists: keyExists,
			Packages:  pkgs,
			Commands:  commands,
		})
	}

	fmt.Fprintln(w, ui.RenderPackageTable(pkgs))
	fmt.Fprintln(w)
	if keyExists {
		fmt.Fprintf(w, "Key:     %s\n", keyFile)
	} else {
		fmt.Fprintf(w, "Key:     %s %s\n", keyFile, ui.MutedStyle().Render("(would be created and installed with ssh-copy-id)"))
	}
	fmt.Fprintf(w, "Target:  %s\n", target)
	fmt.Fprintf(w, "Would install %d of %d %s:\n", len(selected), len(pkgs), util.Pluralize(len(pkgs), "application", "applications"))
	for _, c := range commands {
		fmt.Fprintln(w, "  "+ui.MutedStyle().Render(c))
	}
	return nil
}

func writeSyncResult(w io.Writer, report *sync.Report) error {
	installed, failed, skipped := report.Counts()
	result := syncResult{
		RunID:      report.RunID,
		Target:     report.Target.String(),
		Outcomes:   report.Outcomes,
		Installed:  installed,
		Failed:     failed,
		Skipped:    skipped,
		Warning:    report.WarningText(),
		DurationMs: report.Duration.Milliseconds(),
	}

	if report.Succeeded() {
		return WriteJSONSuccess(w, result)
	}
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: false,
		Data:    result,
		Error: &JSONError{
			Code:    ErrCodeInstallFailed,
			Message: fmt.Sprintf("%d of %d applications were not installed", failed+skipped, len(report.Outcomes)),
		},
	})
}
