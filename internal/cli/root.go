package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile string
	noColor bool
	verbose bool
)

// Flags of the root command, which runs the sync.
var (
	syncTarget TargetFlags
	syncOpts   SyncOptions
)

var rootCmd = &cobra.Command{
	Use:   "flatpak-sync",
	Short: "Install your flatpak applications on another machine over SSH",
	Long: `Install every flatpak application from this machine on a remote machine.

On first use for a host, flatpak-sync creates a dedicated key pair in
~/.config/flatpak-sync/sync-keys and installs it with ssh-copy-id, which
asks for the remote password once. Later runs connect with that key.

Each application is installed with its original scope (--user or --system).
A failed install does not stop the run; every result is reported at the end.

Examples:
  flatpak-sync -u alice -r desk.local
  flatpak-sync -u alice -r desk.local -e org.example.Huge,org.example.Secret
  flatpak-sync -r desk --select
  flatpak-sync -r desk --dry-run --json`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
		if noColor {
			ui.DisableColors()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncCommand(cmd.Context(), cmd, &syncTarget, syncOpts)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./flatpak-sync.yaml, then ~/.config/flatpak-sync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug details to stderr")

	AddTargetFlags(rootCmd, &syncTarget)
	AddSyncFlags(rootCmd, &syncOpts)
}

// Config returns the --config flag value.
func Config() string {
	return cfgFile
}

// Execute runs the root command and exits with its status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(handleError(err, os.Stdout, os.Stderr))
}

// ExitError ends the process with Code. The command already reported
// what went wrong, so nothing else is printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// handleError prints err the way the output mode asks and returns the
// process exit code.
func handleError(err error, stdout, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}

	code := 1
	if isUnknownCommandError(err) {
		code = 2
	}

	if machineMode {
		_ = WriteJSONFromError(stdout, err)
		return code
	}

	fmt.Fprintln(stderr, err)
	if code == 2 {
		fmt.Fprintln(stderr, "\nRun 'flatpak-sync --help' for usage.")
	}
	return code
}

// isUnknownCommandError reports errors cobra raises for bad arguments.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "accepts no arguments") ||
		strings.HasPrefix(msg, "invalid argument")
}

// setupLogging installs the default logger. Components log at info level,
// which would crowd the spinner output, so only warnings are shown unless
// --verbose or FLATPAK_SYNC_DEBUG asks for more.
func setupLogging() {
	level := "warn"
	if verbose || os.Getenv(logger.DebugEnv) != "" {
		level = "debug"
	}
	logger.SetDefault(logger.NewLevelLogger("", level))
}

// loadConfig resolves and validates the config and applies its color
// setting to w.
func loadConfig(w io.Writer) (*config.Config, error) {
	cfg, path, err := config.Resolve(Config())
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if path != "" {
		logger.Default().Debug("config loaded from %s", path)
	}

	if noColor || machineMode {
		ui.DisableColors()
	} else {
		ui.SetColorMode(cfg.Output.Color, w)
	}
	return cfg, nil
}
