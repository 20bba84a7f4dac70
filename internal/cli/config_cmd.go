package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/ui"
	"github.com/spf13/cobra"
)

var (
	configInitForce  bool
	configInitGlobal bool
	configInitTarget TargetFlags
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and edit the config file",
	Long: `Manage the flatpak-sync config file.

Config is read from --config, ./flatpak-sync.yaml or
~/.config/flatpak-sync/config.yaml, in that order. Every key can also be
set with a FLATPAK_SYNC_* environment variable.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Long: `Write a config file with every key at its default value.

Examples:
  flatpak-sync config init
  flatpak-sync config init --global -u alice -r desk.local
  flatpak-sync config init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath()
		cfg := config.DefaultConfig()
		if cmd.Flags().Changed("username") {
			cfg.Username = configInitTarget.Username
		}
		if cmd.Flags().Changed("remote-host") {
			cfg.RemoteHost = configInitTarget.RemoteHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = configInitTarget.Port
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}

		if err := config.WriteFile(path, cfg, configInitForce); err != nil {
			return err
		}
		return reportConfigPath(cmd, "Wrote", path)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one key in the config file",
	Long: `Set one key in the config file, keeping its comments and layout.
Nested keys use dots. List keys take a comma-separated value.

Examples:
  flatpak-sync config set remote_host desk.local
  flatpak-sync config set install_timeout 10m
  flatpak-sync config set exclude org.example.Huge,org.example.Secret`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.Keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Find(Config())
		if err != nil {
			return err
		}
		if path == "" {
			return errors.New(errors.ErrConfig,
				"Config file not found",
				"Run 'flatpak-sync config init' to create one")
		}

		if err := config.SetValue(path, args[0], args[1]); err != nil {
			return err
		}

		// Reject values the loader would choke on.
		cfg, err := config.Load(path)
		if err == nil {
			err = config.Validate(cfg)
		}
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("%s now holds an invalid value for %s", path, args[0]),
				"Fix it with another 'flatpak-sync config set' or edit the file")
		}
		return reportConfigPath(cmd, "Updated", path)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Find(Config())
		if err != nil {
			return err
		}
		if machineMode {
			return WriteJSONSuccess(cmd.OutOrStdout(), map[string]string{"path": path})
		}
		if path == "" {
			fmt.Fprintln(cmd.OutOrStdout(), ui.MutedStyle().Render("No config file, using defaults and FLATPAK_SYNC_* environment"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing config file")
	configInitCmd.Flags().BoolVar(&configInitGlobal, "global", false, "write ~/.config/flatpak-sync/config.yaml instead of ./flatpak-sync.yaml")
	AddTargetFlags(configInitCmd, &configInitTarget)

	configCmd.AddCommand(configInitCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configInitPath picks the file config init writes: --config, then
// --global, then the project-local file.
func configInitPath() string {
	switch {
	case Config() != "":
		return Config()
	case configInitGlobal && config.GlobalPath() != "":
		return config.GlobalPath()
	default:
		return filepath.Join(".", config.ConfigFileName)
	}
}

func reportConfigPath(cmd *cobra.Command, verb, path string) error {
	if machineMode {
		return WriteJSONSuccess(cmd.OutOrStdout(), map[string]string{"path": path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), verb, path)
	return nil
}
