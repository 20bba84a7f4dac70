package cli

import (
	"fmt"

	"github.com/rileyhilliard/flatpak-sync/internal/flatpak"
	"github.com/rileyhilliard/flatpak-sync/internal/ui"
	"github.com/spf13/cobra"
)

var listExclude []string

// listCmd shows the local applications a sync would consider.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local flatpak applications and whether they would sync",
	Long: `List the flatpak applications installed on this machine, with their
install scope and whether the exclude list skips them.

Examples:
  flatpak-sync list
  flatpak-sync list -e org.example.Huge
  flatpak-sync list --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := loadConfig(out)
		if err != nil {
			return err
		}

		pkgs, err := discoverPackages(cmd.Context(), cfg, listExclude, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		if machineMode {
			return WriteJSONSuccess(out, pkgs)
		}
		fmt.Fprintln(out, ui.RenderPackageTable(pkgs))
		if len(pkgs) > 0 {
			fmt.Fprintf(out, "\n%d of %d selected\n", len(flatpak.Selected(pkgs)), len(pkgs))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringSliceVarP(&listExclude, "exclude", "e", nil, "application IDs to mark as excluded, comma-separated; NAME@user or NAME@system marks one scope")
	rootCmd.AddCommand(listCmd)
}
