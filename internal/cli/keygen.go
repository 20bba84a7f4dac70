package cli

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/internal/sync"
	"github.com/rileyhilliard/flatpak-sync/internal/ui"
	"github.com/spf13/cobra"
)

var (
	keygenTarget TargetFlags
	keygenForce  bool
	keygenRemove bool
)

// keygenResult is the JSON form of keygen.
type keygenResult struct {
	Host      string `json:"host"`
	KeyFile   string `json:"key_file"`
	PublicKey string `json:"public_key_file"`
	Created   bool   `json:"created"`
	Removed   bool   `json:"removed,omitempty"`
}

// keygenCmd provisions the sync key without syncing anything.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the sync key for a host and install it there",
	Long: `Create the dedicated key pair for a remote host and authorize it there
with ssh-copy-id. A sync does this automatically on first use; run keygen
to do it ahead of time or to replace a key that stopped working.

An existing key is kept unless --force is given. With --force the new key
only replaces the old one after it was installed successfully.

Examples:
  flatpak-sync keygen -u alice -r desk.local
  flatpak-sync keygen -u alice -r desk.local --force
  flatpak-sync keygen -r desk.local --remove`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := loadConfig(out)
		if err != nil {
			return err
		}
		prov, err := newProvisioner(cfg, logger.Default())
		if err != nil {
			return err
		}

		if keygenRemove {
			return removeKey(cmd, prov, cfg.RemoteHost)
		}

		target, err := keygenTarget.Target(cmd, cfg)
		if err != nil {
			return err
		}

		result, err := provisionKey(cmd.Context(), prov, target, keygenForce)
		if err != nil {
			return err
		}

		if machineMode {
			return WriteJSONSuccess(out, result)
		}
		if result.Created {
			fmt.Fprintf(out, "%s Key installed on %s\n  %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), target.Destination(), result.KeyFile)
		} else {
			fmt.Fprintf(out, "%s Key already exists: %s\n  %s\n",
				ui.SuccessStyle().Render(ui.SymbolSuccess), result.KeyFile,
				ui.MutedStyle().Render("Use --force to create and install a new one"))
		}
		return nil
	},
}

func init() {
	AddTargetFlags(keygenCmd, &keygenTarget)
	keygenCmd.Flags().BoolVarP(&keygenForce, "force", "f", false, "replace an existing key")
	keygenCmd.Flags().BoolVar(&keygenRemove, "remove", false, "delete the local key for --remote-host instead")
	keygenCmd.MarkFlagsMutuallyExclusive("force", "remove")
	rootCmd.AddCommand(keygenCmd)
}

// provisionKey provisions a key for target and folds the "already
// provisioned" case into a successful result.
func provisionKey(ctx context.Context, src sync.CredentialSource, target host.Target, force bool) (keygenResult, error) {
	hostname := target.Host
	cred, err := src.Provision(ctx, target, force)
	if existing, ok := keys.IsAlreadyProvisioned(err); ok {
		return keygenResult{Host: hostname, KeyFile: existing.KeyFile, PublicKey: existing.PublicKeyFile()}, nil
	}
	if err != nil {
		return keygenResult{}, errors.WrapWithCode(err, errors.ErrProvision,
			fmt.Sprintf("Couldn't set up a sync key for %s", hostname),
			"Check that ssh-keygen and ssh-copy-id are installed and the password is right")
	}
	return keygenResult{Host: hostname, KeyFile: cred.KeyFile, PublicKey: cred.PublicKeyFile(), Created: true}, nil
}

func removeKey(cmd *cobra.Command, prov *keys.Provisioner, configured string) error {
	hostname := configured
	if cmd.Flags().Changed("remote-host") {
		hostname = keygenTarget.RemoteHost
	}
	if hostname == "" {
		return errors.New(errors.ErrConfig,
			"--remove needs a host",
			"Pass --remote-host, e.g. flatpak-sync keygen -r desk.local --remove")
	}

	cred, exists := prov.Lookup(hostname)
	if err := prov.Remove(cmd.Context(), hostname); err != nil {
		return errors.WrapWithCode(err, errors.ErrProvision,
			"Couldn't remove the sync key for "+hostname,
			"Delete "+cred.KeyFile+" by hand")
	}

	out := cmd.OutOrStdout()
	if machineMode {
		return WriteJSONSuccess(out, keygenResult{Host: hostname, KeyFile: cred.KeyFile, PublicKey: cred.PublicKeyFile(), Removed: exists})
	}
	if !exists {
		fmt.Fprintf(out, "No key for %s\n", hostname)
		return nil
	}
	fmt.Fprintf(out, "%s Removed %s\n  %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), cred.KeyFile,
		ui.MutedStyle().Render("The public key stays in the remote authorized_keys until you delete it there"))
	return nil
}
