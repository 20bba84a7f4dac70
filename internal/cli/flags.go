package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
	"github.com/spf13/cobra"
)

// TargetFlags holds the flags that name the remote machine.
type TargetFlags struct {
	Username   string
	RemoteHost string
	Port       uint16
}

// AddTargetFlags registers -u/--username, -r/--remote-host and --port on cmd.
func AddTargetFlags(cmd *cobra.Command, flags *TargetFlags) {
	cmd.Flags().StringVarP(&flags.Username, "username", "u", "", "user on the remote host (config: username)")
	cmd.Flags().StringVarP(&flags.RemoteHost, "remote-host", "r", "", "remote host name, address or ~/.ssh/config alias (config: remote_host)")
	cmd.Flags().Uint16Var(&flags.Port, "port", host.DefaultPort, "SSH port on the remote host (config: port)")

	_ = cmd.RegisterFlagCompletionFunc("remote-host", completeSSHHosts)
}

// Target merges the flags over cfg and validates the result. Flags only
// win when they were given on the command line.
func (f *TargetFlags) Target(cmd *cobra.Command, cfg *config.Config) (host.Target, error) {
	target := f.merge(cmd, cfg)
	if err := target.Validate(); err != nil {
		return host.Target{}, err
	}
	return target, nil
}

// merge is Target without validation, for commands that report an
// invalid target instead of failing on it.
func (f *TargetFlags) merge(cmd *cobra.Command, cfg *config.Config) host.Target {
	username, remoteHost, port := cfg.Username, cfg.RemoteHost, cfg.Port
	if cmd.Flags().Changed("username") {
		username = f.Username
	}
	if cmd.Flags().Changed("remote-host") {
		remoteHost = f.RemoteHost
	}
	if cmd.Flags().Changed("port") {
		port = f.Port
	}
	return host.NewTarget(username, remoteHost, port)
}

// completeSSHHosts offers ~/.ssh/config aliases for --remote-host.
func completeSSHHosts(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	entries, err := sshutil.ParseSSHConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return sshHostCompletions(entries, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func sshHostCompletions(entries []sshutil.SSHHostEntry, prefix string) []string {
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Alias, prefix) {
			out = append(out, fmt.Sprintf("%s\t%s", e.Alias, e.Description()))
		}
	}
	sort.Strings(out)
	return out
}
