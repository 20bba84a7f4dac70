package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
)

// ConfigCheck verifies the config file, if any, loads and validates.
// Running without a config file is fine.
type ConfigCheck struct {
	ConfigPath string // Explicit path, or empty to search
}

func (c *ConfigCheck) Name() string     { return "config_file" }
func (c *ConfigCheck) Category() string { return CategoryConfig }

func (c *ConfigCheck) Run(ctx context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: "Check the --config path, or run 'flatpak-sync config init' to create a config",
		}
	}

	if path == "" {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No config file, using defaults and FLATPAK_SYNC_* environment",
		}
	}

	cfg, err := config.Load(path)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: %s", path, errors.MessageOf(err)),
			Suggestion: "Fix the file, or change single keys with 'flatpak-sync config set'",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Config file: " + path,
	}
}

func (c *ConfigCheck) Fix(ctx context.Context) error {
	return nil // Config errors require manual intervention
}

// TargetCheck verifies a remote host and user are set and well formed.
type TargetCheck struct {
	Target host.Target

	// SSHConfigPath is the ssh_config consulted for HostName aliases.
	// Empty means ~/.ssh/config.
	SSHConfigPath string
}

func (c *TargetCheck) Name() string     { return "target" }
func (c *TargetCheck) Category() string { return CategoryConfig }

func (c *TargetCheck) Run(ctx context.Context) CheckResult {
	if err := c.Target.Validate(); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: "Pass -u and -r, or run: flatpak-sync config set remote_host <host>",
		}
	}

	msg := "Target: " + c.Target.String()
	configPath := c.SSHConfigPath
	if configPath == "" {
		configPath = sshutil.ExpandPath("~/.ssh/config")
	}
	if hn := sshutil.ResolveHostName(configPath, c.Target.Host); hn != "" && hn != c.Target.Host {
		msg += fmt.Sprintf(" (HostName %s from ssh config)", hn)
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: msg,
	}
}

func (c *TargetCheck) Fix(ctx context.Context) error {
	return nil
}

// NewConfigChecks creates the config and target checks.
func NewConfigChecks(configPath string, target host.Target) []Check {
	return []Check{
		&ConfigCheck{ConfigPath: configPath},
		&TargetCheck{Target: target},
	}
}
