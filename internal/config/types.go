package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the flatpak-sync configuration file. Every field can
// also be set through a FLATPAK_SYNC_* environment variable or a flag.
type Config struct {
	Version int `yaml:"version" mapstructure:"version" validate:"gte=0"`

	// Username and RemoteHost name the default target.
	Username   string `yaml:"username" mapstructure:"username"`
	RemoteHost string `yaml:"remote_host" mapstructure:"remote_host"`
	Port       uint16 `yaml:"port" mapstructure:"port" validate:"required"`

	// KeyDir holds the per-host sync keys. Supports ~ and ${HOME}.
	KeyDir string `yaml:"key_dir" mapstructure:"key_dir" validate:"required"`

	// Exclude lists application IDs that are never synced. An entry of the
	// form NAME@user or NAME@system excludes only that scope.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"gt=0"`

	// InstallTimeout bounds each remote install. Zero means no limit.
	InstallTimeout time.Duration `yaml:"install_timeout" mapstructure:"install_timeout" validate:"gte=0"`

	// StrictHostKeyChecking verifies the remote host key against known_hosts.
	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`
	KnownHosts            string `yaml:"known_hosts" mapstructure:"known_hosts"`

	Keys   KeysConfig   `yaml:"keys" mapstructure:"keys"`
	Lock   LockConfig   `yaml:"lock" mapstructure:"lock"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

// KeysConfig controls how sync keys are created.
type KeysConfig struct {
	// Generator is "ssh-keygen" or "native".
	Generator string `yaml:"generator" mapstructure:"generator" validate:"oneof=ssh-keygen native"`
}

// LockConfig controls the local lock that serializes key provisioning per host.
type LockConfig struct {
	// Timeout is how long to wait for another run's provisioning to finish.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// Stale is when to consider a lock stale (holder probably crashed).
	Stale time.Duration `yaml:"stale" mapstructure:"stale" validate:"gt=0"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	// "auto" disables color when output is piped.
	Color string `yaml:"color" mapstructure:"color" validate:"oneof=auto always never"`
}

// DefaultKeyDir is the key directory used when none is configured.
const DefaultKeyDir = "~/.config/flatpak-sync/sync-keys"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:               CurrentConfigVersion,
		Port:                  22,
		KeyDir:                DefaultKeyDir,
		Exclude:               []string{},
		ConnectTimeout:        10 * time.Second,
		InstallTimeout:        0,
		StrictHostKeyChecking: true,
		Keys: KeysConfig{
			Generator: "ssh-keygen",
		},
		Lock: LockConfig{
			Timeout: 2 * time.Minute,
			Stale:   10 * time.Minute,
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}
