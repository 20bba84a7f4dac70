package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/util"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the project-local config file name.
	ConfigFileName = "flatpak-sync.yaml"
	// GlobalConfigDir is the directory for the user config, relative to home.
	GlobalConfigDir = ".config/flatpak-sync"
	// GlobalConfigFile is the user config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override, e.g. FLATPAK_SYNC_PORT.
	EnvPrefix = "FLATPAK_SYNC"
)

// Load reads config from the specified path. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if os.IsNotExist(err) || stderrors.As(err, &notFound) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'flatpak-sync config init' to create one, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. flatpak-sync.yaml in the current directory
// 3. ~/.config/flatpak-sync/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, ConfigFileName)
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}

	if global := GlobalPath(); global != "" {
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// GlobalPath returns ~/.config/flatpak-sync/config.yaml, or "" when the
// home directory is unknown.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// Resolve finds and loads the config. Without a config file it returns
// the defaults with environment overrides applied. The returned path is
// "" in that case.
func Resolve(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		cfg, err := parseConfig(newViper(), "environment")
		return cfg, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// defaultValues maps every config key to its default.
func defaultValues() map[string]interface{} {
	d := DefaultConfig()
	return map[string]interface{}{
		"version":                  d.Version,
		"username":                 d.Username,
		"remote_host":              d.RemoteHost,
		"port":                     d.Port,
		"key_dir":                  d.KeyDir,
		"exclude":                  d.Exclude,
		"connect_timeout":          d.ConnectTimeout,
		"install_timeout":          d.InstallTimeout,
		"strict_host_key_checking": d.StrictHostKeyChecking,
		"known_hosts":              d.KnownHosts,
		"keys.generator":           d.Keys.Generator,
		"lock.timeout":             d.Lock.Timeout,
		"lock.stale":               d.Lock.Stale,
		"output.color":             d.Output.Color,
	}
}

// Keys returns every config key in sorted order.
func Keys() []string {
	defaults := defaultValues()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper) {
	for k, val := range defaultValues() {
		v.SetDefault(k, val)
	}
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, source string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the values in "+source)
	}

	cfg.Exclude = util.SplitList(cfg.Exclude...)
	cfg.KeyDir = Expand(cfg.KeyDir)
	cfg.KnownHosts = Expand(cfg.KnownHosts)

	return cfg, nil
}
