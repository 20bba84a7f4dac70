package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"gopkg.in/yaml.v3"
)

const fileHeader = `# flatpak-sync configuration
# Every key can be overridden with FLATPAK_SYNC_<KEY>, e.g. FLATPAK_SYNC_REMOTE_HOST.
# Nested keys use an underscore: FLATPAK_SYNC_LOCK_STALE=15m
`

// listKeys are written as YAML sequences by SetValue.
var listKeys = map[string]bool{"exclude": true}

// Marshal renders cfg as YAML with the standard header.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(toFile(cfg)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()
	return buf.Bytes(), nil
}

// WriteFile writes cfg to path, creating parent directories. An existing
// file is only replaced when force is set.
func WriteFile(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrConfig,
				"Config file already exists: "+path,
				"Use --force to overwrite it")
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't render config", "")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't create config directory "+filepath.Dir(path),
			"Check directory permissions")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write config file "+path,
			"Check file permissions")
	}
	return nil
}

// SetValue sets a dotted key such as "lock.stale" in the config file at
// path. It preserves the existing YAML structure and comments. Keys under
// listKeys take a comma-separated value.
func SetValue(path, key, value string) error {
	if _, ok := defaultValues()[key]; !ok {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown config key %q", key),
			"Valid keys: "+strings.Join(Keys(), ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file "+path,
			"Run 'flatpak-sync config init' first")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to parse config file "+path,
			"Check the YAML syntax")
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return errors.New(errors.ErrConfig,
			"Expected a mapping at the top of "+path,
			"Recreate it with 'flatpak-sync config init --force'")
	}

	node := root.Content[0]
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		child := findMapValue(node, part)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			node.Content = append(node.Content, scalar(part), child)
		}
		if child.Kind != yaml.MappingNode {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s in %s is not a mapping", part, path),
				"Fix the file by hand or recreate it")
		}
		node = child
	}

	leaf := parts[len(parts)-1]
	newValue := scalar(value)
	newValue.Tag = ""
	if listKeys[key] {
		newValue = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				newValue.Content = append(newValue.Content, scalar(item))
			}
		}
	}

	if existing := findMapValue(node, leaf); existing != nil {
		// Keep comments attached to the old value.
		newValue.HeadComment = existing.HeadComment
		newValue.LineComment = existing.LineComment
		*existing = *newValue
	} else {
		node.Content = append(node.Content, scalar(leaf), newValue)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// fileConfig mirrors Config with durations as strings so the written
// file reads "10s" rather than nanoseconds.
type fileConfig struct {
	Version               int            `yaml:"version"`
	Username              string         `yaml:"username"`
	RemoteHost            string         `yaml:"remote_host"`
	Port                  uint16         `yaml:"port"`
	KeyDir                string         `yaml:"key_dir"`
	Exclude               []string       `yaml:"exclude"`
	ConnectTimeout        string         `yaml:"connect_timeout"`
	InstallTimeout        string         `yaml:"install_timeout"`
	StrictHostKeyChecking bool           `yaml:"strict_host_key_checking"`
	KnownHosts            string         `yaml:"known_hosts,omitempty"`
	Keys                  KeysConfig     `yaml:"keys"`
	Lock                  fileLockConfig `yaml:"lock"`
	Output                OutputConfig   `yaml:"output"`
}

type fileLockConfig struct {
	Timeout string `yaml:"timeout"`
	Stale   string `yaml:"stale"`
}

func toFile(cfg *Config) fileConfig {
	exclude := cfg.Exclude
	if exclude == nil {
		exclude = []string{}
	}
	return fileConfig{
		Version:               cfg.Version,
		Username:              cfg.Username,
		RemoteHost:            cfg.RemoteHost,
		Port:                  cfg.Port,
		KeyDir:                cfg.KeyDir,
		Exclude:               exclude,
		ConnectTimeout:        cfg.ConnectTimeout.String(),
		InstallTimeout:        cfg.InstallTimeout.String(),
		StrictHostKeyChecking: cfg.StrictHostKeyChecking,
		KnownHosts:            cfg.KnownHosts,
		Keys:                  cfg.Keys,
		Lock: fileLockConfig{
			Timeout: cfg.Lock.Timeout.String(),
			Stale:   cfg.Lock.Stale.String(),
		},
		Output: cfg.Output,
	}
}
