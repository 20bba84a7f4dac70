package sshutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// SSHHostEntry represents a parsed host entry from SSH config.
type SSHHostEntry struct {
	Alias    string // The Host pattern (alias)
	Hostname string // The HostName value (actual host to connect to)
	User     string // The User value
	Port     string // The Port value
}

// Description returns a user-friendly description of the host.
func (h SSHHostEntry) Description() string {
	var parts []string

	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}
	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}
	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}

	if len(parts) == 0 {
		return h.Alias
	}
	return strings.Join(parts, ", ")
}

// ParseSSHConfig parses ~/.ssh/config and returns all concrete host entries.
func ParseSSHConfig() ([]SSHHostEntry, error) {
	return ParseSSHConfigFile(filepath.Join(homeDir(), ".ssh", "config"))
}

// ParseSSHConfigFile parses the specified SSH config file.
// Wildcard patterns are skipped. A missing file yields no entries.
func ParseSSHConfigFile(configPath string) ([]SSHHostEntry, error) {
	cfg, err := decodeSSHConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var hosts []SSHHostEntry
	seen := make(map[string]bool)

	for _, h := range cfg.Hosts {
		for _, pattern := range h.Patterns {
			alias := pattern.String()
			if strings.ContainsAny(alias, "*?!") || seen[alias] {
				continue
			}
			seen[alias] = true

			entry := SSHHostEntry{Alias: alias}
			entry.Hostname, _ = cfg.Get(alias, "HostName")
			entry.User, _ = cfg.Get(alias, "User")
			entry.Port, _ = cfg.Get(alias, "Port")
			hosts = append(hosts, entry)
		}
	}

	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].Alias < hosts[j].Alias
	})

	return hosts, nil
}

// ResolveHostName returns the HostName configured for alias in the SSH
// config at configPath, or "" if there is none.
func ResolveHostName(configPath, alias string) string {
	cfg, err := decodeSSHConfig(configPath)
	if err != nil {
		return ""
	}
	hn, _ := cfg.Get(alias, "HostName")
	return hn
}

func decodeSSHConfig(configPath string) (*ssh_config.Config, error) {
	content, err := preprocessSSHConfig(configPath)
	if err != nil {
		return nil, err
	}
	return ssh_config.Decode(bytes.NewReader(content))
}

// preprocessSSHConfig reads the SSH config and returns content up to the
// first Match directive, which the ssh_config decoder does not understand.
func preprocessSSHConfig(configPath string) ([]byte, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	for _, line := range lines {
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(trimmed, "match ") {
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), nil
}
