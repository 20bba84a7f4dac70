package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/require"
)

// Tool is a local program a sync depends on.
type Tool struct {
	Name    string
	Purpose string
	Install string
}

var (
	toolFlatpak = Tool{
		Name:    "flatpak",
		Purpose: "lists the applications to sync",
		Install: "Install flatpak with your distribution's package manager",
	}
	toolSSHCopyID = Tool{
		Name:    "ssh-copy-id",
		Purpose: "authorizes the sync key on the remote host",
		Install: "Install the OpenSSH client (openssh-client or openssh-clients)",
	}
	toolSSHKeygen = Tool{
		Name:    "ssh-keygen",
		Purpose: "creates the sync key",
		Install: "Install the OpenSSH client, or set keys.generator to native",
	}
)

// LocalTools returns the programs this machine needs for generator.
func LocalTools(generator string) []Tool {
	tools := []Tool{toolFlatpak, toolSSHCopyID}
	if generator == "" || generator == keys.GeneratorSSHKeygen {
		tools = append(tools, toolSSHKeygen)
	}
	return tools
}

// LocalToolCheck verifies a program is on this machine's PATH.
type LocalToolCheck struct {
	Tool     Tool
	LookPath require.LookPathFunc
}

func (c *LocalToolCheck) Name() string     { return "local_" + c.Tool.Name }
func (c *LocalToolCheck) Category() string { return CategoryLocal }

func (c *LocalToolCheck) Run(ctx context.Context) CheckResult {
	result := require.CheckLocal(c.LookPath, c.Tool.Name)
	if !result.Satisfied {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s not found (%s)", c.Tool.Name, c.Tool.Purpose),
			Suggestion: c.Tool.Install,
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: %s", c.Tool.Name, result.Path),
	}
}

func (c *LocalToolCheck) Fix(ctx context.Context) error {
	return nil // Installing system packages is left to the user
}

// NewLocalChecks creates a check per program the sync needs locally.
func NewLocalChecks(generator string, lookPath require.LookPathFunc) []Check {
	tools := LocalTools(generator)
	checks := make([]Check, len(tools))
	for i, tool := range tools {
		checks[i] = &LocalToolCheck{Tool: tool, LookPath: lookPath}
	}
	return checks
}
