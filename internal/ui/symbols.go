package ui

// Unicode symbols for per-package status.
const (
	SymbolSuccess  = "✓" // Installed
	SymbolFail     = "✗" // Install attempted and failed
	SymbolPending  = "○" // Not started
	SymbolProgress = "◐" // Installing
	SymbolSkipped  = "⊘" // Never attempted
	SymbolWarning  = "!"
)
