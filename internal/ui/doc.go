// Package ui provides terminal output for flatpak-sync: status symbols,
// colors, a spinner per package while a sync runs, the end-of-run report,
// the package table and the interactive package picker.
//
// Styling uses Lip Gloss with ANSI colors so output follows the terminal
// theme. SetColorMode applies the output.color setting; DisableColors is
// what --no-color calls.
//
// # Sync progress
//
// SyncProgress implements sync.Observer and prints one line per package:
//
//	✓ [1/3] org.gnome.Calculator 2.1s
//	✗ [2/3] org.example.Broken 0.4s
//	    error: No remote refs found similar to 'org.example.Broken'
//	⊘ [3/3] org.example.Later
//	    skipped: session lost
//
// On a terminal the current package animates; piped output only gets the
// final lines.
package ui
