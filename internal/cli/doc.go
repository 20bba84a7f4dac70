// Package cli implements the flatpak-sync command-line interface.
//
// Each Cobra command stays thin: it loads config, builds the collaborators
// (provisioner, session, orchestrator) and renders the result. The work
// itself lives in the internal packages.
//
// # Command Structure
//
//	flatpak-sync                  - Sync local applications to the remote host
//	flatpak-sync list             - Show local applications and the exclude list
//	flatpak-sync keygen           - Create and install the sync key
//	flatpak-sync doctor           - Check config, local tools, key and remote
//	flatpak-sync config init|set|path
//	flatpak-sync completion <shell>
//	flatpak-sync version
//
// # Flag Handling
//
// Global flags (--config, --json, --no-color, --verbose) live on the root
// command. Target flags (-u, -r, --port) override the config only when
// they are given on the command line.
//
// # Exit Codes
//
// 0 when every application installed, 1 when any failed or the run could
// not start, 2 for usage errors and 130 when an interactive picker was
// cancelled.
package cli
