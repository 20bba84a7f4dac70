// Package sync drives one end-to-end run: provision a key if needed,
// connect, install each selected package in order, and disconnect.
package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/exec"
	"github.com/rileyhilliard/flatpak-sync/internal/flatpak"
	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/internal/session"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
)

// CredentialSource provides the key for a target. *keys.Provisioner
// implements it.
type CredentialSource interface {
	Provision(ctx context.Context, target host.Target, force bool) (keys.Credential, error)
}

// Remote is the connection the orchestrator installs over.
// *session.Session implements it.
type Remote interface {
	Connect(ctx context.Context, target host.Target, cred keys.Credential) error
	Execute(ctx context.Context, cmd string) (session.Output, error)
	Disconnect() error
}

// Orchestrator runs syncs. Installs are strictly sequential: flatpak on
// the remote side holds a lock per installation, so parallel installs
// would only contend.
type Orchestrator struct {
	Provisioner CredentialSource
	Session     Remote
	Logger      logger.Logger

	// InstallTimeout bounds each install. Zero means no limit. An install
	// that times out loses the session.
	InstallTimeout time.Duration

	Observer Observer
}

// Run syncs the selected packages in pkgs to target.
//
// Provisioning and connection failures return a nil report and an error
// with code PROVISION or CONNECT; nothing was attempted. Once connected,
// Run always returns a report with one outcome per selected package and a
// nil error, even when installs fail.
func (o *Orchestrator) Run(ctx context.Context, target host.Target, pkgs []flatpak.Package) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:    uuid.NewString(),
		Target:   target,
		Outcomes: []Outcome{},
	}
	log := logger.OrDefault(o.Logger)

	selected := flatpak.Selected(pkgs)
	if len(selected) == 0 {
		log.Info("No packages selected, nothing to sync")
		return report, nil
	}
	log.Debug("run %s: %d of %d packages for %s", report.RunID, len(selected), len(pkgs), target)

	cred, err := o.credential(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := o.Session.Connect(ctx, target, cred); err != nil {
		return nil, connectError(target, err)
	}
	log.Info("Connected to %s", target)

	progress := Progress{Total: len(selected)}
	skip := ""
	for _, pkg := range selected {
		var outcome Outcome
		if skip != "" {
			outcome = Outcome{Package: pkg.Name, Diagnostic: skip}
		} else {
			o.observer().PackageStarted(pkg, progress)

			var sessionErr error
			outcome, sessionErr = o.install(ctx, pkg)
			if sessionErr != nil {
				skip = DiagnosticSessionLost
				if ctx.Err() != nil {
					skip = DiagnosticCancelled
				}
				report.Warning = sessionErr
				log.Error("Session lost while installing %s: %v", pkg.Name, sessionErr)
			}
		}

		report.Outcomes = append(report.Outcomes, outcome)
		progress.Done++
		if !outcome.Succeeded {
			progress.Failed++
		}
		o.observer().PackageFinished(outcome, progress)
	}

	if err := o.Session.Disconnect(); err != nil {
		log.Warn("Disconnect from %s failed: %v", target, err)
		report.Warning = stderrors.Join(report.Warning, err)
	}

	report.Duration = time.Since(start)
	installed, failed, skipped := report.Counts()
	log.Debug("run %s finished: %d installed, %d failed, %d skipped", report.RunID, installed, failed, skipped)
	return report, nil
}

// credential provisions a key for target, reusing an existing one.
func (o *Orchestrator) credential(ctx context.Context, target host.Target) (keys.Credential, error) {
	cred, err := o.Provisioner.Provision(ctx, target, false)
	if err == nil {
		return cred, nil
	}
	if existing, ok := keys.IsAlreadyProvisioned(err); ok {
		logger.OrDefault(o.Logger).Debug("reusing key %s", existing.KeyFile)
		return existing, nil
	}
	return keys.Credential{}, errors.WrapWithCode(err, errors.ErrProvision,
		fmt.Sprintf("Couldn't set up a sync key for %s", target.Host),
		fmt.Sprintf("Retry with: flatpak-sync keygen -u %s -r %s --port %d", target.Username, target.Host, target.Port))
}

// install runs one package install. The returned error is non-nil only
// for session-level failures, which end the run.
func (o *Orchestrator) install(ctx context.Context, pkg flatpak.Package) (Outcome, error) {
	outcome := Outcome{Package: pkg.Name}

	cmd, err := flatpak.InstallCommand(pkg)
	if err != nil {
		outcome.Diagnostic = "invalid package name: " + errors.MessageOf(err)
		return outcome, nil
	}

	installCtx := ctx
	if o.InstallTimeout > 0 {
		var cancel context.CancelFunc
		installCtx, cancel = context.WithTimeout(ctx, o.InstallTimeout)
		defer cancel()
	}

	logger.OrDefault(o.Logger).Info("Installing %s (%s)", pkg.Name, pkg.Scope)
	outcome.Attempted = true
	out, err := o.Session.Execute(installCtx, cmd)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			outcome.Diagnostic = "cancelled"
		case stderrors.Is(err, context.DeadlineExceeded):
			outcome.Diagnostic = fmt.Sprintf("timed out after %s", o.InstallTimeout)
		default:
			outcome.Diagnostic = "session error: " + rootCause(err).Error()
		}
		return outcome, err
	}

	if out.ExitCode != 0 {
		outcome.Diagnostic = exec.Diagnose(cmd, string(out.Stderr), out.ExitCode)
		return outcome, nil
	}
	outcome.Succeeded = true
	return outcome, nil
}

func (o *Orchestrator) observer() Observer {
	if o.Observer != nil {
		return o.Observer
	}
	return ObserverFuncs{}
}

// connectError turns a session connect failure into a structured error
// whose suggestion depends on the failing stage.
func connectError(target host.Target, err error) error {
	if stderrors.Is(err, session.ErrNoCredential) {
		return errors.WrapWithCode(err, errors.ErrConnect,
			fmt.Sprintf("No usable sync key for %s", target.Host),
			"Recreate it with: flatpak-sync keygen --force -u "+target.Username+" -r "+target.Host)
	}

	var connErr *session.ConnectError
	if !stderrors.As(err, &connErr) {
		return errors.WrapWithCode(err, errors.ErrConnect, fmt.Sprintf("Couldn't connect to %s", target), "")
	}

	switch connErr.Stage {
	case sshutil.StageAuth:
		return errors.WrapWithCode(err, errors.ErrConnect,
			fmt.Sprintf("%s rejected the sync key", target),
			"The key may not be authorized yet. Reinstall it with: flatpak-sync keygen --force -u "+
				target.Username+" -r "+target.Host)
	case sshutil.StageHostKey:
		suggestion := "Verify the host key in ~/.ssh/known_hosts"
		var mismatch *sshutil.HostKeyMismatchError
		var unknown *sshutil.UnknownHostError
		switch {
		case stderrors.As(err, &mismatch):
			suggestion = mismatch.Suggestion()
		case stderrors.As(err, &unknown):
			suggestion = fmt.Sprintf("Connect once with: ssh -p %d %s\n  and accept the host key, or set strict_host_key_checking: false",
				target.Port, target.Destination())
		}
		return errors.WrapWithCode(err, errors.ErrConnect,
			fmt.Sprintf("Couldn't verify the host key of %s", target.Host), suggestion)
	default:
		return errors.WrapWithCode(err, errors.ErrConnect,
			fmt.Sprintf("Can't reach %s", target.Address()),
			fmt.Sprintf("Check the host is up and SSH is listening on port %d", target.Port))
	}
}

func rootCause(err error) error {
	for {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
