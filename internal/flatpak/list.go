package flatpak

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/exec"
)

// ListArgs is the local command that enumerates installed applications.
var ListArgs = []string{"flatpak", "list", "--app", "--columns=application,options"}

// ListInstalled enumerates locally installed applications.
func ListInstalled(ctx context.Context, runner exec.Runner) ([]Package, error) {
	if runner == nil {
		runner = exec.Local{}
	}

	stdout, stderr, code, err := runner.Capture(ctx, ListArgs[0], ListArgs[1:]...)
	if err != nil {
		if exec.IsMissingProgram(err) {
			return nil, errors.WrapWithCode(err, errors.ErrList,
				"Can't find flatpak on this machine",
				"Install flatpak, or run flatpak-sync where your applications live.")
		}
		return nil, errors.WrapWithCode(err, errors.ErrList,
			"Couldn't list installed flatpaks",
			"Try running: "+strings.Join(ListArgs, " "))
	}
	if code != 0 {
		return nil, errors.New(errors.ErrList,
			fmt.Sprintf("Couldn't list installed flatpaks (exit %d): %s", code, strings.TrimSpace(string(stderr))),
			"Try running: "+strings.Join(ListArgs, " "))
	}

	pkgs, err := ParseList(bytes.NewReader(stdout))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrList,
			"Couldn't read the flatpak list output",
			"Try running: "+strings.Join(ListArgs, " "))
	}
	return pkgs, nil
}

// ParseList parses tab-separated "application\toptions" lines.
// Lines with fewer than two fields, or an empty application, are skipped.
func ParseList(r io.Reader) ([]Package, error) {
	var pkgs []Package

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			continue
		}
		pkgs = append(pkgs, NewPackage(name, fields[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pkgs, nil
}
