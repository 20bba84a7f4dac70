// Package testing provides a fake exec.Runner for tests.
package testing

import (
	"context"
	"strings"
	"sync"

	"github.com/rileyhilliard/flatpak-sync/internal/exec"
)

// Call records one invocation of the fake.
type Call struct {
	Name        string
	Args        []string
	Interactive bool
}

// Line returns the call as a space-joined command line.
func (c Call) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the canned outcome of a call.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// FakeRunner answers calls by program name. Hooks, when set for a name,
// run before the canned result is returned and may replace it; they see
// the call's arguments so they can create files the real program would.
type FakeRunner struct {
	mu      sync.Mutex
	results map[string]Result
	hooks   map[string]func(call Call) (Result, bool)
	calls   []Call
}

var _ exec.Runner = (*FakeRunner)(nil)

// NewFakeRunner returns a runner where every program succeeds silently.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		results: make(map[string]Result),
		hooks:   make(map[string]func(call Call) (Result, bool)),
	}
}

// SetResult sets the canned result for program name.
func (f *FakeRunner) SetResult(name string, r Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = r
}

// SetHook runs hook for every call to program name. If hook returns
// false the canned result is used.
func (f *FakeRunner) SetHook(name string, hook func(call Call) (Result, bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[name] = hook
}

// Calls returns every recorded call in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls of program name.
func (f *FakeRunner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeRunner) Capture(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	r := f.call(Call{Name: name, Args: args})
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func (f *FakeRunner) Interactive(ctx context.Context, stdio exec.Stdio, name string, args ...string) (int, error) {
	r := f.call(Call{Name: name, Args: args, Interactive: true})
	if stdio.Stdout != nil && len(r.Stdout) > 0 {
		_, _ = stdio.Stdout.Write(r.Stdout)
	}
	if stdio.Stderr != nil && len(r.Stderr) > 0 {
		_, _ = stdio.Stderr.Write(r.Stderr)
	}
	return r.ExitCode, r.Err
}

func (f *FakeRunner) call(c Call) Result {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	hook := f.hooks[c.Name]
	result := f.results[c.Name]
	f.mu.Unlock()

	if hook != nil {
		if r, ok := hook(c); ok {
			return r
		}
	}
	return result
}
