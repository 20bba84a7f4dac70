package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer is a bytes.Buffer safe for the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewSpinner(t *testing.T) {
	s := NewSpinner(&bytes.Buffer{}, "Installing")
	assert.Equal(t, "Installing", s.Label())
	assert.Equal(t, SpinnerPending, s.State())
	assert.Zero(t, s.Elapsed())
}

func TestSpinner_NotAnimatedWritesOnlyFinalLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "org.app.One")

	s.Start()
	assert.Equal(t, SpinnerInProgress, s.State())
	assert.Empty(t, buf.String())

	s.Success()
	assert.Equal(t, SpinnerSuccess, s.State())
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, SymbolSuccess+" org.app.One "), out)
	assert.NotContains(t, out, "\r")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestSpinner_AnimatedClearsFrames(t *testing.T) {
	buf := &syncBuffer{}
	s := NewSpinner(buf, "org.app.One")
	s.SetAnimate(true)

	s.Start()
	time.Sleep(3 * spinnerInterval)
	s.Fail("error: boom")

	out := buf.String()
	assert.Contains(t, out, "org.app.One...")
	assert.Contains(t, out, "\r")
	assert.Contains(t, out, SymbolFail+" org.app.One")
	assert.Contains(t, out, "    error: boom\n")
	assert.Equal(t, SpinnerFailed, s.State())
}

func TestSpinner_StopKeepsState(t *testing.T) {
	s := NewSpinner(&syncBuffer{}, "x")
	s.SetAnimate(true)
	s.Start()
	s.Stop()
	s.Stop()

	assert.Equal(t, SpinnerInProgress, s.State())
}

func TestSpinner_SkipOmitsTiming(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "org.app.Two")
	s.Skip("skipped: session lost")

	assert.Equal(t, SymbolSkipped+" org.app.Two\n    skipped: session lost\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", formatDuration(50*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
}
