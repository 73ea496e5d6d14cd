// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchRecorder captures every OnChange invocation and signals arrival.
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]string
	arrived chan struct{}
	fail    error
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{arrived: make(chan struct{}, 16)}
}

func (r *batchRecorder) onChange(ctx context.Context, changed []string) error {
	r.mu.Lock()
	r.batches = append(r.batches, changed)
	r.mu.Unlock()
	r.arrived <- struct{}{}
	return r.fail
}

func (r *batchRecorder) waitForBatch(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("no callback arrived")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[len(r.batches)-1]
}

// startWatcher runs a watcher over dir with a short debounce and returns
// the recorder plus a stop function.
func startWatcher(t *testing.T, dir string, cfg Config) (*batchRecorder, func()) {
	t.Helper()

	rec := newBatchRecorder()
	cfg.BaseDir = dir
	if cfg.Debounce == 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	cfg.OnChange = rec.onChange
	if cfg.Stderr == nil {
		cfg.Stderr = &bytes.Buffer{}
	}

	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the event loop a beat to start draining before tests write.
	time.Sleep(50 * time.Millisecond)

	return rec, func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("tick"), 0o644))
}

func TestWatcherFiresOnMatchingWrite(t *testing.T) {
	dir := t.TempDir()
	rec, stop := startWatcher(t, dir, Config{Patterns: []string{"**/*.txt"}})
	defer stop()

	write(t, filepath.Join(dir, "a.txt"))

	batch := rec.waitForBatch(t)
	assert.Contains(t, batch, "a.txt")
}

func TestWatcherCoalescesABurstIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	rec, stop := startWatcher(t, dir, Config{Debounce: 200 * time.Millisecond})
	defer stop()

	write(t, filepath.Join(dir, "one"))
	write(t, filepath.Join(dir, "two"))
	write(t, filepath.Join(dir, "three"))

	batch := rec.waitForBatch(t)
	assert.Subset(t, batch, []string{"one", "two", "three"})

	rec.mu.Lock()
	count := len(rec.batches)
	rec.mu.Unlock()
	assert.Equal(t, 1, count, "a single burst must produce a single callback")
}

func TestWatcherBatchesAreSortedAndDeduplicated(t *testing.T) {
	dir := t.TempDir()
	rec, stop := startWatcher(t, dir, Config{Debounce: 200 * time.Millisecond})
	defer stop()

	write(t, filepath.Join(dir, "b"))
	write(t, filepath.Join(dir, "a"))
	write(t, filepath.Join(dir, "a"))

	batch := rec.waitForBatch(t)
	assert.IsIncreasing(t, batch)

	seen := map[string]int{}
	for _, p := range batch {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, "%q must appear once", p)
	}
}

func TestWatcherHonorsIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	rec, stop := startWatcher(t, dir, Config{Ignore: []string{"**/skip-*"}})
	defer stop()

	write(t, filepath.Join(dir, "skip-me"))
	write(t, filepath.Join(dir, "keep-me"))

	batch := rec.waitForBatch(t)
	assert.Contains(t, batch, "keep-me")
	assert.NotContains(t, batch, "skip-me")
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	rec, stop := startWatcher(t, dir, Config{Patterns: []string{"**/*.txt"}})
	defer stop()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fresh"), 0o755))
	// Let the create event register the new directory before writing into it.
	time.Sleep(150 * time.Millisecond)
	write(t, filepath.Join(dir, "fresh", "inner.txt"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("write inside the new directory never surfaced")
		case <-rec.arrived:
		}
		rec.mu.Lock()
		last := rec.batches[len(rec.batches)-1]
		rec.mu.Unlock()
		for _, p := range last {
			if p == filepath.ToSlash(filepath.Join("fresh", "inner.txt")) {
				return
			}
		}
	}
}

func TestWatcherCallbackErrorIsReportedNotFatal(t *testing.T) {
	dir := t.TempDir()
	stderr := &bytes.Buffer{}

	rec := newBatchRecorder()
	rec.fail = errors.New("command exploded")

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		OnChange: rec.onChange,
		Stderr:   stderr,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	write(t, filepath.Join(dir, "boom"))
	rec.waitForBatch(t)

	// The loop must survive a failing callback and keep dispatching.
	write(t, filepath.Join(dir, "after"))
	rec.waitForBatch(t)

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, stderr.String(), "command exploded")
}

func TestWatcherRunTwiceFails(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	assert.Error(t, w.Run(ctx))

	cancel()
	require.NoError(t, <-done)
}

func TestNewRejectsMalformedGlobs(t *testing.T) {
	_, err := New(Config{BaseDir: t.TempDir(), Patterns: []string{"[unterminated"}})
	require.Error(t, err)

	_, err = New(Config{BaseDir: t.TempDir(), Ignore: []string{"[also-bad"}})
	require.Error(t, err)
}

func TestCloseBeforeRunIsClean(t *testing.T) {
	w, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close must be idempotent")
}
