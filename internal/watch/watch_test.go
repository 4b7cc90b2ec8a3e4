package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestWatcher_DebouncesMarkdownChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	sub := filepath.Join(dir, "quire")
	require.NoError(t, os.Mkdir(sub, 0o755))

	batches := make(chan []string, 4)
	w, err := New([]string{dir}, 50*time.Millisecond, zaptest.NewLogger(t), func(_ context.Context, paths []string) {
		batches <- paths
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	a := filepath.Join(dir, "f1r.md")
	b := filepath.Join(sub, "f2v.md")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(a, []byte("one again"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	got := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case batch := <-batches:
			assert.IsNonDecreasing(t, batch)
			for _, p := range batch {
				got[p] = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for changes, got %v", got)
		}
	}
	assert.Equal(t, map[string]bool{a: true, b: true}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWatcher_IgnoresSkippedDirectories(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	for _, name := range []string{"vendor", "node_modules", ".drafts"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}

	batches := make(chan []string, 8)
	w, err := New([]string{dir}, 50*time.Millisecond, zaptest.NewLogger(t), func(_ context.Context, paths []string) {
		batches <- paths
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor", "f3r.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "f3v.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".drafts", "f4r.md"), []byte("x"), 0o644))
	top := filepath.Join(dir, "f1r.md")
	require.NoError(t, os.WriteFile(top, []byte("one"), 0o644))

	var got []string
	deadline := time.After(5 * time.Second)
	for len(got) == 0 {
		select {
		case batch := <-batches:
			got = append(got, batch...)
		case <-deadline:
			t.Fatal("timed out waiting for changes")
		}
	}
	select {
	case batch := <-batches:
		got = append(got, batch...)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, []string{top}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNew_FailsForMissingDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, 0, nil, func(context.Context, []string) {})
	assert.Error(t, err)
}
