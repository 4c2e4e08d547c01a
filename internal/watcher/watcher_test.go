package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, source string, rebuild RebuildFunc) *Watcher {
	t.Helper()
	w, err := NewWatcher(source, rebuild, WithDebounce(100*time.Millisecond), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebouncesSourceWrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "manual.md")
	writeFile(t, src, "v0")

	var calls atomic.Int32
	w := startWatcher(t, src, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	for _, v := range []string{"v1", "v2", "v3"} {
		writeFile(t, src, v)
	}
	if !waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 1 }) {
		t.Fatal("no rebuild after source change")
	}
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("rebuilds = %d, want 1 for a burst of writes", got)
	}
	if n, err := w.Rebuilds(); n != 1 || err != nil {
		t.Errorf("Rebuilds() = %d, %v", n, err)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "manual.md")
	writeFile(t, src, "v0")

	var calls atomic.Int32
	startWatcher(t, src, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	writeFile(t, filepath.Join(dir, "notes.md"), "x")
	time.Sleep(400 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("rebuilds = %d, want 0", got)
	}
}

func TestWatcher_ImageChangesRebuild(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "manual.md")
	writeFile(t, src, "v0")
	images := filepath.Join(dir, "manual_images")
	if err := os.Mkdir(images, 0755); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	startWatcher(t, src, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	writeFile(t, filepath.Join(images, "fig1.png"), "png")
	if !waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 1 }) {
		t.Error("image change did not trigger a rebuild")
	}
}

func TestWatcher_SerializesRebuilds(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "manual.md")
	writeFile(t, src, "v0")

	release := make(chan struct{})
	started := make(chan struct{}, 10)
	var running, maxRunning, calls atomic.Int32
	w := startWatcher(t, src, func(ctx context.Context) error {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		calls.Add(1)
		started <- struct{}{}
		<-release
		running.Add(-1)
		return nil
	})

	w.Trigger()
	<-started
	for i := 0; i < 5; i++ {
		w.Trigger()
	}
	close(release)
	if !waitFor(t, 2*time.Second, func() bool { return calls.Load() == 2 }) {
		t.Fatalf("rebuilds = %d, want 2", calls.Load())
	}
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("rebuilds = %d, want 2 (triggers during a rebuild coalesce)", got)
	}
	if maxRunning.Load() != 1 {
		t.Errorf("max concurrent rebuilds = %d", maxRunning.Load())
	}
}

func TestWatcher_SkipsMissingSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "manual.md")

	var calls atomic.Int32
	w := startWatcher(t, src, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	w.Trigger()
	time.Sleep(200 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("rebuild ran without a source file")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "manual.md")
	writeFile(t, src, "v0")
	w, err := NewWatcher(src, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if w.Source() != src {
		t.Errorf("Source() = %q, want %q", w.Source(), src)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
	cancel()
	w.Stop()
}
