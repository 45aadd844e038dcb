package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcher_ReloadsRecordsWrittenElsewhere(t *testing.T) {
	dir := t.TempDir()
	clock := &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	watched := openTestManager(t, dir, clock)
	writer := openTestManager(t, dir, clock)

	w, err := NewWatcher(watched, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	reloads := make(chan error, 16)
	w.reloaded = func(err error) { reloads <- err }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	if _, err := writer.Create("Alice", "Berlin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, "Alice to appear", func() bool { return watched.Exists("Alice") })

	if err := writer.Delete("Alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitFor(t, "Alice to disappear", func() bool { return !watched.Exists("Alice") })

	select {
	case err := <-reloads:
		if err != nil {
			t.Errorf("reload error: %v", err)
		}
	default:
		t.Error("reload hook never called")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	clock := &mockClock{now: time.Now()}
	m := openTestManager(t, dir, clock)

	w, err := NewWatcher(m, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	reloads := make(chan error, 4)
	w.reloaded = func(err error) { reloads <- err }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloads:
		t.Error("reloaded for a non-record file")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestNewWatcher_MissingDir(t *testing.T) {
	m := openTestManager(t, t.TempDir(), &mockClock{})
	m.dir = filepath.Join(m.dir, "gone")
	if _, err := NewWatcher(m, 0); err == nil {
		t.Error("expected error for missing directory")
	}
}
