package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTempStoreAcquireRelease(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "tmp")
	store, err := NewTempStore(nil, dir)
	if err != nil {
		t.Fatalf("NewTempStore: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("temp dir not created: %v", err)
	}

	art, err := store.Acquire("mp3")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if filepath.Dir(art.Path) != store.Dir() || !strings.HasSuffix(art.Path, ".mp3") {
		t.Fatalf("unexpected artifact path %q", art.Path)
	}
	if err := os.WriteFile(art.Path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	art.Release()
	art.Release()
	if _, err := os.Stat(art.Path); !os.IsNotExist(err) {
		t.Fatalf("artifact should be removed, stat err = %v", err)
	}

	var nilArt *Artifact
	nilArt.Release()
}

func TestTempStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewTempStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewTempStore: %v", err)
	}
	for _, name := range []string{"../escape", "/abs/path", "a/b", ".."} {
		if _, err := store.pathFor(name); err == nil {
			t.Fatalf("pathFor(%q) should fail", name)
		}
	}
}

func TestTempStoreSweep(t *testing.T) {
	t.Parallel()

	store, err := NewTempStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewTempStore: %v", err)
	}
	stale := filepath.Join(store.Dir(), "stale.bin")
	fresh := filepath.Join(store.Dir(), "fresh.bin")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := store.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh file should remain")
	}
}

func TestTempStoreSweeperLifecycle(t *testing.T) {
	t.Parallel()

	store, err := NewTempStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewTempStore: %v", err)
	}
	if err := store.StartSweeper(0, time.Hour); err == nil {
		t.Fatal("zero interval should be rejected")
	}
	if err := store.StartSweeper(time.Minute, time.Hour); err != nil {
		t.Fatalf("StartSweeper: %v", err)
	}
	if err := store.StartSweeper(time.Minute, time.Hour); err != nil {
		t.Fatalf("second StartSweeper should be a no-op: %v", err)
	}
	store.StopSweeper()
	store.StopSweeper()
}
