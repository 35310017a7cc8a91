package watermark

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileMeansNoPriorState(t *testing.T) {
	t.Parallel()

	tracker := New(filepath.Join(t.TempDir(), DefaultFileName))
	ts, ok, err := tracker.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok || !ts.IsZero() {
		t.Fatalf("expected no watermark, got %v (ok=%v)", ts, ok)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	tracker := New(filepath.Join(t.TempDir(), DefaultFileName))
	want := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	if err := tracker.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := tracker.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("expected a watermark after Save")
	}
	if !got.Equal(want) {
		t.Fatalf("round trip mismatch: got %v want %v", got, want)
	}
}

func TestLoadGarbageMeansNoPriorState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte("not a timestamp"), 0o600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	_, ok, err := New(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Fatal("garbage watermark should be treated as no prior state")
	}
}

func TestClearRemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	tracker := New(path)
	if err := tracker.Save(time.Now()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := tracker.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := tracker.Load(); ok {
		t.Fatal("expected no watermark after Clear")
	}
	// Clearing twice is fine.
	if err := tracker.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
}
