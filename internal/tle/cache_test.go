package tle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheWriteAndLoadLatest(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "tle"), 5)

	t1 := time.Unix(1_700_000_000, 0)
	t2 := t1.Add(time.Hour)
	if err := c.Write([]byte("old"), t1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Write([]byte("new"), t2); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "new" || !ts.Equal(t2) {
		t.Errorf("LoadLatest = %q @ %v, want \"new\" @ %v", data, ts, t2)
	}
}

func TestCacheEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 5)
	if _, _, err := c.LoadLatest(); !errors.Is(err, ErrNoCache) {
		t.Errorf("LoadLatest on missing dir: got %v, want ErrNoCache", err)
	}
}

func TestCachePrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		if err := c.Write([]byte("x"), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	// Unrelated files are left alone.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := c.listFiles()
	if err != nil {
		t.Fatalf("listFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d cache files after prune, want 2", len(files))
	}
	if !files[0].ts.Equal(base.Add(2*time.Minute)) || !files[1].ts.Equal(base.Add(3*time.Minute)) {
		t.Errorf("wrong files kept: %v, %v", files[0].ts, files[1].ts)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}

func TestCacheLoadFresh(t *testing.T) {
	c := NewCache(t.TempDir(), 5)
	ts := time.Unix(1_700_000_000, 0)
	if err := c.Write([]byte("data"), ts); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, _, err := c.LoadFresh(time.Hour, ts.Add(30*time.Minute)); err != nil {
		t.Errorf("fresh file rejected: %v", err)
	}
	if _, _, err := c.LoadFresh(time.Hour, ts.Add(2*time.Hour)); !errors.Is(err, ErrNoCache) {
		t.Errorf("stale file: got %v, want ErrNoCache", err)
	}
	if _, _, err := c.LoadFresh(0, ts); !errors.Is(err, ErrNoCache) {
		t.Errorf("zero max age: got %v, want ErrNoCache", err)
	}
}
