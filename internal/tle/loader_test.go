package tle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.tle")
	if err := os.WriteFile(path, []byte(issTLE+starlinkTLE), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := NewLoader(LoaderConfig{File: path}, nil, nil, testLogger).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Source != "file" {
		t.Errorf("Source = %q, want file", cat.Source)
	}
	if len(cat.Entries) != 2 {
		t.Errorf("got %d entries, want 2", len(cat.Entries))
	}
}

func TestLoaderFileMissing(t *testing.T) {
	l := NewLoader(LoaderConfig{File: filepath.Join(t.TempDir(), "nope.tle")}, nil, nil, testLogger)
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoaderNoEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tle")
	if err := os.WriteFile(path, []byte("not a catalog\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewLoader(LoaderConfig{File: path}, nil, nil, testLogger).Load(context.Background())
	if !errors.Is(err, ErrNoEntries) {
		t.Fatalf("got %v, want ErrNoEntries", err)
	}
}

// TestLoaderFetchThenCache verifies a fetched catalog is cached and reused
// on the next load while it is fresh.
func TestLoaderFetchThenCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(issTLE))
	}))
	defer server.Close()

	cache := NewCache(t.TempDir(), 5)
	now := time.Unix(1_700_000_000, 0)

	l := NewLoader(LoaderConfig{MaxAge: time.Hour}, NewFetcher(server.URL, testLogger), cache, testLogger)
	l.now = func() time.Time { return now }

	cat, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if cat.Source != "fetch" {
		t.Errorf("first Source = %q, want fetch", cat.Source)
	}

	now = now.Add(10 * time.Minute)
	cat, err = l.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if cat.Source != "cache" {
		t.Errorf("second Source = %q, want cache", cat.Source)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}

	// Past max age the catalog is fetched again.
	now = now.Add(2 * time.Hour)
	cat, err = l.Load(context.Background())
	if err != nil {
		t.Fatalf("third Load: %v", err)
	}
	if cat.Source != "fetch" || hits.Load() != 2 {
		t.Errorf("stale cache: source %q hits %d, want fetch / 2", cat.Source, hits.Load())
	}
}

func TestLoaderFetchError(t *testing.T) {
	server := textServer(t, http.StatusInternalServerError, "")
	l := NewLoader(LoaderConfig{}, NewFetcher(server.URL, testLogger), nil, testLogger)
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestSelect(t *testing.T) {
	entries := make([]TLEEntry, 7)
	for i := range entries {
		entries[i] = TLEEntry{NORADID: 100 + i}
	}
	cat := NewCatalog("test", time.Now(), entries)

	got, err := Select(cat, 5, testLogger)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d entries, want 5", len(got))
	}
	for i, e := range got {
		if e.NORADID != 100+i {
			t.Errorf("entry %d = %d, want %d", i, e.NORADID, 100+i)
		}
	}

	// The selection is a copy.
	got[0].NORADID = -1
	if cat.Entries[0].NORADID != 100 {
		t.Error("Select aliased the catalog entries")
	}
}

func TestSelectShortCatalog(t *testing.T) {
	cat := NewCatalog("test", time.Now(), []TLEEntry{{NORADID: 1}, {NORADID: 2}})
	got, err := Select(cat, 5, testLogger)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
}

func TestSelectErrors(t *testing.T) {
	if _, err := Select(nil, 5, testLogger); !errors.Is(err, ErrNoEntries) {
		t.Errorf("nil catalog: got %v", err)
	}
	if _, err := Select(NewCatalog("test", time.Now(), nil), 5, testLogger); !errors.Is(err, ErrNoEntries) {
		t.Errorf("empty catalog: got %v", err)
	}
	if _, err := Select(NewCatalog("test", time.Now(), []TLEEntry{{NORADID: 1}}), 0, testLogger); err == nil {
		t.Error("zero count: expected error")
	}
}
