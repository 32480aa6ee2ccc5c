package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
)

// ErrNoEntries is returned when a catalog parses to zero usable entries.
var ErrNoEntries = errors.New("catalog has no usable entries")

// LoaderConfig configures where a Loader reads elements from.
type LoaderConfig struct {
	File   string        // local file; when set, no fetch or cache is used
	MaxAge time.Duration // reuse a cached catalog younger than this
}

// Loader resolves a Catalog from a local file, the disk cache or the network.
type Loader struct {
	cfg     LoaderConfig
	fetcher *Fetcher
	cache   *Cache
	logger  *slog.Logger
	now     func() time.Time
}

// NewLoader creates a Loader. fetcher and cache may be nil when cfg.File is set.
func NewLoader(cfg LoaderConfig, fetcher *Fetcher, cache *Cache, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// Load returns the catalog in source order.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	data, source, fetchedAt, err := l.read(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := Parse(bytes.NewReader(data), l.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing %s catalog: %w", source, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s catalog: %w", source, ErrNoEntries)
	}

	cat := NewCatalog(source, fetchedAt, entries)
	metrics.SetCatalogEntries(len(entries))
	metrics.SetCatalogAge(cat.AgeSeconds(l.now()))

	l.logger.Info("catalog loaded",
		"source", source,
		"entries", len(entries),
		"fetched_at", fetchedAt.UTC().Format(time.RFC3339),
		"epoch_min", cat.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", cat.EpochRange.Max.Format(time.RFC3339),
	)
	return cat, nil
}

func (l *Loader) read(ctx context.Context) ([]byte, string, time.Time, error) {
	if l.cfg.File != "" {
		info, err := os.Stat(l.cfg.File)
		if err != nil {
			return nil, "", time.Time{}, fmt.Errorf("catalog file: %w", err)
		}
		data, err := os.ReadFile(l.cfg.File)
		if err != nil {
			return nil, "", time.Time{}, fmt.Errorf("reading catalog file: %w", err)
		}
		return data, "file", info.ModTime(), nil
	}

	if l.cache != nil {
		data, ts, err := l.cache.LoadFresh(l.cfg.MaxAge, l.now())
		if err == nil {
			return data, "cache", ts, nil
		}
		l.logger.Debug("catalog cache not used", "dir", l.cache.Dir(), "error", err)
	}

	if l.fetcher == nil {
		return nil, "", time.Time{}, fmt.Errorf("no catalog source configured")
	}

	start := l.now()
	data, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	l.logger.Info("catalog fetched",
		"url", l.fetcher.SourceURL(),
		"bytes", len(data),
		"duration_ms", l.now().Sub(start).Milliseconds(),
	)

	if l.cache != nil {
		if err := l.cache.Write(data, start); err != nil {
			l.logger.Warn("failed to write catalog cache", "dir", l.cache.Dir(), "error", err)
		}
	}
	return data, "fetch", start, nil
}

// Select returns the first n entries in catalog order. A catalog shorter
// than n yields every entry and a warning.
func Select(cat *Catalog, n int, logger *slog.Logger) ([]TLEEntry, error) {
	if cat == nil || len(cat.Entries) == 0 {
		return nil, ErrNoEntries
	}
	if n <= 0 {
		return nil, fmt.Errorf("selection count must be positive, got %d", n)
	}
	if len(cat.Entries) < n {
		logger.Warn("catalog has fewer entries than requested",
			"requested", n,
			"available", len(cat.Entries),
		)
		n = len(cat.Entries)
	}

	selected := make([]TLEEntry, n)
	copy(selected, cat.Entries[:n])
	return selected, nil
}
