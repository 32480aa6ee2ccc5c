package tle

import "time"

// TLEEntry is one object's two-line element set.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange is the minimum and maximum element epoch in a catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Catalog is a parsed element set together with where it came from.
type Catalog struct {
	Source     string // "file", "cache" or "fetch"
	FetchedAt  time.Time
	EpochRange EpochRange
	Entries    []TLEEntry
}

// NewCatalog builds a Catalog and computes its epoch range.
func NewCatalog(source string, fetchedAt time.Time, entries []TLEEntry) *Catalog {
	c := &Catalog{
		Source:    source,
		FetchedAt: fetchedAt,
		Entries:   entries,
	}
	if len(entries) == 0 {
		return c
	}
	c.EpochRange = EpochRange{Min: entries[0].Epoch, Max: entries[0].Epoch}
	for _, e := range entries[1:] {
		if e.Epoch.Before(c.EpochRange.Min) {
			c.EpochRange.Min = e.Epoch
		}
		if e.Epoch.After(c.EpochRange.Max) {
			c.EpochRange.Max = e.Epoch
		}
	}
	return c
}

// AgeSeconds returns the catalog age relative to now.
func (c *Catalog) AgeSeconds(now time.Time) float64 {
	return now.Sub(c.FetchedAt).Seconds()
}
