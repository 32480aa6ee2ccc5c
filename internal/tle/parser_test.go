package tle

import (
	"strings"
	"testing"
	"time"
)

func TestParseThreeLine(t *testing.T) {
	entries, err := Parse(strings.NewReader(issTLE+starlinkTLE), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	iss := entries[0]
	if iss.NORADID != 25544 || iss.Name != "ISS (ZARYA)" {
		t.Errorf("entry 0 = %d %q, want 25544 \"ISS (ZARYA)\"", iss.NORADID, iss.Name)
	}
	// Day 100.5 of 2024 (leap year) is April 9 at 12:00 UTC.
	wantEpoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !iss.Epoch.Equal(wantEpoch) {
		t.Errorf("epoch = %v, want %v", iss.Epoch, wantEpoch)
	}
	if !strings.HasPrefix(iss.Line1, "1 25544U") || !strings.HasPrefix(iss.Line2, "2 25544") {
		t.Errorf("lines not preserved: %q / %q", iss.Line1, iss.Line2)
	}
}

func TestParseTwoLine(t *testing.T) {
	lines := strings.SplitN(issTLE, "\n", 2)[1] // drop the name line
	entries, err := Parse(strings.NewReader(lines), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Name != "25544" {
		t.Errorf("unnamed entry name = %q, want \"25544\"", entries[0].Name)
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	input := "GARBAGE HEADER\n" +
		"BROKEN\n1 ABCDEU 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n2 ABCDE  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n" +
		"\r\n" +
		starlinkTLE
	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 || entries[0].NORADID != 44713 {
		t.Fatalf("got %+v, want only NORAD 44713", entries)
	}
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"24001.00000000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"99365.50000000", time.Date(1999, 12, 31, 12, 0, 0, 0, time.UTC)},
		{"57001.00000000", time.Date(1957, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"56001.25000000", time.Date(2056, 1, 1, 6, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseEpoch(tt.in)
		if err != nil {
			t.Errorf("parseEpoch(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseEpoch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "24", "xx001.0", "24abc"} {
		if _, err := parseEpoch(bad); err == nil {
			t.Errorf("parseEpoch(%q): expected error", bad)
		}
	}
}

func TestNewCatalogEpochRange(t *testing.T) {
	a := TLEEntry{NORADID: 1, Epoch: time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC)}
	b := TLEEntry{NORADID: 2, Epoch: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	c := TLEEntry{NORADID: 3, Epoch: time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)}

	cat := NewCatalog("test", time.Now(), []TLEEntry{a, b, c})
	if !cat.EpochRange.Min.Equal(b.Epoch) || !cat.EpochRange.Max.Equal(c.Epoch) {
		t.Errorf("epoch range = %v..%v, want %v..%v", cat.EpochRange.Min, cat.EpochRange.Max, b.Epoch, c.Epoch)
	}

	if empty := NewCatalog("test", time.Now(), nil); !empty.EpochRange.Min.IsZero() {
		t.Errorf("empty catalog epoch range should be zero, got %v", empty.EpochRange)
	}
}
