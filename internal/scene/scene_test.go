package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
	"github.com/rahulsinghu/AstralCleanser/internal/propagation"
	"github.com/rahulsinghu/AstralCleanser/internal/proximity"
	"github.com/rahulsinghu/AstralCleanser/internal/tle"
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

// fakeSource places object i at X = 7000 + offsets[i] km for every sample.
type fakeSource struct {
	offsets []float64
	err     error
	short   bool
}

func (f fakeSource) Propagate(ctx context.Context, entries []tle.TLEEntry, grid propagation.TimeGrid) ([]propagation.Trajectory, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := grid.Len()
	if f.short {
		n--
	}
	out := make([]propagation.Trajectory, len(entries))
	for i, e := range entries {
		pos := make([]r3.Vec, n)
		for t := range pos {
			pos[t] = r3.Vec{X: 7000 + f.offsets[i]}
		}
		out[i] = propagation.Trajectory{NORADID: e.NORADID, Positions: pos}
	}
	return out, nil
}

func entries(n int) []tle.TLEEntry {
	out := make([]tle.TLEEntry, n)
	for i := range out {
		out[i] = tle.TLEEntry{NORADID: 1000 + i, Name: "OBJ-" + string(rune('A'+i))}
	}
	return out
}

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Window.Samples = 4
	return cfg
}

func TestCompute(t *testing.T) {
	cfg := smallConfig()
	src := fakeSource{offsets: []float64{0, 10, 5000}}

	sc, err := Compute(context.Background(), cfg, entries(3), src, discard)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, sc.RunID)
	assert.Equal(t, 4, sc.Samples())
	assert.Equal(t, config.FrameTEME, sc.Frame)
	assert.Equal(t, 50.0, sc.ThresholdKm)
	require.Len(t, sc.Objects, 3)
	assert.Equal(t, "red", sc.Objects[0].Color)
	assert.Equal(t, "green", sc.Objects[2].Color)
	assert.Equal(t, "Sat 1", sc.Objects[1].Label())
	assert.Equal(t, 1001, sc.Objects[1].NORADID)

	// Only objects 0 and 1 are within 50 km, at every sample.
	want := []proximity.Event{{T: 0, I: 0, J: 1}, {T: 1, I: 0, J: 1}, {T: 2, I: 0, J: 1}, {T: 3, I: 0, J: 1}}
	assert.Equal(t, want, sc.Events)
	assert.Len(t, sc.Approaches, 3)
}

func TestComputeErrors(t *testing.T) {
	cfg := smallConfig()
	src := fakeSource{offsets: []float64{0, 10}}

	_, err := Compute(context.Background(), cfg, nil, src, discard)
	assert.ErrorIs(t, err, tle.ErrNoEntries)

	empty := cfg
	empty.Window.Samples = 0
	_, err = Compute(context.Background(), empty, entries(2), src, discard)
	assert.ErrorIs(t, err, config.ErrEmptyTimeGrid)

	boom := errors.New("boom")
	_, err = Compute(context.Background(), cfg, entries(2), fakeSource{err: boom}, discard)
	assert.ErrorIs(t, err, boom)

	_, err = Compute(context.Background(), cfg, entries(2), fakeSource{offsets: []float64{0, 10}, short: true}, discard)
	assert.ErrorIs(t, err, proximity.ErrLengthMismatch)
}

func TestComputeSingleObject(t *testing.T) {
	sc, err := Compute(context.Background(), smallConfig(), entries(1), fakeSource{offsets: []float64{0}}, discard)
	require.NoError(t, err)
	assert.Empty(t, sc.Events)
	assert.Empty(t, sc.Approaches)
}

func TestWriteJSON(t *testing.T) {
	sc, err := Compute(context.Background(), smallConfig(), entries(2), fakeSource{offsets: []float64{0, 10}}, discard)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sc.WriteJSON(&buf))

	var out struct {
		RunID   string `json:"run_id"`
		Samples int    `json:"samples"`
		Events  []struct {
			T          int        `json:"t"`
			I          int        `json:"i"`
			J          int        `json:"j"`
			Midpoint   [3]float64 `json:"midpoint_km"`
			DistanceKm float64    `json:"distance_km"`
		} `json:"events"`
		Paths [][][3]float64 `json:"paths_km"`
		Times []time.Time    `json:"times"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	assert.Equal(t, sc.RunID.String(), out.RunID)
	assert.Equal(t, 4, out.Samples)
	require.Len(t, out.Events, 4)
	assert.Equal(t, 1, out.Events[0].J)
	assert.InDelta(t, 10.0, out.Events[0].DistanceKm, 1e-9)
	assert.Equal(t, [3]float64{7005, 0, 0}, out.Events[0].Midpoint)
	require.Len(t, out.Paths, 2)
	assert.Len(t, out.Paths[1], 4)
	assert.Len(t, out.Times, 4)
}

func TestSummarizeEmptyEvents(t *testing.T) {
	sc, err := Compute(context.Background(), smallConfig(), entries(2), fakeSource{offsets: []float64{0, 900}}, discard)
	require.NoError(t, err)

	data, err := json.Marshal(sc.Summarize())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"events":[]`)
}
