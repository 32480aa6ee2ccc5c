package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/propagation"
	"github.com/rahulsinghu/AstralCleanser/internal/proximity"
	"github.com/rahulsinghu/AstralCleanser/internal/render"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testScene(t *testing.T) *scene.Scene {
	t.Helper()
	grid, err := propagation.NewTimeGrid(time.Date(2025, 4, 19, 0, 0, 0, 0, time.UTC), 15*time.Minute, 3)
	if err != nil {
		t.Fatal(err)
	}
	return &scene.Scene{
		RunID:       uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2"),
		Frame:       "teme",
		ThresholdKm: 50,
		Grid:        grid,
		Objects: []scene.Object{
			{Index: 0, NORADID: 25544, Name: "ISS", Color: "red"},
			{Index: 1, NORADID: 44713, Name: "STARLINK-1007", Color: "blue"},
		},
		Paths: [][]r3.Vec{
			{{X: 7000}, {X: 7000, Y: 100}, {X: 7000, Y: 200}},
			{{X: 7500}, {X: 7020, Y: 100}, {X: 7600, Y: 200}},
		},
		Events: []proximity.Event{{T: 1, I: 0, J: 1}},
	}
}

func testStore(t *testing.T) *scene.Store {
	store := scene.NewStore()
	store.Set(testScene(t))
	return store
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		Interval:           10 * time.Millisecond,
	}
}

// readMessages parses every "data:" line of an SSE body.
func readMessages(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

func TestBuildMetadataMessage(t *testing.T) {
	sc := testScene(t)
	msg := buildMetadataMessage(sc, Config{LimitKm: 20000, EarthRadiusKm: 6371})

	if msg.Type != "metadata" {
		t.Errorf("type = %q, want metadata", msg.Type)
	}
	if msg.RunID != "7d444840-9dc0-11d1-b245-5ffdce74fad2" {
		t.Errorf("run_id = %q", msg.RunID)
	}
	if msg.Samples != 3 || msg.StepSeconds != 900 {
		t.Errorf("samples = %d step = %v, want 3 and 900", msg.Samples, msg.StepSeconds)
	}
	if msg.Start != "2025-04-19T00:00:00Z" {
		t.Errorf("start = %q", msg.Start)
	}
	if len(msg.Objects) != 2 {
		t.Fatalf("objects = %d, want 2", len(msg.Objects))
	}
	if msg.Objects[0].Label != "Sat 0" || msg.Objects[0].Color != "#ff0000" {
		t.Errorf("object 0 = %+v", msg.Objects[0])
	}
	if msg.MarkerColor != "#000000" {
		t.Errorf("marker_color = %q", msg.MarkerColor)
	}
}

func TestBuildFrameMessage(t *testing.T) {
	sc := testScene(t)
	p := render.NewPlayer(sc, false)

	f0, _ := p.Next()
	msg := buildFrameMessage(sc, f0, false)
	if msg.Type != "frame" || msg.Index != 0 || msg.T != "2025-04-19T00:00:00Z" {
		t.Errorf("frame 0 = %+v", msg)
	}
	if len(msg.Sat) != 2 || msg.Sat[1].P != [3]float64{7500, 0, 0} {
		t.Errorf("sat = %+v", msg.Sat)
	}
	if len(msg.Markers) != 0 {
		t.Errorf("frame 0 markers = %d, want 0", len(msg.Markers))
	}

	f1, _ := p.Next()
	msg = buildFrameMessage(sc, f1, false)
	if len(msg.Markers) != 1 {
		t.Fatalf("frame 1 markers = %d, want 1", len(msg.Markers))
	}
	if got := msg.Markers[0]; got.T != 1 || got.I != 0 || got.J != 1 || got.P != [3]float64{7010, 100, 0} {
		t.Errorf("marker = %+v", got)
	}

	// Played frames carry only new markers; replays carry all of them.
	f2, _ := p.Next()
	if n := len(buildFrameMessage(sc, f2, false).Markers); n != 0 {
		t.Errorf("frame 2 new markers = %d, want 0", n)
	}
	if n := len(buildFrameMessage(sc, f2, true).Markers); n != 1 {
		t.Errorf("frame 2 replay markers = %d, want 1", n)
	}
}

func TestFrameMessageJSON(t *testing.T) {
	msg := frameMessage{
		Type:    "frame",
		Index:   4,
		T:       "2025-04-19T01:00:00Z",
		Sat:     []satPayload{{I: 0, P: [3]float64{7000, 0, 0}}},
		Markers: []markerPayload{},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["type"] != "frame" || parsed["index"].(float64) != 4 {
		t.Errorf("parsed = %v", parsed)
	}
	if _, ok := parsed["replay"]; ok {
		t.Error("replay should be omitted when false")
	}
	sats, ok := parsed["sat"].([]any)
	if !ok || len(sats) != 1 {
		t.Fatalf("sat = %v, want 1-element array", parsed["sat"])
	}
}

// TestSSEPlaysScene runs a non-looping stream to completion.
func TestSSEPlaysScene(t *testing.T) {
	handler := NewHandler(testStore(t), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?loop=false", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	msgs := readMessages(t, w.Body.String())
	var types []string
	for _, m := range msgs {
		types = append(types, m["type"].(string))
	}
	want := []string{"metadata", "frame", "frame", "frame", "done"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("message types = %v, want %v", types, want)
	}
	for k, m := range msgs[1:4] {
		if int(m["index"].(float64)) != k {
			t.Errorf("frame %d has index %v", k, m["index"])
		}
	}

	for _, line := range strings.Split(w.Body.String(), "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

func TestSSEFromReplaysMarkers(t *testing.T) {
	handler := NewHandler(testStore(t), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?loop=false&from=2", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	msgs := readMessages(t, w.Body.String())
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want metadata, frame and done", len(msgs))
	}
	f := msgs[1]
	if f["index"].(float64) != 2 || f["replay"] != true {
		t.Errorf("first frame = %v", f)
	}
	if n := len(f["markers"].([]any)); n != 1 {
		t.Errorf("replayed markers = %d, want 1", n)
	}
	if msgs[2]["type"] != "done" {
		t.Errorf("last message = %v, want done", msgs[2])
	}
}

func TestSSELoopsUntilDisconnect(t *testing.T) {
	handler := NewHandler(testStore(t), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?loop=true", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	var maxPass float64
	for _, m := range readMessages(t, w.Body.String()) {
		if m["type"] == "done" {
			t.Fatal("looping stream sent done")
		}
		if m["type"] == "frame" && m["pass"].(float64) > maxPass {
			maxPass = m["pass"].(float64)
		}
	}
	if maxPass < 1 {
		t.Errorf("max pass = %v, want at least one restart", maxPass)
	}
}

func TestSSESceneNotReady(t *testing.T) {
	handler := NewHandler(scene.NewStore(), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, maxStreams)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}
	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}
	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
	if a := limiter.active(); a != 4 {
		t.Errorf("active = %d, want 4", a)
	}
}

func TestRateLimitingGlobalCap(t *testing.T) {
	limiter := newStreamLimiter(10, 2)
	if !limiter.acquire("10.0.0.1") || !limiter.acquire("10.0.0.2") {
		t.Fatal("acquire under the global cap should succeed")
	}
	if limiter.acquire("10.0.0.3") {
		t.Error("acquire beyond the global cap should fail")
	}

	// Releasing an IP with no connections is a no-op.
	limiter.release("10.0.0.9")
	if a := limiter.active(); a != 2 {
		t.Errorf("active = %d, want 2", a)
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, maxStreams)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	cfg.Loop = true
	handler := NewHandler(testStore(t), cfg, testLogger())

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandleFrames(w, req)
	}()

	<-ready

	// Second connection from same IP should get 429.
	req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad parameters.
func TestInvalidQueryParams(t *testing.T) {
	handler := NewHandler(testStore(t), testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"interval too small", "?interval_ms=1"},
		{"interval too large", "?interval_ms=20000"},
		{"interval non-numeric", "?interval_ms=abc"},
		{"bad loop", "?loop=maybe"},
		{"negative from", "?from=-1"},
		{"from past end", "?from=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/frames"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleFrames(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestKeepaliveFormat(t *testing.T) {
	w := httptest.NewRecorder()
	c := &client{w: w, flusher: w, rc: http.NewResponseController(w), logger: testLogger()}
	if err := c.sendKeepalive(); err != nil {
		t.Fatal(err)
	}
	if got := w.Body.String(); got != ":\n\n" {
		t.Errorf("keepalive = %q, want %q", got, ":\n\n")
	}
	if c.messagesSent != 0 || c.bytesSent != 3 {
		t.Errorf("messages = %d bytes = %d, want 0 and 3", c.messagesSent, c.bytesSent)
	}
}
