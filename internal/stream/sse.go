// Package stream plays a scene to browsers over Server-Sent Events.
// Clients connect via GET /api/v1/stream/frames and receive one message per
// playback frame, paced at the render interval.
//
// SSE message format:
//
//	data: {"type":"frame","index":3,"t":"2025-04-19T00:45:00Z","pass":0,"sat":[...],"markers":[...]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","run_id":"...","samples":96,"objects":[...]}\n\n
//
// A non-looping stream ends with {"type":"done"}. Keep-alive comments
// (:\n\n) are sent every KeepaliveInterval without a frame. Every
// connection gets its own player and a fresh metadata message.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rahulsinghu/AstralCleanser/internal/httputil"
	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
	"github.com/rahulsinghu/AstralCleanser/internal/render"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	Interval           time.Duration // Default frame interval (default: 100ms).
	Loop               bool          // Default loop setting.
	LimitKm            float64       // Axis half-width sent to clients.
	EarthRadiusKm      float64
	TrustProxy         bool
}

const (
	minIntervalMs = 10
	maxIntervalMs = 10000
)

// Handler manages SSE streaming connections.
type Handler struct {
	store   *scene.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(store *scene.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if config.LimitKm <= 0 {
		config.LimitKm = render.AxisLimitKm
	}
	if config.EarthRadiusKm <= 0 {
		config.EarthRadiusKm = render.EarthRadiusKm
	}
	return &Handler{
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, maxStreams),
		logger:  logger,
	}
}

type streamParams struct {
	interval time.Duration
	loop     bool
	from     int
}

func (h *Handler) parseParams(r *http.Request, samples int) (streamParams, string) {
	p := streamParams{interval: h.config.Interval, loop: h.config.Loop}
	q := r.URL.Query()

	if v := q.Get("interval_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minIntervalMs || n > maxIntervalMs {
			return p, fmt.Sprintf("invalid interval_ms parameter, must be %d-%d", minIntervalMs, maxIntervalMs)
		}
		p.interval = time.Duration(n) * time.Millisecond
	}

	if v := q.Get("loop"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, "invalid loop parameter, must be true or false"
		}
		p.loop = b
	}

	if v := q.Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n >= samples {
			return p, fmt.Sprintf("invalid from parameter, must be 0-%d", samples-1)
		}
		p.from = n
	}
	return p, ""
}

// HandleFrames serves the SSE frame stream.
// GET /api/v1/stream/frames?interval_ms=100&loop=true&from=0
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	sc := h.store.Get()
	if sc == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "scene not ready")
		return
	}

	params, msg := h.parseParams(r, sc.Samples())
	if msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"run_id", sc.RunID.String(),
		"interval_ms", params.interval.Milliseconds(),
		"loop", params.loop,
	)

	var c *client
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		attrs := []any{
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		}
		if c != nil {
			attrs = append(attrs, "messages", c.messagesSent, "bytes", c.bytesSent)
		}
		h.logger.Info("stream disconnected", attrs...)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c = &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	if err := c.sendJSON(buildMetadataMessage(sc, h.config)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	player := render.NewPlayer(sc, params.loop)
	if params.from > 0 {
		f, _ := player.Seek(params.from)
		if err := h.sendFrame(c, sc, f, true); err != nil {
			return
		}
	}

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			f, ok := player.Next()
			if !ok {
				if err := c.sendJSON(doneMessage{Type: "done", Frames: sc.Samples()}); err != nil {
					metrics.IncStreamErrors("send_error")
				}
				return
			}
			if err := h.sendFrame(c, sc, f, false); err != nil {
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) sendFrame(c *client, sc *scene.Scene, f render.Frame, replay bool) error {
	data, err := json.Marshal(buildFrameMessage(sc, f, replay))
	if err != nil {
		metrics.IncStreamErrors("marshal_error")
		h.logger.Warn("stream marshal error", "remote_ip", c.ip, "error", err)
		return err
	}
	if err := c.sendRaw(data); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", c.ip, "error", err)
		return err
	}
	metrics.IncFramesRendered("stream")
	return nil
}

func buildMetadataMessage(sc *scene.Scene, cfg Config) metadataMessage {
	objs := make([]objectPayload, len(sc.Objects))
	for i, o := range sc.Objects {
		objs[i] = objectPayload{
			Index:   o.Index,
			NORADID: o.NORADID,
			Name:    o.Name,
			Label:   o.Label(),
			Color:   render.Hex(o.Color),
		}
	}
	return metadataMessage{
		Type:          "metadata",
		RunID:         sc.RunID.String(),
		Title:         scene.Title,
		Frame:         sc.Frame,
		Start:         sc.Grid.Start.UTC().Format(time.RFC3339),
		StepSeconds:   sc.Grid.Step.Seconds(),
		Samples:       sc.Samples(),
		ThresholdKm:   sc.ThresholdKm,
		LimitKm:       cfg.LimitKm,
		EarthRadiusKm: cfg.EarthRadiusKm,
		MarkerColor:   render.Hex(render.MarkerColor),
		Objects:       objs,
	}
}

// buildFrameMessage formats frame f. A replayed frame carries every marker
// of the pass so far; a played frame carries only the markers it added.
func buildFrameMessage(sc *scene.Scene, f render.Frame, replay bool) frameMessage {
	sats := make([]satPayload, len(f.Current))
	for i, p := range f.Current {
		sats[i] = satPayload{I: i, P: scene.Vec3(p)}
	}

	markers := f.Markers
	if !replay {
		markers = f.Markers[len(f.Markers)-f.Added:]
	}
	mks := make([]markerPayload, len(markers))
	for k, m := range markers {
		mks[k] = markerPayload{
			T: m.Event.T,
			I: m.Event.I,
			J: m.Event.J,
			P: scene.Vec3(m.Position),
		}
	}

	return frameMessage{
		Type:    "frame",
		Index:   f.Index,
		T:       f.Time.UTC().Format(time.RFC3339),
		Pass:    f.Pass,
		Replay:  replay,
		Sat:     sats,
		Markers: mks,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type          string          `json:"type"`
	RunID         string          `json:"run_id"`
	Title         string          `json:"title"`
	Frame         string          `json:"frame"`
	Start         string          `json:"start"`
	StepSeconds   float64         `json:"step_seconds"`
	Samples       int             `json:"samples"`
	ThresholdKm   float64         `json:"threshold_km"`
	LimitKm       float64         `json:"limit_km"`
	EarthRadiusKm float64         `json:"earth_radius_km"`
	MarkerColor   string          `json:"marker_color"`
	Objects       []objectPayload `json:"objects"`
}

type objectPayload struct {
	Index   int    `json:"index"`
	NORADID int    `json:"norad_id"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	Color   string `json:"color"`
}

type frameMessage struct {
	Type    string          `json:"type"`
	Index   int             `json:"index"`
	T       string          `json:"t"`
	Pass    int             `json:"pass"`
	Replay  bool            `json:"replay,omitempty"`
	Sat     []satPayload    `json:"sat"`
	Markers []markerPayload `json:"markers"`
}

type satPayload struct {
	I int        `json:"i"`
	P [3]float64 `json:"p"`
}

type markerPayload struct {
	T int        `json:"t"`
	I int        `json:"i"`
	J int        `json:"j"`
	P [3]float64 `json:"p"`
}

type doneMessage struct {
	Type   string `json:"type"`
	Frames int    `json:"frames"`
}
