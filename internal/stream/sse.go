// Package stream implements Server-Sent Events (SSE) streaming of rendered
// globe frames. Clients connect via GET /api/v1/stream/frames and receive
// every frame the viewer draws.
//
// SSE message format:
//
//	data: {"type":"frame","seq":12,"rendered_at":"...","svg":"<svg ...","report":{...},"state":{...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","seq":12,"subscribers":3,"position_age_seconds":2}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message and the latest frame.
package stream

import (
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/starglobe/internal/globe"
	"github.com/star/starglobe/internal/httputil"
	"github.com/star/starglobe/internal/metrics"
	"github.com/star/starglobe/internal/render"
	"github.com/star/starglobe/internal/tracker"
	"github.com/star/starglobe/internal/viewer"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from X-Forwarded-For.
}

// Frames is the frame source a stream reads from.
type Frames interface {
	Frame() *viewer.Frame
	Subscribe() (<-chan *viewer.Frame, func())
	Subscribers() int
}

// Handler manages SSE streaming connections.
type Handler struct {
	frames  Frames
	store   *tracker.Store
	config  Config
	limiter *connLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler. store may be nil.
func NewHandler(frames Frames, store *tracker.Store, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		frames:  frames,
		store:   store,
		config:  config,
		limiter: newConnLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger.With("component", "stream"),
	}
}

// Active returns the number of open streams.
func (h *Handler) Active() int { return h.limiter.active() }

// HandleFrames serves the SSE frame stream.
// GET /api/v1/stream/frames?interval=250&svg=false
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	// interval is the minimum spacing between frames in milliseconds.
	// Frames arriving faster are coalesced to the most recent one.
	var interval time.Duration
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 10000 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid interval parameter, must be 0-10000")
			return
		}
		interval = time.Duration(n) * time.Millisecond
	}

	withSVG := true
	if v := r.URL.Query().Get("svg"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid svg parameter, must be a boolean")
			return
		}
		withSVG = b
	}

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
		"interval_ms", interval.Milliseconds(),
		"svg", withSVG,
	)

	c := &client{logger: h.logger}
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages", c.sent,
			"bytes", c.bytes,
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the headers go out so no frame drawn in between is lost.
	updates, cancel := h.frames.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}
	c.w, c.flusher, c.rc = w, flusher, rc

	// Jittered retry (3-7s) spreads reconnects after a server restart.
	if err := c.sendRetry(time.Duration(3000+rand.Intn(4000)) * time.Millisecond); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	last := h.frames.Frame()
	if err := c.sendJSON(h.metadata(last)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}
	var lastSeq uint64
	var lastSent time.Time
	if last != nil {
		if err := c.sendJSON(newFrameMessage(last, withSVG)); err != nil {
			metrics.IncStreamErrors("send_error")
			return
		}
		lastSeq, lastSent = last.Seq, time.Now()
	}

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	throttle := time.NewTimer(time.Hour)
	throttle.Stop()
	defer throttle.Stop()
	var pending *viewer.Frame

	send := func(f *viewer.Frame) bool {
		if err := c.sendJSON(newFrameMessage(f, withSVG)); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return false
		}
		lastSeq, lastSent = f.Seq, time.Now()
		keepalive.Reset(h.config.KeepaliveInterval)
		return true
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case f, ok := <-updates:
			if !ok {
				// Viewer stopped.
				return
			}
			if f.Seq <= lastSeq {
				continue
			}
			if wait := interval - time.Since(lastSent); wait > 0 {
				if pending == nil {
					throttle.Reset(wait)
				}
				pending = f
				continue
			}
			if !send(f) {
				return
			}

		case <-throttle.C:
			if pending == nil {
				continue
			}
			f := pending
			pending = nil
			if !send(f) {
				return
			}

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) metadata(f *viewer.Frame) metadataMessage {
	m := metadataMessage{
		Type:        "metadata",
		Subscribers: h.frames.Subscribers(),
	}
	if f != nil {
		m.Seq = f.Seq
	}
	if h.store != nil {
		if pos := h.store.Get(); pos != nil {
			m.Source = pos.Source
			m.PositionAge = int(h.store.AgeSeconds())
		}
	}
	return m
}

// SSE message payload types.

type metadataMessage struct {
	Type        string `json:"type"`
	Seq         uint64 `json:"seq"`
	Subscribers int    `json:"subscribers"`
	Source      string `json:"source,omitempty"`
	PositionAge int    `json:"position_age_seconds,omitempty"`
}

type frameMessage struct {
	Type       string            `json:"type"`
	Seq        uint64            `json:"seq"`
	RenderedAt string            `json:"rendered_at"`
	SVG        string            `json:"svg,omitempty"`
	Report     render.DrawReport `json:"report"`
	State      globe.Stats       `json:"state"`
	Satellite  *tracker.Position `json:"satellite,omitempty"`
}

func newFrameMessage(f *viewer.Frame, withSVG bool) frameMessage {
	m := frameMessage{
		Type:       "frame",
		Seq:        f.Seq,
		RenderedAt: f.RenderedAt.UTC().Format(time.RFC3339Nano),
		Report:     f.Report,
		State:      f.State,
		Satellite:  f.Satellite,
	}
	if withSVG {
		m.SVG = string(f.SVG)
	}
	return m
}
