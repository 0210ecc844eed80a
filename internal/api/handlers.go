package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/starglobe/internal/globe"
	"github.com/star/starglobe/internal/httputil"
	"github.com/star/starglobe/internal/render"
	"github.com/star/starglobe/internal/tracker"
	"github.com/star/starglobe/internal/viewer"
)

// inputTimeout bounds how long an input request waits for its frame.
const inputTimeout = 5 * time.Second

// Viewer is the part of viewer.Viewer the handlers use.
type Viewer interface {
	Submit(ctx context.Context, e viewer.Event) (*viewer.Frame, error)
	Frame() *viewer.Frame
	Subscribers() int
}

// Geocoder turns a ground position into a place description.
type Geocoder interface {
	Describe(ctx context.Context, lat, lon float64) string
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// stateResponse describes a frame without its image.
type stateResponse struct {
	Seq         uint64            `json:"seq"`
	RenderedAt  time.Time         `json:"rendered_at"`
	State       globe.Stats       `json:"state"`
	Report      render.DrawReport `json:"report"`
	Satellite   *tracker.Position `json:"satellite,omitempty"`
	Subscribers int               `json:"subscribers"`
}

func (h *handlers) state(f *viewer.Frame) stateResponse {
	return stateResponse{
		Seq:         f.Seq,
		RenderedAt:  f.RenderedAt.UTC(),
		State:       f.State,
		Report:      f.Report,
		Satellite:   f.Satellite,
		Subscribers: h.deps.Viewer.Subscribers(),
	}
}

// GET /api/v1/globe.svg
func (h *handlers) globeSVG(w http.ResponseWriter, r *http.Request) {
	f := h.deps.Viewer.Frame()
	if f == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(f.SVG)
}

// GET /api/v1/globe/state
func (h *handlers) globeState(w http.ResponseWriter, r *http.Request) {
	f := h.deps.Viewer.Frame()
	if f == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.state(f))
}

type satelliteResponse struct {
	tracker.Position
	AgeSeconds float64 `json:"age_seconds"`
}

// GET /api/v1/satellite
func (h *handlers) satellite(w http.ResponseWriter, r *http.Request) {
	pos := h.deps.Store.Get()
	if pos == nil {
		httputil.WriteError(w, http.StatusNotFound, "no satellite position yet")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, satelliteResponse{
		Position:   *pos,
		AgeSeconds: h.deps.Store.AgeSeconds(),
	})
}

type locationResponse struct {
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
	Location string  `json:"location"`
}

// GET /api/v1/satellite/location
//
// Lookup failures never surface as errors: the location reads as unknown.
func (h *handlers) satelliteLocation(w http.ResponseWriter, r *http.Request) {
	pos := h.deps.Store.Get()
	if pos == nil {
		httputil.WriteError(w, http.StatusNotFound, "no satellite position yet")
		return
	}
	if h.deps.Geocoder == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "reverse geocoding disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, locationResponse{
		Lon:      pos.Lon,
		Lat:      pos.Lat,
		Location: h.deps.Geocoder.Describe(r.Context(), pos.Lat, pos.Lon),
	})
}

// POST /api/v1/input/{event}
func (h *handlers) input(w http.ResponseWriter, r *http.Request) {
	var e viewer.Event
	if err := httputil.DecodeJSON(w, r, &e); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	e.Kind = viewer.EventKind(r.PathValue("event"))

	ctx, cancel := context.WithTimeout(r.Context(), inputTimeout)
	defer cancel()

	f, err := h.deps.Viewer.Submit(ctx, e)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, h.state(f))
	case errors.Is(err, viewer.ErrInvalidEvent):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, viewer.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("input not applied", "event", e.Kind, "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "viewer unavailable")
	default:
		// Client went away.
		h.logger.Debug("input canceled", "event", e.Kind, "error", err)
	}
}
