// Package viewer runs the single goroutine that owns the globe view. Input
// events, border loads and redraw requests are queued to it; every rotation
// and draw happens there, so draws never overlap and the view needs no
// locking. Finished frames are published through an atomic slot and to
// subscribers.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/star/starglobe/internal/globe"
	"github.com/star/starglobe/internal/metrics"
	"github.com/star/starglobe/internal/render"
	"github.com/star/starglobe/internal/sphere"
	"github.com/star/starglobe/internal/tracker"
)

var tracer = otel.Tracer("github.com/star/starglobe/internal/viewer")

// ErrInvalidEvent is returned for events that cannot be applied.
var ErrInvalidEvent = errors.New("invalid event")

// ErrStopped is returned when the loop is no longer running.
var ErrStopped = errors.New("viewer stopped")

// EventKind names an input event.
type EventKind string

const (
	EventPress   EventKind = "press"
	EventRelease EventKind = "release"
	EventDrag    EventKind = "drag"
	EventResize  EventKind = "resize"
)

// Event is one pointer or surface event in globe-local pixels.
type Event struct {
	Kind   EventKind `json:"kind"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	DX     float64   `json:"dx,omitempty"`
	DY     float64   `json:"dy,omitempty"`
	Width  float64   `json:"width,omitempty"`
	Height float64   `json:"height,omitempty"`
}

// MaxSize bounds the surface in either dimension.
const MaxSize = 8192

// Validate checks that e can be applied.
func (e Event) Validate() error {
	for _, v := range []float64{e.X, e.Y, e.DX, e.DY, e.Width, e.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidEvent)
		}
	}
	switch e.Kind {
	case EventPress, EventRelease, EventDrag:
		return nil
	case EventResize:
		if e.Width < 1 || e.Height < 1 || e.Width > MaxSize || e.Height > MaxSize {
			return fmt.Errorf("%w: size %vx%v outside 1..%d", ErrInvalidEvent, e.Width, e.Height, MaxSize)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
}

// Frame is one rendered image of the globe.
type Frame struct {
	Seq        uint64            `json:"seq"`
	SVG        []byte            `json:"-"`
	Report     render.DrawReport `json:"report"`
	State      globe.Stats       `json:"state"`
	Satellite  *tracker.Position `json:"satellite,omitempty"`
	RenderedAt time.Time         `json:"rendered_at"`
}

// Config sizes the initial view.
type Config struct {
	Width, Height float64
	Style         render.Style
}

type request struct {
	event *Event
	load  []orb.Geometry
	reply chan *Frame
}

// Viewer owns a globe.View and serializes all access to it.
type Viewer struct {
	view     *globe.View
	ctrl     *globe.Controller
	renderer *render.Renderer
	surface  *render.SVGSurface
	store    *tracker.Store
	logger   *slog.Logger

	requests chan request
	redraw   chan struct{}
	done     chan struct{}
	dirty    bool
	seq      uint64

	frame  atomic.Pointer[Frame]
	loaded atomic.Bool

	subsMu sync.Mutex
	subs   map[chan *Frame]struct{}
}

// New creates a Viewer. store supplies the satellite position for each draw.
func New(cfg Config, store *tracker.Store, logger *slog.Logger) *Viewer {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 800
	}
	v := &Viewer{
		view:     globe.NewView(cfg.Width, cfg.Height, logger),
		renderer: render.New(cfg.Style),
		surface:  render.NewSVGSurface(int(math.Round(cfg.Width)), int(math.Round(cfg.Height))),
		store:    store,
		logger:   logger,
		requests: make(chan request),
		redraw:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		subs:     make(map[chan *Frame]struct{}),
	}
	v.ctrl = globe.NewController(v.view, func() { v.dirty = true })
	return v
}

// Run processes requests until ctx is cancelled. It draws an initial frame
// before accepting input.
func (v *Viewer) Run(ctx context.Context) {
	defer close(v.done)
	v.draw(ctx)

	for {
		select {
		case req := <-v.requests:
			v.handle(ctx, req)
		case <-v.redraw:
			v.draw(ctx)
		case <-ctx.Done():
			v.logger.Info("viewer stopped")
			return
		}
	}
}

func (v *Viewer) handle(ctx context.Context, req request) {
	switch {
	case req.event != nil:
		v.apply(*req.event)
	case req.load != nil:
		v.view.Load(req.load)
		v.loaded.Store(true)
		v.dirty = true
	}

	if v.dirty {
		v.draw(ctx)
	}
	req.reply <- v.frame.Load()
}

func (v *Viewer) apply(e Event) {
	switch e.Kind {
	case EventPress:
		v.ctrl.Press(e.X, e.Y)
	case EventRelease:
		v.ctrl.Release(e.X, e.Y)
	case EventDrag:
		v.ctrl.Drag(e.DX, e.DY)
	case EventResize:
		v.ctrl.Resize(e.Width, e.Height)
		v.surface = render.NewSVGSurface(int(math.Round(e.Width)), int(math.Round(e.Height)))
	}
}

func (v *Viewer) draw(ctx context.Context) {
	_, span := tracer.Start(ctx, "viewer.draw")
	defer span.End()

	sat := v.store.Get()
	var ground *sphere.GeoPoint
	if sat != nil {
		g := sat.GeoPoint()
		ground = &g
	}

	start := time.Now()
	rep := v.renderer.Draw(v.surface, v.view, ground)
	svg := v.surface.Bytes()
	elapsed := time.Since(start)

	v.seq++
	v.dirty = false
	f := &Frame{
		Seq:        v.seq,
		SVG:        svg,
		Report:     rep,
		State:      v.view.Stats(),
		Satellite:  sat,
		RenderedAt: time.Now(),
	}
	v.frame.Store(f)

	metrics.ObserveDraw(elapsed, rep.Primitives)
	metrics.SetGlobe(f.State.Polygons, f.State.Rotation)
	span.SetAttributes(
		attribute.Int64("viewer.seq", int64(f.Seq)),
		attribute.Int("viewer.primitives", rep.Primitives),
		attribute.Bool("viewer.marker_visible", rep.MarkerVisible),
	)
	v.logger.Debug("frame drawn",
		"seq", f.Seq,
		"primitives", rep.Primitives,
		"layers", len(rep.Layers),
		"duration_ms", float64(elapsed.Microseconds())/1000,
	)

	v.broadcast(f)
}

// Submit queues e and waits for the frame that reflects it.
func (v *Viewer) Submit(ctx context.Context, e Event) (*Frame, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return v.do(ctx, request{event: &e})
}

// Load replaces the border polygons and waits for the resulting frame.
func (v *Viewer) Load(ctx context.Context, geoms []orb.Geometry) (*Frame, error) {
	if geoms == nil {
		geoms = []orb.Geometry{}
	}
	return v.do(ctx, request{load: geoms})
}

func (v *Viewer) do(ctx context.Context, req request) (*Frame, error) {
	req.reply = make(chan *Frame, 1)
	select {
	case v.requests <- req:
	case <-v.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case f := <-req.reply:
		return f, nil
	case <-v.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestRedraw asks for a new frame without waiting. Requests made while
// one is pending are merged.
func (v *Viewer) RequestRedraw() {
	select {
	case v.redraw <- struct{}{}:
	default:
	}
}

// Frame returns the latest frame, or nil before Run has drawn one.
func (v *Viewer) Frame() *Frame {
	return v.frame.Load()
}

// Loaded reports whether border polygons have been loaded.
func (v *Viewer) Loaded() bool {
	return v.loaded.Load()
}

// Subscribe returns a channel receiving new frames. Slow subscribers only see
// the newest frame. cancel must be called to release the subscription.
func (v *Viewer) Subscribe() (frames <-chan *Frame, cancel func()) {
	ch := make(chan *Frame, 1)
	v.subsMu.Lock()
	v.subs[ch] = struct{}{}
	v.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.subsMu.Lock()
			delete(v.subs, ch)
			v.subsMu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (v *Viewer) Subscribers() int {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	return len(v.subs)
}

func (v *Viewer) broadcast(f *Frame) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	for ch := range v.subs {
		select {
		case ch <- f:
			continue
		default:
		}
		// Replace the stale frame with the newest one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}
