package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/star/starglobe/internal/metrics"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 2500 * time.Millisecond

var tracer = otel.Tracer("github.com/star/starglobe/internal/tracker")

// Poller polls a Source on a fixed interval. A failed poll is logged and
// retried on the next tick; there is no backoff.
type Poller struct {
	source   Source
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	listeners []func(Position)
}

// NewPoller creates a Poller writing into store.
func NewPoller(source Source, store *Store, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// OnUpdate registers fn to be called after every accepted position. fn runs
// on the poll goroutine and must not block.
func (p *Poller) OnUpdate(fn func(Position)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Run polls immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("position poller started", "source", p.source.Name(), "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		if age := p.store.AgeSeconds(); age >= 0 {
			metrics.SetPositionAge(age)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.logger.Info("position poller stopped")
			return
		}
	}
}

// Poll runs one cycle. The store is only touched on success.
func (p *Poller) Poll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tracker.poll")
	defer span.End()
	span.SetAttributes(attribute.String("tracker.source", p.source.Name()))

	start := time.Now()
	pos, err := p.source.Fetch(ctx)
	elapsed := time.Since(start)

	if err != nil {
		metrics.ObservePoll("error", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			p.logger.Warn("position poll failed", "source", p.source.Name(), "error", err)
		}
		return err
	}

	metrics.ObservePoll("success", elapsed)
	span.SetAttributes(
		attribute.Float64("tracker.lon", pos.Lon),
		attribute.Float64("tracker.lat", pos.Lat),
	)
	p.store.Set(pos)
	p.logger.Debug("position updated",
		"lon", pos.Lon,
		"lat", pos.Lat,
		"duration_ms", elapsed.Milliseconds(),
	)

	p.mu.Lock()
	listeners := p.listeners
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(pos)
	}
	return nil
}
