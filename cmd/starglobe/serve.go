package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/starglobe/internal/api"
	"github.com/star/starglobe/internal/auth"
	"github.com/star/starglobe/internal/config"
	"github.com/star/starglobe/internal/geocode"
	"github.com/star/starglobe/internal/health"
	"github.com/star/starglobe/internal/observability"
	"github.com/star/starglobe/internal/publish"
	"github.com/star/starglobe/internal/render"
	"github.com/star/starglobe/internal/stream"
	"github.com/star/starglobe/internal/tracker"
	"github.com/star/starglobe/internal/viewer"
	"github.com/star/starglobe/web"
)

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live globe over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().String("source", "feed", "position source: feed or tle")
	cmd.Flags().Duration("poll-interval", tracker.DefaultInterval, "position poll interval")
	cmd.Flags().Float64("width", 800, "initial globe width in pixels")
	cmd.Flags().Float64("height", 800, "initial globe height in pixels")
	cmd.Flags().String("nats-url", "", "publish accepted positions to this NATS server")
	cmd.Flags().Bool("geocode", true, "enable reverse geocoding of the satellite position")
	cmd.Flags().Bool("tracing", false, "enable OpenTelemetry tracing")
	cmd.Flags().String("trace-exporter", "stdout", "trace exporter: stdout or otlp")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	bg := newTasks(logger)
	defer bg.Wait()

	// Background tasks stop before tracing is flushed.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := tracker.NewStore()
	v := viewer.New(viewer.Config{
		Width:  cfg.Globe.Width,
		Height: cfg.Globe.Height,
		Style:  render.DefaultStyle(),
	}, store, logger.With("component", "viewer"))
	bg.Go(func() { v.Run(runCtx) })

	// Borders load in the background; /readyz reports when they are in.
	bg.Go(func() {
		geoms, err := newBorderSource(cfg, logger).Load(runCtx)
		if err != nil {
			logger.Error("border dataset unavailable", "error", err)
			return
		}
		if _, err := v.Load(runCtx, geoms); err != nil {
			logger.Warn("border dataset not applied", "error", err)
		}
	})

	source, err := newPositionSource(cfg, logger)
	if err != nil {
		return err
	}
	poller := tracker.NewPoller(source, store, cfg.Tracker.Interval, logger.With("component", "tracker"))
	poller.OnUpdate(func(tracker.Position) { v.RequestRedraw() })

	if cfg.NATS.URL != "" {
		pub, err := publish.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger.With("component", "publish"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		bg.closeAfter("nats", pub.Close)
		poller.OnUpdate(pub.Listener())
	}

	bg.Go(func() { poller.Run(runCtx) })

	var geocoder api.Geocoder
	if cfg.Geocode.Enabled {
		var cache geocode.Cache
		if cfg.Geocode.ValkeyAddr != "" {
			vc, err := geocode.NewValkeyCache(cfg.Geocode.ValkeyAddr)
			if err != nil {
				logger.Warn("geocode cache unavailable, continuing without", "addr", cfg.Geocode.ValkeyAddr, "error", err)
			} else {
				bg.closeAfter("valkey", func() error { vc.Close(); return nil })
				pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
				if err := vc.Ping(pingCtx); err != nil {
					logger.Warn("geocode cache not answering yet", "addr", cfg.Geocode.ValkeyAddr, "error", err)
				}
				cancelPing()
				cache = vc
			}
		}
		geocoder = geocode.NewClient(geocode.Config{
			URL:       cfg.Geocode.URL,
			UserAgent: cfg.Geocode.UserAgent,
			Timeout:   cfg.Geocode.Timeout,
			CacheTTL:  cfg.Geocode.CacheTTL,
		}, cache, logger.With("component", "geocode"))
	}

	streamHandler := stream.NewHandler(v, store, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxPerIP,
		MaxConcurrent:      cfg.Stream.MaxTotal,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		TrustProxy:         cfg.Server.TrustProxy,
	}, logger)

	srv := api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		Auth:         auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token},
		TrustProxy:   cfg.Server.TrustProxy,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, api.Deps{
		Viewer:   v,
		Store:    store,
		Geocoder: geocoder,
		Stream:   streamHandler,
		Static:   web.Content,
		Ready: map[string]health.Check{
			"borders": func() error {
				if !v.Loaded() {
					return errors.New("not loaded")
				}
				return nil
			},
		},
	}, logger)

	// Open streams end with runCtx instead of holding up Shutdown.
	srv.HTTPServer().BaseContext = func(net.Listener) context.Context { return runCtx }

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.Server.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"source", source.Name(),
			"geocode_enabled", cfg.Geocode.Enabled,
			"nats_enabled", cfg.NATS.URL != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen: %w", err)
		}
	}
	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
