package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/star/starglobe/internal/borders"
	"github.com/star/starglobe/internal/config"
	"github.com/star/starglobe/internal/globe"
	"github.com/star/starglobe/internal/logging"
	"github.com/star/starglobe/internal/tracker"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "starglobe",
		Short: "Wireframe globe with a live satellite marker",
		Long: `starglobe draws country borders on an orthographic globe, clips them to the
visible hemisphere and marks the current ground position of a satellite.

Examples:
  starglobe serve --borders world.geojson               # Serve the live globe on :8080
  starglobe render --borders world.geojson --lon 30 --out globe.svg
  starglobe locate --source tle                         # Print the current fix once`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a starglobe.yaml file")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "json", "log format: json or text")
	root.PersistentFlags().String("borders", "", "border dataset GeoJSON file")
	root.PersistentFlags().String("borders-url", "", "border dataset URL (cached on disk)")

	root.AddCommand(
		newServeCmd(&configPath),
		newRenderCmd(&configPath),
		newLocateCmd(&configPath),
	)
	return root
}

// loadConfig merges the command's local and inherited flags into the
// configuration and builds the logger.
func loadConfig(cmd *cobra.Command, configPath string) (*config.Config, *slog.Logger, error) {
	flags := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	flags.AddFlagSet(cmd.Flags())
	flags.AddFlagSet(cmd.InheritedFlags())

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr), nil
}

func newBorderSource(cfg *config.Config, logger *slog.Logger) *borders.Source {
	return borders.NewSource(borders.Config{
		Path:     cfg.Borders.Path,
		URL:      cfg.Borders.URL,
		CacheDir: cfg.Borders.CacheDir,
		MaxFiles: cfg.Borders.MaxFiles,
	}, logger.With("component", "borders"))
}

func newPositionSource(cfg *config.Config, logger *slog.Logger) (tracker.Source, error) {
	switch cfg.Tracker.Source {
	case "feed":
		return tracker.NewFeedSource(cfg.Tracker.FeedURL, cfg.Tracker.Timeout), nil
	case "tle":
		return tracker.NewTLESource(tracker.TLEConfig{
			URL:           cfg.Tracker.TLEURL,
			CatalogNumber: cfg.Tracker.TLECatalog,
			MaxAge:        cfg.Tracker.TLEMaxAge,
			Timeout:       cfg.Tracker.Timeout,
		}, logger.With("component", "tracker")), nil
	default:
		return nil, fmt.Errorf("unknown position source %q", cfg.Tracker.Source)
	}
}

// loadView builds a view of the configured size with the border dataset
// loaded.
func loadView(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*globe.View, error) {
	geoms, err := newBorderSource(cfg, logger).Load(ctx)
	if err != nil {
		return nil, err
	}
	v := globe.NewView(cfg.Globe.Width, cfg.Globe.Height, logger.With("component", "globe"))
	v.Load(geoms)
	return v, nil
}
