package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/starglobe/internal/geocode"
	"github.com/star/starglobe/internal/tracker"
)

func newLocateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Fetch the satellite position once and describe where it is",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			source, err := newPositionSource(cfg, logger)
			if err != nil {
				return err
			}

			var geocoder *geocode.Client
			if cfg.Geocode.Enabled {
				geocoder = geocode.NewClient(geocode.Config{
					URL:       cfg.Geocode.URL,
					UserAgent: cfg.Geocode.UserAgent,
					Timeout:   cfg.Geocode.Timeout,
				}, nil, logger.With("component", "geocode"))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return locate(ctx, cmd.OutOrStdout(), source, geocoder)
		},
	}
	cmd.Flags().String("source", "feed", "position source: feed or tle")
	cmd.Flags().Bool("geocode", true, "describe the position with a reverse geocode lookup")
	return cmd
}

func locate(ctx context.Context, w io.Writer, source tracker.Source, geocoder *geocode.Client) error {
	pos, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch position from %s: %w", source.Name(), err)
	}

	fmt.Fprintf(w, "source:    %s\n", source.Name())
	fmt.Fprintf(w, "time:      %s\n", pos.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "longitude: %.4f\n", pos.Lon)
	fmt.Fprintf(w, "latitude:  %.4f\n", pos.Lat)
	if geocoder != nil {
		fmt.Fprintf(w, "location:  %s\n", geocoder.Describe(ctx, pos.Lat, pos.Lon))
	}
	return nil
}
