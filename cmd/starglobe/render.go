package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/star/starglobe/internal/globe"
	"github.com/star/starglobe/internal/render"
	"github.com/star/starglobe/internal/sphere"
)

type renderOptions struct {
	lon, lat float64
	rotation float64
	format   string
	out      string
}

// renderResult is the json output of the render command.
type renderResult struct {
	Report render.DrawReport `json:"report"`
	State  globe.Stats       `json:"state"`
	Calls  []render.Call     `json:"calls"`
}

func newRenderCmd(configPath *string) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw one frame of the globe to a file or stdout",
		Long: `Draw one frame of the globe. With --lon/--lat a satellite marker is placed
at that ground position.

Formats:
  svg   the rendered image
  json  the draw report, view state and every recorded drawing call`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			view, err := loadView(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			var sat *sphere.GeoPoint
			if cmd.Flags().Changed("lon") || cmd.Flags().Changed("lat") {
				sat = &sphere.GeoPoint{Lon: opts.lon, Lat: opts.lat}
			}

			if opts.out == "" || opts.out == "-" {
				return renderFrame(cmd.OutOrStdout(), view, sat, opts)
			}
			return writeFile(opts.out, func(w io.Writer) error {
				return renderFrame(w, view, sat, opts)
			})
		},
	}
	cmd.Flags().Float64Var(&opts.lon, "lon", 0, "satellite longitude in degrees")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "satellite latitude in degrees")
	cmd.Flags().Float64Var(&opts.rotation, "rotation", 0, "globe rotation in radians")
	cmd.Flags().StringVar(&opts.format, "format", "svg", "output format: svg or json")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "-", "output file (- for stdout)")
	cmd.Flags().Float64("width", 800, "globe width in pixels")
	cmd.Flags().Float64("height", 800, "globe height in pixels")
	return cmd
}

// writeFile creates path and hands it to write. A failed close is returned
// like a failed write.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return write(f)
}

func renderFrame(w io.Writer, view *globe.View, sat *sphere.GeoPoint, opts renderOptions) error {
	if sat != nil {
		if sat.Lon < -180 || sat.Lon > 180 || sat.Lat < -90 || sat.Lat > 90 {
			return fmt.Errorf("satellite position %v,%v out of range", sat.Lon, sat.Lat)
		}
	}
	view.ApplyRotation(opts.rotation)
	r := render.New(render.DefaultStyle())

	switch opts.format {
	case "svg":
		width, height := view.Size()
		s := render.NewSVGSurface(int(width), int(height))
		r.Draw(s, view, sat)
		_, err := w.Write(s.Bytes())
		return err
	case "json":
		rec := &render.Recorder{}
		rep := r.Draw(rec, view, sat)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(renderResult{Report: rep, State: view.Stats(), Calls: rec.Calls})
	default:
		return fmt.Errorf("unknown format %q, want svg or json", opts.format)
	}
}
