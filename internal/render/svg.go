package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/star/starglobe/internal/clip"
)

// SVGSurface draws into an in-memory SVG document.
type SVGSurface struct {
	width, height int

	buf    bytes.Buffer
	canvas *svg.SVG
	ended  bool
}

// NewSVGSurface creates a surface for a width x height document.
func NewSVGSurface(width, height int) *SVGSurface {
	s := &SVGSurface{width: width, height: height}
	s.Clear()
	return s
}

// Clear discards everything drawn so far and starts a new document.
func (s *SVGSurface) Clear() {
	s.buf.Reset()
	s.canvas = svg.New(&s.buf)
	s.canvas.Start(s.width, s.height)
	s.ended = false
}

func (s *SVGSurface) FillPath(path clip.Path, fill color.NRGBA) {
	if len(path) == 0 {
		return
	}
	s.canvas.Path(PathData(path), fillStyle(fill))
}

func (s *SVGSurface) FillEllipse(cx, cy, rx, ry float64, fill color.NRGBA) {
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, cx-rx, cy)
	for _, x := range []float64{cx + rx, cx - rx} {
		fmt.Fprintf(&b, " A%s,%s 0 1,0 ", num(rx), num(ry))
		writePoint(&b, x, cy)
	}
	b.WriteString(" Z")
	s.canvas.Path(b.String(), fillStyle(fill))
}

// Bytes closes the document and returns it. Further drawing requires Clear.
func (s *SVGSurface) Bytes() []byte {
	if !s.ended {
		s.canvas.End()
		s.ended = true
	}
	return bytes.Clone(s.buf.Bytes())
}

func fillStyle(c color.NRGBA) string {
	return fmt.Sprintf("fill:rgb(%d,%d,%d);fill-opacity:%.3g;stroke:none", c.R, c.G, c.B, float64(c.A)/255)
}

// PathData converts a primitive sequence to SVG path data. An Arc starts with
// a line (or move, at the beginning of the path) to its start point, then
// sweeps to its end point. The path is closed with Z.
func PathData(path clip.Path) string {
	var b strings.Builder
	open := false
	for _, p := range path {
		switch p.Op {
		case clip.MoveTo:
			sep(&b)
			b.WriteString("M")
			writePoint(&b, p.X, p.Y)
			open = true
		case clip.LineTo:
			sep(&b)
			if open {
				b.WriteString("L")
			} else {
				b.WriteString("M")
				open = true
			}
			writePoint(&b, p.X, p.Y)
		case clip.Arc:
			sx, sy := p.CX+p.Radius*math.Cos(p.Start), p.CY+p.Radius*math.Sin(p.Start)
			ex, ey := p.CX+p.Radius*math.Cos(p.End), p.CY+p.Radius*math.Sin(p.End)
			sep(&b)
			if open {
				b.WriteString("L")
			} else {
				b.WriteString("M")
				open = true
			}
			writePoint(&b, sx, sy)

			sweep := arcSweep(p)
			if sweep == 0 {
				continue
			}
			large, dir := 0, 1
			if sweep > math.Pi {
				large = 1
			}
			if p.CCW {
				dir = 0
			}
			fmt.Fprintf(&b, " A%s,%s 0 %d,%d ", num(p.Radius), num(p.Radius), large, dir)
			writePoint(&b, ex, ey)
		}
	}
	if open {
		b.WriteString(" Z")
	}
	return b.String()
}

// arcSweep returns the angle p covers in its drawing direction, in [0, 2π).
func arcSweep(p clip.Primitive) float64 {
	d := p.End - p.Start
	if p.CCW {
		d = -d
	}
	d = math.Mod(d, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d
}

func sep(b *strings.Builder) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
}

func writePoint(b *strings.Builder, x, y float64) {
	b.WriteString(num(x))
	b.WriteByte(',')
	b.WriteString(num(y))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
