package render

import (
	"fmt"
	"image/color"

	"github.com/star/starglobe/internal/clip"
)

// Surface is the drawing target of a draw pass. Paths are filled with an
// implicit closing edge; colors are alpha-blended over what is already drawn.
type Surface interface {
	Clear()
	FillPath(path clip.Path, fill color.NRGBA)
	FillEllipse(cx, cy, rx, ry float64, fill color.NRGBA)
}

// Call is one operation captured by a Recorder.
type Call struct {
	Kind string    `json:"kind"`
	Fill string    `json:"fill,omitempty"`
	Path clip.Path `json:"path,omitempty"`
	CX   float64   `json:"cx,omitempty"`
	CY   float64   `json:"cy,omitempty"`
	RX   float64   `json:"rx,omitempty"`
	RY   float64   `json:"ry,omitempty"`
}

// Call kinds.
const (
	KindClear   = "clear"
	KindPath    = "path"
	KindEllipse = "ellipse"
)

// Recorder is a Surface that keeps every operation in memory.
type Recorder struct {
	Calls []Call `json:"calls"`
}

func (r *Recorder) Clear() {
	r.Calls = append(r.Calls[:0], Call{Kind: KindClear})
}

func (r *Recorder) FillPath(path clip.Path, fill color.NRGBA) {
	r.Calls = append(r.Calls, Call{Kind: KindPath, Fill: CSSColor(fill), Path: path})
}

func (r *Recorder) FillEllipse(cx, cy, rx, ry float64, fill color.NRGBA) {
	r.Calls = append(r.Calls, Call{Kind: KindEllipse, Fill: CSSColor(fill), CX: cx, CY: cy, RX: rx, RY: ry})
}

// CSSColor formats c as a CSS rgba() value.
func CSSColor(c color.NRGBA) string {
	return fmt.Sprintf("rgba(%d,%d,%d,%.3g)", c.R, c.G, c.B, float64(c.A)/255)
}
