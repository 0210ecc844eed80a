package clip

import "fmt"

// Op identifies a drawing primitive.
type Op uint8

const (
	MoveTo Op = iota + 1
	LineTo
	Arc
)

func (o Op) String() string {
	switch o {
	case MoveTo:
		return "move_to"
	case LineTo:
		return "line_to"
	case Arc:
		return "arc"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// MarshalText renders the op name in JSON payloads.
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an op name written by MarshalText.
func (o *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "move_to":
		*o = MoveTo
	case "line_to":
		*o = LineTo
	case "arc":
		*o = Arc
	default:
		return fmt.Errorf("unknown op %q", b)
	}
	return nil
}

// Primitive is one step of a screen-space path.
//
// MoveTo and LineTo use X and Y. Arc traces the circle of Radius around
// (CX, CY) from angle Start to End in canvas convention (y grows downwards,
// so increasing angles run clockwise on screen); CCW selects the decreasing
// direction. An Arc implicitly connects the current point to its start.
type Primitive struct {
	Op     Op      `json:"op"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	CX     float64 `json:"cx,omitempty"`
	CY     float64 `json:"cy,omitempty"`
	Radius float64 `json:"r,omitempty"`
	Start  float64 `json:"start,omitempty"`
	End    float64 `json:"end,omitempty"`
	CCW    bool    `json:"ccw,omitempty"`
}

// Path is an ordered primitive sequence. Surfaces close it implicitly when
// filling.
type Path []Primitive

// Count returns how many primitives in p have the given op.
func (p Path) Count(op Op) int {
	var n int
	for _, prim := range p {
		if prim.Op == op {
			n++
		}
	}
	return n
}
