package globe

// Sensitivity converts horizontal pointer movement in pixels to radians.
const Sensitivity = 0.01

// Controller turns pointer input into globe rotation. Like View it must only be
// used from the goroutine that owns the view.
type Controller struct {
	view   *View
	redraw func()

	pressed          bool
	originX, originY float64
}

// NewController creates a Controller for view. redraw is called after every
// change to the view; it may be nil.
func NewController(view *View, redraw func()) *Controller {
	if redraw == nil {
		redraw = func() {}
	}
	return &Controller{view: view, redraw: redraw}
}

// Press records the start of a gesture.
func (c *Controller) Press(x, y float64) {
	c.pressed = true
	c.originX, c.originY = x, y
}

// Release rotates by the horizontal distance since Press, if a gesture is
// open, and closes it.
func (c *Controller) Release(x, y float64) {
	if c.pressed {
		c.rotate(c.originX - x)
	}
	c.pressed = false
}

// Drag rotates by dx for live feedback. A drag cancels any open press so the
// same movement is not applied again on release.
func (c *Controller) Drag(dx, dy float64) {
	c.rotate(dx)
	c.pressed = false
}

// Resize adapts the view to a new surface size. The accumulated rotation is
// lost because the polygons are rebuilt from source.
func (c *Controller) Resize(width, height float64) {
	c.view.Resize(width, height)
	c.redraw()
}

func (c *Controller) rotate(dx float64) {
	c.view.ApplyRotation(-dx * Sensitivity)
	c.redraw()
}

// Pressed reports whether a gesture is open.
func (c *Controller) Pressed() bool {
	return c.pressed
}
