package models

// Direction selects whether lines run along rows or columns of the image.
type Direction int

const (
	// Horizontal sorts along rows: a line is a row, its length is the image width.
	Horizontal Direction = iota

	// Vertical sorts along columns: a line is a column, its length is the image height.
	Vertical
)

// String returns the configuration name of the direction
func (d Direction) String() string {
	switch d {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return "unknown"
	}
}

// Window is the closed threshold interval [Min, Max] a key must fall into
// for its pixel to be sortable.
type Window struct {
	Min float32
	Max float32
}

// Contains reports whether key lies inside the window.
// An inverted window contains nothing.
func (w Window) Contains(key float32) bool {
	return key >= w.Min && key <= w.Max
}

// RunBounds is the half-open range [Start, End) of the run a pixel belongs to,
// expressed as indices along the pixel's line.
type RunBounds struct {
	Start int32
	End   int32
}

// NoRun marks a pixel that is not part of any run
var NoRun = RunBounds{Start: -1, End: -1}

// InRun reports whether the bounds describe a real run
func (r RunBounds) InRun() bool {
	return r.Start >= 0 && r.End > r.Start
}

// Len returns the number of pixels in the run, zero for NoRun
func (r RunBounds) Len() int {
	if !r.InRun() {
		return 0
	}
	return int(r.End - r.Start)
}

// Geometry maps the (line, index) space used by the sorter onto image
// coordinates. Buffers indexed by geometry are laid out line-major:
// element (line, i) lives at line*Size + i.
type Geometry struct {
	// Width and Height are the image dimensions in pixels
	Width, Height int

	// Direction fixes which dimension is the line
	Direction Direction

	// Size is the length of a line
	Size int

	// Lines is the number of independent lines
	Lines int
}

// NewGeometry derives the line geometry of a width x height image
func NewGeometry(width, height int, dir Direction) Geometry {
	g := Geometry{Width: width, Height: height, Direction: dir}
	if dir == Vertical {
		g.Size, g.Lines = height, width
	} else {
		g.Size, g.Lines = width, height
	}
	return g
}

// Empty reports whether the geometry holds no pixels
func (g Geometry) Empty() bool {
	return g.Width <= 0 || g.Height <= 0
}

// Point returns the image-relative coordinate of element i on the given line
func (g Geometry) Point(line, i int) (x, y int) {
	if g.Direction == Vertical {
		return line, i
	}
	return i, line
}

// Offset returns the line-major buffer offset of element i on the given line
func (g Geometry) Offset(line, i int) int {
	return line*g.Size + i
}

// Len returns the number of elements in a line-major buffer for this geometry
func (g Geometry) Len() int {
	return g.Size * g.Lines
}
