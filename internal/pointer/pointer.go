// Package pointer maps viewport pointer coordinates onto display surface
// pixels.
package pointer

import (
	"image"
	"math"
)

// MaxCoord bounds pixel coordinates so that offsets around a position
// cannot overflow int.
const MaxCoord = 1 << 30

// Rect is the on-screen bounding rectangle of a display surface, in
// viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Position is a pointer location in surface pixel space.
type Position struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// Map converts viewport coordinates into surface coordinates. The result is
// not clamped: positions near the edges may fall outside the surface.
func Map(clientX, clientY float64, r Rect) Position {
	return Position{
		X:       clientX - r.Left,
		Y:       clientY - r.Top,
		Visible: true,
	}
}

// Pixel returns the integer pixel the position falls in. Coordinates are
// saturated to ±MaxCoord and NaN maps to 0.
func (p Position) Pixel() image.Point {
	return image.Pt(saturate(p.X), saturate(p.Y))
}

// Finite reports whether both coordinates are finite and within MaxCoord.
func (p Position) Finite() bool {
	return inRange(p.X) && inRange(p.Y)
}

// Finite reports whether every field of the rectangle is a finite number
// within MaxCoord.
func (r Rect) Finite() bool {
	return inRange(r.Left) && inRange(r.Top) && inRange(r.Width) && inRange(r.Height)
}

func inRange(v float64) bool {
	return !math.IsNaN(v) && math.Abs(v) <= MaxCoord
}

func saturate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= MaxCoord:
		return MaxCoord
	case v <= -MaxCoord:
		return -MaxCoord
	}
	return int(math.Floor(v))
}

// Inside reports whether the position lies within a w x h surface.
func (p Position) Inside(w, h int) bool {
	return p.Pixel().In(image.Rect(0, 0, w, h))
}

// Hide returns the position with its visibility cleared. Coordinates are
// kept so a later commit still sees the last recorded location.
func (p Position) Hide() Position {
	p.Visible = false
	return p
}
