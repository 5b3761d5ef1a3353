package geom

import (
	"math"

	"laneval/internal/model"
)

// PlanarDistance is the Euclidean distance between two map positions,
// ignoring elevation.
func PlanarDistance(a, b model.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Hypot(dx, dy)
}

// NormalizeAngle wraps an angle in radians to (-pi, pi].
func NormalizeAngle(rad float64) float64 {
	wrapped := math.Mod(rad, 2*math.Pi)
	if wrapped > math.Pi {
		wrapped -= 2 * math.Pi
	} else if wrapped <= -math.Pi {
		wrapped += 2 * math.Pi
	}
	return wrapped
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
