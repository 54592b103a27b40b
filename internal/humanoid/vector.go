// internal/humanoid/vector.go
package humanoid

import "math"

// Vector2D is a point or direction in screen space.
type Vector2D struct {
	X float64
	Y float64
}

func (v Vector2D) Add(other Vector2D) Vector2D { return Vector2D{X: v.X + other.X, Y: v.Y + other.Y} }
func (v Vector2D) Sub(other Vector2D) Vector2D { return Vector2D{X: v.X - other.X, Y: v.Y - other.Y} }
func (v Vector2D) Mul(scalar float64) Vector2D { return Vector2D{X: v.X * scalar, Y: v.Y * scalar} }

// Mag returns the Euclidean length.
func (v Vector2D) Mag() float64 { return math.Hypot(v.X, v.Y) }

// Normalize returns the unit vector, or the zero vector for near-zero input.
func (v Vector2D) Normalize() Vector2D {
	mag := v.Mag()
	if mag < 1e-9 {
		return Vector2D{}
	}
	return v.Mul(1.0 / mag)
}

// Perp returns v rotated a quarter turn counter-clockwise.
func (v Vector2D) Perp() Vector2D { return Vector2D{X: -v.Y, Y: v.X} }

// Dist returns the distance between two points.
func (v Vector2D) Dist(other Vector2D) float64 { return math.Hypot(v.X-other.X, v.Y-other.Y) }

// Point builds a Vector2D from integer pixel coordinates.
func Point(x, y int) Vector2D { return Vector2D{X: float64(x), Y: float64(y)} }
