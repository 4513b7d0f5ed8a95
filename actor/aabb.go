package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyAABB returns an inverted box that any Extend or Union will overwrite
func EmptyAABB() AABB {
	return AABB{
		Min: mgl64.Vec3{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64},
		Max: mgl64.Vec3{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64},
	}
}

// NewAABB returns the smallest box enclosing all the points
func NewAABB(points ...mgl64.Vec3) AABB {
	box := EmptyAABB()
	for _, p := range points {
		box = box.Extend(p)
	}

	return box
}

// ContainsPoint checks if a point is inside the AABB
func (a AABB) ContainsPoint(point mgl64.Vec3) bool {
	return point.X() >= a.Min.X() && point.X() <= a.Max.X() &&
		point.Y() >= a.Min.Y() && point.Y() <= a.Max.Y() &&
		point.Z() >= a.Min.Z() && point.Z() <= a.Max.Z()
}

// Contains checks if other lies entirely inside the AABB
func (a AABB) Contains(other AABB) bool {
	return a.ContainsPoint(other.Min) && a.ContainsPoint(other.Max)
}

// Overlaps checks if two AABBs overlap, touching faces included
func (a AABB) Overlaps(other AABB) bool {
	// AABBs overlap if they overlap on all three axes
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// Union returns the smallest box enclosing both boxes
func (a AABB) Union(other AABB) AABB {
	return AABB{
		Min: mgl64.Vec3{
			math.Min(a.Min[0], other.Min[0]),
			math.Min(a.Min[1], other.Min[1]),
			math.Min(a.Min[2], other.Min[2]),
		},
		Max: mgl64.Vec3{
			math.Max(a.Max[0], other.Max[0]),
			math.Max(a.Max[1], other.Max[1]),
			math.Max(a.Max[2], other.Max[2]),
		},
	}
}

// Extend grows the box so that it contains point
func (a AABB) Extend(point mgl64.Vec3) AABB {
	return a.Union(AABB{Min: point, Max: point})
}

func (a AABB) Size() mgl64.Vec3 {
	return a.Max.Sub(a.Min)
}

func (a AABB) Center() mgl64.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// Area returns the surface area of the box, the cost metric of the trees
func (a AABB) Area() float64 {
	s := a.Size()
	return 2 * (s.X()*s.Y() + s.Y()*s.Z() + s.Z()*s.X())
}

// IsEmpty reports whether the box is inverted on any axis, as EmptyAABB is
func (a AABB) IsEmpty() bool {
	return a.Min.X() > a.Max.X() || a.Min.Y() > a.Max.Y() || a.Min.Z() > a.Max.Z()
}

// IsValid reports whether the box has no NaN component and is not inverted
func (a AABB) IsValid() bool {
	for i := range 3 {
		if math.IsNaN(a.Min[i]) || math.IsNaN(a.Max[i]) {
			return false
		}
	}

	return !a.IsEmpty()
}

// LongestAxis returns 0, 1 or 2 for the axis of greatest extent.
// Ties resolve toward the later axis.
func (a AABB) LongestAxis() int {
	s := a.Size()
	if s.X() > s.Y() && s.X() > s.Z() {
		return 0
	}
	if s.Y() > s.Z() {
		return 1
	}

	return 2
}

// Transform returns the box enclosing the 8 corners of a after applying m
func (a AABB) Transform(m mgl64.Mat4) AABB {
	box := EmptyAABB()
	for i := range 8 {
		corner := mgl64.Vec3{a.Min[0], a.Min[1], a.Min[2]}
		if i&1 != 0 {
			corner[0] = a.Max[0]
		}
		if i&2 != 0 {
			corner[1] = a.Max[1]
		}
		if i&4 != 0 {
			corner[2] = a.Max[2]
		}
		box = box.Extend(mgl64.TransformCoordinate(corner, m))
	}

	return box
}
