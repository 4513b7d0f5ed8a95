package actor

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Triangle is a mesh face, wound counter-clockwise around its normal
type Triangle struct {
	V1, V2, V3 mgl64.Vec3
}

func (t Triangle) Bounds() AABB {
	return NewAABB(t.V1, t.V2, t.V3)
}

func (t Triangle) Centroid() mgl64.Vec3 {
	return t.V1.Add(t.V2).Add(t.V3).Mul(1.0 / 3.0)
}

// Center is the centroid, used as the GJK starting point
func (t Triangle) Center() mgl64.Vec3 {
	return t.Centroid()
}

// Normal returns the unnormalized face normal (V2-V1)x(V3-V1)
func (t Triangle) Normal() mgl64.Vec3 {
	return t.V2.Sub(t.V1).Cross(t.V3.Sub(t.V1))
}

// Transform returns the triangle with every vertex mapped by m
func (t Triangle) Transform(m mgl64.Mat4) Triangle {
	return Triangle{
		V1: mgl64.TransformCoordinate(t.V1, m),
		V2: mgl64.TransformCoordinate(t.V2, m),
		V3: mgl64.TransformCoordinate(t.V3, m),
	}
}

// Support returns the vertex furthest along direction
func (t Triangle) Support(direction mgl64.Vec3) mgl64.Vec3 {
	best := t.V1
	bestDot := t.V1.Dot(direction)
	if d := t.V2.Dot(direction); d > bestDot {
		best, bestDot = t.V2, d
	}
	if d := t.V3.Dot(direction); d > bestDot {
		best = t.V3
	}

	return best
}

// Vertices returns the three corners in winding order
func (t Triangle) Vertices() [3]mgl64.Vec3 {
	return [3]mgl64.Vec3{t.V1, t.V2, t.V3}
}

// IntersectSegment returns the point where segment pq crosses the triangle.
// Segments lying in the triangle plane are reported as not crossing.
func (t Triangle) IntersectSegment(p, q mgl64.Vec3) (mgl64.Vec3, bool) {
	n := t.Normal()
	dir := q.Sub(p)
	denom := n.Dot(dir)
	if denom*denom < 1e-18*n.LenSqr()*dir.LenSqr() {
		return mgl64.Vec3{}, false
	}

	s := n.Dot(t.V1.Sub(p)) / denom
	if s < 0 || s > 1 {
		return mgl64.Vec3{}, false
	}

	point := p.Add(dir.Mul(s))
	if !t.containsCoplanarPoint(point, n) {
		return mgl64.Vec3{}, false
	}

	return point, true
}

// containsCoplanarPoint tests a point already on the triangle plane, edges included
func (t Triangle) containsCoplanarPoint(point, n mgl64.Vec3) bool {
	const eps = -1e-12

	scale := n.LenSqr()
	if t.V2.Sub(t.V1).Cross(point.Sub(t.V1)).Dot(n) < eps*scale {
		return false
	}
	if t.V3.Sub(t.V2).Cross(point.Sub(t.V2)).Dot(n) < eps*scale {
		return false
	}
	if t.V1.Sub(t.V3).Cross(point.Sub(t.V3)).Dot(n) < eps*scale {
		return false
	}

	return true
}
