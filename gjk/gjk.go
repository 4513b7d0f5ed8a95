// Package gjk tests two convex shapes for overlap with the
// Gilbert-Johnson-Keerthi algorithm.
//
// The shapes overlap when their Minkowski difference contains the origin. The
// search grows a simplex of support points toward the origin and stops as
// soon as a support point fails to pass it, or a tetrahedron encloses it.
//
// Shapes only provide a support function, so the same code serves mesh
// triangles and point hulls.
package gjk

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// MaxIterations bounds the refinement loop
const MaxIterations = 32

// Convex is a convex shape in world space
type Convex interface {
	// Support returns the point of the shape furthest along direction
	Support(direction mgl64.Vec3) mgl64.Vec3
	// Center returns any point inside the shape, used to seed the search
	Center() mgl64.Vec3
}

// Hull is the convex hull of a point set
type Hull []mgl64.Vec3

func (h Hull) Support(direction mgl64.Vec3) mgl64.Vec3 {
	best := h[0]
	bestDot := best.Dot(direction)
	for _, p := range h[1:] {
		if d := p.Dot(direction); d > bestDot {
			best, bestDot = p, d
		}
	}

	return best
}

func (h Hull) Center() mgl64.Vec3 {
	var sum mgl64.Vec3
	for _, p := range h {
		sum = sum.Add(p)
	}

	return sum.Mul(1 / float64(len(h)))
}

// Simplex holds 1 to 4 points of the Minkowski difference, the most recent last
type Simplex struct {
	Points [4]mgl64.Vec3
	Count  int
}

func (s *Simplex) Reset() {
	s.Count = 0
}

var SimplexPool = sync.Pool{
	New: func() interface{} {
		return &Simplex{}
	},
}

// MinkowskiSupport returns the support point of A - B along direction
func MinkowskiSupport(a, b Convex, direction mgl64.Vec3) mgl64.Vec3 {
	return a.Support(direction).Sub(b.Support(direction.Mul(-1)))
}

// GJK reports whether a and b overlap. Touching shapes count as overlapping.
// On overlap the simplex usually ends as a tetrahedron around the origin.
func GJK(a, b Convex, simplex *Simplex) bool {
	direction := b.Center().Sub(a.Center())
	if direction.LenSqr() < 1e-8 {
		direction = mgl64.Vec3{1, 0, 0}
	}

	simplex.Points[0] = MinkowskiSupport(a, b, direction)
	simplex.Count = 1

	direction = simplex.Points[0].Mul(-1)
	if direction.LenSqr() < 1e-16 {
		return true
	}

	for range MaxIterations {
		point := MinkowskiSupport(a, b, direction)

		// The origin lies beyond the furthest reachable point
		if point.Dot(direction) <= 0 {
			return false
		}

		simplex.Points[simplex.Count] = point
		simplex.Count++

		if containsOrigin(simplex, &direction) {
			return true
		}
	}

	return false
}

// Intersect runs GJK with a pooled simplex
func Intersect(a, b Convex) bool {
	simplex := SimplexPool.Get().(*Simplex)
	defer SimplexPool.Put(simplex)
	simplex.Reset()

	return GJK(a, b, simplex)
}

// containsOrigin keeps the feature of the simplex closest to the origin and
// points direction from it toward the origin
func containsOrigin(simplex *Simplex, direction *mgl64.Vec3) bool {
	switch simplex.Count {
	case 2:
		return line(simplex, direction)
	case 3:
		return triangle(simplex, direction)
	case 4:
		return tetrahedron(simplex, direction)
	}
	return false
}

// line handles the segment AB, A being the newest point
func line(simplex *Simplex, direction *mgl64.Vec3) bool {
	a := simplex.Points[1]
	b := simplex.Points[0]
	ab := b.Sub(a)
	ao := a.Mul(-1)

	if ab.LenSqr() < 1e-8 {
		if ao.LenSqr() < 1e-8 {
			return true
		}
		simplex.Points[0] = a
		simplex.Count = 1
		*direction = ao
		return false
	}

	// Origin behind A
	if ab.Dot(ao) <= 0 {
		simplex.Points[0] = a
		simplex.Count = 1
		*direction = ao
		return false
	}

	perp := ab.Cross(ao).Cross(ab)
	if perp.LenSqr() < 1e-8 {
		// Origin on the segment
		return true
	}

	*direction = perp
	return false
}

// triangle handles ABC, A being the newest point. A triangle never encloses
// the origin in 3D, it only narrows the search.
func triangle(simplex *Simplex, direction *mgl64.Vec3) bool {
	a := simplex.Points[2]
	b := simplex.Points[1]
	c := simplex.Points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ao := a.Mul(-1)
	abc := ab.Cross(ac)

	// Collinear points, drop C
	if abc.LenSqr() < 1e-10 {
		simplex.Points[0] = b
		simplex.Points[1] = a
		simplex.Count = 2
		return line(simplex, direction)
	}

	if ab.Cross(abc).Dot(ao) > 0 {
		simplex.Points[0] = b
		simplex.Points[1] = a
		simplex.Count = 2
		*direction = ab.Cross(ao).Cross(ab)
		return false
	}

	if abc.Cross(ac).Dot(ao) > 0 {
		simplex.Points[0] = c
		simplex.Points[1] = a
		simplex.Count = 2
		*direction = ac.Cross(ao).Cross(ac)
		return false
	}

	if abc.Dot(ao) > 0 {
		*direction = abc
	} else {
		// Flip the winding so the normal faces the origin
		simplex.Points[0] = a
		simplex.Points[1] = c
		simplex.Points[2] = b
		simplex.Count = 3
		*direction = abc.Mul(-1)
	}

	return false
}

// tetrahedron handles ABCD, A being the newest point. The face normals are
// oriented away from the opposite vertex before the origin is tested against
// each face.
func tetrahedron(simplex *Simplex, direction *mgl64.Vec3) bool {
	a := simplex.Points[3]
	b := simplex.Points[2]
	c := simplex.Points[1]
	d := simplex.Points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ad := d.Sub(a)
	ao := a.Mul(-1)

	abc := outward(ab.Cross(ac), ad)
	acd := outward(ac.Cross(ad), ab)
	adb := outward(ad.Cross(ab), ac)

	reduce := func(p0, p1, p2 mgl64.Vec3) bool {
		simplex.Points[0] = p0
		simplex.Points[1] = p1
		simplex.Points[2] = p2
		simplex.Count = 3
		return triangle(simplex, direction)
	}

	// Flat tetrahedron
	if abc.LenSqr() < 1e-10 || acd.LenSqr() < 1e-10 || adb.LenSqr() < 1e-10 {
		return reduce(c, b, a)
	}

	switch {
	case abc.Dot(ao) > 0:
		return reduce(c, b, a)
	case acd.Dot(ao) > 0:
		return reduce(d, c, a)
	case adb.Dot(ao) > 0:
		return reduce(b, d, a)
	}

	return true
}

// outward flips normal when it points toward the opposite vertex
func outward(normal, toOpposite mgl64.Vec3) mgl64.Vec3 {
	if normal.Dot(toOpposite) > 0 {
		return normal.Mul(-1)
	}
	return normal
}
