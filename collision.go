package thicket

import (
	"math"
	"sync"

	"github.com/akmonengine/thicket/actor"
	"github.com/akmonengine/thicket/bvh"
	"github.com/akmonengine/thicket/constraint"
	"github.com/akmonengine/thicket/gjk"
	"github.com/akmonengine/thicket/traverse"
	"github.com/go-gl/mathgl/mgl64"
)

// planeEpsilon is the distance under which a vertex counts as lying on a plane
const planeEpsilon = 1e-9

// Pair holds two bodies whose boxes overlap. BodyB is the heavier one, so
// that contact normals come from the surface of static actors. Equal masses
// put the smaller actor ID first.
type Pair struct {
	BodyA *Body
	BodyB *Body
}

func makePair(a, b *Body) Pair {
	invA, invB := a.Actor.InverseMass, b.Actor.InverseMass
	if invB > invA || (invB == invA && b.Actor.ID < a.Actor.ID) {
		a, b = b, a
	}

	return Pair{BodyA: a, BodyB: b}
}

// Manifold gathers the contacts found between the meshes of a pair
type Manifold struct {
	BodyA    *Body
	BodyB    *Body
	Contacts []constraint.Contact
}

// TriangleHit describes how two triangles intersect. Start and End bound
// the intersection segment; they are unset for coplanar triangles.
type TriangleHit struct {
	Start    mgl64.Vec3
	End      mgl64.Vec3
	Normal1  mgl64.Vec3
	Normal2  mgl64.Vec3
	Coplanar bool
}

// IntersectTriangles tests two world-space triangles. Touching triangles
// intersect.
func IntersectTriangles(t1, t2 actor.Triangle) (TriangleHit, bool) {
	n1, n2 := t1.Normal(), t2.Normal()
	if n1.LenSqr() == 0 || n2.LenSqr() == 0 {
		return TriangleHit{}, false
	}
	u1, u2 := n1.Normalize(), n2.Normalize()
	hit := TriangleHit{Normal1: n1, Normal2: n2}

	side2, onPlane2 := planeSide(t1.V1, u1, t2)
	if side2 != 0 {
		return hit, false
	}
	if onPlane2 {
		hit.Coplanar = true
		return hit, coplanarOverlap(t1, t2, u1)
	}

	if side1, _ := planeSide(t2.V1, u2, t1); side1 != 0 {
		return hit, false
	}

	if !gjk.Intersect(t1, t2) {
		return hit, false
	}

	// The segment runs along the line shared by both planes, between the
	// points where an edge of one triangle crosses the other
	line := u1.Cross(u2)
	lo, hi := math.Inf(1), math.Inf(-1)
	found := false
	pierce := func(t actor.Triangle, p, q mgl64.Vec3) {
		point, ok := t.IntersectSegment(p, q)
		if !ok {
			return
		}
		found = true
		if s := point.Dot(line); s < lo {
			lo, hit.Start = s, point
		}
		if s := point.Dot(line); s > hi {
			hi, hit.End = s, point
		}
	}

	v1, v2 := t1.Vertices(), t2.Vertices()
	for i := range 3 {
		pierce(t2, v1[i], v1[(i+1)%3])
		pierce(t1, v2[i], v2[(i+1)%3])
	}

	return hit, found
}

// planeSide returns 1 or -1 when every vertex of t lies strictly on one side
// of the plane through origin with unit normal, 0 otherwise. onPlane
// reports that every vertex lies on the plane.
func planeSide(origin, normal mgl64.Vec3, t actor.Triangle) (side int, onPlane bool) {
	above, below := 0, 0
	for _, v := range t.Vertices() {
		d := normal.Dot(v.Sub(origin))
		switch {
		case d > planeEpsilon:
			above++
		case d < -planeEpsilon:
			below++
		}
	}

	switch {
	case above == 3:
		return 1, false
	case below == 3:
		return -1, false
	}
	return 0, above == 0 && below == 0
}

// coplanarOverlap runs a separating axis test inside the common plane
func coplanarOverlap(t1, t2 actor.Triangle, normal mgl64.Vec3) bool {
	v1, v2 := t1.Vertices(), t2.Vertices()

	for _, vertices := range [2][3]mgl64.Vec3{v1, v2} {
		for i := range 3 {
			axis := normal.Cross(vertices[(i+1)%3].Sub(vertices[i]))
			min1, max1 := project(v1, axis)
			min2, max2 := project(v2, axis)
			if max1 < min2-planeEpsilon || max2 < min1-planeEpsilon {
				return false
			}
		}
	}

	return true
}

func project(vertices [3]mgl64.Vec3, axis mgl64.Vec3) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vertices {
		d := v.Dot(axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}

	return lo, hi
}

// trianglePolicy tests the triangles of two overlapping BVH leaves
type trianglePolicy struct {
	pair       Pair
	matrixA    mgl64.Mat4
	matrixB    mgl64.Mat4
	trianglesB []actor.Triangle
	contacts   []constraint.Contact
}

func (p *trianglePolicy) Process(rangeA, rangeB bvh.Range) {
	p.trianglesB = p.trianglesB[:0]
	for _, t := range p.pair.BodyB.BVH.Primitives(rangeB) {
		p.trianglesB = append(p.trianglesB, t.Transform(p.matrixB))
	}

	for _, local := range p.pair.BodyA.BVH.Primitives(rangeA) {
		t1 := local.Transform(p.matrixA)
		for _, t2 := range p.trianglesB {
			hit, ok := IntersectTriangles(t1, t2)
			if !ok {
				continue
			}
			p.contacts = append(p.contacts, p.contact(hit))
		}
	}
}

// contact places the contact at the middle of the intersection segment, or
// between the centers of mass for coplanar triangles, along the normal of
// the triangle of B
func (p *trianglePolicy) contact(hit TriangleHit) constraint.Contact {
	a, b := p.pair.BodyA.Actor, p.pair.BodyB.Actor

	start, end := hit.Start, hit.End
	if hit.Coplanar {
		start, end = a.CenterOfMass(), b.CenterOfMass()
	}

	return constraint.Contact{
		ActorA: a,
		ActorB: b,
		Point:  start.Add(end).Mul(0.5),
		Normal: hit.Normal2.Normalize(),
	}
}

var colliderPool = sync.Pool{
	New: func() interface{} {
		return traverse.NewCollider[int, bvh.Range]()
	},
}

// CollidePair walks the mesh hierarchies of a pair at their current
// transforms and returns the contacts between their triangles
func CollidePair(pair Pair) Manifold {
	collider := colliderPool.Get().(*traverse.Collider[int, bvh.Range])
	defer colliderPool.Put(collider)

	policy := &trianglePolicy{
		pair:    pair,
		matrixA: pair.BodyA.Actor.Transform.Mat4(),
		matrixB: pair.BodyB.Actor.Transform.Mat4(),
	}
	collider.Collide(
		bvh.NewView(pair.BodyA.BVH, policy.matrixA),
		bvh.NewView(pair.BodyB.BVH, policy.matrixB),
		policy)

	return Manifold{BodyA: pair.BodyA, BodyB: pair.BodyB, Contacts: policy.contacts}
}

// NarrowPhase collides the pairs on workersCount goroutines and keeps the
// manifolds with contacts, in pair order
func NarrowPhase(pairs []Pair, workersCount int) []Manifold {
	slots := make([]Manifold, len(pairs))
	indices := make([]int, len(pairs))
	for i := range indices {
		indices[i] = i
	}

	task(max(1, workersCount), indices, func(i int) {
		slots[i] = CollidePair(pairs[i])
	})

	n := 0
	for _, m := range slots {
		if len(m.Contacts) > 0 {
			slots[n] = m
			n++
		}
	}

	return slots[:n]
}
