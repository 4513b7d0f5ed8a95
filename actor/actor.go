package actor

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultRestitution is the bounce factor given to new actors
const DefaultRestitution = 0.9

var nextID atomic.Uint64

type Material struct {
	Restitution    float64 // 0= no rebound, 1= perfect restitution
	LinearDamping  float64 // 0.0 - 1.0
	AngularDamping float64 // 0.0 - 1.0
}

// Actor is a mesh object moving in the world
type Actor struct {
	ID   uint64
	Name string

	Transform Transform

	Velocity        mgl64.Vec3 // Linear velocity (m/s)
	AngularVelocity mgl64.Vec3 // Axis-angle rate (rad/s)

	// InverseMass is 0 for static actors (infinite mass)
	InverseMass float64
	Material    Material

	// IsTrigger actors report events but receive no contact response
	IsTrigger bool

	// Collision geometry in local space
	Mesh *TriangleMesh

	aabb AABB
}

// NewActor creates an actor around mesh. A mass of 0 or +Inf makes it static.
func NewActor(name string, transform Transform, mesh *TriangleMesh, mass float64) *Actor {
	if transform.Rotation == (mgl64.Quat{}) {
		transform.Rotation = mgl64.QuatIdent()
	}
	transform.InverseRotation = transform.Rotation.Inverse()

	a := &Actor{
		ID:        nextID.Add(1),
		Name:      name,
		Transform: transform,
		Mesh:      mesh,
		Material:  Material{Restitution: DefaultRestitution},
	}
	if mass > 0 && !math.IsInf(mass, 1) {
		a.InverseMass = 1.0 / mass
	}
	a.ComputeAABB()

	return a
}

func (a *Actor) IsStatic() bool {
	return a.InverseMass == 0
}

// CenterOfMass is the actor origin; meshes are built around their own center
func (a *Actor) CenterOfMass() mgl64.Vec3 {
	return a.Transform.Position
}

// ComputeAABB recomputes the world-space box from the transformed mesh vertices
func (a *Actor) ComputeAABB() {
	if a.Mesh == nil || a.Mesh.Len() == 0 {
		a.aabb = AABB{Min: a.Transform.Position, Max: a.Transform.Position}
		return
	}

	m := a.Transform.Mat4()
	box := EmptyAABB()
	for _, t := range a.Mesh.Triangles {
		box = box.Union(t.Transform(m).Bounds())
	}
	a.aabb = box
}

// Bounds returns the world-space box computed by the last ComputeAABB
func (a *Actor) Bounds() AABB {
	return a.aabb
}

func (a *Actor) Translate(delta mgl64.Vec3) {
	a.Transform.Translate(delta)
}

func (a *Actor) Rotate(angles mgl64.Vec3) {
	a.Transform.Rotate(angles)
}

// Integrate advances a dynamic actor by dt and refreshes its box.
// Returns false when the actor did not move.
func (a *Actor) Integrate(dt float64, gravity mgl64.Vec3) bool {
	a.IntegrateVelocity(dt, gravity)
	return a.Update(dt)
}

// IntegrateVelocity applies gravity and damping to a dynamic actor
func (a *Actor) IntegrateVelocity(dt float64, gravity mgl64.Vec3) {
	if a.IsStatic() {
		return
	}

	a.Velocity = a.Velocity.Add(gravity.Mul(dt))
	a.Velocity = a.Velocity.Mul(math.Exp(-a.Material.LinearDamping * dt))
	a.AngularVelocity = a.AngularVelocity.Mul(math.Exp(-a.Material.AngularDamping * dt))
}

// Update moves a dynamic actor along its velocities and refreshes its box
func (a *Actor) Update(dt float64) bool {
	if a.IsStatic() {
		return false
	}
	if a.Velocity.LenSqr() == 0 && a.AngularVelocity.LenSqr() == 0 {
		return false
	}

	a.Translate(a.Velocity.Mul(dt))
	a.Rotate(a.AngularVelocity.Mul(dt))
	a.ComputeAABB()

	return true
}
