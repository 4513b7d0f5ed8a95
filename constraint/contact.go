package constraint

import (
	"github.com/akmonengine/thicket/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// SeparationNudge is the distance a dynamic actor is pushed along the normal
// after a contact, so that it leaves the overlap on the next step
const SeparationNudge = 0.0001

// Contact is a single point of contact between two actors. Normal is unit
// length and points from B toward A.
type Contact struct {
	ActorA *actor.Actor
	ActorB *actor.Actor
	Point  mgl64.Vec3
	Normal mgl64.Vec3
}

// Impulse returns the magnitude of the impulse along Normal that reverses the
// approach speed, scaled by the combined restitution. Actors moving apart, or
// two static actors, get 0.
func (c *Contact) Impulse() float64 {
	a, b := c.ActorA, c.ActorB
	n := c.Normal

	// Never pull the actors together
	vab := a.Velocity.Sub(b.Velocity)
	approach := vab.Dot(n)
	if approach >= 0 {
		return 0
	}

	invA, invB := a.InverseMass, b.InverseMass
	rA := c.Point.Sub(a.CenterOfMass())
	rB := c.Point.Sub(b.CenterOfMass())

	angular := rA.Cross(n).Mul(invA).Cross(rA).Add(rB.Cross(n).Mul(invB).Cross(rB))
	denominator := n.Dot(n.Mul(invA+invB)) + angular.Dot(n)
	if denominator < 1e-12 {
		return 0
	}

	e := ComputeRestitution(a.Material, b.Material)
	return -(1 + e) * approach / denominator
}

// Resolve applies the impulse to both actors and nudges the dynamic ones apart
func (c *Contact) Resolve() {
	j := c.Impulse()
	if j == 0 {
		return
	}

	a, b := c.ActorA, c.ActorB
	impulse := c.Normal.Mul(j)

	if !a.IsStatic() {
		rA := c.Point.Sub(a.CenterOfMass())
		a.Velocity = a.Velocity.Add(impulse.Mul(a.InverseMass))
		a.AngularVelocity = a.AngularVelocity.Add(rA.Cross(impulse).Mul(a.InverseMass))
		a.Translate(c.Normal.Mul(SeparationNudge))
		a.ComputeAABB()
		clampSmallVelocities(a)
	}

	if !b.IsStatic() {
		rB := c.Point.Sub(b.CenterOfMass())
		b.Velocity = b.Velocity.Sub(impulse.Mul(b.InverseMass))
		b.AngularVelocity = b.AngularVelocity.Sub(rB.Cross(impulse).Mul(b.InverseMass))
		b.Translate(c.Normal.Mul(-SeparationNudge))
		b.ComputeAABB()
		clampSmallVelocities(b)
	}
}
