package constraint

import (
	"github.com/akmonengine/thicket/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Constraint changes the velocities of the actors it binds
type Constraint interface {
	Resolve()
}

// ComputeRestitution combines two materials with the mean of their bounce factors
func ComputeRestitution(matA, matB actor.Material) float64 {
	return (matA.Restitution + matB.Restitution) / 2.0
}

func clampSmallVelocities(a *actor.Actor) {
	const velocityThreshold = 1e-5

	if a.Velocity.Len() < velocityThreshold {
		a.Velocity = mgl64.Vec3{0, 0, 0}
	}
	if a.AngularVelocity.Len() < velocityThreshold {
		a.AngularVelocity = mgl64.Vec3{0, 0, 0}
	}
}
