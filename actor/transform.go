package actor

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a position and orientation in 3D space
type Transform struct {
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	InverseRotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position:        mgl64.Vec3{0, 0, 0},
		Rotation:        mgl64.QuatIdent(),
		InverseRotation: mgl64.QuatIdent(),
	}
}

// Apply maps a local point to world space
func (t Transform) Apply(point mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(point).Add(t.Position)
}

// Mat4 returns the local-to-world matrix (rotation, then translation)
func (t Transform) Mat4() mgl64.Mat4 {
	return mgl64.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).Mul4(t.Rotation.Mat4())
}

func (t *Transform) Translate(delta mgl64.Vec3) {
	t.Position = t.Position.Add(delta)
}

// Rotate applies an axis-angle rotation: the direction of angles is the axis,
// its length the angle in radians
func (t *Transform) Rotate(angles mgl64.Vec3) {
	angle := angles.Len()
	if angle < 1e-12 {
		return
	}

	q := mgl64.QuatRotate(angle, angles.Mul(1/angle))
	t.Rotation = q.Mul(t.Rotation).Normalize()
	t.InverseRotation = t.Rotation.Inverse()
}
