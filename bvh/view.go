package bvh

import (
	"github.com/akmonengine/thicket/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// View places a BVH built in local space into the world. NodeBounds returns
// the world box of the transformed node box, so two views can be traversed
// against each other.
type View[T Primitive] struct {
	BVH       *BVH[T]
	Transform mgl64.Mat4
}

func NewView[T Primitive](b *BVH[T], transform mgl64.Mat4) *View[T] {
	return &View[T]{BVH: b, Transform: transform}
}

func (v *View[T]) Root() (int, bool) {
	return v.BVH.Root()
}

func (v *View[T]) NodeBounds(index int) actor.AABB {
	return v.BVH.NodeBounds(index).Transform(v.Transform)
}

func (v *View[T]) IsLeaf(index int) bool {
	return v.BVH.IsLeaf(index)
}

func (v *View[T]) Children(index int) (int, int) {
	return v.BVH.Children(index)
}

func (v *View[T]) Leaf(index int) Range {
	return v.BVH.Leaf(index)
}
