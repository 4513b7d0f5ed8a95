package thicket

import (
	"github.com/akmonengine/thicket/actor"
	"github.com/akmonengine/thicket/arena"
	"github.com/akmonengine/thicket/bvh"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrEmptyMesh = errors.New("actor has no triangles")

// Body is the payload stored in the dynamic tree: an actor and the
// hierarchy over its mesh triangles, built once in local space
type Body struct {
	Actor *actor.Actor
	BVH   *bvh.BVH[actor.Triangle]

	handle arena.Handle
}

func newBody(a *actor.Actor, leafSize int, logger *zap.Logger) (*Body, error) {
	if a.Mesh == nil || a.Mesh.Len() == 0 {
		return nil, errors.Wrapf(ErrEmptyMesh, "actor %q", a.Name)
	}

	hierarchy, err := bvh.Build(a.Mesh.Triangles, bvh.Options{MaxPrimitivesPerLeaf: leafSize, Logger: logger})
	if err != nil {
		return nil, errors.Wrapf(err, "mesh of actor %q", a.Name)
	}

	logger.Debug("mesh bvh",
		zap.String("actor", a.Name),
		zap.Any("meshBounds", a.Mesh.Bounds()),
		zap.Int("triangles", a.Mesh.Len()),
		zap.Any("bvhBounds", hierarchy.Bounds()),
		zap.Int("bvhNodes", hierarchy.NodeCount()))

	return &Body{Actor: a, BVH: hierarchy, handle: arena.Nil}, nil
}

// View places the mesh hierarchy at the current actor transform
func (b *Body) View() *bvh.View[actor.Triangle] {
	return bvh.NewView(b.BVH, b.Actor.Transform.Mat4())
}

// Handle returns the leaf of the body in the world tree, arena.Nil when the
// body is not indexed
func (b *Body) Handle() arena.Handle {
	return b.handle
}
