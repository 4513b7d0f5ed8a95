package thicket

import (
	"github.com/akmonengine/thicket/actor"
	"github.com/akmonengine/thicket/arena"
	"github.com/akmonengine/thicket/dbvt"
	"github.com/akmonengine/thicket/traverse"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrDuplicateActor = errors.New("actor already in the world")
	ErrUnknownActor   = errors.New("actor not in the world")
)

type World struct {
	// Gravity acceleration (m/s², or N/kg)
	Gravity  mgl64.Vec3
	Substeps int
	Workers  int
	// Max triangles per leaf of the mesh hierarchies
	MeshLeafSize int
	// Restitution given to actors created from a scene without one
	Restitution float64

	Events Events
	Logger *zap.Logger

	tree     *dbvt.Tree[*Body]
	bodies   []*Body
	byID     map[uint64]*Body
	collider *traverse.Collider[arena.Handle, *Body]
}

// NewWorld creates an empty world. A nil logger discards everything.
func NewWorld(cfg Config, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &World{
		Gravity:      cfg.Gravity,
		Substeps:     cfg.Substeps,
		Workers:      cfg.Workers,
		MeshLeafSize: cfg.MeshLeafSize,
		Restitution:  cfg.Restitution,
		Events:       NewEvents(),
		Logger:       logger,
		tree:         dbvt.New[*Body](dbvt.WithLogger(logger)),
		byID:         make(map[uint64]*Body),
		collider:     traverse.NewCollider[arena.Handle, *Body](),
	}
}

// AddActor builds the mesh hierarchy of a and indexes it in the world tree
func (w *World) AddActor(a *actor.Actor) (*Body, error) {
	if _, ok := w.byID[a.ID]; ok {
		return nil, errors.Wrapf(ErrDuplicateActor, "actor %q", a.Name)
	}

	leafSize := w.MeshLeafSize
	if leafSize <= 0 {
		leafSize = DefaultMeshLeafSize
	}

	body, err := newBody(a, leafSize, w.Logger)
	if err != nil {
		return nil, err
	}

	a.ComputeAABB()
	handle, err := w.tree.Add(a.Bounds(), body)
	if err != nil {
		return nil, errors.Wrapf(err, "index actor %q", a.Name)
	}
	body.handle = handle

	w.bodies = append(w.bodies, body)
	w.byID[a.ID] = body

	return body, nil
}

// RemoveActor drops a from the world, along with its tracked event pairs
func (w *World) RemoveActor(a *actor.Actor) error {
	body, ok := w.byID[a.ID]
	if !ok {
		return errors.Wrapf(ErrUnknownActor, "actor %q", a.Name)
	}

	if body.handle != arena.Nil {
		if err := w.tree.Remove(body.handle); err != nil {
			return errors.Wrapf(err, "unindex actor %q", a.Name)
		}
		body.handle = arena.Nil
	}

	delete(w.byID, a.ID)
	for i, b := range w.bodies {
		if b == body {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			break
		}
	}
	w.Events.forget(a)

	return nil
}

// Actors returns the actors in insertion order
func (w *World) Actors() []*actor.Actor {
	actors := make([]*actor.Actor, len(w.bodies))
	for i, b := range w.bodies {
		actors[i] = b.Actor
	}

	return actors
}

func (w *World) Body(a *actor.Actor) (*Body, bool) {
	body, ok := w.byID[a.ID]
	return body, ok
}

// Tree exposes the dynamic tree for inspection
func (w *World) Tree() *dbvt.Tree[*Body] {
	return w.tree
}

// Query calls fn for each actor whose box overlaps bounds until fn returns
// false. An empty world finds nothing.
func (w *World) Query(bounds actor.AABB, fn func(a *actor.Actor) bool) error {
	err := w.tree.Query(bounds, func(leaf arena.Handle) bool {
		return fn(w.tree.Leaf(leaf).Actor)
	})
	if errors.Is(err, dbvt.ErrEmptyTree) {
		return nil
	}

	return err
}

// BroadPhase lists the pairs of bodies whose boxes overlap. Pairs of two
// static actors are skipped.
func (w *World) BroadPhase() []Pair {
	var pairs []Pair
	w.collider.CollideSelf(w.tree, traverse.PolicyFunc[*Body](func(a, b *Body) {
		if a.Actor.IsStatic() && b.Actor.IsStatic() {
			return
		}
		pairs = append(pairs, makePair(a, b))
	}))

	return pairs
}

// Step advances the world by dt, split in Substeps
func (w *World) Step(dt float64) {
	w.Workers = max(DefaultWorkers, w.Workers)
	w.Substeps = max(DefaultSubsteps, w.Substeps)
	h := dt / float64(w.Substeps)

	for range w.Substeps {
		w.integrate(h)

		pairs := w.BroadPhase()
		manifolds := NarrowPhase(pairs, w.Workers)
		w.Logger.Debug("collision pairs",
			zap.Int("broadPhase", len(pairs)),
			zap.Int("narrowPhase", len(manifolds)))

		manifolds = w.Events.recordManifolds(manifolds)
		w.resolve(manifolds)
		w.update(h)
		w.refit()
	}

	w.Events.flush()
}

// resolve applies the contacts one after the other, in detection order
func (w *World) resolve(manifolds []Manifold) {
	for _, m := range manifolds {
		for i := range m.Contacts {
			m.Contacts[i].Resolve()
		}
	}
}

func (w *World) integrate(h float64) {
	task(w.Workers, w.bodies, func(body *Body) {
		body.Actor.IntegrateVelocity(h, w.Gravity)
	})
}

func (w *World) update(h float64) {
	task(w.Workers, w.bodies, func(body *Body) {
		body.Actor.Update(h)
	})
}

// refit moves the leaves of the bodies whose box changed. A body that fails
// is logged and left out of the tree until the next step.
func (w *World) refit() {
	for _, body := range w.bodies {
		bounds := body.Actor.Bounds()
		if body.handle != arena.Nil {
			current, err := w.tree.Bounds(body.handle)
			if err == nil && current == bounds {
				continue
			}

			if err := w.tree.Remove(body.handle); err != nil {
				w.Logger.Warn("refit remove", zap.String("actor", body.Actor.Name), zap.Error(err))
				continue
			}
			body.handle = arena.Nil
		}

		handle, err := w.tree.Add(bounds, body)
		if err != nil {
			w.Logger.Warn("refit add", zap.String("actor", body.Actor.Name), zap.Error(err))
			continue
		}
		body.handle = handle
	}
}
