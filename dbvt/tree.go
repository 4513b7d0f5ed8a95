// Package dbvt implements a dynamic bounding volume tree: an incrementally
// updated binary tree of axis-aligned boxes used as a broad phase.
//
// Leaves carry the box and an opaque payload supplied by the caller. A new
// leaf is attached next to the node that minimizes the surface-area cost of
// the insertion, and every ancestor of a mutated leaf is repaired on the way
// up with at most one rotation. Moving an object is done by removing its
// leaf and adding it again with the new box.
//
// A Tree is not safe for concurrent mutation. Adding or removing leaves
// during a Query or a traversal invalidates the handles that traversal holds.
package dbvt

import (
	"github.com/akmonengine/thicket/actor"
	"github.com/akmonengine/thicket/arena"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrInvalidHandle = arena.ErrInvalidHandle
	ErrNotALeaf      = errors.New("node is not a leaf")
	ErrEmptyTree     = errors.New("tree is empty")
	ErrInvalidBounds = errors.New("invalid bounds")
)

type node[P any] struct {
	bounds  actor.AABB
	payload P

	parent   arena.Handle
	children [2]arena.Handle

	// leaf = 0
	height int
}

func (n *node[P]) isLeaf() bool {
	return n.children[0] == arena.Nil
}

// Tree is a dynamic AABB tree whose leaves carry a payload of type P
type Tree[P any] struct {
	nodes  *arena.Arena[node[P]]
	root   arena.Handle
	leaves int

	logger *zap.Logger
}

type options struct {
	logger *zap.Logger
}

// Option configures a Tree
type Option func(*options)

// WithLogger sets the logger used for arena growth and diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates an empty tree
func New[P any](opts ...Option) *Tree[P] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &Tree[P]{
		nodes:  arena.New[node[P]](o.logger),
		root:   arena.Nil,
		logger: o.logger,
	}
}

// Add inserts a leaf and returns its handle. The handle resolves to the same
// bounds and payload until it is removed, whatever the tree does meanwhile.
func (t *Tree[P]) Add(bounds actor.AABB, payload P) (arena.Handle, error) {
	if !bounds.IsValid() {
		return arena.Nil, errors.Wrapf(ErrInvalidBounds, "add %v", bounds)
	}

	leaf := t.allocateNode()
	n := t.nodes.At(leaf)
	n.bounds = bounds
	n.payload = payload

	t.insertLeaf(leaf)
	t.leaves++

	return leaf, nil
}

// Remove deletes a leaf. Its handle must not be used afterward.
func (t *Tree[P]) Remove(h arena.Handle) error {
	if t.root == arena.Nil {
		return errors.Wrapf(ErrEmptyTree, "remove %d", h)
	}

	n, err := t.nodes.Get(h)
	if err != nil {
		return errors.Wrapf(err, "remove")
	}
	if !n.isLeaf() {
		return errors.Wrapf(ErrNotALeaf, "remove %d", h)
	}

	t.removeLeaf(h)
	t.leaves--

	return errors.Wrap(t.nodes.Free(h), "remove")
}

// Bounds returns the box stored at a leaf
func (t *Tree[P]) Bounds(h arena.Handle) (actor.AABB, error) {
	n, err := t.leaf(h)
	if err != nil {
		return actor.AABB{}, err
	}

	return n.bounds, nil
}

// Payload returns the value stored at a leaf
func (t *Tree[P]) Payload(h arena.Handle) (P, error) {
	n, err := t.leaf(h)
	if err != nil {
		var zero P
		return zero, err
	}

	return n.payload, nil
}

func (t *Tree[P]) leaf(h arena.Handle) (*node[P], error) {
	n, err := t.nodes.Get(h)
	if err != nil {
		return nil, err
	}
	if !n.isLeaf() {
		return nil, errors.Wrapf(ErrNotALeaf, "node %d", h)
	}

	return n, nil
}

// NodeCount returns the number of live nodes, leaves and internal nodes
func (t *Tree[P]) NodeCount() int {
	return t.nodes.Len()
}

func (t *Tree[P]) LeafCount() int {
	return t.leaves
}

// Capacity returns the number of node slots reserved by the arena
func (t *Tree[P]) Capacity() int {
	return t.nodes.Cap()
}

// Height returns the height of the root, 0 for an empty tree or a single leaf
func (t *Tree[P]) Height() int {
	if t.root == arena.Nil {
		return 0
	}

	return t.nodes.At(t.root).height
}

func (t *Tree[P]) allocateNode() arena.Handle {
	h := t.nodes.Allocate()
	n := t.nodes.At(h)
	n.parent = arena.Nil
	n.children = [2]arena.Handle{arena.Nil, arena.Nil}
	n.height = 0

	return h
}

func (t *Tree[P]) insertLeaf(leaf arena.Handle) {
	if t.root == arena.Nil {
		t.root = leaf
		t.nodes.At(leaf).parent = arena.Nil
		return
	}

	// Find the best sibling for this node
	leafBounds := t.nodes.At(leaf).bounds
	index := t.root
	for {
		n := t.nodes.At(index)
		if n.isLeaf() {
			break
		}

		child1 := n.children[0]
		child2 := n.children[1]

		area := n.bounds.Area()
		combinedArea := n.bounds.Union(leafBounds).Area()

		// Cost of creating a new parent for this node and the new leaf
		cost := 2.0 * combinedArea

		// Minimum cost of pushing the leaf further down the tree
		inheritanceCost := 2.0 * (combinedArea - area)

		cost1 := t.descendCost(child1, leafBounds) + inheritanceCost
		cost2 := t.descendCost(child2, leafBounds) + inheritanceCost

		// Descend according to the minimum cost
		if cost < cost1 && cost < cost2 {
			break
		}
		if cost2 < cost1 {
			index = child2
		} else {
			index = child1
		}
	}

	sibling := index

	// Create a new parent. Allocation may grow the arena, so no node
	// pointer is held across it.
	newParent := t.allocateNode()
	s := t.nodes.At(sibling)
	oldParent := s.parent
	s.parent = newParent

	p := t.nodes.At(newParent)
	p.parent = oldParent
	p.bounds = leafBounds.Union(s.bounds)
	p.height = s.height + 1
	p.children = [2]arena.Handle{sibling, leaf}

	t.nodes.At(leaf).parent = newParent

	if oldParent != arena.Nil {
		t.replaceChild(oldParent, sibling, newParent)
	} else {
		t.root = newParent
	}

	t.refit(newParent)
}

// descendCost is the enlargement caused by pushing leafBounds into child
func (t *Tree[P]) descendCost(child arena.Handle, leafBounds actor.AABB) float64 {
	c := t.nodes.At(child)
	combined := c.bounds.Union(leafBounds).Area()
	if c.isLeaf() {
		return combined
	}

	return combined - c.bounds.Area()
}

func (t *Tree[P]) removeLeaf(leaf arena.Handle) {
	if leaf == t.root {
		t.root = arena.Nil
		return
	}

	parent := t.nodes.At(leaf).parent
	p := t.nodes.At(parent)
	grandParent := p.parent

	sibling := p.children[0]
	if sibling == leaf {
		sibling = p.children[1]
	}

	if grandParent != arena.Nil {
		// Destroy parent and connect sibling to grandParent
		t.replaceChild(grandParent, parent, sibling)
		t.nodes.At(sibling).parent = grandParent
		t.freeNode(parent)

		t.refit(grandParent)
	} else {
		t.root = sibling
		t.nodes.At(sibling).parent = arena.Nil
		t.freeNode(parent)
	}
}

// refit walks from index to the root, balancing each ancestor and
// recomputing its bounds and height
func (t *Tree[P]) refit(index arena.Handle) {
	for index != arena.Nil {
		index = t.balance(index)

		n := t.nodes.At(index)
		child1 := t.nodes.At(n.children[0])
		child2 := t.nodes.At(n.children[1])

		n.height = 1 + max(child1.height, child2.height)
		n.bounds = child1.bounds.Union(child2.bounds)

		index = n.parent
	}
}

func (t *Tree[P]) replaceChild(parent, oldChild, newChild arena.Handle) {
	p := t.nodes.At(parent)
	switch oldChild {
	case p.children[0]:
		p.children[0] = newChild
	case p.children[1]:
		p.children[1] = newChild
	default:
		panic(errors.Errorf("dbvt: node %d is not a child of %d", oldChild, parent))
	}
}

func (t *Tree[P]) freeNode(h arena.Handle) {
	if err := t.nodes.Free(h); err != nil {
		panic(errors.Wrap(err, "dbvt: free internal node"))
	}
}
