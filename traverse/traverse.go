// Package traverse enumerates the overlapping leaf pairs of two bounding
// volume trees by descending both at once.
//
// Any tree exposing node bounds and children can take part: the dynamic tree
// of the broad phase as well as the static BVH of a mesh. CollideSelf
// traverses a tree against itself and reports each unordered pair of
// distinct leaves once.
package traverse

import (
	"github.com/akmonengine/thicket/actor"
)

// DefaultStackCapacity is the initial size of the pair stack
const DefaultStackCapacity = 128

// Tree is the node shape shared by every hierarchy. N identifies a node, L is
// the data a leaf hands to the policy.
type Tree[N comparable, L any] interface {
	Root() (N, bool)
	NodeBounds(node N) actor.AABB
	IsLeaf(node N) bool
	Children(node N) (N, N)
	Leaf(node N) L
}

// Policy receives each overlapping leaf pair. The order of the two leaves,
// and of the pairs, is unspecified.
type Policy[L any] interface {
	Process(a, b L)
}

type PolicyFunc[L any] func(a, b L)

func (f PolicyFunc[L]) Process(a, b L) {
	f(a, b)
}

type pair[N comparable] struct {
	a, b N
}

// Collider keeps its pair stack between traversals. It is not safe for
// concurrent use.
type Collider[N comparable, L any] struct {
	stack []pair[N]
}

func NewCollider[N comparable, L any]() *Collider[N, L] {
	return &Collider[N, L]{stack: make([]pair[N], 0, DefaultStackCapacity)}
}

// Collide reports every pair of overlapping leaves of t0 and t1, the leaf of
// t0 first. Both trees are walked as distinct hierarchies: passing the same
// tree twice reports each pair in both orders and each leaf with itself.
func (c *Collider[N, L]) Collide(t0, t1 Tree[N, L], policy Policy[L]) {
	c.collide(t0, t1, policy, false)
}

// CollideSelf reports each unordered pair of distinct overlapping leaves of t
// once
func (c *Collider[N, L]) CollideSelf(t Tree[N, L], policy Policy[L]) {
	c.collide(t, t, policy, true)
}

func (c *Collider[N, L]) collide(t0, t1 Tree[N, L], policy Policy[L], self bool) {
	root0, ok0 := t0.Root()
	root1, ok1 := t1.Root()
	if !ok0 || !ok1 {
		return
	}

	c.stack = append(c.stack[:0], pair[N]{root0, root1})
	for len(c.stack) > 0 {
		p := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]

		leaf0 := t0.IsLeaf(p.a)
		leaf1 := t1.IsLeaf(p.b)

		if self && p.a == p.b {
			if !leaf0 {
				left, right := t0.Children(p.a)
				c.stack = append(c.stack, pair[N]{left, left}, pair[N]{right, right}, pair[N]{left, right})
			}
			continue
		}

		if !t0.NodeBounds(p.a).Overlaps(t1.NodeBounds(p.b)) {
			continue
		}

		switch {
		case !leaf0 && !leaf1:
			a0, a1 := t0.Children(p.a)
			b0, b1 := t1.Children(p.b)
			c.stack = append(c.stack,
				pair[N]{a0, b0}, pair[N]{a0, b1},
				pair[N]{a1, b0}, pair[N]{a1, b1})
		case !leaf0:
			a0, a1 := t0.Children(p.a)
			c.stack = append(c.stack, pair[N]{a0, p.b}, pair[N]{a1, p.b})
		case !leaf1:
			b0, b1 := t1.Children(p.b)
			c.stack = append(c.stack, pair[N]{p.a, b0}, pair[N]{p.a, b1})
		default:
			policy.Process(t0.Leaf(p.a), t1.Leaf(p.b))
		}
	}
}

// Collide runs a one-off traversal of two trees with a fresh Collider
func Collide[N comparable, L any](t0, t1 Tree[N, L], policy Policy[L]) {
	NewCollider[N, L]().Collide(t0, t1, policy)
}

// CollideSelf runs a one-off traversal of t against itself
func CollideSelf[N comparable, L any](t Tree[N, L], policy Policy[L]) {
	NewCollider[N, L]().CollideSelf(t, policy)
}
