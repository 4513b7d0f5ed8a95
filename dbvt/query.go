package dbvt

import (
	"iter"

	"github.com/akmonengine/thicket/actor"
	"github.com/akmonengine/thicket/arena"
	"github.com/pkg/errors"
)

// QueryCallback receives each leaf overlapping the query box. Returning
// false stops the query.
type QueryCallback func(leaf arena.Handle) bool

// Query reports every leaf whose box overlaps bounds
func (t *Tree[P]) Query(bounds actor.AABB, callback QueryCallback) error {
	if t.root == arena.Nil {
		return errors.Wrap(ErrEmptyTree, "query")
	}

	stack := make([]arena.Handle, 0, 64)
	stack = append(stack, t.root)

	for len(stack) > 0 {
		index := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.At(index)
		if !n.bounds.Overlaps(bounds) {
			continue
		}

		if n.isLeaf() {
			if !callback(index) {
				return nil
			}
		} else {
			stack = append(stack, n.children[0], n.children[1])
		}
	}

	return nil
}

// Leaves walks the tree in preorder through the parent links and yields
// each leaf with its box. The sequence can be ranged over many times.
func (t *Tree[P]) Leaves() iter.Seq2[arena.Handle, actor.AABB] {
	return func(yield func(arena.Handle, actor.AABB) bool) {
		for index := t.root; index != arena.Nil; index = t.next(index) {
			n := t.nodes.At(index)
			if !n.isLeaf() {
				continue
			}
			if !yield(index, n.bounds) {
				return
			}
		}
	}
}

// next returns the preorder successor of index, or Nil after the last node
func (t *Tree[P]) next(index arena.Handle) arena.Handle {
	n := t.nodes.At(index)
	if !n.isLeaf() {
		return n.children[0]
	}

	for index != t.root {
		parent := t.nodes.At(index).parent
		p := t.nodes.At(parent)
		if p.children[1] != index {
			return p.children[1]
		}
		index = parent
	}

	return arena.Nil
}

// Root returns the root node for traversal
func (t *Tree[P]) Root() (arena.Handle, bool) {
	return t.root, t.root != arena.Nil
}

// NodeBounds returns the box of any live node, leaf or internal
func (t *Tree[P]) NodeBounds(index arena.Handle) actor.AABB {
	return t.nodes.At(index).bounds
}

func (t *Tree[P]) IsLeaf(index arena.Handle) bool {
	return t.nodes.At(index).isLeaf()
}

func (t *Tree[P]) Children(index arena.Handle) (arena.Handle, arena.Handle) {
	n := t.nodes.At(index)
	return n.children[0], n.children[1]
}

// Leaf returns the payload of a leaf without checking the handle
func (t *Tree[P]) Leaf(index arena.Handle) P {
	return t.nodes.At(index).payload
}
