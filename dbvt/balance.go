package dbvt

import "github.com/akmonengine/thicket/arena"

// balance performs a left or right rotation if node A is imbalanced and
// returns the root of the rotated subtree.
//
//	   A
//	 /   \
//	B     C
//	     / \
//	    F   G
//
// When C is more than one level taller than B, C takes A's place and A
// adopts the shorter of F and G. The mirrored case promotes B.
func (t *Tree[P]) balance(iA arena.Handle) arena.Handle {
	a := t.nodes.At(iA)
	if a.isLeaf() || a.height < 2 {
		return iA
	}

	iB := a.children[0]
	iC := a.children[1]
	b := t.nodes.At(iB)
	c := t.nodes.At(iC)

	balance := c.height - b.height

	// Rotate C up
	if balance > 1 {
		iF := c.children[0]
		iG := c.children[1]
		f := t.nodes.At(iF)
		g := t.nodes.At(iG)

		// Swap A and C
		c.children[0] = iA
		c.parent = a.parent
		a.parent = iC

		// A's old parent should point to C
		if c.parent != arena.Nil {
			t.replaceChild(c.parent, iA, iC)
		} else {
			t.root = iC
		}

		// Rotate
		if f.height > g.height {
			c.children[1] = iF
			a.children[1] = iG
			g.parent = iA
			a.bounds = b.bounds.Union(g.bounds)
			c.bounds = a.bounds.Union(f.bounds)

			a.height = 1 + max(b.height, g.height)
			c.height = 1 + max(a.height, f.height)
		} else {
			c.children[1] = iG
			a.children[1] = iF
			f.parent = iA
			a.bounds = b.bounds.Union(f.bounds)
			c.bounds = a.bounds.Union(g.bounds)

			a.height = 1 + max(b.height, f.height)
			c.height = 1 + max(a.height, g.height)
		}

		return iC
	}

	// Rotate B up
	if balance < -1 {
		iD := b.children[0]
		iE := b.children[1]
		d := t.nodes.At(iD)
		e := t.nodes.At(iE)

		// Swap A and B
		b.children[0] = iA
		b.parent = a.parent
		a.parent = iB

		// A's old parent should point to B
		if b.parent != arena.Nil {
			t.replaceChild(b.parent, iA, iB)
		} else {
			t.root = iB
		}

		// Rotate
		if d.height > e.height {
			b.children[1] = iD
			a.children[0] = iE
			e.parent = iA
			a.bounds = c.bounds.Union(e.bounds)
			b.bounds = a.bounds.Union(d.bounds)

			a.height = 1 + max(c.height, e.height)
			b.height = 1 + max(a.height, d.height)
		} else {
			b.children[1] = iE
			a.children[0] = iD
			d.parent = iA
			a.bounds = c.bounds.Union(d.bounds)
			b.bounds = a.bounds.Union(e.bounds)

			a.height = 1 + max(c.height, d.height)
			b.height = 1 + max(a.height, e.height)
		}

		return iB
	}

	return iA
}
