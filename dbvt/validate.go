package dbvt

import (
	"math"

	"github.com/akmonengine/thicket/arena"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/stat"
)

// Validate checks the structure and metrics of the whole tree and reports
// every broken invariant
func (t *Tree[P]) Validate() error {
	var err error
	if t.root == arena.Nil {
		if t.nodes.Len() != 0 {
			err = multierr.Append(err, errors.Errorf("empty tree holds %d nodes", t.nodes.Len()))
		}
		if t.leaves != 0 {
			err = multierr.Append(err, errors.Errorf("empty tree counts %d leaves", t.leaves))
		}
		return err
	}

	if p := t.nodes.At(t.root).parent; p != arena.Nil {
		err = multierr.Append(err, errors.Errorf("root %d has parent %d", t.root, p))
	}

	reached, leaves := 0, 0
	stack := []arena.Handle{t.root}
	for len(stack) > 0 {
		index := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reached++

		n := t.nodes.At(index)
		if n.isLeaf() {
			leaves++
			if n.children[1] != arena.Nil {
				err = multierr.Append(err, errors.Errorf("leaf %d has a second child", index))
			}
			if n.height != 0 {
				err = multierr.Append(err, errors.Errorf("leaf %d has height %d", index, n.height))
			}
			continue
		}

		child1, child2 := n.children[0], n.children[1]
		if !t.nodes.Valid(child1) || !t.nodes.Valid(child2) {
			err = multierr.Append(err, errors.Errorf("node %d has dead children %d, %d", index, child1, child2))
			continue
		}

		c1 := t.nodes.At(child1)
		c2 := t.nodes.At(child2)
		if c1.parent != index || c2.parent != index {
			err = multierr.Append(err, errors.Errorf("children of node %d do not point back to it", index))
		}
		if h := 1 + max(c1.height, c2.height); n.height != h {
			err = multierr.Append(err, errors.Errorf("node %d has height %d, expected %d", index, n.height, h))
		}
		if b := c1.bounds.Union(c2.bounds); n.bounds != b {
			err = multierr.Append(err, errors.Errorf("node %d has bounds %v, expected %v", index, n.bounds, b))
		}

		stack = append(stack, child1, child2)
	}

	if reached != t.nodes.Len() {
		err = multierr.Append(err, errors.Errorf("reached %d nodes, arena holds %d", reached, t.nodes.Len()))
	}
	if leaves != t.leaves {
		err = multierr.Append(err, errors.Errorf("reached %d leaves, tree counts %d", leaves, t.leaves))
	}
	if internal := reached - leaves; leaves > 0 && internal != leaves-1 {
		err = multierr.Append(err, errors.Errorf("%d leaves need %d internal nodes, found %d", leaves, leaves-1, internal))
	}

	return err
}

// MaxBalance returns the largest height difference between the two
// children of any internal node
func (t *Tree[P]) MaxBalance() int {
	maxBalance := 0
	for _, n := range t.nodes.All() {
		if n.isLeaf() {
			continue
		}

		c1 := t.nodes.At(n.children[0])
		c2 := t.nodes.At(n.children[1])
		maxBalance = max(maxBalance, abs(c1.height-c2.height))
	}

	return maxBalance
}

// Stats summarizes the shape of the tree
type Stats struct {
	Leaves   int
	Nodes    int
	Capacity int
	Height   int

	MeanLeafDepth   float64
	StdDevLeafDepth float64

	RootArea float64
	// AreaRatio is the summed area of all nodes over the root area
	AreaRatio float64
}

func (t *Tree[P]) Stats() Stats {
	s := Stats{
		Leaves:   t.leaves,
		Nodes:    t.nodes.Len(),
		Capacity: t.nodes.Cap(),
		Height:   t.Height(),
	}
	if t.root == arena.Nil {
		return s
	}

	type entry struct {
		index arena.Handle
		depth int
	}

	depths := make([]float64, 0, t.leaves)
	totalArea := 0.0
	stack := []entry{{t.root, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.At(e.index)
		totalArea += n.bounds.Area()
		if n.isLeaf() {
			depths = append(depths, float64(e.depth))
			continue
		}
		stack = append(stack, entry{n.children[0], e.depth + 1}, entry{n.children[1], e.depth + 1})
	}

	s.MeanLeafDepth, s.StdDevLeafDepth = stat.MeanStdDev(depths, nil)
	if len(depths) < 2 || math.IsNaN(s.StdDevLeafDepth) {
		s.StdDevLeafDepth = 0
	}

	s.RootArea = t.nodes.At(t.root).bounds.Area()
	if s.RootArea > 0 {
		s.AreaRatio = totalArea / s.RootArea
	}

	return s
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
