package dbvt

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/akmonengine/thicket/actor"
	"github.com/akmonengine/thicket/arena"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Test helper functions

func unitBox(x, y, z float64) actor.AABB {
	return actor.AABB{Min: mgl64.Vec3{x, y, z}, Max: mgl64.Vec3{x + 1, y + 1, z + 1}}
}

func randomBox(r *rand.Rand) actor.AABB {
	corner := mgl64.Vec3{r.Float64() * 100, r.Float64() * 100, r.Float64() * 100}
	size := mgl64.Vec3{0.5 + r.Float64()*5, 0.5 + r.Float64()*5, 0.5 + r.Float64()*5}
	return actor.AABB{Min: corner, Max: corner.Add(size)}
}

func mustAdd[P any](t *testing.T, tree *Tree[P], bounds actor.AABB, payload P) arena.Handle {
	t.Helper()
	h, err := tree.Add(bounds, payload)
	if err != nil {
		t.Fatalf("Add(%v) returned %v", bounds, err)
	}
	return h
}

func mustValidate[P any](t *testing.T, tree *Tree[P]) {
	t.Helper()
	if err := tree.Validate(); err != nil {
		t.Fatalf("Invalid tree: %v", err)
	}
}

// =============================================================================
// Add / Remove
// =============================================================================

func TestAddRemoveRoundTrip(t *testing.T) {
	tree := New[string]()

	h := mustAdd(t, tree, unitBox(0, 0, 0), "a")
	if root, ok := tree.Root(); !ok || root != h {
		t.Errorf("Single leaf should be the root, got %d (%v)", root, ok)
	}
	if tree.NodeCount() != 1 || tree.LeafCount() != 1 {
		t.Errorf("Expected 1 node and 1 leaf, got %d and %d", tree.NodeCount(), tree.LeafCount())
	}

	if err := tree.Remove(h); err != nil {
		t.Fatalf("Remove returned %v", err)
	}
	if tree.NodeCount() != 0 {
		t.Errorf("NodeCount() = %d after round trip, expected 0", tree.NodeCount())
	}
	if root, ok := tree.Root(); ok || root != arena.Nil {
		t.Errorf("Root should be Nil after round trip, got %d", root)
	}
	mustValidate(t, tree)
}

func TestAddCreatesInternalNodes(t *testing.T) {
	tree := New[int]()
	for i := range 10 {
		mustAdd(t, tree, unitBox(float64(i)*3, 0, 0), i)

		if tree.LeafCount() != i+1 {
			t.Errorf("LeafCount() = %d, expected %d", tree.LeafCount(), i+1)
		}
		if tree.NodeCount() != 2*(i+1)-1 {
			t.Errorf("NodeCount() = %d, expected %d", tree.NodeCount(), 2*(i+1)-1)
		}
		mustValidate(t, tree)
	}
}

func TestAddEqualCostPicksFirstChild(t *testing.T) {
	tree := New[string]()
	a := mustAdd(t, tree, unitBox(0, 0, 0), "a")
	mustAdd(t, tree, unitBox(4, 0, 0), "b")

	// Halfway between a and b: both children cost the same
	l := mustAdd(t, tree, unitBox(2, 0, 0), "l")

	root, _ := tree.Root()
	first, _ := tree.Children(root)
	if tree.IsLeaf(first) {
		t.Fatalf("The first child should have received the new leaf")
	}

	c1, c2 := tree.Children(first)
	if c1 != a || c2 != l {
		t.Errorf("Expected children (%d, %d), got (%d, %d)", a, l, c1, c2)
	}
	mustValidate(t, tree)
}

func TestAddInvalidBounds(t *testing.T) {
	tests := []struct {
		name   string
		bounds actor.AABB
	}{
		{"inverted", actor.AABB{Min: mgl64.Vec3{1, 0, 0}, Max: mgl64.Vec3{0, 1, 1}}},
		{"NaN", actor.AABB{Min: mgl64.Vec3{math.NaN(), 0, 0}, Max: mgl64.Vec3{1, 1, 1}}},
		{"empty", actor.EmptyAABB()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := New[int]()
			h, err := tree.Add(tt.bounds, 1)
			if !errors.Is(err, ErrInvalidBounds) {
				t.Errorf("Expected ErrInvalidBounds, got %v", err)
			}
			if h != arena.Nil {
				t.Errorf("Expected Nil handle, got %d", h)
			}
			if tree.NodeCount() != 0 {
				t.Errorf("Failed Add should not allocate, NodeCount() = %d", tree.NodeCount())
			}
		})
	}
}

func TestRemoveErrors(t *testing.T) {
	t.Run("empty tree", func(t *testing.T) {
		tree := New[int]()
		if err := tree.Remove(0); !errors.Is(err, ErrEmptyTree) {
			t.Errorf("Expected ErrEmptyTree, got %v", err)
		}
	})

	t.Run("freed handle", func(t *testing.T) {
		tree := New[int]()
		h := mustAdd(t, tree, unitBox(0, 0, 0), 1)
		mustAdd(t, tree, unitBox(5, 0, 0), 2)
		if err := tree.Remove(h); err != nil {
			t.Fatalf("Remove returned %v", err)
		}
		if err := tree.Remove(h); !errors.Is(err, ErrInvalidHandle) {
			t.Errorf("Expected ErrInvalidHandle, got %v", err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		tree := New[int]()
		mustAdd(t, tree, unitBox(0, 0, 0), 1)
		if err := tree.Remove(500); !errors.Is(err, ErrInvalidHandle) {
			t.Errorf("Expected ErrInvalidHandle, got %v", err)
		}
	})

	t.Run("internal node", func(t *testing.T) {
		tree := New[int]()
		mustAdd(t, tree, unitBox(0, 0, 0), 1)
		mustAdd(t, tree, unitBox(5, 0, 0), 2)

		root, _ := tree.Root()
		if err := tree.Remove(root); !errors.Is(err, ErrNotALeaf) {
			t.Errorf("Expected ErrNotALeaf, got %v", err)
		}
		if _, err := tree.Bounds(root); !errors.Is(err, ErrNotALeaf) {
			t.Errorf("Bounds: expected ErrNotALeaf, got %v", err)
		}
		if _, err := tree.Payload(root); !errors.Is(err, ErrNotALeaf) {
			t.Errorf("Payload: expected ErrNotALeaf, got %v", err)
		}
		mustValidate(t, tree)
	})
}

func TestRemoveSplicesSibling(t *testing.T) {
	tree := New[string]()
	a := mustAdd(t, tree, unitBox(0, 0, 0), "a")
	b := mustAdd(t, tree, unitBox(3, 0, 0), "b")
	c := mustAdd(t, tree, unitBox(6, 0, 0), "c")

	if err := tree.Remove(b); err != nil {
		t.Fatalf("Remove returned %v", err)
	}
	mustValidate(t, tree)

	root, _ := tree.Root()
	c1, c2 := tree.Children(root)
	if c1 != a || c2 != c {
		t.Errorf("Expected root children (%d, %d), got (%d, %d)", a, c, c1, c2)
	}

	expected := unitBox(0, 0, 0).Union(unitBox(6, 0, 0))
	if got := tree.NodeBounds(root); got != expected {
		t.Errorf("Root bounds = %v, expected %v", got, expected)
	}

	if err := tree.Remove(a); err != nil {
		t.Fatalf("Remove returned %v", err)
	}
	if root, _ := tree.Root(); root != c {
		t.Errorf("Last leaf should become the root")
	}
	if tree.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, expected 1", tree.NodeCount())
	}
	mustValidate(t, tree)
}

// =============================================================================
// Handles and capacity
// =============================================================================

func TestCapacityGrowthKeepsHandles(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tree := New[int](WithLogger(zap.New(core)))

	const n = 100
	handles := make([]arena.Handle, n)
	boxes := make([]actor.AABB, n)
	for i := range n {
		boxes[i] = unitBox(float64(i%10)*2, float64(i/10)*2, 0)
		handles[i] = mustAdd(t, tree, boxes[i], i)
	}

	if tree.Capacity() <= arena.MinCapacity {
		t.Fatalf("Expected growth past %d slots, capacity is %d", arena.MinCapacity, tree.Capacity())
	}
	if logs.FilterMessage("arena grown").Len() < 2 {
		t.Errorf("Expected at least two growth logs, got %d", logs.FilterMessage("arena grown").Len())
	}

	for i, h := range handles {
		bounds, err := tree.Bounds(h)
		if err != nil {
			t.Fatalf("Bounds(%d) returned %v", h, err)
		}
		if bounds != boxes[i] {
			t.Errorf("Handle %d resolves to %v, expected %v", h, bounds, boxes[i])
		}

		payload, err := tree.Payload(h)
		if err != nil {
			t.Fatalf("Payload(%d) returned %v", h, err)
		}
		if payload != i {
			t.Errorf("Handle %d resolves to payload %d, expected %d", h, payload, i)
		}
	}
	mustValidate(t, tree)
}

// =============================================================================
// Balance
// =============================================================================

func TestCollinearInsertionStaysBalanced(t *testing.T) {
	tree := New[int]()

	handles := make([]arena.Handle, 0, 200)
	for i := range 200 {
		handles = append(handles, mustAdd(t, tree, unitBox(float64(i)*2, 0, 0), i))

		mustValidate(t, tree)
		if b := tree.MaxBalance(); b > 1 {
			t.Fatalf("After %d insertions a node is unbalanced by %d", i+1, b)
		}
	}

	if h := tree.Height(); h > 2*int(math.Ceil(math.Log2(200))) {
		t.Errorf("Height %d is far from logarithmic", h)
	}

	// Remove every other leaf
	for i := 0; i < len(handles); i += 2 {
		if err := tree.Remove(handles[i]); err != nil {
			t.Fatalf("Remove(%d) returned %v", handles[i], err)
		}

		mustValidate(t, tree)
		if b := tree.MaxBalance(); b > 1 {
			t.Fatalf("After removing leaf %d a node is unbalanced by %d", i, b)
		}
	}
}

// pathImbalance is the largest child height difference from index up to the root
func pathImbalance[P any](tree *Tree[P], index arena.Handle) int {
	worst := 0
	for index != arena.Nil {
		n := tree.nodes.At(index)
		worst = max(worst, abs(tree.nodes.At(n.children[0]).height-tree.nodes.At(n.children[1]).height))
		index = n.parent
	}

	return worst
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	const (
		steps = 1500
		// Single rotations repair one level per ancestor; an add can leave
		// an ancestor off by 2, rarely 3
		maxPathImbalance = 3
		maxUnbalancedOps = steps / 100
	)

	for _, seed := range []uint64{1, 7, 42, 123, 2024} {
		r := rand.New(rand.NewPCG(seed, seed*31))
		tree := New[int]()
		live := make([]arena.Handle, 0)
		unbalanced := 0

		for step := range steps {
			var start arena.Handle
			if len(live) > 0 && r.Float64() < 0.4 {
				i := r.IntN(len(live))
				h := live[i]

				// The sibling takes the place of the parent
				sibling := arena.Nil
				if parent := tree.nodes.At(h).parent; parent != arena.Nil {
					sibling = tree.nodes.At(parent).children[0]
					if sibling == h {
						sibling = tree.nodes.At(parent).children[1]
					}
				}

				if err := tree.Remove(h); err != nil {
					t.Fatalf("seed %d step %d: Remove returned %v", seed, step, err)
				}
				live = slices.Delete(live, i, i+1)

				start = arena.Nil
				if sibling != arena.Nil {
					start = tree.nodes.At(sibling).parent
				}
			} else {
				h := mustAdd(t, tree, randomBox(r), step)
				live = append(live, h)
				start = tree.nodes.At(h).parent
			}

			mustValidate(t, tree)

			b := pathImbalance(tree, start)
			if b > maxPathImbalance {
				t.Fatalf("seed %d step %d: an ancestor of the changed leaf is unbalanced by %d", seed, step, b)
			}
			if b > 1 {
				unbalanced++
			}

			if n := len(live); n > 1 {
				bound := 3*math.Log2(float64(n)) + 2
				if float64(tree.Height()) > bound {
					t.Fatalf("seed %d step %d: height %d exceeds %.1f for %d leaves", seed, step, tree.Height(), bound, n)
				}
			}
		}

		if unbalanced > maxUnbalancedOps {
			t.Errorf("seed %d: %d of %d operations left an ancestor unbalanced by more than 1", seed, unbalanced, steps)
		}
	}
}

func TestPathImbalance(t *testing.T) {
	tree := New[int]()
	a := mustAdd(t, tree, unitBox(0, 0, 0), 0)
	if b := pathImbalance(tree, tree.nodes.At(a).parent); b != 0 {
		t.Errorf("A lone leaf has no ancestors, got %d", b)
	}

	mustAdd(t, tree, unitBox(2, 0, 0), 1)
	c := mustAdd(t, tree, unitBox(4, 0, 0), 2)
	if b := pathImbalance(tree, tree.nodes.At(c).parent); b > 1 {
		t.Errorf("Three leaves should stay balanced, got %d", b)
	}

	// Force a skewed root
	root, _ := tree.Root()
	left := tree.nodes.At(root).children[0]
	tree.nodes.At(left).height += 3
	if b := pathImbalance(tree, root); b < 2 {
		t.Errorf("Skewed children heights should be reported, got %d", b)
	}
}

// =============================================================================
// Statistics
// =============================================================================

func TestStats(t *testing.T) {
	tree := New[int]()
	if s := tree.Stats(); s != (Stats{}) {
		t.Errorf("Empty tree stats = %+v, expected zero", s)
	}

	for i := range 3 {
		mustAdd(t, tree, unitBox(float64(i)*2, 0, 0), i)
	}

	s := tree.Stats()
	if s.Leaves != 3 || s.Nodes != 5 || s.Height != 2 {
		t.Errorf("Unexpected counts %+v", s)
	}
	if s.Capacity != arena.MinCapacity {
		t.Errorf("Capacity = %d, expected %d", s.Capacity, arena.MinCapacity)
	}
	if math.Abs(s.MeanLeafDepth-5.0/3.0) > 1e-9 {
		t.Errorf("MeanLeafDepth = %v, expected 5/3", s.MeanLeafDepth)
	}
	if math.Abs(s.StdDevLeafDepth-math.Sqrt(1.0/3.0)) > 1e-9 {
		t.Errorf("StdDevLeafDepth = %v, expected sqrt(1/3)", s.StdDevLeafDepth)
	}
	if math.Abs(s.RootArea-22) > 1e-9 {
		t.Errorf("RootArea = %v, expected 22", s.RootArea)
	}
	if math.Abs(s.AreaRatio-54.0/22.0) > 1e-9 {
		t.Errorf("AreaRatio = %v, expected 54/22", s.AreaRatio)
	}
}

func TestValidateReportsCorruption(t *testing.T) {
	tree := New[int]()
	a := mustAdd(t, tree, unitBox(0, 0, 0), 1)
	mustAdd(t, tree, unitBox(3, 0, 0), 2)

	tree.nodes.At(a).bounds = unitBox(10, 10, 10)
	root, _ := tree.Root()
	tree.nodes.At(root).height = 5

	err := tree.Validate()
	if err == nil {
		t.Fatalf("Validate should report the corrupted node")
	}
	if diff := cmp.Diff(2, len(multierr.Errors(err))); diff != "" {
		t.Errorf("Expected one error per broken invariant (-want +got):\n%s", diff)
	}
}
