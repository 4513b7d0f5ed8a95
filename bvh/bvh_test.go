package bvh

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/akmonengine/thicket/actor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type box actor.AABB

func (b box) Bounds() actor.AABB {
	return actor.AABB(b)
}

func unitBox(x, y, z float64) box {
	corner := mgl64.Vec3{x, y, z}
	return box{Min: corner, Max: corner.Add(mgl64.Vec3{1, 1, 1})}
}

func randomBoxes(r *rand.Rand, n int) []box {
	boxes := make([]box, n)
	for i := range boxes {
		corner := mgl64.Vec3{r.Float64() * 100, r.Float64() * 100, r.Float64() * 100}
		size := mgl64.Vec3{r.Float64()*5 + 0.1, r.Float64()*5 + 0.1, r.Float64()*5 + 0.1}
		boxes[i] = box{Min: corner, Max: corner.Add(size)}
	}

	return boxes
}

func mustBuild[T Primitive](t *testing.T, primitives []T, opts Options) *BVH[T] {
	t.Helper()
	b, err := Build(primitives, opts)
	if err != nil {
		t.Fatalf("Build returned %v", err)
	}

	return b
}

// ============================================================================
// Build
// ============================================================================

func TestBuildErrors(t *testing.T) {
	if _, err := Build[box](nil, Options{}); !errors.Is(err, ErrNoPrimitives) {
		t.Errorf("Expected ErrNoPrimitives, got %v", err)
	}

	nan := math.NaN()
	invalid := []box{unitBox(0, 0, 0), {Min: mgl64.Vec3{nan, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}}
	if _, err := Build(invalid, Options{}); !errors.Is(err, ErrInvalidPrimitive) {
		t.Errorf("Expected ErrInvalidPrimitive, got %v", err)
	}
}

func TestBuildSingleLeaf(t *testing.T) {
	boxes := []box{unitBox(0, 0, 0), unitBox(3, 0, 0), unitBox(0, 5, 0)}
	b := mustBuild(t, boxes, Options{})

	if b.NodeCount() != 1 {
		t.Fatalf("NodeCount = %d, expected 1", b.NodeCount())
	}
	root, ok := b.Root()
	if !ok || !b.IsLeaf(root) {
		t.Fatalf("Root should be a leaf")
	}
	if r := b.Leaf(root); r != (Range{First: 0, Count: 3}) {
		t.Errorf("Leaf range = %v", r)
	}
	expected := actor.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{4, 6, 1}}
	if b.Bounds() != expected {
		t.Errorf("Bounds = %v, expected %v", b.Bounds(), expected)
	}
	if b.Depth() != 0 {
		t.Errorf("Depth = %d, expected 0", b.Depth())
	}
}

func TestBuildCoincidentCentroidsMakeOneLeaf(t *testing.T) {
	boxes := make([]box, 20)
	for i := range boxes {
		// Different sizes, same center
		s := float64(i + 1)
		boxes[i] = box{Min: mgl64.Vec3{-s, -s, -s}, Max: mgl64.Vec3{s, s, s}}
	}

	b := mustBuild(t, boxes, Options{MaxPrimitivesPerLeaf: 4})
	if b.NodeCount() != 1 {
		t.Fatalf("NodeCount = %d, expected 1", b.NodeCount())
	}
	if r := b.Leaf(0); r.Count != 20 {
		t.Errorf("Leaf holds %d primitives, expected 20", r.Count)
	}
}

func TestBuildSortsAlongSplitAxis(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	xs := r.Perm(16)

	boxes := make([]box, len(xs))
	for i, x := range xs {
		boxes[i] = unitBox(float64(2*x), 0, 0)
	}

	b := mustBuild(t, boxes, Options{MaxPrimitivesPerLeaf: 1})
	if b.NodeCount() != 31 {
		t.Errorf("NodeCount = %d, expected 31", b.NodeCount())
	}
	if b.Depth() != 4 {
		t.Errorf("Depth = %d, expected 4", b.Depth())
	}

	// Leaves are laid out left to right, so the index array is sorted by x
	expected := make([]int, len(xs))
	for i, x := range xs {
		expected[x] = i
	}
	if diff := cmp.Diff(expected, b.Indices()); diff != "" {
		t.Errorf("Indices mismatch (-want +got):\n%s", diff)
	}

	for _, n := range b.Layout() {
		if !n.IsLeaf && n.Axis != 0 {
			t.Errorf("Internal node split on axis %d, expected 0", n.Axis)
		}
	}
}

func TestBuildInvariants(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		maxPerLeaf int
	}{
		{"default leaf size", 500, 0},
		{"one per leaf", 257, 1},
		{"mesh leaf size", 1000, 64},
		{"below threshold", 7, 8},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewPCG(uint64(i), 99))
			boxes := randomBoxes(r, tt.count)
			b := mustBuild(t, boxes, Options{MaxPrimitivesPerLeaf: tt.maxPerLeaf})

			limit := tt.maxPerLeaf
			if limit == 0 {
				limit = DefaultMaxPrimitivesPerLeaf
			}

			seen := make([]int, tt.count)
			leaves := 0
			for index, n := range b.Layout() {
				if n.IsLeaf {
					leaves++
					if n.Range.Count == 0 || n.Range.Count > limit {
						t.Errorf("Leaf %d holds %d primitives, limit %d", index, n.Range.Count, limit)
					}

					bounds := actor.EmptyAABB()
					for i, p := range b.Primitives(n.Range) {
						seen[i]++
						bounds = bounds.Union(p.Bounds())
					}
					if bounds != n.Bounds {
						t.Errorf("Leaf %d has bounds %v, expected %v", index, n.Bounds, bounds)
					}
					continue
				}

				if n.Left <= index || n.Right <= index {
					t.Errorf("Node %d has children %d, %d allocated before it", index, n.Left, n.Right)
				}
				if u := b.NodeBounds(n.Left).Union(b.NodeBounds(n.Right)); u != n.Bounds {
					t.Errorf("Node %d has bounds %v, expected %v", index, n.Bounds, u)
				}
			}

			for i, c := range seen {
				if c != 1 {
					t.Errorf("Primitive %d appears in %d leaves", i, c)
				}
			}
			if b.NodeCount() != 2*leaves-1 {
				t.Errorf("%d leaves need %d nodes, found %d", leaves, 2*leaves-1, b.NodeCount())
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 8))
	boxes := randomBoxes(r, 400)
	// Duplicates exercise the equal-pivot partition
	boxes = append(boxes, boxes[:50]...)

	first := mustBuild(t, boxes, Options{MaxPrimitivesPerLeaf: 3})
	second := mustBuild(t, slices.Clone(boxes), Options{MaxPrimitivesPerLeaf: 3})

	if diff := cmp.Diff(first.Layout(), second.Layout()); diff != "" {
		t.Errorf("Layout differs between builds (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Indices(), second.Indices()); diff != "" {
		t.Errorf("Indices differ between builds (-first +second):\n%s", diff)
	}
}

func TestBuildDoesNotAliasInput(t *testing.T) {
	boxes := []box{unitBox(0, 0, 0), unitBox(4, 0, 0)}
	b := mustBuild(t, boxes, Options{})

	boxes[0] = unitBox(50, 50, 50)
	if b.Primitive(0) != unitBox(0, 0, 0) {
		t.Errorf("BVH should keep its own copy of the primitives")
	}
	if b.Len() != 2 {
		t.Errorf("Len = %d, expected 2", b.Len())
	}
}

func TestBuildTriangles(t *testing.T) {
	mesh := actor.NewQuadMesh(10, 10, 8)
	b := mustBuild(t, mesh.Triangles, Options{MaxPrimitivesPerLeaf: 4})

	if b.Bounds() != mesh.Bounds() {
		t.Errorf("Bounds = %v, expected the mesh bounds %v", b.Bounds(), mesh.Bounds())
	}
	if b.Len() != 128 {
		t.Errorf("Len = %d, expected 128", b.Len())
	}
}

func TestBuildLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := rand.New(rand.NewPCG(2, 3))
	mustBuild(t, randomBoxes(r, 100), Options{Logger: zap.New(core)})

	entries := logs.FilterMessage("bvh built").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one build log, got %d", len(entries))
	}
	if n := entries[0].ContextMap()["primitives"]; n != int64(100) {
		t.Errorf("Logged %v primitives, expected 100", n)
	}
}

// ============================================================================
// Primitives and View
// ============================================================================

func TestPrimitivesStopsEarly(t *testing.T) {
	boxes := []box{unitBox(0, 0, 0), unitBox(0, 0, 0), unitBox(0, 0, 0)}
	b := mustBuild(t, boxes, Options{})

	count := 0
	for range b.Primitives(b.Leaf(0)) {
		count++
		break
	}
	if count != 1 {
		t.Errorf("Breaking out of Primitives should stop it, counted %d", count)
	}
}

func TestViewTransformsBounds(t *testing.T) {
	boxes := []box{unitBox(0, 0, 0), unitBox(10, 0, 0)}
	b := mustBuild(t, boxes, Options{MaxPrimitivesPerLeaf: 1})

	view := NewView(b, mgl64.Translate3D(0, 5, 0))
	root, ok := view.Root()
	if !ok {
		t.Fatalf("View should have a root")
	}

	expected := actor.AABB{Min: mgl64.Vec3{0, 5, 0}, Max: mgl64.Vec3{11, 6, 1}}
	if got := view.NodeBounds(root); !got.Min.ApproxEqual(expected.Min) || !got.Max.ApproxEqual(expected.Max) {
		t.Errorf("NodeBounds = %v, expected %v", got, expected)
	}

	left, right := view.Children(root)
	if !view.IsLeaf(left) || !view.IsLeaf(right) {
		t.Fatalf("Children of the root should be leaves")
	}
	if view.Leaf(left) != b.Leaf(left) {
		t.Errorf("View should expose the BVH leaf ranges")
	}
	if got := view.NodeBounds(left); !got.Min.ApproxEqual(mgl64.Vec3{0, 5, 0}) {
		t.Errorf("Left leaf bounds = %v", got)
	}
}

// ============================================================================
// selectNth
// ============================================================================

func TestSelectNth(t *testing.T) {
	r := rand.New(rand.NewPCG(4, 4))

	for round := range 50 {
		count := r.IntN(40) + 1
		items := make([]primitiveInfo, count)
		for i := range items {
			// Few distinct values, many duplicates
			items[i] = primitiveInfo{index: i, centroid: mgl64.Vec3{0, float64(r.IntN(6)), 0}}
		}

		values := make([]float64, count)
		for i, it := range items {
			values[i] = it.centroid[1]
		}
		slices.Sort(values)

		n := r.IntN(count)
		selectNth(items, n, 1)

		if items[n].centroid[1] != values[n] {
			t.Fatalf("round %d: items[%d] = %v, expected %v", round, n, items[n].centroid[1], values[n])
		}
		for i := range n {
			if items[i].centroid[1] > items[n].centroid[1] {
				t.Errorf("round %d: items[%d] is greater than the selected value", round, i)
			}
		}
		for i := n + 1; i < count; i++ {
			if items[i].centroid[1] < items[n].centroid[1] {
				t.Errorf("round %d: items[%d] is smaller than the selected value", round, i)
			}
		}
	}
}

func TestMedianOfThree(t *testing.T) {
	tests := []struct {
		a, b, c, expected float64
	}{
		{1, 2, 3, 2},
		{3, 2, 1, 2},
		{2, 3, 1, 2},
		{1, 3, 2, 2},
		{5, 5, 1, 5},
		{4, 4, 4, 4},
	}

	for _, tt := range tests {
		if got := medianOfThree(tt.a, tt.b, tt.c); got != tt.expected {
			t.Errorf("medianOfThree(%v, %v, %v) = %v, expected %v", tt.a, tt.b, tt.c, got, tt.expected)
		}
	}
}
