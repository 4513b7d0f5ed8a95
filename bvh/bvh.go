// Package bvh builds static bounding volume hierarchies over a fixed set of
// primitives.
//
// The builder splits the primitives at the median of their centroids along
// the axis where the centroids spread the most, until a range holds no more
// than MaxPrimitivesPerLeaf primitives. Leaves do not point at primitives:
// they hold a Range into an index array reordered during the build, so the
// primitives of a leaf are contiguous in that array.
//
// A BVH is immutable. Changing the primitive set requires a new Build.
package bvh

import (
	"iter"
	"slices"
	"time"

	"github.com/akmonengine/thicket/actor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultMaxPrimitivesPerLeaf is used when Options leaves the threshold unset
const DefaultMaxPrimitivesPerLeaf = 8

var (
	ErrNoPrimitives     = errors.New("no primitives to build from")
	ErrInvalidPrimitive = errors.New("primitive has invalid bounds")
)

// Primitive is anything that can be bounded by a box
type Primitive interface {
	Bounds() actor.AABB
}

type Options struct {
	// MaxPrimitivesPerLeaf stops the split of a range. Defaults to 8.
	MaxPrimitivesPerLeaf int
	Logger               *zap.Logger
}

// Range is a contiguous slice of the reordered index array
type Range struct {
	First int
	Count int
}

type node struct {
	bounds actor.AABB
	// -1 for leaves
	children [2]int
	axis     int
	leaf     Range
}

func (n *node) isLeaf() bool {
	return n.children[0] < 0
}

type BVH[T Primitive] struct {
	nodes      []node
	indices    []int
	primitives []T

	maxPerLeaf int
	depth      int
}

// primitiveInfo is the build-time view of one primitive
type primitiveInfo struct {
	index    int
	bounds   actor.AABB
	centroid mgl64.Vec3
}

// Build creates the hierarchy. The primitive slice is copied.
func Build[T Primitive](primitives []T, opts Options) (*BVH[T], error) {
	if len(primitives) == 0 {
		return nil, ErrNoPrimitives
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	maxPerLeaf := opts.MaxPrimitivesPerLeaf
	if maxPerLeaf <= 0 {
		maxPerLeaf = DefaultMaxPrimitivesPerLeaf
	}

	start := time.Now()

	info := make([]primitiveInfo, len(primitives))
	for i, p := range primitives {
		b := p.Bounds()
		if !b.IsValid() {
			return nil, errors.Wrapf(ErrInvalidPrimitive, "primitive %d: %v", i, b)
		}
		info[i] = primitiveInfo{index: i, bounds: b, centroid: b.Center()}
	}

	bvh := &BVH[T]{
		nodes:      make([]node, 0, 2*len(primitives)/maxPerLeaf+1),
		indices:    make([]int, 0, len(primitives)),
		primitives: slices.Clone(primitives),
		maxPerLeaf: maxPerLeaf,
	}
	bvh.makeNode(info, 0)

	logger.Debug("bvh built",
		zap.Int("primitives", len(primitives)),
		zap.Int("nodes", len(bvh.nodes)),
		zap.Int("depth", bvh.depth),
		zap.Int("maxPerLeaf", maxPerLeaf),
		zap.Any("bounds", bvh.Bounds()),
		zap.Duration("elapsed", time.Since(start)))

	return bvh, nil
}

// makeNode builds the subtree over info and returns its node index
func (b *BVH[T]) makeNode(info []primitiveInfo, depth int) int {
	b.depth = max(b.depth, depth)

	index := len(b.nodes)
	b.nodes = append(b.nodes, node{children: [2]int{-1, -1}, axis: -1})

	if len(info) <= b.maxPerLeaf {
		b.makeLeaf(index, info)
		return index
	}

	centroidBounds := actor.EmptyAABB()
	for _, p := range info {
		centroidBounds = centroidBounds.Extend(p.centroid)
	}

	// All centroids coincide on the widest axis, so on every axis
	axis := centroidBounds.LongestAxis()
	if centroidBounds.Max[axis] == centroidBounds.Min[axis] {
		b.makeLeaf(index, info)
		return index
	}

	// Partition primitives into two sets and build children
	mid := len(info) / 2
	selectNth(info, mid, axis)

	left := b.makeNode(info[:mid], depth+1)
	right := b.makeNode(info[mid:], depth+1)

	n := &b.nodes[index]
	n.children = [2]int{left, right}
	n.axis = axis
	n.bounds = b.nodes[left].bounds.Union(b.nodes[right].bounds)

	return index
}

func (b *BVH[T]) makeLeaf(index int, info []primitiveInfo) {
	bounds := actor.EmptyAABB()
	first := len(b.indices)
	for _, p := range info {
		bounds = bounds.Union(p.bounds)
		b.indices = append(b.indices, p.index)
	}

	n := &b.nodes[index]
	n.bounds = bounds
	n.leaf = Range{First: first, Count: len(info)}
}

// Bounds returns the box of the whole hierarchy
func (b *BVH[T]) Bounds() actor.AABB {
	return b.nodes[0].bounds
}

func (b *BVH[T]) NodeCount() int {
	return len(b.nodes)
}

// Depth returns the number of edges on the longest root-to-leaf path
func (b *BVH[T]) Depth() int {
	return b.depth
}

func (b *BVH[T]) Len() int {
	return len(b.primitives)
}

// Primitive returns a primitive by its position in the slice given to Build
func (b *BVH[T]) Primitive(i int) T {
	return b.primitives[i]
}

// Indices returns a copy of the reordered index array
func (b *BVH[T]) Indices() []int {
	return slices.Clone(b.indices)
}

// Primitives yields the primitives of a leaf range with their original index
func (b *BVH[T]) Primitives(r Range) iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for _, i := range b.indices[r.First : r.First+r.Count] {
			if !yield(i, b.primitives[i]) {
				return
			}
		}
	}
}

// NodeInfo describes one node of the hierarchy
type NodeInfo struct {
	Bounds actor.AABB
	IsLeaf bool
	// Split axis of internal nodes, -1 for leaves
	Axis        int
	Left, Right int
	Range       Range
}

// Layout lists every node in build order, the root first
func (b *BVH[T]) Layout() []NodeInfo {
	layout := make([]NodeInfo, len(b.nodes))
	for i := range b.nodes {
		n := &b.nodes[i]
		layout[i] = NodeInfo{
			Bounds: n.bounds,
			IsLeaf: n.isLeaf(),
			Axis:   n.axis,
			Left:   n.children[0],
			Right:  n.children[1],
			Range:  n.leaf,
		}
	}

	return layout
}

// Root returns the root node for traversal. A built BVH is never empty.
func (b *BVH[T]) Root() (int, bool) {
	return 0, len(b.nodes) > 0
}

func (b *BVH[T]) NodeBounds(index int) actor.AABB {
	return b.nodes[index].bounds
}

func (b *BVH[T]) IsLeaf(index int) bool {
	return b.nodes[index].isLeaf()
}

func (b *BVH[T]) Children(index int) (int, int) {
	n := &b.nodes[index]
	return n.children[0], n.children[1]
}

// Leaf returns the primitive range of a leaf
func (b *BVH[T]) Leaf(index int) Range {
	return b.nodes[index].leaf
}
