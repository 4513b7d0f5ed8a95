package actor

import "github.com/go-gl/mathgl/mgl64"

// TriangleMesh is the collision geometry of an actor, in local space
type TriangleMesh struct {
	Triangles []Triangle
}

// Bounds returns the local-space box of every vertex
func (m *TriangleMesh) Bounds() AABB {
	box := EmptyAABB()
	for _, t := range m.Triangles {
		box = box.Union(t.Bounds())
	}

	return box
}

func (m *TriangleMesh) Len() int {
	return len(m.Triangles)
}

// NewBoxMesh builds the 12 outward-facing triangles of a box centered on the origin
func NewBoxMesh(halfExtents mgl64.Vec3) *TriangleMesh {
	hx, hy, hz := halfExtents.X(), halfExtents.Y(), halfExtents.Z()

	// Les 8 coins de la boîte en espace local
	corners := [8]mgl64.Vec3{
		{-hx, -hy, -hz},
		{+hx, -hy, -hz},
		{-hx, +hy, -hz},
		{+hx, +hy, -hz},
		{-hx, -hy, +hz},
		{+hx, -hy, +hz},
		{-hx, +hy, +hz},
		{+hx, +hy, +hz},
	}

	// Two triangles per face, counter-clockwise seen from outside
	faces := [12][3]int{
		{1, 3, 7}, {1, 7, 5}, // +X
		{0, 4, 6}, {0, 6, 2}, // -X
		{2, 6, 7}, {2, 7, 3}, // +Y
		{0, 1, 5}, {0, 5, 4}, // -Y
		{4, 5, 7}, {4, 7, 6}, // +Z
		{0, 2, 3}, {0, 3, 1}, // -Z
	}

	mesh := &TriangleMesh{Triangles: make([]Triangle, 0, len(faces))}
	for _, f := range faces {
		mesh.Triangles = append(mesh.Triangles, Triangle{V1: corners[f[0]], V2: corners[f[1]], V3: corners[f[2]]})
	}

	return mesh
}

// NewQuadMesh builds a flat grid in the XZ plane facing +Y, split in
// divisions x divisions cells of two triangles each
func NewQuadMesh(halfX, halfZ float64, divisions int) *TriangleMesh {
	divisions = max(1, divisions)
	stepX := 2 * halfX / float64(divisions)
	stepZ := 2 * halfZ / float64(divisions)

	mesh := &TriangleMesh{Triangles: make([]Triangle, 0, 2*divisions*divisions)}
	for i := range divisions {
		for j := range divisions {
			x0 := -halfX + float64(i)*stepX
			z0 := -halfZ + float64(j)*stepZ
			a := mgl64.Vec3{x0, 0, z0}
			b := mgl64.Vec3{x0 + stepX, 0, z0}
			c := mgl64.Vec3{x0 + stepX, 0, z0 + stepZ}
			d := mgl64.Vec3{x0, 0, z0 + stepZ}

			mesh.Triangles = append(mesh.Triangles, Triangle{V1: a, V2: d, V3: c}, Triangle{V1: a, V2: c, V3: b})
		}
	}

	return mesh
}
