package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh geometry errors.
var (
	ErrBadFace = errors.New("face cannot be triangulated")
)

// Mesh holds editable geometry buffers. Positions, Normals, UVs and AO are
// parallel per-vertex arrays; Indices is a flat triangle list. Faces may
// additionally hold n-gon polygons produced by editing operations; they
// are converted to triangles by Triangulate before any export or bake.
type Mesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2

	// AO is the per-vertex ambient occlusion attribute, values in [0,1]
	// with 1 fully lit. It is created lazily before the first bake and
	// persists with the mesh from then on.
	AO []float32

	Indices []uint32
	Faces   [][]uint32
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// Triangulated reports whether the mesh is a pure triangle list.
func (m *Mesh) Triangulated() bool {
	return len(m.Faces) == 0 && len(m.Indices)%3 == 0
}

// Triangulate converts any pending n-gon faces into triangles using a
// deterministic fan (v0,v1,v2), (v0,v2,v3), ... and appends them to
// Indices. The same face list always produces the same index sequence.
func (m *Mesh) Triangulate() error {
	for _, face := range m.Faces {
		if len(face) < 3 {
			return fmt.Errorf("%w: %d corners", ErrBadFace, len(face))
		}
		for _, idx := range face {
			if int(idx) >= len(m.Positions) {
				return fmt.Errorf("%w: corner index %d of %d vertices", ErrBadFace, idx, len(m.Positions))
			}
		}
		for i := 1; i+1 < len(face); i++ {
			m.Indices = append(m.Indices, face[0], face[i], face[i+1])
		}
	}
	m.Faces = nil
	return nil
}

// EnsureAO returns the AO attribute, creating it fully lit if the mesh
// has never been baked.
func (m *Mesh) EnsureAO() []float32 {
	if len(m.AO) != len(m.Positions) {
		m.AO = make([]float32, len(m.Positions))
		for i := range m.AO {
			m.AO[i] = 1
		}
	}
	return m.AO
}

// SurfaceArea returns the summed area of all triangles.
func (m *Mesh) SurfaceArea() float32 {
	var area float32
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a := m.Positions[m.Indices[i]]
		b := m.Positions[m.Indices[i+1]]
		c := m.Positions[m.Indices[i+2]]
		area += b.Sub(a).Cross(c.Sub(a)).Len() / 2
	}
	return area
}

// Bounds returns the axis-aligned bounding box of the mesh vertices.
// ok is false for an empty mesh.
func (m *Mesh) Bounds() (bmin, bmax mgl32.Vec3, ok bool) {
	if len(m.Positions) == 0 {
		return bmin, bmax, false
	}
	bmin = m.Positions[0]
	bmax = m.Positions[0]
	for _, p := range m.Positions[1:] {
		for a := 0; a < 3; a++ {
			if p[a] < bmin[a] {
				bmin[a] = p[a]
			}
			if p[a] > bmax[a] {
				bmax[a] = p[a]
			}
		}
	}
	return bmin, bmax, true
}
