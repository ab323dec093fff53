// Package s3o reads and writes the Spring/Recoil *.s3o binary model format.
// An s3o file stores a tree of named pieces, each with its own vertex and
// index data, plus root-level metadata (collision radius, height, midpoint,
// texture names). All multi-byte fields are little-endian and all cross
// references inside the file are absolute byte offsets.
package s3o

import (
	"fmt"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// PrimitiveType is the on-disk primitive encoding of a piece's index list.
type PrimitiveType int32

const (
	PrimitiveTriangles      PrimitiveType = 0
	PrimitiveTriangleStrips PrimitiveType = 1
	PrimitiveQuads          PrimitiveType = 2
)

// String returns a human-readable primitive type name.
func (p PrimitiveType) String() string {
	switch p {
	case PrimitiveTriangles:
		return "Triangles"
	case PrimitiveTriangleStrips:
		return "TriangleStrips"
	case PrimitiveQuads:
		return "Quads"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(p))
	}
}

// stripRestart marks the end of a strip inside a triangle-strip index list.
const stripRestart int32 = -1

// aoScale is the fixed-point scale used to hide ambient-occlusion data in
// the low fractional bits of the texture U coordinate. The engine samples
// textures at far lower precision than float32 carries, so the bottom
// ~7-8 bits of U are free for a packed scalar.
const aoScale = 1 << 14

// Vertex is a single s3o vertex record: position, normal and one UV set.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

// AmbientOcclusion extracts the occlusion term packed into the low bits of
// the U texture coordinate. 1 means fully lit, 0 fully occluded.
func (v Vertex) AmbientOcclusion() float32 {
	u := float64(v.TexCoord[0]) * aoScale
	return float32(u - gomath.Floor(u))
}

// SetAmbientOcclusion packs an occlusion term into the low bits of the U
// texture coordinate without disturbing the visible UV mapping. The value
// is clamped away from the exact 0 and 1 endpoints so float rounding in
// later processing cannot destroy the packed bits.
func (v *Vertex) SetAmbientOcclusion(ao float32) {
	ao = min(0.98, max(0.02, ao))
	base := gomath.Floor(float64(v.TexCoord[0])*aoScale) / aoScale
	v.TexCoord[0] = float32(base + float64(ao)/aoScale)
}

// Piece is one node of the model tree. Pieces own their children; the tree
// has no cycles and every piece appears exactly once.
type Piece struct {
	Name string

	// ParentOffset is the piece origin relative to its parent piece.
	ParentOffset mgl32.Vec3

	Primitive PrimitiveType
	Vertices  []Vertex
	Indices   []int32

	Children []*Piece
}

// Walk calls fn for p and every descendant piece in depth-first order.
func (p *Piece) Walk(fn func(*Piece)) {
	fn(p)
	for _, c := range p.Children {
		c.Walk(fn)
	}
}

// TriangleCount returns the number of triangles the piece's index list
// resolves to. Only meaningful after triangulation.
func (p *Piece) TriangleCount() int {
	return len(p.Indices) / 3
}

// Model is a decoded s3o file.
type Model struct {
	CollisionRadius float32
	Height          float32
	Midpoint        mgl32.Vec3

	// TexturePath1 is the color texture, TexturePath2 the team-color /
	// shading map. Either may be empty.
	TexturePath1 string
	TexturePath2 string

	Root *Piece
}

// PieceCount returns the total number of pieces in the model tree.
func (m *Model) PieceCount() int {
	if m.Root == nil {
		return 0
	}
	n := 0
	m.Root.Walk(func(*Piece) { n++ })
	return n
}

// VertexCount returns the total number of vertices across all pieces.
func (m *Model) VertexCount() int {
	if m.Root == nil {
		return 0
	}
	n := 0
	m.Root.Walk(func(p *Piece) { n += len(p.Vertices) })
	return n
}

// FindPiece returns the first piece with the given name, or nil.
func (m *Model) FindPiece(name string) *Piece {
	if m.Root == nil {
		return nil
	}
	var found *Piece
	m.Root.Walk(func(p *Piece) {
		if found == nil && p.Name == name {
			found = p
		}
	})
	return found
}
