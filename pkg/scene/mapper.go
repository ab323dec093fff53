package scene

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/s3o"
)

// Axis convention: the scene keeps the format's Y-up, Z-forward frame, so
// the remap between the two spaces is the identity involution. It is
// still routed through these helpers so that a host with a different
// convention (the original editing tool used a Z-up host) only has to
// change this one place; both import and export must keep using the same
// function for round-trips to stay exact.

func formatToScene(v mgl32.Vec3) mgl32.Vec3 { return v }

func sceneToFormat(v mgl32.Vec3) mgl32.Vec3 { return formatToScene(v) }

// isAimPiece reports whether a piece is an aim/emit point marker rather
// than geometry: no complete triangle in its index list and at most the
// two vertices the position/direction encoding uses. A piece holding even
// a single full triangle is a real mesh.
func isAimPiece(p *s3o.Piece) bool {
	return len(p.Indices) < 3 && len(p.Vertices) <= 2
}

// ImportOptions controls FromModel.
type ImportOptions struct {
	// Name for the created root object. Defaults to the root piece name.
	Name string

	// MergeVertices collapses vertices that agree on position, normal
	// and UV within MergeTolerance, undoing the per-corner duplication
	// the flat s3o vertex format forces.
	MergeVertices  bool
	MergeTolerance float32
}

// FromModel maps a decoded model tree into an editable hierarchy: a
// KindRoot object carrying the RootProperties, with the piece tree below
// it. Pieces without a complete triangle become aim points; everything
// else becomes a mesh object. Packed per-vertex ambient occlusion is
// unpacked into the mesh AO attribute.
func FromModel(m *s3o.Model, opts ImportOptions) *Object {
	if opts.MergeTolerance == 0 {
		opts.MergeTolerance = 0.002
	}

	name := opts.Name
	if name == "" && m.Root != nil {
		name = m.Root.Name
	}

	root := NewObject(name, KindRoot)
	root.Root = &RootProperties{
		Name:            name,
		CollisionRadius: m.CollisionRadius,
		Height:          m.Height,
		Midpoint:        formatToScene(m.Midpoint),
		TexturePath1:    m.TexturePath1,
		TexturePath2:    m.TexturePath2,
	}

	if m.Root != nil {
		root.AddChild(pieceToObject(m.Root, opts))
	}
	return root
}

func pieceToObject(p *s3o.Piece, opts ImportOptions) *Object {
	var obj *Object
	if isAimPiece(p) {
		obj = aimPointFromPiece(p)
	} else {
		obj = NewObject(p.Name, KindMesh)
		obj.Mesh = meshFromPiece(p, opts)
	}

	obj.Position = formatToScene(p.ParentOffset)

	for _, child := range p.Children {
		obj.AddChild(pieceToObject(child, opts))
	}
	return obj
}

// aimPointFromPiece decodes the legacy vertex encoding of aim points:
// no vertices means origin facing forward, one vertex is a bare
// direction, two vertices are position and position+direction.
func aimPointFromPiece(p *s3o.Piece) *Object {
	obj := NewObject(p.Name, KindAimPoint)
	ap := &AimPointProperties{}

	switch len(p.Vertices) {
	case 0:
		// defaults
	case 1:
		ap.SetDirection(formatToScene(p.Vertices[0].Position))
	default:
		ap.Position = formatToScene(p.Vertices[0].Position)
		ap.SetDirection(formatToScene(p.Vertices[1].Position.Sub(p.Vertices[0].Position)))
	}

	obj.AimPoint = ap
	return obj
}

func meshFromPiece(p *s3o.Piece, opts ImportOptions) *Mesh {
	mesh := &Mesh{
		Positions: make([]mgl32.Vec3, 0, len(p.Vertices)),
		Normals:   make([]mgl32.Vec3, 0, len(p.Vertices)),
		UVs:       make([]mgl32.Vec2, 0, len(p.Vertices)),
		AO:        make([]float32, 0, len(p.Vertices)),
		Indices:   make([]uint32, 0, len(p.Indices)),
	}

	// remap[i] is the final mesh index for source vertex i
	remap := make([]uint32, len(p.Vertices))

	type quantKey struct {
		px, py, pz int32
		nx, ny, nz int32
		u, v       int32
	}
	var seen map[quantKey]uint32
	if opts.MergeVertices {
		seen = make(map[quantKey]uint32, len(p.Vertices))
	}

	posQ := opts.MergeTolerance
	const normQ, uvQ = 0.01, 0.0001

	// mergeCount[j] is how many source vertices collapsed into mesh
	// vertex j; their occlusion is summed here and averaged below
	var mergeCount []float32

	for i, v := range p.Vertices {
		if opts.MergeVertices {
			key := quantKey{
				px: quantize(v.Position[0], posQ), py: quantize(v.Position[1], posQ), pz: quantize(v.Position[2], posQ),
				nx: quantize(v.Normal[0], normQ), ny: quantize(v.Normal[1], normQ), nz: quantize(v.Normal[2], normQ),
				u:  quantize(v.TexCoord[0], uvQ), v: quantize(v.TexCoord[1], uvQ),
			}
			if prev, ok := seen[key]; ok {
				remap[i] = prev
				mesh.AO[prev] += v.AmbientOcclusion()
				mergeCount[prev]++
				continue
			}
			seen[key] = uint32(len(mesh.Positions))
			mergeCount = append(mergeCount, 1)
		}

		remap[i] = uint32(len(mesh.Positions))
		mesh.Positions = append(mesh.Positions, formatToScene(v.Position))
		mesh.Normals = append(mesh.Normals, safeNormalize(formatToScene(v.Normal)))
		mesh.UVs = append(mesh.UVs, v.TexCoord)
		mesh.AO = append(mesh.AO, v.AmbientOcclusion())
	}

	for j, n := range mergeCount {
		if n > 1 {
			mesh.AO[j] /= n
		}
	}

	for _, idx := range p.Indices {
		mesh.Indices = append(mesh.Indices, remap[idx])
	}

	return mesh
}

// quantize snaps x to its nearest q-sized bin, so near-equal values
// straddling a bin boundary still land together.
func quantize(x, q float32) int32 {
	return int32(gomath.Round(float64(x / q)))
}

// safeNormalize normalizes v, replacing zero or non-finite normals with
// up. Legacy files are full of NaN normals on emit geometry.
func safeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 || l != l {
		return mgl32.Vec3{0, 1, 0}
	}
	return v.Mul(1 / l)
}
