package scene

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/s3o"
)

// Export errors. All are wrapped with the name of the object that failed.
var (
	ErrNoRoot        = errors.New("no root object designated")
	ErrMultipleRoots = errors.New("more than one root object designated")
	ErrRootChildren  = errors.New("root object must have exactly one exportable child")
	ErrBadTransform  = errors.New("object transform is degenerate and cannot be baked")
)

// ExportScene locates the single root object among the given top-level
// objects and maps its hierarchy to a model tree. Zero roots or more than
// one root is an error; nothing is written in either case.
func ExportScene(objects []*Object) (*s3o.Model, error) {
	var root *Object
	for _, o := range objects {
		if o.Kind != KindRoot {
			continue
		}
		if root != nil {
			return nil, fmt.Errorf("%w: %q and %q", ErrMultipleRoots, root.Name, o.Name)
		}
		root = o
	}
	if root == nil {
		return nil, ErrNoRoot
	}
	return ToModel(root)
}

// ToModel maps an editable hierarchy back to a model tree. Every mesh is
// triangulated, each object's accumulated rotation and scale are baked
// into its vertex data (offsets stay hierarchical), per-vertex ambient
// occlusion is packed into the texture coordinates, and index order is
// optimized for the engine's vertex cache.
//
// root may be any object inside the hierarchy; the export always covers
// the whole tree from its KindRoot ancestor.
func ToModel(root *Object) (*s3o.Model, error) {
	if root.Kind != KindRoot {
		r := root.FindRoot()
		if r == nil {
			return nil, fmt.Errorf("%w: %q is not inside a rooted hierarchy", ErrNoRoot, root.Name)
		}
		root = r
	}

	props := root.Root
	if props == nil {
		props = &RootProperties{Name: root.Name}
	}

	m := &s3o.Model{
		CollisionRadius: props.CollisionRadius,
		Height:          props.Height,
		Midpoint:        sceneToFormat(props.Midpoint),
		TexturePath1:    props.TexturePath1,
		TexturePath2:    props.TexturePath2,
	}

	exportable := make([]*Object, 0, len(root.Children))
	for _, c := range root.Children {
		if c.Kind == KindMesh || c.Kind == KindAimPoint {
			exportable = append(exportable, c)
		}
	}
	if len(exportable) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrRootChildren, len(exportable))
	}

	rootWorld := root.WorldMatrix()
	piece, err := objectToPiece(exportable[0], rootWorld)
	if err != nil {
		return nil, err
	}
	m.Root = piece

	return m, nil
}

func objectToPiece(o *Object, parentWorld mgl32.Mat4) (*s3o.Piece, error) {
	world := parentWorld.Mul4(o.LocalMatrix())

	p := &s3o.Piece{
		Name:      o.Name,
		Primitive: s3o.PrimitiveTriangles,
		ParentOffset: sceneToFormat(mgl32.Vec3{
			world.At(0, 3) - parentWorld.At(0, 3),
			world.At(1, 3) - parentWorld.At(1, 3),
			world.At(2, 3) - parentWorld.At(2, 3),
		}),
	}

	var err error
	switch {
	case o.Kind == KindAimPoint && o.AimPoint != nil:
		aimPointToPiece(o, p)
	case o.Mesh != nil:
		err = meshToPiece(o, world, p)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
	}

	for _, child := range o.Children {
		cp, err := objectToPiece(child, world)
		if err != nil {
			return nil, err
		}
		p.Children = append(p.Children, cp)
	}
	return p, nil
}

// aimPointToPiece writes the legacy aim point vertex encoding: nothing
// for the default origin/forward marker, a single direction vertex, or a
// position plus position+direction pair.
func aimPointToPiece(o *Object, p *s3o.Piece) {
	ap := o.AimPoint
	ap.SyncWithObject(o)

	pos := sceneToFormat(ap.Position)
	dir := sceneToFormat(ap.Direction())

	switch {
	case pos.Len() > 1e-6:
		p.Vertices = []s3o.Vertex{
			{Position: pos},
			{Position: pos.Add(dir)},
		}
	case dir.Sub(mgl32.Vec3{0, 0, 1}).Len() > 1e-6:
		p.Vertices = []s3o.Vertex{{Position: dir}}
	}
}

func meshToPiece(o *Object, world mgl32.Mat4, p *s3o.Piece) error {
	mesh := &Mesh{
		Positions: o.Mesh.Positions,
		Normals:   o.Mesh.Normals,
		UVs:       o.Mesh.UVs,
		AO:        o.Mesh.AO,
		Indices:   append([]uint32(nil), o.Mesh.Indices...),
		Faces:     o.Mesh.Faces,
	}
	if err := mesh.Triangulate(); err != nil {
		return err
	}

	// accumulated rotation and scale bake directly into the geometry;
	// only the hierarchical offset survives in the piece header
	rs := world.Mat3()
	det := rs.Det()
	if gomath.Abs(float64(det)) < 1e-12 {
		return ErrBadTransform
	}
	normalMat := rs.Inv().Transpose()

	hasAO := len(mesh.AO) == len(mesh.Positions)

	// collapse identical corners into shared vertices, first-use order
	type corner struct {
		pos  mgl32.Vec3
		norm mgl32.Vec3
		uv   mgl32.Vec2
	}
	remap := make(map[corner]int32, len(mesh.Indices))
	var verts []s3o.Vertex
	tris := make([][3]int32, 0, len(mesh.Indices)/3)

	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		var tri [3]int32
		for j := 0; j < 3; j++ {
			src := mesh.Indices[i+j]

			v := s3o.Vertex{
				Position: sceneToFormat(rs.Mul3x1(mesh.Positions[src])),
				Normal:   sceneToFormat(safeNormalize(normalMat.Mul3x1(mesh.Normals[src]))),
				TexCoord: mesh.UVs[src],
			}
			// only re-pack when the attribute actually diverged from the
			// bits already stored in the UV; never-baked models keep their
			// texture coordinates untouched
			if hasAO && v.AmbientOcclusion() != mesh.AO[src] {
				v.SetAmbientOcclusion(mesh.AO[src])
			}

			key := corner{pos: v.Position, norm: v.Normal, uv: v.TexCoord}
			idx, ok := remap[key]
			if !ok {
				idx = int32(len(verts))
				remap[key] = idx
				verts = append(verts, v)
			}
			tri[j] = idx
		}
		tris = append(tris, tri)
	}

	tris = optimizeTriangles(tris)

	// renumber vertices to first use so the index stream is canonical
	order := make([]int32, 0, len(verts))
	newIndex := make([]int32, len(verts))
	for i := range newIndex {
		newIndex[i] = -1
	}
	indices := make([]int32, 0, len(tris)*3)
	for _, tri := range tris {
		for _, v := range tri {
			if newIndex[v] < 0 {
				newIndex[v] = int32(len(order))
				order = append(order, v)
			}
			indices = append(indices, newIndex[v])
		}
	}

	p.Vertices = make([]s3o.Vertex, len(order))
	for i, src := range order {
		p.Vertices[i] = verts[src]
	}
	p.Indices = indices
	return nil
}

// optimizeTriangles applies vertex-cache ordering when it actually helps.
func optimizeTriangles(tris [][3]int32) [][3]int32 {
	if len(tris) == 0 {
		return tris
	}
	reordered := s3o.OptimizeTriangleOrder(tris)
	if s3o.AverageCacheMissRatio(reordered) < s3o.AverageCacheMissRatio(tris) {
		return reordered
	}
	return tris
}
