package scene

import (
	"bytes"
	"errors"
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/s3o"
)

// aoU returns a texture U whose integer UV part is k/aoScale and whose
// packed occlusion bits are exactly ao. ao must be a value the fixed
// point packing represents exactly (0.5, 0.25, ...).
func aoU(k int32, ao float32) float32 {
	return float32((float64(k) + float64(ao)) / (1 << 14))
}

func makeTestScene() *s3o.Model {
	return &s3o.Model{
		CollisionRadius: 30,
		Height:          22,
		Midpoint:        mgl32.Vec3{0, 11, 0},
		TexturePath1:    "tank_color.dds",
		TexturePath2:    "tank_other.dds",
		Root: &s3o.Piece{
			Name:      "base",
			Primitive: s3o.PrimitiveTriangles,
			Vertices: []s3o.Vertex{
				{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(0, 0.5), 0}},
				{Position: mgl32.Vec3{8, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(8192, 0.5), 0}},
				{Position: mgl32.Vec3{0, 0, 8}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(0, 0.25), 1}},
			},
			Indices: []int32{0, 1, 2},
			Children: []*s3o.Piece{
				{
					Name:         "turret",
					Primitive:    s3o.PrimitiveTriangles,
					ParentOffset: mgl32.Vec3{0, 8, 0},
					Vertices: []s3o.Vertex{
						{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{aoU(1024, 0.5), 0.5}},
						{Position: mgl32.Vec3{3, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{aoU(2048, 0.5), 0.5}},
						{Position: mgl32.Vec3{0, 3, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{aoU(3072, 0.5), 0.5}},
					},
					Indices: []int32{0, 1, 2},
					Children: []*s3o.Piece{
						{
							Name:         "flare",
							Primitive:    s3o.PrimitiveTriangles,
							ParentOffset: mgl32.Vec3{0, 1, 4},
						},
					},
				},
			},
		},
	}
}

func TestFromModel_Hierarchy(t *testing.T) {
	root := FromModel(makeTestScene(), ImportOptions{})

	if root.Kind != KindRoot {
		t.Fatalf("root kind = %v, want Root", root.Kind)
	}
	if root.Root == nil || root.Root.CollisionRadius != 30 || root.Root.Height != 22 {
		t.Fatalf("root properties not carried: %+v", root.Root)
	}
	if root.Root.TexturePath1 != "tank_color.dds" {
		t.Errorf("TexturePath1 = %q", root.Root.TexturePath1)
	}

	if len(root.Children) != 1 {
		t.Fatalf("root has %d children, want 1", len(root.Children))
	}
	base := root.Children[0]
	if base.Kind != KindMesh || base.Name != "base" {
		t.Fatalf("base = %v %q", base.Kind, base.Name)
	}
	if base.Mesh == nil || base.Mesh.VertexCount() != 3 {
		t.Fatalf("base mesh = %+v", base.Mesh)
	}

	turret := base.Children[0]
	if turret.Position != (mgl32.Vec3{0, 8, 0}) {
		t.Errorf("turret position = %v", turret.Position)
	}

	flare := turret.Children[0]
	if flare.Kind != KindAimPoint {
		t.Fatalf("flare kind = %v, want AimPoint", flare.Kind)
	}
	if flare.AimPoint.Direction() != DefaultAimDirection {
		t.Errorf("flare direction = %v, want default", flare.AimPoint.Direction())
	}
}

func TestFromModel_UnpacksAO(t *testing.T) {
	root := FromModel(makeTestScene(), ImportOptions{})
	mesh := root.Children[0].Mesh

	want := []float32{0.5, 0.5, 0.25}
	for i, w := range want {
		if gomath.Abs(float64(mesh.AO[i]-w)) > 1e-4 {
			t.Errorf("AO[%d] = %v, want %v", i, mesh.AO[i], w)
		}
	}
}

func TestFromModel_AimPointVariants(t *testing.T) {
	tests := []struct {
		name     string
		vertices []s3o.Vertex
		wantPos  mgl32.Vec3
		wantDir  mgl32.Vec3
	}{
		{
			"empty piece means origin facing forward",
			nil,
			mgl32.Vec3{}, mgl32.Vec3{0, 0, 1},
		},
		{
			"single vertex is a direction",
			[]s3o.Vertex{{Position: mgl32.Vec3{0, 2, 0}}},
			mgl32.Vec3{}, mgl32.Vec3{0, 1, 0},
		},
		{
			"two vertices are position and position plus direction",
			[]s3o.Vertex{
				{Position: mgl32.Vec3{1, 2, 3}},
				{Position: mgl32.Vec3{1, 2, 7}},
			},
			mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := makeTestScene()
			m.Root.Children[0].Children[0].Vertices = tt.vertices

			root := FromModel(m, ImportOptions{})
			ap := root.Children[0].Children[0].Children[0].AimPoint
			if ap == nil {
				t.Fatal("no aim point decoded")
			}
			if ap.Position != tt.wantPos {
				t.Errorf("Position = %v, want %v", ap.Position, tt.wantPos)
			}
			if ap.Direction() != tt.wantDir {
				t.Errorf("Direction = %v, want %v", ap.Direction(), tt.wantDir)
			}
		})
	}
}

// A piece holding even a single triangle is geometry; only pieces with
// no complete triangle and at most two vertices are attachment markers.
func TestFromModel_PieceClassification(t *testing.T) {
	tests := []struct {
		name     string
		vertices int
		indices  []int32
		want     Kind
	}{
		{"single triangle", 3, []int32{0, 1, 2}, KindMesh},
		{"no geometry", 0, nil, KindAimPoint},
		{"direction vertex", 1, nil, KindAimPoint},
		{"position and direction", 2, nil, KindAimPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verts := make([]s3o.Vertex, tt.vertices)
			for i := range verts {
				verts[i] = s3o.Vertex{Position: mgl32.Vec3{float32(i), 1, 0}, Normal: mgl32.Vec3{0, 1, 0}}
			}
			m := &s3o.Model{Root: &s3o.Piece{
				Name:      "piece",
				Primitive: s3o.PrimitiveTriangles,
				Vertices:  verts,
				Indices:   tt.indices,
			}}

			root := FromModel(m, ImportOptions{})
			if got := root.Children[0].Kind; got != tt.want {
				t.Errorf("kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromModel_MergeVertices(t *testing.T) {
	m := makeTestScene()
	base := m.Root
	// duplicate every corner the way a flat per-face export does
	base.Vertices = append(base.Vertices, base.Vertices...)
	base.Indices = []int32{0, 1, 2, 3, 4, 5}

	root := FromModel(m, ImportOptions{MergeVertices: true})
	mesh := root.Children[0].Mesh
	if mesh.VertexCount() != 3 {
		t.Errorf("merged vertex count = %d, want 3", mesh.VertexCount())
	}
	if len(mesh.Indices) != 6 {
		t.Errorf("index count = %d, want 6", len(mesh.Indices))
	}
}

// Every duplicate contributes equally to the merged vertex's occlusion,
// regardless of the order the duplicates appear in.
func TestFromModel_MergeAveragesAO(t *testing.T) {
	m := makeTestScene()
	m.Root.Children = nil
	m.Root.Vertices = []s3o.Vertex{
		{Position: mgl32.Vec3{2, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(8192, 0.25), 0}},
		{Position: mgl32.Vec3{2, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(8192, 0.5), 0}},
		{Position: mgl32.Vec3{2, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(8192, 0.75), 0}},
	}
	m.Root.Indices = []int32{0, 1, 2}

	root := FromModel(m, ImportOptions{MergeVertices: true})
	mesh := root.Children[0].Mesh
	if mesh.VertexCount() != 1 {
		t.Fatalf("merged vertex count = %d, want 1", mesh.VertexCount())
	}
	if got := mesh.AO[0]; got != 0.5 {
		t.Errorf("merged AO = %v, want the mean 0.5", got)
	}
}

// Positions straddling a quantization bin edge still merge when they are
// within tolerance of each other.
func TestFromModel_MergeStraddlingBinEdge(t *testing.T) {
	m := makeTestScene()
	m.Root.Children = nil
	m.Root.Vertices = []s3o.Vertex{
		{Position: mgl32.Vec3{0.00199, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec3{0.00201, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}},
	}
	m.Root.Indices = []int32{0, 1, 2}

	root := FromModel(m, ImportOptions{MergeVertices: true})
	if got := root.Children[0].Mesh.VertexCount(); got != 2 {
		t.Errorf("vertex count = %d, want 2 (the near-identical pair merges)", got)
	}
}

// Importing then exporting an untouched hierarchy must reproduce the
// original file byte for byte.
func TestImportExport_ByteStable(t *testing.T) {
	first, err := makeTestScene().Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := s3o.Decode(first)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	root := FromModel(decoded, ImportOptions{})
	exported, err := ToModel(root)
	if err != nil {
		t.Fatalf("ToModel failed: %v", err)
	}

	second, err := exported.Encode()
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("round trip not byte stable: %d vs %d bytes", len(first), len(second))
	}
}

// A model that was never baked carries ordinary texture coordinates; an
// import/export cycle must not rewrite their low bits through the
// occlusion packing.
func TestImportExport_PlainUVsStayUntouched(t *testing.T) {
	m := makeTestScene()
	m.Root.Vertices[0].TexCoord = mgl32.Vec2{0.5, 0}
	m.Root.Vertices[1].TexCoord = mgl32.Vec2{0.1, 0.3}
	m.Root.Vertices[2].TexCoord = mgl32.Vec2{0.37, 1}

	first, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := s3o.Decode(first)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	exported, err := ToModel(FromModel(decoded, ImportOptions{}))
	if err != nil {
		t.Fatalf("ToModel failed: %v", err)
	}
	second, err := exported.Encode()
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("texture coordinates were disturbed by the round trip")
	}
}

// A single-triangle model with one aim point at the origin facing
// straight ahead must import to one mesh object plus one attachment and
// export back unchanged.
func TestImportExport_SingleTriangleWithAimPoint(t *testing.T) {
	m := &s3o.Model{
		CollisionRadius: 10,
		Height:          5,
		Root: &s3o.Piece{
			Name:      "body",
			Primitive: s3o.PrimitiveTriangles,
			Vertices: []s3o.Vertex{
				{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(0, 0.5), 0}},
				{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(4096, 0.5), 0}},
				{Position: mgl32.Vec3{0, 0, 1}, Normal: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{aoU(8192, 0.5), 1}},
			},
			Indices: []int32{0, 1, 2},
			Children: []*s3o.Piece{
				{Name: "aim", Primitive: s3o.PrimitiveTriangles},
			},
		},
	}

	first, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := s3o.Decode(first)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	root := FromModel(decoded, ImportOptions{})

	var meshes, aims int
	root.Walk(func(o *Object) {
		switch o.Kind {
		case KindMesh:
			meshes++
		case KindAimPoint:
			aims++
			if o.AimPoint.Direction() != (mgl32.Vec3{0, 0, 1}) {
				t.Errorf("aim direction = %v, want (0,0,1)", o.AimPoint.Direction())
			}
			if o.AimPoint.Position != (mgl32.Vec3{}) {
				t.Errorf("aim position = %v, want origin", o.AimPoint.Position)
			}
		}
	})
	if meshes != 1 || aims != 1 {
		t.Fatalf("hierarchy has %d meshes and %d aim points, want 1 and 1", meshes, aims)
	}

	exported, err := ToModel(root)
	if err != nil {
		t.Fatalf("ToModel failed: %v", err)
	}
	second, err := exported.Encode()
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("unchanged hierarchy did not export byte-identically")
	}
}

func TestExportScene_RootGuards(t *testing.T) {
	mesh := NewObject("stray", KindMesh)

	if _, err := ExportScene([]*Object{mesh}); !errors.Is(err, ErrNoRoot) {
		t.Errorf("no root: err = %v, want %v", err, ErrNoRoot)
	}

	r1 := FromModel(makeTestScene(), ImportOptions{})
	r2 := FromModel(makeTestScene(), ImportOptions{})
	if _, err := ExportScene([]*Object{r1, r2}); !errors.Is(err, ErrMultipleRoots) {
		t.Errorf("two roots: err = %v, want %v", err, ErrMultipleRoots)
	}

	if _, err := ExportScene([]*Object{mesh, r1}); err != nil {
		t.Errorf("one root: err = %v, want nil", err)
	}
}

func TestToModel_RootChildGuard(t *testing.T) {
	root := NewObject("empty", KindRoot)
	if _, err := ToModel(root); !errors.Is(err, ErrRootChildren) {
		t.Errorf("no children: err = %v, want %v", err, ErrRootChildren)
	}

	root.AddChild(NewObject("a", KindMesh))
	root.AddChild(NewObject("b", KindMesh))
	if _, err := ToModel(root); !errors.Is(err, ErrRootChildren) {
		t.Errorf("two children: err = %v, want %v", err, ErrRootChildren)
	}
}

// ToModel climbs to the hierarchy root, so any object inside the tree
// exports the whole model.
func TestToModel_FromNestedObject(t *testing.T) {
	root := FromModel(makeTestScene(), ImportOptions{})
	turret := root.Children[0].Children[0]

	exported, err := ToModel(turret)
	if err != nil {
		t.Fatalf("ToModel failed: %v", err)
	}
	if exported.Root == nil || exported.Root.Name != "base" {
		t.Errorf("export did not cover the whole hierarchy: %+v", exported.Root)
	}

	stray := NewObject("stray", KindMesh)
	if _, err := ToModel(stray); !errors.Is(err, ErrNoRoot) {
		t.Errorf("stray object err = %v, want %v", err, ErrNoRoot)
	}
}

// Rotating a child object must bake into its vertex data on export; the
// piece offsets stay hierarchical.
func TestToModel_BakesRotationIntoGeometry(t *testing.T) {
	root := FromModel(makeTestScene(), ImportOptions{})
	turret := root.Children[0].Children[0]
	turret.Rotation[1] = gomath.Pi // 180 degree yaw

	exported, err := ToModel(root)
	if err != nil {
		t.Fatalf("ToModel failed: %v", err)
	}

	p := exported.FindPiece("turret")
	if p == nil {
		t.Fatal("turret piece missing")
	}
	if p.ParentOffset != (mgl32.Vec3{0, 8, 0}) {
		t.Errorf("offset changed by rotation: %v", p.ParentOffset)
	}

	// source vertex (3,0,0) must land at (-3,0,0)
	var found bool
	for _, v := range p.Vertices {
		if gomath.Abs(float64(v.Position[0]+3)) < 1e-5 && gomath.Abs(float64(v.Position[2])) < 1e-5 {
			found = true
			if gomath.Abs(float64(v.Normal[2]+1)) > 1e-5 {
				t.Errorf("normal not rotated: %v", v.Normal)
			}
		}
	}
	if !found {
		t.Errorf("rotated vertex not found in %v", p.Vertices)
	}
}

func TestToModel_AimPointEncodings(t *testing.T) {
	tests := []struct {
		name      string
		pos, dir  mgl32.Vec3
		wantVerts int
	}{
		{"default marker writes no vertices", mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, 0},
		{"bare direction writes one vertex", mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 1},
		{"positioned writes two vertices", mgl32.Vec3{0, 5, 0}, mgl32.Vec3{0, 0, 1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := FromModel(makeTestScene(), ImportOptions{})
			ap := root.Children[0].Children[0].Children[0].AimPoint
			ap.Position = tt.pos
			ap.SetDirection(tt.dir)

			exported, err := ToModel(root)
			if err != nil {
				t.Fatalf("ToModel failed: %v", err)
			}
			p := exported.FindPiece("flare")
			if p == nil {
				t.Fatal("flare piece missing")
			}
			if len(p.Vertices) != tt.wantVerts {
				t.Errorf("vertex count = %d, want %d", len(p.Vertices), tt.wantVerts)
			}
		})
	}
}

func TestMesh_TriangulateFan(t *testing.T) {
	m := &Mesh{
		Positions: make([]mgl32.Vec3, 5),
		Faces:     [][]uint32{{0, 1, 2, 3, 4}},
	}
	if err := m.Triangulate(); err != nil {
		t.Fatalf("Triangulate failed: %v", err)
	}

	want := []uint32{0, 1, 2, 0, 2, 3, 0, 3, 4}
	if len(m.Indices) != len(want) {
		t.Fatalf("index count = %d, want %d", len(m.Indices), len(want))
	}
	for i := range want {
		if m.Indices[i] != want[i] {
			t.Errorf("Indices[%d] = %d, want %d", i, m.Indices[i], want[i])
		}
	}
	if !m.Triangulated() {
		t.Error("mesh not marked triangulated")
	}
}

func TestMesh_TriangulateBadFace(t *testing.T) {
	tests := []struct {
		name string
		face []uint32
	}{
		{"too few corners", []uint32{0, 1}},
		{"index out of range", []uint32{0, 1, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{
				Positions: make([]mgl32.Vec3, 3),
				Faces:     [][]uint32{tt.face},
			}
			if err := m.Triangulate(); !errors.Is(err, ErrBadFace) {
				t.Errorf("Triangulate err = %v, want %v", err, ErrBadFace)
			}
		})
	}
}

func TestRootProperties_PlaceholderRoundTrip(t *testing.T) {
	rp := &RootProperties{
		CollisionRadius: 20,
		Height:          15,
		Midpoint:        mgl32.Vec3{0, 7, 0},
	}

	phs := rp.Placeholders()
	if len(phs) != 2 {
		t.Fatalf("placeholder count = %d, want 2", len(phs))
	}
	if phs[0].Tag != PlaceholderMidpoint || phs[0].Radius != 20 {
		t.Errorf("midpoint placeholder = %+v", phs[0])
	}
	if phs[1].Position[1] != 15 {
		t.Errorf("height placeholder at y=%v, want 15", phs[1].Position[1])
	}

	// move the midpoint sphere and scale it up; properties must follow
	if err := rp.ApplyPlaceholder(PlaceholderMidpoint, mgl32.Vec3{1, 8, 0}, 1.5); err != nil {
		t.Fatalf("ApplyPlaceholder failed: %v", err)
	}
	if rp.Midpoint != (mgl32.Vec3{1, 8, 0}) || rp.CollisionRadius != 30 {
		t.Errorf("midpoint edit not applied: %+v", rp)
	}

	if err := rp.ApplyPlaceholder(PlaceholderHeight, mgl32.Vec3{1, 25, 0}, 1); err != nil {
		t.Fatalf("ApplyPlaceholder failed: %v", err)
	}
	if rp.Height != 25 {
		t.Errorf("Height = %v, want 25", rp.Height)
	}

	if err := rp.ApplyPlaceholder("bogus", mgl32.Vec3{}, 1); err == nil {
		t.Error("unknown tag accepted")
	}
}

func TestAimPoint_AlignToRotation(t *testing.T) {
	o := NewObject("aim", KindAimPoint)
	o.AimPoint = &AimPointProperties{AlignToRotation: true}
	o.Rotation[1] = gomath.Pi / 2 // yaw: forward swings from +Z to +X

	o.AimPoint.SyncWithObject(o)
	d := o.AimPoint.Direction()
	if gomath.Abs(float64(d[0]-1)) > 1e-5 || gomath.Abs(float64(d[2])) > 1e-5 {
		t.Errorf("aligned direction = %v, want (1,0,0)", d)
	}

	// direct edits must be ignored while aligned
	o.AimPoint.ApplyPlaceholder(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0})
	if o.AimPoint.Position != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("position edit dropped: %v", o.AimPoint.Position)
	}
	if d2 := o.AimPoint.Direction(); d2 != d {
		t.Errorf("direction changed while aligned: %v", d2)
	}
}

func TestAimPoint_Placeholder(t *testing.T) {
	ap := &AimPointProperties{Position: mgl32.Vec3{1, 2, 3}}
	ap.SetDirection(mgl32.Vec3{0, 4, 0})

	ph := ap.Placeholder()
	if ph.Tag != PlaceholderAimRay {
		t.Errorf("tag = %v, want %v", ph.Tag, PlaceholderAimRay)
	}
	if ph.Position != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("position = %v, want (1,2,3)", ph.Position)
	}
	if ph.Direction != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("direction = %v, want normalized (0,1,0)", ph.Direction)
	}
}

func TestObject_WorldMatrix(t *testing.T) {
	parent := NewObject("p", KindMesh)
	parent.Position = mgl32.Vec3{0, 10, 0}
	child := NewObject("c", KindMesh)
	child.Position = mgl32.Vec3{5, 0, 0}
	parent.AddChild(child)

	if wp := child.WorldPosition(); wp != (mgl32.Vec3{5, 10, 0}) {
		t.Errorf("WorldPosition = %v, want (5,10,0)", wp)
	}
}
