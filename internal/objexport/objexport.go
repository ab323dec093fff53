// Package objexport writes a model tree as a Wavefront OBJ file for
// editing in external mesh tools. Piece metadata that OBJ cannot carry
// (offsets, parent links, the model header) is packed into the object
// names, and aim/emit pieces are written as small placeholder triangles
// so they survive the round trip through editors that drop empty
// objects.
package objexport

import (
	"bufio"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/s3o"
)

// mergeTolerance collapses positions closer than this into one shared
// OBJ vertex, so editors can reconnect the per-corner duplicated faces.
const mergeTolerance = 0.002

// Export writes m as OBJ. Vertices are written in absolute model space;
// the per-piece offsets are recorded on the o-lines so the model can be
// reassembled.
func Export(w io.Writer, m *s3o.Model) error {
	if m.Root == nil {
		return fmt.Errorf("model has no root piece")
	}

	// work on a triangulated copy, the source stays untouched
	model := *m
	model.Root = clonePiece(m.Root)
	model.Triangulate()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# s3o unit export\n")
	fmt.Fprintf(bw, "# o-line arguments: Oxyz piece offset, p parent, e emit vertex count\n")
	fmt.Fprintf(bw, "# root carries: Mxyz midpoint, r radius, h height, t1 t2 textures\n")

	header := fmt.Sprintf("mx=%.2f,my=%.2f,mz=%.2f,r=%.2f,h=%.2f,t1=%s,t2=%s",
		model.Midpoint[0], model.Midpoint[1], model.Midpoint[2],
		model.CollisionRadius, model.Height,
		model.TexturePath1, model.TexturePath2)

	e := exporter{w: bw}
	e.piece(model.Root, "", header, mgl32.Vec3{})
	return bw.Flush()
}

func clonePiece(p *s3o.Piece) *s3o.Piece {
	c := &s3o.Piece{
		Name:         p.Name,
		ParentOffset: p.ParentOffset,
		Primitive:    p.Primitive,
		Vertices:     append([]s3o.Vertex(nil), p.Vertices...),
		Indices:      append([]int32(nil), p.Indices...),
	}
	for _, child := range p.Children {
		c.Children = append(c.Children, clonePiece(child))
	}
	return c
}

type exporter struct {
	w *bufio.Writer

	// vi/nti are the running OBJ index counters; OBJ indexes from 1
	// and counts globally across objects
	vi  int
	nti int
}

func (e *exporter) piece(p *s3o.Piece, parent, extra string, offset mgl32.Vec3) {
	world := offset.Add(p.ParentOffset)

	if len(p.Indices) >= 3 {
		e.meshPiece(p, parent, extra, world)
	} else {
		e.emitPiece(p, parent, extra, world)
	}

	for _, child := range p.Children {
		e.piece(child, p.Name, "", world)
	}
}

func (e *exporter) oLine(p *s3o.Piece, parent, extra string) {
	fmt.Fprintf(e.w, "o %s,ox=%.2f,oy=%.2f,oz=%.2f,p=%s",
		p.Name, p.ParentOffset[0], p.ParentOffset[1], p.ParentOffset[2], parent)
	if extra != "" {
		fmt.Fprintf(e.w, ",%s", extra)
	}
}

func (e *exporter) meshPiece(p *s3o.Piece, parent, extra string, world mgl32.Vec3) {
	e.oLine(p, parent, extra)
	fmt.Fprintln(e.w)

	// collapse near-identical positions into shared v entries so the
	// editor can reconnect faces; normals and UVs stay per corner
	shared := make([]int, len(p.Vertices)) // vertex -> 1-based local v index
	vcount := 0
	for i, v := range p.Vertices {
		shared[i] = 0
		for j := 0; j < i; j++ {
			if p.Vertices[j].Position.Sub(v.Position).Len() < mergeTolerance {
				shared[i] = shared[j]
				break
			}
		}
		if shared[i] == 0 {
			vcount++
			shared[i] = vcount
			pos := v.Position.Add(world)
			fmt.Fprintf(e.w, "v %f %f %f\n", pos[0], pos[1], pos[2])
		}
	}

	groups := smoothingGroups(p, shared)

	var faces []string
	for k := 0; k+2 < len(p.Indices); k += 3 {
		face := "f"
		for i := 0; i < 3; i++ {
			v := p.Vertices[p.Indices[k+i]]
			n := sanitizeNormal(v.Normal)
			fmt.Fprintf(e.w, "vn %f %f %f\n", n[0], n[1], n[2])
			fmt.Fprintf(e.w, "vt %.9f %.9f\n", v.TexCoord[0], v.TexCoord[1])
			e.nti++
			face += fmt.Sprintf(" %d/%d/%d", e.vi+shared[p.Indices[k+i]], e.nti, e.nti)
		}
		faces = append(faces, face)
	}

	// faces grouped by smoothing cluster; loners go under "s off"
	wroteOff := false
	for f, g := range groups {
		if g == 0 {
			if !wroteOff {
				fmt.Fprintln(e.w, "s off")
				wroteOff = true
			}
			fmt.Fprintln(e.w, faces[f])
		}
	}
	maxGroup := 0
	for _, g := range groups {
		maxGroup = max(maxGroup, g)
	}
	for g := 1; g <= maxGroup; g++ {
		fmt.Fprintf(e.w, "s %d\n", g)
		for f, fg := range groups {
			if fg == g {
				fmt.Fprintln(e.w, faces[f])
			}
		}
	}

	e.vi += vcount
}

// emitPiece writes an aim/emit piece as a small placeholder triangle;
// the e= marker on the o-line records how many real vertices the piece
// had so an importer can reverse this.
func (e *exporter) emitPiece(p *s3o.Piece, parent, extra string, world mgl32.Vec3) {
	if len(p.Vertices) > 2 {
		return
	}

	marker := fmt.Sprintf("e=%d", len(p.Vertices))
	if extra != "" {
		extra += "," + marker
	} else {
		extra = marker
	}
	e.oLine(p, parent, extra)
	fmt.Fprintln(e.w)

	var a, b, c mgl32.Vec3
	switch len(p.Vertices) {
	case 0:
		a = world
		b = world.Add(mgl32.Vec3{0, 0, 4})
		c = world.Add(mgl32.Vec3{0, 2, 0})
	case 1:
		a = world
		b = p.Vertices[0].Position.Add(world)
		c = world.Add(mgl32.Vec3{0, 2, 0})
	case 2:
		a = p.Vertices[0].Position.Add(world)
		b = p.Vertices[1].Position.Add(world)
		c = p.Vertices[0].Position.Add(world).Add(mgl32.Vec3{0, 2, 0})
	}

	for _, pos := range [3]mgl32.Vec3{a, b, c} {
		fmt.Fprintf(e.w, "v %f %f %f\n", pos[0], pos[1], pos[2])
	}
	fmt.Fprintf(e.w, "f %d/1/1 %d/2/2 %d/3/3\n", e.vi+1, e.vi+2, e.vi+3)
	e.vi += 3
}

func sanitizeNormal(n mgl32.Vec3) mgl32.Vec3 {
	for _, v := range n {
		if v != v || v > 1e6 || v < -1e6 {
			return mgl32.Vec3{}
		}
	}
	return n
}

// smoothingGroups clusters triangles that share a merged edge with
// matching normals across it. Editors treat each normal-carrying OBJ
// group as a separate smooth surface, so without these groups every
// piece would import as disconnected shards. Returns a per-face group
// id, 0 for ungrouped faces.
func smoothingGroups(p *s3o.Piece, shared []int) []int {
	nFaces := len(p.Indices) / 3
	groups := make([]int, nFaces)
	if nFaces == 0 {
		return groups
	}

	// union-find over faces
	parent := make([]int, nFaces)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	// faces keyed by merged undirected edge
	type edge struct{ lo, hi int }
	type corner struct {
		face   int
		na, nb mgl32.Vec3 // normals at the edge's two corners
	}
	edges := make(map[edge][]corner, len(p.Indices))

	for f := 0; f < nFaces; f++ {
		for i := 0; i < 3; i++ {
			ia := p.Indices[3*f+i]
			ib := p.Indices[3*f+(i+1)%3]
			sa, sb := shared[ia], shared[ib]
			if sa == sb {
				continue
			}
			na, nb := p.Vertices[ia].Normal, p.Vertices[ib].Normal
			if sa > sb {
				sa, sb = sb, sa
				na, nb = nb, na
			}
			e := edge{sa, sb}
			for _, other := range edges[e] {
				if normalsClose(na, other.na) && normalsClose(nb, other.nb) {
					ra, rb := find(f), find(other.face)
					if ra != rb {
						parent[ra] = rb
					}
				}
			}
			edges[e] = append(edges[e], corner{face: f, na: na, nb: nb})
		}
	}

	// number the clusters that hold more than one face
	next := 0
	rootGroup := map[int]int{}
	counts := map[int]int{}
	for f := 0; f < nFaces; f++ {
		counts[find(f)]++
	}
	for f := 0; f < nFaces; f++ {
		root := find(f)
		if counts[root] < 2 {
			continue
		}
		g, ok := rootGroup[root]
		if !ok {
			next++
			g = next
			rootGroup[root] = g
		}
		groups[f] = g
	}
	return groups
}

func normalsClose(a, b mgl32.Vec3) bool {
	return a.Sub(b).Len() < 0.001
}
