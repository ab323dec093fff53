package bake

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/scene"
)

// proxyMesh is the shading mesh a bake actually samples from: hierarchy
// space positions with edge-split smoothed normals. A vertex sitting on
// a sharp crease appears once per smooth face cluster, each copy with
// its own normal, so rays leave flat faces instead of leaking through
// the crease. source maps every proxy vertex back to the mesh vertex it
// was split from.
type proxyMesh struct {
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	source    []int
}

// buildProxy splits mesh vertices along creases sharper than sharpAngle
// degrees and smooths normals within each remaining face cluster. world
// carries the mesh into hierarchy space. The mesh must be triangulated.
func buildProxy(mesh *scene.Mesh, world mgl32.Mat4, sharpAngle float32) *proxyMesh {
	nVerts := len(mesh.Positions)
	nTris := len(mesh.Indices) / 3

	worldPos := make([]mgl32.Vec3, nVerts)
	for i, p := range mesh.Positions {
		worldPos[i] = world.Mul4x1(p.Vec4(1)).Vec3()
	}

	faceNormals := make([]mgl32.Vec3, nTris)
	for f := 0; f < nTris; f++ {
		a := worldPos[mesh.Indices[3*f]]
		b := worldPos[mesh.Indices[3*f+1]]
		c := worldPos[mesh.Indices[3*f+2]]
		n := b.Sub(a).Cross(c.Sub(a))
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		faceNormals[f] = n
	}

	// faces per undirected edge, for walking face adjacency around a vertex
	type edge struct{ lo, hi uint32 }
	edgeFaces := make(map[edge][]int32, len(mesh.Indices))
	addEdge := func(a, b uint32, f int32) {
		if a > b {
			a, b = b, a
		}
		e := edge{a, b}
		edgeFaces[e] = append(edgeFaces[e], f)
	}
	vertFaces := make([][]int32, nVerts)
	for f := 0; f < nTris; f++ {
		i0, i1, i2 := mesh.Indices[3*f], mesh.Indices[3*f+1], mesh.Indices[3*f+2]
		addEdge(i0, i1, int32(f))
		addEdge(i1, i2, int32(f))
		addEdge(i2, i0, int32(f))
		vertFaces[i0] = append(vertFaces[i0], int32(f))
		vertFaces[i1] = append(vertFaces[i1], int32(f))
		vertFaces[i2] = append(vertFaces[i2], int32(f))
	}

	cosThreshold := float32(gomath.Cos(float64(sharpAngle) * gomath.Pi / 180))

	pm := &proxyMesh{}
	local := map[int32]int{}  // face -> local index, reused per vertex
	parent := make([]int, 0)  // union-find over the vertex's incident faces

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for v := 0; v < nVerts; v++ {
		faces := vertFaces[v]
		if len(faces) == 0 {
			// loose vertex: keep it, shaded by its stored normal
			n := mesh.Normals[v]
			if l := n.Len(); l > 0 {
				n = world.Mat3().Inv().Transpose().Mul3x1(n)
				if wl := n.Len(); wl > 0 {
					n = n.Mul(1 / wl)
				}
			} else {
				n = mgl32.Vec3{0, 1, 0}
			}
			pm.positions = append(pm.positions, worldPos[v])
			pm.normals = append(pm.normals, n)
			pm.source = append(pm.source, v)
			continue
		}

		clear(local)
		parent = parent[:0]
		for i, f := range faces {
			local[f] = i
			parent = append(parent, i)
		}

		// merge faces that meet across a smooth edge at this vertex
		for _, f := range faces {
			for _, w := range []uint32{
				mesh.Indices[3*f], mesh.Indices[3*f+1], mesh.Indices[3*f+2],
			} {
				if w == uint32(v) {
					continue
				}
				a, b := uint32(v), w
				if a > b {
					a, b = b, a
				}
				for _, g := range edgeFaces[edge{a, b}] {
					if g == f {
						continue
					}
					if faceNormals[f].Dot(faceNormals[g]) >= cosThreshold {
						union(local[f], local[g])
					}
				}
			}
		}

		// one proxy vertex per cluster, normal averaged over its faces
		clusterVert := map[int]int{}
		for i, f := range faces {
			root := find(i)
			pv, ok := clusterVert[root]
			if !ok {
				pv = len(pm.positions)
				clusterVert[root] = pv
				pm.positions = append(pm.positions, worldPos[v])
				pm.normals = append(pm.normals, mgl32.Vec3{})
				pm.source = append(pm.source, v)
			}
			pm.normals[pv] = pm.normals[pv].Add(faceNormals[f])
		}
	}

	for i, n := range pm.normals {
		if l := n.Len(); l > 0 {
			pm.normals[i] = n.Mul(1 / l)
		} else {
			pm.normals[i] = mgl32.Vec3{0, 1, 0}
		}
	}
	return pm
}

// transfer folds per-proxy-vertex occlusion back onto the original mesh
// vertices, averaging where a crease split one vertex into several.
func (pm *proxyMesh) transfer(proxyAO []float32, nVerts int) []float32 {
	sum := make([]float32, nVerts)
	count := make([]int, nVerts)
	for i, src := range pm.source {
		sum[src] += proxyAO[i]
		count[src]++
	}

	out := make([]float32, nVerts)
	for i := range out {
		if count[i] > 0 {
			out[i] = sum[i] / float32(count[i])
		} else {
			out[i] = 1
		}
	}
	return out
}
