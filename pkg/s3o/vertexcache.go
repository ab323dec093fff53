package s3o

import gomath "math"

// Triangle-order optimization following "Linear-Speed Vertex Cache
// Optimisation" (Tom Forsyth, 2006). Re-ordering triangles so that
// vertices are reused while still resident in the GPU's post-transform
// cache measurably cuts transform cost on the engine side, and costs
// nothing at edit time.

const (
	cacheSize         = 32
	cacheDecayPower   = 1.5
	lastTriScore      = 0.75
	valenceBoostScale = 2.0
	valenceBoostPower = 0.5
)

type cacheVertex struct {
	cachePos  int
	score     float64
	triangles []int
}

func (v *cacheVertex) updateScore() {
	if len(v.triangles) == 0 {
		v.score = -1
		return
	}

	switch {
	case v.cachePos < 0:
		v.score = 0
	case v.cachePos < 3:
		v.score = lastTriScore
	default:
		v.score = gomath.Pow(1.0-float64(v.cachePos-3)/(cacheSize-3), cacheDecayPower)
	}

	// favor vertices with few remaining triangles so they retire early
	v.score += valenceBoostScale * gomath.Pow(float64(len(v.triangles)), -valenceBoostPower)
}

type cacheTriangle struct {
	added bool
	score float64
	verts [3]int32
}

// OptimizeTriangleOrder returns the triangles reordered for vertex cache
// efficiency. Degenerate and duplicate triangles are dropped. The result
// is deterministic for a given input.
func OptimizeTriangleOrder(triangles [][3]int32) [][3]int32 {
	numVerts := 0
	for _, t := range triangles {
		for _, v := range t {
			if int(v)+1 > numVerts {
				numVerts = int(v) + 1
			}
		}
	}

	verts := make([]cacheVertex, numVerts)
	for i := range verts {
		verts[i].cachePos = -1
	}

	tris := make([]cacheTriangle, 0, len(triangles))
	seen := make(map[[3]int32]bool, len(triangles))
	for _, t := range triangles {
		if t[0] == t[1] || t[1] == t[2] || t[2] == t[0] {
			continue
		}
		c := canonicalTriangle(t)
		if seen[c] {
			continue
		}
		seen[c] = true

		triIndex := len(tris)
		tris = append(tris, cacheTriangle{verts: c})
		for _, v := range c {
			verts[v].triangles = append(verts[v].triangles, triIndex)
		}
	}

	for i := range verts {
		verts[i].updateScore()
	}
	for i := range tris {
		tris[i].score = triScore(verts, tris[i].verts)
	}

	out := make([][3]int32, 0, len(tris))
	var cache []int32
	remaining := len(tris)

	for remaining > 0 {
		best := -1
		for i := range tris {
			if !tris[i].added && (best < 0 || tris[i].score > tris[best].score) {
				best = i
			}
		}

		tris[best].added = true
		remaining--
		out = append(out, tris[best].verts)

		touched := map[int32]bool{}
		for _, v := range tris[best].verts {
			vi := &verts[v]
			for k, t := range vi.triangles {
				if t == best {
					vi.triangles = append(vi.triangles[:k], vi.triangles[k+1:]...)
					break
				}
			}
			touched[v] = true

			if !inCache(cache, v) {
				cache = append([]int32{v}, cache...)
				if len(cache) > cacheSize {
					evicted := cache[len(cache)-1]
					cache = cache[:len(cache)-1]
					verts[evicted].cachePos = -1
					touched[evicted] = true
				}
			}
		}

		for i, v := range cache {
			verts[v].cachePos = i
			touched[v] = true
		}

		retried := map[int]bool{}
		for v := range touched {
			verts[v].updateScore()
			for _, t := range verts[v].triangles {
				retried[t] = true
			}
		}
		for t := range retried {
			tris[t].score = triScore(verts, tris[t].verts)
		}
	}

	return out
}

// AverageCacheMissRatio computes cache misses per triangle for the given
// triangle order and a FIFO cache model. Lower is better; 3.0 is the
// worst case, regular meshes approach 0.5 when well ordered.
func AverageCacheMissRatio(triangles [][3]int32) float64 {
	if len(triangles) == 0 {
		return 0
	}

	var cache []int32
	misses := 0
	for _, t := range triangles {
		for _, v := range t {
			if inCache(cache, v) {
				continue
			}
			cache = append([]int32{v}, cache...)
			if len(cache) > cacheSize {
				cache = cache[:cacheSize]
			}
			misses++
		}
	}
	return float64(misses) / float64(len(triangles))
}

// canonicalTriangle rotates the triangle so its smallest index comes
// first, preserving winding.
func canonicalTriangle(t [3]int32) [3]int32 {
	switch {
	case t[1] < t[0] && t[1] < t[2]:
		return [3]int32{t[1], t[2], t[0]}
	case t[2] < t[0] && t[2] < t[1]:
		return [3]int32{t[2], t[0], t[1]}
	default:
		return t
	}
}

func triScore(verts []cacheVertex, t [3]int32) float64 {
	return verts[t[0]].score + verts[t[1]].score + verts[t[2]].score
}

func inCache(cache []int32, v int32) bool {
	for _, c := range cache {
		if c == v {
			return true
		}
	}
	return false
}
