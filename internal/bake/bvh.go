package bake

import (
	gomath "math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// triangle is one occluder in hierarchy space.
type triangle struct {
	a, b, c mgl32.Vec3
}

func (t triangle) centroid(axis int) float32 {
	return (t.a[axis] + t.b[axis] + t.c[axis]) / 3
}

const bvhLeafSize = 4

type bvhNode struct {
	bmin, bmax mgl32.Vec3

	// leaf when count > 0, then start/count index into tris;
	// otherwise left/right index into nodes
	left, right  int32
	start, count int32
}

// bvh is a bounding volume hierarchy over the occluder triangles. Built
// once per bake, queried from many goroutines; it is immutable after
// build.
type bvh struct {
	nodes []bvhNode
	tris  []triangle
}

func buildBVH(tris []triangle) *bvh {
	b := &bvh{tris: tris}
	if len(tris) == 0 {
		return b
	}
	b.nodes = make([]bvhNode, 0, 2*len(tris))
	b.split(0, len(tris))
	return b
}

// split builds the subtree over tris[start:end] and returns its node
// index.
func (b *bvh) split(start, end int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, bvhNode{})

	bmin := mgl32.Vec3{gomath.MaxFloat32, gomath.MaxFloat32, gomath.MaxFloat32}
	bmax := bmin.Mul(-1)
	for _, t := range b.tris[start:end] {
		for _, p := range [3]mgl32.Vec3{t.a, t.b, t.c} {
			for a := 0; a < 3; a++ {
				if p[a] < bmin[a] {
					bmin[a] = p[a]
				}
				if p[a] > bmax[a] {
					bmax[a] = p[a]
				}
			}
		}
	}

	node := bvhNode{bmin: bmin, bmax: bmax}
	if end-start <= bvhLeafSize {
		node.start = int32(start)
		node.count = int32(end - start)
		b.nodes[idx] = node
		return idx
	}

	// median split along the longest extent
	size := bmax.Sub(bmin)
	axis := 0
	if size[1] > size[axis] {
		axis = 1
	}
	if size[2] > size[axis] {
		axis = 2
	}
	part := b.tris[start:end]
	sort.Slice(part, func(i, j int) bool {
		return part[i].centroid(axis) < part[j].centroid(axis)
	})

	mid := start + (end-start)/2
	node.left = b.split(start, mid)
	node.right = b.split(mid, end)
	b.nodes[idx] = node
	return idx
}

// nearestHit returns the distance to the closest triangle hit along
// orig+t*dir with t in (tmin, tmax], or ok=false when the ray escapes.
// dir must be unit length; tmax <= 0 means unlimited.
func (b *bvh) nearestHit(orig, dir mgl32.Vec3, tmin, tmax float32) (float32, bool) {
	if len(b.nodes) == 0 {
		return 0, false
	}
	if tmax <= 0 {
		tmax = gomath.MaxFloat32
	}

	inv := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}

	best := tmax
	found := false

	var stack [64]int32
	top := 0
	stack[top] = 0
	top++

	for top > 0 {
		top--
		node := &b.nodes[stack[top]]
		if !slabTest(node.bmin, node.bmax, orig, inv, best) {
			continue
		}
		if node.count > 0 {
			for _, tri := range b.tris[node.start : node.start+node.count] {
				if t, ok := rayTriangle(orig, dir, tri); ok && t > tmin && t < best {
					best = t
					found = true
				}
			}
			continue
		}
		stack[top] = node.left
		top++
		stack[top] = node.right
		top++
	}
	return best, found
}

// slabTest is the branchless AABB intersection against a ray with
// precomputed inverse direction.
func slabTest(bmin, bmax, orig, inv mgl32.Vec3, tmax float32) bool {
	t0 := float32(0)
	t1 := tmax
	for a := 0; a < 3; a++ {
		near := (bmin[a] - orig[a]) * inv[a]
		far := (bmax[a] - orig[a]) * inv[a]
		if near > far {
			near, far = far, near
		}
		if near > t0 {
			t0 = near
		}
		if far < t1 {
			t1 = far
		}
		if t0 > t1 {
			return false
		}
	}
	return true
}

const rayEpsilon = 1e-7

// rayTriangle is the Moller-Trumbore intersection test. Both triangle
// sides occlude; backface culling would let rays leak out of closed
// geometry whose winding is inconsistent, which legacy models often are.
func rayTriangle(orig, dir mgl32.Vec3, tri triangle) (float32, bool) {
	e1 := tri.b.Sub(tri.a)
	e2 := tri.c.Sub(tri.a)

	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -rayEpsilon && det < rayEpsilon {
		return 0, false
	}
	invDet := 1 / det

	s := orig.Sub(tri.a)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}

	q := s.Cross(e1)
	v := dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := e2.Dot(q) * invDet
	if t <= 0 {
		return 0, false
	}
	return t, true
}
