package bake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/scene"
)

var (
	ErrNoGeometry     = errors.New("hierarchy contains no bakeable geometry")
	ErrDegenerateMesh = errors.New("mesh has no surface area to bake")
)

// selfHitBias lifts ray origins off the surface so a vertex never
// occludes itself with the faces it sits on.
const selfHitBias = 0.01

// Baker runs ambient-occlusion bakes over editable hierarchies.
type Baker struct {
	cfg Config
	log *zap.Logger
}

// New returns a Baker. log may be nil for a silent bake.
func New(cfg Config, log *zap.Logger) (*Baker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bake config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Baker{cfg: cfg, log: log}, nil
}

// bakeTarget is one mesh object scheduled for baking, with its proxy
// vertex range inside the combined work list.
type bakeTarget struct {
	obj   *scene.Object
	proxy *proxyMesh
	first int
}

// Hierarchy bakes per-vertex ambient occlusion into every mesh below
// root. All meshes occlude all others; the occlusion written into each
// mesh's AO attribute is already remapped by the configured
// MinClamp/Bias/Gain curve. Vertices of aim points and other non-mesh
// objects are untouched.
func (b *Baker) Hierarchy(ctx context.Context, root *scene.Object) error {
	start := time.Now()

	var tris []triangle
	var targets []bakeTarget
	var walkErr error

	root.Walk(func(o *scene.Object) {
		if walkErr != nil || o.Mesh == nil {
			return
		}
		if err := o.Mesh.Triangulate(); err != nil {
			walkErr = fmt.Errorf("object %q: %w", o.Name, err)
			return
		}
		if len(o.Mesh.Indices) == 0 {
			return
		}
		if o.Mesh.SurfaceArea() == 0 {
			walkErr = fmt.Errorf("object %q: %w", o.Name, ErrDegenerateMesh)
			return
		}

		world := o.WorldMatrix()
		for i := 0; i+2 < len(o.Mesh.Indices); i += 3 {
			tris = append(tris, triangle{
				a: world.Mul4x1(o.Mesh.Positions[o.Mesh.Indices[i]].Vec4(1)).Vec3(),
				b: world.Mul4x1(o.Mesh.Positions[o.Mesh.Indices[i+1]].Vec4(1)).Vec3(),
				c: world.Mul4x1(o.Mesh.Positions[o.Mesh.Indices[i+2]].Vec4(1)).Vec3(),
			})
		}
		targets = append(targets, bakeTarget{
			obj:   o,
			proxy: buildProxy(o.Mesh, world, b.cfg.SharpAngle),
		})
	})
	if walkErr != nil {
		return walkErr
	}
	if len(targets) == 0 {
		return ErrNoGeometry
	}

	if b.cfg.GroundPlate {
		tris = append(tris, groundOccluder(root)...)
	}

	bvh := buildBVH(tris)

	// flatten all proxy vertices into one work list so small pieces do
	// not serialize behind big ones
	total := 0
	for i := range targets {
		targets[i].first = total
		total += len(targets[i].proxy.positions)
	}
	proxyAO := make([]float32, total)

	b.log.Info("baking ambient occlusion",
		zap.Int("meshes", len(targets)),
		zap.Int("occluder_triangles", len(tris)),
		zap.Int("proxy_vertices", total),
		zap.Int("rays_per_vertex", b.cfg.RayCount),
		zap.Int("workers", b.cfg.workers()))

	if err := b.castAll(ctx, targets, bvh, proxyAO); err != nil {
		return err
	}

	for _, t := range targets {
		n := len(t.proxy.positions)
		copy(t.obj.Mesh.EnsureAO(), t.proxy.transfer(proxyAO[t.first:t.first+n], t.obj.Mesh.VertexCount()))
	}

	b.log.Info("bake finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// castAll runs the hemisphere sampling over the combined proxy vertex
// list with a fixed worker pool. Cancelling ctx stops the bake between
// batches.
func (b *Baker) castAll(ctx context.Context, targets []bakeTarget, bvh *bvh, proxyAO []float32) error {
	dirs := hemisphereDirs(b.cfg.RayCount)

	const batchSize = 64
	type batch struct {
		target int
		lo, hi int // proxy vertex range within the target
	}

	jobs := make(chan batch)
	var wg sync.WaitGroup
	var done atomic.Int64

	for w := 0; w < b.cfg.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				t := targets[j.target]
				for i := j.lo; i < j.hi; i++ {
					proxyAO[t.first+i] = b.cfg.remap(b.vertexAO(
						t.proxy.positions[i], t.proxy.normals[i], dirs, bvh))
				}
				done.Add(int64(j.hi - j.lo))
			}
		}()
	}

	var err error
feed:
	for ti := range targets {
		n := len(targets[ti].proxy.positions)
		for lo := 0; lo < n; lo += batchSize {
			hi := min(lo+batchSize, n)
			select {
			case jobs <- batch{target: ti, lo: lo, hi: hi}:
			case <-ctx.Done():
				err = ctx.Err()
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return fmt.Errorf("bake cancelled after %d vertices: %w", done.Load(), err)
	}
	return nil
}

// vertexAO estimates how much of the hemisphere above one surface point
// is open sky. Hits inside MinDistance only count proportionally, so
// touching geometry does not bake to black.
func (b *Baker) vertexAO(pos, normal mgl32.Vec3, dirs []mgl32.Vec3, bvh *bvh) float32 {
	t, bt := tangentFrame(normal)
	origin := pos.Add(normal.Mul(selfHitBias))

	var open float32
	for _, d := range dirs {
		ray := orient(d, normal, t, bt)
		dist, hit := bvh.nearestHit(origin, ray, 0, b.cfg.MaxDistance)
		switch {
		case !hit:
			open++
		case dist < b.cfg.MinDistance:
			// a hit right at the surface is ignored, one at MinDistance
			// occludes fully, with a linear ramp in between
			open += 1 - dist/b.cfg.MinDistance
		}
	}
	return open / float32(len(dirs))
}

// groundOccluder returns two large triangles forming a ground plane at
// the hierarchy's lowest point, so upward-facing geometry near the
// ground darkens the way a unit standing on terrain would.
func groundOccluder(root *scene.Object) []triangle {
	bmin, bmax, ok := hierarchyBounds(root)
	if !ok {
		return nil
	}

	// extend well past the model so grazing rays still hit
	ext := bmax.Sub(bmin).Len() * 4
	if ext == 0 {
		ext = 1
	}
	y := bmin[1]
	cx, cz := (bmin[0]+bmax[0])/2, (bmin[2]+bmax[2])/2

	p00 := mgl32.Vec3{cx - ext, y, cz - ext}
	p10 := mgl32.Vec3{cx + ext, y, cz - ext}
	p01 := mgl32.Vec3{cx - ext, y, cz + ext}
	p11 := mgl32.Vec3{cx + ext, y, cz + ext}

	return []triangle{
		{a: p00, b: p10, c: p11},
		{a: p00, b: p11, c: p01},
	}
}

// hierarchyBounds returns the hierarchy-space bounding box over all
// mesh vertices below root.
func hierarchyBounds(root *scene.Object) (bmin, bmax mgl32.Vec3, ok bool) {
	root.Walk(func(o *scene.Object) {
		if o.Mesh == nil {
			return
		}
		world := o.WorldMatrix()
		for _, p := range o.Mesh.Positions {
			wp := world.Mul4x1(p.Vec4(1)).Vec3()
			if !ok {
				bmin, bmax, ok = wp, wp, true
				continue
			}
			for a := 0; a < 3; a++ {
				if wp[a] < bmin[a] {
					bmin[a] = wp[a]
				}
				if wp[a] > bmax[a] {
					bmax[a] = wp[a]
				}
			}
		}
	})
	return bmin, bmax, ok
}
