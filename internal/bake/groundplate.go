package bake

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/scene"
)

// GroundPlate is a baked ground shadow: the occlusion the model casts
// onto the terrain directly underneath it.
type GroundPlate struct {
	// Image is the shadow as grayscale, white fully lit.
	Image *image.Gray

	// Center is the hierarchy-space X/Z center of the plate and Size
	// its edge length, for placing the image under the model.
	Center mgl32.Vec2
	Size   float32
}

// Plate bakes the ground shadow under root. The plate sits at the
// hierarchy's lowest point and extends past the model's footprint so
// the shadow can fade out inside the image instead of clipping at its
// border.
func (b *Baker) Plate(ctx context.Context, root *scene.Object) (*GroundPlate, error) {
	bmin, bmax, ok := hierarchyBounds(root)
	if !ok {
		return nil, ErrNoGeometry
	}

	var tris []triangle
	root.Walk(func(o *scene.Object) {
		if o.Mesh == nil || len(o.Mesh.Indices) == 0 {
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
	})
	bvh := buildBVH(tris)

	res := b.cfg.PlateResolution
	footprint := max(bmax[0]-bmin[0], bmax[2]-bmin[2])
	size := footprint * 1.5
	if size == 0 {
		size = 1
	}
	center := mgl32.Vec2{(bmin[0] + bmax[0]) / 2, (bmin[2] + bmax[2]) / 2}
	y := bmin[1]

	b.log.Info("baking ground plate",
		zap.Int("resolution", res),
		zap.Float32("size", size),
		zap.Int("occluder_triangles", len(tris)))

	plate := &GroundPlate{
		Image:  image.NewGray(image.Rect(0, 0, res, res)),
		Center: center,
		Size:   size,
	}

	dirs := hemisphereDirs(b.cfg.RayCount)
	up := mgl32.Vec3{0, 1, 0}

	rows := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < b.cfg.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for py := range rows {
				for px := 0; px < res; px++ {
					// texel center in hierarchy space
					fx := (float32(px)+0.5)/float32(res) - 0.5
					fz := (float32(py)+0.5)/float32(res) - 0.5
					pos := mgl32.Vec3{center[0] + fx*size, y, center[1] + fz*size}

					lit := b.cfg.remap(b.vertexAO(pos, up, dirs, bvh))

					// shadow fades to fully lit toward the image border
					lit = 1 - (1-lit)*edgeFade(fx, fz, b.cfg.PlateEdgeFade)
					lit = min(1, max(0, lit))

					plate.Image.SetGray(px, py, color.Gray{Y: uint8(lit * 255)})
				}
			}
		}()
	}

	var err error
feed:
	for py := 0; py < res; py++ {
		select {
		case rows <- py:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(rows)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return plate, nil
}

// edgeFade ramps the shadow to fully lit toward the plate border. fx
// and fz are texel coordinates in [-0.5, 0.5].
func edgeFade(fx, fz, fade float32) float32 {
	if fade <= 0 {
		return 1
	}
	d := max(abs32(fx), abs32(fz)) * 2 // 0 at center, 1 at border
	if d < 1-fade {
		return 1
	}
	return max(0, (1-d)/fade)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
