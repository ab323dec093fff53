// Package bake computes per-vertex ambient occlusion for an editable
// model hierarchy, plus the optional ground-plate shadow image. Meshes
// are baked against the whole hierarchy, so pieces shadow each other.
package bake

import (
	"fmt"
	"runtime"
)

// Config holds the knobs of a bake run. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// RayCount is the number of hemisphere rays cast per vertex.
	RayCount int

	// MinDistance discounts hits closer than this many units: a hit at
	// distance d < MinDistance only occludes by d/MinDistance. Keeps
	// coplanar and near-touching geometry from going pitch black.
	MinDistance float32

	// MaxDistance ignores hits beyond this many units. Zero means
	// unlimited.
	MaxDistance float32

	// SharpAngle is the edge-split threshold in degrees: faces meeting
	// at a crease sharper than this shade independently instead of
	// sharing smoothed vertex normals.
	SharpAngle float32

	// MinClamp, Bias and Gain remap the raw occlusion before it is
	// stored: out = clamp(raw*Gain + Bias, MinClamp, 1).
	MinClamp float32
	Bias     float32
	Gain     float32

	// GroundPlate also occludes vertices from below when set, matching
	// a unit standing on flat terrain.
	GroundPlate bool

	// PlateResolution is the edge size in pixels of the baked
	// ground-plate image.
	PlateResolution int

	// PlateEdgeFade is the fraction of the plate radius over which the
	// shadow fades out toward the image border.
	PlateEdgeFade float32

	// Workers is the number of concurrent bake workers. Zero means one
	// per CPU.
	Workers int
}

// DefaultConfig returns the bake settings used when nothing is
// configured.
func DefaultConfig() Config {
	return Config{
		RayCount:        128,
		MinDistance:     1,
		MaxDistance:     0,
		SharpAngle:      66,
		MinClamp:        0,
		Bias:            0.05,
		Gain:            1,
		PlateResolution: 128,
		PlateEdgeFade:   0.25,
		Workers:         runtime.NumCPU(),
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.RayCount < 1 {
		return fmt.Errorf("ray count must be at least 1, got %d", c.RayCount)
	}
	if c.MinDistance < 0 {
		return fmt.Errorf("min distance must not be negative, got %v", c.MinDistance)
	}
	if c.MaxDistance < 0 {
		return fmt.Errorf("max distance must not be negative, got %v", c.MaxDistance)
	}
	if c.SharpAngle < 0 || c.SharpAngle > 180 {
		return fmt.Errorf("sharp angle must be within [0,180] degrees, got %v", c.SharpAngle)
	}
	if c.PlateResolution < 1 {
		return fmt.Errorf("plate resolution must be at least 1, got %d", c.PlateResolution)
	}
	return nil
}

// remap applies the MinClamp/Bias/Gain curve to a raw occlusion value.
func (c Config) remap(raw float32) float32 {
	v := raw*c.Gain + c.Bias
	if v < c.MinClamp {
		v = c.MinClamp
	}
	if v > 1 {
		v = 1
	}
	return v
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
