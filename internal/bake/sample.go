package bake

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// goldenAngle spreads spiral samples so no two rays share an azimuth.
const goldenAngle = gomath.Pi * (3 - 2.2360679774997896) // pi*(3-sqrt(5))

// hemisphereDirs returns n cosine-weighted directions around +Z, laid
// out on a golden-angle spiral. The set is deterministic: the same n
// always yields the same rays, so repeated bakes of an unchanged scene
// produce identical results.
func hemisphereDirs(n int) []mgl32.Vec3 {
	dirs := make([]mgl32.Vec3, n)
	for i := range dirs {
		u := (float64(i) + 0.5) / float64(n)
		r := gomath.Sqrt(u)
		phi := float64(i) * goldenAngle

		// z = sqrt(1-u) makes the density proportional to cos(theta),
		// so plain averaging of hit results integrates the AO estimate
		dirs[i] = mgl32.Vec3{
			float32(r * gomath.Cos(phi)),
			float32(r * gomath.Sin(phi)),
			float32(gomath.Sqrt(1 - u)),
		}
	}
	return dirs
}

// tangentFrame returns two unit vectors orthogonal to n and each other.
// n must be unit length.
func tangentFrame(n mgl32.Vec3) (t, b mgl32.Vec3) {
	// pick the world axis least aligned with n to avoid a degenerate cross
	up := mgl32.Vec3{1, 0, 0}
	if gomath.Abs(float64(n[0])) > 0.9 {
		up = mgl32.Vec3{0, 1, 0}
	}
	t = up.Cross(n).Normalize()
	b = n.Cross(t)
	return t, b
}

// orient maps a +Z hemisphere direction into the hemisphere around n.
func orient(d, n, t, b mgl32.Vec3) mgl32.Vec3 {
	return t.Mul(d[0]).Add(b.Mul(d[1])).Add(n.Mul(d[2]))
}
