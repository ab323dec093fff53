package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// RootProperties holds the model-wide metadata owned by the KindRoot
// object of an editable hierarchy. The struct is the single source of
// truth; visual placeholders are derived from it by Placeholders and
// edits to a placeholder flow back through ApplyPlaceholder. State is
// never stored in both places independently.
type RootProperties struct {
	Name            string
	CollisionRadius float32
	Height          float32
	Midpoint        mgl32.Vec3

	// TexturePath1 is the color texture, TexturePath2 the team-color /
	// shading map.
	TexturePath1 string
	TexturePath2 string
}

// PlaceholderTag names a visual placeholder derived from a property
// struct.
type PlaceholderTag string

const (
	// PlaceholderMidpoint is a sphere at the midpoint with the collision
	// radius; moving it edits Midpoint, scaling it edits CollisionRadius.
	PlaceholderMidpoint PlaceholderTag = "midpoint_radius"
	// PlaceholderHeight is a disc at the model height above the midpoint
	// X/Z; moving it vertically edits Height.
	PlaceholderHeight PlaceholderTag = "height"
	// PlaceholderAimRay is an arrow at an aim point's position along its
	// direction.
	PlaceholderAimRay PlaceholderTag = "aim_ray"
)

// Placeholder is a pure projection of property state into a displayable
// transform. It carries no state of its own.
type Placeholder struct {
	Tag      PlaceholderTag
	Position mgl32.Vec3
	// Direction is the facing for arrow-style placeholders; zero for the
	// others.
	Direction mgl32.Vec3
	// Radius is the display size (sphere radius, disc radius, arrow
	// length).
	Radius float32
}

// Placeholders projects the root properties into their visual
// placeholders.
func (rp *RootProperties) Placeholders() []Placeholder {
	return []Placeholder{
		{
			Tag:      PlaceholderMidpoint,
			Position: rp.Midpoint,
			Radius:   rp.CollisionRadius,
		},
		{
			Tag:      PlaceholderHeight,
			Position: mgl32.Vec3{rp.Midpoint[0], rp.Height, rp.Midpoint[2]},
			Radius:   rp.CollisionRadius / 2,
		},
	}
}

// ApplyPlaceholder is the inverse update: it maps an edited placeholder
// transform back onto the property struct. scale is the uniform scale
// factor applied to the placeholder since projection (1 = unchanged).
func (rp *RootProperties) ApplyPlaceholder(tag PlaceholderTag, position mgl32.Vec3, scale float32) error {
	switch tag {
	case PlaceholderMidpoint:
		rp.Midpoint = position
		if scale > 0 {
			rp.CollisionRadius *= scale
		}
	case PlaceholderHeight:
		rp.Height = position[1]
	default:
		return fmt.Errorf("unknown root placeholder tag %q", tag)
	}
	return nil
}

// AimPointProperties holds the position and direction of an aim/emit
// attachment point, local to its owning object.
type AimPointProperties struct {
	Position mgl32.Vec3

	dir mgl32.Vec3

	// AlignToRotation forces the direction to follow the owning object's
	// local orientation; when set, Direction is recomputed from the
	// object rotation instead of edited directly.
	AlignToRotation bool
}

// DefaultAimDirection is the direction an aim point faces when nothing
// else is specified.
var DefaultAimDirection = mgl32.Vec3{0, 0, 1}

// Direction returns the aim direction, always normalized and never zero.
func (ap *AimPointProperties) Direction() mgl32.Vec3 {
	if ap.dir.Len() == 0 {
		return DefaultAimDirection
	}
	return ap.dir
}

// SetDirection stores a normalized aim direction. A zero vector resets to
// the default.
func (ap *AimPointProperties) SetDirection(d mgl32.Vec3) {
	if d.Len() == 0 {
		ap.dir = DefaultAimDirection
		return
	}
	ap.dir = d.Normalize()
}

// SyncWithObject recomputes the direction from the owning object's local
// rotation when AlignToRotation is set. The forward axis is local +Z.
func (ap *AimPointProperties) SyncWithObject(o *Object) {
	if !ap.AlignToRotation {
		return
	}
	m := o.LocalMatrix()
	fwd := mgl32.Vec3{m.At(0, 2), m.At(1, 2), m.At(2, 2)}
	ap.SetDirection(fwd)
}

// Placeholder projects the aim point into its arrow placeholder.
func (ap *AimPointProperties) Placeholder() Placeholder {
	return Placeholder{
		Tag:       PlaceholderAimRay,
		Position:  ap.Position,
		Direction: ap.Direction(),
		Radius:    10,
	}
}

// ApplyPlaceholder maps an edited arrow placeholder back onto the aim
// point. When AlignToRotation is set only the position follows the
// placeholder.
func (ap *AimPointProperties) ApplyPlaceholder(position, direction mgl32.Vec3) {
	ap.Position = position
	if !ap.AlignToRotation {
		ap.SetDirection(direction)
	}
}
