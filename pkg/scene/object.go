// Package scene provides the editable object hierarchy that s3o models
// are mapped into for editing and ambient-occlusion baking, and the
// mapper that converts between that hierarchy and the codec's model tree.
//
// The hierarchy is host-neutral: importers, bakers and exporters operate
// only on the types here (parent/child links, per-object transform, typed
// property structs, mesh buffers) and never on a concrete editor's object
// model.
package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Kind classifies an object in the editable hierarchy.
type Kind int

const (
	// KindMesh is a regular geometry piece.
	KindMesh Kind = iota
	// KindRoot carries the model-wide RootProperties. Exactly one per
	// exportable hierarchy.
	KindRoot
	// KindAimPoint is a non-rendering leaf carrying an aim/emit position
	// and direction.
	KindAimPoint
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "Mesh"
	case KindRoot:
		return "Root"
	case KindAimPoint:
		return "AimPoint"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Object is one node of the editable hierarchy.
type Object struct {
	Name string
	Kind Kind

	// Position is relative to the parent object.
	Position mgl32.Vec3
	// Rotation is a YXZ euler in radians: yaw around Y, then pitch
	// around X, then roll around Z.
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3

	Mesh     *Mesh
	Root     *RootProperties
	AimPoint *AimPointProperties

	Parent   *Object
	Children []*Object
}

// NewObject creates an object with identity transform.
func NewObject(name string, kind Kind) *Object {
	return &Object{
		Name:  name,
		Kind:  kind,
		Scale: mgl32.Vec3{1, 1, 1},
	}
}

// AddChild parents child under o.
func (o *Object) AddChild(child *Object) {
	child.Parent = o
	o.Children = append(o.Children, child)
}

// Walk calls fn for o and every descendant in depth-first order.
func (o *Object) Walk(fn func(*Object)) {
	fn(o)
	for _, c := range o.Children {
		c.Walk(fn)
	}
}

// LocalMatrix returns the object's local transform (translate, then
// rotate YXZ, then scale).
func (o *Object) LocalMatrix() mgl32.Mat4 {
	t := mgl32.Translate3D(o.Position[0], o.Position[1], o.Position[2])
	r := mgl32.HomogRotate3DY(o.Rotation[1]).
		Mul4(mgl32.HomogRotate3DX(o.Rotation[0])).
		Mul4(mgl32.HomogRotate3DZ(o.Rotation[2]))
	s := mgl32.Scale3D(o.Scale[0], o.Scale[1], o.Scale[2])
	return t.Mul4(r).Mul4(s)
}

// WorldMatrix returns the object's transform accumulated through all
// ancestors.
func (o *Object) WorldMatrix() mgl32.Mat4 {
	if o.Parent == nil {
		return o.LocalMatrix()
	}
	return o.Parent.WorldMatrix().Mul4(o.LocalMatrix())
}

// WorldPosition returns the object's origin in hierarchy space.
func (o *Object) WorldPosition() mgl32.Vec3 {
	m := o.WorldMatrix()
	return mgl32.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)}
}

// FindRoot walks up the parent chain looking for a KindRoot object.
func (o *Object) FindRoot() *Object {
	for cur := o; cur != nil; cur = cur.Parent {
		if cur.Kind == KindRoot {
			return cur
		}
	}
	return nil
}
