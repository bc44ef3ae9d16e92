package linear

// Transform is a position, rotation and per-axis scale.
type Transform struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

// IdentityTransform returns the transform that leaves everything in place.
func IdentityTransform() Transform {
	return Transform{Rotation: Identity(), Scale: One}
}

// NewTransform creates a transform with unit scale.
func NewTransform(position Vec3, rotation Quat) Transform {
	return Transform{Position: position, Rotation: rotation, Scale: One}
}

// Compose returns the transform of child expressed in the space parent lives in.
//
//	position = parent.Position + parent.Rotation ⋅ (parent.Scale ⊙ child.Position)
//	rotation = parent.Rotation ⋅ child.Rotation
//	scale    = parent.Scale ⊙ child.Scale
func Compose(parent, child Transform) Transform {
	offset := parent.Rotation.Rotate(Hadamard(parent.Scale, child.Position))
	return Transform{
		Position: parent.Position.Add(offset),
		Rotation: parent.Rotation.Mul(child.Rotation).Normalize(),
		Scale:    Hadamard(parent.Scale, child.Scale),
	}
}

// Blend interpolates from a to b by weight t in [0, 1]: position and scale
// linearly, rotation spherically.
func Blend(a, b Transform, t float32) Transform {
	return Transform{
		Position: Lerp(a.Position, b.Position, t),
		Rotation: Slerp(a.Rotation, b.Rotation, t),
		Scale:    Lerp(a.Scale, b.Scale, t),
	}
}

// Scaled returns t with its position and scale multiplied by s.
func (t Transform) Scaled(s float32) Transform {
	t.Position = t.Position.Mul(s)
	t.Scale = t.Scale.Mul(s)
	return t
}

// IsFinite reports whether every component of t is finite.
func (t Transform) IsFinite() bool {
	return Finite(t.Position[0], t.Position[1], t.Position[2],
		t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2],
		t.Scale[0], t.Scale[1], t.Scale[2])
}

// ApproxEqual reports whether t and o are equal within Epsilon.
func (t Transform) ApproxEqual(o Transform) bool {
	return t.Position.ApproxEqualThreshold(o.Position, Epsilon) &&
		t.Scale.ApproxEqualThreshold(o.Scale, Epsilon) &&
		SameRotation(t.Rotation, o.Rotation)
}
