package model

import (
	"github.com/zeusync/hephaestus/pkg/linear"
)

// Bone is a node of a model's rest pose tree. Bones are immutable once the
// model is built and are shared by every view of the model.
type Bone struct {
	Name string
	// Position is the rest offset relative to the parent bone.
	Position linear.Vec3
	// Rotation is the rest rotation as Euler angles in degrees.
	Rotation linear.Vec3
	Children []*Bone
}

// RestRotation returns the rest rotation as a quaternion.
func (b *Bone) RestRotation() linear.Quat {
	return linear.FromEulerDegrees(b.Rotation)
}

// RestTransform returns the bone's rest transform relative to its parent.
func (b *Bone) RestTransform() linear.Transform {
	return linear.NewTransform(b.Position, b.RestRotation())
}

// WalkFunc is called for every bone of a walk. parent is nil for roots.
type WalkFunc func(bone, parent *Bone, depth int) error

// Walk visits the hierarchy in pre-order: every bone is visited before its
// children, children in declaration order. A non-nil error from fn stops the
// walk and is returned.
func Walk(roots []*Bone, fn WalkFunc) error {
	for _, root := range roots {
		if err := walk(root, nil, 0, fn); err != nil {
			return err
		}
	}
	return nil
}

func walk(bone, parent *Bone, depth int, fn WalkFunc) error {
	if err := fn(bone, parent, depth); err != nil {
		return err
	}
	for _, child := range bone.Children {
		if err := walk(child, bone, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// PlayerRigPart marks a bone as a limb of a player rig. Proxies of such bones
// render a player skin part and are shifted by Offset in bone space.
type PlayerRigPart struct {
	Part   string
	Offset linear.Vec3
}
