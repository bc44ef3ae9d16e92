// Package model describes articulated models: a tree of named bones in rest
// pose, the animations authored for it and the player rig bindings.
package model

import (
	"fmt"

	"github.com/zeusync/hephaestus/internal/core/animation"
	"github.com/zeusync/hephaestus/pkg/linear"
)

// Model is an immutable, named bone hierarchy.
type Model struct {
	name       string
	scale      float32
	roots      []*Bone
	order      []*Bone
	index      map[string]*Bone
	parents    map[string]*Bone
	animations map[string]*animation.Animation
	rig        map[string]PlayerRigPart
}

// Option configures a model under construction.
type Option func(*Model)

// WithScale sets the declared scale baseline.
func WithScale(scale float32) Option {
	return func(m *Model) { m.scale = scale }
}

// WithAnimations attaches animations, keyed by their names.
func WithAnimations(animations ...*animation.Animation) Option {
	return func(m *Model) {
		for _, a := range animations {
			if a != nil {
				m.animations[a.Name()] = a
			}
		}
	}
}

// WithRigPart binds a bone to a player rig part.
func WithRigPart(bone string, part PlayerRigPart) Option {
	return func(m *Model) { m.rig[bone] = part }
}

// New validates the hierarchy and builds a model. The bones must not be
// modified afterwards.
func New(name string, roots []*Bone, opts ...Option) (*Model, error) {
	m := &Model{
		name:       name,
		scale:      1,
		roots:      roots,
		index:      make(map[string]*Bone),
		parents:    make(map[string]*Bone),
		animations: make(map[string]*animation.Animation),
		rig:        make(map[string]PlayerRigPart),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := Validate(m); err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	_ = Walk(m.roots, func(bone, parent *Bone, _ int) error {
		m.index[bone.Name] = bone
		m.order = append(m.order, bone)
		if parent != nil {
			m.parents[bone.Name] = parent
		}
		return nil
	})
	return m, nil
}

// Validate checks the load-time invariants of a model: non-empty unique bone
// names, no bone reachable twice and finite numbers.
func Validate(m *Model) error {
	if m.name == "" {
		return ErrEmptyModelName
	}
	if !linear.Finite(m.scale) || m.scale <= 0 {
		return ErrInvalidScale
	}

	visited := make(map[*Bone]struct{})
	names := make(map[string]struct{})
	var check func(bone *Bone) error
	check = func(bone *Bone) error {
		if bone == nil {
			return fmt.Errorf("%w: nil bone", ErrEmptyBoneName)
		}
		if _, ok := visited[bone]; ok {
			return fmt.Errorf("%w at %q", ErrBoneCycle, bone.Name)
		}
		visited[bone] = struct{}{}

		if bone.Name == "" {
			return ErrEmptyBoneName
		}
		if _, ok := names[bone.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateBone, bone.Name)
		}
		names[bone.Name] = struct{}{}

		if !linear.Finite(bone.Position[0], bone.Position[1], bone.Position[2],
			bone.Rotation[0], bone.Rotation[1], bone.Rotation[2]) {
			return fmt.Errorf("bone %q: %w", bone.Name, ErrInvalidNumber)
		}
		for _, child := range bone.Children {
			if err := check(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range m.roots {
		if err := check(root); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) Name() string {
	return m.name
}

// Scale returns the declared scale baseline.
func (m *Model) Scale() float32 {
	return m.scale
}

// Bones returns the root bones.
func (m *Model) Bones() []*Bone {
	return m.roots
}

// Bone looks a bone up by name.
func (m *Model) Bone(name string) (*Bone, bool) {
	b, ok := m.index[name]
	return b, ok
}

// Parent returns the parent of a bone; roots and unknown bones have none.
func (m *Model) Parent(name string) (*Bone, bool) {
	p, ok := m.parents[name]
	return p, ok
}

// Ordered returns every bone in pre-order.
func (m *Model) Ordered() []*Bone {
	out := make([]*Bone, len(m.order))
	copy(out, m.order)
	return out
}

// BoneNames returns every bone name in pre-order.
func (m *Model) BoneNames() []string {
	out := make([]string, len(m.order))
	for i, b := range m.order {
		out[i] = b.Name
	}
	return out
}

func (m *Model) BoneCount() int {
	return len(m.order)
}

// Animation looks an animation up by name.
func (m *Model) Animation(name string) (*animation.Animation, bool) {
	a, ok := m.animations[name]
	return a, ok
}

// Animations returns the animations of the model keyed by name.
func (m *Model) Animations() map[string]*animation.Animation {
	out := make(map[string]*animation.Animation, len(m.animations))
	for k, v := range m.animations {
		out[k] = v
	}
	return out
}

// RigPart returns the player rig binding of a bone, if any.
func (m *Model) RigPart(bone string) (PlayerRigPart, bool) {
	p, ok := m.rig[bone]
	return p, ok
}

// UnboundChannels lists, per animation, channel names that do not match any
// bone. They are ignored when posing.
func (m *Model) UnboundChannels() map[string][]string {
	out := make(map[string][]string)
	for name, a := range m.animations {
		for _, bone := range a.Bones() {
			if _, ok := m.index[bone]; !ok {
				out[name] = append(out[name], bone)
			}
		}
	}
	return out
}
