package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/hephaestus/internal/core/animation"
	"github.com/zeusync/hephaestus/pkg/linear"
)

// Blueprint describes a model in JSON or YAML.
type Blueprint struct {
	Name       string               `json:"name" yaml:"name"`
	Scale      float32              `json:"scale,omitempty" yaml:"scale,omitempty"`
	Bones      []BoneBlueprint      `json:"bones" yaml:"bones"`
	Animations []AnimationBlueprint `json:"animations,omitempty" yaml:"animations,omitempty"`
}

type BoneBlueprint struct {
	Name     string          `json:"name" yaml:"name"`
	Position Vector          `json:"position,omitempty" yaml:"position,omitempty"`
	Rotation Vector          `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	Rig      *RigBlueprint   `json:"rig,omitempty" yaml:"rig,omitempty"`
	Children []BoneBlueprint `json:"children,omitempty" yaml:"children,omitempty"`
}

type RigBlueprint struct {
	Part   string `json:"part" yaml:"part"`
	Offset Vector `json:"offset,omitempty" yaml:"offset,omitempty"`
}

type AnimationBlueprint struct {
	Name     string                      `json:"name" yaml:"name"`
	Length   float32                     `json:"length" yaml:"length"`
	Loop     bool                        `json:"loop,omitempty" yaml:"loop,omitempty"`
	Channels map[string]ChannelBlueprint `json:"channels" yaml:"channels"`
}

type ChannelBlueprint struct {
	Position []KeyframeBlueprint `json:"position,omitempty" yaml:"position,omitempty"`
	Rotation []KeyframeBlueprint `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	Scale    []KeyframeBlueprint `json:"scale,omitempty" yaml:"scale,omitempty"`
}

type KeyframeBlueprint struct {
	Time  float32 `json:"time" yaml:"time"`
	Value Vector  `json:"value" yaml:"value"`
}

// Vector is a three component list. An empty list means zero.
type Vector []float32

func (v Vector) vec3() (linear.Vec3, error) {
	switch len(v) {
	case 0:
		return linear.Zero, nil
	case 3:
		if !linear.Finite(v...) {
			return linear.Zero, ErrInvalidNumber
		}
		return linear.Vec3{v[0], v[1], v[2]}, nil
	default:
		return linear.Zero, fmt.Errorf("vector needs 3 components, got %d", len(v))
	}
}

// LoadJSON loads a blueprint from a JSON reader.
func LoadJSON(r io.Reader) (*Blueprint, error) {
	var b Blueprint
	dec := json.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadYAML loads a blueprint from a YAML reader.
func LoadYAML(r io.Reader) (*Blueprint, error) {
	var b Blueprint
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile picks the decoder by file extension.
func LoadFile(path string) (*Blueprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(f)
	case ".json":
		return LoadJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Build converts the blueprint into a validated model.
func (b *Blueprint) Build() (*Model, error) {
	opts := make([]Option, 0, 2)
	if b.Scale != 0 {
		opts = append(opts, WithScale(b.Scale))
	}

	var rig []Option
	roots := make([]*Bone, 0, len(b.Bones))
	for i := range b.Bones {
		bone, err := b.Bones[i].build(&rig)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", b.Name, err)
		}
		roots = append(roots, bone)
	}
	opts = append(opts, rig...)

	animations := make([]*animation.Animation, 0, len(b.Animations))
	for _, ab := range b.Animations {
		a, err := ab.build()
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", b.Name, err)
		}
		animations = append(animations, a)
	}
	opts = append(opts, WithAnimations(animations...))

	return New(b.Name, roots, opts...)
}

func (bb *BoneBlueprint) build(rig *[]Option) (*Bone, error) {
	pos, err := bb.Position.vec3()
	if err != nil {
		return nil, fmt.Errorf("bone %q position: %w", bb.Name, err)
	}
	rot, err := bb.Rotation.vec3()
	if err != nil {
		return nil, fmt.Errorf("bone %q rotation: %w", bb.Name, err)
	}

	if bb.Rig != nil {
		offset, err := bb.Rig.Offset.vec3()
		if err != nil {
			return nil, fmt.Errorf("bone %q rig offset: %w", bb.Name, err)
		}
		*rig = append(*rig, WithRigPart(bb.Name, PlayerRigPart{Part: bb.Rig.Part, Offset: offset}))
	}

	bone := &Bone{Name: bb.Name, Position: pos, Rotation: rot}
	for i := range bb.Children {
		child, err := bb.Children[i].build(rig)
		if err != nil {
			return nil, err
		}
		bone.Children = append(bone.Children, child)
	}
	return bone, nil
}

func (ab *AnimationBlueprint) build() (*animation.Animation, error) {
	if !linear.Finite(ab.Length) {
		return nil, fmt.Errorf("animation %q length: %w", ab.Name, ErrInvalidNumber)
	}

	channels := make(map[string]*animation.Channel, len(ab.Channels))
	for bone, cb := range ab.Channels {
		pos, err := keyframes(cb.Position)
		if err != nil {
			return nil, fmt.Errorf("animation %q bone %q position: %w", ab.Name, bone, err)
		}
		rot, err := keyframes(cb.Rotation)
		if err != nil {
			return nil, fmt.Errorf("animation %q bone %q rotation: %w", ab.Name, bone, err)
		}
		scale, err := keyframes(cb.Scale)
		if err != nil {
			return nil, fmt.Errorf("animation %q bone %q scale: %w", ab.Name, bone, err)
		}
		channels[bone] = animation.NewChannel(pos, rot, scale)
	}
	return animation.New(ab.Name, ab.Length, ab.Loop, channels), nil
}

func keyframes(in []KeyframeBlueprint) ([]animation.Keyframe, error) {
	out := make([]animation.Keyframe, 0, len(in))
	for _, k := range in {
		if !linear.Finite(k.Time) {
			return nil, ErrInvalidNumber
		}
		v, err := k.Value.vec3()
		if err != nil {
			return nil, err
		}
		out = append(out, animation.Keyframe{Time: k.Time, Value: v})
	}
	return out, nil
}
