package view

import (
	"github.com/zeusync/hephaestus/internal/core/model"
	"github.com/zeusync/hephaestus/internal/core/viewsync"
	"github.com/zeusync/hephaestus/pkg/linear"
)

// BoneKind selects how a proxy is rendered.
type BoneKind uint8

const (
	// BoneStandard renders the bone's own geometry.
	BoneStandard BoneKind = iota
	// BonePlayerRig renders a player skin part, shifted by the rig offset.
	BonePlayerRig
)

func (k BoneKind) String() string {
	if k == BonePlayerRig {
		return "player_rig"
	}
	return "standard"
}

// BoneProxy is the per-view visual stand-in of one bone.
type BoneProxy struct {
	view   *View
	bone   *model.Bone
	parent *BoneProxy
	index  int
	kind   BoneKind
	rig    model.PlayerRigPart

	// world is the composed transform children build on; transform is what
	// viewers see. They differ by the rig offset.
	world     linear.Transform
	transform linear.Transform
}

func (p *BoneProxy) Name() string {
	return p.bone.Name
}

func (p *BoneProxy) Bone() *model.Bone {
	return p.bone
}

// Parent returns the proxy of the parent bone, nil for roots.
func (p *BoneProxy) Parent() *BoneProxy {
	return p.parent
}

func (p *BoneProxy) Kind() BoneKind {
	return p.kind
}

// RigPart returns the player rig binding of a BonePlayerRig proxy.
func (p *BoneProxy) RigPart() (model.PlayerRigPart, bool) {
	return p.rig, p.kind == BonePlayerRig
}

// Key returns the numeric id transports use for this proxy.
func (p *BoneProxy) Key() uint64 {
	return viewsync.Key(p.view.id, p.bone.Name)
}

// Transform returns the last committed world transform.
func (p *BoneProxy) Transform() linear.Transform {
	p.view.mu.Lock()
	defer p.view.mu.Unlock()
	return p.transform
}

// place derives the rendered transform from a composed world transform.
func (p *BoneProxy) place(world linear.Transform) linear.Transform {
	if p.kind != BonePlayerRig {
		return world
	}
	return linear.Compose(world, linear.NewTransform(p.rig.Offset, linear.Identity()))
}
