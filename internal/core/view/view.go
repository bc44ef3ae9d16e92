// Package view places a model in the world: it owns the per-bone proxies of
// one model instance, drives its animation player and keeps viewers in sync.
package view

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/hephaestus/internal/core/animation"
	"github.com/zeusync/hephaestus/internal/core/events/bus"
	"github.com/zeusync/hephaestus/internal/core/model"
	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/viewsync"
	"github.com/zeusync/hephaestus/pkg/linear"
)

// Placement is an external entity a view follows, such as a mob it is
// rendered on top of.
type Placement interface {
	Location() linear.Vec3
	Yaw() float32
	Pitch() float32
}

// View is one placed instance of a model.
type View struct {
	id    uuid.UUID
	model *model.Model
	scale float32

	player *animation.Player
	sync   *viewsync.Synchronizer
	base   Placement
	bus    bus.EventBus
	logger log.Log

	mu        sync.Mutex
	location  linear.Vec3
	proxies   []*BoneProxy
	byName    map[string]*BoneProxy
	scratch   []linear.Transform
	destroyed bool
}

type options struct {
	id        uuid.UUID
	transport viewsync.Transport
	audience  viewsync.Audience
	base      Placement
	policy    animation.PreemptPolicy
	bus       bus.EventBus
	logger    log.Log
}

type Option func(*options)

// WithID fixes the view id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(o *options) { o.id = id }
}

// WithTransport sets how events reach viewers. Without it events are
// discarded.
func WithTransport(transport viewsync.Transport) Option {
	return func(o *options) { o.transport = transport }
}

// WithVisibility delegates the viewer set to an external primitive. AddViewer
// and RemoveViewer are forwarded to it and report its result; the view spawns
// and despawns on the following tick.
func WithVisibility(audience viewsync.Audience) Option {
	return func(o *options) { o.audience = audience }
}

// WithBase makes the view follow a placement on Tick.
func WithBase(base Placement) Option {
	return func(o *options) { o.base = base }
}

func WithPreemptPolicy(policy animation.PreemptPolicy) Option {
	return func(o *options) { o.policy = policy }
}

// WithBus publishes viewer and lifecycle events.
func WithBus(b bus.EventBus) Option {
	return func(o *options) { o.bus = b }
}

func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

var discard = viewsync.TransportFunc(func(viewsync.Viewer, []viewsync.Event) error { return nil })

// New instantiates a model at a location. The proxies start in rest pose.
func New(m *model.Model, location linear.Vec3, scale float32, opts ...Option) (*View, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	if !linear.Finite(scale) || scale <= 0 {
		return nil, ErrInvalidScale
	}

	o := options{transport: discard, logger: log.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == uuid.Nil {
		o.id = uuid.New()
	}

	v := &View{
		id:       o.id,
		model:    m,
		scale:    scale,
		player:   animation.NewPlayer(animation.WithPreemptPolicy(o.policy)),
		base:     o.base,
		bus:      o.bus,
		location: location,
		byName:   make(map[string]*BoneProxy, m.BoneCount()),
		logger: o.logger.With(
			log.String("component", "view"),
			log.Stringer("view", o.id),
			log.String("model", m.Name()),
		),
	}
	v.instantiate()

	rest := animation.Pose{Root: v.root(location, 0, 0)}
	if err := v.compose(rest); err != nil {
		return nil, err
	}
	v.commit()

	syncOpts := []viewsync.Option{
		viewsync.WithLogger(o.logger),
		viewsync.WithFailureHandler(v.transportFailed),
	}
	if o.audience != nil {
		syncOpts = append(syncOpts, viewsync.WithAudience(o.audience))
	}
	v.sync = viewsync.New(v.id, o.transport, v.snapshot(), syncOpts...)

	v.publish(bus.ViewCreated, bus.ViewPayload{View: v.id, Model: m.Name()})
	return v, nil
}

func (v *View) instantiate() {
	_ = model.Walk(v.model.Bones(), func(bone, parent *model.Bone, _ int) error {
		p := &BoneProxy{view: v, bone: bone, index: len(v.proxies)}
		if parent != nil {
			p.parent = v.byName[parent.Name]
		}
		if part, ok := v.model.RigPart(bone.Name); ok {
			p.kind = BonePlayerRig
			p.rig = part
		}
		v.proxies = append(v.proxies, p)
		v.byName[bone.Name] = p
		return nil
	})
	v.scratch = make([]linear.Transform, 2*len(v.proxies))
}

func (v *View) root(location linear.Vec3, yaw, pitch float32) linear.Transform {
	s := v.scale * v.model.Scale()
	return linear.Transform{
		Position: location,
		Rotation: linear.RootRotation(yaw, pitch),
		Scale:    linear.Vec3{s, s, s},
	}
}

// compose fills scratch with world and rendered transforms without touching
// the committed state. Proxies are in pre-order so parents come first.
func (v *View) compose(pose animation.Pose) error {
	n := len(v.proxies)
	for i, p := range v.proxies {
		parent := pose.Root
		if p.parent != nil {
			parent = v.scratch[p.parent.index]
		}
		local := linear.Compose(p.bone.RestTransform(), pose.Bone(p.bone.Name))
		world := linear.Compose(parent, local)
		rendered := p.place(world)
		if !world.IsFinite() || !rendered.IsFinite() {
			return ErrNonFinitePose
		}
		v.scratch[i] = world
		v.scratch[n+i] = rendered
	}
	return nil
}

func (v *View) commit() {
	n := len(v.proxies)
	for i, p := range v.proxies {
		p.world = v.scratch[i]
		p.transform = v.scratch[n+i]
	}
}

func (v *View) snapshot() []viewsync.Proxy {
	out := make([]viewsync.Proxy, len(v.proxies))
	for i, p := range v.proxies {
		out[i] = viewsync.Proxy{Bone: p.bone.Name, Part: p.rig.Part, Transform: p.transform}
	}
	return out
}

// Tick advances the animation one step using the base placement, or the view
// location facing yaw 0 and pitch 0 when there is no base.
func (v *View) Tick() error {
	if v.base != nil {
		return v.tick(v.base.Location(), v.base.Yaw(), v.base.Pitch(), true)
	}
	return v.TickWith(0, 0)
}

// TickWith advances the animation one step with an explicit facing at the
// view location.
func (v *View) TickWith(yaw, pitch float32) error {
	return v.tick(linear.Zero, yaw, pitch, false)
}

func (v *View) tick(location linear.Vec3, yaw, pitch float32, follow bool) error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return ErrViewDestroyed
	}
	if follow {
		v.location = location
	}
	location = v.location

	root := v.root(location, yaw, pitch)
	pose := v.player.Tick(root.Rotation, root.Position)
	pose.Root = root

	if err := v.compose(pose); err != nil {
		v.mu.Unlock()
		v.logger.Warn("pose rejected", log.Error(err))
		return err
	}
	v.commit()
	snapshot := v.snapshot()
	v.mu.Unlock()

	if err := v.sync.Flush(snapshot, location); err != nil {
		return ErrViewDestroyed
	}
	return nil
}

func (v *View) ID() uuid.UUID {
	return v.id
}

func (v *View) Model() *model.Model {
	return v.model
}

func (v *View) Scale() float32 {
	return v.scale
}

// Base returns the followed placement, nil when headless.
func (v *View) Base() Placement {
	return v.base
}

func (v *View) Location() linear.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.location
}

// SetLocation moves the view. It takes effect on the next tick and is
// overwritten by the base placement when one is set.
func (v *View) SetLocation(location linear.Vec3) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.location = location
}

// Bone returns the proxy of a bone.
func (v *View) Bone(name string) (*BoneProxy, bool) {
	p, ok := v.byName[name]
	return p, ok
}

// Bones returns every proxy in pre-order.
func (v *View) Bones() []*BoneProxy {
	out := make([]*BoneProxy, len(v.proxies))
	copy(out, v.proxies)
	return out
}

// Animations returns the view's animation player.
func (v *View) Animations() *animation.Player {
	return v.player
}

// Queue appends one of the model's animations to the player queue.
func (v *View) Queue(name string, transitionTicks int) error {
	if v.Destroyed() {
		return ErrViewDestroyed
	}
	a, ok := v.model.Animation(name)
	if !ok {
		return ErrUnknownAnimation
	}
	v.player.Queue(a, transitionTicks)
	return nil
}

// ClearQueue stops the current animation and drops queued ones.
func (v *View) ClearQueue() error {
	if v.Destroyed() {
		return ErrViewDestroyed
	}
	v.player.ClearQueue()
	return nil
}

// AddViewer shows the view to a viewer. It reports false if the viewer
// already sees it.
func (v *View) AddViewer(viewer viewsync.Viewer) (bool, error) {
	if v.Destroyed() {
		return false, ErrViewDestroyed
	}
	added, err := v.sync.Add(viewer)
	if err != nil {
		return false, v.syncErr(err)
	}
	if added {
		v.publish(bus.ViewerAdded, bus.ViewerPayload{View: v.id, Viewer: viewer.ID()})
	}
	return added, nil
}

// RemoveViewer hides the view from a viewer. It reports false if the viewer
// did not see it.
func (v *View) RemoveViewer(viewer viewsync.Viewer) (bool, error) {
	if v.Destroyed() {
		return false, ErrViewDestroyed
	}
	removed, err := v.sync.Remove(viewer)
	if err != nil {
		return false, v.syncErr(err)
	}
	if removed {
		v.publish(bus.ViewerRemoved, bus.ViewerPayload{View: v.id, Viewer: viewer.ID()})
	}
	return removed, nil
}

// Viewers returns who currently sees the view.
func (v *View) Viewers() []viewsync.Viewer {
	return v.sync.Viewers()
}

// EmitSound plays a sound at the view location for every viewer.
func (v *View) EmitSound(sound viewsync.Sound) error {
	if v.Destroyed() {
		return ErrViewDestroyed
	}
	return v.syncErr(v.sync.Sound(sound))
}

func (v *View) Destroyed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed
}

// Destroy despawns the view for every viewer. Any later call on the view
// fails with ErrViewDestroyed.
func (v *View) Destroy() error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return ErrViewDestroyed
	}
	v.destroyed = true
	v.mu.Unlock()

	v.player.ClearQueue()
	v.sync.Close()
	v.publish(bus.ViewDestroyed, bus.ViewPayload{View: v.id, Model: v.model.Name()})
	return nil
}

func (v *View) syncErr(err error) error {
	if errors.Is(err, viewsync.ErrClosed) {
		return ErrViewDestroyed
	}
	return err
}

// transportFailed runs under the synchronizer lock, so the event is published
// asynchronously and its handlers may call back into the view.
func (v *View) transportFailed(viewer viewsync.Viewer, err error) {
	if v.bus == nil {
		return
	}
	errs := v.bus.PublishAsync(bus.NewEvent(bus.TransportFailed, "view",
		bus.ViewerPayload{View: v.id, Viewer: viewer.ID(), Err: err}))
	go func() {
		if err := <-errs; err != nil {
			v.logger.Warn("event handler failed", log.String("event", bus.TransportFailed), log.Error(err))
		}
	}()
}

func (v *View) publish(typ string, payload any) {
	if v.bus == nil {
		return
	}
	if err := v.bus.Publish(bus.NewEvent(typ, "view", payload)); err != nil {
		v.logger.Warn("event handler failed", log.String("event", typ), log.Error(err))
	}
}
