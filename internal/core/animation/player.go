package animation

import (
	"sync"

	"github.com/zeusync/hephaestus/pkg/linear"
	"github.com/zeusync/hephaestus/pkg/sequence"
)

// State of a Player.
type State uint8

const (
	StateIdle State = iota
	StatePlaying
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// PreemptPolicy decides when a queued entry may displace the animation that
// is currently playing.
type PreemptPolicy uint8

const (
	// PreemptAtLoopBoundary lets a looping animation finish its current
	// iteration and then hands over to the next queued entry. With an empty
	// queue the animation keeps looping.
	PreemptAtLoopBoundary PreemptPolicy = iota
	// PreemptNever keeps looping animations playing until ClearQueue.
	PreemptNever
	// PreemptImmediate displaces the current animation, or an in-progress
	// transition, on the first tick after an entry is queued.
	PreemptImmediate
)

// Entry is a queued animation request.
type Entry struct {
	Animation       *Animation
	TransitionTicks int
}

// Pose is the result of one tick: the root placement handed to Tick and the
// local transform of every animated bone. Bones missing from Bones are at
// rest.
type Pose struct {
	Root  linear.Transform
	Bones map[string]linear.Transform
}

// Bone returns the sampled local transform of a bone, or the identity.
func (p Pose) Bone(name string) linear.Transform {
	if t, ok := p.Bones[name]; ok {
		return t
	}
	return linear.IdentityTransform()
}

// Player is the per-view animation state machine.
//
// An entry queued with N transition ticks is Transitioning for exactly N
// ticks, blending with weights 1/N ... N/N, so the last of them emits the
// target pose. Playing starts on the following tick. The rest pose counts as
// a prior pose, so an idle player blends from rest as well.
//
// Queue and ClearQueue may be called from any goroutine and take effect on
// the next Tick. Tick is expected to be driven by a single goroutine.
type Player struct {
	mu     sync.Mutex
	policy PreemptPolicy
	queue  *sequence.Queue[Entry]

	current *Animation
	elapsed float32

	transitioning     bool
	transition        int
	transitionElapsed int
	from              map[string]linear.Transform

	// last is the pose emitted by the previous tick. Empty means rest.
	last map[string]linear.Transform
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPreemptPolicy sets how queued entries interrupt looping animations.
func WithPreemptPolicy(policy PreemptPolicy) PlayerOption {
	return func(p *Player) { p.policy = policy }
}

// NewPlayer creates an idle player.
func NewPlayer(opts ...PlayerOption) *Player {
	p := &Player{queue: sequence.NewQueue[Entry](), last: map[string]linear.Transform{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Queue appends an animation to the queue. Negative transition ticks are
// treated as zero.
func (p *Player) Queue(animation *Animation, transitionTicks int) {
	if animation == nil {
		return
	}
	if transitionTicks < 0 {
		transitionTicks = 0
	}
	p.mu.Lock()
	p.queue.Enqueue(Entry{Animation: animation, TransitionTicks: transitionTicks})
	p.mu.Unlock()
}

// ClearQueue drops every queued entry and stops the current animation at
// once. The next tick emits the rest pose.
func (p *Player) ClearQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Clear()
	p.current = nil
	p.elapsed = 0
	p.transitioning = false
	p.from = nil
	p.last = map[string]linear.Transform{}
}

// Tick advances the player by one step and returns the resulting pose.
func (p *Player) Tick(rootRotation linear.Quat, rootPosition linear.Vec3) Pose {
	p.mu.Lock()
	defer p.mu.Unlock()

	bones := p.advance()
	p.last = bones
	return Pose{
		Root:  linear.NewTransform(rootPosition, rootRotation),
		Bones: bones,
	}
}

func (p *Player) advance() map[string]linear.Transform {
	if p.current != nil && p.policy == PreemptImmediate && !p.queue.IsEmpty() {
		p.current = nil
		p.transitioning = false
	}
	if p.current == nil && !p.next() {
		return map[string]linear.Transform{}
	}

	if p.transitioning && p.transitionElapsed >= p.transition {
		p.transitioning = false
		p.from = nil
	}
	if p.transitioning {
		p.transitionElapsed++
		target := p.current.Sample(0)
		if p.transitionElapsed == p.transition {
			return target
		}
		return blendPoses(p.from, target, float32(p.transitionElapsed)/float32(p.transition))
	}

	p.elapsed++
	if p.elapsed > p.current.Length() {
		switch {
		case !p.current.Loop():
			p.current = nil
			return p.advance()
		case p.policy == PreemptAtLoopBoundary && !p.queue.IsEmpty():
			p.current = nil
			return p.advance()
		default:
			p.elapsed = linear.Wrap(p.elapsed, p.current.Length())
		}
	}
	return p.current.Sample(p.elapsed)
}

// next dequeues the following entry. It blends from the last emitted pose
// when the entry asks for a transition.
func (p *Player) next() bool {
	entry, ok := p.queue.Dequeue()
	if !ok {
		p.current = nil
		p.transitioning = false
		return false
	}
	p.current = entry.Animation
	p.elapsed = 0
	p.transitioning = entry.TransitionTicks > 0
	if p.transitioning {
		p.transition = entry.TransitionTicks
		p.transitionElapsed = 0
		p.from = p.last
	}
	return true
}

// blendPoses interpolates two local poses. A bone present in only one of
// them is blended against the rest transform.
func blendPoses(from, to map[string]linear.Transform, weight float32) map[string]linear.Transform {
	out := make(map[string]linear.Transform, len(to))
	rest := linear.IdentityTransform()
	for bone, target := range to {
		source, ok := from[bone]
		if !ok {
			source = rest
		}
		out[bone] = linear.Blend(source, target, weight)
	}
	for bone, source := range from {
		if _, ok := to[bone]; !ok {
			out[bone] = linear.Blend(source, rest, weight)
		}
	}
	return out
}

// State returns the current state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.current == nil:
		return StateIdle
	case p.transitioning:
		return StateTransitioning
	default:
		return StatePlaying
	}
}

// Current returns the animation being played, or nil when idle.
func (p *Player) Current() *Animation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Elapsed returns the ticks elapsed within the current animation.
func (p *Player) Elapsed() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

// TransitionProgress returns the blend weight of the running transition, or
// zero when no transition is in progress.
func (p *Player) TransitionProgress() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.transitioning || p.transition == 0 {
		return 0
	}
	return float32(p.transitionElapsed) / float32(p.transition)
}

// Pending returns the queued entries in play order.
func (p *Player) Pending() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Values()
}

// Policy returns the preemption policy of the player.
func (p *Player) Policy() PreemptPolicy {
	return p.policy
}
