// Package animation holds keyframed bone animations and the player that
// queues, advances and blends them one fixed tick at a time.
package animation

import (
	"sort"

	"github.com/zeusync/hephaestus/pkg/linear"
)

// Keyframe is a timestamped sample. Time is measured in ticks.
type Keyframe struct {
	Time  float32
	Value linear.Vec3
}

// Channel holds the keyframes of a single bone. Rotation values are Euler
// angles in degrees and are converted to quaternions once, on construction.
type Channel struct {
	position  []Keyframe
	rotation  []Keyframe
	scale     []Keyframe
	rotations []linear.Quat
}

// NewChannel creates a channel. Keyframes are copied and sorted by time.
func NewChannel(position, rotation, scale []Keyframe) *Channel {
	c := &Channel{
		position: sortedCopy(position),
		rotation: sortedCopy(rotation),
		scale:    sortedCopy(scale),
	}
	c.rotations = make([]linear.Quat, len(c.rotation))
	for i, k := range c.rotation {
		c.rotations[i] = linear.FromEulerDegrees(k.Value)
	}
	return c
}

func sortedCopy(keys []Keyframe) []Keyframe {
	out := make([]Keyframe, len(keys))
	copy(out, keys)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Empty reports whether the channel has no keyframes at all.
func (c *Channel) Empty() bool {
	return len(c.position) == 0 && len(c.rotation) == 0 && len(c.scale) == 0
}

// Sample evaluates the channel at time t, which must already be clamped or
// wrapped to the animation bounds. Empty tracks yield the identity.
func (c *Channel) Sample(t float32) linear.Transform {
	out := linear.IdentityTransform()
	if i, j, frac, ok := bracket(c.position, t); ok {
		out.Position = linear.Lerp(c.position[i].Value, c.position[j].Value, frac)
	}
	if i, j, frac, ok := bracket(c.rotation, t); ok {
		out.Rotation = linear.Slerp(c.rotations[i], c.rotations[j], frac)
	}
	if i, j, frac, ok := bracket(c.scale, t); ok {
		out.Scale = linear.Lerp(c.scale[i].Value, c.scale[j].Value, frac)
	}
	return out
}

// bracket finds the keyframes surrounding t and the weight of the second one.
func bracket(keys []Keyframe, t float32) (i, j int, frac float32, ok bool) {
	n := len(keys)
	switch {
	case n == 0:
		return 0, 0, 0, false
	case t <= keys[0].Time:
		return 0, 0, 0, true
	case t >= keys[n-1].Time:
		return n - 1, n - 1, 0, true
	}
	j = sort.Search(n, func(k int) bool { return keys[k].Time > t })
	i = j - 1
	span := keys[j].Time - keys[i].Time
	if span <= 0 {
		return j, j, 0, true
	}
	return i, j, (t - keys[i].Time) / span, true
}

// Animation is a named, immutable set of bone channels.
type Animation struct {
	name     string
	length   float32
	loop     bool
	channels map[string]*Channel
}

// New creates an animation of the given length in ticks.
func New(name string, length float32, loop bool, channels map[string]*Channel) *Animation {
	if length < 0 {
		length = 0
	}
	cp := make(map[string]*Channel, len(channels))
	for bone, ch := range channels {
		if ch != nil {
			cp[bone] = ch
		}
	}
	return &Animation{name: name, length: length, loop: loop, channels: cp}
}

func (a *Animation) Name() string {
	return a.name
}

// Length returns the duration in ticks.
func (a *Animation) Length() float32 {
	return a.length
}

func (a *Animation) Loop() bool {
	return a.loop
}

// Channel returns the channel of a bone, if the animation has one.
func (a *Animation) Channel(bone string) (*Channel, bool) {
	ch, ok := a.channels[bone]
	return ch, ok
}

// Bones returns the names of every animated bone, sorted.
func (a *Animation) Bones() []string {
	out := make([]string, 0, len(a.channels))
	for bone := range a.channels {
		out = append(out, bone)
	}
	sort.Strings(out)
	return out
}

// Time maps an elapsed time onto the animation: wrapped when looping,
// clamped otherwise.
func (a *Animation) Time(elapsed float32) float32 {
	if a.loop {
		return linear.Wrap(elapsed, a.length)
	}
	return linear.Clamp(elapsed, 0, a.length)
}

// Sample evaluates every channel at the given elapsed time.
func (a *Animation) Sample(elapsed float32) map[string]linear.Transform {
	t := a.Time(elapsed)
	out := make(map[string]linear.Transform, len(a.channels))
	for bone, ch := range a.channels {
		out[bone] = ch.Sample(t)
	}
	return out
}
