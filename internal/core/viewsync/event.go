// Package viewsync keeps viewers in step with a view: it builds spawn, update
// and despawn events from bone proxy snapshots and remembers, per viewer, what
// was last delivered.
package viewsync

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/zeusync/hephaestus/pkg/linear"
)

// Kind of an Event.
type Kind uint8

const (
	KindSpawn Kind = iota + 1
	KindUpdate
	KindDespawn
	KindSound
)

func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindUpdate:
		return "update"
	case KindDespawn:
		return "despawn"
	case KindSound:
		return "sound"
	default:
		return "unknown"
	}
}

// Proxy is the committed state of one bone proxy.
type Proxy struct {
	Bone string
	// Part is the player rig part rendered by the proxy, empty for standard
	// proxies.
	Part      string
	Transform linear.Transform
}

// Sound played at a view's location.
type Sound struct {
	Name   string
	Volume float32
	Pitch  float32
}

// Event is one abstract instruction for a viewer's client.
type Event struct {
	Kind      Kind
	View      uuid.UUID
	Bone      string
	Key       uint64
	Part      string
	Transform linear.Transform
	Sound     *Sound
	Location  linear.Vec3
}

// Key returns the stable numeric id of a view's bone proxy.
func Key(view uuid.UUID, bone string) uint64 {
	return xxhash.Sum64String(view.String() + "/" + bone)
}

// SpawnEvents creates every proxy of a view.
func SpawnEvents(view uuid.UUID, proxies []Proxy) []Event {
	events := make([]Event, 0, len(proxies))
	for _, p := range proxies {
		events = append(events, Event{
			Kind:      KindSpawn,
			View:      view,
			Bone:      p.Bone,
			Key:       Key(view, p.Bone),
			Part:      p.Part,
			Transform: p.Transform,
		})
	}
	return events
}

// UpdateEvents emits an update for every proxy whose transform differs from
// the one last delivered. Proxies missing from last are always updated.
func UpdateEvents(view uuid.UUID, proxies []Proxy, last map[string]linear.Transform) []Event {
	var events []Event
	for _, p := range proxies {
		if prev, ok := last[p.Bone]; ok && prev.ApproxEqual(p.Transform) {
			continue
		}
		events = append(events, Event{
			Kind:      KindUpdate,
			View:      view,
			Bone:      p.Bone,
			Key:       Key(view, p.Bone),
			Transform: p.Transform,
		})
	}
	return events
}

// DespawnEvents removes every proxy of a view.
func DespawnEvents(view uuid.UUID, proxies []Proxy) []Event {
	events := make([]Event, 0, len(proxies))
	for _, p := range proxies {
		events = append(events, Event{
			Kind: KindDespawn,
			View: view,
			Bone: p.Bone,
			Key:  Key(view, p.Bone),
		})
	}
	return events
}

// SoundEvent plays a sound at a location.
func SoundEvent(view uuid.UUID, location linear.Vec3, sound Sound) Event {
	s := sound
	return Event{Kind: KindSound, View: view, Sound: &s, Location: location}
}

func snapshot(proxies []Proxy) map[string]linear.Transform {
	out := make(map[string]linear.Transform, len(proxies))
	for _, p := range proxies {
		out[p.Bone] = p.Transform
	}
	return out
}

func sortViewers(viewers []Viewer) {
	sort.Slice(viewers, func(i, j int) bool {
		a, b := viewers[i].ID(), viewers[j].ID()
		return a.String() < b.String()
	})
}
