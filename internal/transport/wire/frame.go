// Package wire is the JSON framing shared by the viewer transports.
package wire

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/zeusync/hephaestus/internal/core/viewsync"
	"github.com/zeusync/hephaestus/pkg/generic"
	"github.com/zeusync/hephaestus/pkg/linear"
)

var buffers = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// Frame is the JSON form of one viewsync.Event, or of a server reply when
// Type is "error" or "pong".
type Frame struct {
	Type     string      `json:"type"`
	View     string      `json:"view,omitempty"`
	Bone     string      `json:"bone,omitempty"`
	Key      uint64      `json:"key,omitempty"`
	Part     string      `json:"part,omitempty"`
	Position *[3]float32 `json:"position,omitempty"`
	Rotation *[4]float32 `json:"rotation,omitempty"`
	Scale    *[3]float32 `json:"scale,omitempty"`
	Sound    string      `json:"sound,omitempty"`
	Volume   float32     `json:"volume,omitempty"`
	Pitch    float32     `json:"pitch,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// ControlMessage is sent by clients.
type ControlMessage struct {
	Action string `json:"action"`
	View   string `json:"view,omitempty"`
}

const (
	ActionWatch   = "watch"
	ActionUnwatch = "unwatch"
	ActionPing    = "ping"
)

// Reply frame types.
const (
	TypeError = "error"
	TypePong  = "pong"
)

// FromEvent converts an event to its frame.
func FromEvent(e viewsync.Event) Frame {
	f := Frame{
		Type: e.Kind.String(),
		View: e.View.String(),
		Bone: e.Bone,
		Key:  e.Key,
		Part: e.Part,
	}
	switch e.Kind {
	case viewsync.KindSpawn, viewsync.KindUpdate:
		pos := [3]float32(e.Transform.Position)
		rot := [4]float32{e.Transform.Rotation.W, e.Transform.Rotation.V[0], e.Transform.Rotation.V[1], e.Transform.Rotation.V[2]}
		scale := [3]float32(e.Transform.Scale)
		f.Position, f.Rotation, f.Scale = &pos, &rot, &scale
	case viewsync.KindSound:
		pos := [3]float32(e.Location)
		f.Position = &pos
		if e.Sound != nil {
			f.Sound, f.Volume, f.Pitch = e.Sound.Name, e.Sound.Volume, e.Sound.Pitch
		}
	}
	return f
}

// Transform rebuilds the transform carried by a spawn or update frame.
func (f Frame) Transform() linear.Transform {
	t := linear.IdentityTransform()
	if f.Position != nil {
		t.Position = linear.Vec3(*f.Position)
	}
	if f.Rotation != nil {
		r := *f.Rotation
		t.Rotation = linear.Quat{W: r[0], V: linear.Vec3{r[1], r[2], r[3]}}
	}
	if f.Scale != nil {
		t.Scale = linear.Vec3(*f.Scale)
	}
	return t
}

// ViewID parses the view id of a frame.
func (f Frame) ViewID() (uuid.UUID, error) {
	return uuid.Parse(f.View)
}

// EncodeEvents marshals a batch as a JSON array of frames.
func EncodeEvents(events []viewsync.Event) ([]byte, error) {
	frames := make([]Frame, len(events))
	for i, e := range events {
		frames[i] = FromEvent(e)
	}
	return encode(frames)
}

// EncodeFrames marshals frames as a JSON array.
func EncodeFrames(frames ...Frame) ([]byte, error) {
	return encode(frames)
}

func encode(frames []Frame) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)
	if err := json.NewEncoder(buf).Encode(frames); err != nil {
		return nil, err
	}
	return bytes.Clone(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

// DecodeFrames parses a JSON array of frames.
func DecodeFrames(data []byte) ([]Frame, error) {
	var frames []Frame
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}
