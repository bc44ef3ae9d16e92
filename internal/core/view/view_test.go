package view

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/hephaestus/internal/core/animation"
	"github.com/zeusync/hephaestus/internal/core/events/bus"
	"github.com/zeusync/hephaestus/internal/core/model"
	"github.com/zeusync/hephaestus/internal/core/viewsync"
	"github.com/zeusync/hephaestus/pkg/linear"
)

type viewer struct{ id uuid.UUID }

func (v viewer) ID() uuid.UUID { return v.id }

type recorder struct {
	mu     sync.Mutex
	events map[uuid.UUID][]viewsync.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[uuid.UUID][]viewsync.Event)}
}

func (r *recorder) Send(v viewsync.Viewer, events []viewsync.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[v.ID()] = append(r.events[v.ID()], events...)
	return nil
}

func (r *recorder) count(id uuid.UUID, kind viewsync.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events[id] {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type placement struct {
	location linear.Vec3
	yaw      float32
}

func (p placement) Location() linear.Vec3 { return p.location }
func (p placement) Yaw() float32          { return p.yaw }
func (p placement) Pitch() float32        { return 0 }

type audience struct{ viewers []viewsync.Viewer }

func (a *audience) Viewers() []viewsync.Viewer { return a.viewers }

func (a *audience) Show(v viewsync.Viewer) (bool, error) {
	for _, w := range a.viewers {
		if w.ID() == v.ID() {
			return false, nil
		}
	}
	a.viewers = append(a.viewers, v)
	return true, nil
}

func (a *audience) Hide(v viewsync.Viewer) (bool, error) {
	for i, w := range a.viewers {
		if w.ID() == v.ID() {
			a.viewers = append(a.viewers[:i], a.viewers[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func golem(t *testing.T) *model.Model {
	t.Helper()
	lift := animation.New("lift", 10, false, map[string]*animation.Channel{
		"body": animation.NewChannel([]animation.Keyframe{
			{Time: 0, Value: linear.Vec3{0, 0, 0}},
			{Time: 10, Value: linear.Vec3{0, 10, 0}},
		}, nil, nil),
		"ghost": animation.NewChannel([]animation.Keyframe{{Time: 0, Value: linear.Vec3{5, 5, 5}}}, nil, nil),
	})

	m, err := model.New("golem", []*model.Bone{{
		Name:     "body",
		Position: linear.Vec3{0, 1, 0},
		Children: []*model.Bone{
			{Name: "head", Position: linear.Vec3{0, 1, 0}},
			{Name: "arm", Position: linear.Vec3{1, 0, 0}},
		},
	}},
		model.WithAnimations(lift),
		model.WithRigPart("head", model.PlayerRigPart{Part: "head", Offset: linear.Vec3{0, 0.5, 0}}),
	)
	require.NoError(t, err)
	return m
}

func position(t *testing.T, v *View, bone string) linear.Vec3 {
	t.Helper()
	p, ok := v.Bone(bone)
	require.True(t, ok, bone)
	return p.Transform().Position
}

func assertNear(t *testing.T, want, got linear.Vec3) {
	t.Helper()
	assert.True(t, want.ApproxEqualThreshold(got, 1e-4), "want %v, got %v", want, got)
}

func TestNewStartsInRestPose(t *testing.T) {
	v, err := New(golem(t), linear.Vec3{10, 0, 0}, 1)
	require.NoError(t, err)

	assertNear(t, linear.Vec3{10, 1, 0}, position(t, v, "body"))
	assertNear(t, linear.Vec3{10, 2.5, 0}, position(t, v, "head"))
	assertNear(t, linear.Vec3{11, 1, 0}, position(t, v, "arm"))

	names := make([]string, 0, 3)
	for _, p := range v.Bones() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"body", "head", "arm"}, names)

	head, _ := v.Bone("head")
	assert.Equal(t, BonePlayerRig, head.Kind())
	part, ok := head.RigPart()
	assert.True(t, ok)
	assert.Equal(t, "head", part.Part)
	assert.Equal(t, "body", head.Parent().Name())
	assert.Equal(t, viewsync.Key(v.ID(), "head"), head.Key())

	arm, _ := v.Bone("arm")
	assert.Equal(t, BoneStandard, arm.Kind())
	_, ok = arm.RigPart()
	assert.False(t, ok)

	_, ok = v.Bone("tail")
	assert.False(t, ok)
}

func TestScaleMultipliesOffsets(t *testing.T) {
	v, err := New(golem(t), linear.Vec3{10, 0, 0}, 2)
	require.NoError(t, err)

	assert.Equal(t, float32(2), v.Scale())
	assertNear(t, linear.Vec3{10, 2, 0}, position(t, v, "body"))
	assertNear(t, linear.Vec3{10, 5, 0}, position(t, v, "head"))
}

func TestNewRejectsNilModel(t *testing.T) {
	v, err := New(nil, linear.Zero, 1)
	assert.ErrorIs(t, err, ErrNilModel)
	assert.Nil(t, v)
}

func TestNewRejectsBadScale(t *testing.T) {
	_, err := New(golem(t), linear.Zero, 0)
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = New(golem(t), linear.Zero, 3e38)
	assert.ErrorIs(t, err, ErrNonFinitePose)
}

func TestTickAppliesAnimation(t *testing.T) {
	v, err := New(golem(t), linear.Vec3{10, 0, 0}, 1)
	require.NoError(t, err)

	require.NoError(t, v.Queue("lift", 0))
	require.NoError(t, v.Tick())

	assert.Equal(t, animation.StatePlaying, v.Animations().State())
	assertNear(t, linear.Vec3{10, 2, 0}, position(t, v, "body"))
	assertNear(t, linear.Vec3{10, 3.5, 0}, position(t, v, "head"))

	assert.ErrorIs(t, v.Queue("dance", 0), ErrUnknownAnimation)
}

func TestTickWithYawRotatesAroundRoot(t *testing.T) {
	v, err := New(golem(t), linear.Vec3{10, 0, 0}, 1)
	require.NoError(t, err)

	require.NoError(t, v.TickWith(90, 0))
	assertNear(t, linear.Vec3{10, 1, 1}, position(t, v, "arm"))
	assertNear(t, linear.Vec3{10, 1, 0}, position(t, v, "body"))
}

func TestTickFollowsBase(t *testing.T) {
	base := placement{location: linear.Vec3{0, 5, 0}, yaw: 90}
	v, err := New(golem(t), linear.Zero, 1, WithBase(base))
	require.NoError(t, err)

	require.NoError(t, v.Tick())
	assert.Equal(t, linear.Vec3{0, 5, 0}, v.Location())
	assertNear(t, linear.Vec3{0, 6, 1}, position(t, v, "arm"))
	assert.NotNil(t, v.Base())
}

func TestNonFinitePoseIsNotCommitted(t *testing.T) {
	v, err := New(golem(t), linear.Vec3{10, 0, 0}, 1)
	require.NoError(t, err)

	v.SetLocation(linear.Vec3{float32(math.NaN()), 0, 0})
	assert.ErrorIs(t, v.TickWith(0, 0), ErrNonFinitePose)
	assertNear(t, linear.Vec3{10, 1, 0}, position(t, v, "body"))

	v.SetLocation(linear.Vec3{20, 0, 0})
	require.NoError(t, v.TickWith(0, 0))
	assertNear(t, linear.Vec3{20, 1, 0}, position(t, v, "body"))
}

func TestViewersReceiveSpawnAndUpdates(t *testing.T) {
	rec := newRecorder()
	events := bus.New()
	var added []uuid.UUID
	_, _ = events.Subscribe(bus.ViewerAdded, func(e bus.Event) error {
		added = append(added, e.Data().(bus.ViewerPayload).Viewer)
		return nil
	})

	v, err := New(golem(t), linear.Zero, 1, WithTransport(rec), WithBus(events))
	require.NoError(t, err)
	a, b := viewer{uuid.New()}, viewer{uuid.New()}

	ok, err := v.AddViewer(a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = v.AddViewer(a)
	require.NoError(t, err)
	assert.False(t, ok)
	_, _ = v.AddViewer(b)

	assert.Equal(t, 3, rec.count(a.id, viewsync.KindSpawn))
	assert.Equal(t, []uuid.UUID{a.id, b.id}, added)
	assert.Len(t, v.Viewers(), 2)

	require.NoError(t, v.Tick())
	assert.Zero(t, rec.count(a.id, viewsync.KindUpdate))

	require.NoError(t, v.Queue("lift", 0))
	require.NoError(t, v.Tick())
	assert.Equal(t, 3, rec.count(a.id, viewsync.KindUpdate))

	ok, err = v.RemoveViewer(a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = v.RemoveViewer(a)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, v.Tick())
	assert.Equal(t, 3, rec.count(a.id, viewsync.KindDespawn))
	assert.Equal(t, 3, rec.count(a.id, viewsync.KindUpdate))
	assert.Equal(t, 6, rec.count(b.id, viewsync.KindUpdate))
	assert.Zero(t, rec.count(b.id, viewsync.KindDespawn))

	require.NoError(t, v.EmitSound(viewsync.Sound{Name: "entity.golem.hurt", Volume: 1, Pitch: 1}))
	assert.Equal(t, 1, rec.count(b.id, viewsync.KindSound))
	assert.Zero(t, rec.count(a.id, viewsync.KindSound))
}

func TestDelegatedVisibility(t *testing.T) {
	rec := newRecorder()
	a := viewer{uuid.New()}
	aud := &audience{}

	v, err := New(golem(t), linear.Zero, 1, WithTransport(rec), WithVisibility(aud))
	require.NoError(t, err)

	added, err := v.AddViewer(a)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Len(t, aud.viewers, 1)

	added, err = v.AddViewer(a)
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, v.Tick())
	assert.Equal(t, 3, rec.count(a.id, viewsync.KindSpawn))

	removed, err := v.RemoveViewer(a)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, aud.viewers)

	require.NoError(t, v.Tick())
	assert.Equal(t, 3, rec.count(a.id, viewsync.KindDespawn))

	removed, err = v.RemoveViewer(a)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestConcurrentViewersKeepEventOrder(t *testing.T) {
	rec := newRecorder()
	v, err := New(golem(t), linear.Zero, 1, WithTransport(rec))
	require.NoError(t, err)

	viewers := []viewer{{uuid.New()}, {uuid.New()}, {uuid.New()}}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%10 == 0 {
				assert.NoError(t, v.Queue("lift", 0))
			}
			assert.NoError(t, v.TickWith(float32(i), 0))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			for _, w := range viewers {
				_, err := v.AddViewer(w)
				assert.NoError(t, err)
			}
			for _, w := range viewers[:i%len(viewers)] {
				_, err := v.RemoveViewer(w)
				assert.NoError(t, err)
			}
		}
		for _, w := range viewers {
			_, err := v.RemoveViewer(w)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, w := range viewers {
		events := rec.events[w.id]
		require.NotEmpty(t, events)
		spawned := make(map[uint64]bool)
		for i, e := range events {
			switch e.Kind {
			case viewsync.KindSpawn:
				assert.False(t, spawned[e.Key], "event %d: spawn of a spawned bone", i)
				spawned[e.Key] = true
			case viewsync.KindUpdate:
				assert.True(t, spawned[e.Key], "event %d: update before spawn", i)
			case viewsync.KindDespawn:
				assert.True(t, spawned[e.Key], "event %d: despawn before spawn", i)
				spawned[e.Key] = false
			}
		}
		assert.Equal(t, viewsync.KindDespawn, events[len(events)-1].Kind)
		for key, live := range spawned {
			assert.False(t, live, "bone %d still spawned", key)
		}
	}
}

func TestTransportFailureHandlersMayCallBack(t *testing.T) {
	events := bus.New()
	failing := viewsync.TransportFunc(func(viewsync.Viewer, []viewsync.Event) error {
		return assert.AnError
	})
	v, err := New(golem(t), linear.Zero, 1, WithTransport(failing), WithBus(events))
	require.NoError(t, err)

	seen := make(chan int, 1)
	_, _ = events.Subscribe(bus.TransportFailed, func(e bus.Event) error {
		p := e.Data().(bus.ViewerPayload)
		assert.ErrorIs(t, p.Err, assert.AnError)
		select {
		case seen <- len(v.Viewers()):
		default:
		}
		return nil
	})

	a := viewer{uuid.New()}
	ok, err := v.AddViewer(a)
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case n := <-seen:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("transport failure not published")
	}
}

func TestDestroy(t *testing.T) {
	rec := newRecorder()
	events := bus.New()
	destroyed := 0
	_, _ = events.Subscribe(bus.ViewDestroyed, func(bus.Event) error { destroyed++; return nil })

	v, err := New(golem(t), linear.Zero, 1, WithTransport(rec), WithBus(events))
	require.NoError(t, err)
	a := viewer{uuid.New()}
	_, _ = v.AddViewer(a)

	require.NoError(t, v.Destroy())
	assert.True(t, v.Destroyed())
	assert.Equal(t, 3, rec.count(a.id, viewsync.KindDespawn))
	assert.Equal(t, 1, destroyed)

	assert.ErrorIs(t, v.Destroy(), ErrViewDestroyed)
	assert.ErrorIs(t, v.Tick(), ErrViewDestroyed)
	assert.ErrorIs(t, v.Queue("lift", 0), ErrViewDestroyed)
	assert.ErrorIs(t, v.ClearQueue(), ErrViewDestroyed)
	assert.ErrorIs(t, v.EmitSound(viewsync.Sound{Name: "x"}), ErrViewDestroyed)
	_, err = v.AddViewer(viewer{uuid.New()})
	assert.ErrorIs(t, err, ErrViewDestroyed)
	_, err = v.RemoveViewer(a)
	assert.ErrorIs(t, err, ErrViewDestroyed)
}
