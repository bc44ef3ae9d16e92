package viewsync

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/hephaestus/pkg/linear"
)

type testViewer struct{ id uuid.UUID }

func (v testViewer) ID() uuid.UUID { return v.id }

func newViewer() testViewer { return testViewer{id: uuid.New()} }

type recorder struct {
	mu      sync.Mutex
	batches map[uuid.UUID][][]Event
	fail    map[uuid.UUID]bool
}

func newRecorder() *recorder {
	return &recorder{batches: make(map[uuid.UUID][][]Event), fail: make(map[uuid.UUID]bool)}
}

func (r *recorder) Send(viewer Viewer, events []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[viewer.ID()] {
		return errors.New("connection reset")
	}
	r.batches[viewer.ID()] = append(r.batches[viewer.ID()], events)
	return nil
}

func (r *recorder) kinds(id uuid.UUID) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, batch := range r.batches[id] {
		for _, e := range batch {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (r *recorder) count(id uuid.UUID, kind Kind) int {
	n := 0
	for _, k := range r.kinds(id) {
		if k == kind {
			n++
		}
	}
	return n
}

func proxies(x float32) []Proxy {
	return []Proxy{
		{Bone: "body", Transform: linear.NewTransform(linear.Vec3{x, 0, 0}, linear.Identity())},
		{Bone: "head", Part: "head", Transform: linear.NewTransform(linear.Vec3{0, 1, 0}, linear.Identity())},
	}
}

type audience struct {
	mu      sync.Mutex
	viewers []Viewer
	err     error
}

func (a *audience) Show(v Viewer) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	for _, w := range a.viewers {
		if w.ID() == v.ID() {
			return false, nil
		}
	}
	a.viewers = append(a.viewers, v)
	return true, nil
}

func (a *audience) Hide(v Viewer) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	for i, w := range a.viewers {
		if w.ID() == v.ID() {
			a.viewers = append(a.viewers[:i], a.viewers[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (a *audience) Viewers() []Viewer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Viewer(nil), a.viewers...)
}

func (a *audience) set(v ...Viewer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewers = v
}

func TestKeyIsStable(t *testing.T) {
	view := uuid.New()
	assert.Equal(t, Key(view, "head"), Key(view, "head"))
	assert.NotEqual(t, Key(view, "head"), Key(view, "body"))
	assert.NotEqual(t, Key(view, "head"), Key(uuid.New(), "head"))
}

func TestUpdateEventsDiff(t *testing.T) {
	view := uuid.New()
	last := snapshot(proxies(0))

	assert.Empty(t, UpdateEvents(view, proxies(0), last))

	events := UpdateEvents(view, proxies(2), last)
	require.Len(t, events, 1)
	assert.Equal(t, "body", events[0].Bone)
	assert.Equal(t, KindUpdate, events[0].Kind)
	assert.Equal(t, Key(view, "body"), events[0].Key)

	assert.Len(t, UpdateEvents(view, proxies(0), nil), 2)
}

func TestAddIsIdempotent(t *testing.T) {
	rec := newRecorder()
	s := New(uuid.New(), rec, proxies(0))
	a := newViewer()

	added, err := s.Add(a)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(a)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 2, rec.count(a.id, KindSpawn))
	assert.Len(t, rec.batches[a.id], 1)
	assert.Len(t, s.Viewers(), 1)
}

func TestRemoveIsIdempotentAndIsolated(t *testing.T) {
	rec := newRecorder()
	s := New(uuid.New(), rec, proxies(0))
	a, b := newViewer(), newViewer()

	_, _ = s.Add(a)
	_, _ = s.Add(b)

	removed, err := s.Remove(a)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(a)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, 2, rec.count(a.id, KindDespawn))
	assert.Zero(t, rec.count(b.id, KindDespawn))

	require.NoError(t, s.Flush(proxies(1), linear.Zero))
	assert.Equal(t, 1, rec.count(b.id, KindUpdate))
	assert.Zero(t, rec.count(a.id, KindUpdate))
	assert.False(t, s.Has(a.id))
	assert.True(t, s.Has(b.id))
}

func TestFlushSendsOnlyChanges(t *testing.T) {
	rec := newRecorder()
	s := New(uuid.New(), rec, proxies(0))
	a := newViewer()
	_, _ = s.Add(a)

	require.NoError(t, s.Flush(proxies(0), linear.Zero))
	assert.Zero(t, rec.count(a.id, KindUpdate))

	require.NoError(t, s.Flush(proxies(1), linear.Zero))
	require.NoError(t, s.Flush(proxies(1), linear.Zero))
	assert.Equal(t, 1, rec.count(a.id, KindUpdate))
}

func TestFailedSendIsRetriedNextFlush(t *testing.T) {
	rec := newRecorder()
	var failures []uuid.UUID
	s := New(uuid.New(), rec, proxies(0), WithFailureHandler(func(v Viewer, _ error) {
		failures = append(failures, v.ID())
	}))
	a, b := newViewer(), newViewer()
	_, _ = s.Add(a)
	_, _ = s.Add(b)

	rec.fail[a.id] = true
	require.NoError(t, s.Flush(proxies(1), linear.Zero))
	assert.Equal(t, []uuid.UUID{a.id}, failures)
	assert.Equal(t, 1, rec.count(b.id, KindUpdate))

	rec.fail[a.id] = false
	require.NoError(t, s.Flush(proxies(1), linear.Zero))
	assert.Equal(t, 1, rec.count(a.id, KindUpdate))
	assert.Equal(t, 1, rec.count(b.id, KindUpdate))
}

func TestFailedSpawnIsRetried(t *testing.T) {
	rec := newRecorder()
	s := New(uuid.New(), rec, proxies(0))
	a := newViewer()

	rec.fail[a.id] = true
	added, err := s.Add(a)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Zero(t, rec.count(a.id, KindSpawn))

	rec.fail[a.id] = false
	require.NoError(t, s.Flush(proxies(3), linear.Zero))
	assert.Equal(t, 2, rec.count(a.id, KindSpawn))
	assert.Zero(t, rec.count(a.id, KindUpdate))
}

func TestDelegatedAudienceReconciles(t *testing.T) {
	rec := newRecorder()
	aud := &audience{}
	s := New(uuid.New(), rec, proxies(0), WithAudience(aud))
	a, b := newViewer(), newViewer()

	assert.True(t, s.Delegated())

	aud.set(a, b)
	require.NoError(t, s.Flush(proxies(0), linear.Zero))
	assert.Equal(t, 2, rec.count(a.id, KindSpawn))
	assert.Equal(t, 2, rec.count(b.id, KindSpawn))

	aud.set(b)
	require.NoError(t, s.Flush(proxies(1), linear.Zero))
	assert.Equal(t, 2, rec.count(a.id, KindDespawn))
	assert.Equal(t, 1, rec.count(b.id, KindUpdate))
	assert.Len(t, s.Viewers(), 1)
}

func TestDelegatedAddRemoveForwarded(t *testing.T) {
	rec := newRecorder()
	aud := &audience{}
	s := New(uuid.New(), rec, proxies(0), WithAudience(aud))
	a := newViewer()

	added, err := s.Add(a)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Len(t, aud.Viewers(), 1)
	assert.Zero(t, rec.count(a.id, KindSpawn))

	added, err = s.Add(a)
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, s.Flush(proxies(0), linear.Zero))
	assert.Equal(t, 2, rec.count(a.id, KindSpawn))

	removed, err := s.Remove(a)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, aud.Viewers())

	require.NoError(t, s.Flush(proxies(0), linear.Zero))
	assert.Equal(t, 2, rec.count(a.id, KindDespawn))

	aud.err = errors.New("hidden by platform")
	_, err = s.Add(a)
	assert.EqualError(t, err, "hidden by platform")

	s.Close()
	_, err = s.Add(a)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSoundAndClose(t *testing.T) {
	rec := newRecorder()
	s := New(uuid.New(), rec, proxies(0))
	a := newViewer()
	_, _ = s.Add(a)

	require.NoError(t, s.Sound(Sound{Name: "entity.golem.step", Volume: 1, Pitch: 1}))
	assert.Equal(t, 1, rec.count(a.id, KindSound))

	s.Close()
	s.Close()
	assert.Equal(t, 2, rec.count(a.id, KindDespawn))
	assert.Empty(t, s.Viewers())

	_, err := s.Add(newViewer())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Flush(proxies(0), linear.Zero), ErrClosed)
	assert.ErrorIs(t, s.Sound(Sound{Name: "x"}), ErrClosed)
}
