package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/hephaestus/internal/core/events/bus"
	"github.com/zeusync/hephaestus/internal/core/model"
	"github.com/zeusync/hephaestus/internal/core/view"
	"github.com/zeusync/hephaestus/pkg/linear"
)

func newModel(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := model.New(name, []*model.Bone{{Name: "body"}})
	require.NoError(t, err)
	return m
}

func TestRegisterModel(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterModel(newModel(t, "golem")))
	require.NoError(t, r.RegisterModel(newModel(t, "dragon")))
	assert.ErrorIs(t, r.RegisterModel(newModel(t, "golem")), ErrDuplicateModel)

	assert.Equal(t, []string{"dragon", "golem"}, r.Models())
	_, ok := r.Model("golem")
	assert.True(t, ok)
	_, ok = r.Model("phoenix")
	assert.False(t, ok)
}

func TestSpawnAndRemove(t *testing.T) {
	events := bus.New()
	created := 0
	_, _ = events.Subscribe(bus.ViewCreated, func(bus.Event) error { created++; return nil })

	r := New(WithBus(events))
	require.NoError(t, r.RegisterModel(newModel(t, "golem")))

	v, err := r.Spawn("golem", linear.Vec3{1, 2, 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	got, ok := r.View(v.ID())
	require.True(t, ok)
	assert.Same(t, v, got)
	assert.Len(t, r.Views(), 1)

	assert.ErrorIs(t, r.AddView(v), ErrDuplicateView)

	assert.True(t, r.RemoveView(v.ID()))
	assert.False(t, r.RemoveView(v.ID()))
	assert.True(t, v.Destroyed())
	assert.Empty(t, r.Views())
}

func TestSpawnUnknownModel(t *testing.T) {
	_, err := New().Spawn("phoenix", linear.Zero, 1)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestSpawnPropagatesViewErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterModel(newModel(t, "golem")))

	_, err := r.Spawn("golem", linear.Zero, -1)
	assert.ErrorIs(t, err, view.ErrInvalidScale)
	assert.Empty(t, r.Views())
}

func TestCloseDestroysEveryView(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterModel(newModel(t, "golem")))

	a, err := r.Spawn("golem", linear.Zero, 1)
	require.NoError(t, err)
	b, err := r.Spawn("golem", linear.Zero, 1)
	require.NoError(t, err)

	r.Close()
	assert.True(t, a.Destroyed())
	assert.True(t, b.Destroyed())
	assert.Empty(t, r.Views())
}
