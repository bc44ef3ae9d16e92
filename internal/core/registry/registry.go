// Package registry holds the loaded models and the live views of a server.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/hephaestus/internal/core/events/bus"
	"github.com/zeusync/hephaestus/internal/core/model"
	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/view"
	"github.com/zeusync/hephaestus/pkg/linear"
)

var (
	ErrDuplicateModel = errors.New("model already registered")
	ErrUnknownModel   = errors.New("unknown model")
	ErrDuplicateView  = errors.New("view already registered")
)

type Registry struct {
	mu     sync.RWMutex
	models map[string]*model.Model
	views  map[uuid.UUID]*view.View

	bus      bus.EventBus
	root     log.Log
	logger   log.Log
	viewOpts []view.Option
}

type Option func(*Registry)

func WithBus(b bus.EventBus) Option {
	return func(r *Registry) { r.bus = b }
}

func WithLogger(logger log.Log) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithViewOptions sets options applied to every view created by Spawn, such
// as the transport.
func WithViewOptions(opts ...view.Option) Option {
	return func(r *Registry) { r.viewOpts = append(r.viewOpts, opts...) }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		models: make(map[string]*model.Model),
		views:  make(map[uuid.UUID]*view.View),
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.root = r.logger
	r.logger = r.logger.With(log.String("component", "registry"))
	return r
}

func (r *Registry) RegisterModel(m *model.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[m.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name())
	}
	r.models[m.Name()] = m
	r.logger.Info("model registered",
		log.String("model", m.Name()),
		log.Int("bones", m.BoneCount()),
		log.Int("animations", len(m.Animations())),
	)
	for anim, bones := range m.UnboundChannels() {
		r.logger.Warn("animation channels without bones are ignored",
			log.String("model", m.Name()),
			log.String("animation", anim),
			log.Any("channels", bones),
		)
	}
	return nil
}

func (r *Registry) Model(name string) (*model.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Spawn creates a view of a registered model and adds it.
func (r *Registry) Spawn(modelName string, location linear.Vec3, scale float32, opts ...view.Option) (*view.View, error) {
	m, ok := r.Model(modelName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelName)
	}

	all := make([]view.Option, 0, len(r.viewOpts)+len(opts)+2)
	all = append(all, view.WithLogger(r.root))
	if r.bus != nil {
		all = append(all, view.WithBus(r.bus))
	}
	all = append(all, r.viewOpts...)
	all = append(all, opts...)

	v, err := view.New(m, location, scale, all...)
	if err != nil {
		return nil, err
	}
	if err := r.AddView(v); err != nil {
		_ = v.Destroy()
		return nil, err
	}
	return v, nil
}

// AddView registers a view created elsewhere.
func (r *Registry) AddView(v *view.View) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.views[v.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateView, v.ID())
	}
	r.views[v.ID()] = v
	return nil
}

// RemoveView unregisters and destroys a view.
func (r *Registry) RemoveView(id uuid.UUID) bool {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := v.Destroy(); err != nil && !errors.Is(err, view.ErrViewDestroyed) {
		r.logger.Warn("destroy failed", log.Stringer("view", id), log.Error(err))
	}
	return true
}

func (r *Registry) View(id uuid.UUID) (*view.View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	return v, ok
}

// Views returns the live views ordered by id.
func (r *Registry) Views() []*view.View {
	r.mu.RLock()
	out := make([]*view.View, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// Close destroys every view.
func (r *Registry) Close() {
	for _, v := range r.Views() {
		r.RemoveView(v.ID())
	}
}
