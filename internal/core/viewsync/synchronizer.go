package viewsync

import (
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/pkg/linear"
)

type peer struct {
	viewer  Viewer
	spawned bool
	last    map[string]linear.Transform
}

// Synchronizer owns the viewer set of one view and the per-viewer cache of
// delivered transforms. All methods are safe for concurrent use; batches are
// sent while holding the lock so every viewer observes them in order.
type Synchronizer struct {
	mu        sync.Mutex
	view      uuid.UUID
	transport Transport
	audience  Audience
	logger    log.Log
	onFailure FailureHandler

	peers    map[uuid.UUID]*peer
	proxies  []Proxy
	location linear.Vec3
	closed   bool
}

type Option func(*Synchronizer)

// WithAudience switches to delegated visibility.
func WithAudience(audience Audience) Option {
	return func(s *Synchronizer) { s.audience = audience }
}

func WithLogger(logger log.Log) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

// WithFailureHandler registers a callback for failed sends.
func WithFailureHandler(fn FailureHandler) Option {
	return func(s *Synchronizer) { s.onFailure = fn }
}

// New creates a synchronizer for a view. proxies is the initial snapshot
// spawned to viewers added before the first flush.
func New(view uuid.UUID, transport Transport, proxies []Proxy, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		view:      view,
		transport: transport,
		logger:    log.Nop(),
		peers:     make(map[uuid.UUID]*peer),
		proxies:   proxies,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.String("component", "viewsync"), log.Stringer("view", view))
	return s
}

// Delegated reports whether the viewer set mirrors an audience.
func (s *Synchronizer) Delegated() bool {
	return s.audience != nil
}

// Add registers a viewer and spawns the view for it. It reports false if the
// viewer was already present. In delegated mode the request goes to the
// audience and the spawn follows on the next Flush.
func (s *Synchronizer) Add(viewer Viewer) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if s.audience != nil {
		s.mu.Unlock()
		return s.audience.Show(viewer)
	}
	defer s.mu.Unlock()
	return s.add(viewer), nil
}

func (s *Synchronizer) add(viewer Viewer) bool {
	id := viewer.ID()
	if _, ok := s.peers[id]; ok {
		return false
	}
	p := &peer{viewer: viewer}
	s.peers[id] = p
	s.spawn(p)
	return true
}

// Remove despawns the view for a viewer and forgets it. It reports false if
// the viewer was not present. In delegated mode the request goes to the
// audience and the despawn follows on the next Flush.
func (s *Synchronizer) Remove(viewer Viewer) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if s.audience != nil {
		s.mu.Unlock()
		return s.audience.Hide(viewer)
	}
	defer s.mu.Unlock()
	return s.remove(viewer.ID()), nil
}

func (s *Synchronizer) remove(id uuid.UUID) bool {
	p, ok := s.peers[id]
	if !ok {
		return false
	}
	delete(s.peers, id)
	if p.spawned {
		s.send(p, DespawnEvents(s.view, s.proxies))
	}
	return true
}

// Has reports whether a viewer currently sees the view.
func (s *Synchronizer) Has(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[id]
	return ok
}

// Viewers returns the current viewers ordered by id.
func (s *Synchronizer) Viewers() []Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Viewer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.viewer)
	}
	sortViewers(out)
	return out
}

// Flush commits a new proxy snapshot and sends every viewer the proxies that
// changed since its last successful delivery. In delegated mode the viewer
// set is first reconciled with the audience.
func (s *Synchronizer) Flush(proxies []Proxy, location linear.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.proxies = proxies
	s.location = location

	if s.audience != nil {
		s.reconcile()
	}

	for _, p := range s.peers {
		if !p.spawned {
			s.spawn(p)
			continue
		}
		events := UpdateEvents(s.view, proxies, p.last)
		if len(events) == 0 {
			continue
		}
		if s.send(p, events) {
			for _, e := range events {
				p.last[e.Bone] = e.Transform
			}
		}
	}
	return nil
}

func (s *Synchronizer) reconcile() {
	current := make(map[uuid.UUID]Viewer)
	for _, v := range s.audience.Viewers() {
		current[v.ID()] = v
	}
	for id := range s.peers {
		if _, ok := current[id]; !ok {
			s.remove(id)
		}
	}
	for _, v := range current {
		s.add(v)
	}
}

// Sound broadcasts a sound to every spawned viewer.
func (s *Synchronizer) Sound(sound Sound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	event := []Event{SoundEvent(s.view, s.location, sound)}
	for _, p := range s.peers {
		if p.spawned {
			s.send(p, event)
		}
	}
	return nil
}

// Close despawns the view for every viewer. Later calls are no-ops.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id := range s.peers {
		s.remove(id)
	}
}

func (s *Synchronizer) spawn(p *peer) {
	if s.send(p, SpawnEvents(s.view, s.proxies)) {
		p.spawned = true
		p.last = snapshot(s.proxies)
	}
}

func (s *Synchronizer) send(p *peer, events []Event) bool {
	if len(events) == 0 {
		return true
	}
	if err := s.transport.Send(p.viewer, events); err != nil {
		s.logger.Warn("send failed",
			log.Stringer("viewer", p.viewer.ID()),
			log.Int("events", len(events)),
			log.Error(err),
		)
		if s.onFailure != nil {
			s.onFailure(p.viewer, err)
		}
		return false
	}
	return true
}
