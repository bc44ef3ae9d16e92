// Package server hosts the world: it loads blueprints, spawns the configured
// views, runs the tick loop and accepts viewers over WebSocket and QUIC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/hephaestus/internal/config"
	"github.com/zeusync/hephaestus/internal/core/animation"
	"github.com/zeusync/hephaestus/internal/core/events/bus"
	"github.com/zeusync/hephaestus/internal/core/model"
	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/registry"
	"github.com/zeusync/hephaestus/internal/core/view"
	"github.com/zeusync/hephaestus/internal/core/world"
	"github.com/zeusync/hephaestus/internal/transport/quic"
	"github.com/zeusync/hephaestus/pkg/linear"
)

// Server represents a hephaestus view server
type Server struct {
	config   config.Config
	logger   log.Log
	bus      bus.EventBus
	registry *registry.Registry
	world    *world.World

	httpServer   *http.Server
	httpListener net.Listener
	quicListener *quic.Listener

	sessions     sync.Map // map[uuid.UUID]session
	sessionCount int64    // atomic
	sendFailures uint64   // atomic
	subs         []bus.Subscription
	events       *eventCounter

	running int32 // atomic bool
	closed  int32 // atomic bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Stats contains server statistics
type Stats struct {
	Sessions     int64
	Views        int
	SendFailures uint64
	Events       map[string]uint64
	Bus          bus.EventBusMetrics
	World        world.Stats
	Running      bool
}

// NewServer creates a server around an existing registry and world.
func NewServer(cfg config.Config, logger log.Log, events bus.EventBus, reg *registry.Registry, w *world.World) *Server {
	s := &Server{
		config:   cfg,
		logger:   logger.With(log.String("component", "server")),
		bus:      events,
		registry: reg,
		world:    w,
		events:   newEventCounter(),
	}
	s.subscribe()

	s.logger.Info("Server created",
		log.String("websocket_addr", cfg.WebSocketAddr),
		log.String("quic_addr", cfg.QUICAddr),
		log.Int("tick_rate", cfg.TickRate))
	return s
}

func (s *Server) subscribe() {
	failed, _ := s.bus.Subscribe(bus.TransportFailed, func(e bus.Event) error {
		atomic.AddUint64(&s.sendFailures, 1)
		p := e.Data().(bus.ViewerPayload)
		s.logger.Debug("Viewer send failed",
			log.Stringer("view", p.View),
			log.Stringer("viewer", p.Viewer),
			log.Error(p.Err))
		return nil
	})
	created, _ := s.bus.Subscribe(bus.ViewCreated, func(e bus.Event) error {
		p := e.Data().(bus.ViewPayload)
		s.logger.Info("View created", log.Stringer("view", p.View), log.String("model", p.Model))
		return nil
	})
	destroyed, _ := s.bus.Subscribe(bus.ViewDestroyed, func(e bus.Event) error {
		p := e.Data().(bus.ViewPayload)
		s.logger.Info("View destroyed", log.Stringer("view", p.View), log.String("model", p.Model))
		return nil
	})
	s.subs = append(s.subs, failed, created, destroyed)
	s.bus.AddObserver(s.events)
}

// LoadBlueprints registers every configured blueprint.
func (s *Server) LoadBlueprints() error {
	for _, path := range s.config.Blueprints {
		bp, err := model.LoadFile(path)
		if err != nil {
			return fmt.Errorf("blueprint %s: %w", path, err)
		}
		m, err := bp.Build()
		if err != nil {
			return fmt.Errorf("blueprint %s: %w", path, err)
		}
		if err := s.registry.RegisterModel(m); err != nil {
			return err
		}
	}
	return nil
}

// SpawnPresets creates the configured views.
func (s *Server) SpawnPresets() error {
	for i, preset := range s.config.Views {
		scale := preset.Scale
		if scale == 0 {
			scale = 1
		}
		v, err := s.registry.Spawn(preset.Model, linear.Vec3(preset.Location), scale,
			view.WithPreemptPolicy(parsePolicy(preset.Policy)))
		if err != nil {
			return fmt.Errorf("views[%d]: %w", i, err)
		}
		if preset.Animation != "" {
			if err := v.Queue(preset.Animation, 0); err != nil {
				return fmt.Errorf("views[%d] animation %q: %w", i, preset.Animation, err)
			}
		}
	}
	return nil
}

func parsePolicy(s string) animation.PreemptPolicy {
	switch s {
	case "never":
		return animation.PreemptNever
	case "immediate":
		return animation.PreemptImmediate
	default:
		return animation.PreemptAtLoopBoundary
	}
}

// Start binds the listeners and runs the world in the background.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	if s.config.WebSocketAddr != "" {
		ln, err := net.Listen("tcp", s.config.WebSocketAddr)
		if err != nil {
			atomic.StoreInt32(&s.running, 0)
			s.logger.Error("Failed to create listener", log.Error(err))
			return err
		}
		s.httpListener = ln
		s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	}

	if s.config.QUICAddr != "" {
		tlsConfig, err := quic.GenerateSelfSignedTLS()
		if err == nil {
			s.quicListener, err = quic.Listen(s.config.QUICAddr, tlsConfig, s.config.QueueSize, s.logger)
		}
		if err != nil {
			if s.httpListener != nil {
				_ = s.httpListener.Close()
			}
			atomic.StoreInt32(&s.running, 0)
			s.logger.Error("Failed to create QUIC listener", log.Error(err))
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	s.group = g

	g.Go(func() error { return s.world.Run(ctx) })

	if s.httpServer != nil {
		s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
		g.Go(func() error {
			s.logger.Info("Server listening", log.String("addr", s.httpListener.Addr().String()))
			if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if s.quicListener != nil {
		g.Go(func() error {
			return s.quicListener.Serve(ctx, func(ctx context.Context, c *quic.Conn) {
				s.serveSession(ctx, c)
			})
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return s.shutdownListeners()
	})

	s.logger.Info("Server started successfully")
	return nil
}

func (s *Server) shutdownListeners() error {
	var errs []error
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, s.httpServer.Shutdown(shutdownCtx))
	}
	s.sessions.Range(func(_, value any) bool {
		_ = value.(session).Close()
		return true
	})
	if s.quicListener != nil {
		errs = append(errs, s.quicListener.Close())
	}
	return errors.Join(errs...)
}

// Wait blocks until the background goroutines end.
func (s *Server) Wait() error {
	if s.group == nil {
		return ErrServerNotRunning
	}
	return s.group.Wait()
}

// Stop stops the listeners and the world, then destroys every view.
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")
	s.cancel()
	err := s.group.Wait()

	s.registry.Close()
	for _, sub := range s.subs {
		_ = s.bus.Unsubscribe(sub)
	}
	s.bus.RemoveObserver(s.events)
	atomic.StoreInt32(&s.closed, 1)

	s.logger.Info("Server stopped", log.Uint64("ticks", s.world.Stats().Ticks))
	return err
}

// HTTPAddr returns the bound WebSocket address, nil when disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// QUICAddr returns the bound QUIC address, nil when disabled.
func (s *Server) QUICAddr() net.Addr {
	if s.quicListener == nil {
		return nil
	}
	return s.quicListener.Addr()
}

func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	return Stats{
		Sessions:     atomic.LoadInt64(&s.sessionCount),
		Views:        len(s.registry.Views()),
		SendFailures: atomic.LoadUint64(&s.sendFailures),
		Events:       s.events.snapshot(),
		Bus:          s.bus.GetMetrics(),
		World:        s.world.Stats(),
		Running:      atomic.LoadInt32(&s.running) == 1,
	}
}
