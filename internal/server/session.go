package server

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/transport/wire"
)

// session is a viewer connection on either transport.
type session interface {
	wire.Deliverer
	Reply(frames ...wire.Frame) error
	Run(ctx context.Context, handle func(wire.ControlMessage)) error
	Close() error
}

// serveSession runs a connection until it ends, then detaches it from every
// view it watched.
func (s *Server) serveSession(ctx context.Context, c session) {
	s.sessions.Store(c.ID(), c)
	atomic.AddInt64(&s.sessionCount, 1)
	logger := s.logger.With(log.Stringer("session", c.ID()))
	logger.Debug("Session opened")

	watched := make(map[uuid.UUID]struct{})
	err := c.Run(ctx, func(msg wire.ControlMessage) {
		if err := s.handleControl(c, watched, msg); err != nil {
			logger.Debug("Control message rejected", log.String("action", msg.Action), log.Error(err))
			_ = c.Reply(wire.Frame{Type: wire.TypeError, View: msg.View, Message: err.Error()})
		}
	})

	for id := range watched {
		if v, ok := s.registry.View(id); ok {
			_, _ = v.RemoveViewer(c)
		}
	}
	s.sessions.Delete(c.ID())
	atomic.AddInt64(&s.sessionCount, -1)

	if err != nil {
		logger.Debug("Session closed", log.Error(err))
		return
	}
	logger.Debug("Session closed")
}

// handleControl is only called from the session's reader goroutine, so
// watched needs no lock.
func (s *Server) handleControl(c session, watched map[uuid.UUID]struct{}, msg wire.ControlMessage) error {
	switch msg.Action {
	case wire.ActionPing:
		return c.Reply(wire.Frame{Type: wire.TypePong})

	case wire.ActionWatch, wire.ActionUnwatch:
		id, err := uuid.Parse(msg.View)
		if err != nil {
			return errors.Wrap(ErrInvalidMessage, "malformed view id")
		}
		v, ok := s.registry.View(id)
		if !ok {
			return ErrViewNotFound
		}
		if msg.Action == wire.ActionWatch {
			if _, err := v.AddViewer(c); err != nil {
				return err
			}
			watched[id] = struct{}{}
			return nil
		}
		if _, err := v.RemoveViewer(c); err != nil {
			return err
		}
		delete(watched, id)
		return nil

	default:
		return errors.Wrapf(ErrInvalidMessage, "unknown action %q", msg.Action)
	}
}
