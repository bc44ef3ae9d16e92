package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
)

// SessionFunc serves one connection until it ends.
type SessionFunc func(ctx context.Context, conn *Conn)

// Handler upgrades requests and hands each connection to a session.
type Handler struct {
	upgrader  websocket.Upgrader
	queueSize int
	logger    log.Log
	serve     SessionFunc
}

func NewHandler(queueSize int, logger log.Log, serve SessionFunc) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		queueSize: queueSize,
		logger:    logger.With(log.String("transport", "websocket")),
		serve:     serve,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}
	c := NewConn(conn, h.queueSize, h.logger)
	defer func() { _ = c.Close() }()
	h.serve(r.Context(), c)
}
