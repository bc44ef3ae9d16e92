// Package websocket carries view events to viewers over gorilla/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/viewsync"
	"github.com/zeusync/hephaestus/internal/transport/wire"
)

const writeTimeout = 5 * time.Second

// Conn is one viewer connected over WebSocket.
type Conn struct {
	id     uuid.UUID
	conn   *websocket.Conn
	outbox *wire.Outbox
	closed int32
	logger log.Log
}

var _ wire.Deliverer = (*Conn)(nil)

func NewConn(conn *websocket.Conn, queueSize int, logger log.Log) *Conn {
	id := uuid.New()
	return &Conn{
		id:     id,
		conn:   conn,
		outbox: wire.NewOutbox(queueSize),
		logger: logger.With(log.Stringer("viewer", id), log.String("remote_addr", conn.RemoteAddr().String())),
	}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Deliver queues a batch. It fails with wire.ErrBackpressure instead of
// blocking when the client is not keeping up.
func (c *Conn) Deliver(events []viewsync.Event) error {
	data, err := wire.EncodeEvents(events)
	if err != nil {
		return errors.Wrap(err, "failed to encode events")
	}
	return errors.Wrap(c.outbox.Push(data), "failed to queue events")
}

// Reply queues server frames such as errors.
func (c *Conn) Reply(frames ...wire.Frame) error {
	data, err := wire.EncodeFrames(frames...)
	if err != nil {
		return errors.Wrap(err, "failed to encode reply")
	}
	return errors.Wrap(c.outbox.Push(data), "failed to queue reply")
}

// Run pumps control messages to handle and queued messages to the socket
// until either side fails or ctx is done.
func (c *Conn) Run(ctx context.Context, handle func(wire.ControlMessage)) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer c.outbox.Close()
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return errors.Wrap(err, "failed to read message")
			}
			var msg wire.ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Warn("invalid control message", log.Error(err))
				_ = c.Reply(wire.Frame{Type: wire.TypeError, Message: "invalid control message"})
				continue
			}
			handle(msg)
		}
	})

	g.Go(func() error {
		defer func() { _ = c.Close() }()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-c.outbox.Done():
				return nil
			case data := <-c.outbox.Messages():
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return errors.Wrap(err, "failed to write message")
				}
			}
		}
	})

	err := g.Wait()
	if websocket.IsCloseError(errors.Cause(err), websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

// Close sends a close frame and closes the socket. Later calls are no-ops.
func (c *Conn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.outbox.Close()
	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed")
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
	return c.conn.Close()
}
