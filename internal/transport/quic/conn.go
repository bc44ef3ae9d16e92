// Package quic carries view events to viewers over quic-go. A client opens
// one bidirectional stream and both sides exchange newline-delimited JSON.
package quic

import (
	"bufio"
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/viewsync"
	"github.com/zeusync/hephaestus/internal/transport/wire"
)

const maxLine = 64 * 1024

// Conn is one viewer connected over QUIC.
type Conn struct {
	id     uuid.UUID
	conn   *quic.Conn
	stream *quic.Stream
	outbox *wire.Outbox
	closed int32
	logger log.Log
}

var _ wire.Deliverer = (*Conn)(nil)

func newConn(conn *quic.Conn, stream *quic.Stream, queueSize int, logger log.Log) *Conn {
	id := uuid.New()
	return &Conn{
		id:     id,
		conn:   conn,
		stream: stream,
		outbox: wire.NewOutbox(queueSize),
		logger: logger.With(log.Stringer("viewer", id), log.String("remote_addr", conn.RemoteAddr().String())),
	}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Deliver queues a batch as one line.
func (c *Conn) Deliver(events []viewsync.Event) error {
	data, err := wire.EncodeEvents(events)
	if err != nil {
		return errors.Wrap(err, "failed to encode events")
	}
	return errors.Wrap(c.outbox.Push(data), "failed to queue events")
}

func (c *Conn) Reply(frames ...wire.Frame) error {
	data, err := wire.EncodeFrames(frames...)
	if err != nil {
		return errors.Wrap(err, "failed to encode reply")
	}
	return errors.Wrap(c.outbox.Push(data), "failed to queue reply")
}

// Run pumps control lines to handle and queued messages to the stream until
// either side fails or ctx is done.
func (c *Conn) Run(ctx context.Context, handle func(wire.ControlMessage)) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer c.outbox.Close()
		scanner := bufio.NewScanner(c.stream)
		scanner.Buffer(make([]byte, 0, 4096), maxLine)
		for scanner.Scan() {
			var msg wire.ControlMessage
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				c.logger.Warn("invalid control message", log.Error(err))
				_ = c.Reply(wire.Frame{Type: wire.TypeError, Message: "invalid control message"})
				continue
			}
			handle(msg)
		}
		return errors.Wrap(scanner.Err(), "failed to read stream")
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
				if _, err := c.stream.Write(append(data, '\n')); err != nil {
					return errors.Wrap(err, "failed to write stream")
				}
			}
		}
	})

	return g.Wait()
}

// Close closes the stream and the connection. Later calls are no-ops.
func (c *Conn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.outbox.Close()
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "connection closed")
}
