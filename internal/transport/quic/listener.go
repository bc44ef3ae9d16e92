package quic

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
)

// SessionFunc serves one connection until it ends.
type SessionFunc func(ctx context.Context, conn *Conn)

// Listener accepts viewer connections.
type Listener struct {
	listener  *quic.Listener
	queueSize int
	closed    int32
	logger    log.Log
	wg        sync.WaitGroup
}

// Listen starts listening on a UDP address.
func Listen(addr string, tlsConfig *tls.Config, queueSize int, logger log.Log) (*Listener, error) {
	listener, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to start QUIC listener")
	}

	l := &Listener{
		listener:  listener,
		queueSize: queueSize,
		logger:    logger.With(log.String("transport", "quic"), log.String("addr", listener.Addr().String())),
	}
	l.logger.Info("QUIC listener created")
	return l, nil
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve accepts connections until ctx is done or the listener is closed.
// Every connection must open a stream before it is handed to serve.
func (l *Listener) Serve(ctx context.Context, serve SessionFunc) error {
	defer l.wg.Wait()
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if atomic.LoadInt32(&l.closed) == 1 || ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to accept QUIC connection")
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn, serve)
		}()
	}
}

func (l *Listener) handle(ctx context.Context, conn *quic.Conn, serve SessionFunc) {
	acceptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	stream, err := conn.AcceptStream(acceptCtx)
	cancel()
	if err != nil {
		l.logger.Warn("client opened no stream",
			log.String("remote_addr", conn.RemoteAddr().String()),
			log.Error(err))
		_ = conn.CloseWithError(1, "stream expected")
		return
	}

	c := newConn(conn, stream, l.queueSize, l.logger)
	defer func() { _ = c.Close() }()
	serve(ctx, c)
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	l.logger.Info("Closing QUIC listener")
	return l.listener.Close()
}
