// Package client is a Go viewer for hephaestus servers. It watches views over
// WebSocket and mirrors the bone proxies the server spawns.
package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/transport/wire"
	"github.com/zeusync/hephaestus/pkg/linear"
)

// Client represents a viewer connection
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	// scene holds the proxies spawned for each watched view.
	scene   map[uuid.UUID]map[string]linear.Transform
	sceneMu sync.RWMutex

	handlers   map[string][]FrameHandler
	handlersMu sync.RWMutex

	connected int32 // atomic bool
	closed    int32 // atomic bool
	done      chan struct{}

	config Config
	logger log.Log
}

// Config holds configuration for the client
type Config struct {
	// ServerURL is the WebSocket endpoint, e.g. ws://localhost:8080/ws.
	ServerURL      string
	ConnectTimeout time.Duration
	LogLevel       log.Level
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerURL:      "ws://localhost:8080/ws",
		ConnectTimeout: 10 * time.Second,
		LogLevel:       log.LevelInfo,
	}
}

// FrameHandler is called for every received frame of a registered type.
type FrameHandler func(frame wire.Frame)

// NewClient creates a new viewer client
func NewClient(config Config) *Client {
	return &Client{
		scene:    make(map[uuid.UUID]map[string]linear.Transform),
		handlers: make(map[string][]FrameHandler),
		done:     make(chan struct{}),
		config:   config,
		logger:   log.New(config.LogLevel).With(log.String("component", "client")),
	}
}

// OnFrame registers a handler for frames of the given type ("spawn",
// "update", "despawn", "sound", "error" or "pong").
func (c *Client) OnFrame(frameType string, handler FrameHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[frameType] = append(c.handlers[frameType], handler)
}

// Connect dials the server and starts reading frames.
func (c *Client) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if !atomic.CompareAndSwapInt32(&c.connected, 0, 1) {
		return ErrAlreadyConnected
	}

	c.logger.Info("Connecting to server", log.String("url", c.config.ServerURL))

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(connectCtx, c.config.ServerURL, nil)
	if err != nil {
		atomic.StoreInt32(&c.connected, 0)
		c.logger.Error("Failed to connect to server", log.Error(err))
		return errors.Wrap(err, "failed to dial server")
	}
	c.conn = conn

	go c.readLoop()
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 0 {
				c.logger.Warn("Connection lost", log.Error(err))
			}
			atomic.StoreInt32(&c.connected, 0)
			return
		}
		frames, err := wire.DecodeFrames(data)
		if err != nil {
			c.logger.Warn("Invalid frame batch", log.Error(err))
			continue
		}
		for _, f := range frames {
			c.apply(f)
			c.dispatch(f)
		}
	}
}

func (c *Client) apply(f wire.Frame) {
	id, err := f.ViewID()
	if err != nil {
		return
	}

	c.sceneMu.Lock()
	defer c.sceneMu.Unlock()
	switch f.Type {
	case "spawn", "update":
		bones, ok := c.scene[id]
		if !ok {
			bones = make(map[string]linear.Transform)
			c.scene[id] = bones
		}
		bones[f.Bone] = f.Transform()
	case "despawn":
		delete(c.scene[id], f.Bone)
		if len(c.scene[id]) == 0 {
			delete(c.scene, id)
		}
	}
}

func (c *Client) dispatch(f wire.Frame) {
	c.handlersMu.RLock()
	handlers := c.handlers[f.Type]
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(f)
	}
}

func (c *Client) send(msg wire.ControlMessage) error {
	if atomic.LoadInt32(&c.connected) == 0 {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrap(c.conn.WriteJSON(msg), "failed to send control message")
}

// Watch asks the server to start streaming a view.
func (c *Client) Watch(view uuid.UUID) error {
	return c.send(wire.ControlMessage{Action: wire.ActionWatch, View: view.String()})
}

// Unwatch stops streaming a view. The server answers with despawns.
func (c *Client) Unwatch(view uuid.UUID) error {
	return c.send(wire.ControlMessage{Action: wire.ActionUnwatch, View: view.String()})
}

func (c *Client) Ping() error {
	return c.send(wire.ControlMessage{Action: wire.ActionPing})
}

// Bones returns the last known transforms of a view's proxies.
func (c *Client) Bones(view uuid.UUID) map[string]linear.Transform {
	c.sceneMu.RLock()
	defer c.sceneMu.RUnlock()
	out := make(map[string]linear.Transform, len(c.scene[view]))
	for name, t := range c.scene[view] {
		out[name] = t
	}
	return out
}

func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Done is closed when the read loop ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and waits for the read loop.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	c.logger.Info("Client closed")
	return err
}
