package duplex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/RitamPal26/ScribeAI/internal/protocol"
)

// ErrNotConnected is returned immediately when a request is attempted while
// the channel is disconnected. Requests are never silently queued.
var ErrNotConnected = errors.New("channel is not connected")

// ErrConnectionLost fails pending requests when the link drops before their
// ack arrives.
var ErrConnectionLost = errors.New("connection lost before acknowledgement")

// State is the observable connection state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// StateListener observes connection state transitions.
type StateListener func(State)

// EventHandler receives one server-pushed event frame.
type EventHandler func(frame *protocol.Frame)

// Config contains channel configuration.
type Config struct {
	URL               string
	Token             string
	MaxReconnects     int
	ReconnectBackoff  time.Duration
	MaxReconnectDelay time.Duration
}

// Channel is a duplex client connection. It is constructed disconnected;
// Connect establishes the link on demand.
type Channel struct {
	logger *slog.Logger
	config Config
	dialer *websocket.Dialer

	mu          sync.Mutex
	conn        *websocket.Conn
	writeMu     sync.Mutex // gorilla permits one concurrent writer
	state       State
	closed      bool
	generation  int // invalidates stale read loops after reconnect
	pending     map[string]chan *protocol.Frame
	subscribers map[string]map[int]EventHandler
	nextSubID   int
	listeners   []StateListener
}

// NewChannel creates a disconnected channel.
func NewChannel(logger *slog.Logger, config Config) *Channel {
	if config.ReconnectBackoff <= 0 {
		config.ReconnectBackoff = time.Second
	}
	if config.MaxReconnectDelay < config.ReconnectBackoff {
		config.MaxReconnectDelay = 30 * time.Second
	}

	return &Channel{
		logger: logger,
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		state:       StateDisconnected,
		pending:     make(map[string]chan *protocol.Frame),
		subscribers: make(map[string]map[int]EventHandler),
	}
}

// Connect establishes the WebSocket connection. A channel that is already
// connected returns nil.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("channel is closed")
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.generation++
	generation := c.generation
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.readLoop(conn, generation)

	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.config.URL, err)
	}
	return conn, nil
}

// Close tears the channel down permanently, failing any pending requests.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a listener for connection state transitions.
func (c *Channel) OnStateChange(listener StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Request sends one request and blocks until its ack arrives or the context
// ends. A disconnected channel fails immediately with ErrNotConnected.
// A failed ack is returned as the *protocol.AckError it carries.
func (c *Channel) Request(ctx context.Context, action string, payload interface{}) (*protocol.Frame, error) {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn

	id := uuid.NewString()
	ackCh := make(chan *protocol.Frame, 1)
	c.pending[id] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	frame, err := protocol.NewRequest(id, action, payload)
	if err != nil {
		return nil, err
	}

	if err := c.writeFrame(conn, frame); err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", action, err)
	}

	select {
	case ack := <-ackCh:
		if ack == nil {
			return nil, ErrConnectionLost
		}
		if !ack.OK {
			return ack, ack.Error
		}
		return ack, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers a handler for a server event. The returned function
// removes the subscription.
func (c *Channel) Subscribe(event string, handler EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers, ok := c.subscribers[event]
	if !ok {
		handlers = make(map[int]EventHandler)
		c.subscribers[event] = handlers
	}

	id := c.nextSubID
	c.nextSubID++
	handlers[id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if handlers, ok := c.subscribers[event]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(c.subscribers, event)
			}
		}
	}
}

func (c *Channel) writeFrame(conn *websocket.Conn, frame *protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// readLoop consumes frames until the connection drops, routing acks to
// their waiting requests and events to subscribers.
func (c *Channel) readLoop(conn *websocket.Conn, generation int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, generation, err)
			return
		}

		frame, err := protocol.ParseFrame(data)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", slog.String("error", err.Error()))
			continue
		}

		switch frame.Type {
		case protocol.FrameAck:
			c.mu.Lock()
			ackCh, ok := c.pending[frame.ID]
			c.mu.Unlock()
			if ok {
				ackCh <- frame
			}

		case protocol.FrameEvent:
			c.dispatchEvent(frame)
		}
	}
}

func (c *Channel) dispatchEvent(frame *protocol.Frame) {
	c.mu.Lock()
	handlers := make([]EventHandler, 0, len(c.subscribers[frame.Event]))
	for _, handler := range c.subscribers[frame.Event] {
		handlers = append(handlers, handler)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(frame)
	}
}

// handleDrop fails pending requests and starts bounded reconnection, unless
// the channel was closed deliberately or a newer connection took over.
func (c *Channel) handleDrop(conn *websocket.Conn, generation int, cause error) {
	conn.Close()

	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPendingLocked()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.logger.Warn("Connection lost, attempting to reconnect",
		slog.String("cause", cause.Error()),
	)

	delay := c.config.ReconnectBackoff
	for attempt := 1; attempt <= c.config.MaxReconnects; attempt++ {
		time.Sleep(delay)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		newConn, err := c.dial(context.Background())
		if err == nil {
			c.mu.Lock()
			c.conn = newConn
			c.generation++
			newGeneration := c.generation
			c.setStateLocked(StateConnected)
			c.mu.Unlock()

			c.logger.Info("Reconnected", slog.Int("attempt", attempt))
			go c.readLoop(newConn, newGeneration)
			return
		}

		c.logger.Warn("Reconnect attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.MaxReconnects),
			slog.String("error", err.Error()),
		)

		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.logger.Error("Reconnection attempts exhausted")
}

// failPendingLocked unblocks every in-flight request with a lost-connection
// failure. Callers must hold c.mu.
func (c *Channel) failPendingLocked() {
	for id, ackCh := range c.pending {
		select {
		case ackCh <- nil:
		default:
		}
		delete(c.pending, id)
	}
}

// setStateLocked transitions the state and notifies listeners. Callers must
// hold c.mu; listeners run on their own goroutine so they may call back in.
func (c *Channel) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state

	listeners := make([]StateListener, len(c.listeners))
	copy(listeners, c.listeners)
	go func() {
		for _, listener := range listeners {
			listener(state)
		}
	}()
}
