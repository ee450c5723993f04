// Package transport adapts websocket connections to the event driven model of
// a session.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const closeWriteTimeout = time.Second

// Handlers receive the lifecycle of one connection. They run on the
// connection's own goroutine and stop being called once Close is called.
type Handlers struct {
	OnOpen    func()
	OnError   func(error)
	OnClose   func()
	OnMessage func([]byte)
	OnBinary  func([]byte)
}

type connState int32

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

var lastConnID atomic.Uint64

// Conn owns one websocket connection. It is dialed asynchronously, like a
// browser socket: Open returns immediately and the outcome arrives through
// Handlers.
type Conn struct {
	id       uint64
	address  string
	handlers Handlers

	mu    sync.Mutex
	ws    *websocket.Conn
	state connState

	writeMu   sync.Mutex
	detached  atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// Open starts dialing address.
func Open(ctx context.Context, dialer *websocket.Dialer, address string, header http.Header, handlers Handlers) *Conn {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		id:       lastConnID.Add(1),
		address:  address,
		handlers: handlers,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go c.run(ctx, dialer, header)
	return c
}

func (c *Conn) ID() uint64      { return c.id }
func (c *Conn) Address() string { return c.address }

// Done is closed when the connection goroutine exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

func (c *Conn) run(ctx context.Context, dialer *websocket.Dialer, header http.Header) {
	defer close(c.done)

	dialCtx, span := tracer.Start(ctx, "dial websocket")
	span.SetAttributes(attribute.String("address", c.address), attribute.Int64("conn.id", int64(c.id)))
	ws, _, err := dialer.DialContext(dialCtx, c.address, header)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()

		c.markClosed()
		c.emitError(&Error{Op: "dial", Err: err})
		c.emitClose()
		return
	}
	span.End()

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.state = stateOpen
	c.mu.Unlock()

	if !c.detached.Load() && c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			c.markClosed()
			// Any close frame from the peer is a close, whatever its code.
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !c.detached.Load() {
				c.emitError(&Error{Op: "read", Err: err})
			}
			c.emitClose()
			_ = ws.Close()
			return
		}

		if c.detached.Load() {
			continue
		}
		switch messageType {
		case websocket.TextMessage:
			if c.handlers.OnMessage != nil {
				c.handlers.OnMessage(data)
			}
		case websocket.BinaryMessage:
			if c.handlers.OnBinary != nil {
				c.handlers.OnBinary(data)
			}
		}
	}
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
}

func (c *Conn) emitError(err error) {
	if c.detached.Load() {
		return
	}
	logger.Debug("Websocket error", "conn", c.id, "error", err)
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *Conn) emitClose() {
	if c.detached.Load() {
		return
	}
	if c.handlers.OnClose != nil {
		c.handlers.OnClose()
	}
}

func (c *Conn) SendText(data []byte) error   { return c.write(websocket.TextMessage, data) }
func (c *Conn) SendBinary(data []byte) error { return c.write(websocket.BinaryMessage, data) }

// SendJSON encodes v as a single text frame.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return c.SendText(data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()
	if state != stateOpen || ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteMessage(messageType, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrNotConnected
		}
		return &Error{Op: "write", Err: err}
	}
	return nil
}

// Close detaches all handlers and closes the connection. It is safe to call
// any number of times from any state.
func (c *Conn) Close() error {
	c.detached.Store(true)
	c.cancel()

	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		ws := c.ws
		c.state = stateClosed
		c.mu.Unlock()

		if ws == nil {
			return
		}

		c.writeMu.Lock()
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)
		c.writeMu.Unlock()

		if closeErr := ws.Close(); closeErr != nil {
			err = &Error{Op: "close", Err: closeErr}
		}
	})
	return err
}
