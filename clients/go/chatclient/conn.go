package chatclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/capstonehub/projectchat/internal/protocol"
)

// ConnState is the lifecycle state of a channel connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateReconnecting
	StateExhausted
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrNotConnected is returned by Send when the connection is not open. The
// connection never buffers application frames across a disconnect; retry
// policy belongs to the caller.
var ErrNotConnected = errors.New("chatclient: not connected")

// ErrReconnectExhausted is reported through OnError after the reconnect
// ceiling is reached.
var ErrReconnectExhausted = errors.New("chatclient: reconnect attempts exhausted")

const (
	keepaliveInterval = 30 * time.Second
	dialTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
)

// ConnHandlers receives connection events. All callbacks are invoked from
// the connection's internal goroutines; the owner serializes them.
type ConnHandlers struct {
	OnOpen  func()
	OnFrame func(raw []byte)
	OnClose func(code int, reason string)
	OnError func(err error)
	OnState func(state ConnState)
}

// Conn maintains one live WebSocket transport for a project channel:
// connect, keepalive, failure detection and reconnect with capped
// exponential backoff. It is owned by exactly one Channel and never shared.
type Conn struct {
	url      string
	logger   zerolog.Logger
	handlers ConnHandlers

	// Overridable for tests.
	dial         func(ctx context.Context, url string) (*websocket.Conn, error)
	delay        func(attempt int) time.Duration
	maxAttempts  int
	keepaliveGap time.Duration

	// writeMu serializes frame writes: the owning Channel and the
	// keepalive goroutine both send, and the transport forbids
	// concurrent writers.
	writeMu sync.Mutex

	mu             sync.Mutex
	state          ConnState
	attempt        int
	ws             *websocket.Conn
	gen            int // connection generation, guards stale callbacks
	reconnectTimer *time.Timer
	closed         bool
}

// NewConn creates a connection manager for the given WebSocket URL. The
// credential is already embedded in the URL; Open performs the handshake.
func NewConn(url string, logger zerolog.Logger, handlers ConnHandlers) *Conn {
	return &Conn{
		url:      url,
		logger:   logger.With().Str("component", "conn").Logger(),
		handlers: handlers,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
			ws, _, err := dialer.DialContext(ctx, url, nil)
			return ws, err
		},
		delay:        Delay,
		maxAttempts:  defaultMaxReconnects,
		keepaliveGap: keepaliveInterval,
		state:        StateConnecting,
	}
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open starts the initial connect. It does not block; the outcome arrives
// through the handlers.
func (c *Conn) Open(ctx context.Context) {
	c.setState(StateConnecting)
	go c.connect(ctx)
}

func (c *Conn) connect(ctx context.Context) {
	ws, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("dial failed")
		if c.handlers.OnError != nil {
			c.handlers.OnError(err)
		}
		c.scheduleReconnect(ctx)
		return
	}

	c.ws = ws
	c.gen++
	gen := c.gen
	c.attempt = 0
	c.mu.Unlock()

	c.setState(StateOpen)
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	go c.readLoop(ctx, ws, gen)
	go c.keepalive(ctx, ws, gen)
}

// Send transmits a pre-encoded frame iff the connection is open.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	if c.state != StateOpen || c.ws == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, frame)
}

// Close tears the connection down with a normal-closure code, cancels any
// pending reconnect and suppresses all future reconnects. Idempotent.
func (c *Conn) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.writeMu.Lock()
		ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		ws.WriteMessage(websocket.CloseMessage, msg)
		c.writeMu.Unlock()
		ws.Close()
	}
	c.setState(StateClosed)
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn, gen int) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			reason := err.Error()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
				reason = ce.Text
			}
			c.handleDisconnect(ctx, gen, code, reason)
			return
		}
		if c.handlers.OnFrame != nil {
			c.handlers.OnFrame(raw)
		}
	}
}

// keepalive sends a protocol-level ping on a fixed interval. A transport
// that cannot accept the ping is treated exactly like a close event, since
// sockets can die without ever delivering one.
func (c *Conn) keepalive(ctx context.Context, ws *websocket.Conn, gen int) {
	frame, _ := protocol.Encode(protocol.Ping())
	ticker := time.NewTicker(c.keepaliveGap)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := c.closed || c.gen != gen
			c.mu.Unlock()
			if stale {
				return
			}
			if err := c.Send(frame); err != nil {
				c.logger.Warn().Err(err).Msg("keepalive failed")
				ws.Close() // the read loop surfaces the disconnect
				return
			}
		}
	}
}

// handleDisconnect routes an unexpected close into the reconnect path.
// Intentional close codes (normal closure, going away) end the connection
// without a reconnect.
func (c *Conn) handleDisconnect(ctx context.Context, gen, code int, reason string) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.mu.Unlock()

	c.logger.Info().Int("code", code).Str("reason", reason).Msg("disconnected")
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(code, reason)
	}

	if code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway {
		c.setState(StateClosed)
		return
	}

	c.scheduleReconnect(ctx)
}

func (c *Conn) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.attempt >= c.maxAttempts {
		c.mu.Unlock()
		c.setState(StateExhausted)
		if c.handlers.OnError != nil {
			c.handlers.OnError(ErrReconnectExhausted)
		}
		return
	}

	wait := c.delay(c.attempt)
	c.attempt++
	attempt := c.attempt
	c.reconnectTimer = time.AfterFunc(wait, func() {
		c.connect(ctx)
	})
	c.mu.Unlock()

	c.setState(StateReconnecting)
	c.logger.Info().
		Int("attempt", attempt).
		Int("max", c.maxAttempts).
		Dur("delay", wait).
		Msg("reconnect scheduled")
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s || (c.closed && s != StateClosed) {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.handlers.OnState != nil {
		c.handlers.OnState(s)
	}
}
