package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bidcast/internal/core/domain"
	"bidcast/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnectionState is the lifecycle of the session channel as observed by its
// owner.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
)

var (
	// ErrNotOpen is returned by Send while the channel has no live
	// connection. Frame senders treat it as a dropped frame.
	ErrNotOpen = errors.New("session channel is not open")

	// ErrSendBufferFull is returned when the non-blocking send queue is
	// full. The message is dropped, never queued behind the buffer.
	ErrSendBufferFull = errors.New("session channel send buffer is full")

	errAlreadyOpen = errors.New("session channel already opened")
)

// SessionChannel is the single full-duplex connection carrying every message
// kind for one participant. Role state machines depend on this interface;
// tests substitute fakes.
type SessionChannel interface {
	Open(ctx context.Context, role domain.Role, username string) error
	Send(msg any) error
	OnMessage(fn func(msg any))
	OnStateChange(fn func(state ConnectionState))
	SetUsername(username string)
	State() ConnectionState
	Close() error
}

// ChannelConfig configures the websocket session channel.
type ChannelConfig struct {
	// HubHost is the host:port of the broadcast hub.
	HubHost string
	// Path is the well-known session endpoint path.
	Path string
	// Secure selects wss:// over ws://, mirroring how the surrounding
	// surface was loaded.
	Secure bool
	// ReconnectDelay is the fixed delay between reconnect attempts. No
	// backoff, no jitter: reconnection latency stays bounded.
	ReconnectDelay time.Duration
	// SendBuffer is the outbound queue depth for the non-blocking Send.
	SendBuffer  int
	DialTimeout time.Duration
}

func (c *ChannelConfig) withDefaults() ChannelConfig {
	out := *c
	if out.Path == "" {
		out.Path = "/ws"
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = time.Second
	}
	if out.SendBuffer <= 0 {
		out.SendBuffer = 64
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 10 * time.Second
	}
	return out
}

// URL returns the session endpoint, scheme chosen by the Secure bit.
func (c *ChannelConfig) URL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.HubHost, c.Path)
}

// link is one live websocket connection with its private send queue. A fresh
// link (and queue) is created per connect attempt so messages queued against
// a dead connection are never replayed onto a new one.
type link struct {
	conn  *websocket.Conn
	sendq chan []byte
	stop  chan struct{}

	stopOnce sync.Once
}

// shutdown stops the writer and closes the connection exactly once, whether
// triggered by a read failure or by Close.
func (l *link) shutdown() {
	l.stopOnce.Do(func() {
		close(l.stop)
		l.conn.Close()
	})
}

// Channel implements SessionChannel over gorilla/websocket with automatic
// fixed-delay reconnection. Every successful (re)connect performs a fresh
// join handshake; no session resumption or replay is attempted, the hub's
// join replay rebuilds client state.
type Channel struct {
	cfg    ChannelConfig
	logger *zap.SugaredLogger
	dialer *websocket.Dialer

	onMessage func(any)
	onState   func(ConnectionState)

	mu       sync.Mutex
	state    ConnectionState
	active   *link
	role     domain.Role
	username string
	opened   bool
	closed   bool
	cancel   context.CancelFunc
}

func NewChannel(cfg ChannelConfig, logger *zap.SugaredLogger) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		state:  StateClosed,
	}
}

// OnMessage registers the inbound handler. Messages are delivered decoded,
// in arrival order, from a single goroutine. Must be set before Open.
func (c *Channel) OnMessage(fn func(msg any)) {
	c.onMessage = fn
}

// OnStateChange registers the connection-state observer. Must be set before
// Open.
func (c *Channel) OnStateChange(fn func(state ConnectionState)) {
	c.onState = fn
}

// Open starts the connect/reconnect loop and returns immediately. The join
// handshake declaring the given role and display name is the first message
// sent on every connection this channel establishes.
func (c *Channel) Open(ctx context.Context, role domain.Role, username string) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return errAlreadyOpen
	}
	c.opened = true
	c.role = role
	c.username = username
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// SetUsername rebinds the display name used by future join handshakes.
func (c *Channel) SetUsername(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
}

// State reports the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send enqueues one message for delivery without blocking. While no
// connection is open the message is dropped with ErrNotOpen; when the queue
// is full it is dropped with ErrSendBufferFull.
func (c *Channel) Send(msg any) error {
	c.mu.Lock()
	l := c.active
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || l == nil {
		return ErrNotOpen
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case l.sendq <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tears down the channel. Closing an already-closed channel is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	l := c.active
	c.active = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if l != nil {
		l.shutdown()
	}
	c.setState(StateClosed)
	return nil
}

// run is the connect/reconnect loop: dial, handshake, pump until the
// connection dies, then retry after the fixed delay.
func (c *Channel) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL(), nil)
		if err != nil {
			c.logger.Warnw("dial failed", "url", c.cfg.URL(), "error", err)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.serve(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		c.logger.Infow("session channel lost, reconnecting", "delay", c.cfg.ReconnectDelay)
		if !c.sleep(ctx) {
			return
		}
	}
}

// serve attaches one live connection: enqueues the join handshake first,
// starts the writer, and reads until the connection fails.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	l := &link{
		conn:  conn,
		sendq: make(chan []byte, c.cfg.SendBuffer),
		stop:  make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	join := protocol.NewJoin(c.role, c.username)
	joinData, err := protocol.Encode(join)
	if err != nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	// Fresh queue, so the handshake is guaranteed to be the first write.
	l.sendq <- joinData
	c.active = l
	c.mu.Unlock()

	c.setState(StateOpen)

	go c.writePump(l)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.dispatch(raw)
	}

	c.mu.Lock()
	if c.active == l {
		c.active = nil
	}
	c.mu.Unlock()
	l.shutdown()

	if ctx.Err() == nil {
		c.setState(StateClosed)
	}
}

func (c *Channel) writePump(l *link) {
	for {
		select {
		case data := <-l.sendq:
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				l.conn.Close()
				return
			}
		case <-l.stop:
			return
		}
	}
}

// dispatch decodes one inbound message and hands it to the owner. Unknown
// kinds are skipped; malformed payloads are dropped with a diagnostic and
// never surface to the remote party.
func (c *Channel) dispatch(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			c.logger.Debugw("ignoring unknown message kind", "error", err)
		} else {
			c.logger.Warnw("dropping malformed message", "error", err)
		}
		return
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *Channel) setState(state ConnectionState) {
	c.mu.Lock()
	if c.closed && state != StateClosed {
		c.mu.Unlock()
		return
	}
	changed := c.state != state
	c.state = state
	fn := c.onState
	c.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

// sleep waits out the fixed reconnect delay; false means the context ended.
func (c *Channel) sleep(ctx context.Context) bool {
	select {
	case <-time.After(c.cfg.ReconnectDelay):
		return true
	case <-ctx.Done():
		return false
	}
}
