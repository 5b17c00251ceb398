package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotConnected is returned when sending without a live connection
var ErrNotConnected = errors.New("not connected to companion app")

// closeTimeout bounds how long Close waits for the receive loop
const closeTimeout = 5 * time.Second

// State is the connection state of a Channel
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler receives inbound requests on the receive loop goroutine. A slow
// handler delays all further inbound messages.
type Handler interface {
	HandleOpenClass(ctx context.Context, msg OpenClass)
	HandleNavigate(ctx context.Context, msg NavigateToSymbol)
}

// Channel owns the TCP connection to the companion app. Writers serialize on
// a single lock held for one complete message; the receive loop is the only
// reader.
type Channel struct {
	addr    string
	timeout time.Duration
	handler Handler

	// mu guards the connection, its writer and the state, and is the write lock
	mu       sync.Mutex
	state    State
	conn     net.Conn
	w        *bufio.Writer
	loopDone chan struct{}

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChannel creates a disconnected channel to the loopback port. timeout
// bounds each connection attempt.
func NewChannel(port int, timeout time.Duration, handler Handler) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		addr:    net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		timeout: timeout,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current connection state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect tries to connect up to retries times, sleeping delay before every
// attempt. On success it starts the receive loop. Exhausting the retries
// returns false; surfacing that is up to the caller.
func (c *Channel) Connect(ctx context.Context, retries int, delay time.Duration) bool {
	if c.closed.Load() {
		return false
	}
	if c.IsConnected() {
		return true
	}

	c.setState(Connecting)

	dialer := &net.Dialer{Timeout: c.timeout}
	for attempt := 1; attempt <= retries; attempt++ {
		select {
		case <-ctx.Done():
			c.setState(Disconnected)
			return false
		case <-time.After(delay):
		}

		conn, err := dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			slog.Debug("Connection attempt to companion app failed",
				"addr", c.addr,
				"attempt", attempt,
				"retries", retries,
				"error", err)
			continue
		}

		c.attach(conn)
		slog.Info("Connected to companion app", "addr", c.addr, "attempt", attempt)
		return true
	}

	c.setState(Disconnected)
	slog.Warn("Could not connect to companion app", "addr", c.addr, "retries", retries)
	return false
}

func (c *Channel) attach(conn net.Conn) {
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.w = bufio.NewWriter(conn)
	c.state = Connected
	c.loopDone = done
	c.mu.Unlock()

	go c.receiveLoop(conn, NewReader(bufio.NewReader(conn)), done)
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// IsConnected probes the connection by writing a heartbeat byte. Without a
// connection it returns false without writing. A failed probe tears the
// connection down before returning, so no later message follows the
// dangling byte.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.state != Connected {
		return false
	}

	err := c.w.WriteByte(byte(KindHeartbeat))
	if err == nil {
		err = c.w.Flush()
	}
	if err != nil {
		c.teardownLocked(err)
		return false
	}
	return true
}

// Send writes one complete message under the write lock
func (c *Channel) Send(msg Message) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.state != Connected {
		return ErrNotConnected
	}

	if _, err = c.w.Write(data); err == nil {
		err = c.w.Flush()
	}
	if err != nil {
		c.teardownLocked(err)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// teardownLocked closes the connection; c.mu must be held
func (c *Channel) teardownLocked(cause error) {
	if c.conn == nil {
		c.state = Disconnected
		return
	}
	if cause != nil {
		slog.Info("Lost connection to companion app", "error", cause)
	}
	c.conn.Close()
	c.conn = nil
	c.w = nil
	c.state = Disconnected
}

func (c *Channel) alive() bool {
	return !c.closed.Load() && c.ctx.Err() == nil
}

func (c *Channel) receiveLoop(conn net.Conn, r *Reader, done chan struct{}) {
	defer close(done)

	for c.alive() && c.IsConnected() {
		if !c.receiveOne(r) {
			break
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.teardownLocked(nil)
	}
	c.mu.Unlock()
	slog.Debug("Receive loop stopped", "addr", c.addr)
}

// receiveOne reads and dispatches a single message. It reports false once the
// connection is gone or the stream lost its message alignment.
func (c *Channel) receiveOne(r *Reader) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Failed to handle message from companion app", "panic", p)
			ok = true
		}
	}()

	msg, err := DecodeInbound(r)
	if err != nil {
		var frameErr *FrameError
		if errors.As(err, &frameErr) && !frameErr.IsFatal() {
			slog.Warn("Skipping message from companion app", "error", err)
			return true
		}
		if c.alive() {
			slog.Debug("Stopped reading from companion app", "error", err)
		}
		return false
	}

	switch m := msg.(type) {
	case Heartbeat:
	case OpenClass:
		slog.Debug("Received open class request", "class", m.ClassName)
		c.handler.HandleOpenClass(c.ctx, m)
	case NavigateToSymbol:
		slog.Debug("Received navigation request", "file", m.RelativePath, "row", m.Row, "column", m.Column)
		c.handler.HandleNavigate(c.ctx, m)
	}
	return true
}

// Close disconnects, stops the receive loop and makes the channel unusable
func (c *Channel) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()

	c.mu.Lock()
	c.teardownLocked(nil)
	done := c.loopDone
	c.mu.Unlock()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(closeTimeout):
		slog.Warn("Receive loop did not stop in time")
	}
}
