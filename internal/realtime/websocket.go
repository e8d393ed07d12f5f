package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultSendBuffer is the per-connection queue used when WSOptions leaves it unset.
const DefaultSendBuffer = 64

// ErrQueueFull is returned by Send when the writer has fallen behind. The
// message is dropped and the connection stays open.
var ErrQueueFull = fmt.Errorf("%w: send queue full", ErrRecipientUnreachable)

// WSOptions tunes a websocket channel.
type WSOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	MaxReadBytes int64
}

func (o WSOptions) withDefaults() WSOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxReadBytes <= 0 {
		o.MaxReadBytes = 4096
	}
	return o
}

// WSChannel adapts a gorilla websocket connection to Channel. Writes go through a
// bounded queue drained by a single writer goroutine, so Send never blocks.
type WSChannel struct {
	id        string
	conn      *websocket.Conn
	opts      WSOptions
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSChannel wraps an upgraded connection.
func NewWSChannel(conn *websocket.Conn, opts WSOptions) *WSChannel {
	opts = opts.withDefaults()
	return &WSChannel{
		id:   uuid.NewString(),
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// ID implements Channel.
func (c *WSChannel) ID() string { return c.id }

// Done implements Channel.
func (c *WSChannel) Done() <-chan struct{} { return c.done }

// Send queues msg for the writer goroutine. When the queue is full msg is
// dropped; a stalled peer is closed by the write deadline instead.
func (c *WSChannel) Send(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return ErrQueueFull
	}
}

// Close implements Channel. It is safe to call more than once.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

// Run pumps the connection until the peer disconnects or the channel is closed.
// It must be called exactly once, from the goroutine that owns the connection.
func (c *WSChannel) Run() {
	go c.writeLoop()
	c.readLoop()
	_ = c.Close()
}

// readLoop discards client frames; it exists to observe pongs and disconnects.
func (c *WSChannel) readLoop() {
	c.conn.SetReadLimit(c.opts.MaxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSChannel) writeLoop() {
	ticker := time.NewTicker(c.opts.PongTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
