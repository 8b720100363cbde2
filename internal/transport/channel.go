package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrDisconnected is returned by Send when no connection is live.
var ErrDisconnected = errors.New("channel disconnected")

// Config holds configuration for the websocket channel.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	Clock             clockwork.Clock
}

// DefaultConfig returns the default channel configuration for a server URL.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		HeartbeatInterval: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    64 * 1024,
		Clock:             clockwork.NewRealClock(),
	}
}

// Channel owns one persistent websocket connection to the crash server. It
// emits inbound messages on Messages until the connection drops; the channel
// never reconnects on its own, the owner re-issues Connect and
// re-authenticates. A heartbeat ping goes out on a fixed interval; a missing
// reply is not treated as failure.
type Channel struct {
	cfg Config

	mu       sync.Mutex
	conn     *websocket.Conn
	msgs     chan []byte
	done     chan struct{}
	teardown *sync.Once
	connID   string
}

func NewChannel(cfg Config) *Channel {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Channel{cfg: cfg}
}

// Connect dials the server, sends the auth handshake and starts the read and
// heartbeat loops. Any previous connection is closed first.
func (c *Channel) Connect(ctx context.Context, creds Credentials) error {
	c.Close()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.msgs = make(chan []byte, 256)
	c.done = make(chan struct{})
	c.teardown = &sync.Once{}
	c.connID = uuid.New().String()
	msgs, done, teardown, connID := c.msgs, c.done, c.teardown, c.connID
	c.mu.Unlock()

	if err := c.Send(authMessage{Type: "auth", Token: creds.Token, InitData: creds.InitData}); err != nil {
		c.closeConn(conn, msgs, done, teardown)
		return fmt.Errorf("send auth: %w", err)
	}

	go c.readPump(conn, msgs, done, teardown, connID)
	go c.heartbeat(done, connID)

	log.Info().Str("connection_id", connID).Str("url", c.cfg.URL).Msg("channel connected")
	return nil
}

// Messages returns the inbound message sequence for the current connection.
// The channel is closed when the connection drops.
func (c *Channel) Messages() <-chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs
}

// Done is closed when the current connection has terminated.
func (c *Channel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Send marshals and writes one outbound message.
func (c *Channel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrDisconnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close releases the underlying connection deterministically.
func (c *Channel) Close() {
	c.mu.Lock()
	conn, msgs, done, teardown := c.conn, c.msgs, c.done, c.teardown
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.closeConn(conn, msgs, done, teardown)
}

func (c *Channel) closeConn(conn *websocket.Conn, msgs chan []byte, done chan struct{}, teardown *sync.Once) {
	teardown.Do(func() {
		close(done)
		conn.Close()
		close(msgs)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	})
}

func (c *Channel) readPump(conn *websocket.Conn, msgs chan []byte, done chan struct{}, teardown *sync.Once, connID string) {
	defer c.closeConn(conn, msgs, done, teardown)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", connID).Msg("unexpected websocket close")
			} else {
				log.Debug().Err(err).Str("connection_id", connID).Msg("websocket closed")
			}
			return
		}
		select {
		case msgs <- message:
		case <-done:
			return
		}
	}
}

func (c *Channel) heartbeat(done chan struct{}, connID string) {
	ticker := c.cfg.Clock.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			if err := c.Send(pingMessage{Type: "ping"}); err != nil {
				// The read pump surfaces the actual disconnect.
				log.Debug().Err(err).Str("connection_id", connID).Msg("heartbeat send failed")
			}
		}
	}
}
