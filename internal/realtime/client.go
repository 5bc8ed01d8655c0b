package realtime

import (
	"sync"

	"github.com/gorilla/websocket"

	"dispatchhub/internal/ids"
	"dispatchhub/internal/service"
)

// Client is one authenticated websocket connection. Frames queue in a bounded
// buffer drained by the connection's write goroutine.
type Client struct {
	id       string
	identity service.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewClient wraps conn. conn may be nil for a client that is only observed
// through its queue.
func NewClient(identity service.Identity, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:       ids.New(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Identity() service.Identity {
	return c.identity
}

// Frames exposes the outgoing queue.
func (c *Client) Frames() <-chan []byte {
	return c.send
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) channels() []string {
	return []string{UserChannel(c.identity.ID), RoleChannel(c.identity.Role)}
}

// enqueue reports false when the buffer is full. Frames for a closed client
// are discarded.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
