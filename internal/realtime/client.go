package realtime

import (
	"sync"
	"time"

	"github.com/bunbase/bunbase/internal/rules"
)

// sendBufferSize bounds each client's outgoing channel. A client that
// cannot drain this many pending events is evicted rather than allowed
// to block broadcasts.
const sendBufferSize = 64

// Access is the captured authentication state of a realtime client.
// Key is a stable identity string used by the session-hijack guard;
// anonymous clients capture an empty key.
type Access struct {
	IsAdmin bool
	Info    *rules.AuthInfo
	Key     string
}

// Client is one open SSE connection.
type Client struct {
	ID string

	// Send carries fully formatted SSE frames. It is closed exactly once,
	// by the hub, when the client is removed.
	Send chan []byte

	subscriptions map[Subscription]struct{}
	auth          *Access // nil until the first subscribe call
	lastActivity  time.Time

	// sendMu makes queueing and closing Send mutually exclusive, so a
	// removal racing an in-flight broadcast never sends on a closed
	// channel.
	sendMu sync.Mutex
	closed bool
}

func newClient(id string) *Client {
	return &Client{
		ID:            id,
		Send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[Subscription]struct{}),
		lastActivity:  time.Now(),
	}
}

// trySend queues a frame without blocking. It reports false only when
// the client's buffer is full; frames for an already removed client are
// dropped.
func (c *Client) trySend(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
