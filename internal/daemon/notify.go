package daemon

import (
	"crypto/rand"
	"encoding/json"
	"net"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agency-sh/agency/internal/transport"
)

// maxOutbox bounds the per-client outgoing queue. Focus updates coalesce
// well before this is reached; the bound protects against a client that
// stops reading entirely.
const maxOutbox = 64

// ConnectedClient is one accepted connection. It owns the only goroutine
// allowed to write to the socket: both RPC responses and push
// notifications are serialized through writeJSON, and pushes are staged
// in a bounded queue so enqueueing never blocks the caller.
type ConnectedClient struct {
	id   string
	conn net.Conn

	writeMu sync.Mutex // serializes all socket writes

	mu      sync.Mutex // guards queue/closed
	queue   []transport.Notification
	wake    chan struct{}
	closed  bool
	onError func() // invoked once when a push write fails
}

func newConnectedClient(conn net.Conn) *ConnectedClient {
	c := &ConnectedClient{
		id:   ulid.MustNew(ulid.Now(), rand.Reader).String(),
		conn: conn,
		wake: make(chan struct{}, 1),
	}
	go c.drainLoop()
	return c
}

// ID returns the connection's unique identifier.
func (c *ConnectedClient) ID() string { return c.id }

// Push queues a notification for delivery. Never blocks: a notification
// with a coalesce key replaces a queued one with the same key, and when
// the queue is full the oldest coalescible entry is evicted. Keyless
// notifications are never dropped.
func (c *ConnectedClient) Push(n transport.Notification) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if n.Coalesce != "" {
		for i := range c.queue {
			if c.queue[i].Coalesce == n.Coalesce {
				c.queue[i] = n
				c.mu.Unlock()
				c.signal()
				return
			}
		}
	}
	if len(c.queue) >= maxOutbox {
		for i := range c.queue {
			if c.queue[i].Coalesce != "" {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
	}
	c.queue = append(c.queue, n)
	c.mu.Unlock()
	c.signal()
}

func (c *ConnectedClient) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *ConnectedClient) drainLoop() {
	for range c.wake {
		for {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			n := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			payload := map[string]any{
				"jsonrpc": "2.0",
				"method":  n.Method,
				"params":  n.Params,
			}
			if err := c.writeJSON(payload); err != nil {
				c.mu.Lock()
				cb := c.onError
				c.onError = nil
				c.mu.Unlock()
				if cb != nil {
					cb()
				}
				return
			}
		}
	}
}

// writeJSON marshals v and writes it newline-framed. Shared by the RPC
// response path and the push path; the mutex keeps frames intact.
func (c *ConnectedClient) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// OnPushError registers a callback invoked once if delivering a push
// fails. The server uses it to tear the connection down.
func (c *ConnectedClient) OnPushError(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = f
}

// close stops the drain loop. Safe to call more than once. The wake
// channel is never closed: a Push racing close may still signal after
// the closed flag is set, and a send on a closed channel would panic.
// The drain loop exits by observing the flag instead.
func (c *ConnectedClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()
	c.signal()
}

// ClientRegistry tracks connected clients by connection id.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*ConnectedClient
}

// NewClientRegistry creates a new client registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*ConnectedClient)}
}

// Register adds a client to the registry.
func (r *ClientRegistry) Register(c *ConnectedClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
}

// Unregister removes a client and stops its delivery goroutine.
func (r *ClientRegistry) Unregister(id string) {
	r.mu.Lock()
	c := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if c != nil {
		c.close()
	}
}

// Len reports the number of connected clients.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
