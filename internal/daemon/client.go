package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// IncomingNotification is a server push received on a client connection.
type IncomingNotification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Client represents a client connection to the daemon.
//
// One connection carries both request/response traffic and server pushes.
// A background reader splits the stream: messages with an id resolve
// pending calls, messages without one land on the Notifications channel.
type Client struct {
	conn   net.Conn
	writer *bufio.Writer

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan clientResponse
	readErr error

	// Pushes are staged in an inbox rather than written straight to the
	// notifications channel, so a slow consumer never makes the read
	// loop drop anything: focus pushes for the same TUI coalesce
	// latest-wins, keyless pushes queue without limit.
	inboxMu   sync.Mutex
	inbox     []queuedPush
	inboxDone bool
	wake      chan struct{}

	notifications chan IncomingNotification
	done          chan struct{}
}

type clientResponse struct {
	result json.RawMessage
	err    error
}

type queuedPush struct {
	note     IncomingNotification
	coalesce string
}

// NewClient creates a new client connected to the daemon socket.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c := &Client{
		conn:          conn,
		writer:        bufio.NewWriter(conn),
		nextID:        1,
		pending:       make(map[int64]chan clientResponse),
		wake:          make(chan struct{}, 1),
		notifications: make(chan IncomingNotification),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	go c.pumpLoop()
	return c, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Notifications returns the channel of server pushes. The channel is
// closed when the connection drops, after any still-queued pushes have
// been delivered. While the consumer is busy, focus pushes for the same
// TUI coalesce so the final value is what arrives; gone pushes are
// never discarded.
func (c *Client) Notifications() <-chan IncomingNotification {
	return c.notifications
}

// Done is closed when the connection has been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop stopped, once Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Call makes a JSON-RPC call to the daemon and waits for the response.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, err
	}
	id := c.nextID
	c.nextID++
	ch := make(chan clientResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	request := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      id,
	}
	requestJSON, err := json.Marshal(request)
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.writeMu.Lock()
	_, err = c.writer.Write(requestJSON)
	if err == nil {
		err = c.writer.WriteByte('\n')
	}
	if err == nil {
		err = c.writer.Flush()
	}
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case resp := <-ch:
		return resp.result, resp.err
	}
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop reads every line from the connection and routes it.
func (c *Client) readLoop() {
	reader := bufio.NewReader(c.conn)
	var loopErr error
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			loopErr = err
			break
		}

		var msg struct {
			JSONRPC string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
			Result  json.RawMessage `json:"result"`
			Error   *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Data    any    `json:"data"`
			} `json:"error"`
			ID *int64 `json:"id"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			// Skip malformed lines rather than killing the connection
			continue
		}

		if msg.ID == nil {
			c.enqueuePush(IncomingNotification{Method: msg.Method, Params: msg.Params})
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}

		if msg.Error != nil {
			ch <- clientResponse{err: fmt.Errorf("RPC error %d: %s", msg.Error.Code, msg.Error.Message)}
		} else {
			ch <- clientResponse{result: msg.Result}
		}
	}

	// Tear down: fail pending calls, then let the pump drain what is
	// left of the inbox and close the notification stream.
	c.mu.Lock()
	c.readErr = fmt.Errorf("daemon connection closed: %w", loopErr)
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- clientResponse{err: c.readErr}
	}
	c.mu.Unlock()
	close(c.done)

	c.inboxMu.Lock()
	c.inboxDone = true
	c.inboxMu.Unlock()
	c.signalPump()
}

// enqueuePush stages a server push for delivery. A focus push replaces a
// queued focus push for the same TUI; anything else is appended.
func (c *Client) enqueuePush(n IncomingNotification) {
	key := pushCoalesceKey(n)
	c.inboxMu.Lock()
	if key != "" {
		for i := range c.inbox {
			if c.inbox[i].coalesce == key {
				c.inbox[i].note = n
				c.inboxMu.Unlock()
				return
			}
		}
	}
	c.inbox = append(c.inbox, queuedPush{note: n, coalesce: key})
	c.inboxMu.Unlock()
	c.signalPump()
}

// pushCoalesceKey mirrors the daemon's outbox keying on the receiving
// side: focus pushes coalesce per target TUI, everything else is keyless.
func pushCoalesceKey(n IncomingNotification) string {
	if n.Method != MethodFocus {
		return ""
	}
	var p struct {
		Project string `json:"project"`
		TuiID   int    `json:"tui_id"`
	}
	if err := json.Unmarshal(n.Params, &p); err != nil {
		return ""
	}
	return fmt.Sprintf("focus:%s/%d", p.Project, p.TuiID)
}

func (c *Client) signalPump() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pumpLoop hands queued pushes to the consumer. Sends block on the
// consumer, never on the read loop.
func (c *Client) pumpLoop() {
	for {
		c.inboxMu.Lock()
		for len(c.inbox) == 0 {
			done := c.inboxDone
			c.inboxMu.Unlock()
			if done {
				close(c.notifications)
				return
			}
			<-c.wake
			c.inboxMu.Lock()
		}
		item := c.inbox[0]
		c.inbox = c.inbox[1:]
		c.inboxMu.Unlock()
		c.notifications <- item.note
	}
}

// WaitForSocket waits for the socket to become available, polling until
// a connection succeeds or the timeout elapses.
func WaitForSocket(socketPath string, timeout time.Duration) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for daemon socket")
		case <-ticker.C:
			client, err := NewClient(socketPath)
			if err == nil {
				return client, nil
			}
			// Socket not ready yet, continue waiting
		}
	}
}
