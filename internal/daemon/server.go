package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agency-sh/agency/internal/transport"
)

// Handler is a function that handles a JSON-RPC request.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server is the unix socket RPC server. Requests and responses are
// newline-framed JSON-RPC 2.0; push notifications travel over the same
// connection as id-less messages.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]Handler
	clients    *ClientRegistry
	onClose    func(peerID string) // subscription cleanup on disconnect
	mu         sync.RWMutex
	shutdown   bool
	wg         sync.WaitGroup
}

// NewServer creates a new RPC server.
func NewServer(socketPath string, clients *ClientRegistry) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
		clients:    clients,
	}
}

// RegisterHandler registers a handler for a JSON-RPC method.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// OnDisconnect registers a callback invoked with the peer id whenever a
// connection goes away, however it goes away.
func (s *Server) OnDisconnect(f func(peerID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = f
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	socketDir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if err := s.removeStaleSocket(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	go s.acceptLoop(ctx)
	return nil
}

// Stop stops the server and waits briefly for connections to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// removeStaleSocket clears a leftover socket file, refusing to clobber a
// socket another daemon is still serving.
func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return
			}
			fmt.Fprintf(os.Stderr, "accept error: %v\n", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	client := newConnectedClient(conn)
	s.clients.Register(client)
	teardown := func() {
		s.clients.Unregister(client.ID())
		s.mu.RLock()
		onClose := s.onClose
		s.mu.RUnlock()
		if onClose != nil {
			onClose(client.ID())
		}
		_ = conn.Close()
	}
	defer teardown()
	client.OnPushError(func() { _ = conn.Close() })

	ctx = transport.WithPeer(ctx, client)
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req jsonRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := s.writeError(client, nil, -32700, "Parse error", err.Error()); werr != nil {
				return
			}
			continue
		}

		if req.JSONRPC != "2.0" {
			if werr := s.writeError(client, req.ID, -32600, "Invalid request", "jsonrpc field must be '2.0'"); werr != nil {
				return
			}
			continue
		}

		s.mu.RLock()
		handler, ok := s.handlers[req.Method]
		s.mu.RUnlock()
		if !ok {
			if werr := s.writeError(client, req.ID, -32601, "Method not found",
				fmt.Sprintf("method %q is not registered", req.Method)); werr != nil {
				return
			}
			continue
		}

		result, err := handler(ctx, req.Params)
		if err != nil {
			if werr := s.writeError(client, req.ID, -32000, err.Error(), nil); werr != nil {
				return
			}
			continue
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			if werr := s.writeError(client, req.ID, -32603, "Internal error", err.Error()); werr != nil {
				return
			}
			continue
		}

		resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: resultJSON}
		if err := client.writeJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) writeError(client *ConnectedClient, id *json.RawMessage, code int, message string, data any) error {
	return client.writeJSON(jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonRPCError{Code: code, Message: message, Data: data},
	})
}

// JSON-RPC 2.0 request structure.
type jsonRPCRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

// JSON-RPC 2.0 response structure.
type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *jsonRPCError    `json:"error,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

// JSON-RPC 2.0 error structure.
type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
