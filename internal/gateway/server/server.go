// Package server provides the UNIX socket server for the traffic service.
package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"

	"github.com/rianphlox/n-vpn/internal/disconnect"
	"github.com/rianphlox/n-vpn/internal/gateway/protocol"
)

// maxMessageSize is the largest accepted message, newline included.
const maxMessageSize = 64 * 1024

// socketMode lets the owner and, when a socket group is set, the group connect.
const socketMode = 0660

// Handler processes requests and intents read from clients.
type Handler interface {
	HandleRequest(req *protocol.Request) *protocol.Response
	HandleIntent(in *protocol.Intent)
}

// Option configures a Server.
type Option func(*Server)

// WithSocketGroup grants a group access to the socket.
func WithSocketGroup(group string) Option {
	return func(s *Server) { s.socketGroup = group }
}

// WithDisconnectSignal delivers activations of sig to subscribed clients.
// An activation fired while nobody is subscribed is held and handed to the
// next client that subscribes.
func WithDisconnectSignal(sig *disconnect.Signal) Option {
	return func(s *Server) { s.disconnect = sig }
}

// Server manages client connections over a UNIX socket.
type Server struct {
	socketPath  string
	socketGroup string
	listener    net.Listener
	handler     Handler
	disconnect  *disconnect.Signal

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	running  bool
	starting bool // Guards against TOCTOU race during Start()
	done     chan struct{}
}

// NewServer creates a new server instance.
// Panics if handler is nil to prevent runtime panic when processing requests.
func NewServer(socketPath string, handler Handler, opts ...Option) *Server {
	if handler == nil {
		panic("server: NewServer called with nil handler")
	}
	s := &Server{
		socketPath: socketPath,
		handler:    handler,
		clients:    make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening for connections.
// Returns an error if the server is already running or starting.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running || s.starting {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.starting = true
	s.mu.Unlock()

	clearStarting := func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}

	// A stale socket from a crashed run would make Listen fail.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		clearStarting()
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		clearStarting()
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	if err := s.setSocketOwnership(); err != nil {
		if closeErr := listener.Close(); closeErr != nil {
			slog.Error("Failed to close listener after ownership error", "error", closeErr)
		}
		clearStarting()
		return fmt.Errorf("failed to set socket ownership: %w", err)
	}

	if err := os.Chmod(s.socketPath, socketMode); err != nil {
		if closeErr := listener.Close(); closeErr != nil {
			slog.Error("Failed to close listener after chmod error", "error", closeErr)
		}
		clearStarting()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.starting = false
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	slog.Info("Server started", "socket", s.socketPath, "group", s.socketGroup)

	go s.acceptLoop(listener)
	if s.disconnect != nil {
		go s.disconnectLoop(done)
	}

	return nil
}

// setSocketOwnership sets the group ownership of the socket file.
func (s *Server) setSocketOwnership() error {
	if s.socketGroup == "" {
		return nil
	}

	grp, err := user.LookupGroup(s.socketGroup)
	if err != nil {
		return fmt.Errorf("group %q not found: %w", s.socketGroup, err)
	}

	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return fmt.Errorf("invalid gid %q: %w", grp.Gid, err)
	}

	// -1 keeps the owner, only the group changes.
	if err := os.Chown(s.socketPath, -1, gid); err != nil {
		return fmt.Errorf("failed to chown socket: %w", err)
	}

	slog.Debug("Socket group ownership set", "group", s.socketGroup, "gid", gid)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	listener := s.listener
	close(s.done)

	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			slog.Error("Failed to close listener", "error", err)
		}
	}

	// Closed outside the lock; a blocked write must not stall other goroutines.
	for _, client := range clients {
		if err := client.Close(); err != nil {
			slog.Warn("Failed to close client connection", "error", err)
		}
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove socket file", "path", s.socketPath, "error", err)
	}

	slog.Info("Server stopped")
	return nil
}

// Broadcast sends an event to all connected clients.
func (s *Server) Broadcast(event *protocol.Event) {
	s.send(s.snapshot(false), event)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// SubscriberCount returns the number of clients subscribed to disconnect requests.
func (s *Server) SubscriberCount() int {
	return len(s.snapshot(true))
}

// snapshot copies the client set so I/O happens outside the lock.
func (s *Server) snapshot(subscribedOnly bool) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		if subscribedOnly && !client.Subscribed() {
			continue
		}
		clients = append(clients, client)
	}
	return clients
}

// send writes event to clients and returns how many received it.
func (s *Server) send(clients []*Client, event *protocol.Event) int {
	delivered := 0
	for _, client := range clients {
		if err := client.SendEvent(event); err != nil {
			slog.Warn("Failed to send event to client", "event", event.Name, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// disconnectLoop hands fired activations to subscribers as they happen.
func (s *Server) disconnectLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-s.disconnect.Ready():
			subscribers := s.snapshot(true)
			if len(subscribers) == 0 {
				slog.Info("Disconnect requested with no subscriber, holding it")
				continue
			}
			s.deliverDisconnect(subscribers)
		}
	}
}

// deliverDisconnect takes the pending activation, if any, and sends it to clients.
func (s *Server) deliverDisconnect(clients []*Client) {
	id, ok := s.disconnect.Take()
	if !ok {
		return
	}

	event, err := protocol.NewEvent(protocol.EventDisconnectRequested,
		protocol.DisconnectRequestedData{ActivationID: id})
	if err != nil {
		slog.Error("Failed to create disconnect event", "error", err)
		return
	}

	delivered := s.send(clients, event)
	slog.Info("Disconnect request delivered", "activation_id", id, "clients", delivered)
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				return
			}
			slog.Error("Accept error", "error", err)
			continue
		}

		client := newClient(conn)
		s.addClient(client)
		go s.handleClient(client)
	}
}

func (s *Server) addClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = struct{}{}
	slog.Debug("Client connected", "clients", len(s.clients))
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, client)
	slog.Debug("Client disconnected", "clients", len(s.clients))
}

func (s *Server) handleClient(client *Client) {
	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("Failed to close client connection", "error", err)
		}
		s.removeClient(client)
	}()

	scanner := bufio.NewScanner(client.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxMessageSize)

	for scanner.Scan() {
		if err := s.handleMessage(client, scanner.Bytes()); err != nil {
			slog.Error("Failed to send response", "error", err)
			return
		}
	}

	err := scanner.Err()
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.Is(err, bufio.ErrTooLong):
		slog.Warn("Client message too large, closing connection", "limit", maxMessageSize)
		resp := protocol.NewErrorResponse("", protocol.ErrCodeInvalidRequest, "message too large")
		if err := client.SendResponse(resp); err != nil {
			slog.Debug("Failed to send error response", "error", err)
		}
	default:
		slog.Error("Read error", "error", err)
	}
}

// handleMessage routes one line. Only a failure to write back is returned.
func (s *Server) handleMessage(client *Client, line []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		slog.Warn("Invalid message", "error", err)
		return client.SendResponse(protocol.NewErrorResponse("", protocol.ErrCodeInvalidRequest, "invalid JSON"))
	}

	switch env.Type {
	case protocol.MessageTypeRequest, "":
		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			slog.Warn("Invalid request", "error", err)
			return client.SendResponse(protocol.NewErrorResponse("", protocol.ErrCodeInvalidRequest, "invalid request"))
		}
		return client.SendResponse(s.handler.HandleRequest(&req))

	case protocol.MessageTypeIntent:
		// Byte counts in extras may exceed float64 precision.
		var in protocol.Intent
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&in); err != nil {
			slog.Debug("Dropping malformed intent", "error", err)
			return nil
		}
		s.handler.HandleIntent(&in)
		return nil

	case protocol.MessageTypeSubscribe:
		client.subscribe()
		slog.Debug("Client subscribed to disconnect requests")
		if s.disconnect != nil && s.disconnect.Pending() {
			s.deliverDisconnect([]*Client{client})
		}
		return nil

	default:
		return client.SendResponse(protocol.NewErrorResponse("", protocol.ErrCodeInvalidRequest,
			fmt.Sprintf("unsupported message type: %s", env.Type)))
	}
}

// Client represents a connected client.
type Client struct {
	conn       net.Conn
	mu         sync.Mutex
	subscribed bool
}

func newClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// SendResponse sends a response to the client.
func (c *Client) SendResponse(resp *protocol.Response) error {
	return c.sendJSON(resp)
}

// SendEvent sends an event to the client.
func (c *Client) SendEvent(event *protocol.Event) error {
	return c.sendJSON(event)
}

// Subscribed reports whether the client asked for disconnect requests.
func (c *Client) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *Client) subscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = true
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) sendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(data)
	return err
}
