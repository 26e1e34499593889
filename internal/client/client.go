// Package client provides the client the application layer uses to drive the
// traffic service and to receive its disconnect requests.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rianphlox/n-vpn/internal/disconnect"
	"github.com/rianphlox/n-vpn/internal/gateway/protocol"
)

// DefaultTimeout for RPC calls made without a deadline.
const DefaultTimeout = 10 * time.Second

var (
	// ErrServiceNotAvailable is returned when the traffic service is not running.
	ErrServiceNotAvailable = errors.New("traffic service not available")
	// ErrClientClosed is returned by calls made on, or interrupted by, a closed client.
	ErrClientClosed = errors.New("client closed")
)

// ResponseError is an error reported by the service.
type ResponseError struct {
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotImplemented reports whether err is the service rejecting an unknown command.
func IsNotImplemented(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr) && respErr.Code == protocol.ErrCodeInvalidCommand
}

// Client is a connection to the traffic service.
type Client struct {
	socketPath string
	conn       net.Conn
	reader     *bufio.Reader
	guard      *disconnect.Guard

	mu                    sync.RWMutex
	onStateChange         func(from, to string)
	onDisconnectRequested func()

	// writeMu serializes NDJSON writes to prevent interleaved JSON lines
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *protocol.Response

	closeChan chan struct{}
	closeOnce sync.Once
}

// Dial connects to the traffic service at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceNotAvailable, err)
	}

	guard, err := disconnect.NewGuard(disconnect.DefaultGuardSize)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		socketPath: socketPath,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		guard:      guard,
		pending:    make(map[string]chan *protocol.Response),
		closeChan:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// IsAvailableAt checks if the traffic service is listening at socketPath.
func IsAvailableAt(socketPath string) bool {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Close closes the connection to the service.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		close(c.closeChan)
		closeErr = c.conn.Close()
	})
	return closeErr
}

// Done is closed when the client is closed or the service goes away.
func (c *Client) Done() <-chan struct{} {
	return c.closeChan
}

// Start begins traffic monitoring.
func (c *Client) Start(ctx context.Context) error {
	_, err := c.sendRequest(ctx, protocol.CommandStart, nil)
	return err
}

// Stop ends traffic monitoring.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.sendRequest(ctx, protocol.CommandStop, nil)
	return err
}

// Update reports the latest absolute byte counts.
func (c *Client) Update(ctx context.Context, upload, download uint64) error {
	_, err := c.sendRequest(ctx, protocol.CommandUpdate, protocol.UpdateParams{Upload: upload, Download: download})
	return err
}

// IsRunning reports whether the service is monitoring a session.
func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	resp, err := c.sendRequest(ctx, protocol.CommandIsRunning, nil)
	if err != nil {
		return false, err
	}
	var result protocol.IsRunningResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return false, fmt.Errorf("failed to parse isRunning result: %w", err)
	}
	return result.Running, nil
}

// GetData returns the session counters.
func (c *Client) GetData(ctx context.Context) (protocol.DataResult, error) {
	resp, err := c.sendRequest(ctx, protocol.CommandGetData, nil)
	if err != nil {
		return protocol.DataResult{}, err
	}
	var result protocol.DataResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return protocol.DataResult{}, fmt.Errorf("failed to parse getData result: %w", err)
	}
	return result, nil
}

// Reset clears the session counters.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.sendRequest(ctx, protocol.CommandReset, nil)
	return err
}

// Call sends an arbitrary command. It exists for commands this client has no
// method for; the service answers unknown ones with a "not implemented" error.
func (c *Client) Call(ctx context.Context, cmd protocol.Command, params interface{}) (json.RawMessage, error) {
	resp, err := c.sendRequest(ctx, cmd, params)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// SendIntent delivers a lifecycle intent. There is no reply.
func (c *Client) SendIntent(action string, extras map[string]any) error {
	return c.write(protocol.NewIntent(action, extras))
}

// OnStateChange registers a callback for monitor state changes.
func (c *Client) OnStateChange(callback func(from, to string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = callback
}

// OnDisconnectRequested subscribes to disconnect requests. callback runs once
// per activation of the disconnect control, including one made before this
// client connected.
func (c *Client) OnDisconnectRequested(callback func()) error {
	c.mu.Lock()
	c.onDisconnectRequested = callback
	c.mu.Unlock()

	if err := c.write(protocol.Envelope{Type: protocol.MessageTypeSubscribe}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

func (c *Client) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) sendRequest(ctx context.Context, cmd protocol.Command, params interface{}) (*protocol.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	id := uuid.New().String()
	req, err := protocol.NewRequest(id, cmd, params)
	if err != nil {
		return nil, err
	}

	respChan := make(chan *protocol.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		if !resp.Success {
			if resp.Error != nil {
				return nil, &ResponseError{Code: resp.Error.Code, Message: resp.Error.Message}
			}
			return nil, errors.New("request failed with unknown error")
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeChan:
		return nil, ErrClientClosed
	}
}

func (c *Client) readLoop() {
	// A dead connection leaves nothing to wait for.
	defer func() { _ = c.Close() }()

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				slog.Error("Read error from traffic service", "error", err)
			}
			return
		}
		c.handleMessage(line)
	}
}

func (c *Client) handleMessage(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("Invalid message from traffic service", "error", err)
		return
	}

	switch env.Type {
	case protocol.MessageTypeResponse:
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("Invalid response from traffic service", "error", err)
			return
		}
		c.handleResponse(&resp)

	case protocol.MessageTypeEvent:
		var event protocol.Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("Invalid event from traffic service", "error", err)
			return
		}
		c.handleEvent(&event)

	default:
		truncated := string(data)
		if len(truncated) > 200 {
			truncated = truncated[:200] + "..."
		}
		slog.Warn("Unknown message type from traffic service", "type", env.Type, "data", truncated)
	}
}

func (c *Client) handleResponse(resp *protocol.Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	c.pendingMu.Unlock()

	if !ok {
		// Responses to unparseable lines carry no ID.
		if resp.Error != nil {
			slog.Warn("Traffic service rejected a message", "code", resp.Error.Code, "message", resp.Error.Message)
		}
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (c *Client) handleEvent(event *protocol.Event) {
	switch event.Name {
	case protocol.EventStateChange:
		var data protocol.StateChangeData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			slog.Warn("Invalid state change event", "error", err)
			return
		}
		c.mu.RLock()
		callback := c.onStateChange
		c.mu.RUnlock()

		if callback != nil {
			callback(data.From, data.To)
		}

	case protocol.EventDisconnectRequested:
		var data protocol.DisconnectRequestedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			slog.Warn("Invalid disconnect event", "error", err)
			return
		}
		if !c.guard.Accept(data.ActivationID) {
			slog.Debug("Ignoring repeated disconnect request", "activation_id", data.ActivationID)
			return
		}

		c.mu.RLock()
		callback := c.onDisconnectRequested
		c.mu.RUnlock()

		slog.Info("Disconnect requested", "activation_id", data.ActivationID)
		if callback != nil {
			callback()
		}

	default:
		slog.Debug("Ignoring traffic service event", "name", event.Name)
	}
}
