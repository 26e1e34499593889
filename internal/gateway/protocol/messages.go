// Package protocol defines the message types exchanged between the traffic
// service and the application layer.
//
// The protocol uses newline-delimited JSON (NDJSON) format over a UNIX socket.
// Each message is a single JSON object terminated by a newline character.
// Requests are answered by exactly one response; intents are fire-and-forget;
// events are pushed by the service at any time.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

// MessageType identifies the type of message.
type MessageType string

const (
	// MessageTypeRequest is sent from client to server.
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse is sent from server to client in reply to a request.
	MessageTypeResponse MessageType = "response"
	// MessageTypeEvent is broadcast from server to all connected clients.
	MessageTypeEvent MessageType = "event"
	// MessageTypeIntent carries a lifecycle intent from client to server. It has no reply.
	MessageTypeIntent MessageType = "intent"
	// MessageTypeSubscribe registers the sender for disconnect requests. It has no reply.
	MessageTypeSubscribe MessageType = "subscribe"
)

// Command identifies the operation to perform.
type Command string

const (
	// CommandStart begins traffic monitoring.
	CommandStart Command = "start"
	// CommandStop ends traffic monitoring.
	CommandStop Command = "stop"
	// CommandUpdate records the latest absolute byte counts.
	CommandUpdate Command = "update"
	// CommandIsRunning queries the monitor lifecycle flag.
	CommandIsRunning Command = "isRunning"
	// CommandGetData reads the session counters.
	CommandGetData Command = "getData"
	// CommandReset clears the session counters.
	CommandReset Command = "reset"
)

// Commands lists every supported command.
var Commands = []Command{
	CommandStart, CommandStop, CommandUpdate, CommandIsRunning, CommandGetData, CommandReset,
}

// EventName identifies the type of event.
type EventName string

const (
	// EventStateChange indicates a monitor lifecycle transition.
	EventStateChange EventName = "state_change"
	// EventDisconnectRequested indicates the user activated the disconnect control.
	EventDisconnectRequested EventName = "disconnect_requested"
)

// Envelope is decoded first to route an incoming message by its type.
// It is also the complete form of a subscribe message.
type Envelope struct {
	Type MessageType `json:"type"`
}

// Request represents a command sent from client to server.
type Request struct {
	// ID is a unique identifier for correlating responses.
	ID string `json:"id"`
	// Type is always "request".
	Type MessageType `json:"type"`
	// Command is the operation to perform.
	Command Command `json:"command"`
	// Params contains command-specific parameters.
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents a reply from server to client.
type Response struct {
	// ID matches the request ID.
	ID string `json:"id"`
	// Type is always "response".
	Type MessageType `json:"type"`
	// Success indicates whether the command succeeded.
	Success bool `json:"success"`
	// Result contains command-specific result data (if Success is true).
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details (if Success is false).
	Error *ErrorInfo `json:"error,omitempty"`
}

// Event represents an asynchronous notification from server to clients.
type Event struct {
	// Type is always "event".
	Type MessageType `json:"type"`
	// Name identifies the event type.
	Name EventName `json:"name"`
	// Data contains event-specific information.
	Data json.RawMessage `json:"data"`
}

// Intent is a lifecycle request from the operating system layer.
type Intent struct {
	// Type is always "intent".
	Type MessageType `json:"type"`
	// Action is "start", "stop" or "update".
	Action string `json:"action"`
	// Extras carries action-specific values such as "upload" and "download".
	Extras map[string]any `json:"extras,omitempty"`
}

// ErrorInfo contains details about an error.
type ErrorInfo struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// UpdateParams contains parameters for the update command. Absent values are 0.
type UpdateParams struct {
	Upload   uint64 `json:"upload"`
	Download uint64 `json:"download"`
}

// IsRunningResult is the result of the isRunning command.
type IsRunningResult struct {
	Running bool `json:"running"`
}

// DataResult is the result of the getData command.
type DataResult struct {
	UploadBytes   uint64 `json:"uploadBytes"`
	DownloadBytes uint64 `json:"downloadBytes"`
	// TotalConnectedTime is in seconds.
	TotalConnectedTime uint64 `json:"totalConnectedTime"`
	// SessionStartTime is in Unix milliseconds, 0 when absent.
	SessionStartTime int64 `json:"sessionStartTime"`
}

// NewDataResult converts session counters to their wire form.
func NewDataResult(c traffic.Counters) DataResult {
	return DataResult{
		UploadBytes:        c.UploadBytes,
		DownloadBytes:      c.DownloadBytes,
		TotalConnectedTime: c.TotalConnectedSeconds,
		SessionStartTime:   traffic.UnixMillis(c.SessionStart),
	}
}

// SessionStart returns the session start as a time, zero when absent.
func (d DataResult) SessionStart() time.Time {
	return traffic.FromUnixMillis(d.SessionStartTime)
}

// StateChangeData contains data for state_change events.
type StateChangeData struct {
	// From is the previous state.
	From string `json:"from"`
	// To is the new state.
	To string `json:"to"`
}

// DisconnectRequestedData contains data for disconnect_requested events.
type DisconnectRequestedData struct {
	// ActivationID identifies one press of the disconnect control.
	ActivationID string `json:"activation_id"`
}

// NewRequest creates a new request with the given command and parameters.
// Nil params are omitted from the message.
func NewRequest(id string, cmd Command, params interface{}) (*Request, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}
	return &Request{
		ID:      id,
		Type:    MessageTypeRequest,
		Command: cmd,
		Params:  paramsJSON,
	}, nil
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result interface{}) (*Response, error) {
	var resultJSON json.RawMessage
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		ID:      id,
		Type:    MessageTypeResponse,
		Success: true,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code string, message string) *Response {
	return &Response{
		ID:      id,
		Type:    MessageTypeResponse,
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewEvent creates a new event with the given name and data.
func NewEvent(name EventName, data interface{}) (*Event, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type: MessageTypeEvent,
		Name: name,
		Data: dataJSON,
	}, nil
}

// NewIntent creates an intent message.
func NewIntent(action string, extras map[string]any) *Intent {
	return &Intent{
		Type:   MessageTypeIntent,
		Action: action,
		Extras: extras,
	}
}

// IsKnownCommand reports whether cmd is one of Commands.
func IsKnownCommand(cmd Command) bool {
	for _, c := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// DecodeParams unmarshals request params into v. Empty or null params leave v untouched.
func DecodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
