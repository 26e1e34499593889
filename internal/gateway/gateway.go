// Package gateway implements the command gateway: the six traffic operations
// exposed to the application layer, dispatched onto the traffic monitor.
package gateway

import (
	"fmt"
	"log/slog"

	"github.com/rianphlox/n-vpn/internal/gateway/protocol"
	"github.com/rianphlox/n-vpn/internal/lifecycle"
	"github.com/rianphlox/n-vpn/internal/monitor"
	"github.com/rianphlox/n-vpn/internal/traffic"
)

// Monitor is the traffic monitor as seen by the gateway.
type Monitor interface {
	Start() error
	Stop() error
	Update(upload, download uint64) error
	Reset() error
	State() (monitor.State, error)
	Data() (traffic.Counters, error)
}

// EventBroadcaster is called to broadcast events to all clients.
type EventBroadcaster func(event *protocol.Event)

// Gateway translates protocol requests and intents into monitor operations.
type Gateway struct {
	monitor     Monitor
	intents     *lifecycle.Dispatcher
	broadcaster EventBroadcaster
}

// New creates a gateway over m. broadcaster may be nil.
func New(m Monitor, broadcaster EventBroadcaster) *Gateway {
	return &Gateway{
		monitor:     m,
		intents:     lifecycle.NewDispatcher(m),
		broadcaster: broadcaster,
	}
}

// HandleRequest processes a request and returns a response.
// Unknown commands are answered with MessageNotImplemented.
func (g *Gateway) HandleRequest(req *protocol.Request) *protocol.Response {
	switch req.Command {
	case protocol.CommandStart:
		return g.handleTransition(req, g.monitor.Start)
	case protocol.CommandStop:
		return g.handleTransition(req, g.monitor.Stop)
	case protocol.CommandUpdate:
		return g.handleUpdate(req)
	case protocol.CommandIsRunning:
		return g.handleIsRunning(req)
	case protocol.CommandGetData:
		return g.handleGetData(req)
	case protocol.CommandReset:
		return g.ack(req, g.monitor.Reset())
	default:
		slog.Debug("Unknown gateway command", "command", req.Command)
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidCommand, protocol.MessageNotImplemented)
	}
}

// HandleIntent delivers a lifecycle intent. Intents are never answered, so
// malformed ones are dropped.
func (g *Gateway) HandleIntent(in *protocol.Intent) {
	if in == nil {
		return
	}
	g.DeliverIntent(lifecycle.Intent{Action: in.Action, Extras: in.Extras})
}

// DeliverIntent applies in and broadcasts any resulting state change.
func (g *Gateway) DeliverIntent(in lifecycle.Intent) {
	before, _ := g.monitor.State()
	if !g.intents.Deliver(in) {
		return
	}
	g.broadcastTransition(before)
}

// handleTransition runs a start or stop and broadcasts the state change, if any.
func (g *Gateway) handleTransition(req *protocol.Request, op func() error) *protocol.Response {
	before, err := g.monitor.State()
	if err != nil {
		return g.ack(req, err)
	}
	if err := op(); err != nil {
		return g.ack(req, err)
	}
	g.broadcastTransition(before)
	return g.ack(req, nil)
}

func (g *Gateway) handleUpdate(req *protocol.Request) *protocol.Response {
	var params protocol.UpdateParams
	if err := protocol.DecodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidParams,
			fmt.Sprintf("invalid update params: %v", err))
	}
	return g.ack(req, g.monitor.Update(params.Upload, params.Download))
}

func (g *Gateway) handleIsRunning(req *protocol.Request) *protocol.Response {
	state, err := g.monitor.State()
	if err != nil {
		return g.internalError(req, err)
	}
	return g.result(req, protocol.IsRunningResult{Running: state.IsRunning()})
}

func (g *Gateway) handleGetData(req *protocol.Request) *protocol.Response {
	counters, err := g.monitor.Data()
	if err != nil {
		return g.internalError(req, err)
	}
	return g.result(req, protocol.NewDataResult(counters))
}

func (g *Gateway) ack(req *protocol.Request, err error) *protocol.Response {
	if err != nil {
		return g.internalError(req, err)
	}
	return g.result(req, nil)
}

func (g *Gateway) result(req *protocol.Request, result interface{}) *protocol.Response {
	resp, err := protocol.NewSuccessResponse(req.ID, result)
	if err != nil {
		return g.internalError(req, err)
	}
	return resp
}

func (g *Gateway) internalError(req *protocol.Request, err error) *protocol.Response {
	slog.Error("Gateway command failed", "command", req.Command, "error", err)
	return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInternalError, err.Error())
}

func (g *Gateway) broadcastTransition(before monitor.State) {
	if g.broadcaster == nil {
		return
	}
	after, err := g.monitor.State()
	if err != nil || after == before {
		return
	}

	event, err := protocol.NewEvent(protocol.EventStateChange, protocol.StateChangeData{
		From: string(before),
		To:   string(after),
	})
	if err != nil {
		slog.Error("Failed to create state change event", "error", err)
		return
	}
	g.broadcaster(event)
}
