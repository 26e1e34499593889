// Package lifecycle maps lifecycle requests from the operating system layer
// ("start requested", "stop requested", "update requested") onto the traffic
// monitor. Requests arrive as loosely typed intents; anything malformed is
// dropped rather than reported back to the sender.
package lifecycle

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
)

// Intent actions.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionUpdate = "update"
)

// Extras keys carried by ActionUpdate.
const (
	ExtraUpload   = "upload"
	ExtraDownload = "download"
)

// Intent is a lifecycle request. Extras are untyped because they come from
// JSON, environment-style key=value pairs or signals.
type Intent struct {
	Action string         `json:"action"`
	Extras map[string]any `json:"extras,omitempty"`
}

// Controller is the part of the traffic monitor driven by intents.
type Controller interface {
	Start() error
	Stop() error
	Update(upload, download uint64) error
}

// Dispatcher delivers intents to a Controller.
type Dispatcher struct {
	ctrl Controller
}

// NewDispatcher creates a dispatcher for ctrl.
func NewDispatcher(ctrl Controller) *Dispatcher {
	return &Dispatcher{ctrl: ctrl}
}

// Deliver applies in to the controller and reports whether it was acted on.
// Unknown actions are ignored. Missing or unreadable byte counts default to 0.
func (d *Dispatcher) Deliver(in Intent) bool {
	var err error
	switch in.Action {
	case ActionStart:
		err = d.ctrl.Start()
	case ActionStop:
		err = d.ctrl.Stop()
	case ActionUpdate:
		err = d.ctrl.Update(extraUint(in.Extras, ExtraUpload), extraUint(in.Extras, ExtraDownload))
	default:
		slog.Debug("Ignoring lifecycle intent", "action", in.Action)
		return false
	}

	if err != nil {
		slog.Warn("Lifecycle intent failed", "action", in.Action, "error", err)
		return false
	}
	slog.Debug("Lifecycle intent delivered", "action", in.Action)
	return true
}

// DecodeIntent parses a JSON-encoded intent. Malformed input yields the zero
// Intent, which Deliver ignores.
func DecodeIntent(data []byte) Intent {
	var in Intent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		slog.Debug("Dropping malformed lifecycle intent", "error", err)
		return Intent{}
	}
	return in
}

// extraUint reads a non-negative integer extra, returning 0 when the key is
// absent, has the wrong type or is out of range.
func extraUint(extras map[string]any, key string) uint64 {
	v, ok := extras[key]
	if !ok || v == nil {
		return 0
	}

	switch n := v.(type) {
	case uint64:
		return n
	case uint:
		return uint64(n)
	case uint32:
		return uint64(n)
	case int:
		return nonNegative(int64(n))
	case int64:
		return nonNegative(n)
	case int32:
		return nonNegative(int64(n))
	case float64:
		return wholeFloat(n)
	case json.Number:
		if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
			return u
		}
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return wholeFloat(f)
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0
		}
		return u
	default:
		return 0
	}
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func wholeFloat(f float64) uint64 {
	if f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 {
		return 0
	}
	return uint64(f)
}
