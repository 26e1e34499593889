// Package httpapi exposes the command gateway over loopback HTTP for callers
// that cannot speak the socket protocol.
//
//	POST /api/v1/traffic/{command}   body: optional params, reply: protocol.Response
//	POST /api/v1/intents             body: lifecycle intent, reply: 202
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rianphlox/n-vpn/internal/gateway/protocol"
)

const (
	apiPrefix         = "/api/v1"
	maxBodySize       = 64 * 1024
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second

	// RequestIDHeader carries the caller's request ID; one is generated when absent.
	RequestIDHeader = "X-Request-ID"
)

// Handler processes gateway requests and intents.
type Handler interface {
	HandleRequest(req *protocol.Request) *protocol.Response
	HandleIntent(in *protocol.Intent)
}

// API is the HTTP binding of a gateway Handler.
type API struct {
	handler Handler
	router  *mux.Router
}

// New builds the routes for handler.
func New(handler Handler) *API {
	a := &API{handler: handler, router: mux.NewRouter()}

	// Registered on the root router so a method mismatch answers 405.
	a.router.HandleFunc(apiPrefix+"/traffic/{command}", a.command).Methods(http.MethodPost)
	a.router.HandleFunc(apiPrefix+"/intents", a.intent).Methods(http.MethodPost)

	return a
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (a *API) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is like ListenAndServe on an existing listener.
func (a *API) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP API: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("HTTP API stopped")
	return nil
}

func (a *API) command(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.New().String()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeResponse(w, protocol.NewErrorResponse(id, protocol.ErrCodeInvalidRequest, "failed to read body"))
		return
	}

	req := &protocol.Request{
		ID:      id,
		Type:    protocol.MessageTypeRequest,
		Command: protocol.Command(mux.Vars(r)["command"]),
		Params:  body,
	}
	writeResponse(w, a.handler.HandleRequest(req))
}

func (a *API) intent(w http.ResponseWriter, r *http.Request) {
	var in protocol.Intent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		// Intents are fire-and-forget; a malformed one is dropped.
		slog.Debug("Dropping malformed HTTP intent", "error", err)
		w.WriteHeader(http.StatusAccepted)
		return
	}
	in.Type = protocol.MessageTypeIntent
	a.handler.HandleIntent(&in)
	w.WriteHeader(http.StatusAccepted)
}

// statusCode maps a protocol response onto an HTTP status.
func statusCode(resp *protocol.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Code {
	case protocol.ErrCodeInvalidCommand:
		return http.StatusNotImplemented
	case protocol.ErrCodeInvalidRequest, protocol.ErrCodeInvalidParams:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, resp *protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(RequestIDHeader, resp.ID)
	w.WriteHeader(statusCode(resp))
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("Failed to write HTTP response", "error", err)
	}
}
