// Package router is the single entry point for one-shot
// request/response messages arriving from any UI surface or content
// script. Dispatch is a lookup against a fixed handler table; every
// dispatch is timed, bounded by a deadline, and shielded so that no
// handler error, panic, or hang can escape to the caller as anything
// but a well-formed response.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/interview-copilot/backend/internal/perf"
)

// Request is the one-shot message envelope.
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the reply envelope. Exactly one Response is produced per
// Dispatch, always.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Sender identifies where a message came from.
type Sender struct {
	Origin string
	TabID  int
}

// Handler processes one command. A returned error becomes a
// success:false response; it is never rethrown.
type Handler func(ctx context.Context, payload json.RawMessage, from Sender) (any, error)

type Router struct {
	handlers map[string]Handler
	timeout  time.Duration
	perf     *perf.Analyzer
	log      *zap.Logger
}

func New(timeout time.Duration, analyzer *perf.Analyzer, log *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Router{
		handlers: make(map[string]Handler),
		timeout:  timeout,
		perf:     analyzer,
		log:      log,
	}
}

// Handle registers a handler for a command name. Registration happens
// once at startup; the table is fixed afterwards.
func (r *Router) Handle(command string, h Handler) {
	r.handlers[command] = h
}

// Commands returns the registered command names, for diagnostics.
func (r *Router) Commands() []string {
	out := make([]string, 0, len(r.handlers))
	for c := range r.handlers {
		out = append(out, c)
	}
	return out
}

type result struct {
	data    any
	err     error
	details string
}

// Dispatch routes one request and always returns a response: unknown
// commands, handler errors, panics, and deadline overruns all surface
// as success:false rather than propagating.
func (r *Router) Dispatch(ctx context.Context, req Request, from Sender) Response {
	h, ok := r.handlers[req.Command]
	if !ok {
		return Response{
			Success: false,
			Error:   "Unknown command",
			Details: req.Command,
		}
	}

	done := r.perf.StartTiming(req.Command)

	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resCh := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resCh <- result{
					err:     fmt.Errorf("handler panic: %v", rec),
					details: string(debug.Stack()),
				}
			}
		}()
		data, err := h(hctx, req.Payload, from)
		resCh <- result{data: data, err: err}
	}()

	var res result
	select {
	case res = <-resCh:
	case <-hctx.Done():
		res = result{
			err:     fmt.Errorf("handler timed out"),
			details: fmt.Sprintf("%s exceeded %s", req.Command, r.timeout),
		}
	}

	done(res.err)

	if res.err != nil {
		r.log.Warn("command failed",
			zap.String("command", req.Command),
			zap.String("origin", from.Origin),
			zap.Error(res.err))
		return Response{
			Success: false,
			Error:   res.err.Error(),
			Details: res.details,
		}
	}

	return Response{Success: true, Data: res.data}
}
