// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package handler provides a method multiplexer for serving requests received
// on an autocomplete connection, and adapters from typed functions to the
// Func type it dispatches to.
//
// Parameters are decoded from the request as JSON into a value of type P,
// rejecting unknown fields. Results of type R are encoded as JSON.
package handler

import (
	"context"
	"fmt"
	"log/slog"

	autocomplete "github.com/doriath/command-autocomplete-protocol"
)

// A Func handles a single request and returns its result or an error. An
// error that is not an *autocomplete.Error is reported with code INTERNAL.
type Func func(ctx context.Context, call *autocomplete.Call) (any, error)

// callContextKey is a context key for the call passed to a handler.
type callContextKey struct{}

// ContextCall returns the call being handled, or nil if ctx has no associated
// call. The context passed to a Func by a Mux has this value.
func ContextCall(ctx context.Context) *autocomplete.Call {
	if v := ctx.Value(callContextKey{}); v != nil {
		return v.(*autocomplete.Call)
	}
	return nil
}

// ParamResultError adapts a function f that accepts parameters of type P and
// returns a result of type R and an error, to a Func.
func ParamResultError[P, R any](f func(context.Context, P) (R, error)) Func {
	return func(ctx context.Context, call *autocomplete.Call) (any, error) {
		var p P
		if err := decodeParams(call, &p); err != nil {
			return nil, err
		}
		r, err := f(ctx, p)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// ParamResult adapts a function f that accepts parameters of type P and
// returns a result of type R without error, to a Func.
func ParamResult[P, R any](f func(context.Context, P) R) Func {
	return func(ctx context.Context, call *autocomplete.Call) (any, error) {
		var p P
		if err := decodeParams(call, &p); err != nil {
			return nil, err
		}
		return f(ctx, p), nil
	}
}

// ResultError adapts a function f that ignores its parameters and returns a
// result of type R and an error, to a Func.
func ResultError[R any](f func(context.Context) (R, error)) Func {
	return func(ctx context.Context, _ *autocomplete.Call) (any, error) {
		r, err := f(ctx)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

func decodeParams(call *autocomplete.Call, v any) error {
	if err := call.DecodeParams(v); err != nil {
		return autocomplete.InvalidRequest("invalid params for %s request: %v", call.Method(), err)
	}
	return nil
}

// A Mux dispatches requests to handlers by method name. A shutdown request is
// handled by the Mux itself: it is acknowledged and ends the Serve loop.
type Mux struct {
	methods map[string]Func
	log     *slog.Logger
}

// NewMux constructs a new empty Mux. If log == nil, slog.Default is used.
func NewMux(log *slog.Logger) *Mux {
	if log == nil {
		log = slog.Default()
	}
	return &Mux{methods: make(map[string]Func), log: log}
}

// Handle registers f to handle requests for method, and returns m to allow
// chaining. If f == nil, any existing handler for method is removed. Handle
// panics if method is the shutdown method.
func (m *Mux) Handle(method string, f Func) *Mux {
	if method == autocomplete.MethodShutdown {
		panic("the shutdown method cannot be overridden")
	}
	if f == nil {
		delete(m.methods, method)
	} else {
		m.methods[method] = f
	}
	return m
}

// Dispatch invokes the handler for call and returns its result. Unknown
// methods report UNKNOWN_REQUEST, and a handler that panics reports INTERNAL.
// Dispatch does not reply to call.
func (m *Mux) Dispatch(ctx context.Context, call *autocomplete.Call) (_ any, err error) {
	f, ok := m.methods[call.Method()]
	if !ok {
		return nil, autocomplete.UnknownRequest(call.Method())
	}
	defer func() {
		if x := recover(); x != nil {
			err = autocomplete.Internal("handler panicked: %v", x)
		}
	}()
	return f(context.WithValue(ctx, callContextKey{}, call), call)
}

// Serve reads requests from r and replies to each in order, until a shutdown
// request is acknowledged or the connection closes. It reports an error if a
// reply could not be sent or r closed because of a protocol failure.
func (m *Mux) Serve(ctx context.Context, r *autocomplete.Receiver) error {
	for {
		call, ok := r.Next()
		if !ok {
			if err := r.Err(); err != nil {
				return err
			}
			m.log.Debug("connection closed without shutdown")
			return nil
		}
		if call.Method() == autocomplete.MethodShutdown {
			m.log.Debug("shutdown requested", "id", call.ID())
			if err := call.ReplyOK(autocomplete.ShutdownResult{}); err != nil {
				return fmt.Errorf("reply to shutdown: %w", err)
			}
			return nil
		}

		result, err := m.Dispatch(ctx, call)
		if err != nil {
			m.log.Debug("request failed", "id", call.ID(), "method", call.Method(), "error", err)
		}
		if rerr := call.Reply(result, err); rerr != nil {
			return rerr
		}
	}
}

// Drain answers every request received on r with INVALID_REQUEST, until r
// closes. Draining a receiver also delivers the responses to requests sent on
// its connection, so a side that only sends requests must still run Drain.
// Drain reports the error that closed r, or else the first reply that could
// not be sent.
func Drain(r *autocomplete.Receiver) error {
	var rerr error
	for {
		call, ok := r.Next()
		if !ok {
			if err := r.Err(); err != nil {
				return err
			}
			return rerr
		}
		// Keep draining even if the reply fails, so that responses still reach
		// their pending calls.
		if err := call.ReplyErr(autocomplete.InvalidRequest("no requests expected")); err != nil && rerr == nil {
			rerr = err
		}
	}
}
