// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package peers provides support code for wiring and testing connections.
package peers

import (
	"context"
	"errors"

	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/doriath/command-autocomplete-protocol/channel"
	"github.com/doriath/command-autocomplete-protocol/handler"
)

// An Endpoint bundles a running transport with the two halves of the
// connection over it.
type Endpoint struct {
	T *autocomplete.Transport
	S *autocomplete.Sender
	R *autocomplete.Receiver
}

// New starts a transport on ch and connects it.
func New(ch autocomplete.Channel) *Endpoint {
	t := autocomplete.NewTransport(ch)
	s, r := autocomplete.Connect(t)
	return &Endpoint{T: t, S: s, R: r}
}

// Close ends the outbound stream of e. The remote peer observes the end of the
// stream once any message in flight has been delivered.
func (e *Endpoint) Close() { e.T.Close() }

// Wait blocks until the transport of e has exited, which requires the remote
// peer to close its side as well, and reports its error.
func (e *Endpoint) Wait() error { return e.T.Wait() }

// Serve serves requests received by e with mux, until a shutdown request is
// acknowledged or the remote peer closes its side. Then it closes e and waits
// for the remote peer to close.
func (e *Endpoint) Serve(ctx context.Context, mux *handler.Mux) error {
	serr := mux.Serve(ctx, e.R)
	e.Close()
	return errors.Join(serr, e.Wait())
}

// Local is a pair of in-memory connected endpoints, suitable for testing.
type Local struct {
	A *Endpoint
	B *Endpoint
}

// NewLocal creates a pair of in-memory connected endpoints that communicate
// via a direct channel without encoding.
func NewLocal() *Local {
	a2b, b2a := channel.Direct()
	return &Local{A: New(a2b), B: New(b2a)}
}

// Stop closes both endpoints and blocks until both have exited.
func (p *Local) Stop() error {
	p.A.Close()
	p.B.Close()
	return errors.Join(p.A.Wait(), p.B.Wait())
}
