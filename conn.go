// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

var (
	// ErrDecode is reported (wrapped) by Pending.Wait when a successful
	// response carries a result that does not decode into the expected type.
	ErrDecode = errors.New("cannot decode result")

	// ErrProtocol is reported (wrapped) by Receiver.Err when the remote peer
	// violated the protocol, for example by answering a request that was never
	// sent.
	ErrProtocol = errors.New("protocol violation")

	// ErrReplied is reported (wrapped) when a call is replied to more than once.
	ErrReplied = errors.New("call already replied")
)

// Connect constructs a connection over t, and returns its sending and
// receiving halves. Connect panics if t is already connected.
//
// The Sender may be shared by any number of goroutines. The Receiver must be
// drained by exactly one goroutine calling Next in a loop: responses to
// outbound requests are delivered only while Next is running.
func Connect(t *Transport) (*Sender, *Receiver) {
	if !t.connected.CompareAndSwap(false, true) {
		panic("transport is already connected")
	}
	st := &connState{pending: make(map[RequestID]pendingCall)}
	return &Sender{t: t, st: st}, &Receiver{t: t, st: st}
}

// connState is the state shared by the halves of a connection.
type connState struct {
	ids idGenerator

	μ       sync.Mutex
	pending map[RequestID]pendingCall // outbound requests awaiting responses
	closed  bool                      // no further requests or responses
	err     error                     // protocol failure, if any
}

type pendingCall struct {
	rc       chan *Response // buffered; receives at most one response
	shutdown bool           // whether this is the terminal shutdown request
}

// take removes and returns the pending call for id, if there is one.
func (s *connState) take(id RequestID) (pendingCall, bool) {
	s.μ.Lock()
	defer s.μ.Unlock()
	pc, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		rootMetrics.requestsPending.Add(-1)
	}
	return pc, ok
}

// close marks the connection closed with the given error (nil for a clean
// close) and releases all pending calls. Only the first close has effect.
func (s *connState) close(err error) {
	s.μ.Lock()
	if s.closed {
		s.μ.Unlock()
		return
	}
	s.closed = true
	s.err = err
	pending := s.pending
	s.pending = nil
	s.μ.Unlock()

	for _, pc := range pending {
		close(pc.rc)
		rootMetrics.requestsPending.Add(-1)
	}
}

func (s *connState) isClosed() bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.closed
}

type idGenerator struct {
	μ    sync.Mutex
	next uint64
}

func (g *idGenerator) newID() RequestID {
	g.μ.Lock()
	defer g.μ.Unlock()
	id := RequestID(strconv.FormatUint(g.next, 10))
	g.next++
	return id
}

// A Sender issues requests to the remote peer. It is safe for concurrent use
// by multiple goroutines.
type Sender struct {
	t  *Transport
	st *connState
}

// Send sends a request for method with the given params to the remote peer.
// It blocks until the request is handed to the transport, but does not wait
// for the response; use the Wait method of the result for that.
func (s *Sender) Send(method string, params any) (*Pending, error) {
	return s.send(method, params, false)
}

// Shutdown sends a shutdown request to the remote peer. When its response
// arrives the connection closes: the Receiver reports no further requests.
// The caller must not send further requests after Shutdown.
func (s *Sender) Shutdown() (*Pending, error) {
	return s.send(MethodShutdown, ShutdownParams{}, true)
}

func (s *Sender) send(method string, params any, shutdown bool) (_ *Pending, err error) {
	rootMetrics.requestsOut.Add(1)
	defer func() {
		if err != nil {
			rootMetrics.requestsOutErr.Add(1)
		}
	}()

	id := s.st.ids.newID()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	// Phase 1: Register the pending call so the response cannot race ahead of
	// the registration.
	pc := pendingCall{rc: make(chan *Response, 1), shutdown: shutdown}
	s.st.μ.Lock()
	if s.st.closed {
		s.st.μ.Unlock()
		return nil, fmt.Errorf("send %s: %w", method, ErrClosed)
	}
	s.st.pending[id] = pc
	rootMetrics.requestsPending.Add(1)
	s.st.μ.Unlock()

	// Send the request. We MUST NOT hold the state lock while doing this, as
	// the transport may block until the remote peer is ready.
	if err := s.t.Send(RequestMessage(req)); err != nil {
		// Phase 2: Back out the registration, unless a close got there first.
		s.st.take(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	return &Pending{id: id, method: method, rc: pc.rc}, nil
}

// Pending is an outbound request awaiting its response.
type Pending struct {
	id     RequestID
	method string
	rc     <-chan *Response
}

// ID returns the request ID of p.
func (p *Pending) ID() RequestID { return p.id }

// Wait blocks until the response to p arrives or the connection closes.
//
// On success, the result is decoded into result (unless result == nil) and
// Wait returns nil. If the remote peer reported an error, Wait returns it as
// an *Error. If the connection closed without a response, the error wraps
// ErrClosed. If the result does not decode, the error wraps ErrDecode.
func (p *Pending) Wait(result any) error {
	rsp, ok := <-p.rc
	if !ok {
		return fmt.Errorf("%s request %s: %w", p.method, p.id, ErrClosed)
	} else if rsp.Error != nil {
		return rsp.Error
	} else if result == nil {
		return nil
	}
	if err := json.Unmarshal(rsp.Result, result); err != nil {
		return fmt.Errorf("%s request %s: %w: %v", p.method, p.id, ErrDecode, err)
	}
	return nil
}

// Invoke sends a request for method with params via s, and waits for its
// result of type R.
func Invoke[R any](s *Sender, method string, params any) (R, error) {
	var result R
	p, err := s.Send(method, params)
	if err != nil {
		return result, err
	}
	err = p.Wait(&result)
	return result, err
}

// A Receiver yields the requests sent by the remote peer, and delivers the
// responses to requests sent by the paired Sender.
//
// A Receiver is not safe for concurrent use; a single goroutine must call
// Next until it reports false.
type Receiver struct {
	t  *Transport
	st *connState
}

// Next blocks until the next request from the remote peer is available, and
// returns it. Responses that arrive meanwhile are delivered to their pending
// calls. Next reports false once the connection has closed, which happens
// when the stream ends, when the response to a Shutdown request arrives, or
// when the remote peer violates the protocol. Once Next has reported false,
// it always does so; use Err to tell a clean close from a failure.
func (r *Receiver) Next() (*Call, bool) {
	for {
		if r.st.isClosed() {
			return nil, false
		}
		msg, ok := r.t.NextMessage()
		if !ok {
			r.st.close(nil)
			return nil, false
		}

		if req := msg.Request; req != nil {
			rootMetrics.requestsIn.Add(1)
			return &Call{req: req, t: r.t}, true
		}

		rsp := msg.Response
		pc, ok := r.st.take(rsp.ID)
		if !ok {
			rootMetrics.responsesUnmatched.Add(1)
			r.st.close(fmt.Errorf("%w: response for unknown request %q", ErrProtocol, rsp.ID))
			return nil, false
		}
		pc.rc <- rsp // does not block
		close(pc.rc)

		if pc.shutdown {
			r.st.close(nil)
			return nil, false
		}
	}
}

// Err reports the error that closed the connection, or nil if the
// connection is open or closed cleanly.
func (r *Receiver) Err() error {
	r.st.μ.Lock()
	defer r.st.μ.Unlock()
	return r.st.err
}

// A Call is a request received from the remote peer. Exactly one reply must
// be sent for each call; the first reply consumes the call, and any later
// reply reports ErrReplied without sending anything.
type Call struct {
	req     *Request
	t       *Transport
	replied atomic.Bool
}

// Request returns the request carried by c.
func (c *Call) Request() *Request { return c.req }

// ID returns the request ID of c.
func (c *Call) ID() RequestID { return c.req.ID }

// Method returns the method name of c.
func (c *Call) Method() string { return c.req.Method }

// Params returns the undecoded parameters of c.
func (c *Call) Params() json.RawMessage { return c.req.Params }

// DecodeParams decodes the parameters of c into v, rejecting unknown fields.
func (c *Call) DecodeParams(v any) error { return decodeStrict(c.req.Params, v) }

// ReplyOK replies to c with a successful result.
func (c *Call) ReplyOK(result any) error {
	rsp, err := NewResult(c.req.ID, result)
	if err != nil {
		return c.ReplyErr(Internal("%v", err))
	}
	return c.send(rsp)
}

// ReplyErr replies to c with an error.
func (c *Call) ReplyErr(e *Error) error {
	if e == nil {
		e = Internal("unspecified error")
	}
	return c.send(NewError(c.req.ID, e))
}

// Reply replies to c with result if err == nil, otherwise with err. An error
// that is not an *Error is reported with code INTERNAL.
func (c *Call) Reply(result any, err error) error {
	if err != nil {
		return c.ReplyErr(AsError(err))
	}
	return c.ReplyOK(result)
}

func (c *Call) send(rsp *Response) error {
	if !c.replied.CompareAndSwap(false, true) {
		return fmt.Errorf("request %s: %w", c.req.ID, ErrReplied)
	}
	if rsp.Error != nil {
		rootMetrics.requestsInErr.Add(1)
	}
	if err := c.t.Send(ResponseMessage(rsp)); err != nil {
		return fmt.Errorf("reply to request %s: %w", c.req.ID, err)
	}
	return nil
}
