// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creachadair/taskgroup"
)

// A Channel is a reliable ordered stream of messages shared by two peers.
//
// The methods of an implementation must be safe for concurrent use by one
// sender and one receiver.
type Channel interface {
	// Send the message to the receiver.
	Send(*Message) error

	// Receive the next available message from the channel.
	Recv() (*Message, error)

	// Close the sending side of the channel, so that the remote peer observes
	// the end of the stream. After Close, further sends must report an error.
	Close() error
}

// A MessageLogger logs a message exchanged with the remote peer.
type MessageLogger func(MessageInfo)

// A MessageInfo combines a message and a flag indicating whether the message
// was sent or received.
type MessageInfo struct {
	*Message      // the message being logged
	Sent     bool // whether the message was sent (true) or received (false)
}

func (m MessageInfo) dir() string {
	if m.Sent {
		return "send"
	}
	return "recv"
}

func (m MessageInfo) String() string { return fmt.Sprintf("%v %v", m.dir(), m.Message) }

// ErrClosed is reported when a message cannot be exchanged because the
// transport or connection has closed.
var ErrClosed = errors.New("connection closed")

// A Transport turns a Channel into two one-directional message queues, each
// serviced by a dedicated goroutine. Both queues are unbuffered: a message is
// handed over only when the other side is ready to take it, so neither side
// can get ahead of its consumer.
//
// Close the transport to end the outbound stream, then call Wait to wait for
// both goroutines to exit. The inbound goroutine exits only once the remote
// peer closes its side of the channel.
type Transport struct {
	ch    Channel
	tasks *taskgroup.Group

	in    chan *Message // reader → consumer
	out   chan *Message // producer → writer
	quit  chan struct{} // closed by Close
	wdone chan struct{} // closed when the writer exits

	closeOnce sync.Once
	connected atomic.Bool // set by Connect

	μ    sync.Mutex
	rerr error         // read failure, if any
	werr error         // write failure, if any
	plog MessageLogger // what it says on the tin
}

// NewTransport starts a transport running on ch. The reader and writer
// goroutines run until the channel ends; use Close and Wait to shut down.
func NewTransport(ch Channel) *Transport {
	t := &Transport{
		ch:    ch,
		tasks: taskgroup.New(nil),
		in:    make(chan *Message),
		out:   make(chan *Message),
		quit:  make(chan struct{}),
		wdone: make(chan struct{}),
	}
	t.tasks.Go(t.readLoop)
	t.tasks.Go(t.writeLoop)
	return t
}

// LogMessages registers a callback that will be invoked for each message
// exchanged with the remote peer. Passing nil disables message logging. The
// logger runs synchronously on the reader and writer goroutines and must not
// block.
func (t *Transport) LogMessages(log MessageLogger) *Transport {
	t.μ.Lock()
	defer t.μ.Unlock()
	t.plog = log
	return t
}

func (t *Transport) logMessage(msg *Message, sent bool) {
	t.μ.Lock()
	plog := t.plog
	t.μ.Unlock()
	if plog != nil {
		plog(MessageInfo{Message: msg, Sent: sent})
	}
}

func (t *Transport) readLoop() error {
	defer close(t.in)
	for {
		msg, err := t.ch.Recv()
		if err != nil {
			t.μ.Lock()
			t.rerr = err
			t.μ.Unlock()
			return nil
		}
		rootMetrics.msgRecv.Add(1)
		t.logMessage(msg, false)

		select {
		case t.in <- msg:
		case <-t.quit:
			// The local side is finished; discard the remainder of the stream
			// so the peer is not blocked and this goroutine can exit at EOF.
			rootMetrics.msgDropped.Add(1)
		}
	}
}

func (t *Transport) writeLoop() error {
	defer close(t.wdone)
	defer t.ch.Close()
	for {
		select {
		case <-t.quit:
			return nil
		case msg := <-t.out:
			t.logMessage(msg, true)
			if err := t.ch.Send(msg); err != nil {
				t.μ.Lock()
				t.werr = err
				t.μ.Unlock()
				return nil
			}
			rootMetrics.msgSent.Add(1)
		}
	}
}

// Send hands msg to the writer goroutine, blocking until the writer accepts
// it. It reports ErrClosed if the transport has been closed or the writer has
// stopped because of an error.
func (t *Transport) Send(msg *Message) error {
	select {
	case <-t.quit:
		return ErrClosed
	case <-t.wdone:
		return ErrClosed
	default:
	}
	select {
	case t.out <- msg:
		return nil
	case <-t.quit:
		return ErrClosed
	case <-t.wdone:
		return ErrClosed
	}
}

// NextMessage blocks until a message is available from the remote peer, and
// returns it. It reports false when the inbound stream has ended.
func (t *Transport) NextMessage() (*Message, bool) {
	msg, ok := <-t.in
	return msg, ok
}

// Close ends the outbound stream. The writer goroutine closes the channel so
// the remote peer observes the end of the stream. Any further Send reports
// ErrClosed. Close is safe to call more than once.
func (t *Transport) Close() { t.closeOnce.Do(func() { close(t.quit) }) }

// Wait blocks until both goroutines of t have exited, and reports the error
// that ended the stream. The end of the input and a closed channel are not
// errors.
func (t *Transport) Wait() error {
	t.tasks.Wait()
	t.μ.Lock()
	defer t.μ.Unlock()
	if t.rerr != nil && !treatErrorAsSuccess(t.rerr) {
		return fmt.Errorf("read: %w", t.rerr)
	} else if t.werr != nil && !treatErrorAsSuccess(t.werr) {
		return fmt.Errorf("write: %w", t.werr)
	}
	return nil
}

// Stop closes t and waits for it to exit. It is shorthand for Close followed
// by Wait.
func (t *Transport) Stop() error { t.Close(); return t.Wait() }

// treatErrorAsSuccess reports whether err means only that one side of the
// stream has gone away.
func treatErrorAsSuccess(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) || errors.Is(err, ErrClosed)
}
