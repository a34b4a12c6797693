// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package channel provides implementations of the autocomplete.Channel interface.
package channel

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	autocomplete "github.com/doriath/command-autocomplete-protocol"
)

// Direct constructs a connected pair of in-memory channels that pass messages
// directly without encoding them as JSON. Messages sent to A are received by B
// and vice versa. Each send blocks until the other side receives it.
func Direct() (A, B autocomplete.Channel) {
	a2b := make(chan *autocomplete.Message)
	b2a := make(chan *autocomplete.Message)
	A = direct{a2b: a2b, b2a: b2a}
	B = direct{a2b: b2a, b2a: a2b}
	return
}

type direct struct {
	a2b chan<- *autocomplete.Message
	b2a <-chan *autocomplete.Message
}

// Send implements a method of the [autocomplete.Channel] interface.
func (d direct) Send(msg *autocomplete.Message) (err error) {
	defer safeClose(&err)
	d.a2b <- msg
	return nil
}

// Recv implements a method of the [autocomplete.Channel] interface.
func (d direct) Recv() (*autocomplete.Message, error) {
	msg, ok := <-d.b2a
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

// Close implements a method of the [autocomplete.Channel] interface.
func (d direct) Close() (err error) {
	defer safeClose(&err)
	close(d.a2b)
	return nil
}

func safeClose(err *error) {
	if x := recover(); x != nil && *err == nil {
		*err = net.ErrClosed
	}
}

// IO constructs a channel that receives from r and sends to wc. Messages are
// encoded as JSON objects, one per line. Closing the channel closes wc, but
// not r.
func IO(r io.Reader, wc io.WriteCloser) IOChannel {
	// N.B. The bufio package will reuse existing buffers if possible.
	return IOChannel{r: bufio.NewReader(r), w: bufio.NewWriter(wc), c: wc}
}

// Stdio constructs a channel that receives from os.Stdin and sends to
// os.Stdout. This is how a completer or router talks to the process that
// spawned it.
func Stdio() IOChannel { return IO(os.Stdin, os.Stdout) }

// An IOChannel sends and receives line-delimited JSON messages on a reader and
// a writer.
type IOChannel struct {
	r *bufio.Reader
	w *bufio.Writer
	c io.Closer
}

// Send implements a method of the [autocomplete.Channel] interface. The
// message is flushed to the underlying writer before Send returns.
func (c IOChannel) Send(msg *autocomplete.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := c.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return c.w.Flush()
}

// Recv implements a method of the [autocomplete.Channel] interface. Blank
// lines are skipped. A line that is not a valid message is reported as an
// error, and the channel should not be used after that.
func (c IOChannel) Recv() (*autocomplete.Message, error) {
	for {
		line, err := c.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}
		// A final line without a newline is still a message; the next call will
		// report the end of input.
		var msg autocomplete.Message
		if perr := json.Unmarshal(line, &msg); perr != nil {
			return nil, fmt.Errorf("parse message %q: %w", abbrev(line), perr)
		}
		return &msg, nil
	}
}

// Close implements a method of the [autocomplete.Channel] interface.
func (c IOChannel) Close() error { return c.c.Close() }

func abbrev(line []byte) string {
	if len(line) > 80 {
		return string(line[:80]) + "..."
	}
	return string(line)
}
