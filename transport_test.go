// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/doriath/command-autocomplete-protocol/channel"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

// syncBuffer is a bytes.Buffer that records whether it was closed.
type syncBuffer struct {
	μ      sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (s *syncBuffer) Write(data []byte) (int, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(data)
}

func (s *syncBuffer) Close() error {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.closed = true
	return nil
}

func (s *syncBuffer) String() string {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.buf.String()
}

func TestTransportRead(t *testing.T) {
	defer leaktest.Check(t)()

	const input = `{"id":"0","method":"complete","params":{"args":["git"]}}` + "\n"
	out := new(syncBuffer)
	tr := autocomplete.NewTransport(channel.IO(strings.NewReader(input), out))

	msg, ok := tr.NextMessage()
	if !ok {
		t.Fatal("NextMessage: no message")
	}
	if msg.Request == nil || msg.Request.Method != "complete" {
		t.Errorf("NextMessage: got %v, want complete request", msg)
	}
	if msg, ok := tr.NextMessage(); ok {
		t.Errorf("NextMessage at EOF: got %v, want none", msg)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("Stop: unexpected error: %v", err)
	}
	if !out.closed {
		t.Error("Output was not closed")
	}
}

func TestTransportWrite(t *testing.T) {
	defer leaktest.Check(t)()

	out := new(syncBuffer)
	tr := autocomplete.NewTransport(channel.IO(strings.NewReader(""), out))

	var logged []string
	tr.LogMessages(func(mi autocomplete.MessageInfo) { logged = append(logged, mi.String()) })

	req := mustRequest(t, "0", "shutdown", autocomplete.ShutdownParams{})
	if err := tr.Send(autocomplete.RequestMessage(req)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("Stop: unexpected error: %v", err)
	}
	if got, want := out.String(), `{"id":"0","method":"shutdown","params":{}}`+"\n"; got != want {
		t.Errorf("Output: got %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{`send Request(ID=0, Method=shutdown, Params={})`}, logged); diff != "" {
		t.Errorf("Logged (-want, +got):\n%s", diff)
	}

	if err := tr.Send(autocomplete.RequestMessage(req)); !errors.Is(err, autocomplete.ErrClosed) {
		t.Errorf("Send after Stop: got %v, want %v", err, autocomplete.ErrClosed)
	}
}

func TestTransportParseError(t *testing.T) {
	defer leaktest.Check(t)()

	const input = `{"id":"0","result":{}}` + "\n" + "garbage\n" + `{"id":"1","result":{}}` + "\n"
	tr := autocomplete.NewTransport(channel.IO(strings.NewReader(input), new(syncBuffer)))

	if _, ok := tr.NextMessage(); !ok {
		t.Fatal("NextMessage: missing first message")
	}
	if msg, ok := tr.NextMessage(); ok {
		t.Errorf("NextMessage after garbage: got %v, want none", msg)
	}
	err := tr.Stop()
	if err == nil || !strings.Contains(err.Error(), "read:") {
		t.Errorf("Stop: got %v, want read error", err)
	} else {
		t.Logf("Stop: error OK: %v", err)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (failWriter) Close() error              { return nil }

func TestTransportWriteError(t *testing.T) {
	defer leaktest.Check(t)()

	tr := autocomplete.NewTransport(channel.IO(strings.NewReader(""), failWriter{}))
	req := mustRequest(t, "0", "complete", autocomplete.CompleteParams{})

	// The first send is accepted by the writer, which then fails.
	if err := tr.Send(autocomplete.RequestMessage(req)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	err := tr.Wait()
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Wait: got %v, want write error", err)
	}
	if err := tr.Send(autocomplete.RequestMessage(req)); !errors.Is(err, autocomplete.ErrClosed) {
		t.Errorf("Send after failure: got %v, want %v", err, autocomplete.ErrClosed)
	}
	tr.Close()
}
