// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package autocomplete implements the command-autocomplete protocol.
//
// A shell front-end asks a router process for completions of a command line.
// The router looks up the completer program configured for the command,
// spawns it, forwards the request over the completer's standard input and
// output, and relays the answer back. Every leg speaks the same protocol:
// JSON objects, one per line, exchanged over a pair of byte streams.
//
// # Messages
//
// A [Message] is either a [Request] or a [Response]. A request carries an ID
// chosen by its sender, a method name and method-specific parameters. A
// response echoes the ID of its request and carries either a result or an
// [Error], never both. Decoding is strict: unknown fields and malformed
// envelopes are rejected.
//
// The methods defined by the protocol are "complete" ([CompleteParams],
// [CompleteResult]) and "shutdown" ([ShutdownParams], [ShutdownResult]).
//
// # Transports
//
// A [Transport] runs a [Channel] with two goroutines, one reading and one
// writing. Both hand messages over without buffering:
//
//	t := autocomplete.NewTransport(channel.Stdio())
//
// Close the transport to end the outbound stream, and call Wait to wait for
// both goroutines to exit:
//
//	t.Close()
//	if err := t.Wait(); err != nil {
//	   log.Fatalf("Transport failed: %v", err)
//	}
//
// # Connections
//
// [Connect] splits a transport into a [Sender], which issues requests and may
// be shared by any number of goroutines, and a [Receiver], which must be
// drained by a single goroutine:
//
//	s, r := autocomplete.Connect(t)
//
// The receiver yields the requests sent by the remote peer, and delivers the
// responses to requests sent by s:
//
//	for call, ok := r.Next(); ok; call, ok = r.Next() {
//	   call.Reply(handle(call))
//	}
//
// To issue a request and wait for its result, use [Invoke]:
//
//	res, err := autocomplete.Invoke[autocomplete.CompleteResult](s, "complete", params)
//
// Errors reported by the remote peer have concrete type [*Error].
//
// A shutdown request, sent by [Sender.Shutdown], is terminal: once its
// response arrives, the receiver yields no further requests and the sender
// refuses further requests.
//
// # Metrics
//
// Transports and connections maintain a collection of metrics shared by the
// whole process. Use [Metrics] to obtain an [expvar.Map] containing them. The
// metrics currently exported include:
//
//   - messages_received: counter of messages received
//   - messages_sent: counter of messages sent
//   - messages_dropped: counter of messages received and discarded after close
//   - requests_in: counter of inbound requests received
//   - requests_in_failed: counter of inbound requests answered with an error
//   - requests_out: counter of outbound requests initiated
//   - requests_out_failed: counter of outbound requests that could not be sent
//   - responses_unmatched: counter of responses to unknown requests
//   - requests_pending: gauge of outbound requests awaiting a response
//
// The router package adds completers_spawned and completers_failed.
package autocomplete
