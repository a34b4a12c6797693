// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package router implements a completion router. A router serves complete
// requests from a shell front-end by spawning the completer program
// configured for the command being completed, and relaying the request to it
// over the completer's standard input and output.
package router

import (
	"context"
	"errors"
	"expvar"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/doriath/command-autocomplete-protocol/catalog"
	"github.com/doriath/command-autocomplete-protocol/handler"
	"github.com/doriath/command-autocomplete-protocol/peers"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultPathTTL is the default lifetime of a resolved completer path.
const DefaultPathTTL = 1 * time.Minute

var (
	completersSpawned expvar.Int
	completersFailed  expvar.Int
)

func init() {
	m := autocomplete.Metrics()
	m.Set("completers_spawned", &completersSpawned)
	m.Set("completers_failed", &completersFailed)
}

// Options are optional settings for a Router. A nil *Options is ready for
// use and provides default values as described.
type Options struct {
	// Logger receives diagnostic logs. If nil, slog.Default is used.
	Logger *slog.Logger

	// PathTTL is how long a resolved completer program path is reused before
	// it is looked up again. If zero, DefaultPathTTL is used.
	PathTTL time.Duration

	// LogMessages, if true, logs every message exchanged with the caller and
	// with completers at debug level.
	LogMessages bool

	// Stderr, if non-nil, receives the standard error of completers.
	// If nil, completers inherit os.Stderr.
	Stderr io.Writer
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Options) pathTTL() time.Duration {
	if o == nil || o.PathTTL <= 0 {
		return DefaultPathTTL
	}
	return o.PathTTL
}

func (o *Options) logMessages() bool { return o != nil && o.LogMessages }

func (o *Options) stderr() io.Writer {
	if o == nil || o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

// A Router relays complete requests to the completers listed in its catalog.
type Router struct {
	cat     catalog.Catalog
	log     *slog.Logger
	logMsgs bool
	stderr  io.Writer
	paths   *ttlcache.Cache[string, string]
}

// New constructs a router for the completers in cat. The caller must call
// Close when the router is no longer needed.
func New(cat catalog.Catalog, opts *Options) *Router {
	ttl := opts.pathTTL()
	paths := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go paths.Start()
	return &Router{
		cat:     cat,
		log:     opts.logger(),
		logMsgs: opts.logMessages(),
		stderr:  opts.stderr(),
		paths:   paths,
	}
}

// Close releases the resources of r.
func (r *Router) Close() { r.paths.Stop() }

// Serve serves requests received on ch until the caller sends a shutdown
// request or closes its side of the channel. Before returning, Serve closes
// its side of ch and waits for the inbound stream to end.
func (r *Router) Serve(ctx context.Context, ch autocomplete.Channel) error {
	ep := peers.New(ch)
	if r.logMsgs {
		ep.T.LogMessages(r.messageLogger(r.log.With("peer", "caller")))
	}
	mux := handler.NewMux(r.log).
		Handle(autocomplete.MethodComplete, handler.ParamResultError(r.Complete))

	err := ep.Serve(ctx, mux)
	r.log.Debug("router stopped", "error", err)
	return err
}

func (r *Router) messageLogger(log *slog.Logger) autocomplete.MessageLogger {
	return func(mi autocomplete.MessageInfo) { log.Debug(mi.String()) }
}

// Complete handles a single complete request. If no completer is configured
// for the command, the result is empty. Otherwise Complete spawns the
// completer, forwards p to it, and shuts it down before returning its result.
func (r *Router) Complete(ctx context.Context, p autocomplete.CompleteParams) (autocomplete.CompleteResult, error) {
	if len(p.Args) == 0 {
		return emptyResult(), nil
	}
	comp, ok := r.cat.Lookup(p.Args[0])
	if !ok {
		r.log.Info("completer not found", "command", p.Args[0])
		return emptyResult(), nil
	}
	res, err := r.relay(ctx, comp, p)
	if err != nil {
		completersFailed.Add(1)
		return autocomplete.CompleteResult{}, err
	}
	if res.Values == nil {
		res.Values = []autocomplete.CompletionValue{}
	}
	return res, nil
}

func emptyResult() autocomplete.CompleteResult {
	return autocomplete.CompleteResult{Values: []autocomplete.CompletionValue{}}
}

// lookPath resolves the program for command, reusing a recent resolution.
func (r *Router) lookPath(command string) (string, error) {
	if item := r.paths.Get(command); item != nil {
		return item.Value(), nil
	}
	prog, err := exec.LookPath(command)
	if err != nil {
		return "", err
	}
	r.paths.Set(command, prog, ttlcache.DefaultTTL)
	return prog, nil
}

func (r *Router) relay(ctx context.Context, comp catalog.Completer, p autocomplete.CompleteParams) (autocomplete.CompleteResult, error) {
	session := uuid.NewString()
	log := r.log.With("session", session, "completer", comp.Command)

	// Errors raised here carry the session ID that tags the log entries.
	internal := func(format string, args ...any) *autocomplete.Error {
		e := autocomplete.Internal(format, args...)
		e.Message += " (session " + session + ")"
		return e
	}

	prog, err := r.lookPath(comp.Command)
	if err != nil {
		return autocomplete.CompleteResult{}, internal("cannot find completer %q: %v", comp.Command, err)
	}
	cmd := exec.CommandContext(ctx, prog, comp.Args...)
	cmd.Stderr = r.stderr
	proc, err := peers.Start(cmd)
	if err != nil {
		return autocomplete.CompleteResult{}, internal("start completer %q: %v", comp.Command, err)
	}
	completersSpawned.Add(1)
	log.Debug("started completer", "pid", proc.Pid(), "args", comp.Args)
	if r.logMsgs {
		proc.T.LogMessages(r.messageLogger(log))
	}

	res, cerr := autocomplete.Invoke[autocomplete.CompleteResult](proc.S, autocomplete.MethodComplete, p)

	// Whatever the outcome, the completer is shut down and has exited before
	// the reply is sent.
	connErr, exitErr := proc.Stop()
	if connErr != nil {
		log.Warn("completer connection failed", "error", connErr)
	}
	if exitErr != nil {
		log.Warn("completer exited abnormally", "error", exitErr)
	} else {
		log.Debug("completer exited")
	}

	var rerr *autocomplete.Error
	switch {
	case cerr == nil:
		return res, nil
	case errors.As(cerr, &rerr):
		return autocomplete.CompleteResult{}, rerr
	case errors.Is(cerr, autocomplete.ErrDecode):
		return autocomplete.CompleteResult{}, internal("completer returned an invalid result: %v", cerr)
	case errors.Is(cerr, autocomplete.ErrClosed):
		if connErr != nil {
			return autocomplete.CompleteResult{}, internal("completer connection failed: %v", connErr)
		}
		return autocomplete.CompleteResult{}, internal("completer closed the connection before replying")
	default:
		return autocomplete.CompleteResult{}, internal("%v", cerr)
	}
}
