// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package client implements the caller side used by shell front-ends. A
// client starts a router process, asks it for completions of one command
// line, and shuts it down.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"unicode"
	"unicode/utf8"

	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/doriath/command-autocomplete-protocol/peers"
	"mvdan.cc/sh/v3/shell"
)

// Options are optional settings for Complete. A nil *Options is ready for use
// and provides default values as described.
type Options struct {
	// Program is the router program to run. If empty, the running executable
	// is used.
	Program string

	// Args are the arguments passed to Program. If nil, and Program is
	// empty, the arguments are ["router"].
	Args []string

	// Logger receives diagnostic logs. If nil, slog.Default is used.
	Logger *slog.Logger

	// Stderr, if non-nil, receives the standard error of the router.
	// If nil, the router inherits os.Stderr.
	Stderr io.Writer
}

func (o *Options) command() (string, []string, error) {
	if o != nil && o.Program != "" {
		return o.Program, o.Args, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", nil, err
	}
	if o != nil && o.Args != nil {
		return exe, o.Args, nil
	}
	return exe, []string{"router"}, nil
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Options) stderr() io.Writer {
	if o == nil || o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

// Complete starts a router, requests completions for args, and shuts the
// router down. The router has exited when Complete returns. If the router
// reports an error, it is returned as an *autocomplete.Error.
func Complete(ctx context.Context, args []string, opts *Options) (autocomplete.CompleteResult, error) {
	prog, pargs, err := opts.command()
	if err != nil {
		return autocomplete.CompleteResult{}, fmt.Errorf("locate router: %w", err)
	}
	log := opts.logger()

	cmd := exec.CommandContext(ctx, prog, pargs...)
	cmd.Stderr = opts.stderr()
	proc, err := peers.Start(cmd)
	if err != nil {
		return autocomplete.CompleteResult{}, fmt.Errorf("start router: %w", err)
	}
	log.Debug("started router", "pid", proc.Pid(), "program", prog)

	res, cerr := autocomplete.Invoke[autocomplete.CompleteResult](proc.S, autocomplete.MethodComplete,
		autocomplete.CompleteParams{Args: args})

	connErr, exitErr := proc.Stop()
	if connErr != nil {
		log.Warn("router connection failed", "error", connErr)
	}
	if exitErr != nil {
		log.Warn("router exited abnormally", "error", exitErr)
	}
	if cerr != nil {
		return autocomplete.CompleteResult{}, cerr
	}
	return res, nil
}

// SplitLine splits a command line into words the way a shell would, so that
// the result can be passed to Complete. Parameters are expanded from the
// environment. If the line is empty or ends in whitespace, the result ends
// with an empty word, which is the word being completed. An unterminated
// quotation at the end of the line is tolerated.
func SplitLine(line string) ([]string, error) {
	words, err := shell.Fields(line, nil)
	if err != nil {
		// The cursor may be inside a quoted word.
		for _, q := range []string{`"`, `'`} {
			if w, qerr := shell.Fields(line+q, nil); qerr == nil {
				return w, nil
			}
		}
		return nil, fmt.Errorf("split command line: %w", err)
	}
	if last, _ := utf8.DecodeLastRuneInString(line); line == "" || (unicode.IsSpace(last) && !strings.HasSuffix(line, `\`+string(last))) {
		words = append(words, "")
	}
	return words, nil
}
