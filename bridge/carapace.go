// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package bridge implements completers that obtain completions from other
// completion engines.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"strings"

	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/doriath/command-autocomplete-protocol/handler"
	"github.com/doriath/command-autocomplete-protocol/peers"
)

// Carapace is a completer backed by the carapace program
// (https://carapace.sh), using its export format.
type Carapace struct {
	// Program is the carapace executable. If empty, "carapace" is found on
	// the search path.
	Program string

	// Logger receives diagnostic logs. If nil, slog.Default is used.
	Logger *slog.Logger
}

func (c Carapace) program() string {
	if c.Program == "" {
		return "carapace"
	}
	return c.Program
}

func (c Carapace) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// carapaceExport is the output of "carapace <cmd> export ...".
type carapaceExport struct {
	Values []carapaceValue `json:"values"`
}

type carapaceValue struct {
	Value       string `json:"value"`
	Display     string `json:"display,omitempty"`
	Description *string `json:"description,omitempty"`
	Tag         string `json:"tag,omitempty"`
}

// Complete runs carapace to complete the command line in p.
func (c Carapace) Complete(ctx context.Context, p autocomplete.CompleteParams) (autocomplete.CompleteResult, error) {
	if len(p.Args) == 0 {
		return autocomplete.CompleteResult{}, autocomplete.InvalidRequest("params.args is empty, required at least one element")
	}
	args := append([]string{p.Args[0], "export"}, p.Args...)
	c.logger().Debug("running carapace", "args", args)

	out, err := exec.CommandContext(ctx, c.program(), args...).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return autocomplete.CompleteResult{}, autocomplete.Internal("carapace command failed: %v: %s",
				ee, strings.TrimSpace(string(ee.Stderr)))
		}
		return autocomplete.CompleteResult{}, autocomplete.Internal("failed to run carapace command: %v", err)
	}

	var exp carapaceExport
	if err := json.Unmarshal(out, &exp); err != nil {
		return autocomplete.CompleteResult{}, autocomplete.Internal("output from carapace can't be parsed: %v", err)
	}
	res := autocomplete.CompleteResult{Values: make([]autocomplete.CompletionValue, len(exp.Values))}
	for i, v := range exp.Values {
		res.Values[i] = autocomplete.CompletionValue{Value: v.Value, Description: v.Description}
	}
	return res, nil
}

// Serve serves complete requests received on ch until the caller sends a
// shutdown request or closes its side of the channel.
func (c Carapace) Serve(ctx context.Context, ch autocomplete.Channel) error {
	mux := handler.NewMux(c.logger()).
		Handle(autocomplete.MethodComplete, handler.ParamResultError(c.Complete))
	return peers.New(ch).Serve(ctx, mux)
}
