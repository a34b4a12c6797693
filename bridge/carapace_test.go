// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

//go:build unix

package bridge_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creachadair/mds/value"
	"github.com/creachadair/taskgroup"
	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/doriath/command-autocomplete-protocol/bridge"
	"github.com/doriath/command-autocomplete-protocol/channel"
	"github.com/doriath/command-autocomplete-protocol/handler"
	"github.com/doriath/command-autocomplete-protocol/peers"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

// fakeCarapace is a stand-in for carapace. It records its arguments and
// behaves according to the name of the command being completed.
const fakeCarapace = `#!/bin/sh
printf '%s\n' "$@" > "$FAKE_CARAPACE_ARGS"
case "$1" in
git)
  echo '{"version":"v1","values":[{"value":"checkout","display":"checkout","description":"Switch branches","tag":"main commands"},{"value":"cherry","display":"cherry"},{"value":"cherry-pick","description":""}]}'
  ;;
fail)
  echo "no such command" >&2
  exit 2
  ;;
*)
  echo 'this is not json'
  ;;
esac
`

func installFake(t *testing.T) (prog, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	prog = filepath.Join(dir, "carapace")
	if err := os.WriteFile(prog, []byte(fakeCarapace), 0o755); err != nil {
		t.Fatalf("failed to write fake carapace: %v", err)
	}
	argsFile = filepath.Join(dir, "args")
	t.Setenv("FAKE_CARAPACE_ARGS", argsFile)
	return prog, argsFile
}

func TestCarapaceComplete(t *testing.T) {
	prog, argsFile := installFake(t)
	c := bridge.Carapace{Program: prog}

	got, err := c.Complete(t.Context(), autocomplete.CompleteParams{Args: []string{"git", "ch"}})
	if err != nil {
		t.Fatalf("Complete: unexpected error: %v", err)
	}
	want := autocomplete.CompleteResult{Values: []autocomplete.CompletionValue{
		{Value: "checkout", Description: value.Ptr("Switch branches")},
		{Value: "cherry"},
		{Value: "cherry-pick", Description: value.Ptr("")},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Result (-want, +got):\n%s", diff)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("Read args: %v", err)
	}
	if diff := cmp.Diff([]string{"git", "export", "git", "ch"}, strings.Fields(string(data))); diff != "" {
		t.Errorf("Carapace args (-want, +got):\n%s", diff)
	}
}

func TestCarapaceErrors(t *testing.T) {
	prog, _ := installFake(t)

	tests := []struct {
		name    string
		c       bridge.Carapace
		args    []string
		code    string
		message string
	}{
		{"NoArgs", bridge.Carapace{Program: prog}, nil,
			autocomplete.CodeInvalidRequest, "params.args is empty"},
		{"Failed", bridge.Carapace{Program: prog}, []string{"fail", ""},
			autocomplete.CodeInternal, "carapace command failed"},
		{"Garbage", bridge.Carapace{Program: prog}, []string{"other", ""},
			autocomplete.CodeInternal, "output from carapace can't be parsed"},
		{"Missing", bridge.Carapace{Program: filepath.Join(t.TempDir(), "nonesuch")}, []string{"git"},
			autocomplete.CodeInternal, "failed to run carapace command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.c.Complete(t.Context(), autocomplete.CompleteParams{Args: tc.args})
			var e *autocomplete.Error
			if !errors.As(err, &e) {
				t.Fatalf("Complete: got (%v, %v), want *Error", got, err)
			}
			if e.Code != tc.code || !strings.HasPrefix(e.Message, tc.message) {
				t.Errorf("Complete: got %v, want [%s] %s...", e, tc.code, tc.message)
			}
		})
	}
}

func TestCarapaceServe(t *testing.T) {
	defer leaktest.Check(t)()
	prog, _ := installFake(t)

	bch, cch := channel.Direct()
	srv := taskgroup.Go(func() error { return bridge.Carapace{Program: prog}.Serve(t.Context(), bch) })
	cli := peers.New(cch)
	drain := taskgroup.Go(func() error { return handler.Drain(cli.R) })

	got, err := autocomplete.Invoke[autocomplete.CompleteResult](cli.S, "complete",
		autocomplete.CompleteParams{Args: []string{"git", ""}})
	if err != nil {
		t.Fatalf("Call: unexpected error: %v", err)
	}
	if len(got.Values) != 3 {
		t.Errorf("Call: got %d values, want 3", len(got.Values))
	}

	p, err := cli.S.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := p.Wait(nil); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	cli.Close()
	if err := drain.Wait(); err != nil {
		t.Errorf("Drain: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Errorf("Serve: %v", err)
	}
	if err := cli.Wait(); err != nil {
		t.Errorf("Client: %v", err)
	}
}
