// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Program command-autocomplete routes command-line completion requests from
// shells to completer programs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/doriath/command-autocomplete-protocol/bridge"
	"github.com/doriath/command-autocomplete-protocol/channel"
	"github.com/doriath/command-autocomplete-protocol/client"
	"github.com/doriath/command-autocomplete-protocol/config"
	"github.com/doriath/command-autocomplete-protocol/handler"
	"github.com/doriath/command-autocomplete-protocol/peers"
	"github.com/doriath/command-autocomplete-protocol/router"
)

var rootFlags struct {
	Verbose bool `flag:"verbose,Enable debug logging"`
}

var routerFlags struct {
	Config  string `flag:"config,Path of the completer configuration file"`
	Metrics bool   `flag:"metrics,Log protocol metrics at exit"`
}

var nushellFlags struct {
	Line string `flag:"line,Complete this raw command line instead of arguments"`
}

var carapaceFlags struct {
	Program string `flag:"carapace,default=carapace,Name or path of the carapace program"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: `Route command-line completion requests to completer programs.

Shells talk to a router, and the router talks to the completer configured
for the command being completed. All parties exchange line-delimited JSON
messages over standard input and output.`,
		SetFlags: command.Flags(flax.MustBind, &rootFlags),
		Commands: []*command.C{
			{
				Name:  "router",
				Usage: "[--config path]",
				Help: `Serve completion requests on stdin and stdout.

Each complete request is forwarded to the completer configured for its
command name. Completers are read from a TOML file, by default:

  ` + config.Path() + `

The file lists one [[command]] table per completer:

  [[command]]
  name = "git"
  completer = { command = "git-complete", args = [] }`,
				SetFlags: command.Flags(flax.MustBind, &routerFlags),
				Run:      func(env *command.Env) error { return runRouter(ctx, env) },
			},
			{
				Name: "shell",
				Help: "Shell front-ends.",
				Commands: []*command.C{{
					Name:  "nushell",
					Usage: "-- <command> <arg>...\n--line <command-line>",
					Help: `Print completions for a command line as a JSON array.

The result is an array of {"value": ..., "description": ...} objects, the
format expected by a nushell external completer. The description is null
when the completer does not provide one.`,
					SetFlags: command.Flags(flax.MustBind, &nushellFlags),
					Run:      func(env *command.Env) error { return runNushell(ctx, env) },
				}},
			},
			{
				Name: "bridge",
				Help: "Completers backed by other completion engines.",
				Commands: []*command.C{{
					Name: "carapace",
					Help: `Serve completion requests by running "carapace <command> export".

This makes every command known to carapace available to the router.`,
					SetFlags: command.Flags(flax.MustBind, &carapaceFlags),
					Run:      func(env *command.Env) error { return runCarapace(ctx, env) },
				}},
			},
			{
				Name: "complete",
				Help: "Serve completion requests for this program's own subcommands.",
				Run:  func(env *command.Env) error { return runComplete(ctx, env) },
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// newLogger returns a logger writing to stderr. Stdout carries protocol
// traffic and must not be used for diagnostics.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if rootFlags.Verbose || strings.EqualFold(os.Getenv("COMMAND_AUTOCOMPLETE_LOG"), "debug") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}

func runRouter(ctx context.Context, env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	log := newLogger()

	path := routerFlags.Config
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	log.Debug("loaded configuration", "path", path, "commands", len(cfg.Command))

	r := router.New(cfg.Catalog(), &router.Options{
		Logger:      log,
		LogMessages: rootFlags.Verbose,
	})
	defer r.Close()
	if routerFlags.Metrics {
		defer func() { log.Info("router metrics", "metrics", autocomplete.Metrics().String()) }()
	}
	return r.Serve(ctx, channel.Stdio())
}

func runNushell(ctx context.Context, env *command.Env) error {
	args := env.Args
	if nushellFlags.Line != "" {
		if len(args) != 0 {
			return env.Usagef("--line does not accept extra arguments")
		}
		var err error
		args, err = client.SplitLine(nushellFlags.Line)
		if err != nil {
			return err
		}
	} else if len(args) == 0 {
		return env.Usagef("missing command to complete")
	}

	res, err := client.Complete(ctx, args, &client.Options{Logger: newLogger()})
	if err != nil {
		return err
	}
	out, err := nushellOutput(res)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// nushellValue is the shape of one completion candidate for nushell.
type nushellValue struct {
	Value       string  `json:"value"`
	Description *string `json:"description"`
}

// nushellOutput renders res as a JSON array of nushell completion values.
func nushellOutput(res autocomplete.CompleteResult) ([]byte, error) {
	vals := make([]nushellValue, len(res.Values))
	for i, v := range res.Values {
		vals[i] = nushellValue{Value: v.Value, Description: v.Description}
	}
	return json.Marshal(vals)
}

func runCarapace(ctx context.Context, env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	c := bridge.Carapace{Program: carapaceFlags.Program, Logger: newLogger()}
	return c.Serve(ctx, channel.Stdio())
}

func runComplete(ctx context.Context, env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	return serveSelf(ctx, newLogger(), channel.Stdio())
}

// selfCommands are the subcommands offered by the self-completer.
var selfCommands = []string{"shell", "router", "bridge", "complete"}

// completeSelf completes the first argument of this program. Only the word
// following the program name is completed; anything else has no candidates.
// Filtering by the partial word is left to the shell.
func completeSelf(_ context.Context, p autocomplete.CompleteParams) autocomplete.CompleteResult {
	res := autocomplete.CompleteResult{Values: []autocomplete.CompletionValue{}}
	if len(p.Args) != 2 {
		return res
	}
	for _, name := range selfCommands {
		res.Values = append(res.Values, autocomplete.CompletionValue{Value: name + " "})
	}
	return res
}

func serveSelf(ctx context.Context, log *slog.Logger, ch autocomplete.Channel) error {
	mux := handler.NewMux(log).Handle(autocomplete.MethodComplete, handler.ParamResult(completeSelf))
	return peers.New(ch).Serve(ctx, mux)
}
