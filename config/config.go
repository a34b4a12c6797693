// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package config loads the per-user completer configuration.
//
// The configuration is a TOML file listing one entry per command:
//
//	[[command]]
//	name = "git"
//	completer = { command = "git-complete", args = [] }
//
// Entries are consulted in file order, and the first entry whose name matches
// the command being completed wins.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/doriath/command-autocomplete-protocol/catalog"
)

// FileName is the name of the configuration file within the config directory.
const FileName = "completers.toml"

// Config is the parsed contents of a configuration file.
type Config struct {
	Command []catalog.Entry `toml:"command"`
}

// Dir returns the configuration directory path.
// Resolution order: $XDG_CONFIG_HOME/command-autocomplete > ~/.config/command-autocomplete
func Dir() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "command-autocomplete")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "command-autocomplete-config")
	}
	return filepath.Join(home, ".config", "command-autocomplete")
}

// Path returns the full path of the configuration file.
// If $COMMAND_AUTOCOMPLETE_CONFIG is set, it names the file directly.
func Path() string {
	if path := os.Getenv("COMMAND_AUTOCOMPLETE_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(Dir(), FileName)
}

// Load reads the configuration file at path. A missing file is not an error,
// and yields an empty configuration. A file that does not parse, that
// contains keys not understood by this package, or whose entries are
// incomplete is reported as an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return new(Config), nil
	} else if err != nil {
		return nil, err
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse parses the text of a configuration file.
func Parse(text string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return nil, err
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports an error if any entry of c lacks a name or a completer
// command.
func (c *Config) Validate() error {
	var errs []error
	for i, e := range c.Command {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("command %d: missing name", i+1))
		}
		if e.Completer.Command == "" {
			errs = append(errs, fmt.Errorf("command %d (%q): missing completer command", i+1, e.Name))
		}
	}
	return errors.Join(errs...)
}

// Catalog returns a catalog of the entries of c, in order.
func (c *Config) Catalog() catalog.Catalog { return catalog.New(c.Command...) }
