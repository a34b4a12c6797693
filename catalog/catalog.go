// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package catalog defines an ordered mapping from command names to the
// external completer programs that serve completions for them.
//
// # Usage
//
// Construct a new empty catalog and add completers to it:
//
//	cat := catalog.New().
//	   Add("git", catalog.Completer{Command: "git-complete"}).
//	   Add("cargo", catalog.Completer{Command: "carapace-bridge", Args: []string{"cargo"}})
//
// To find the completer for a command line, use Lookup with the first
// argument:
//
//	c, ok := cat.Lookup("git")
//
// Entries are consulted in the order they were added, and the first entry
// whose name matches wins. Adding a name that is already present does not
// replace the earlier entry.
package catalog

import (
	"slices"
	"strings"
)

// A Completer describes how to start a completer program.
type Completer struct {
	Command string   `toml:"command"`        // program name or path
	Args    []string `toml:"args,omitempty"` // arguments passed to the program
}

// String renders c as a command line, for logging.
func (c Completer) String() string {
	return strings.Join(append([]string{c.Command}, c.Args...), " ")
}

// An Entry associates a command name with its completer.
type Entry struct {
	Name      string    `toml:"name"`
	Completer Completer `toml:"completer"`
}

// A Catalog is an ordered table of completer entries. The zero value is an
// empty catalog ready for use. A Catalog is immutable once built, and is safe
// for concurrent lookups.
type Catalog struct {
	entries []Entry
}

// New creates a new catalog containing the specified entries in order.
func New(entries ...Entry) Catalog { return Catalog{entries: slices.Clone(entries)} }

// Add returns a copy of c with an entry for name appended.
func (c Catalog) Add(name string, comp Completer) Catalog {
	out := Catalog{entries: slices.Clip(c.entries)}
	out.entries = append(out.entries, Entry{Name: name, Completer: comp})
	return out
}

// Len reports the number of entries in c.
func (c Catalog) Len() int { return len(c.entries) }

// Entries returns a copy of the entries of c in order.
func (c Catalog) Entries() []Entry { return slices.Clone(c.entries) }

// Lookup returns the completer of the first entry in c whose name equals
// name, and reports whether one was found.
func (c Catalog) Lookup(name string) (Completer, bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e.Completer, true
		}
	}
	return Completer{}, false
}

// Names returns the distinct command names in c, in order of first
// appearance.
func (c Catalog) Names() []string {
	var names []string
	for _, e := range c.entries {
		if !slices.Contains(names, e.Name) {
			names = append(names, e.Name)
		}
	}
	return names
}
