// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete

import (
	"encoding/json"
	"errors"
)

// Method names understood by routers and completers.
const (
	MethodComplete = "complete"
	MethodShutdown = "shutdown"
)

// CompleteParams are the parameters of a complete request. Args is the
// command line being completed; Args[0] is the command name and the last
// element is the (possibly empty) word under the cursor.
type CompleteParams struct {
	Args []string `json:"args"`
}

// MarshalJSON implements json.Marshaler. Nil Args are encoded as an empty
// array.
func (p CompleteParams) MarshalJSON() ([]byte, error) {
	args := p.Args
	if args == nil {
		args = []string{}
	}
	return json.Marshal(struct {
		Args []string `json:"args"`
	}{Args: args})
}

// UnmarshalJSON implements json.Unmarshaler. The params must be an object
// whose args field is an array of strings; unknown fields are rejected.
func (p *CompleteParams) UnmarshalJSON(data []byte) error {
	var raw struct {
		Args *[]string `json:"args"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	} else if raw.Args == nil {
		return errors.New("args must be an array of strings")
	}
	p.Args = *raw.Args
	return nil
}

// CompleteResult is the result of a complete request.
type CompleteResult struct {
	Values []CompletionValue `json:"values"`
}

// MarshalJSON implements json.Marshaler. Nil Values are encoded as an empty
// array.
func (r CompleteResult) MarshalJSON() ([]byte, error) {
	vals := r.Values
	if vals == nil {
		vals = []CompletionValue{}
	}
	return json.Marshal(struct {
		Values []CompletionValue `json:"values"`
	}{Values: vals})
}

// UnmarshalJSON implements json.Unmarshaler. The result must be an object
// whose values field is an array. Unknown fields are ignored.
func (r *CompleteResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Values *[]CompletionValue `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	} else if raw.Values == nil {
		return errors.New("values must be an array")
	}
	r.Values = *raw.Values
	return nil
}

// CompletionValue is a single completion candidate.
type CompletionValue struct {
	Value       string  `json:"value"`
	Description *string `json:"description,omitempty"`
}

// ShutdownParams are the parameters of a shutdown request.
type ShutdownParams struct{}

// ShutdownResult is the result of a shutdown request.
type ShutdownResult struct{}
