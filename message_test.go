// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/creachadair/mds/value"
	autocomplete "github.com/doriath/command-autocomplete-protocol"
	"github.com/google/go-cmp/cmp"
)

func mustRequest(t *testing.T, id autocomplete.RequestID, method string, params any) *autocomplete.Request {
	t.Helper()
	req, err := autocomplete.NewRequest(id, method, params)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func mustResult(t *testing.T, id autocomplete.RequestID, result any) *autocomplete.Response {
	t.Helper()
	rsp, err := autocomplete.NewResult(id, result)
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	return rsp
}

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		msg  *autocomplete.Message
		wire string
	}{
		{autocomplete.RequestMessage(mustRequest(t, "0", "complete", autocomplete.CompleteParams{Args: []string{"git", ""}})),
			`{"id":"0","method":"complete","params":{"args":["git",""]}}`},
		{autocomplete.RequestMessage(mustRequest(t, "17", "shutdown", autocomplete.ShutdownParams{})),
			`{"id":"17","method":"shutdown","params":{}}`},
		{autocomplete.ResponseMessage(mustResult(t, "0", autocomplete.CompleteResult{
			Values: []autocomplete.CompletionValue{{Value: "checkout"}, {Value: "cherry", Description: value.Ptr("Find commits")}},
		})), `{"id":"0","result":{"values":[{"value":"checkout"},{"value":"cherry","description":"Find commits"}]}}`},
		{autocomplete.ResponseMessage(mustResult(t, "3", autocomplete.ShutdownResult{})),
			`{"id":"3","result":{}}`},
		{autocomplete.ResponseMessage(autocomplete.NewError("4", autocomplete.InvalidRequest("no requests expected"))),
			`{"id":"4","error":{"code":"INVALID_REQUEST","message":"no requests expected"}}`},
	}
	for _, tc := range tests {
		enc, err := json.Marshal(tc.msg)
		if err != nil {
			t.Errorf("Marshal %v: %v", tc.msg, err)
			continue
		}
		if got := string(enc); got != tc.wire {
			t.Errorf("Marshal %v:\n got %s\nwant %s", tc.msg, got, tc.wire)
		}

		var dec autocomplete.Message
		if err := json.Unmarshal(enc, &dec); err != nil {
			t.Errorf("Unmarshal %s: %v", enc, err)
			continue
		}
		if diff := cmp.Diff(tc.msg, &dec); diff != "" {
			t.Errorf("Round trip (-want, +got):\n%s", diff)
		}
		if got, want := dec.ID(), tc.msg.ID(); got != want {
			t.Errorf("ID: got %q, want %q", got, want)
		}
	}
}

func TestMessageStrict(t *testing.T) {
	tests := []struct {
		name, input string
	}{
		{"NotObject", `[1,2,3]`},
		{"Empty", `{}`},
		{"NoID", `{"method":"complete","params":{}}`},
		{"NumericID", `{"id":1,"method":"complete","params":{}}`},
		{"NoParams", `{"id":"1","method":"complete"}`},
		{"Unknown", `{"id":"1","method":"complete","params":{},"jsonrpc":"2.0"}`},
		{"ResultAndError", `{"id":"1","result":{},"error":{"code":"INTERNAL","message":"x"}}`},
		{"MethodAndResult", `{"id":"1","method":"complete","params":{},"result":{}}`},
		{"NullError", `{"id":"1","error":null}`},
		{"ErrorMissingMessage", `{"id":"1","error":{"code":"INTERNAL"}}`},
		{"ErrorExtraField", `{"id":"1","error":{"code":"INTERNAL","message":"x","data":1}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var msg autocomplete.Message
			if err := json.Unmarshal([]byte(tc.input), &msg); err == nil {
				t.Errorf("Unmarshal %s: got %v, want error", tc.input, &msg)
			} else {
				t.Logf("Unmarshal: error OK: %v", err)
			}
		})
	}
}

func TestMarshalInvalid(t *testing.T) {
	for _, msg := range []*autocomplete.Message{
		{},
		{Request: &autocomplete.Request{ID: "1"}, Response: &autocomplete.Response{ID: "1"}},
		{Response: &autocomplete.Response{ID: "1", Result: json.RawMessage(`{}`), Error: autocomplete.Internal("x")}},
	} {
		if enc, err := json.Marshal(msg); err == nil {
			t.Errorf("Marshal %+v: got %s, want error", msg, enc)
		}
	}
}

func TestError(t *testing.T) {
	e := autocomplete.UnknownRequest("frob")
	if got, want := e.Error(), "[UNKNOWN_REQUEST] method frob is not recognized"; got != want {
		t.Errorf("Error: got %q, want %q", got, want)
	}

	// AsError keeps a wrapped *Error, and classifies anything else as INTERNAL.
	wrapped := errors.Join(errors.New("context"), e)
	if got := autocomplete.AsError(wrapped); got != e {
		t.Errorf("AsError(wrapped): got %v, want %v", got, e)
	}
	plain := autocomplete.AsError(errors.New("disk on fire"))
	if diff := cmp.Diff(&autocomplete.Error{Code: autocomplete.CodeInternal, Message: "disk on fire"}, plain); diff != "" {
		t.Errorf("AsError(plain) (-want, +got):\n%s", diff)
	}
}

func TestMessageString(t *testing.T) {
	tests := []struct {
		msg  *autocomplete.Message
		want string
	}{
		{autocomplete.RequestMessage(mustRequest(t, "5", "complete", autocomplete.CompleteParams{Args: []string{"ls"}})),
			`Request(ID=5, Method=complete, Params={"args":["ls"]})`},
		{autocomplete.ResponseMessage(mustResult(t, "6", autocomplete.ShutdownResult{})),
			`Response(ID=6, Result={})`},
		{autocomplete.ResponseMessage(autocomplete.NewError("7", autocomplete.Internal("oops"))),
			`Response(ID=7, Error=[INTERNAL] oops)`},
		{new(autocomplete.Message), `Message(empty)`},
	}
	for _, tc := range tests {
		if got := tc.msg.String(); got != tc.want {
			t.Errorf("String: got %q, want %q", got, tc.want)
		}
	}
}

func TestCompleteParamsJSON(t *testing.T) {
	for _, bad := range []string{`null`, `{}`, `{"args":null}`, `{"args":"git"}`, `{"args":[],"cwd":"/"}`, `[]`} {
		var p autocomplete.CompleteParams
		if err := json.Unmarshal([]byte(bad), &p); err == nil {
			t.Errorf("Unmarshal %s: got %+v, want error", bad, p)
		}
	}

	var p autocomplete.CompleteParams
	if err := json.Unmarshal([]byte(`{"args":[]}`), &p); err != nil {
		t.Fatalf("Unmarshal: unexpected error: %v", err)
	} else if p.Args == nil || len(p.Args) != 0 {
		t.Errorf("Unmarshal: got %#v, want empty non-nil args", p.Args)
	}

	enc, err := json.Marshal(autocomplete.CompleteParams{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(enc), `{"args":[]}`; got != want {
		t.Errorf("Marshal: got %s, want %s", got, want)
	}
}

func TestCompleteResultJSON(t *testing.T) {
	for _, bad := range []string{`null`, `{}`, `{"values":null}`, `{"values":{}}`, `[]`} {
		var r autocomplete.CompleteResult
		if err := json.Unmarshal([]byte(bad), &r); err == nil {
			t.Errorf("Unmarshal %s: got %+v, want error", bad, r)
		}
	}

	var r autocomplete.CompleteResult
	if err := json.Unmarshal([]byte(`{"values":[{"value":"a","extra":1}],"more":true}`), &r); err != nil {
		t.Fatalf("Unmarshal: unexpected error: %v", err)
	}
	if diff := cmp.Diff([]autocomplete.CompletionValue{{Value: "a"}}, r.Values); diff != "" {
		t.Errorf("Values (-want, +got):\n%s", diff)
	}

	enc, err := json.Marshal(autocomplete.CompleteResult{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(enc), `{"values":[]}`; got != want {
		t.Errorf("Marshal: got %s, want %s", got, want)
	}
}
