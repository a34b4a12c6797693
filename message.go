// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// A RequestID identifies a request within one direction of a connection.
// IDs are opaque to the receiver, which only echoes them in its response.
type RequestID string

// Message is the parsed format of one protocol message. Exactly one of
// Request and Response is non-nil.
type Message struct {
	Request  *Request
	Response *Response
}

// RequestMessage returns a message wrapping req.
func RequestMessage(req *Request) *Message { return &Message{Request: req} }

// ResponseMessage returns a message wrapping rsp.
func ResponseMessage(rsp *Response) *Message { return &Message{Response: rsp} }

// MarshalJSON encodes m as a single JSON object. It implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	switch {
	case m.Request != nil && m.Response == nil:
		return json.Marshal(m.Request)
	case m.Response != nil && m.Request == nil:
		return json.Marshal(m.Response)
	default:
		return nil, errors.New("message must have exactly one of request or response")
	}
}

// UnmarshalJSON decodes a message from a JSON object. The object must match
// the message schema exactly: unknown fields, a missing id, or a response
// carrying both a result and an error are rejected.
func (m *Message) UnmarshalJSON(data []byte) error {
	if err := validateMessage(data); err != nil {
		return err
	}
	var probe struct {
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Method != nil {
		var req Request
		if err := decodeStrict(data, &req); err != nil {
			return fmt.Errorf("invalid request: %w", err)
		}
		*m = Message{Request: &req}
		return nil
	}
	var rsp Response
	if err := rsp.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = Message{Response: &rsp}
	return nil
}

// ID reports the request ID carried by m.
func (m *Message) ID() RequestID {
	if m.Request != nil {
		return m.Request.ID
	} else if m.Response != nil {
		return m.Response.ID
	}
	return ""
}

// String returns a human-friendly rendering of the message.
func (m *Message) String() string {
	if m.Request != nil {
		return m.Request.String()
	} else if m.Response != nil {
		return m.Response.String()
	}
	return "Message(empty)"
}

// Request is a call from one peer to the other. The shape of Params is
// determined by Method.
type Request struct {
	ID     RequestID       `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// NewRequest constructs a request for method with params encoded as JSON.
func NewRequest(id RequestID, method string, params any) (*Request, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return &Request{ID: id, Method: method, Params: data}, nil
}

// String returns a human-friendly rendering of the request.
func (r Request) String() string {
	return fmt.Sprintf("Request(ID=%s, Method=%s, Params=%s)", r.ID, r.Method, abbrev(r.Params))
}

// Response is the outcome of a request. Exactly one of Result and Error is
// set; the encoding distinguishes them only by which field is present.
type Response struct {
	ID     RequestID
	Result json.RawMessage // success
	Error  *Error          // failure
}

// NewResult constructs a successful response for id with result encoded as JSON.
func NewResult(id RequestID, result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{ID: id, Result: data}, nil
}

// NewError constructs a failed response for id.
func NewError(id RequestID, e *Error) *Response { return &Response{ID: id, Error: e} }

// OK reports whether r is a successful response.
func (r Response) OK() bool { return r.Error == nil }

type okResponse struct {
	ID     RequestID       `json:"id"`
	Result json.RawMessage `json:"result"`
}

type errResponse struct {
	ID    RequestID `json:"id"`
	Error *Error    `json:"error"`
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		if r.Result != nil {
			return nil, errors.New("response has both result and error")
		}
		return json.Marshal(errResponse{ID: r.ID, Error: r.Error})
	}
	result := r.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	return json.Marshal(okResponse{ID: r.ID, Result: result})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Error != nil {
		var er errResponse
		if err := decodeStrict(data, &er); err != nil {
			return fmt.Errorf("invalid error response: %w", err)
		} else if er.Error == nil {
			return errors.New("invalid error response: null error")
		}
		*r = Response{ID: er.ID, Error: er.Error}
		return nil
	}
	var ok okResponse
	if err := decodeStrict(data, &ok); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	*r = Response{ID: ok.ID, Result: ok.Result}
	return nil
}

// String returns a human-friendly rendering of the response.
func (r Response) String() string {
	if r.Error != nil {
		return fmt.Sprintf("Response(ID=%s, Error=%s)", r.ID, r.Error)
	}
	return fmt.Sprintf("Response(ID=%s, Result=%s)", r.ID, abbrev(r.Result))
}

// Standard error codes.
const (
	CodeInvalidRequest = "INVALID_REQUEST" // malformed params
	CodeInternal       = "INTERNAL"        // failure of the responder or its plumbing
	CodeUnknownRequest = "UNKNOWN_REQUEST" // method not recognized
)

// Error is the negative outcome of a request. It implements the error
// interface so that a remote failure can be returned and inspected as a Go
// error; use errors.As to recover it.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

// InvalidRequest returns an error with code INVALID_REQUEST.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Internal returns an error with code INTERNAL.
func Internal(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// UnknownRequest returns an error with code UNKNOWN_REQUEST for method.
func UnknownRequest(method string) *Error {
	return &Error{Code: CodeUnknownRequest, Message: fmt.Sprintf("method %s is not recognized", method)}
}

// AsError converts err to an *Error suitable for a reply. An error that is or
// wraps an *Error is reported as-is; any other error is classified INTERNAL
// with its text as the message.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("%s", err.Error())
}

// decodeStrict decodes data into v, rejecting unknown fields and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func abbrev(data []byte) string {
	const maxLen = 64
	if len(data) > maxLen {
		return string(data[:maxLen]) + "..."
	}
	return string(data)
}
