// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// messageSchema describes the wire format of a message. A request carries a
// method and params; a response carries exactly one of result or error.
const messageSchema = `{
  "type": "object",
  "oneOf": [
    {
      "properties": {
        "id": {"type": "string"},
        "method": {"type": "string"},
        "params": {}
      },
      "required": ["id", "method", "params"],
      "additionalProperties": false
    },
    {
      "properties": {
        "id": {"type": "string"},
        "result": {}
      },
      "required": ["id", "result"],
      "additionalProperties": false
    },
    {
      "properties": {
        "id": {"type": "string"},
        "error": {
          "type": "object",
          "properties": {
            "code": {"type": "string"},
            "message": {"type": "string"}
          },
          "required": ["code", "message"],
          "additionalProperties": false
        }
      },
      "required": ["id", "error"],
      "additionalProperties": false
    }
  ]
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(messageSchema))
})

// ErrSchema is reported (wrapped) when a message does not match the wire schema.
var ErrSchema = errors.New("message does not match schema")

// validateMessage reports whether data is a well-formed message object.
func validateMessage(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		panic(fmt.Sprintf("invalid message schema: %v", err))
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}
	return nil
}
