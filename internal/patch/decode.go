// Package patch turns operation-list and merge-object payloads into a
// ChangeSet.
package patch

import (
	"bytes"

	"github.com/goccy/go-json"
)

type Format string

const (
	FormatOperations Format = "operations"
	FormatMerge      Format = "merge"
)

// Operation is one element of an operation-list payload.
type Operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Payload is a decoded but not yet validated patch body.
type Payload struct {
	Format     Format
	Operations []Operation
	raw        []byte
}

// Decode sniffs the payload shape: a JSON array is an operation list, a
// JSON object is a merge object. Anything else is malformed.
func Decode(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{}, invalid("", "payload is empty")
	}
	switch trimmed[0] {
	case '[':
		var ops []Operation
		if err := json.Unmarshal(trimmed, &ops); err != nil {
			return Payload{}, invalid("", "operation list is not valid JSON: "+err.Error())
		}
		return Payload{Format: FormatOperations, Operations: ops, raw: trimmed}, nil
	case '{':
		if !json.Valid(trimmed) {
			return Payload{}, invalid("", "merge object is not valid JSON")
		}
		return Payload{Format: FormatMerge, raw: trimmed}, nil
	default:
		return Payload{}, invalid("", "payload must be a JSON array or object")
	}
}
