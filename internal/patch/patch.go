package patch

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Kind is the operation type.
type Kind string

const (
	// Insert adds a value at a path that does not exist yet.
	Insert Kind = "insert"

	// Remove deletes the value at a path.
	Remove Kind = "remove"

	// Replace swaps the value at a path for a new one.
	Replace Kind = "replace"

	// Edit applies text steps to the string at a path.
	Edit Kind = "edit"
)

// Path addresses a value. Elements are object keys (string) or array
// indexes (int). The empty path is the root.
type Path []any

// String renders p for logs, e.g. files.48213377.text or items[2].
func (p Path) String() string {
	var b strings.Builder
	for _, el := range p {
		switch v := el.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		default:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, v)
		}
	}
	if b.Len() == 0 {
		return "$"
	}
	return b.String()
}

// UnmarshalJSON decodes a path, turning JSON numbers back into ints.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Path, len(raw))
	for i, el := range raw {
		switch v := el.(type) {
		case string:
			out[i] = v
		case float64:
			if v != math.Trunc(v) || v < 0 {
				return fmt.Errorf("%w: non-integer index %v", ErrInvalidPath, v)
			}
			out[i] = int(v)
		default:
			return fmt.Errorf("%w: unsupported element %T", ErrInvalidPath, el)
		}
	}
	*p = out
	return nil
}

// TextStep is one step of a string edit: skip Retain code points, insert
// Insert, then delete Delete code points.
type TextStep struct {
	Retain int    `json:"retain,omitempty"`
	Insert string `json:"insert,omitempty"`
	Delete int    `json:"delete,omitempty"`
}

// Op is a single operation.
type Op struct {
	Path Path
	Kind Kind

	// Value is set for insert and replace.
	Value any

	// Text is set for edit.
	Text []TextStep
}

// Patch is an ordered list of operations. A nil Patch means no change.
type Patch []Op

type wireOp struct {
	P Path            `json:"p"`
	K Kind            `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
	T []TextStep      `json:"t,omitempty"`
}

// MarshalJSON encodes op in the wire format. Insert and replace always
// carry "v", even when the value is null.
func (op Op) MarshalJSON() ([]byte, error) {
	w := wireOp{P: op.Path, K: op.Kind, T: op.Text}
	if w.P == nil {
		w.P = Path{}
	}
	if op.Kind == Insert || op.Kind == Replace {
		v, err := json.Marshal(op.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value at %s: %w", op.Path, err)
		}
		w.V = v
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire format.
func (op *Op) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.K {
	case Insert, Remove, Replace, Edit:
	default:
		return fmt.Errorf("unknown operation kind %q", w.K)
	}
	*op = Op{Path: w.P, Kind: w.K, Text: w.T}
	if len(w.V) > 0 {
		if err := json.Unmarshal(w.V, &op.Value); err != nil {
			return fmt.Errorf("failed to decode value at %s: %w", w.P, err)
		}
	}
	return nil
}

// String summarizes op for logs.
func (op Op) String() string {
	return fmt.Sprintf("%s %s", op.Kind, op.Path)
}
