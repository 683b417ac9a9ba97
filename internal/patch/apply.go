package patch

import (
	"fmt"
	"math"
)

// Apply returns v with p applied. v itself is not modified.
func Apply(v any, p Patch) (any, error) {
	out := Clone(v)
	for _, op := range p {
		var err error
		out, err = applyAt(out, op.Path, op)
		if err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", op, err)
		}
	}
	return out, nil
}

func applyAt(node any, at Path, op Op) (any, error) {
	if len(at) == 0 {
		switch op.Kind {
		case Replace:
			return Clone(op.Value), nil
		case Edit:
			s, ok := node.(string)
			if !ok {
				return nil, fmt.Errorf("%w: edit on %T", ErrTypeMismatch, node)
			}
			return ApplyText(s, op.Text)
		default:
			return nil, fmt.Errorf("%w: %s needs a parent container", ErrInvalidPath, op.Kind)
		}
	}

	last := len(at) == 1
	switch n := node.(type) {
	case map[string]any:
		k, ok := at[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key %v is not a string", ErrInvalidPath, at[0])
		}
		if last {
			switch op.Kind {
			case Insert:
				n[k] = Clone(op.Value)
				return n, nil
			case Remove:
				if _, ok := n[k]; !ok {
					return nil, fmt.Errorf("%w: no key %q", ErrInvalidPath, k)
				}
				delete(n, k)
				return n, nil
			}
		}
		child, ok := n[k]
		if !ok {
			return nil, fmt.Errorf("%w: no key %q", ErrInvalidPath, k)
		}
		nc, err := applyAt(child, at[1:], op)
		if err != nil {
			return nil, err
		}
		n[k] = nc
		return n, nil

	case []any:
		i, ok := index(at[0])
		if !ok {
			return nil, fmt.Errorf("%w: array index %v is not an integer", ErrInvalidPath, at[0])
		}
		if last {
			switch op.Kind {
			case Insert:
				if i < 0 || i > len(n) {
					return nil, fmt.Errorf("%w: insert index %d out of range", ErrInvalidPath, i)
				}
				n = append(n, nil)
				copy(n[i+1:], n[i:])
				n[i] = Clone(op.Value)
				return n, nil
			case Remove:
				if i < 0 || i >= len(n) {
					return nil, fmt.Errorf("%w: remove index %d out of range", ErrInvalidPath, i)
				}
				return append(n[:i], n[i+1:]...), nil
			}
		}
		if i < 0 || i >= len(n) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, i)
		}
		nc, err := applyAt(n[i], at[1:], op)
		if err != nil {
			return nil, err
		}
		n[i] = nc
		return n, nil

	default:
		return nil, fmt.Errorf("%w: cannot descend into %T", ErrTypeMismatch, node)
	}
}

func index(el any) (int, bool) {
	switch v := el.(type) {
	case int:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// Clone deep-copies a generic JSON value.
func Clone(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}
