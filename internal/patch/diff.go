package patch

import (
	"fmt"
	"reflect"
	"sort"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/vzcode/vzsync/internal/workspace"
)

// Diff returns the operations turning prev into next, or nil when they
// are equal.
func Diff(prev, next any) Patch {
	var p Patch
	diffValue(&p, Path{}, prev, next)
	return p
}

// DiffDocuments diffs the wire values of two documents.
func DiffDocuments(prev, next *workspace.Document) (Patch, error) {
	a, err := prev.Value()
	if err != nil {
		return nil, err
	}
	b, err := next.Value()
	if err != nil {
		return nil, err
	}
	return Diff(a, b), nil
}

func diffValue(p *Patch, at Path, a, b any) {
	switch av := a.(type) {
	case map[string]any:
		if bv, ok := b.(map[string]any); ok {
			diffObject(p, at, av, bv)
			return
		}
	case []any:
		if bv, ok := b.([]any); ok {
			diffArray(p, at, av, bv)
			return
		}
	case string:
		if bv, ok := b.(string); ok {
			if av != bv {
				*p = append(*p, Op{Path: at, Kind: Edit, Text: DiffText(av, bv)})
			}
			return
		}
	}
	if !scalarEqual(a, b) {
		*p = append(*p, Op{Path: at, Kind: Replace, Value: b})
	}
}

func diffObject(p *Patch, at Path, a, b map[string]any) {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		av, inA := a[k]
		bv, inB := b[k]
		child := at.child(k)
		switch {
		case inA && !inB:
			*p = append(*p, Op{Path: child, Kind: Remove})
		case !inA && inB:
			*p = append(*p, Op{Path: child, Kind: Insert, Value: bv})
		default:
			diffValue(p, child, av, bv)
		}
	}
}

func diffArray(p *Patch, at Path, a, b []any) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		diffValue(p, at.child(i), a[i], b[i])
	}
	for i := n; i < len(b); i++ {
		*p = append(*p, Op{Path: at.child(i), Kind: Insert, Value: b[i]})
	}
	// Highest index first so earlier removes do not shift later ones.
	for i := len(a) - 1; i >= n; i-- {
		*p = append(*p, Op{Path: at.child(i), Kind: Remove})
	}
}

func (p Path) child(el any) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = el
	return out
}

func scalarEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// DiffText returns the steps turning a into b, measured in code points.
func DiffText(a, b string) []TextStep {
	if a == b {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes([]rune(a), []rune(b), false)

	var steps []TextStep
	retain := 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if n == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			retain += n
		case diffmatchpatch.DiffInsert:
			if last := len(steps) - 1; retain == 0 && last >= 0 && steps[last].Insert == "" {
				steps[last].Insert = d.Text
				continue
			}
			steps = append(steps, TextStep{Retain: retain, Insert: d.Text})
			retain = 0
		case diffmatchpatch.DiffDelete:
			if last := len(steps) - 1; retain == 0 && last >= 0 && steps[last].Delete == 0 {
				steps[last].Delete = n
				continue
			}
			steps = append(steps, TextStep{Retain: retain, Delete: n})
			retain = 0
		}
	}
	return steps
}

// ApplyText applies steps to s.
func ApplyText(s string, steps []TextStep) (string, error) {
	r := []rune(s)
	out := make([]rune, 0, len(r))
	pos := 0
	for i, st := range steps {
		if st.Retain < 0 || st.Delete < 0 {
			return "", fmt.Errorf("%w: negative length in step %d", ErrInvalidStep, i)
		}
		if pos+st.Retain > len(r) {
			return "", fmt.Errorf("%w: retain past end in step %d", ErrInvalidStep, i)
		}
		out = append(out, r[pos:pos+st.Retain]...)
		pos += st.Retain
		out = append(out, []rune(st.Insert)...)
		if pos+st.Delete > len(r) {
			return "", fmt.Errorf("%w: delete past end in step %d", ErrInvalidStep, i)
		}
		pos += st.Delete
	}
	out = append(out, r[pos:]...)
	return string(out), nil
}
