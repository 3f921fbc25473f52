package form

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dlovans/formtree/pkg/expr"
	"github.com/dlovans/formtree/pkg/schema"
)

// Mismatch is a derived value in a submitted snapshot that the form does
// not reproduce.
type Mismatch struct {
	Path string `json:"path"`
	Got  any    `json:"got"`
	Want any    `json:"want"`
}

// MismatchError lists every derived value that differs.
type MismatchError []Mismatch

func (m MismatchError) Error() string {
	parts := make([]string, 0, len(m))
	for _, x := range m {
		parts = append(parts, fmt.Sprintf("%s: got %v, want %v", x.Path, x.Got, x.Want))
	}
	return "derived values differ: " + strings.Join(parts, "; ")
}

// Replay compiles doc and feeds it the user-entered values of a snapshot
// as produced by Value. Calculated, locked and counter values in values
// are ignored; the returned form recomputes them.
func Replay(doc *schema.Document, values map[string]any, opts ...Option) (*Form, error) {
	f, err := Compile(doc, opts...)
	if err != nil {
		return nil, err
	}
	if err := f.root.apply("", values); err != nil {
		return nil, err
	}
	return f, nil
}

// Verify replays values against doc and checks that every derived value
// in values is the one the form computes.
func Verify(doc *schema.Document, values map[string]any, opts ...Option) error {
	f, err := Replay(doc, values, opts...)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	var out MismatchError
	f.root.compareDerived("", values, &out)
	if len(out) > 0 {
		sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
		return out
	}
	return nil
}

// apply writes values into in. Fields under a condition only take a value
// once the condition holds, so inputs are applied in passes until nothing
// more can be set.
func (in *instance) apply(prefix string, values map[string]any) error {
	for name := range values {
		if _, ok := in.group.entries[name]; !ok {
			return fmt.Errorf("%q: %w", prefix+name, ErrUnknownField)
		}
	}
	done := make(map[string]bool, len(values))
	for progress := true; progress; {
		progress = false
		for _, name := range in.group.names {
			v, ok := values[name]
			if !ok || done[name] {
				continue
			}
			c := in.group.entries[name]
			if !in.active(c.def().gate) {
				continue
			}
			done[name] = true
			progress = true
			switch x := c.(type) {
			case *field:
				if x.it.readOnly {
					continue
				}
				x.val = normalize(v)
				x.dirty = true
				in.propagate(name)
			case *array:
				if err := x.apply(prefix+name, v); err != nil {
					return err
				}
				in.propagate(name)
			}
		}
	}
	return nil
}

func (a *array) apply(path string, v any) error {
	rows, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%q: rows must be a list, got %T", path, v)
	}
	values := make([]map[string]any, len(rows))
	for i, r := range rows {
		m, ok := r.(map[string]any)
		if !ok {
			return fmt.Errorf("%q row %d: must be an object, got %T", path, i, r)
		}
		values[i] = m
	}

	// Rows are rebuilt so that counters keep the ordinals they had when
	// the snapshot was taken, removed rows included.
	for _, row := range a.rows {
		row.parent = nil
	}
	a.rows = nil
	a.created = 0
	for _, m := range values {
		if ordinal, ok := a.it.rows.ordinalOf(m); ok && ordinal >= a.created {
			a.pushAt(ordinal)
		} else {
			a.push()
		}
	}
	for i, m := range values {
		if err := a.rows[i].apply(fmt.Sprintf("%s.%d.", path, i), m); err != nil {
			return err
		}
	}
	return nil
}

// ordinalOf recovers the creation ordinal of a row from the first counter
// in values that encodes one.
func (sp *scopePlan) ordinalOf(values map[string]any) (int, bool) {
	for _, it := range sp.items {
		if it.role != roleCounter || it.step == 0 {
			continue
		}
		v, ok := expr.AsNumber(values[it.name])
		if !ok {
			continue
		}
		n := (v - it.base) / it.step
		if n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
			continue
		}
		return int(n), true
	}
	return 0, false
}

func (in *instance) compareDerived(prefix string, values map[string]any, out *MismatchError) {
	for _, name := range in.group.names {
		c := in.group.entries[name]
		want, present := values[name]
		if !present {
			continue
		}
		var got any
		if in.active(c.def().gate) {
			got = c.value()
		}
		switch x := c.(type) {
		case *array:
			rows, _ := want.([]any)
			for i, row := range x.rows {
				if i >= len(rows) {
					break
				}
				if m, ok := rows[i].(map[string]any); ok {
					row.compareDerived(fmt.Sprintf("%s%s.%d.", prefix, name, i), m, out)
				}
			}
			continue
		case *field:
			if x.it.role == roleInput {
				continue
			}
		}
		if !expr.Compare(got, expr.OpEQ, want) {
			*out = append(*out, Mismatch{Path: prefix + name, Got: want, Want: got})
		}
	}
}
