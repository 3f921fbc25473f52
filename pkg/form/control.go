package form

import (
	"reflect"

	"github.com/dlovans/formtree/pkg/expr"
)

// Shape is the structural kind of a control tree entry.
type Shape string

const (
	ShapeField   Shape = "field"   // single value
	ShapeGroup   Shape = "group"   // named controls (rows)
	ShapeArray   Shape = "array"   // ordered rows
	ShapeDerived Shape = "derived" // computed on demand, holds no state
)

// control is an entry of the control tree.
type control interface {
	shape() Shape
	def() *item
	value() any
}

// field holds a single value.
type field struct {
	it    *item
	in    *instance
	val   any
	dirty bool
}

func (f *field) shape() Shape { return ShapeField }
func (f *field) def() *item   { return f.it }
func (f *field) value() any   { return f.val }

func (f *field) reset() {
	f.val = f.it.initial(f.in.ordinal)
	f.dirty = false
}

// errors returns the codes of the validators that reject the current value.
// Inactive fields have no errors.
func (f *field) errors() []string {
	if !f.in.active(f.it.gate) {
		return nil
	}
	var codes []string
	empty := isEmpty(f.val)
	for _, v := range f.it.validators {
		if v.code != codeRequired && empty {
			continue
		}
		if !v.check(f.val) {
			codes = append(codes, v.code)
		}
	}
	return codes
}

// group is a named, ordered set of controls: the form root or one row.
type group struct {
	names   []string
	entries map[string]control
}

func newGroup() *group {
	return &group{entries: make(map[string]control)}
}

func (g *group) add(name string, c control) {
	g.names = append(g.names, name)
	g.entries[name] = c
}

// array is an ordered list of rows built from one row plan.
type array struct {
	it      *item
	in      *instance
	rows    []*instance
	created int // rows ever created; the next row's ordinal
}

func (a *array) shape() Shape { return ShapeArray }
func (a *array) def() *item   { return a.it }

func (a *array) value() any {
	out := make([]any, 0, len(a.rows))
	for _, row := range a.rows {
		out = append(out, row.snapshot())
	}
	return out
}

func (a *array) push() int {
	return a.pushAt(a.created)
}

// pushAt appends a row created with the given ordinal. Later rows never
// reuse it.
func (a *array) pushAt(ordinal int) int {
	row := instantiate(a.it.rows, ordinal, a.in.env)
	row.parent = a
	if ordinal >= a.created {
		a.created = ordinal + 1
	}
	a.rows = append(a.rows, row)
	return len(a.rows) - 1
}

func (a *array) removeAt(index int) {
	a.rows[index].parent = nil
	a.rows = append(a.rows[:index], a.rows[index+1:]...)
}

// reset drops every row and rebuilds the default ones.
func (a *array) reset() {
	for _, row := range a.rows {
		row.parent = nil
	}
	a.rows = nil
	a.created = 0
	for i := 0; i < a.it.defaultRows; i++ {
		a.push()
	}
}

func (a *array) index(row *instance) int {
	for i, r := range a.rows {
		if r == row {
			return i
		}
	}
	return -1
}

// duration is the on-demand value of a timespan.
type duration struct {
	it *item
	in *instance
}

func (d *duration) shape() Shape { return ShapeDerived }
func (d *duration) def() *item   { return d.it }

func (d *duration) value() any {
	s, ok := expr.Duration(d.in.lookup(d.it.start), d.in.lookup(d.it.end))
	if !ok {
		return nil
	}
	return s
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
