// Package form compiles a form document into a live control tree.
//
// Compile walks the document once and checks it: duplicate field names,
// references to unknown fields and dependency cycles are rejected before any
// control exists. The resulting Form holds the controls, keeps calculated
// values and conditions current as values change, and manages the rows of
// dynamic tables, repeaters and repeatable sections.
//
// Every method on Form is safe for concurrent use; actions are applied one
// at a time and each runs to completion before the next starts.
package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/dlovans/formtree/pkg/schema"
)

// Errors returned for rejected user actions. They are wrapped with the
// offending path; match them with errors.Is.
var (
	ErrUnknownField    = errors.New("unknown field")
	ErrNotCollection   = errors.New("field is not a collection")
	ErrNotField        = errors.New("path does not name a value")
	ErrIndexOutOfRange = errors.New("row index out of range")
	ErrReadOnly        = errors.New("field is read-only")
	ErrInactive        = errors.New("field is switched off by a condition")
)

// Change lists the paths whose effective values an action may have changed.
// Reload is set when the whole tree was replaced.
type Change struct {
	Paths  []string
	Reload bool
}

// Form is a compiled, mutable form.
type Form struct {
	mu        sync.Mutex
	doc       *schema.Document
	opts      *options
	env       *env
	root      *instance
	listeners map[int]func(Change)
	nextID    int
}

// Compile checks doc and builds its control tree. Schema problems are
// returned together as schema.Errors and no form is built.
func Compile(doc *schema.Document, opts ...Option) (*Form, error) {
	o := newOptions(opts)
	root, e, err := build(doc, o)
	if err != nil {
		return nil, err
	}
	return &Form{
		doc:       doc,
		opts:      o,
		env:       e,
		root:      root,
		listeners: make(map[int]func(Change)),
	}, nil
}

// Check reports the schema errors Compile would reject doc for.
func Check(doc *schema.Document) error {
	if doc == nil {
		return errNoDocument()
	}
	pl := &planner{opts: newOptions(nil)}
	pl.planDocument(doc)
	if len(pl.errs) > 0 {
		return pl.errs
	}
	return nil
}

func errNoDocument() *schema.Error {
	return schema.Errorf("$", schema.CodeParse, "no document")
}

func build(doc *schema.Document, o *options) (*instance, *env, error) {
	if doc == nil {
		return nil, nil, errNoDocument()
	}
	pl := &planner{opts: o}
	sp := pl.planDocument(doc)
	if len(pl.errs) > 0 {
		return nil, nil, pl.errs
	}
	e := &env{detach: o.detach, log: o.log}
	return instantiate(sp, 0, e), e, nil
}

// Reload replaces the whole tree with one compiled from doc. If doc does
// not compile the current tree is kept and the error returned.
func (f *Form) Reload(doc *schema.Document) error {
	root, e, err := build(doc, f.opts)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.doc, f.root, f.env = doc, root, e
	listeners := f.snapshotListeners()
	f.mu.Unlock()
	notify(listeners, Change{Reload: true})
	return nil
}

// Document returns the document the current tree was compiled from.
func (f *Form) Document() *schema.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

// Watch registers fn to be called after every action that changes values.
// fn runs after the form is unlocked and may call back into it.
// The returned function unregisters fn.
func (f *Form) Watch(fn func(Change)) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *Form) snapshotListeners() []func(Change) {
	out := make([]func(Change), 0, len(f.listeners))
	for id := 0; id < f.nextID; id++ {
		if fn, ok := f.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(listeners []func(Change), c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}

// resolve finds the control at a dotted path such as "expenses.0.Amount".
// It returns the instance owning the control and the control's name there.
func (f *Form) resolve(path string) (*instance, string, control, error) {
	in := f.root
	rest := path
	for {
		if c, ok := in.group.entries[rest]; ok {
			return in, rest, c, nil
		}
		head, tail, more := strings.Cut(rest, ".")
		c, ok := in.group.entries[head]
		if !ok || !more {
			return nil, "", nil, fmt.Errorf("%q: %w", path, ErrUnknownField)
		}
		a, isArray := c.(*array)
		if !isArray {
			return nil, "", nil, fmt.Errorf("%q: %w", path, ErrUnknownField)
		}
		idxText, after, more := strings.Cut(tail, ".")
		idx, err := strconv.Atoi(idxText)
		if err != nil {
			return nil, "", nil, fmt.Errorf("%q: %w", path, ErrUnknownField)
		}
		if idx < 0 || idx >= len(a.rows) {
			return nil, "", nil, fmt.Errorf("%q: %w", path, ErrIndexOutOfRange)
		}
		if !more {
			return nil, "", nil, fmt.Errorf("%q: %w", path, ErrNotField)
		}
		in, rest = a.rows[idx], after
	}
}

// reachable reports whether the control and every collection row leading
// to it are switched on.
func reachable(in *instance, c control) bool {
	if !in.active(c.def().gate) {
		return false
	}
	for in.parent != nil {
		a := in.parent
		if !a.in.active(a.it.gate) {
			return false
		}
		in = a.in
	}
	return true
}

// SetValue stores a user-entered value and recomputes what depends on it.
func (f *Form) SetValue(path string, value any) error {
	f.mu.Lock()
	in, name, c, err := f.resolve(path)
	if err != nil {
		f.mu.Unlock()
		return f.reject("set", path, err)
	}
	fld, ok := c.(*field)
	switch {
	case !ok:
		err = fmt.Errorf("%q: %w", path, ErrNotField)
	case fld.it.readOnly:
		err = fmt.Errorf("%q: %w", path, ErrReadOnly)
	case !reachable(in, c):
		err = fmt.Errorf("%q: %w", path, ErrInactive)
	}
	if err != nil {
		f.mu.Unlock()
		return f.reject("set", path, err)
	}

	fld.val = normalize(value)
	fld.dirty = true
	changed := in.paths(in.propagate(name))
	listeners := f.snapshotListeners()
	f.mu.Unlock()

	notify(listeners, Change{Paths: changed})
	return nil
}

// AddRow appends a row to the collection at path and returns its index.
func (f *Form) AddRow(path string) (int, error) {
	f.mu.Lock()
	in, name, c, err := f.resolve(path)
	if err == nil {
		err = collectionCheck(in, c, path)
	}
	if err != nil {
		f.mu.Unlock()
		return -1, f.reject("add_row", path, err)
	}
	a := c.(*array)
	idx := a.push()
	changed := in.paths(in.propagate(name))
	listeners := f.snapshotListeners()
	f.mu.Unlock()

	notify(listeners, Change{Paths: changed})
	return idx, nil
}

// RemoveRow deletes the row at index from the collection at path. Rows
// after it move up by one; other collections are untouched.
func (f *Form) RemoveRow(path string, index int) error {
	f.mu.Lock()
	in, name, c, err := f.resolve(path)
	if err == nil {
		err = collectionCheck(in, c, path)
	}
	if err == nil {
		if a := c.(*array); index < 0 || index >= len(a.rows) {
			err = fmt.Errorf("%q row %d of %d: %w", path, index, len(a.rows), ErrIndexOutOfRange)
		}
	}
	if err != nil {
		f.mu.Unlock()
		return f.reject("remove_row", path, err)
	}
	c.(*array).removeAt(index)
	changed := in.paths(in.propagate(name))
	listeners := f.snapshotListeners()
	f.mu.Unlock()

	notify(listeners, Change{Paths: changed})
	return nil
}

func collectionCheck(in *instance, c control, path string) error {
	if _, ok := c.(*array); !ok {
		return fmt.Errorf("%q: %w", path, ErrNotCollection)
	}
	if !reachable(in, c) {
		return fmt.Errorf("%q: %w", path, ErrInactive)
	}
	return nil
}

func (f *Form) reject(op, path string, err error) error {
	f.opts.log.WithFields(logrus.Fields{"op": op, "path": path}).WithError(err).Debug("action rejected")
	return err
}

// Len returns the number of rows in the collection at path.
func (f *Form) Len(path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _, c, err := f.resolve(path)
	if err != nil {
		return 0, err
	}
	a, ok := c.(*array)
	if !ok {
		return 0, fmt.Errorf("%q: %w", path, ErrNotCollection)
	}
	return len(a.rows), nil
}

// FieldValue returns the current value at path. Switched-off controls
// read as nil.
func (f *Form) FieldValue(path string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, _, c, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	if !reachable(in, c) {
		return nil, nil
	}
	return c.value(), nil
}

// Duration returns the duration of the timespan named by path.
func (f *Form) Duration(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, _, c, err := f.resolve(path)
	if err != nil {
		return "", false
	}
	d, ok := c.(*duration)
	if !ok || !reachable(in, c) {
		return "", false
	}
	s, ok := d.value().(string)
	return s, ok
}

// Value returns the document value: every active field by name, rows as
// lists of objects. Controls under a false condition are omitted.
func (f *Form) Value() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.root.snapshot()
}

// Validate returns the validation errors of every active field.
func (f *Form) Validate() []ValidationError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.root.collectErrors("", nil)
}

// Valid reports whether Validate would return no errors.
func (f *Form) Valid() bool {
	return len(f.Validate()) == 0
}

// Status summarizes Validate.
func (f *Form) Status() Status {
	return statusOf(f.Validate())
}

// Entry is what a renderer needs to draw one control: its value, its
// validity, and the attributes of the node it came from.
type Entry struct {
	Path       string          `json:"path"`
	Name       string          `json:"name"`
	Kind       schema.Kind     `json:"kind"`
	Shape      Shape           `json:"shape"`
	Label      string          `json:"label,omitempty"`
	Value      any             `json:"value"`
	Valid      bool            `json:"valid"`
	Errors     []string        `json:"errors,omitempty"`
	Active     bool            `json:"active"`
	ReadOnly   bool            `json:"readOnly,omitempty"`
	Required   bool            `json:"required,omitempty"`
	Dirty      bool            `json:"dirty,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// Entries lists every control in document order, rows included.
func (f *Form) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.root.entries("", true, nil)
}

// Get returns the entry at path.
func (f *Form) Get(path string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, name, c, err := f.resolve(path)
	if err != nil {
		return Entry{}, err
	}
	return makeEntry(in.prefix()+name, name, c, reachable(in, c)), nil
}

func (in *instance) entries(prefix string, active bool, out []Entry) []Entry {
	for _, name := range in.group.names {
		c := in.group.entries[name]
		on := active && in.active(c.def().gate)
		out = append(out, makeEntry(prefix+name, name, c, on))
		if a, ok := c.(*array); ok {
			for i, row := range a.rows {
				out = row.entries(fmt.Sprintf("%s%s.%d.", prefix, name, i), on, out)
			}
		}
	}
	return out
}

func makeEntry(path, name string, c control, active bool) Entry {
	it := c.def()
	e := Entry{
		Path:     path,
		Name:     name,
		Kind:     it.kind,
		Shape:    c.shape(),
		Label:    it.label,
		Active:   active,
		ReadOnly: it.readOnly,
		Required: it.required,
		Valid:    true,
	}
	if it.node != nil {
		e.Attributes = it.node.Raw
	}
	if active {
		e.Value = c.value()
	}
	switch x := c.(type) {
	case *field:
		e.Dirty = x.dirty
		if active {
			e.Errors = x.errors()
			e.Valid = len(e.Errors) == 0
		}
	case *array:
		if active {
			for _, row := range x.rows {
				if len(row.collectErrors("", nil)) > 0 {
					e.Valid = false
					break
				}
			}
		}
	}
	return e
}

// normalize converts typed slices and maps from Go callers into the
// generic shapes decoded JSON uses.
func normalize(v any) any {
	switch x := v.(type) {
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return v
}
