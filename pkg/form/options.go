package form

import (
	"io"

	"github.com/sirupsen/logrus"
)

// RowPolicy sets how many rows each kind of collection starts with.
type RowPolicy struct {
	TableDynamic int
	Repeater     int
	Section      int
}

// DefaultRowPolicy starts dynamic tables with one empty row, repeaters
// with none, and repeatable sections with one instance.
var DefaultRowPolicy = RowPolicy{TableDynamic: 1, Repeater: 0, Section: 1}

// DetachPolicy decides what happens to controls under a condition that
// stops holding. Either way they are left out of Value and Validate while
// the condition is false.
type DetachPolicy int

const (
	// DetachReset restores the controls to their initial values and rows.
	DetachReset DetachPolicy = iota
	// DetachRetain keeps whatever the user entered for when the condition
	// holds again.
	DetachRetain
)

type options struct {
	rows   RowPolicy
	detach DetachPolicy
	log    logrus.FieldLogger
}

// Option configures Compile.
type Option func(*options)

// WithRowPolicy overrides DefaultRowPolicy.
func WithRowPolicy(p RowPolicy) Option {
	return func(o *options) { o.rows = p }
}

// WithDetachPolicy overrides the default DetachReset.
func WithDetachPolicy(p DetachPolicy) Option {
	return func(o *options) { o.detach = p }
}

// WithLogger receives debug entries for swallowed evaluation failures and
// rejected actions. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

func newOptions(opts []Option) *options {
	o := &options{rows: DefaultRowPolicy, detach: DetachReset}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	if o.rows.TableDynamic < 0 {
		o.rows.TableDynamic = 0
	}
	if o.rows.Repeater < 0 {
		o.rows.Repeater = 0
	}
	if o.rows.Section < 0 {
		o.rows.Section = 0
	}
	return o
}
