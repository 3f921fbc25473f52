package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes carried by Error.Code.
const (
	CodeParse            = "parse_error"
	CodeUnknownType      = "unknown_type"
	CodeMissingAttribute = "missing_attribute"
	CodeInvalidAttribute = "invalid_attribute"
	CodeDuplicateField   = "duplicate_field"
	CodeDanglingRef      = "dangling_reference"
	CodeDependencyCycle  = "dependency_cycle"
)

// ErrInvalid is matched by every schema error through errors.Is.
var ErrInvalid = errors.New("invalid form schema")

// Error is a single schema problem located by a document path such as
// components[0].elements[3].attributes.field_name.
type Error struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Related is the path of a second node involved, e.g. the first
	// declaration of a duplicated field.
	Related string `json:"related,omitempty"`
}

func (e *Error) Error() string {
	if e.Related != "" {
		return fmt.Sprintf("%s at %s: %s (see %s)", e.Code, e.Path, e.Message, e.Related)
	}
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Path, e.Message)
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Errorf builds an Error with a formatted message.
func Errorf(path, code, format string, args ...any) *Error {
	return &Error{Path: path, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Errors is a list of schema problems. It implements error.
type Errors []*Error

// Error summarizes the first few entries.
func (es Errors) Error() string {
	if len(es) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	lim := min(len(es), maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(es[i].Error())
	}
	if len(es) > lim {
		fmt.Fprintf(b, "; ... (total %d)", len(es))
	}
	return b.String()
}

func (es Errors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// AsErrors extracts schema errors from err. A single *Error is returned as
// a list of one.
func AsErrors(err error) (Errors, bool) {
	if err == nil {
		return nil, false
	}
	var es Errors
	if errors.As(err, &es) {
		return es, true
	}
	var e *Error
	if errors.As(err, &e) {
		return Errors{e}, true
	}
	return nil, false
}
