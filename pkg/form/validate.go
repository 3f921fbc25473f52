package form

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/dlovans/formtree/pkg/schema"
)

// Validation codes reported by Field errors.
const (
	codeRequired  = "required"
	codePattern   = "pattern"
	codeMinLength = "minlength"
	codeMaxLength = "maxlength"
	codeDate      = "date"
	codeMinDate   = "mindate"
	codeMaxDate   = "maxdate"
)

// Status is the overall state of a form.
type Status string

const (
	StatusReady      Status = "READY"      // every active field is valid
	StatusIncomplete Status = "INCOMPLETE" // required fields are empty
	StatusInvalid    Status = "INVALID"    // a value breaks a pattern, length or date rule
)

// ValidationError ties a failed rule to the field it applies to.
type ValidationError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is returned by Submit when the form is not ready.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", ve[0].Error(), len(ve)-1)
}

// validator rejects a value when check returns false. Only the required
// validator sees empty values.
type validator struct {
	code    string
	message string
	check   func(v any) bool
}

func requiredValidator() validator {
	return validator{
		code:    codeRequired,
		message: "is required",
		check:   func(v any) bool { return !isEmpty(v) },
	}
}

// ruleValidators builds the optional rules of a field. An invalid pattern
// is reported as an error.
func ruleValidators(kind schema.Kind, rules *schema.Validations) ([]validator, error) {
	var out []validator
	if rules.Pattern != "" {
		re, err := regexp.Compile("^(?:" + rules.Pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", rules.Pattern, err)
		}
		out = append(out, validator{
			code:    codePattern,
			message: fmt.Sprintf("does not match %s", rules.Pattern),
			check: func(v any) bool {
				s, ok := v.(string)
				return ok && re.MatchString(s)
			},
		})
	}
	if n, ok := rules.MinLength.Int(); ok {
		out = append(out, validator{
			code:    codeMinLength,
			message: fmt.Sprintf("must be at least %d characters", n),
			check:   func(v any) bool { return length(v) >= n },
		})
	}
	if n, ok := rules.MaxLength.Int(); ok {
		out = append(out, validator{
			code:    codeMaxLength,
			message: fmt.Sprintf("must be at most %d characters", n),
			check:   func(v any) bool { return length(v) <= n },
		})
	}
	if kind != schema.KindDate {
		return out, nil
	}

	out = append(out, validator{
		code:    codeDate,
		message: "must be a valid date",
		check: func(v any) bool {
			_, ok := parseDate(v)
			return ok
		},
	})
	if rules.MinDate != "" {
		bound, ok := parseDate(rules.MinDate)
		if !ok {
			return nil, fmt.Errorf("invalid minDate %q", rules.MinDate)
		}
		out = append(out, validator{
			code:    codeMinDate,
			message: fmt.Sprintf("must not be before %s", rules.MinDate),
			check: func(v any) bool {
				t, ok := parseDate(v)
				return !ok || !t.Before(bound)
			},
		})
	}
	if rules.MaxDate != "" {
		bound, ok := parseDate(rules.MaxDate)
		if !ok {
			return nil, fmt.Errorf("invalid maxDate %q", rules.MaxDate)
		}
		out = append(out, validator{
			code:    codeMaxDate,
			message: fmt.Sprintf("must not be after %s", rules.MaxDate),
			check: func(v any) bool {
				t, ok := parseDate(v)
				return !ok || !t.After(bound)
			},
		})
	}
	return out, nil
}

func length(v any) int {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x)
	case []any:
		return len(x)
	}
	return 0
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, format := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// collectErrors appends the validation errors of every active field in in.
func (in *instance) collectErrors(prefix string, out []ValidationError) []ValidationError {
	for _, name := range in.group.names {
		c := in.group.entries[name]
		if !in.active(c.def().gate) {
			continue
		}
		path := prefix + name
		switch x := c.(type) {
		case *field:
			for _, code := range x.errors() {
				out = append(out, ValidationError{Path: path, Code: code, Message: messageFor(x.it, code)})
			}
		case *array:
			for i, row := range x.rows {
				out = row.collectErrors(fmt.Sprintf("%s.%d.", path, i), out)
			}
		}
	}
	return out
}

func messageFor(it *item, code string) string {
	label := it.label
	if label == "" {
		label = it.name
	}
	for _, v := range it.validators {
		if v.code == code {
			return label + " " + v.message
		}
	}
	return label + " is invalid"
}

// statusOf derives the form status from its validation errors.
func statusOf(errs []ValidationError) Status {
	status := StatusReady
	for _, e := range errs {
		if e.Code != codeRequired {
			return StatusInvalid
		}
		status = StatusIncomplete
	}
	return status
}
