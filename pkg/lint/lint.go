// Package lint provides static analysis for form documents.
// It reports every problem it can find without building a control tree.
package lint

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dlovans/formtree/pkg/expr"
	"github.com/dlovans/formtree/pkg/form"
	"github.com/dlovans/formtree/pkg/schema"
)

// Issue represents a problem found during static analysis.
type Issue struct {
	Severity string `json:"severity"` // "error", "warning", "info"
	Path     string `json:"path,omitempty"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// Result contains all issues found by the linter.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Warning codes.
const (
	CodeFormula      = "formula"
	CodeUnusedDep    = "unused_dependency"
	CodeEmptySection = "empty_section"
	CodeNoLabel      = "no_label"
	CodeNoColumns    = "no_columns"
	CodeNoChildren   = "no_children"
	CodeNoOptions    = "no_options"
	CodeOperand      = "non_numeric_operand"
	CodeZeroStep     = "zero_step"
	CodeSPParameter  = "sp_parameter"
)

// Run decodes jsonText and lints it. Decode failures are reported as
// issues, not returned as errors.
func Run(jsonText string) (*Result, error) {
	doc, err := schema.Decode([]byte(jsonText))
	if err != nil {
		r := newResult()
		r.addSchemaErrors(err)
		return r, nil
	}
	return Document(doc), nil
}

// Document lints a decoded document.
func Document(doc *schema.Document) *Result {
	r := newResult()

	// Check 1: everything Compile would reject.
	if err := form.Check(doc); err != nil {
		r.addSchemaErrors(err)
	}
	if doc == nil {
		return r
	}

	// Check 2: per-node warnings.
	rootNames := make(map[string]bool)
	for i, sec := range doc.Components {
		if sec == nil {
			continue
		}
		path := fmt.Sprintf("components[%d]", i)
		if len(sec.Elements) == 0 {
			r.addWarning(path, "", CodeEmptySection, fmt.Sprintf("section %q has no elements", sec.Title))
		}
		if sec.Repeatable {
			rootNames[sec.Key()] = true
			r.walk(sec.Elements, path+".elements", nil)
			continue
		}
		r.walk(sec.Elements, path+".elements", rootNames)
	}

	// Check 3: stored procedure parameters must name root fields.
	if cfg := doc.FormConfig; cfg != nil {
		params := make([]string, 0, len(cfg.SPParameters))
		for p := range cfg.SPParameters {
			params = append(params, p)
		}
		sort.Strings(params)
		for _, p := range params {
			name := cfg.SPParameters[p]
			if !rootNames[name] {
				r.addWarning("formConfig.spParameters."+p, name, CodeSPParameter,
					fmt.Sprintf("parameter %q maps to %q, which is not a top-level field", p, name))
			}
		}
	}
	return r
}

// walk lints nodes. Names declared directly in the scope are recorded in
// names when it is non-nil; repeater rows are their own scope.
func (r *Result) walk(nodes []*schema.Node, path string, names map[string]bool) {
	for i, n := range nodes {
		if n == nil {
			continue
		}
		p := fmt.Sprintf("%s[%d]", path, i)
		ap := p + ".attributes"
		if names != nil {
			if name := n.FieldName(); name != "" {
				names[name] = true
			}
		}

		if n.Kind.HoldsData() && n.Label() == "" {
			r.addInfo(ap+".label", n.FieldName(), CodeNoLabel, fmt.Sprintf("%s field has no label", n.Kind))
		}

		switch a := n.Attributes.(type) {
		case *schema.CalculatedAttrs:
			r.lintFormula(ap, a)
		case *schema.ConditionAttrs:
			if len(a.Children) == 0 {
				r.addWarning(ap+".children", "", CodeNoChildren, "condition has no children")
			}
			r.lintOperand(ap+".condition", a.Condition)
			r.walk(a.Children, ap+".children", names)
		case *schema.RepeaterAttrs:
			r.walk(a.Template.Elements, ap+".template.elements", nil)
		case *schema.TableDynamicAttrs:
			if len(a.Columns) == 0 {
				r.addWarning(ap+".columns", a.FieldName, CodeNoColumns, "dynamic table has no columns")
			}
		case *schema.SelectAttrs:
			if a.DataListID == "" && len(a.Options) == 0 {
				r.addWarning(ap, a.FieldName, CodeNoOptions, "select has neither dataListId nor options")
			}
		case *schema.AutoIncrementAttrs:
			if a.Step == 0 {
				r.addWarning(ap+".step", a.FieldName, CodeZeroStep, "step is 0; every row gets the same number")
			}
		case *schema.TimespanAttrs:
			if names != nil {
				names[a.Start()], names[a.End()] = true, true
			}
		}
	}
}

func (r *Result) lintFormula(path string, a *schema.CalculatedAttrs) {
	_, err := expr.Compile(a.Formula, a.Dependencies)
	var unknown *expr.UnknownNameError
	switch {
	case errors.As(err, &unknown):
		r.addWarning(path+".formula", a.FieldName, CodeFormula,
			fmt.Sprintf("formula uses %q, which is not listed in dependencies", unknown.Name))
		return
	case err != nil:
		r.addWarning(path+".formula", a.FieldName, CodeFormula,
			fmt.Sprintf("formula does not parse and always yields an empty value: %v", err))
		return
	}

	used := make(map[string]bool)
	for _, id := range expr.Identifiers(a.Formula) {
		used[id] = true
	}
	for j, dep := range a.Dependencies {
		if !used[dep] {
			r.addWarning(fmt.Sprintf("%s.dependencies[%d]", path, j), a.FieldName, CodeUnusedDep,
				fmt.Sprintf("dependency %q is not used by the formula", dep))
		}
	}
}

func (r *Result) lintOperand(path string, c schema.Condition) {
	op, ok := expr.ParseOperator(c.Operator)
	if !ok || op == expr.OpEQ || op == expr.OpNEQ {
		return
	}
	if _, numeric := expr.AsNumber(c.Value); !numeric {
		r.addWarning(path+".value", c.Field, CodeOperand,
			fmt.Sprintf("%s against non-numeric value %v is always false", op, c.Value))
	}
}

func newResult() *Result {
	return &Result{
		Valid:  true,
		Issues: make([]Issue, 0),
	}
}

func (r *Result) addSchemaErrors(err error) {
	errs, ok := schema.AsErrors(err)
	if !ok {
		r.addError("", "", schema.CodeParse, err.Error())
		return
	}
	for _, e := range errs {
		msg := e.Message
		if e.Related != "" {
			msg += " (see " + e.Related + ")"
		}
		r.addError(e.Path, "", e.Code, msg)
	}
}

func (r *Result) addError(path, field, code, message string) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{
		Severity: "error",
		Path:     path,
		Field:    field,
		Code:     code,
		Message:  message,
	})
}

func (r *Result) addWarning(path, field, code, message string) {
	r.Issues = append(r.Issues, Issue{
		Severity: "warning",
		Path:     path,
		Field:    field,
		Code:     code,
		Message:  message,
	})
}

func (r *Result) addInfo(path, field, code, message string) {
	r.Issues = append(r.Issues, Issue{
		Severity: "info",
		Path:     path,
		Field:    field,
		Code:     code,
		Message:  message,
	})
}
