package form

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dlovans/formtree/pkg/expr"
	"github.com/dlovans/formtree/pkg/schema"
)

// kindSection is the entry kind reported for repeatable sections.
const kindSection schema.Kind = "section"

type role int

const (
	roleInput role = iota
	roleLock
	roleCounter
	roleCalculated
	roleDuration
	roleCollection
)

// item is the compiled description of one control in a scope. Items are
// immutable once planned and shared by every instance of the scope.
type item struct {
	role  role
	kind  schema.Kind
	node  *schema.Node
	name  string
	label string
	path  string
	gate  int // index into scopePlan.conds; -1 when ungated

	readOnly   bool
	required   bool
	validators []validator
	initial    func(ordinal int) any

	// calculated
	deps []string
	prog *expr.Program

	// timespan duration
	start, end string

	// auto_increment
	base, step float64

	// collections
	rows        *scopePlan
	defaultRows int
}

// condPlan is a compiled condition node.
type condPlan struct {
	node   *schema.Node
	path   string
	field  string
	op     expr.Operator
	value  any
	parent int
	gated  []string // every name declared under the condition, nested ones included
}

// binding is a dependency-driven computation: a calculated value or a
// condition. Inputs are the names it reads, outputs the names whose
// effective value it may change.
type binding struct {
	calc    *item
	cond    int
	inputs  []string
	outputs []string
}

// scopePlan is the compiled form of one field namespace: the form root, a
// repeater template, a table row or a repeatable section.
type scopePlan struct {
	items     []*item
	byName    map[string]*item
	conds     []*condPlan
	bindings  []*binding       // topological order
	consumers map[string][]int // name -> indices into bindings
}

func newScopePlan() *scopePlan {
	return &scopePlan{
		byName:    make(map[string]*item),
		consumers: make(map[string][]int),
	}
}

type planner struct {
	opts *options
	errs schema.Errors
}

func (pl *planner) fail(e *schema.Error) {
	pl.errs = append(pl.errs, e)
}

// planDocument compiles the root scope of doc.
func (pl *planner) planDocument(doc *schema.Document) *scopePlan {
	root := newScopePlan()
	for i, sec := range doc.Components {
		if sec == nil {
			continue
		}
		path := fmt.Sprintf("components[%d]", i)
		if !sec.Repeatable {
			pl.addNodes(root, sec.Elements, path+".elements", -1)
			continue
		}
		key := sec.Key()
		if key == "" {
			pl.fail(schema.Errorf(path+".name", schema.CodeMissingAttribute, "repeatable section needs a name or title"))
			continue
		}
		pl.declare(root, &item{
			role:        roleCollection,
			kind:        kindSection,
			name:        key,
			label:       sec.Title,
			path:        path,
			gate:        -1,
			rows:        pl.planScope(sec.Elements, path+".elements"),
			defaultRows: pl.opts.rows.Section,
		})
	}
	pl.link(root)
	return root
}

// planScope compiles a nested namespace.
func (pl *planner) planScope(nodes []*schema.Node, path string) *scopePlan {
	sp := newScopePlan()
	pl.addNodes(sp, nodes, path, -1)
	pl.link(sp)
	return sp
}

// declare registers it in sp, rejecting duplicate names.
func (pl *planner) declare(sp *scopePlan, it *item) {
	if prev, ok := sp.byName[it.name]; ok {
		pl.fail(&schema.Error{
			Path:    it.path,
			Code:    schema.CodeDuplicateField,
			Message: fmt.Sprintf("field %q is already declared", it.name),
			Related: prev.path,
		})
		return
	}
	sp.byName[it.name] = it
	sp.items = append(sp.items, it)
	for c := it.gate; c >= 0; c = sp.conds[c].parent {
		sp.conds[c].gated = append(sp.conds[c].gated, it.name)
	}
}

func (pl *planner) addNodes(sp *scopePlan, nodes []*schema.Node, path string, gate int) {
	for i, n := range nodes {
		if n == nil {
			continue
		}
		pl.addNode(sp, n, fmt.Sprintf("%s[%d]", path, i), gate)
	}
}

// addNode is the per-kind build step. Every kind in schema.Kinds has a case.
func (pl *planner) addNode(sp *scopePlan, n *schema.Node, path string, gate int) {
	attrsPath := path + ".attributes"
	switch a := n.Attributes.(type) {
	case *schema.HeaderAttrs, *schema.ParagraphAttrs, *schema.TableStaticAttrs,
		*schema.PageBreakAttrs, *schema.LinkAttrs:
		// presentation only

	case *schema.TextAttrs:
		pl.addInput(sp, n, &a.Field, path, gate, constant(a.DefaultValue))
	case *schema.TextareaAttrs:
		pl.addInput(sp, n, &a.Field, path, gate, constant(a.DefaultValue))
	case *schema.SelectAttrs:
		if n.Multiselect {
			pl.addInput(sp, n, &a.Field, path, gate, func(int) any { return []any{} })
		} else {
			pl.addInput(sp, n, &a.Field, path, gate, constant(""))
		}
	case *schema.FileAttrs:
		pl.addInput(sp, n, &a.Field, path, gate, constant(""))
	case *schema.DateAttrs:
		pl.addInput(sp, n, &a.Field, path, gate, constant(""))
	case *schema.SignatureAttrs:
		pl.addInput(sp, n, &a.Field, path, gate, constant(""))
	case *schema.QRScannerAttrs:
		pl.addInput(sp, n, &a.Field, path, gate, constant(""))
	case *schema.MapAttrs:
		initial := constant("")
		if a.DefaultLat != nil && a.DefaultLng != nil {
			lat, lng := *a.DefaultLat, *a.DefaultLng
			initial = func(int) any { return map[string]any{"lat": lat, "lng": lng} }
		}
		pl.addInput(sp, n, &a.Field, path, gate, initial)

	case *schema.CalculatedAttrs:
		it := &item{
			role:     roleCalculated,
			kind:     n.Kind,
			node:     n,
			name:     a.FieldName,
			label:    a.Label,
			path:     attrsPath + ".field_name",
			gate:     gate,
			readOnly: true,
			deps:     append([]string(nil), a.Dependencies...),
			initial:  constant(nil),
		}
		prog, err := expr.Compile(a.Formula, a.Dependencies)
		if err != nil {
			// A broken formula is an evaluation failure, not a schema error:
			// the field stays empty.
			pl.opts.log.WithFields(logrus.Fields{
				"field":   a.FieldName,
				"formula": a.Formula,
			}).WithError(err).Debug("formula does not compile")
		}
		it.prog = prog
		pl.declare(sp, it)

	case *schema.ConditionAttrs:
		op, ok := expr.ParseOperator(a.Condition.Operator)
		if !ok {
			pl.fail(schema.Errorf(attrsPath+".condition.operator", schema.CodeInvalidAttribute,
				"unknown operator %q", a.Condition.Operator))
		}
		ci := len(sp.conds)
		sp.conds = append(sp.conds, &condPlan{
			node:   n,
			path:   attrsPath + ".condition.field",
			field:  a.Condition.Field,
			op:     op,
			value:  a.Condition.Value,
			parent: gate,
		})
		pl.addNodes(sp, a.Children, attrsPath+".children", ci)

	case *schema.RepeaterAttrs:
		pl.declare(sp, &item{
			role:        roleCollection,
			kind:        n.Kind,
			node:        n,
			name:        a.FieldName,
			label:       a.Label,
			path:        attrsPath + ".field_name",
			gate:        gate,
			rows:        pl.planScope(a.Template.Elements, attrsPath+".template.elements"),
			defaultRows: pl.opts.rows.Repeater,
		})

	case *schema.TableDynamicAttrs:
		pl.declare(sp, &item{
			role:        roleCollection,
			kind:        n.Kind,
			node:        n,
			name:        a.FieldName,
			label:       a.Label,
			path:        attrsPath + ".field_name",
			gate:        gate,
			rows:        pl.planColumns(a.Columns, attrsPath+".columns"),
			defaultRows: pl.opts.rows.TableDynamic,
		})

	case *schema.TimespanAttrs:
		start, end := a.Start(), a.End()
		if start == end {
			pl.fail(schema.Errorf(attrsPath+".end_field", schema.CodeInvalidAttribute,
				"start_field and end_field are both %q", start))
			return
		}
		for _, name := range []string{start, end} {
			pl.declare(sp, &item{
				role:    roleInput,
				kind:    n.Kind,
				node:    n,
				name:    name,
				label:   a.Label,
				path:    attrsPath + ".field_name",
				gate:    gate,
				initial: constant(""),
			})
		}
		pl.declare(sp, &item{
			role:  roleDuration,
			kind:  n.Kind,
			node:  n,
			name:  a.FieldName,
			label: a.Label,
			path:  attrsPath + ".field_name",
			gate:  gate,
			start: start,
			end:   end,
		})

	case *schema.LockAttrs:
		value := a.Value
		if value == nil {
			value = ""
		}
		pl.declare(sp, &item{
			role:     roleLock,
			kind:     n.Kind,
			node:     n,
			name:     a.FieldName,
			label:    a.Label,
			path:     attrsPath + ".field_name",
			gate:     gate,
			readOnly: true,
			initial:  constant(value),
		})

	case *schema.AutoIncrementAttrs:
		start, step := a.Start, a.Step
		pl.declare(sp, &item{
			role:     roleCounter,
			kind:     n.Kind,
			node:     n,
			name:     a.FieldName,
			label:    a.Label,
			path:     attrsPath + ".field_name",
			gate:     gate,
			readOnly: true,
			initial:  func(ordinal int) any { return start + step*float64(ordinal) },
			base:     start,
			step:     step,
		})

	default:
		pl.fail(schema.Errorf(path+".type", schema.CodeUnknownType, "no build rule for %q", n.Kind))
	}
}

func (pl *planner) addInput(sp *scopePlan, n *schema.Node, f *schema.Field, path string, gate int, initial func(int) any) {
	it := &item{
		role:     roleInput,
		kind:     n.Kind,
		node:     n,
		name:     f.FieldName,
		label:    f.Label,
		path:     path + ".attributes.field_name",
		gate:     gate,
		required: f.IsRequired,
		initial:  initial,
	}
	if f.IsRequired {
		it.validators = append(it.validators, requiredValidator())
	}
	if f.Validations != nil {
		vs, err := ruleValidators(n.Kind, f.Validations)
		if err != nil {
			pl.fail(schema.Errorf(path+".attributes.validations", schema.CodeInvalidAttribute, "%v", err))
		}
		it.validators = append(it.validators, vs...)
	}
	pl.declare(sp, it)
}

// planColumns builds the row plan of a dynamic table: one empty text field
// per column.
func (pl *planner) planColumns(columns []string, path string) *scopePlan {
	sp := newScopePlan()
	for i, col := range columns {
		colPath := fmt.Sprintf("%s[%d]", path, i)
		if strings.TrimSpace(col) == "" {
			pl.fail(schema.Errorf(colPath, schema.CodeInvalidAttribute, "column name is empty"))
			continue
		}
		pl.declare(sp, &item{
			role:    roleInput,
			kind:    schema.KindText,
			name:    col,
			label:   col,
			path:    colPath,
			gate:    -1,
			initial: constant(""),
		})
	}
	return sp
}

// link resolves references inside sp, builds its bindings and orders them.
func (pl *planner) link(sp *scopePlan) {
	var bindings []*binding
	for _, it := range sp.items {
		if it.role != roleCalculated {
			continue
		}
		ok := true
		for j, dep := range it.deps {
			if _, found := sp.byName[dep]; !found {
				pl.fail(schema.Errorf(fmt.Sprintf("%s.dependencies[%d]", strings.TrimSuffix(it.path, ".field_name"), j),
					schema.CodeDanglingRef, "calculated field %q depends on unknown field %q", it.name, dep))
				ok = false
			}
		}
		if ok {
			bindings = append(bindings, &binding{calc: it, cond: -1, inputs: it.deps, outputs: []string{it.name}})
		}
	}
	for ci, c := range sp.conds {
		if _, found := sp.byName[c.field]; !found {
			pl.fail(schema.Errorf(c.path, schema.CodeDanglingRef, "condition refers to unknown field %q", c.field))
			continue
		}
		bindings = append(bindings, &binding{cond: ci, inputs: []string{c.field}, outputs: c.gated})
	}

	ordered, cyclic := topoSort(bindings)
	if len(cyclic) > 0 {
		pl.fail(cycleError(sp, cyclic))
		return
	}
	sp.bindings = ordered
	for i, b := range ordered {
		for _, in := range b.inputs {
			sp.consumers[in] = appendUnique(sp.consumers[in], i)
		}
	}
}

// topoSort orders bindings so that every binding runs after the bindings
// producing its inputs. Bindings left over sit on or behind a cycle.
func topoSort(bindings []*binding) (ordered, cyclic []*binding) {
	producers := make(map[string][]int)
	for i, b := range bindings {
		for _, out := range b.outputs {
			producers[out] = append(producers[out], i)
		}
	}
	indegree := make([]int, len(bindings))
	next := make([][]int, len(bindings))
	for i, b := range bindings {
		for _, in := range b.inputs {
			for _, p := range producers[in] {
				next[p] = append(next[p], i)
				indegree[i]++
			}
		}
	}
	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	done := make([]bool, len(bindings))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		done[i] = true
		ordered = append(ordered, bindings[i])
		for _, j := range next[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	for i, b := range bindings {
		if !done[i] {
			cyclic = append(cyclic, b)
		}
	}
	return ordered, cyclic
}

func cycleError(sp *scopePlan, cyclic []*binding) *schema.Error {
	var names []string
	path := ""
	for _, b := range cyclic {
		if b.calc != nil {
			names = append(names, b.calc.name)
			if path == "" {
				path = b.calc.path
			}
			continue
		}
		c := sp.conds[b.cond]
		names = append(names, "condition("+c.field+")")
		if path == "" {
			path = c.path
		}
	}
	sort.Strings(names)
	return schema.Errorf(path, schema.CodeDependencyCycle, "dependency cycle through %s", strings.Join(names, ", "))
}

func constant(v any) func(int) any {
	return func(int) any { return v }
}

func appendUnique(xs []int, x int) []int {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}
