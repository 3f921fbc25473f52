package form

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/dlovans/formtree/pkg/expr"
)

// env carries the settings every instance of a form shares.
type env struct {
	detach DetachPolicy
	log    logrus.FieldLogger
}

// instance is the live state of one scope: its controls and the current
// result of each of its conditions.
type instance struct {
	plan    *scopePlan
	group   *group
	gates   []bool
	ordinal int
	parent  *array // nil for the root
	env     *env
}

// instantiate builds the controls of sp and evaluates all of its bindings
// once against the initial values.
func instantiate(sp *scopePlan, ordinal int, e *env) *instance {
	in := &instance{
		plan:    sp,
		group:   newGroup(),
		gates:   make([]bool, len(sp.conds)),
		ordinal: ordinal,
		env:     e,
	}
	for _, it := range sp.items {
		switch it.role {
		case roleCollection:
			a := &array{it: it, in: in}
			for i := 0; i < it.defaultRows; i++ {
				a.push()
			}
			in.group.add(it.name, a)
		case roleDuration:
			in.group.add(it.name, &duration{it: it, in: in})
		default:
			in.group.add(it.name, &field{it: it, in: in, val: it.initial(ordinal)})
		}
	}
	for _, b := range sp.bindings {
		in.run(b)
	}
	return in
}

// active reports whether every condition enclosing gate currently holds.
func (in *instance) active(gate int) bool {
	for c := gate; c >= 0; c = in.plan.conds[c].parent {
		if !in.gates[c] {
			return false
		}
	}
	return true
}

// lookup returns the effective value of name: nil when it is unknown or
// switched off by a condition.
func (in *instance) lookup(name string) any {
	c, ok := in.group.entries[name]
	if !ok || !in.active(c.def().gate) {
		return nil
	}
	return c.value()
}

// propagate re-runs the bindings reachable from the changed names, in
// dependency order, and returns every name whose effective value may have
// changed. Bindings that do not depend on a changed name are not touched.
func (in *instance) propagate(changed ...string) []string {
	sp := in.plan
	marked := make([]bool, len(sp.bindings))
	seen := make(map[string]bool)
	stack := append([]string(nil), changed...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[name] {
			continue
		}
		seen[name] = true
		for _, bi := range sp.consumers[name] {
			if !marked[bi] {
				marked[bi] = true
				stack = append(stack, sp.bindings[bi].outputs...)
			}
		}
	}

	touched := append([]string(nil), changed...)
	for i, b := range sp.bindings {
		if marked[i] && in.run(b) {
			touched = append(touched, b.outputs...)
		}
	}
	return dedupe(touched)
}

// run evaluates one binding and reports whether its outputs changed.
func (in *instance) run(b *binding) bool {
	if b.calc != nil {
		f := in.group.entries[b.calc.name].(*field)
		v := in.calculate(b.calc)
		if sameValue(f.val, v) {
			return false
		}
		f.val = v
		return true
	}

	c := in.plan.conds[b.cond]
	holds := expr.Compare(in.lookup(c.field), c.op, c.value)
	if in.gates[b.cond] == holds {
		return false
	}
	in.gates[b.cond] = holds
	if !holds && in.env.detach == DetachReset {
		in.resetGated(c)
	}
	return true
}

// calculate evaluates a calculated field. Failures leave it empty.
func (in *instance) calculate(it *item) any {
	if it.prog == nil {
		return nil
	}
	v, err := it.prog.EvalValues(in.lookup)
	if err != nil {
		in.env.log.WithFields(logrus.Fields{
			"field":   it.name,
			"formula": it.prog.String(),
		}).WithError(err).Debug("formula evaluation failed")
		return nil
	}
	return v
}

// resetGated restores the controls under a condition that just switched off.
func (in *instance) resetGated(c *condPlan) {
	for _, name := range c.gated {
		switch x := in.group.entries[name].(type) {
		case *field:
			if x.it.role != roleCalculated {
				x.reset()
			}
		case *array:
			x.reset()
		}
	}
}

// snapshot returns the values of the active controls.
func (in *instance) snapshot() map[string]any {
	out := make(map[string]any, len(in.group.names))
	for _, name := range in.group.names {
		c := in.group.entries[name]
		if in.active(c.def().gate) {
			out[name] = c.value()
		}
	}
	return out
}

// prefix is the dotted path of the instance followed by a dot, "" for the root.
func (in *instance) prefix() string {
	if in.parent == nil {
		return ""
	}
	owner := in.parent.in
	return owner.prefix() + in.parent.it.name + "." + strconv.Itoa(in.parent.index(in)) + "."
}

// paths qualifies names with the instance prefix.
func (in *instance) paths(names []string) []string {
	p := in.prefix()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = p + n
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
