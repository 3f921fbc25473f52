package expr

// Operator is a comparison operator usable in condition nodes.
type Operator string

const (
	OpEQ  Operator = "=="
	OpNEQ Operator = "!="
	OpGT  Operator = ">"
	OpLT  Operator = "<"
	OpGTE Operator = ">="
	OpLTE Operator = "<="
)

// ParseOperator accepts the six comparison operators. "===" and "!=="
// are read as their loose forms.
func ParseOperator(s string) (Operator, bool) {
	switch s {
	case "==", "===":
		return OpEQ, true
	case "!=", "!==":
		return OpNEQ, true
	case ">", "<", ">=", "<=":
		return Operator(s), true
	}
	return "", false
}

// Compare applies op to left and right.
//
// Both sides are compared as numbers when both parse as numbers. Otherwise
// == and != compare the text of the values, with nil reading as "".
// Relational operators on non-numeric values are undefined and report false.
func Compare(left any, op Operator, right any) bool {
	return compareValues(left, op, right)
}

func compareValues(left any, op Operator, right any) bool {
	a, aOk := AsNumber(left)
	b, bOk := AsNumber(right)
	if aOk && bOk {
		switch op {
		case OpEQ:
			return a == b
		case OpNEQ:
			return a != b
		case OpGT:
			return a > b
		case OpLT:
			return a < b
		case OpGTE:
			return a >= b
		case OpLTE:
			return a <= b
		}
		return false
	}
	switch op {
	case OpEQ:
		return formatValue(left) == formatValue(right)
	case OpNEQ:
		return formatValue(left) != formatValue(right)
	}
	return false
}
