package engine

import "strings"

// Symbolic operator names accepted in search_operatorN.
const (
	OpEqual     = "equal"
	OpNotEqual  = "not_equal"
	OpLike      = "like"
	OpILike     = "ilike"
	OpGt        = "gt"
	OpGte       = "gte"
	OpLt        = "lt"
	OpLte       = "lte"
	OpIn        = "in"
	OpIsNull    = "is_null"
	OpIsNotNull = "is_not_null"
)

// Operators maps every symbolic operator to its SQL token. The set is closed.
var Operators = map[string]string{
	OpEqual:     "=",
	OpNotEqual:  "!=",
	OpLike:      "LIKE",
	OpILike:     "ILIKE",
	OpGt:        ">",
	OpGte:       ">=",
	OpLt:        "<",
	OpLte:       "<=",
	OpIn:        "IN",
	OpIsNull:    "IS NULL",
	OpIsNotNull: "IS NOT NULL",
}

// ResolveOperator returns the SQL token for a symbolic operator name.
// Unknown names resolve to "=" unless strict is set, in which case they
// fail with UNKNOWN_OPERATOR. The aggregate action is the only strict caller.
func ResolveOperator(name string, strict bool) (string, error) {
	if tok, ok := Operators[strings.ToLower(name)]; ok {
		return tok, nil
	}
	if strict {
		return "", UnknownOperatorError(name)
	}
	return "=", nil
}
