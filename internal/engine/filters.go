package engine

import (
	"fmt"
	"strings"
)

// MaxFilterSlots is the number of numbered search_field/search_value/
// search_operator slots read from a request.
const MaxFilterSlots = 8

type Filter struct {
	Field    string
	Value    string
	Operator string
}

// ParseFilters reads slots 1..8 in order. A slot without a field is skipped;
// a missing operator means "equal". When no slot is set, a legacy
// {search, search_field} pair becomes a single case-insensitive partial match.
func ParseFilters(b Body) ([]Filter, error) {
	var filters []Filter

	for i := 1; i <= MaxFilterSlots; i++ {
		field, ok := b.String(fmt.Sprintf("search_field%d", i))
		if !ok || field == "" {
			continue
		}
		if !IsIdentifier(field) {
			return nil, InvalidIdentifierError(field)
		}
		value, _ := b.String(fmt.Sprintf("search_value%d", i))
		op, ok := b.String(fmt.Sprintf("search_operator%d", i))
		if !ok || op == "" {
			op = OpEqual
		}
		filters = append(filters, Filter{
			Field:    field,
			Value:    value,
			Operator: strings.ToLower(op),
		})
	}

	if len(filters) > 0 {
		return filters, nil
	}

	search, hasSearch := b.String("search")
	field, hasField := b.String("search_field")
	if hasSearch && hasField && field != "" {
		if !IsIdentifier(field) {
			return nil, InvalidIdentifierError(field)
		}
		filters = append(filters, Filter{Field: field, Value: search, Operator: OpILike})
	}
	return filters, nil
}
