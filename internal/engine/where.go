package engine

import (
	"fmt"
	"strings"
)

// WhereClause is a compiled WHERE clause. SQL is empty when there is nothing
// to filter on; otherwise it starts with "WHERE ". Next is the index the
// following placeholder should use.
type WhereClause struct {
	SQL    string
	Params []any
	Next   int
}

type paramBuilder struct {
	params []any
	n      int
}

// newParamBuilder numbers placeholders starting at start.
func newParamBuilder(start int) *paramBuilder {
	if start < 1 {
		start = 1
	}
	return &paramBuilder{n: start - 1}
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

// ListWhere is the permissive strategy used by list and count: unknown
// operators compile as "=".
func ListWhere(sel Selection, start int) (WhereClause, error) {
	return BuildWhere(sel, start, false)
}

// AggregateWhere is the strict strategy used by aggregate: unknown operators
// fail the request.
func AggregateWhere(sel Selection, start int) (WhereClause, error) {
	return BuildWhere(sel, start, true)
}

// BuildWhere compiles sel into a parameterized WHERE clause whose first
// placeholder is $start.
func BuildWhere(sel Selection, start int, strict bool) (WhereClause, error) {
	pb := newParamBuilder(start)

	var frags []string
	for _, f := range sel.Filters {
		frag, err := buildFilter(f, pb, strict)
		if err != nil {
			return WhereClause{}, err
		}
		frags = append(frags, frag)
	}

	combine := "AND"
	if strings.EqualFold(strings.TrimSpace(sel.Combine), "OR") {
		combine = "OR"
	}

	body := strings.Join(frags, " "+combine+" ")
	if sel.ExcludeDeleted {
		// Soft-delete exclusion is always conjunctive; an OR group is
		// parenthesized so it cannot escape the deleted_at check.
		if combine == "OR" && len(frags) > 1 {
			body = "(" + body + ")"
		}
		if body != "" {
			body += " AND "
		}
		body += `"deleted_at" IS NULL`
	}

	wc := WhereClause{Params: pb.params, Next: pb.n + 1}
	if body != "" {
		wc.SQL = "WHERE " + body
	}
	return wc, nil
}

func buildFilter(f Filter, pb *paramBuilder, strict bool) (string, error) {
	col, err := QuoteIdent(f.Field)
	if err != nil {
		return "", err
	}
	op, err := ResolveOperator(f.Operator, strict)
	if err != nil {
		return "", err
	}

	switch op {
	case "IS NULL", "IS NOT NULL":
		return col + " " + op, nil
	case "IN":
		tokens := strings.Split(f.Value, ",")
		placeholders := make([]string, len(tokens))
		for i, tok := range tokens {
			placeholders[i] = pb.Add(strings.TrimSpace(tok))
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	case "LIKE", "ILIKE":
		v := f.Value
		if !strings.Contains(v, "%") {
			v = "%" + v + "%"
		}
		return fmt.Sprintf("%s %s %s", col, op, pb.Add(v)), nil
	default:
		return fmt.Sprintf("%s %s %s", col, op, pb.Add(f.Value)), nil
	}
}

// buildOrderBy parses "col [ASC|DESC], ..." into a quoted ORDER BY list.
// Only DESC (any case) sorts descending. A bare "*" column is passed
// through unquoted; some callers rely on it.
func buildOrderBy(spec string) (string, error) {
	var parts []string
	for _, seg := range strings.Split(spec, ",") {
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}
		col := fields[0]
		if col != "*" {
			quoted, err := QuoteIdent(col)
			if err != nil {
				return "", err
			}
			col = quoted
		}
		dir := "ASC"
		if len(fields) > 1 && strings.EqualFold(fields[1], "DESC") {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}
