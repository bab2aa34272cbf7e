package engine

import (
	"fmt"
	"strings"
)

var aggregateFunctions = map[string]bool{
	"SUM":   true,
	"COUNT": true,
	"AVG":   true,
	"MIN":   true,
	"MAX":   true,
}

type ListOp struct {
	Table  string
	Fields []string
	Selection
	Sort   string
	Limit  *int
	Offset *int
}

func (op *ListOp) Action() Action { return ActionList }

// Compile builds
// SELECT <fields|*> FROM <table> [WHERE] ORDER BY <sort|1> [LIMIT n] [OFFSET n].
func (op *ListOp) Compile() (CompiledQuery, error) {
	table, err := quoteTable(op.Table)
	if err != nil {
		return CompiledQuery{}, err
	}

	columns := "*"
	if len(op.Fields) > 0 {
		quoted, err := quoteAll(op.Fields)
		if err != nil {
			return CompiledQuery{}, err
		}
		columns = strings.Join(quoted, ", ")
	}

	orderBy, err := buildOrderBy(op.Sort)
	if err != nil {
		return CompiledQuery{}, err
	}
	if orderBy == "" {
		orderBy = "1"
	}

	where, err := ListWhere(op.Selection, 1)
	if err != nil {
		return CompiledQuery{}, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", columns, table)
	if where.SQL != "" {
		sql += " " + where.SQL
	}
	sql += " ORDER BY " + orderBy
	if op.Limit != nil {
		sql += fmt.Sprintf(" LIMIT %d", *op.Limit)
	}
	if op.Offset != nil {
		sql += fmt.Sprintf(" OFFSET %d", *op.Offset)
	}

	return CompiledQuery{SQL: sql, Params: where.Params}, nil
}

type CountOp struct {
	Table string
	Selection
}

func (op *CountOp) Action() Action { return ActionCount }

func (op *CountOp) Compile() (CompiledQuery, error) {
	table, err := quoteTable(op.Table)
	if err != nil {
		return CompiledQuery{}, err
	}
	where, err := ListWhere(op.Selection, 1)
	if err != nil {
		return CompiledQuery{}, err
	}

	sql := fmt.Sprintf("SELECT COUNT(*)::int AS count FROM %s", table)
	if where.SQL != "" {
		sql += " " + where.SQL
	}
	return CompiledQuery{SQL: sql, Params: where.Params}, nil
}

type AggregateOp struct {
	Table      string
	Aggregates []AggregateSpec
	GroupBy    []string
	Selection
	Sort  string
	Limit *int
}

func (op *AggregateOp) Action() Action { return ActionAggregate }

// Compile builds SELECT <group cols>, <FUNC(field) AS alias>... with the
// strict WHERE strategy, then optional GROUP BY, ORDER BY and a bare LIMIT.
func (op *AggregateOp) Compile() (CompiledQuery, error) {
	table, err := quoteTable(op.Table)
	if err != nil {
		return CompiledQuery{}, err
	}
	if len(op.Aggregates) == 0 {
		return CompiledQuery{}, InvalidPayloadError("aggregates must be a non-empty array")
	}

	groupCols, err := quoteAll(op.GroupBy)
	if err != nil {
		return CompiledQuery{}, err
	}

	selectList := append([]string{}, groupCols...)
	for _, agg := range op.Aggregates {
		expr, err := compileAggregate(agg)
		if err != nil {
			return CompiledQuery{}, err
		}
		selectList = append(selectList, expr)
	}

	where, err := AggregateWhere(op.Selection, 1)
	if err != nil {
		return CompiledQuery{}, err
	}

	orderBy, err := buildOrderBy(op.Sort)
	if err != nil {
		return CompiledQuery{}, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectList, ", "), table)
	if where.SQL != "" {
		sql += " " + where.SQL
	}
	if len(groupCols) > 0 {
		sql += " GROUP BY " + strings.Join(groupCols, ", ")
	}
	if orderBy != "" {
		sql += " ORDER BY " + orderBy
	}
	if op.Limit != nil {
		sql += fmt.Sprintf(" LIMIT %d", *op.Limit)
	}

	return CompiledQuery{SQL: sql, Params: where.Params}, nil
}

func compileAggregate(agg AggregateSpec) (string, error) {
	fn := strings.ToUpper(strings.TrimSpace(agg.Function))
	if !aggregateFunctions[fn] {
		return "", InvalidAggregateFunctionError(agg.Function)
	}

	target := "*"
	aliasSuffix := "all"
	if agg.Field != "" && agg.Field != "*" {
		quoted, err := QuoteIdent(agg.Field)
		if err != nil {
			return "", err
		}
		target = quoted
		aliasSuffix = agg.Field
	}

	alias := agg.Alias
	if alias == "" {
		alias = strings.ToLower(fn) + "_" + aliasSuffix
	}
	quotedAlias, err := QuoteIdent(alias)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s(%s) AS %s", fn, target, quotedAlias), nil
}

func quoteTable(table string) (string, error) {
	if table == "" {
		return "", MissingTableError()
	}
	return QuoteIdent(table)
}
