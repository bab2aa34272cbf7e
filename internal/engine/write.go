package engine

import (
	"fmt"
	"strings"
)

// ProtectedColumns are never written through the generic compiler. They are
// dropped from any payload before column lists are built; dedicated
// endpoints own them.
var ProtectedColumns = map[string]struct{}{
	"password_hash": {},
	"api_key_hash":  {},
	"token_hash":    {},
}

// sessionMatchedTable is the one table whose rows are updated by session_id
// instead of id.
const sessionMatchedTable = "controle_atendimento"

func isProtected(col string) bool {
	_, ok := ProtectedColumns[col]
	return ok
}

// writableColumns returns the payload keys that are valid identifiers and
// not protected, in payload order, skipping any key in exclude.
func writableColumns(row *Row, exclude string) []string {
	if row == nil {
		return nil
	}
	var cols []string
	for _, k := range row.Keys {
		if k == exclude || isProtected(k) || !IsIdentifier(k) {
			continue
		}
		cols = append(cols, k)
	}
	return cols
}

// MatchKey is the column update matches rows on for table.
func MatchKey(table string) string {
	if table == sessionMatchedTable {
		return "session_id"
	}
	return "id"
}

type CreateOp struct {
	Table   string
	Payload *Row
}

func (op *CreateOp) Action() Action { return ActionCreate }

// Compile builds INSERT INTO <table> (<cols>) VALUES (<placeholders>) RETURNING *.
// Missing values bind as NULL.
func (op *CreateOp) Compile() (CompiledQuery, error) {
	table, err := quoteTable(op.Table)
	if err != nil {
		return CompiledQuery{}, err
	}
	if op.Payload.Len() == 0 {
		return CompiledQuery{}, EmptyPayloadError("Payload is required")
	}

	cols := writableColumns(op.Payload, "")
	if len(cols) == 0 {
		return CompiledQuery{}, EmptyPayloadError("Payload has no writable columns")
	}

	pb := newParamBuilder(1)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = `"` + c + `"`
		v, _ := op.Payload.Get(c)
		placeholders[i] = pb.Add(v)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return CompiledQuery{SQL: sql, Params: pb.params}, nil
}

type UpdateOp struct {
	Table   string
	Payload *Row
}

func (op *UpdateOp) Action() Action { return ActionUpdate }

// Compile builds UPDATE <table> SET <col = $n, ...> WHERE <match> = $last RETURNING *.
func (op *UpdateOp) Compile() (CompiledQuery, error) {
	table, err := quoteTable(op.Table)
	if err != nil {
		return CompiledQuery{}, err
	}

	key := MatchKey(op.Table)
	matchValue, ok := op.Payload.Get(key)
	if !ok || matchValue == nil || matchValue == "" {
		return CompiledQuery{}, MissingMatchKeyError(key)
	}

	cols := writableColumns(op.Payload, key)
	if len(cols) == 0 {
		return CompiledQuery{}, NoColumnsToUpdateError()
	}

	pb := newParamBuilder(1)
	sets := make([]string, len(cols))
	for i, c := range cols {
		v, _ := op.Payload.Get(c)
		sets[i] = fmt.Sprintf(`"%s" = %s`, c, pb.Add(v))
	}
	matchPH := pb.Add(matchValue)

	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE "%s" = %s RETURNING *`,
		table, strings.Join(sets, ", "), key, matchPH)
	return CompiledQuery{SQL: sql, Params: pb.params}, nil
}

type BatchCreateOp struct {
	Table string
	Rows  []Row
}

func (op *BatchCreateOp) Action() Action { return ActionBatchCreate }

// Compile builds one multi-row INSERT. The column set comes from the first
// row only; later rows bind NULL for any of those columns they lack and
// their extra keys are ignored.
func (op *BatchCreateOp) Compile() (CompiledQuery, error) {
	table, err := quoteTable(op.Table)
	if err != nil {
		return CompiledQuery{}, err
	}
	if len(op.Rows) == 0 {
		return CompiledQuery{}, EmptyPayloadError("batch_create requires a non-empty payload array")
	}

	cols := writableColumns(&op.Rows[0], "")
	if len(cols) == 0 {
		return CompiledQuery{}, EmptyPayloadError("Payload has no writable columns")
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = `"` + c + `"`
	}

	pb := newParamBuilder(1)
	tuples := make([]string, len(op.Rows))
	for r := range op.Rows {
		row := &op.Rows[r]
		placeholders := make([]string, len(cols))
		for i, c := range cols {
			v, _ := row.Get(c)
			placeholders[i] = pb.Add(v)
		}
		tuples[r] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *",
		table, strings.Join(quoted, ", "), strings.Join(tuples, ", "))
	return CompiledQuery{SQL: sql, Params: pb.params}, nil
}
