package engine

import (
	"fmt"
	"time"
)

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// DeleteOp never removes a row: it stamps deleted_at. Deleting the same id
// twice just moves the timestamp.
type DeleteOp struct {
	Table   string
	Payload *Row
}

func (op *DeleteOp) Action() Action { return ActionDelete }

func (op *DeleteOp) Compile() (CompiledQuery, error) {
	table, err := quoteTable(op.Table)
	if err != nil {
		return CompiledQuery{}, err
	}

	id, ok := op.Payload.Get("id")
	if !ok || id == nil || id == "" {
		return CompiledQuery{}, MissingMatchKeyError("id")
	}

	var deletedAt any = now()
	if v, ok := op.Payload.Get("deleted_at"); ok && v != nil && v != "" {
		deletedAt = v
	}

	sql := fmt.Sprintf("UPDATE %s SET deleted_at = $1 WHERE id = $2 RETURNING *", table)
	return CompiledQuery{SQL: sql, Params: []any{deletedAt, id}}, nil
}
