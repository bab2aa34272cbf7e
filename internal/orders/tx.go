package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"crudgate/internal/engine"
	"crudgate/internal/store"
)

// TxRunner runs fn inside one database transaction. *store.Store
// implements it.
type TxRunner interface {
	ExecuteTransaction(ctx context.Context, fn store.TxFunc) error
}

// insert writes row into table through the generic create compiler, so
// identifiers are validated and protected columns dropped exactly as for
// /api_crud, and returns the inserted row.
func insert(ctx context.Context, tx store.Tx, table string, row *engine.Row) (map[string]any, error) {
	cq, err := (&engine.CreateOp{Table: table, Payload: row}).Compile()
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, cq.SQL, cq.Params...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: no row returned", table)
	}
	return rows[0], nil
}

// idKey renders a generated id (int, uuid string, ...) as a map key.
func idKey(v any) string {
	return fmt.Sprint(v)
}

// toFloat converts the numeric shapes the driver and JSON decoding produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// isTruthy treats a missing flag as true: products track stock unless told
// otherwise.
func isTruthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return true
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err != nil || parsed
	}
	return true
}

func present(v any) bool {
	return v != nil && v != ""
}

// ID is a row id as sent by a client: an integer or a string such as a
// uuid. Integers decode to int64 so the driver binds them natively.
type ID struct {
	Value any
}

func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	id.Value = engine.NormalizeNumber(v)
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value)
}

func (id ID) Valid() bool {
	return present(id.Value)
}

func (id ID) String() string {
	return idKey(id.Value)
}
