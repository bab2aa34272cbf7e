package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crudgate/internal/store"
)

type stmt struct {
	sql  string
	args []any
}

// fakeDB keeps the statements of committed transactions only, the way a
// real database would after a rollback.
type fakeDB struct {
	sale      map[string]any
	items     []map[string]any
	products  []map[string]any
	stock     map[string]any
	failOn    string
	committed []stmt
	attempted []stmt
	rollbacks int
	nextID    int64
}

func (f *fakeDB) ExecuteTransaction(ctx context.Context, fn store.TxFunc) error {
	tx := &fakeTx{db: f}
	err := fn(ctx, tx)
	f.attempted = append(f.attempted, tx.stmts...)
	if err != nil {
		f.rollbacks++
		return err
	}
	f.committed = append(f.committed, tx.stmts...)
	return nil
}

type fakeTx struct {
	db    *fakeDB
	stmts []stmt
}

func (t *fakeTx) Query(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	t.stmts = append(t.stmts, stmt{sql: sql, args: args})
	f := t.db
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return nil, errors.New("forced failure on " + f.failOn)
	}
	switch {
	case strings.HasPrefix(sql, "INSERT INTO"):
		f.nextID++
		return []map[string]any{{"id": f.nextID}}, nil
	case strings.Contains(sql, "FROM sales"):
		if f.sale == nil {
			return nil, nil
		}
		return []map[string]any{f.sale}, nil
	case strings.Contains(sql, "FROM sale_items"):
		return f.items, nil
	case strings.Contains(sql, "FROM products WHERE id IN"):
		return f.products, nil
	case strings.Contains(sql, "FROM products WHERE id = $1"):
		q, ok := f.stock[fmt.Sprint(args[0])]
		if !ok {
			return nil, nil
		}
		return []map[string]any{{"id": args[0], "stock_quantity": q}}, nil
	}
	return nil, nil
}

func (f *fakeDB) committedMatching(substr string) []stmt {
	var out []stmt
	for _, s := range f.committed {
		if strings.Contains(s.sql, substr) {
			out = append(out, s)
		}
	}
	return out
}
