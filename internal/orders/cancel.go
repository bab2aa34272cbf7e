package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crudgate/internal/engine"
	"crudgate/internal/store"
)

const statusNotRequired = "not_required"

type CancelOrderInput struct {
	SaleID ID     `json:"sale_id"`
	Reason string `json:"reason"`
}

type CancelOrderResult struct {
	Success        bool `json:"success"`
	SaleID         any  `json:"sale_id"`
	ItemsCancelled int  `json:"items_cancelled"`
	StockMovements int  `json:"stock_movements"`
}

// CancelOrder cancels a sale that has not progressed past processing,
// returns tracked stock and cancels the invoice, receivables and partner
// earnings. Nothing is written when the sale is not cancellable.
func CancelOrder(ctx context.Context, db TxRunner, in CancelOrderInput) (*CancelOrderResult, error) {
	if !in.SaleID.Valid() {
		return nil, engine.MissingMatchKeyError("sale_id")
	}

	res := &CancelOrderResult{Success: true, SaleID: in.SaleID.Value}
	err := db.ExecuteTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := store.QueryRow(ctx, tx,
			"SELECT id, status, invoice_id FROM sales WHERE id = $1 FOR UPDATE", in.SaleID.Value)
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("sale", in.SaleID.String())
		}
		if err != nil {
			return fmt.Errorf("load sale: %w", err)
		}

		status := fmt.Sprint(sale["status"])
		if !Lifecycle.CanTransition(status, StatusCancelled) {
			return engine.InvalidStateError(fmt.Sprintf("Order cannot be cancelled: current status is %s", status))
		}

		items, err := tx.Query(ctx,
			"SELECT id, product_id, item_type, quantity FROM sale_items WHERE sale_id = $1 ORDER BY id",
			in.SaleID.Value)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}

		moved, err := returnStock(ctx, tx, in.SaleID.Value, items)
		if err != nil {
			return err
		}
		res.StockMovements = moved
		res.ItemsCancelled = len(items)

		if _, err := tx.Query(ctx, `UPDATE sale_items SET status = $1,
    separation_status = CASE WHEN separation_status = $2 THEN separation_status ELSE $1 END,
    delivery_status = CASE WHEN delivery_status = $2 THEN delivery_status ELSE $1 END
WHERE sale_id = $3`, StatusCancelled, statusNotRequired, in.SaleID.Value); err != nil {
			return fmt.Errorf("cancel items: %w", err)
		}

		if _, err := tx.Query(ctx,
			"UPDATE sales SET status = $1, cancelled_at = NOW(), cancellation_reason = $2 WHERE id = $3",
			StatusCancelled, in.Reason, in.SaleID.Value); err != nil {
			return fmt.Errorf("cancel sale: %w", err)
		}

		if invoiceID := sale["invoice_id"]; present(invoiceID) {
			if _, err := tx.Query(ctx, "UPDATE invoices SET status = $1 WHERE id = $2", StatusCancelled, invoiceID); err != nil {
				return fmt.Errorf("cancel invoice: %w", err)
			}
			if _, err := tx.Query(ctx, "UPDATE accounts_receivable SET status = $1 WHERE invoice_id = $2", StatusCancelled, invoiceID); err != nil {
				return fmt.Errorf("cancel receivables: %w", err)
			}
		}

		if _, err := tx.Query(ctx, "UPDATE partner_earnings SET status = $1 WHERE sale_id = $2", StatusCancelled, in.SaleID.Value); err != nil {
			return fmt.Errorf("cancel earnings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// returnStock puts product quantities back. Products are loaded in one
// query; a running total per product keeps repeated lines consistent.
func returnStock(ctx context.Context, tx store.Tx, saleID any, items []map[string]any) (int, error) {
	var ids []any
	seen := make(map[string]bool)
	for _, it := range items {
		if fmt.Sprint(it["item_type"]) != "product" || !present(it["product_id"]) {
			continue
		}
		key := idKey(it["product_id"])
		if !seen[key] {
			seen[key] = true
			ids = append(ids, it["product_id"])
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	for i := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	products, err := tx.Query(ctx,
		"SELECT id, stock_quantity, track_stock FROM products WHERE id IN ("+strings.Join(placeholders, ", ")+") FOR UPDATE",
		ids...)
	if err != nil {
		return 0, fmt.Errorf("load products: %w", err)
	}

	running := make(map[string]float64, len(products))
	tracked := make(map[string]bool, len(products))
	for _, p := range products {
		key := idKey(p["id"])
		running[key], _ = toFloat(p["stock_quantity"])
		tracked[key] = isTruthy(p["track_stock"])
	}

	moved := 0
	for _, it := range items {
		if fmt.Sprint(it["item_type"]) != "product" || !present(it["product_id"]) {
			continue
		}
		key := idKey(it["product_id"])
		if !tracked[key] {
			continue
		}
		qty, _ := toFloat(it["quantity"])
		if qty <= 0 {
			continue
		}
		previous := running[key]
		next := previous + qty

		movement := engine.NewRow(
			"product_id", it["product_id"],
			"sale_id", saleID,
			"movement_type", "return",
			"quantity", qty,
			"previous_quantity", previous,
			"new_quantity", next,
			"reason", "order cancelled",
		)
		if _, err := insert(ctx, tx, "stock_movements", movement); err != nil {
			return 0, err
		}
		if _, err := tx.Query(ctx, "UPDATE products SET stock_quantity = $1 WHERE id = $2", next, it["product_id"]); err != nil {
			return 0, fmt.Errorf("return stock: %w", err)
		}
		running[key] = next
		moved++
	}
	return moved, nil
}
