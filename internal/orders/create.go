package orders

import (
	"context"
	"errors"
	"fmt"

	"crudgate/internal/engine"
	"crudgate/internal/store"
)

// OrderItem is one sale line. Ref is a client-side key; composition
// children point at their parent through ParentRef.
type OrderItem struct {
	Ref       string     `json:"ref"`
	ParentRef string     `json:"parent_ref"`
	IsParent  bool       `json:"is_composition_parent"`
	Data      engine.Row `json:"data"`
}

type StockDeduction struct {
	ProductID ID      `json:"product_id"`
	Quantity  float64 `json:"quantity"`
	Reason    string  `json:"reason"`
}

type CreateOrderInput struct {
	Sale            engine.Row       `json:"sale"`
	Items           []OrderItem      `json:"items"`
	Invoice         engine.Row       `json:"invoice"`
	InvoiceItems    []engine.Row     `json:"invoice_items"`
	Receivable      engine.Row       `json:"receivable"`
	Earning         *engine.Row      `json:"earning"`
	Appointments    []engine.Row     `json:"appointments"`
	StockDeductions []StockDeduction `json:"stock_deductions"`
}

type CreateOrderResult struct {
	Success        bool  `json:"success"`
	SaleID         any   `json:"sale_id"`
	InvoiceID      any   `json:"invoice_id"`
	ReceivableID   any   `json:"receivable_id"`
	EarningID      any   `json:"earning_id,omitempty"`
	ItemIDs        []any `json:"item_ids"`
	AppointmentIDs []any `json:"appointment_ids"`
}

func (in *CreateOrderInput) validate() error {
	if in.Sale.Len() == 0 {
		return engine.EmptyPayloadError("sale is required")
	}
	if len(in.Items) == 0 {
		return engine.EmptyPayloadError("items must not be empty")
	}
	if in.Invoice.Len() == 0 {
		return engine.EmptyPayloadError("invoice is required")
	}
	if in.Receivable.Len() == 0 {
		return engine.EmptyPayloadError("receivable is required")
	}
	refs := make(map[string]bool, len(in.Items))
	for _, it := range in.Items {
		if it.IsParent {
			if it.Ref == "" {
				return engine.InvalidPayloadError("composition parent items need a ref")
			}
			refs[it.Ref] = true
		}
	}
	for _, it := range in.Items {
		if it.ParentRef != "" && !refs[it.ParentRef] {
			return engine.InvalidPayloadError(fmt.Sprintf("item parent_ref %s does not match any composition parent", it.ParentRef))
		}
	}
	for _, d := range in.StockDeductions {
		if !d.ProductID.Valid() || d.Quantity <= 0 {
			return engine.InvalidPayloadError("stock deductions need a product_id and a positive quantity")
		}
	}
	return nil
}

// CreateOrderRecords writes a sale with everything that hangs off it in one
// transaction. Any failing step discards the whole order.
func CreateOrderRecords(ctx context.Context, db TxRunner, in CreateOrderInput) (*CreateOrderResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	res := &CreateOrderResult{Success: true}
	err := db.ExecuteTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		sale := in.Sale.Clone()
		if _, ok := sale.Get("status"); !ok {
			sale.Set("status", Lifecycle.Initial)
		}
		saleRow, err := insert(ctx, tx, "sales", sale)
		if err != nil {
			return err
		}
		saleID := saleRow["id"]
		res.SaleID = saleID

		parentIDs := make(map[string]any)
		type pendingChild struct {
			id        any
			parentRef string
		}
		var children []pendingChild
		for _, it := range in.Items {
			data := it.Data.Clone()
			data.Set("sale_id", saleID)
			row, err := insert(ctx, tx, "sale_items", data)
			if err != nil {
				return err
			}
			res.ItemIDs = append(res.ItemIDs, row["id"])
			if it.IsParent {
				parentIDs[it.Ref] = row["id"]
			}
			if it.ParentRef != "" {
				children = append(children, pendingChild{id: row["id"], parentRef: it.ParentRef})
			}
		}

		for _, child := range children {
			if _, err := tx.Query(ctx, "UPDATE sale_items SET parent_item_id = $1 WHERE id = $2",
				parentIDs[child.parentRef], child.id); err != nil {
				return fmt.Errorf("link composition item: %w", err)
			}
		}

		invoice := in.Invoice.Clone()
		invoice.Set("sale_id", saleID)
		invoiceRow, err := insert(ctx, tx, "invoices", invoice)
		if err != nil {
			return err
		}
		invoiceID := invoiceRow["id"]
		res.InvoiceID = invoiceID

		for i := range in.InvoiceItems {
			item := in.InvoiceItems[i].Clone()
			item.Set("invoice_id", invoiceID)
			if _, err := insert(ctx, tx, "invoice_items", item); err != nil {
				return err
			}
		}

		if _, err := tx.Query(ctx, "UPDATE sales SET invoice_id = $1 WHERE id = $2", invoiceID, saleID); err != nil {
			return fmt.Errorf("link invoice: %w", err)
		}

		receivable := in.Receivable.Clone()
		receivable.Set("invoice_id", invoiceID)
		receivable.Set("sale_id", saleID)
		receivableRow, err := insert(ctx, tx, "accounts_receivable", receivable)
		if err != nil {
			return err
		}
		res.ReceivableID = receivableRow["id"]

		if in.Earning != nil && in.Earning.Len() > 0 {
			earning := in.Earning.Clone()
			earning.Set("sale_id", saleID)
			earningRow, err := insert(ctx, tx, "partner_earnings", earning)
			if err != nil {
				return err
			}
			res.EarningID = earningRow["id"]
		}

		for i := range in.Appointments {
			appt := in.Appointments[i].Clone()
			appt.Set("sale_id", saleID)
			row, err := insert(ctx, tx, "appointments", appt)
			if err != nil {
				return err
			}
			res.AppointmentIDs = append(res.AppointmentIDs, row["id"])
		}

		for _, d := range in.StockDeductions {
			if err := deductStock(ctx, tx, saleID, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// deductStock reads the quantity under a row lock, records the movement and
// writes the new quantity.
func deductStock(ctx context.Context, tx store.Tx, saleID any, d StockDeduction) error {
	product, err := store.QueryRow(ctx, tx, "SELECT id, stock_quantity FROM products WHERE id = $1 FOR UPDATE", d.ProductID.Value)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFoundError("product", d.ProductID.String())
	}
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}
	previous, _ := toFloat(product["stock_quantity"])
	next := previous - d.Quantity

	reason := d.Reason
	if reason == "" {
		reason = "sale"
	}
	movement := engine.NewRow(
		"product_id", d.ProductID.Value,
		"sale_id", saleID,
		"movement_type", "sale",
		"quantity", d.Quantity,
		"previous_quantity", previous,
		"new_quantity", next,
		"reason", reason,
	)
	if _, err := insert(ctx, tx, "stock_movements", movement); err != nil {
		return err
	}
	if _, err := tx.Query(ctx, "UPDATE products SET stock_quantity = $1 WHERE id = $2", next, d.ProductID.Value); err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return nil
}
