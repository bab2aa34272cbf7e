package orders

import (
	"context"
	"errors"
	"fmt"

	"crudgate/internal/engine"
	"crudgate/internal/store"
)

type ConfirmPaymentInput struct {
	SaleID  ID          `json:"sale_id"`
	Payment *engine.Row `json:"payment"`
}

type ConfirmPaymentResult struct {
	Success   bool `json:"success"`
	SaleID    any  `json:"sale_id"`
	PaymentID any  `json:"payment_id"`
}

// ConfirmPayment moves a pending sale to payment_confirmed and settles its
// invoice and receivables. Confirming twice fails.
func ConfirmPayment(ctx context.Context, db TxRunner, in ConfirmPaymentInput) (*ConfirmPaymentResult, error) {
	if !in.SaleID.Valid() {
		return nil, engine.MissingMatchKeyError("sale_id")
	}

	res := &ConfirmPaymentResult{Success: true, SaleID: in.SaleID.Value}
	err := db.ExecuteTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := store.QueryRow(ctx, tx,
			"SELECT id, status, total, invoice_id FROM sales WHERE id = $1 FOR UPDATE", in.SaleID.Value)
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("sale", in.SaleID.String())
		}
		if err != nil {
			return fmt.Errorf("load sale: %w", err)
		}

		status := fmt.Sprint(sale["status"])
		if status != StatusPendingPayment {
			return engine.InvalidStateError(fmt.Sprintf("Sale cannot be confirmed: current status is %s", status))
		}
		total, _ := toFloat(sale["total"])
		if err := Lifecycle.Check(status, StatusPaymentConfirmed, map[string]any{"total": total}); err != nil {
			return engine.InvalidStateError(err.Error())
		}

		if _, err := tx.Query(ctx,
			"UPDATE sales SET status = $1, payment_status = $2, paid_at = NOW() WHERE id = $3",
			StatusPaymentConfirmed, "paid", in.SaleID.Value); err != nil {
			return fmt.Errorf("update sale: %w", err)
		}

		payment := in.Payment.Clone()
		payment.Set("sale_id", in.SaleID.Value)
		if present(sale["invoice_id"]) {
			payment.Set("invoice_id", sale["invoice_id"])
		}
		if _, ok := payment.Get("amount"); !ok {
			payment.Set("amount", total)
		}
		paymentRow, err := insert(ctx, tx, "payments", payment)
		if err != nil {
			return err
		}
		res.PaymentID = paymentRow["id"]

		if present(sale["invoice_id"]) {
			if _, err := tx.Query(ctx,
				"UPDATE invoices SET status = $1, paid_at = NOW() WHERE id = $2",
				"paid", sale["invoice_id"]); err != nil {
				return fmt.Errorf("update invoice: %w", err)
			}
			if _, err := tx.Query(ctx,
				"UPDATE accounts_receivable SET status = $1, amount_received = $2, received_at = NOW() WHERE invoice_id = $3",
				"paid", total, sale["invoice_id"]); err != nil {
				return fmt.Errorf("update receivables: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
