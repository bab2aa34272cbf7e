package orders

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crudgate/internal/audit"
	"crudgate/internal/engine"
)

type Handler struct {
	db       TxRunner
	recorder audit.Recorder
	actor    func(c *fiber.Ctx) string
	logger   *zap.Logger
}

func NewHandler(db TxRunner, recorder audit.Recorder, actor func(c *fiber.Ctx) string, logger *zap.Logger) *Handler {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	if actor == nil {
		actor = func(*fiber.Ctx) string { return "" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, recorder: recorder, actor: actor, logger: logger}
}

// Create handles POST /orders/create
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateOrderInput
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return engine.InvalidPayloadError("Invalid order body")
	}
	res, err := CreateOrderRecords(c.UserContext(), h.db, in)
	if err != nil {
		return err
	}
	h.record(c, audit.TypeOrderCreated, map[string]any{
		"sale_id":    res.SaleID,
		"invoice_id": res.InvoiceID,
		"items":      len(res.ItemIDs),
	})
	return c.JSON(res)
}

// ConfirmPayment handles POST /orders/confirm-payment
func (h *Handler) ConfirmPayment(c *fiber.Ctx) error {
	var in ConfirmPaymentInput
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return engine.InvalidPayloadError("Invalid payment body")
	}
	res, err := ConfirmPayment(c.UserContext(), h.db, in)
	if err != nil {
		return err
	}
	h.record(c, audit.TypePaymentConfirmed, map[string]any{"sale_id": res.SaleID, "payment_id": res.PaymentID})
	return c.JSON(res)
}

// Cancel handles POST /orders/cancel
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var in CancelOrderInput
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return engine.InvalidPayloadError("Invalid cancel body")
	}
	res, err := CancelOrder(c.UserContext(), h.db, in)
	if err != nil {
		return err
	}
	h.record(c, audit.TypeOrderCancelled, map[string]any{
		"sale_id":         res.SaleID,
		"reason":          in.Reason,
		"stock_movements": res.StockMovements,
	})
	return c.JSON(res)
}

func (h *Handler) record(c *fiber.Ctx, eventType string, detail map[string]any) {
	requestID := engine.RequestID(c)
	h.logger.Info("order operation completed",
		zap.String("event", eventType),
		zap.Any("detail", detail),
		zap.String("request_id", requestID),
	)
	h.recorder.Record(c.UserContext(), audit.Event{
		RequestID: requestID,
		EventType: eventType,
		Actor:     h.actor(c),
		Route:     c.Path(),
		IP:        c.IP(),
		Detail:    detail,
	})
}

func RegisterRoutes(app fiber.Router, h *Handler, mw ...fiber.Handler) {
	group := app.Group("/orders", mw...)
	group.Post("/create", h.Create)
	group.Post("/confirm-payment", h.ConfirmPayment)
	group.Post("/cancel", h.Cancel)
}
