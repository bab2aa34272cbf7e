package engine

import "github.com/gofiber/fiber/v2"

// RegisterCrudRoutes mounts the generic data endpoints behind mw.
func RegisterCrudRoutes(app fiber.Router, h *Handler, mw ...fiber.Handler) {
	app.Post("/api_crud", chain(mw, h.Crud)...)
	app.Post("/api_schema", chain(mw, h.Schema)...)
	app.Get("/api_tables", chain(mw, h.Tables)...)
}

func chain(mw []fiber.Handler, final fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(mw)+1)
	handlers = append(handlers, mw...)
	return append(handlers, final)
}
