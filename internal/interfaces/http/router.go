package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Catalog     CatalogService
	Sessions    SessionService
	JWTSecret   string
	ServiceName string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	// Público: lo usa el cliente para detectar que el servidor volvió.
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})

	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	h := NewCountingHandler(deps.Catalog, deps.Sessions)

	api.Get("/catalog", h.GetCatalog)

	sessions := api.Group("/sessions")
	sessions.Post("/", RequireRole(entity.RoleAdmin), h.OpenSession)
	sessions.Post("/:sessionId/participants", RequireRole(entity.RoleAdmin), h.JoinSession)
	sessions.Post("/:sessionId/close", RequireRole(entity.RoleAdmin), h.CloseSession)
	sessions.Post("/:sessionId/sync", h.SyncSession)
	sessions.Get("/:sessionId/snapshot", h.Snapshot)

	api.Delete("/counts/item", h.DeleteItem)
}
