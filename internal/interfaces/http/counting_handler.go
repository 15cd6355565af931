package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
)

// CatalogService lo implementa *counting.CatalogUseCase.
type CatalogService interface {
	Get(ctx context.Context, ownerID string) (*dto.CatalogResponse, error)
}

// SessionService lo implementa *counting.SessionUseCase.
type SessionService interface {
	Open(ctx context.Context, ownerID string, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	Join(ctx context.Context, ownerID, sessionID string, p dto.ParticipantDTO) error
	Close(ctx context.Context, ownerID, sessionID string) error
	Sync(ctx context.Context, ownerID, sessionID string, req dto.SessionSyncRequest) (*dto.SessionSyncResponse, error)
	Snapshot(ctx context.Context, ownerID, sessionID string) (*dto.SnapshotResponse, error)
	DeleteItem(ctx context.Context, ownerID, sessionID, code string) (*dto.DeleteItemResponse, error)
}

// CountingHandler endpoints que consume el cliente de conteo (protegidos).
type CountingHandler struct {
	catalog  CatalogService
	sessions SessionService
}

// NewCountingHandler construye el handler.
func NewCountingHandler(catalog CatalogService, sessions SessionService) *CountingHandler {
	return &CountingHandler{catalog: catalog, sessions: sessions}
}

// GetCatalog godoc
// @Summary      Catálogo completo del propietario
// @Tags         catalog
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.CatalogResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Router       /api/catalog [get]
func (h *CountingHandler) GetCatalog(c *fiber.Ctx) error {
	out, err := h.catalog.Get(c.UserContext(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// OpenSession godoc
// @Summary      Abrir sesión de conteo colaborativo
// @Tags         sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.OpenSessionRequest  true  "Participantes iniciales"
// @Success      201   {object}  dto.SessionResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/sessions [post]
func (h *CountingHandler) OpenSession(c *fiber.Ctx) error {
	var in dto.OpenSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
	}
	out, err := h.sessions.Open(c.UserContext(), GetUserID(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// JoinSession godoc
// @Summary      Agregar participante a la sesión
// @Tags         sessions
// @Security     Bearer
// @Accept       json
// @Param        sessionId  path  string              true  "ID de la sesión"
// @Param        body       body  dto.ParticipantDTO  true  "Participante"
// @Success      204
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/sessions/{sessionId}/participants [post]
func (h *CountingHandler) JoinSession(c *fiber.Ctx) error {
	var in dto.ParticipantDTO
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := h.sessions.Join(c.UserContext(), GetUserID(c), c.Params("sessionId"), in); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CloseSession godoc
// @Summary      Cerrar sesión
// @Tags         sessions
// @Security     Bearer
// @Param        sessionId  path  string  true  "ID de la sesión"
// @Success      204
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/sessions/{sessionId}/close [post]
func (h *CountingHandler) CloseSession(c *fiber.Ctx) error {
	if err := h.sessions.Close(c.UserContext(), GetUserID(c), c.Params("sessionId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SyncSession godoc
// @Summary      Enviar lote de conteos (idempotente por id)
// @Tags         sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        sessionId  path  string                  true  "ID de la sesión"
// @Param        body       body  dto.SessionSyncRequest  true  "Lote de movimientos"
// @Success      200  {object}  dto.SessionSyncResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/sessions/{sessionId}/sync [post]
func (h *CountingHandler) SyncSession(c *fiber.Ctx) error {
	var in dto.SessionSyncRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.sessions.Sync(c.UserContext(), GetUserID(c), c.Params("sessionId"), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Snapshot godoc
// @Summary      Totales consolidados de la sesión
// @Tags         sessions
// @Security     Bearer
// @Produce      json
// @Param        sessionId  path  string  true  "ID de la sesión"
// @Success      200  {object}  dto.SnapshotResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/sessions/{sessionId}/snapshot [get]
func (h *CountingHandler) Snapshot(c *fiber.Ctx) error {
	out, err := h.sessions.Snapshot(c.UserContext(), GetUserID(c), c.Params("sessionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// DeleteItem godoc
// @Summary      Borrar un producto del consolidado de la sesión
// @Tags         sessions
// @Security     Bearer
// @Produce      json
// @Param        code       query  string  true  "Código del producto"
// @Param        sessionId  query  string  true  "ID de la sesión"
// @Success      200  {object}  dto.DeleteItemResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/counts/item [delete]
func (h *CountingHandler) DeleteItem(c *fiber.Ctx) error {
	out, err := h.sessions.DeleteItem(c.UserContext(), GetUserID(c), c.Query("sessionId"), c.Query("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}
