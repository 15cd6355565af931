package ports

import (
	"context"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
)

// CountingAPI puerto de salida hacia el servidor de conteo.
// Errores esperados (envueltos): domain.ErrNetwork para fallos de red, timeouts o 5xx;
// domain.ErrUnauthorized cuando hay que volver a iniciar sesión; domain.ErrForbidden cuando el
// token no tiene acceso a esa sesión; domain.ErrInvalidInput, domain.ErrConflict y domain.ErrNotFound.
type CountingAPI interface {
	// FetchCatalog descarga el catálogo completo del propietario del token.
	FetchCatalog(ctx context.Context) (*dto.CatalogResponse, error)
	// SyncSession envía un lote; reenviar los mismos IDs no debe duplicar cantidades.
	SyncSession(ctx context.Context, sessionID string, req dto.SessionSyncRequest) (*dto.SessionSyncResponse, error)
	// FetchSessionSnapshot devuelve los totales consolidados de la sesión.
	FetchSessionSnapshot(ctx context.Context, sessionID string) (*dto.SnapshotResponse, error)
	// DeleteCountItem borra un producto del consolidado; best-effort, no se reintenta.
	DeleteCountItem(ctx context.Context, code, sessionID string) error
}
