package repository

import (
	"context"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// CountMovementRepository puerto de persistencia (servidor) para eventos de conteo.
type CountMovementRepository interface {
	// InsertBatch inserta ignorando IDs ya existentes; devuelve cuántos eran nuevos.
	InsertBatch(ctx context.Context, movements []entity.CountMovement) (int, error)
	// Snapshot suma cantidades por código y ubicación de toda la sesión.
	Snapshot(ctx context.Context, sessionID string) ([]entity.SnapshotLine, error)
	// DeleteByCode borra los movimientos de un código en la sesión; devuelve filas afectadas.
	DeleteByCode(ctx context.Context, sessionID, code string) (int64, error)
}
