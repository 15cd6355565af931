package counting

import (
	"context"

	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD con el repositorio de movimientos atado a esa tx.
// Un lote de sincronización entra completo o no entra.
type TxRunner interface {
	Run(ctx context.Context, fn func(movRepo repository.CountMovementRepository) error) error
}
