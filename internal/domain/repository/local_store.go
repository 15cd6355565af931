package repository

import (
	"context"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// LocalStore puerto del almacenamiento durable del cliente: cola de eventos pendientes,
// caché del catálogo y conjunto de trabajo. Nunca habla con la red.
// Los errores de almacenamiento envuelven domain.ErrStorage.
type LocalStore interface {
	// PutMutation inserta o sobrescribe por ID.
	PutMutation(ctx context.Context, m entity.QueuedMutation) error
	// ListMutations devuelve los pendientes del propietario, sin orden garantizado.
	ListMutations(ctx context.Context, ownerID string) ([]entity.QueuedMutation, error)
	// DeleteMutations borra todos los IDs o ninguno.
	DeleteMutations(ctx context.Context, ids []string) error

	// ReplaceCatalog reemplaza productos y códigos de barras en una sola transacción.
	ReplaceCatalog(ctx context.Context, ownerID string, products []entity.CatalogProduct, links []entity.BarcodeLink) error
	// ReadCatalog devuelve la copia local; vacía si nunca se descargó.
	ReadCatalog(ctx context.Context, ownerID string) (*entity.CatalogSnapshot, error)

	// ReplaceWorkingSet reemplaza los conteos de (ownerID, mode) sin tocar el otro modo.
	ReplaceWorkingSet(ctx context.Context, ownerID string, mode entity.CountMode, counts []entity.WorkingCount) error
	// ReadWorkingSet devuelve los conteos del propietario en todos los modos.
	ReadWorkingSet(ctx context.Context, ownerID string) ([]entity.WorkingCount, error)

	Close() error
}
