package repository

import (
	"context"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// CatalogRepository puerto de lectura del catálogo autoritativo (servidor).
type CatalogRepository interface {
	ListProducts(ctx context.Context, ownerID string) ([]entity.CatalogProduct, error)
	ListBarcodeLinks(ctx context.Context, ownerID string) ([]entity.BarcodeLink, error)
}
