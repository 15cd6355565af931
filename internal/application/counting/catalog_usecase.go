package counting

import (
	"context"
	"fmt"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
)

// CatalogUseCase entrega el catálogo completo del propietario (sin deltas).
type CatalogUseCase struct {
	repo repository.CatalogRepository
}

// NewCatalogUseCase construye el caso de uso.
func NewCatalogUseCase(repo repository.CatalogRepository) *CatalogUseCase {
	return &CatalogUseCase{repo: repo}
}

// Get productos y códigos de barras del propietario. Nunca devuelve listas nil.
func (uc *CatalogUseCase) Get(ctx context.Context, ownerID string) (*dto.CatalogResponse, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	products, err := uc.repo.ListProducts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listar productos: %w", err)
	}
	links, err := uc.repo.ListBarcodeLinks(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listar códigos de barras: %w", err)
	}

	out := &dto.CatalogResponse{
		Products:     make([]dto.CatalogProductDTO, 0, len(products)),
		BarcodeLinks: make([]dto.BarcodeLinkDTO, 0, len(links)),
	}
	for _, p := range products {
		out.Products = append(out.Products, dto.CatalogProductDTO{
			ID:               p.ID,
			Code:             p.Code,
			Description:      p.Description,
			Balance:          p.Balance,
			Price:            p.Price,
			Category:         p.Category,
			Brand:            p.Brand,
			RegistrationType: p.RegistrationType,
		})
	}
	for _, l := range links {
		out.BarcodeLinks = append(out.BarcodeLinks, dto.BarcodeLinkDTO{Barcode: l.Barcode, ProductID: l.ProductID})
	}
	return out, nil
}
