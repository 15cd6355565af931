package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
)

var _ repository.CatalogRepository = (*CatalogRepo)(nil)

// CatalogRepo lectura del catálogo autoritativo.
type CatalogRepo struct {
	q Querier
}

// NewCatalogRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCatalogRepository(q Querier) *CatalogRepo {
	return &CatalogRepo{q: q}
}

// ListProducts productos del propietario ordenados por código.
func (r *CatalogRepo) ListProducts(ctx context.Context, ownerID string) ([]entity.CatalogProduct, error) {
	query := `
		SELECT id, owner_id, code, description, balance, price, category, brand, registration_type
		FROM catalog_products WHERE owner_id = $1
		ORDER BY code`
	rows, err := r.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list catalog products: %w", err)
	}
	defer rows.Close()

	var list []entity.CatalogProduct
	for rows.Next() {
		var p entity.CatalogProduct
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Code, &p.Description, &p.Balance, &p.Price,
			&p.Category, &p.Brand, &p.RegistrationType); err != nil {
			return nil, fmt.Errorf("scan catalog product: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ListBarcodeLinks códigos de barras del propietario.
func (r *CatalogRepo) ListBarcodeLinks(ctx context.Context, ownerID string) ([]entity.BarcodeLink, error) {
	rows, err := r.q.Query(ctx,
		`SELECT barcode, product_id FROM catalog_barcodes WHERE owner_id = $1 ORDER BY barcode`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list barcode links: %w", err)
	}
	defer rows.Close()

	var list []entity.BarcodeLink
	for rows.Next() {
		var l entity.BarcodeLink
		if err := rows.Scan(&l.Barcode, &l.ProductID); err != nil {
			return nil, fmt.Errorf("scan barcode link: %w", err)
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// UpsertProduct crea o actualiza un producto por (owner_id, code) y devuelve su ID.
func (r *CatalogRepo) UpsertProduct(ctx context.Context, p *entity.CatalogProduct) error {
	if p.RegistrationType == "" {
		p.RegistrationType = entity.RegistrationFixed
	}
	query := `
		INSERT INTO catalog_products (owner_id, code, description, balance, price, category, brand, registration_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id, code) DO UPDATE SET
			description = EXCLUDED.description,
			balance = EXCLUDED.balance,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			brand = EXCLUDED.brand,
			registration_type = EXCLUDED.registration_type
		RETURNING id`
	err := r.q.QueryRow(ctx, query,
		p.OwnerID, p.Code, p.Description, p.Balance, p.Price, p.Category, p.Brand, p.RegistrationType,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert catalog product: %w", err)
	}
	return nil
}

// LinkBarcode asocia un código de barras a un producto del mismo propietario.
func (r *CatalogRepo) LinkBarcode(ctx context.Context, ownerID string, link entity.BarcodeLink) error {
	query := `
		INSERT INTO catalog_barcodes (owner_id, barcode, product_id) VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, barcode) DO UPDATE SET product_id = EXCLUDED.product_id`
	if _, err := r.q.Exec(ctx, query, ownerID, link.Barcode, link.ProductID); err != nil {
		return fmt.Errorf("link barcode: %w", err)
	}
	return nil
}
