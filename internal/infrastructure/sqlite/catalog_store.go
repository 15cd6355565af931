package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// ReplaceCatalog borra y reescribe productos y códigos de barras del propietario como una unidad.
// Un enlace hacia un producto inexistente o un duplicado rechaza el reemplazo completo antes de escribir.
func (s *Store) ReplaceCatalog(ctx context.Context, ownerID string, products []entity.CatalogProduct, links []entity.BarcodeLink) error {
	snap := entity.CatalogSnapshot{Products: products, Links: links}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("iniciar transacción", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM catalog_barcodes WHERE owner_id = ?`,
		`DELETE FROM catalog_products WHERE owner_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, ownerID); err != nil {
			return storageErr("limpiar catálogo", err)
		}
	}

	prodStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_products (owner_id, id, code, description, balance, price, category, brand, registration_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageErr("preparar productos", err)
	}
	defer prodStmt.Close()
	for _, p := range products {
		var price sql.NullString
		if p.Price != nil {
			price = sql.NullString{String: p.Price.String(), Valid: true}
		}
		regType := p.RegistrationType
		if regType == "" {
			regType = entity.RegistrationFixed
		}
		if _, err := prodStmt.ExecContext(ctx, ownerID, p.ID, p.Code, p.Description, p.Balance.String(),
			price, p.Category, p.Brand, regType); err != nil {
			return storageErr("insertar producto "+p.Code, err)
		}
	}

	linkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_barcodes (owner_id, barcode, product_id) VALUES (?, ?, ?)`)
	if err != nil {
		return storageErr("preparar códigos de barras", err)
	}
	defer linkStmt.Close()
	for _, l := range links {
		if _, err := linkStmt.ExecContext(ctx, ownerID, l.Barcode, l.ProductID); err != nil {
			return storageErr("insertar código de barras "+l.Barcode, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_meta (owner_id, fetched_at) VALUES (?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET fetched_at = excluded.fetched_at`,
		ownerID, time.Now().UnixMilli()); err != nil {
		return storageErr("fecha de catálogo", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("confirmar catálogo", err)
	}
	return nil
}

// ReadCatalog devuelve la copia local del catálogo; vacía si nunca se descargó.
func (s *Store) ReadCatalog(ctx context.Context, ownerID string) (*entity.CatalogSnapshot, error) {
	snap := &entity.CatalogSnapshot{}

	var fetchedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT fetched_at FROM catalog_meta WHERE owner_id = ?`, ownerID).Scan(&fetchedAt)
	switch {
	case err == sql.ErrNoRows:
		return snap, nil
	case err != nil:
		return nil, storageErr("leer fecha de catálogo", err)
	}
	snap.FetchedAt = time.UnixMilli(fetchedAt).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, description, balance, price, category, brand, registration_type
		FROM catalog_products WHERE owner_id = ? ORDER BY code`, ownerID)
	if err != nil {
		return nil, storageErr("leer productos", err)
	}
	defer rows.Close()
	for rows.Next() {
		p := entity.CatalogProduct{OwnerID: ownerID}
		var balance string
		var price sql.NullString
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &balance, &price, &p.Category, &p.Brand, &p.RegistrationType); err != nil {
			return nil, storageErr("leer producto", err)
		}
		if p.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, storageErr("saldo corrupto en "+p.Code, err)
		}
		if price.Valid {
			v, err := decimal.NewFromString(price.String)
			if err != nil {
				return nil, storageErr("precio corrupto en "+p.Code, err)
			}
			p.Price = &v
		}
		snap.Products = append(snap.Products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("leer productos", err)
	}

	linkRows, err := s.db.QueryContext(ctx, `
		SELECT barcode, product_id FROM catalog_barcodes WHERE owner_id = ? ORDER BY barcode`, ownerID)
	if err != nil {
		return nil, storageErr("leer códigos de barras", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var l entity.BarcodeLink
		if err := linkRows.Scan(&l.Barcode, &l.ProductID); err != nil {
			return nil, storageErr("leer código de barras", err)
		}
		snap.Links = append(snap.Links, l)
	}
	if err := linkRows.Err(); err != nil {
		return nil, storageErr("leer códigos de barras", err)
	}
	return snap, nil
}
