package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// ReplaceWorkingSet borra los conteos de (ownerID, mode) e inserta los recibidos.
// Los registros del otro modo no se tocan. Un conteo con otro propietario o modo rechaza la operación.
func (s *Store) ReplaceWorkingSet(ctx context.Context, ownerID string, mode entity.CountMode, counts []entity.WorkingCount) error {
	if ownerID == "" || !mode.Valid() {
		return fmt.Errorf("%w: partición inválida (%q, %q)", domain.ErrInvalidInput, ownerID, mode)
	}
	for _, c := range counts {
		if c.OwnerID != ownerID || c.Mode != mode {
			return fmt.Errorf("%w: conteo %s pertenece a (%q, %q), no a (%q, %q)",
				domain.ErrInvalidInput, c.Code, c.OwnerID, c.Mode, ownerID, mode)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("iniciar transacción", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM working_counts WHERE owner_id = ? AND mode = ?`, ownerID, string(mode)); err != nil {
		return storageErr("limpiar conteos", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO working_counts (owner_id, mode, code, product_id, description, system_balance, quantities, first_counted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageErr("preparar conteos", err)
	}
	defer stmt.Close()

	for _, c := range counts {
		qty, err := encodeQuantities(c.Quantities)
		if err != nil {
			return storageErr("serializar cantidades de "+c.Code, err)
		}
		if _, err := stmt.ExecContext(ctx, ownerID, string(mode), c.Code, c.ProductID, c.Description,
			c.SystemBalance.String(), qty, c.FirstCountedAt.UnixMilli(), c.UpdatedAt.UnixMilli()); err != nil {
			return storageErr("insertar conteo "+c.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("confirmar conteos", err)
	}
	return nil
}

// ReadWorkingSet devuelve los conteos del propietario en todos los modos.
func (s *Store) ReadWorkingSet(ctx context.Context, ownerID string) ([]entity.WorkingCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, code, product_id, description, system_balance, quantities, first_counted_at, updated_at
		FROM working_counts WHERE owner_id = ?
		ORDER BY mode, first_counted_at, code`, ownerID)
	if err != nil {
		return nil, storageErr("leer conteos", err)
	}
	defer rows.Close()

	var list []entity.WorkingCount
	for rows.Next() {
		var (
			c              = entity.WorkingCount{OwnerID: ownerID}
			mode           string
			balance        string
			qty            string
			firstCountedAt int64
			updatedAt      int64
		)
		if err := rows.Scan(&mode, &c.Code, &c.ProductID, &c.Description, &balance, &qty, &firstCountedAt, &updatedAt); err != nil {
			return nil, storageErr("leer conteo", err)
		}
		c.Mode = entity.CountMode(mode)
		if c.SystemBalance, err = decimal.NewFromString(balance); err != nil {
			return nil, storageErr("saldo corrupto en "+c.Code, err)
		}
		if c.Quantities, err = decodeQuantities(qty); err != nil {
			return nil, storageErr("cantidades corruptas en "+c.Code, err)
		}
		c.FirstCountedAt = time.UnixMilli(firstCountedAt).UTC()
		c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("leer conteos", err)
	}
	return list, nil
}

func encodeQuantities(q map[entity.Location]decimal.Decimal) (string, error) {
	if len(q) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeQuantities(raw string) (map[entity.Location]decimal.Decimal, error) {
	out := map[entity.Location]decimal.Decimal{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
