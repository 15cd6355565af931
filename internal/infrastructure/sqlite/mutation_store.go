package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// PutMutation inserta o sobrescribe un evento pendiente por ID.
func (s *Store) PutMutation(ctx context.Context, m entity.QueuedMutation) error {
	if m.ID == "" || m.OwnerID == "" {
		return fmt.Errorf("%w: evento sin id o propietario", domain.ErrInvalidInput)
	}
	query := `
		INSERT INTO pending_mutations (id, owner_id, code, quantity, location, mode, created_at, session_id, participant_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			code = excluded.code,
			quantity = excluded.quantity,
			location = excluded.location,
			mode = excluded.mode,
			created_at = excluded.created_at,
			session_id = excluded.session_id,
			participant_id = excluded.participant_id`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.OwnerID, m.Code, m.Quantity.String(), string(m.Location), string(m.Mode),
		m.CreatedAt.UnixMilli(), m.SessionID, m.ParticipantID,
	)
	if err != nil {
		return storageErr("guardar evento", err)
	}
	return nil
}

// ListMutations lista los eventos pendientes del propietario.
func (s *Store) ListMutations(ctx context.Context, ownerID string) ([]entity.QueuedMutation, error) {
	query := `
		SELECT id, owner_id, code, quantity, location, mode, created_at, session_id, participant_id
		FROM pending_mutations WHERE owner_id = ?
		ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, storageErr("listar eventos", err)
	}
	defer rows.Close()

	var list []entity.QueuedMutation
	for rows.Next() {
		var (
			m         entity.QueuedMutation
			qty       string
			location  string
			mode      string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Code, &qty, &location, &mode, &createdAt, &m.SessionID, &m.ParticipantID); err != nil {
			return nil, storageErr("leer evento", err)
		}
		m.Quantity, err = decimal.NewFromString(qty)
		if err != nil {
			return nil, storageErr("cantidad corrupta en evento "+m.ID, err)
		}
		m.Location = entity.Location(location)
		m.Mode = entity.CountMode(mode)
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listar eventos", err)
	}
	return list, nil
}

// DeleteMutations borra los IDs indicados en una transacción: todos o ninguno.
func (s *Store) DeleteMutations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("iniciar transacción", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`)
	if err != nil {
		return storageErr("preparar borrado", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return storageErr("borrar evento "+id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("confirmar borrado", err)
	}
	return nil
}
