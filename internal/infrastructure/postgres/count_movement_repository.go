package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
)

var _ repository.CountMovementRepository = (*CountMovementRepo)(nil)

// CountMovementRepo implementación sobre PostgreSQL (usable con pool o tx).
type CountMovementRepo struct {
	q Querier
}

// NewCountMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCountMovementRepository(q Querier) *CountMovementRepo {
	return &CountMovementRepo{q: q}
}

// InsertBatch inserta el lote en un solo viaje; ON CONFLICT (id) DO NOTHING vuelve inofensivos los reenvíos.
func (r *CountMovementRepo) InsertBatch(ctx context.Context, movements []entity.CountMovement) (int, error) {
	if len(movements) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO count_movements (id, session_id, participant_id, owner_id, code, quantity, location, counted_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	batch := &pgx.Batch{}
	for _, m := range movements {
		batch.Queue(query,
			m.ID, m.SessionID, m.ParticipantID, m.OwnerID, m.Code,
			m.Quantity, string(m.Location), m.CountedAt, m.ReceivedAt,
		)
	}
	results := r.q.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for i := range movements {
		tag, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert count movement %s: %w", movements[i].ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Snapshot suma cantidades por código y ubicación de toda la sesión.
func (r *CountMovementRepo) Snapshot(ctx context.Context, sessionID string) ([]entity.SnapshotLine, error) {
	query := `
		SELECT code, location, SUM(quantity)
		FROM count_movements
		WHERE session_id = $1
		GROUP BY code, location
		ORDER BY code, location`
	rows, err := r.q.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session snapshot: %w", err)
	}
	defer rows.Close()

	var out []entity.SnapshotLine
	for rows.Next() {
		var (
			line entity.SnapshotLine
			loc  string
			qty  decimal.Decimal
		)
		if err := rows.Scan(&line.Code, &loc, &qty); err != nil {
			return nil, fmt.Errorf("scan snapshot line: %w", err)
		}
		line.Location = entity.Location(loc)
		line.Quantity = qty
		out = append(out, line)
	}
	return out, rows.Err()
}

// DeleteByCode borra los movimientos de un código en la sesión.
func (r *CountMovementRepo) DeleteByCode(ctx context.Context, sessionID, code string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM count_movements WHERE session_id = $1 AND code = $2`, sessionID, code)
	if err != nil {
		return 0, fmt.Errorf("delete count item: %w", err)
	}
	return tag.RowsAffected(), nil
}
