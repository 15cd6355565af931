package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo sesiones colaborativas y sus participantes.
type SessionRepo struct {
	q Querier
}

// NewSessionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSessionRepository(q Querier) *SessionRepo {
	return &SessionRepo{q: q}
}

// GetByID devuelve (nil, nil) si la sesión no existe.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*entity.CountSession, error) {
	var s entity.CountSession
	err := r.q.QueryRow(ctx,
		`SELECT id, owner_id, status, created_at FROM count_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.OwnerID, &s.Status, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get count session: %w", err)
	}
	return &s, nil
}

// GetParticipant devuelve (nil, nil) si el participante no pertenece a la sesión.
func (r *SessionRepo) GetParticipant(ctx context.Context, sessionID, participantID string) (*entity.SessionParticipant, error) {
	var p entity.SessionParticipant
	err := r.q.QueryRow(ctx,
		`SELECT id, session_id, name FROM count_session_participants WHERE session_id = $1 AND id = $2`,
		sessionID, participantID,
	).Scan(&p.ID, &p.SessionID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session participant: %w", err)
	}
	return &p, nil
}

// Create registra una sesión abierta. Un ID repetido devuelve domain.ErrConflict.
func (r *SessionRepo) Create(ctx context.Context, s *entity.CountSession) error {
	if s.Status == "" {
		s.Status = entity.SessionStatusOpen
	}
	err := r.q.QueryRow(ctx,
		`INSERT INTO count_sessions (id, owner_id, status) VALUES ($1, $2, $3) RETURNING created_at`,
		s.ID, s.OwnerID, s.Status,
	).Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: la sesión %s ya existe", domain.ErrConflict, s.ID)
		}
		return fmt.Errorf("create count session: %w", err)
	}
	return nil
}

// AddParticipant agrega un participante; si ya existe no hace nada.
func (r *SessionRepo) AddParticipant(ctx context.Context, p entity.SessionParticipant) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO count_session_participants (session_id, id, name) VALUES ($1, $2, $3)
		ON CONFLICT (session_id, id) DO NOTHING`,
		p.SessionID, p.ID, p.Name)
	if err != nil {
		return fmt.Errorf("add session participant: %w", err)
	}
	return nil
}

// Close cierra la sesión; los lotes posteriores se rechazan.
func (r *SessionRepo) Close(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `UPDATE count_sessions SET status = $2 WHERE id = $1`, id, entity.SessionStatusClosed)
	if err != nil {
		return fmt.Errorf("close count session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
