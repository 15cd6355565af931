package repository

import (
	"context"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// SessionRepository puerto de persistencia de sesiones colaborativas (servidor).
// Los métodos Get devuelven (nil, nil) cuando no existe el registro.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*entity.CountSession, error)
	GetParticipant(ctx context.Context, sessionID, participantID string) (*entity.SessionParticipant, error)
	Create(ctx context.Context, s *entity.CountSession) error
	AddParticipant(ctx context.Context, p entity.SessionParticipant) error
	Close(ctx context.Context, id string) error
}
