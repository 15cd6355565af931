package counting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
)

// MaxBatchSize límite de movimientos por petición de sincronización.
const MaxBatchSize = 5000

// SessionUseCase recibe lotes de conteo de los participantes y consolida la sesión.
// La idempotencia descansa en el ID de cada movimiento: reenviar un lote no suma dos veces.
type SessionUseCase struct {
	txRunner  TxRunner
	sessions  repository.SessionRepository
	movements repository.CountMovementRepository
	now       func() time.Time
}

// NewSessionUseCase construye el caso de uso.
func NewSessionUseCase(
	txRunner TxRunner,
	sessions repository.SessionRepository,
	movements repository.CountMovementRepository,
) *SessionUseCase {
	return &SessionUseCase{
		txRunner:  txRunner,
		sessions:  sessions,
		movements: movements,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sync valida el lote completo y lo inserta en una sola transacción.
// Los IDs ya recibidos se cuentan como duplicados y no alteran los totales.
func (uc *SessionUseCase) Sync(ctx context.Context, ownerID, sessionID string, req dto.SessionSyncRequest) (*dto.SessionSyncResponse, error) {
	session, err := uc.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.SessionStatusOpen {
		return nil, fmt.Errorf("%w: la sesión %s está cerrada", domain.ErrConflict, sessionID)
	}
	if req.ParticipantID == "" {
		return nil, fmt.Errorf("%w: participantId requerido", domain.ErrInvalidInput)
	}
	participant, err := uc.sessions.GetParticipant(ctx, sessionID, req.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("obtener participante: %w", err)
	}
	if participant == nil {
		return nil, fmt.Errorf("%w: el participante no pertenece a la sesión", domain.ErrForbidden)
	}
	if len(req.Movements) > MaxBatchSize {
		return nil, fmt.Errorf("%w: máximo %d movimientos por lote", domain.ErrInvalidInput, MaxBatchSize)
	}
	if len(req.Movements) == 0 {
		return &dto.SessionSyncResponse{}, nil
	}

	received := uc.now()
	batch := make([]entity.CountMovement, 0, len(req.Movements))
	for i, m := range req.Movements {
		mov, err := toMovement(m, ownerID, sessionID, req.ParticipantID, received)
		if err != nil {
			return nil, fmt.Errorf("movimiento %d: %w", i, err)
		}
		batch = append(batch, mov)
	}

	var inserted int
	err = uc.txRunner.Run(ctx, func(movRepo repository.CountMovementRepository) error {
		n, err := movRepo.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("guardar lote: %w", err)
	}
	return &dto.SessionSyncResponse{Accepted: inserted, Duplicates: len(batch) - inserted}, nil
}

// Snapshot totales por código y ubicación sumando a todos los participantes.
// Una sesión cerrada se puede seguir consultando.
func (uc *SessionUseCase) Snapshot(ctx context.Context, ownerID, sessionID string) (*dto.SnapshotResponse, error) {
	if _, err := uc.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	lines, err := uc.movements.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("consolidar sesión: %w", err)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Code != lines[j].Code {
			return lines[i].Code < lines[j].Code
		}
		return lines[i].Location < lines[j].Location
	})

	out := &dto.SnapshotResponse{SessionID: sessionID, Items: make([]dto.SnapshotItemDTO, 0, len(lines))}
	for _, l := range lines {
		out.Items = append(out.Items, dto.SnapshotItemDTO{
			Code:           l.Code,
			LocationBucket: string(l.Location),
			Quantity:       l.Quantity,
		})
	}
	return out, nil
}

// DeleteItem elimina todos los movimientos de un código en la sesión.
// Devuelve domain.ErrNotFound si no había nada que borrar.
func (uc *SessionUseCase) DeleteItem(ctx context.Context, ownerID, sessionID, code string) (*dto.DeleteItemResponse, error) {
	code = entity.NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code requerido", domain.ErrInvalidInput)
	}
	session, err := uc.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.SessionStatusOpen {
		return nil, fmt.Errorf("%w: la sesión %s está cerrada", domain.ErrConflict, sessionID)
	}
	n, err := uc.movements.DeleteByCode(ctx, sessionID, code)
	if err != nil {
		return nil, fmt.Errorf("borrar producto de la sesión: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s no tiene conteos en la sesión", domain.ErrNotFound, code)
	}
	return &dto.DeleteItemResponse{Deleted: n}, nil
}

// Open crea una sesión abierta con ID nuevo y registra a los participantes iniciales.
func (uc *SessionUseCase) Open(ctx context.Context, ownerID string, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	for _, p := range req.Participants {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: participante sin id", domain.ErrInvalidInput)
		}
	}
	session := &entity.CountSession{ID: uuid.NewString(), OwnerID: ownerID, Status: entity.SessionStatusOpen}
	if err := uc.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	out := &dto.SessionResponse{ID: session.ID, Status: session.Status, CreatedAt: session.CreatedAt}
	for _, p := range req.Participants {
		if err := uc.sessions.AddParticipant(ctx, entity.SessionParticipant{ID: p.ID, SessionID: session.ID, Name: p.Name}); err != nil {
			return nil, err
		}
		out.Participants = append(out.Participants, p)
	}
	return out, nil
}

// Join agrega un participante a una sesión abierta. Repetir el alta no es error.
func (uc *SessionUseCase) Join(ctx context.Context, ownerID, sessionID string, p dto.ParticipantDTO) error {
	if p.ID == "" {
		return fmt.Errorf("%w: participante sin id", domain.ErrInvalidInput)
	}
	session, err := uc.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if session.Status != entity.SessionStatusOpen {
		return fmt.Errorf("%w: la sesión %s está cerrada", domain.ErrConflict, sessionID)
	}
	return uc.sessions.AddParticipant(ctx, entity.SessionParticipant{ID: p.ID, SessionID: sessionID, Name: p.Name})
}

// Close cierra la sesión; el consolidado sigue disponible para consulta.
func (uc *SessionUseCase) Close(ctx context.Context, ownerID, sessionID string) error {
	session, err := uc.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if session.Status == entity.SessionStatusClosed {
		return nil
	}
	return uc.sessions.Close(ctx, sessionID)
}

func (uc *SessionUseCase) ownedSession(ctx context.Context, ownerID, sessionID string) (*entity.CountSession, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId requerido", domain.ErrInvalidInput)
	}
	session, err := uc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("obtener sesión: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: sesión %s", domain.ErrNotFound, sessionID)
	}
	if session.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return session, nil
}

func toMovement(m dto.MovementDTO, ownerID, sessionID, participantID string, received time.Time) (entity.CountMovement, error) {
	if _, err := uuid.Parse(m.ID); err != nil {
		return entity.CountMovement{}, fmt.Errorf("%w: id %q no es un UUID", domain.ErrInvalidInput, m.ID)
	}
	code := entity.NormalizeCode(m.Code)
	if code == "" {
		return entity.CountMovement{}, fmt.Errorf("%w: code requerido", domain.ErrInvalidInput)
	}
	if m.Quantity.IsZero() {
		return entity.CountMovement{}, fmt.Errorf("%w: quantity no puede ser cero", domain.ErrInvalidInput)
	}
	loc := entity.Location(m.LocationBucket)
	if !loc.Valid() {
		return entity.CountMovement{}, fmt.Errorf("%w: locationBucket %q", domain.ErrInvalidInput, m.LocationBucket)
	}
	if m.Timestamp.IsZero() {
		return entity.CountMovement{}, fmt.Errorf("%w: timestamp requerido", domain.ErrInvalidInput)
	}
	return entity.CountMovement{
		ID:            m.ID,
		SessionID:     sessionID,
		ParticipantID: participantID,
		OwnerID:       ownerID,
		Code:          code,
		Quantity:      m.Quantity,
		Location:      loc,
		CountedAt:     m.Timestamp.UTC(),
		ReceivedAt:    received,
	}, nil
}
