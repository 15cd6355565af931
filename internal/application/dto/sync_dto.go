package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementDTO un evento de conteo dentro de un lote. ID es la clave de idempotencia del cliente.
type MovementDTO struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Quantity       decimal.Decimal `json:"quantity"`
	Timestamp      time.Time       `json:"timestamp"`
	LocationBucket string          `json:"locationBucket"`
}

// SessionSyncRequest body para POST /api/sessions/:sessionId/sync.
type SessionSyncRequest struct {
	ParticipantID string        `json:"participantId"`
	Movements     []MovementDTO `json:"movements"`
}

// SessionSyncResponse acuse del lote. Duplicates cuenta los IDs ya recibidos antes.
type SessionSyncResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// SnapshotItemDTO total consolidado por código y ubicación.
type SnapshotItemDTO struct {
	Code           string          `json:"code"`
	LocationBucket string          `json:"locationBucket"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// SnapshotResponse respuesta de GET /api/sessions/:sessionId/snapshot.
type SnapshotResponse struct {
	SessionID string            `json:"sessionId"`
	Items     []SnapshotItemDTO `json:"items"`
}

// DeleteItemResponse acuse de DELETE /api/counts/item.
type DeleteItemResponse struct {
	Deleted int64 `json:"deleted"`
}

// ParticipantDTO dispositivo u operador que cuenta en una sesión.
type ParticipantDTO struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// OpenSessionRequest body para POST /api/sessions.
type OpenSessionRequest struct {
	Participants []ParticipantDTO `json:"participants"`
}

// SessionResponse sesión abierta o consultada.
type SessionResponse struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	Participants []ParticipantDTO `json:"participants,omitempty"`
}
