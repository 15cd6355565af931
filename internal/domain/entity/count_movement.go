package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una sesión de conteo colaborativo.
const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

// CountSession sesión de conteo compartida entre varios participantes (lado servidor).
type CountSession struct {
	ID        string
	OwnerID   string
	Status    string
	CreatedAt time.Time
}

// SessionParticipant dispositivo/operador que cuenta dentro de una sesión.
type SessionParticipant struct {
	ID        string
	SessionID string
	Name      string
}

// CountMovement evento de conteo recibido por el servidor. El ID es el del cliente,
// por eso reenviar el mismo lote no duplica cantidades.
type CountMovement struct {
	ID            string
	SessionID     string
	ParticipantID string
	OwnerID       string
	Code          string
	Quantity      decimal.Decimal
	Location      Location
	CountedAt     time.Time
	ReceivedAt    time.Time
}

// SnapshotLine total consolidado por código y ubicación entre todos los participantes.
type SnapshotLine struct {
	Code     string
	Location Location
	Quantity decimal.Decimal
}
