package syncqueue

import "time"

// Status lo único que la UI ve de la sincronización: nunca errores crudos.
type Status struct {
	Pending    int  // eventos sin acuse del servidor
	LocalOnly  int  // pendientes sin sesión colaborativa (no viajan por la ruta de sesión)
	Rejected   int  // pendientes de particiones que el servidor rechazó
	Syncing    bool // hay un ciclo en curso
	Online     bool
	Suspended  bool // sesión expirada: el envío automático espera Resume
	LastSyncAt time.Time
}

// SkipReason por qué un ciclo no se ejecutó.
type SkipReason string

const (
	SkipRunning   SkipReason = "running"
	SkipOffline   SkipReason = "offline"
	SkipSuspended SkipReason = "suspended"
	SkipSpacing   SkipReason = "spacing"
)

// Resultados de ciclo para logs y métricas.
const (
	ResultSkipped = "skipped"
	ResultEmpty   = "empty"
	ResultOK      = "ok"
	ResultPartial = "partial"
	ResultFailed  = "failed"
)

// Report resumen de un ciclo de envío.
type Report struct {
	Skipped      SkipReason
	Partitions   int // lotes intentados
	Failed       int // lotes sin acuse; sus eventos quedan pendientes
	Rejected     int // de los fallidos, rechazados de forma definitiva (403, 400, 404, 409)
	Sent         int // eventos enviados
	Acknowledged int // eventos borrados tras el acuse
	Duplicates   int // eventos que el servidor ya tenía
	LocalOnly    int // eventos sin sesión, no elegibles
}

// Result clasifica el ciclo.
func (r Report) Result() string {
	switch {
	case r.Skipped != "":
		return ResultSkipped
	case r.Partitions == 0:
		return ResultEmpty
	case r.Failed == 0:
		return ResultOK
	case r.Failed < r.Partitions:
		return ResultPartial
	default:
		return ResultFailed
	}
}

// Reporter recibe el resumen de cada ciclo (métricas).
type Reporter interface {
	CycleCompleted(Report)
}
