package entity

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CountMode contexto de conteo aislado. Los dos modos comparten almacenamiento pero nunca datos.
type CountMode string

const (
	ModeAudit  CountMode = "audit"  // auditoría; admite consolidación en servidor
	ModeImport CountMode = "import" // importación; un solo dispositivo
)

// Valid indica si el modo es conocido.
func (m CountMode) Valid() bool {
	return m == ModeAudit || m == ModeImport
}

// SupportsConsolidation indica si el servidor puede devolver un consolidado para el modo.
func (m CountMode) SupportsConsolidation() bool {
	return m == ModeAudit
}

// Location ubicación física donde se contó (p.ej. frente de tienda o bodega).
type Location string

const (
	LocationFront Location = "front"
	LocationBack  Location = "back"
)

// Valid indica si la ubicación es conocida.
func (l Location) Valid() bool {
	return l == LocationFront || l == LocationBack
}

// QueuedMutation evento de conteo durable aún no confirmado por el servidor.
// Se crea al registrar el conteo y se borra solo tras el acuse del lote que lo contiene.
type QueuedMutation struct {
	ID            string // generado en el cliente; clave de idempotencia
	OwnerID       string
	Code          string
	Quantity      decimal.Decimal // delta
	Location      Location
	Mode          CountMode
	CreatedAt     time.Time
	SessionID     string // vacío fuera de una sesión colaborativa
	ParticipantID string
}

// HasSessionContext indica si el evento pertenece a una sesión colaborativa.
func (m QueuedMutation) HasSessionContext() bool {
	return m.SessionID != "" && m.ParticipantID != ""
}

// SortMutations ordena por fecha de creación y luego por id (orden estable de envío).
func SortMutations(list []QueuedMutation) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// WorkingCount agregado local de un producto dentro de un modo.
// Clave efectiva de partición: (OwnerID, Mode); un registro por (Code, Mode).
type WorkingCount struct {
	OwnerID        string
	Mode           CountMode
	Code           string
	ProductID      int64 // 0 si el código no está en el catálogo
	Description    string
	SystemBalance  decimal.Decimal // saldo tomado la primera vez que se contó el producto
	Quantities     map[Location]decimal.Decimal
	FirstCountedAt time.Time
	UpdatedAt      time.Time
}

// NewWorkingCount crea el agregado tomando el saldo del catálogo como referencia.
func NewWorkingCount(ownerID string, mode CountMode, code string, product *CatalogProduct, at time.Time) *WorkingCount {
	wc := &WorkingCount{
		OwnerID:        ownerID,
		Mode:           mode,
		Code:           code,
		SystemBalance:  decimal.Zero,
		Quantities:     map[Location]decimal.Decimal{},
		FirstCountedAt: at,
		UpdatedAt:      at,
	}
	if product != nil {
		wc.ProductID = product.ID
		wc.Description = product.Description
		wc.SystemBalance = product.Balance
	}
	return wc
}

// Apply suma el delta a la ubicación: nuevo = anterior + delta.
func (w *WorkingCount) Apply(loc Location, delta decimal.Decimal, at time.Time) {
	if w.Quantities == nil {
		w.Quantities = map[Location]decimal.Decimal{}
	}
	w.Quantities[loc] = w.Quantities[loc].Add(delta)
	if at.After(w.UpdatedAt) {
		w.UpdatedAt = at
	}
}

// Quantity cantidad acumulada en una ubicación.
func (w *WorkingCount) Quantity(loc Location) decimal.Decimal {
	return w.Quantities[loc]
}

// Total suma de todas las ubicaciones.
func (w *WorkingCount) Total() decimal.Decimal {
	total := decimal.Zero
	for _, q := range w.Quantities {
		total = total.Add(q)
	}
	return total
}

// Difference total contado menos el saldo de sistema.
func (w *WorkingCount) Difference() decimal.Decimal {
	return w.Total().Sub(w.SystemBalance)
}

// Clone copia profunda (el mapa de cantidades no se comparte).
func (w *WorkingCount) Clone() *WorkingCount {
	c := *w
	c.Quantities = make(map[Location]decimal.Decimal, len(w.Quantities))
	for k, v := range w.Quantities {
		c.Quantities[k] = v
	}
	return &c
}

// FilterByMode devuelve solo los conteos del modo indicado.
func FilterByMode(counts []WorkingCount, mode CountMode) []WorkingCount {
	out := make([]WorkingCount, 0, len(counts))
	for _, c := range counts {
		if c.Mode == mode {
			out = append(out, c)
		}
	}
	return out
}
