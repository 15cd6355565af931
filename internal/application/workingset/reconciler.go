package workingset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/application/ports"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// ErrRemoteDelete el producto se quitó localmente pero el consolidado del servidor no.
// No se reintenta: el usuario decide.
var ErrRemoteDelete = errors.New("no se pudo quitar el producto del consolidado del servidor")

// Source origen del conjunto de trabajo cargado.
type Source string

const (
	SourceLocal  Source = "local"
	SourceServer Source = "server"
)

// Resolver resuelve códigos escaneados contra el catálogo local.
type Resolver interface {
	Resolve(code string) (*entity.CatalogProduct, bool)
}

// Queue cola durable de eventos (syncqueue.Manager).
type Queue interface {
	Record(ctx context.Context, m entity.QueuedMutation) (entity.QueuedMutation, error)
	Hold(ctx context.Context, fn func(ctx context.Context) error) error
	Pending(ctx context.Context) ([]entity.QueuedMutation, error)
	Discard(ctx context.Context, mode entity.CountMode) (int, error)
	DiscardCode(ctx context.Context, mode entity.CountMode, code, sessionID string) (int, error)
}

// Session sesión colaborativa activa en este dispositivo.
type Session struct {
	ID            string
	ParticipantID string
}

// LoadInput qué conjunto cargar.
type LoadInput struct {
	OwnerID string
	Mode    entity.CountMode
	Session *Session // nil fuera de una sesión colaborativa
}

// View conjunto de trabajo visible para el modo activo.
type View struct {
	Mode   entity.CountMode
	Counts []entity.WorkingCount
	Source Source
}

// CountInput un escaneo con su cantidad.
type CountInput struct {
	Code     string
	Quantity decimal.Decimal
	Location entity.Location
}

// CountResult conteo actualizado tras registrar un escaneo.
type CountResult struct {
	Count    entity.WorkingCount
	Known    bool // el código está en el catálogo
	Mutation entity.QueuedMutation
}

// Reconciler mantiene en memoria "lo contado hasta ahora" del modo activo y lo persiste.
type Reconciler struct {
	store    repository.LocalStore
	queue    Queue
	api      ports.CountingAPI
	resolver Resolver
	conn     ports.Connectivity
	log      *logger.Logger
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	loaded  bool
	ownerID string
	mode    entity.CountMode
	session *Session
	counts  map[string]*entity.WorkingCount
}

// NewReconciler construye el reconciliador. conn nil se considera siempre en línea.
func NewReconciler(
	store repository.LocalStore,
	queue Queue,
	api ports.CountingAPI,
	resolver Resolver,
	conn ports.Connectivity,
	log *logger.Logger,
	timeout time.Duration,
) *Reconciler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{
		store:    store,
		queue:    queue,
		api:      api,
		resolver: resolver,
		conn:     conn,
		log:      log.Component("workingset"),
		timeout:  timeout,
		now:      time.Now,
		counts:   map[string]*entity.WorkingCount{},
	}
}

// Load lee el conjunto local del modo y, si el modo admite consolidación, hay sesión y hay red,
// lo reemplaza por el consolidado del servidor más los eventos propios aún sin acuse.
// Si el servidor no responde se queda el conjunto local.
func (r *Reconciler) Load(ctx context.Context, in LoadInput) (*View, error) {
	if in.OwnerID == "" || !in.Mode.Valid() {
		return nil, fmt.Errorf("%w: propietario y modo requeridos", domain.ErrInvalidInput)
	}
	if in.Session != nil && (in.Session.ID == "" || in.Session.ParticipantID == "") {
		return nil, fmt.Errorf("%w: sesión incompleta", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.store.ReadWorkingSet(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	local := map[string]*entity.WorkingCount{}
	for _, c := range entity.FilterByMode(all, in.Mode) {
		c := c
		local[c.Code] = &c
	}

	r.loaded = true
	r.ownerID = in.OwnerID
	r.mode = in.Mode
	r.session = in.Session
	r.counts = local

	if !in.Mode.SupportsConsolidation() || in.Session == nil || !r.online() {
		return r.viewLocked(SourceLocal), nil
	}

	err = r.queue.Hold(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		snap, err := r.api.FetchSessionSnapshot(reqCtx, in.Session.ID)
		cancel()
		if err != nil {
			return err
		}
		pending, err := r.queue.Pending(ctx)
		if err != nil {
			return err
		}
		merged := r.fromSnapshot(snap, local, pending)
		if err := r.store.ReplaceWorkingSet(ctx, in.OwnerID, in.Mode, values(merged)); err != nil {
			return err
		}
		r.counts = merged
		return nil
	})
	switch {
	case err == nil:
		r.log.Debug().Int("productos", len(r.counts)).Str("sesion", in.Session.ID).Msg("consolidado del servidor cargado")
		return r.viewLocked(SourceServer), nil
	case errors.Is(err, domain.ErrStorage), errors.Is(err, domain.ErrUnauthorized):
		return nil, err
	default:
		r.log.Warn().Err(err).Msg("consolidado no disponible, se usa el conteo local")
		return r.viewLocked(SourceLocal), nil
	}
}

// fromSnapshot reconstruye el conjunto desde el consolidado y suma los eventos pendientes
// de esta sesión y modo, que el servidor todavía no incluye.
func (r *Reconciler) fromSnapshot(snap *dto.SnapshotResponse, local map[string]*entity.WorkingCount, pending []entity.QueuedMutation) map[string]*entity.WorkingCount {
	now := r.now().UTC()
	out := map[string]*entity.WorkingCount{}
	get := func(code string) *entity.WorkingCount {
		if wc, ok := out[code]; ok {
			return wc
		}
		var wc *entity.WorkingCount
		if prev, ok := local[code]; ok {
			// Se conserva el saldo tomado en el primer conteo.
			wc = prev.Clone()
			wc.Quantities = map[entity.Location]decimal.Decimal{}
		} else {
			product, _ := r.resolve(code)
			wc = entity.NewWorkingCount(r.ownerID, r.mode, code, product, now)
		}
		out[code] = wc
		return wc
	}

	if snap != nil {
		for _, item := range snap.Items {
			loc := entity.Location(item.LocationBucket)
			if !loc.Valid() {
				r.log.Warn().Str("codigo", item.Code).Str("ubicacion", item.LocationBucket).Msg("ubicación desconocida en consolidado")
				continue
			}
			get(entity.NormalizeCode(item.Code)).Apply(loc, item.Quantity, now)
		}
	}
	for _, m := range pending {
		if m.Mode != r.mode || r.session == nil || m.SessionID != r.session.ID {
			continue
		}
		get(m.Code).Apply(m.Location, m.Quantity, m.CreatedAt)
	}
	return out
}

// RecordCount suma el escaneo al conjunto en memoria, lo persiste y lo encola.
// Códigos fuera del catálogo también se cuentan, con saldo cero.
func (r *Reconciler) RecordCount(ctx context.Context, in CountInput) (*CountResult, error) {
	code := entity.NormalizeCode(in.Code)
	if code == "" || in.Quantity.IsZero() || !in.Location.Valid() {
		return nil, fmt.Errorf("%w: código, cantidad y ubicación requeridos", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return nil, fmt.Errorf("%w: no hay conjunto de trabajo cargado", domain.ErrInvalidInput)
	}

	product, known := r.resolve(code)
	if known {
		code = product.Code
	}
	now := r.now().UTC()

	prev := r.counts[code]
	var next *entity.WorkingCount
	if prev != nil {
		next = prev.Clone()
	} else {
		next = entity.NewWorkingCount(r.ownerID, r.mode, code, product, now)
	}
	next.Apply(in.Location, in.Quantity, now)

	updated := r.withCount(code, next)
	if err := r.store.ReplaceWorkingSet(ctx, r.ownerID, r.mode, values(updated)); err != nil {
		return nil, err
	}

	mut := entity.QueuedMutation{
		OwnerID:  r.ownerID,
		Code:     code,
		Quantity: in.Quantity,
		Location: in.Location,
		Mode:     r.mode,
	}
	if r.session != nil {
		mut.SessionID = r.session.ID
		mut.ParticipantID = r.session.ParticipantID
	}
	mut, err := r.queue.Record(ctx, mut)
	if err != nil {
		// Sin evento en la cola el conteo no se explicaría: se deshace.
		if rbErr := r.store.ReplaceWorkingSet(ctx, r.ownerID, r.mode, values(r.counts)); rbErr != nil {
			r.log.Error().Err(rbErr).Str("codigo", code).Msg("no se pudo deshacer el conteo local")
		}
		return nil, err
	}

	r.counts = updated
	return &CountResult{Count: *next.Clone(), Known: known, Mutation: mut}, nil
}

// RemoveItem quita el producto del conjunto local y descarta sus eventos sin acuse del modo
// y sesión activos, para que ni un envío posterior ni Load lo devuelvan. En el modo consolidado
// con sesión activa pide además el borrado en el servidor; si falla devuelve ErrRemoteDelete
// y no se reintenta. Que el servidor no tenga el producto cuenta como borrado.
func (r *Reconciler) RemoveItem(ctx context.Context, code string) error {
	code = entity.NormalizeCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return fmt.Errorf("%w: no hay conjunto de trabajo cargado", domain.ErrInvalidInput)
	}
	if product, ok := r.resolve(code); ok {
		if _, counted := r.counts[product.Code]; counted {
			code = product.Code
		}
	}
	if _, ok := r.counts[code]; !ok {
		return fmt.Errorf("%w: %s no está en el conteo", domain.ErrNotFound, code)
	}

	updated := r.withCount(code, nil)
	if err := r.store.ReplaceWorkingSet(ctx, r.ownerID, r.mode, values(updated)); err != nil {
		return err
	}

	sessionID := ""
	if r.session != nil {
		sessionID = r.session.ID
	}
	n, err := r.queue.DiscardCode(ctx, r.mode, code, sessionID)
	if err != nil {
		// Con los eventos aún en cola el producto volvería: se restaura el conteo.
		if rbErr := r.store.ReplaceWorkingSet(ctx, r.ownerID, r.mode, values(r.counts)); rbErr != nil {
			r.log.Error().Err(rbErr).Str("codigo", code).Msg("no se pudo restaurar el conteo local")
		}
		return err
	}
	r.counts = updated
	r.log.Debug().Str("codigo", code).Int("eventos_descartados", n).Msg("producto quitado del conteo")

	if !r.mode.SupportsConsolidation() || r.session == nil {
		return nil
	}
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err = r.api.DeleteCountItem(reqCtx, code, r.session.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		r.log.Debug().Str("codigo", code).Msg("el servidor no tenía el producto")
		return nil
	default:
		r.log.Warn().Err(err).Str("codigo", code).Msg("borrado en servidor fallido")
		return fmt.Errorf("%w: %w", ErrRemoteDelete, err)
	}
}

// Counts copia ordenada del conjunto activo (por primer conteo y código).
func (r *Reconciler) Counts() []entity.WorkingCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedCopy(r.counts)
}

// Clear vacía el conjunto local del modo activo y descarta sus eventos sin sesión.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return fmt.Errorf("%w: no hay conjunto de trabajo cargado", domain.ErrInvalidInput)
	}
	if err := r.store.ReplaceWorkingSet(ctx, r.ownerID, r.mode, nil); err != nil {
		return err
	}
	r.counts = map[string]*entity.WorkingCount{}
	n, err := r.queue.Discard(ctx, r.mode)
	if err != nil {
		return err
	}
	r.log.Info().Str("modo", string(r.mode)).Int("eventos_descartados", n).Msg("conteo local limpiado")
	return nil
}

// Mode modo activo.
func (r *Reconciler) Mode() entity.CountMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Reconciler) viewLocked(src Source) *View {
	return &View{Mode: r.mode, Counts: sortedCopy(r.counts), Source: src}
}

// withCount copia del mapa con code reemplazado (o quitado si wc es nil).
func (r *Reconciler) withCount(code string, wc *entity.WorkingCount) map[string]*entity.WorkingCount {
	out := make(map[string]*entity.WorkingCount, len(r.counts)+1)
	for k, v := range r.counts {
		out[k] = v
	}
	if wc == nil {
		delete(out, code)
	} else {
		out[code] = wc
	}
	return out
}

func (r *Reconciler) resolve(code string) (*entity.CatalogProduct, bool) {
	if r.resolver == nil {
		return nil, false
	}
	return r.resolver.Resolve(code)
}

func (r *Reconciler) online() bool {
	return r.conn == nil || r.conn.Online()
}

func values(m map[string]*entity.WorkingCount) []entity.WorkingCount {
	out := make([]entity.WorkingCount, 0, len(m))
	for _, wc := range m {
		out = append(out, *wc)
	}
	return out
}

func sortedCopy(m map[string]*entity.WorkingCount) []entity.WorkingCount {
	out := make([]entity.WorkingCount, 0, len(m))
	for _, wc := range m {
		out = append(out, *wc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstCountedAt.Equal(out[j].FirstCountedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].FirstCountedAt.Before(out[j].FirstCountedAt)
	})
	return out
}
