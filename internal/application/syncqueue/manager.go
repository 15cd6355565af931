package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/application/ports"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// Config parámetros del ciclo de envío.
type Config struct {
	OwnerID        string
	FlushInterval  time.Duration // periodo del temporizador
	MinSpacing     time.Duration // separación mínima entre inicios de ciclo
	RequestTimeout time.Duration // por lote enviado
	MaxBatch       int           // eventos por petición; tope DefaultMaxBatch
}

// DefaultMaxBatch máximo de movimientos que el servidor acepta por petición.
const DefaultMaxBatch = 5000

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 15 * time.Second
	}
	if c.MinSpacing < 0 {
		c.MinSpacing = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxBatch <= 0 || c.MaxBatch > DefaultMaxBatch {
		c.MaxBatch = DefaultMaxBatch
	}
	return c
}

// partitionKey agrupa eventos por (sesión, participante).
type partitionKey struct {
	sessionID     string
	participantID string
}

// lot una petición: un tramo ordenado de una partición.
type lot struct {
	key   partitionKey
	batch []entity.QueuedMutation
}

// Manager registra cada conteo en la cola durable y la vacía en segundo plano.
// Un evento pasa de pendiente a enviado y de ahí a borrado (acuse) o de vuelta a pendiente.
type Manager struct {
	api      ports.CountingAPI
	store    repository.LocalStore
	conn     ports.Connectivity
	reporter Reporter
	log      *logger.Logger
	cfg      Config
	now      func() time.Time

	// cycle garantiza que un evento nunca esté en dos lotes a la vez.
	cycle   sync.Mutex
	trigger chan struct{}

	mu             sync.Mutex
	status         Status
	lastStart      time.Time
	lastRecorded   time.Time
	storageFailing bool
	rejected       map[partitionKey]string // partición -> motivo del rechazo definitivo
	subs           map[int]chan Status
	nextSub        int
}

// NewManager construye el gestor. conn y reporter pueden ser nil (siempre en línea, sin métricas).
func NewManager(api ports.CountingAPI, store repository.LocalStore, conn ports.Connectivity, reporter Reporter, log *logger.Logger, cfg Config) *Manager {
	m := &Manager{
		api:      api,
		store:    store,
		conn:     conn,
		reporter: reporter,
		log:      log.Component("sync"),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		subs:     map[int]chan Status{},
		rejected: map[partitionKey]string{},
	}
	m.status.Online = m.online()
	return m
}

// Record persiste el evento de inmediato; nunca toca la red.
// Asigna ID, propietario y fecha si vienen vacíos y devuelve el evento guardado.
func (m *Manager) Record(ctx context.Context, mut entity.QueuedMutation) (entity.QueuedMutation, error) {
	if mut.ID == "" {
		mut.ID = uuid.New().String()
	}
	if mut.OwnerID == "" {
		mut.OwnerID = m.cfg.OwnerID
	}
	if mut.CreatedAt.IsZero() {
		mut.CreatedAt = m.nextTimestamp()
	}
	mut.Code = entity.NormalizeCode(mut.Code)
	if mut.Code == "" || mut.Quantity.IsZero() || !mut.Location.Valid() || !mut.Mode.Valid() {
		return mut, fmt.Errorf("%w: evento de conteo incompleto", domain.ErrInvalidInput)
	}
	if err := m.store.PutMutation(ctx, mut); err != nil {
		m.storageFailed(err)
		return mut, err
	}
	m.storageRecovered()
	m.refreshPending(ctx)
	return mut, nil
}

// nextTimestamp fecha del evento con resolución de milisegundos (la del almacén),
// estrictamente creciente para que dos escaneos seguidos conserven su orden.
func (m *Manager) nextTimestamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().UTC().Truncate(time.Millisecond)
	if !ts.After(m.lastRecorded) {
		ts = m.lastRecorded.Add(time.Millisecond)
	}
	m.lastRecorded = ts
	return ts
}

// SyncNow pide un ciclo inmediato al bucle de Run (sincronizar ahora). No bloquea.
func (m *Manager) SyncNow() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Resume reactiva el envío automático tras volver a iniciar sesión.
// Las particiones rechazadas se vuelven a intentar con el token nuevo.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.status.Suspended = false
	m.rejected = map[partitionKey]string{}
	m.mu.Unlock()
	m.refreshPending(context.Background())
	m.SyncNow()
}

// Run ejecuta ciclos por temporizador, por paso a en línea y por SyncNow hasta que ctx termina.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	var transitions <-chan ports.ConnectivityTransition
	if m.conn != nil {
		ch, unsubscribe := m.conn.Subscribe()
		defer unsubscribe()
		transitions = ch
	}

	m.refreshPending(ctx)
	m.log.Info().Dur("intervalo", m.cfg.FlushInterval).Msg("sincronización en segundo plano iniciada")

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("sincronización en segundo plano detenida")
			return nil
		case <-ticker.C:
			m.runCycle(ctx)
		case <-m.trigger:
			m.runCycle(ctx)
		case tr, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			m.mu.Lock()
			m.status.Online = tr.Online
			m.mu.Unlock()
			m.publish()
			if tr.Online {
				m.runCycle(ctx)
			}
		}
	}
}

func (m *Manager) runCycle(ctx context.Context) {
	// Los errores ya quedaron registrados dentro del ciclo.
	_, _ = m.Flush(ctx)
}

// Flush ejecuta un ciclo: lee pendientes, agrupa por (sesión, participante), envía cada grupo
// en lotes de hasta MaxBatch eventos y borra exactamente los eventos de cada lote confirmado.
// Un lote enviado no se cancela: la petición usa su propio timeout aunque ctx termine.
// Una partición rechazada por el servidor (403, 400, 404, 409) queda apartada hasta
// DiscardRejected o Resume; las demás siguen su curso.
func (m *Manager) Flush(ctx context.Context) (Report, error) {
	if !m.cycle.TryLock() {
		return m.skipped(SkipRunning), nil
	}
	defer m.cycle.Unlock()
	return m.flushLocked(ctx)
}

func (m *Manager) flushLocked(ctx context.Context) (Report, error) {
	m.mu.Lock()
	switch {
	case m.status.Suspended:
		m.mu.Unlock()
		return m.skipped(SkipSuspended), nil
	case !m.online():
		m.mu.Unlock()
		return m.skipped(SkipOffline), nil
	case !m.lastStart.IsZero() && m.now().Sub(m.lastStart) < m.cfg.MinSpacing:
		m.mu.Unlock()
		return m.skipped(SkipSpacing), nil
	}
	m.lastStart = m.now()
	m.status.Syncing = true
	m.mu.Unlock()
	m.publish()

	var report Report
	defer func() {
		m.mu.Lock()
		m.status.Syncing = false
		if report.Partitions > 0 && report.Failed == 0 {
			m.status.LastSyncAt = m.now().UTC()
		}
		m.mu.Unlock()
		m.refreshPending(ctx)
		if m.reporter != nil {
			m.reporter.CycleCompleted(report)
		}
	}()

	pending, err := m.store.ListMutations(ctx, m.cfg.OwnerID)
	if err != nil {
		m.storageFailed(err)
		return report, err
	}
	m.storageRecovered()
	entity.SortMutations(pending)

	order, groups := partition(pending)
	for _, mut := range pending {
		if !mut.HasSessionContext() {
			report.LocalOnly++
		}
	}

	lots := m.plan(order, groups)
	blocked := map[partitionKey]bool{}
	for i, l := range lots {
		if blocked[l.key] {
			continue
		}
		report.Partitions++
		report.Sent += len(l.batch)

		resp, err := m.send(ctx, l.key, l.batch)
		if err != nil {
			report.Failed++
			// Los tramos siguientes de la partición esperan para no alterar el orden.
			blocked[l.key] = true
			switch {
			case errors.Is(err, domain.ErrUnauthorized):
				m.suspend(err)
				// El resto de lotes fallaría igual; quedan pendientes.
				for _, rest := range lots[i+1:] {
					if !blocked[rest.key] {
						report.Partitions++
						report.Failed++
					}
				}
				return report, err
			case rejection(err):
				report.Rejected++
				m.reject(l.key, err)
			default:
				m.log.Warn().Err(err).
					Str("sesion", l.key.sessionID).
					Str("participante", l.key.participantID).
					Int("eventos", len(l.batch)).
					Msg("lote no confirmado, se reintenta en el próximo ciclo")
			}
			continue
		}

		ids := make([]string, len(l.batch))
		for j, mut := range l.batch {
			ids[j] = mut.ID
		}
		if err := m.store.DeleteMutations(context.WithoutCancel(ctx), ids); err != nil {
			// El servidor ya los tiene; reenviarlos es inocuo.
			m.storageFailed(err)
			report.Failed++
			blocked[l.key] = true
			continue
		}
		report.Acknowledged += len(ids)
		report.Duplicates += resp.Duplicates
	}

	m.log.Debug().
		Str("resultado", report.Result()).
		Int("lotes", report.Partitions).
		Int("enviados", report.Sent).
		Int("confirmados", report.Acknowledged).
		Int("solo_locales", report.LocalOnly).
		Msg("ciclo de sincronización")
	return report, nil
}

func (m *Manager) send(ctx context.Context, key partitionKey, batch []entity.QueuedMutation) (*dto.SessionSyncResponse, error) {
	req := dto.SessionSyncRequest{
		ParticipantID: key.participantID,
		Movements:     make([]dto.MovementDTO, len(batch)),
	}
	for i, mut := range batch {
		req.Movements[i] = dto.MovementDTO{
			ID:             mut.ID,
			Code:           mut.Code,
			Quantity:       mut.Quantity,
			Timestamp:      mut.CreatedAt,
			LocationBucket: string(mut.Location),
		}
	}
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RequestTimeout)
	defer cancel()
	resp, err := m.api.SyncSession(reqCtx, key.sessionID, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &dto.SessionSyncResponse{Accepted: len(batch)}
	}
	return resp, nil
}

// partition agrupa los eventos con contexto de sesión conservando el orden almacenado.
func partition(pending []entity.QueuedMutation) ([]partitionKey, map[partitionKey][]entity.QueuedMutation) {
	var order []partitionKey
	groups := map[partitionKey][]entity.QueuedMutation{}
	for _, mut := range pending {
		if !mut.HasSessionContext() {
			continue
		}
		key := partitionKey{sessionID: mut.SessionID, participantID: mut.ParticipantID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], mut)
	}
	return order, groups
}

// plan parte cada partición no rechazada en tramos de MaxBatch conservando el orden.
func (m *Manager) plan(order []partitionKey, groups map[partitionKey][]entity.QueuedMutation) []lot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lots []lot
	for _, key := range order {
		if _, ok := m.rejected[key]; ok {
			continue
		}
		batch := groups[key]
		for len(batch) > m.cfg.MaxBatch {
			lots = append(lots, lot{key: key, batch: batch[:m.cfg.MaxBatch]})
			batch = batch[m.cfg.MaxBatch:]
		}
		lots = append(lots, lot{key: key, batch: batch})
	}
	return lots
}

// rejection errores con los que reenviar el mismo lote no cambia la respuesta.
func rejection(err error) bool {
	return errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrNotFound)
}

func (m *Manager) reject(key partitionKey, err error) {
	m.mu.Lock()
	m.rejected[key] = err.Error()
	m.mu.Unlock()
	m.log.Error().Err(err).
		Str("sesion", key.sessionID).
		Str("participante", key.participantID).
		Msg("el servidor rechazó la partición; queda apartada hasta descartarla")
}

// Hold ejecuta fn con el candado de ciclo tomado: ningún lote se confirma mientras fn lee.
func (m *Manager) Hold(ctx context.Context, fn func(ctx context.Context) error) error {
	m.cycle.Lock()
	defer m.cycle.Unlock()
	return fn(ctx)
}

// Pending eventos sin acuse del propietario, ordenados.
func (m *Manager) Pending(ctx context.Context) ([]entity.QueuedMutation, error) {
	list, err := m.store.ListMutations(ctx, m.cfg.OwnerID)
	if err != nil {
		return nil, err
	}
	entity.SortMutations(list)
	return list, nil
}

// Discard borra los eventos sin sesión de un modo (ruta de un solo propietario):
// al finalizar o limpiar el conteo local ya no tienen destino.
func (m *Manager) Discard(ctx context.Context, mode entity.CountMode) (int, error) {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	pending, err := m.store.ListMutations(ctx, m.cfg.OwnerID)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, mut := range pending {
		if mut.Mode == mode && !mut.HasSessionContext() {
			ids = append(ids, mut.ID)
		}
	}
	if err := m.store.DeleteMutations(ctx, ids); err != nil {
		return 0, err
	}
	m.refreshPending(ctx)
	return len(ids), nil
}

// DiscardCode borra los eventos pendientes de un código en un modo y sesión
// ("" para los eventos sin sesión). Toma el candado de ciclo: ninguno está en vuelo.
func (m *Manager) DiscardCode(ctx context.Context, mode entity.CountMode, code, sessionID string) (int, error) {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	code = entity.NormalizeCode(code)
	pending, err := m.store.ListMutations(ctx, m.cfg.OwnerID)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, mut := range pending {
		if mut.Mode != mode || mut.Code != code {
			continue
		}
		if sessionID == "" && mut.HasSessionContext() {
			continue
		}
		if sessionID != "" && mut.SessionID != sessionID {
			continue
		}
		ids = append(ids, mut.ID)
	}
	if err := m.store.DeleteMutations(ctx, ids); err != nil {
		return 0, err
	}
	m.refreshPending(ctx)
	return len(ids), nil
}

// Rejection partición apartada por un rechazo definitivo del servidor.
type Rejection struct {
	SessionID     string
	ParticipantID string
	Pending       int
	Reason        string
}

// Rejections particiones apartadas con sus eventos pendientes.
func (m *Manager) Rejections(ctx context.Context) ([]Rejection, error) {
	pending, err := m.store.ListMutations(ctx, m.cfg.OwnerID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[partitionKey]int{}
	for _, mut := range pending {
		key := partitionKey{sessionID: mut.SessionID, participantID: mut.ParticipantID}
		if _, ok := m.rejected[key]; ok {
			counts[key]++
		}
	}
	out := make([]Rejection, 0, len(m.rejected))
	for key, reason := range m.rejected {
		out = append(out, Rejection{
			SessionID:     key.sessionID,
			ParticipantID: key.participantID,
			Pending:       counts[key],
			Reason:        reason,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}

// DiscardRejected borra los eventos de las particiones rechazadas por el servidor.
func (m *Manager) DiscardRejected(ctx context.Context) (int, error) {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	pending, err := m.store.ListMutations(ctx, m.cfg.OwnerID)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	var ids []string
	for _, mut := range pending {
		key := partitionKey{sessionID: mut.SessionID, participantID: mut.ParticipantID}
		if _, ok := m.rejected[key]; ok {
			ids = append(ids, mut.ID)
		}
	}
	m.mu.Unlock()

	if err := m.store.DeleteMutations(ctx, ids); err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.rejected = map[partitionKey]string{}
	m.mu.Unlock()
	m.log.Warn().Int("eventos", len(ids)).Msg("eventos rechazados descartados")
	m.refreshPending(ctx)
	return len(ids), nil
}

// Status estado actual para la UI.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe entrega el último estado tras cada cambio; la función devuelta cancela.
func (m *Manager) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.status
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.mu.Unlock()
	}
}

func (m *Manager) publish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		// Solo interesa el último estado: se descarta el anterior si nadie lo leyó.
		select {
		case <-ch:
		default:
		}
		ch <- m.status
	}
}

func (m *Manager) refreshPending(ctx context.Context) {
	list, err := m.store.ListMutations(ctx, m.cfg.OwnerID)
	if err != nil {
		m.storageFailed(err)
		return
	}
	m.mu.Lock()
	localOnly, rejected := 0, 0
	for _, mut := range list {
		if !mut.HasSessionContext() {
			localOnly++
			continue
		}
		if _, ok := m.rejected[partitionKey{sessionID: mut.SessionID, participantID: mut.ParticipantID}]; ok {
			rejected++
		}
	}
	m.status.Pending = len(list)
	m.status.LocalOnly = localOnly
	m.status.Rejected = rejected
	m.status.Online = m.online()
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) online() bool {
	return m.conn == nil || m.conn.Online()
}

func (m *Manager) skipped(reason SkipReason) Report {
	r := Report{Skipped: reason}
	if m.reporter != nil {
		m.reporter.CycleCompleted(r)
	}
	return r
}

func (m *Manager) suspend(err error) {
	m.mu.Lock()
	m.status.Suspended = true
	m.mu.Unlock()
	m.log.Error().Err(err).Msg("sesión no autorizada: envío automático suspendido hasta volver a iniciar sesión")
	m.publish()
}

// storageFailed registra el error solo al inicio de una racha de fallos.
func (m *Manager) storageFailed(err error) {
	m.mu.Lock()
	first := !m.storageFailing
	m.storageFailing = true
	m.mu.Unlock()
	if first {
		m.log.Error().Err(err).Msg("almacenamiento local con fallos")
	}
}

func (m *Manager) storageRecovered() {
	m.mu.Lock()
	m.storageFailing = false
	m.mu.Unlock()
}
