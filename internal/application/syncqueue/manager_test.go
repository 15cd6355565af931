package syncqueue_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/application/ports"
	"github.com/jhoicas/inventario-conteo/internal/application/syncqueue"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/sqlite"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

const owner = "owner-1"

type syncCall struct {
	sessionID string
	req       dto.SessionSyncRequest
}

// fakeAPI servidor simulado: registra lotes y falla por sesión según failFor.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []syncCall
	failFor map[string]error
	failAt  map[int]error // por número de llamada, desde 1
	seen    map[string]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{failFor: map[string]error{}, failAt: map[int]error{}, seen: map[string]bool{}}
}

func (f *fakeAPI) SyncSession(_ context.Context, sessionID string, req dto.SessionSyncRequest) (*dto.SessionSyncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{sessionID: sessionID, req: req})
	if err, ok := f.failFor[sessionID]; ok {
		return nil, err
	}
	if err, ok := f.failAt[len(f.calls)]; ok {
		return nil, err
	}
	resp := &dto.SessionSyncResponse{}
	for _, mv := range req.Movements {
		if f.seen[mv.ID] {
			resp.Duplicates++
			continue
		}
		f.seen[mv.ID] = true
		resp.Accepted++
	}
	return resp, nil
}

func (f *fakeAPI) FetchCatalog(context.Context) (*dto.CatalogResponse, error) {
	return nil, domain.ErrNetwork
}

func (f *fakeAPI) FetchSessionSnapshot(context.Context, string) (*dto.SnapshotResponse, error) {
	return nil, domain.ErrNetwork
}

func (f *fakeAPI) DeleteCountItem(context.Context, string, string) error { return nil }

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) setFail(sessionID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failFor, sessionID)
		return
	}
	f.failFor[sessionID] = err
}

// fakeConn conectividad controlada por el test.
type fakeConn struct {
	online atomic.Bool
	ch     chan ports.ConnectivityTransition
}

func newFakeConn(online bool) *fakeConn {
	c := &fakeConn{ch: make(chan ports.ConnectivityTransition, 4)}
	c.online.Store(online)
	return c
}

func (c *fakeConn) Online() bool { return c.online.Load() }

func (c *fakeConn) Subscribe() (<-chan ports.ConnectivityTransition, func()) {
	return c.ch, func() {}
}

func (c *fakeConn) set(online bool) {
	c.online.Store(online)
	c.ch <- ports.ConnectivityTransition{Online: online, At: time.Now()}
}

type countingReporter struct {
	mu      sync.Mutex
	results []string
}

func (r *countingReporter) CycleCompleted(rep syncqueue.Report) {
	r.mu.Lock()
	r.results = append(r.results, rep.Result())
	r.mu.Unlock()
}

func newManager(t *testing.T, api *fakeAPI, conn ports.Connectivity, spacing time.Duration) (*syncqueue.Manager, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "conteo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	m := syncqueue.NewManager(api, st, conn, nil, logger.Nop(), syncqueue.Config{
		OwnerID:        owner,
		FlushInterval:  time.Hour,
		MinSpacing:     spacing,
		RequestTimeout: time.Second,
	})
	return m, st
}

func newManagerBatch(t *testing.T, api *fakeAPI, maxBatch int) (*syncqueue.Manager, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "conteo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	m := syncqueue.NewManager(api, st, nil, nil, logger.Nop(), syncqueue.Config{
		OwnerID:        owner,
		FlushInterval:  time.Hour,
		RequestTimeout: time.Second,
		MaxBatch:       maxBatch,
	})
	return m, st
}

func record(t *testing.T, m *syncqueue.Manager, code string, qty int64, session, participant string) entity.QueuedMutation {
	t.Helper()
	mut, err := m.Record(context.Background(), entity.QueuedMutation{
		Code:          code,
		Quantity:      decimal.NewFromInt(qty),
		Location:      entity.LocationFront,
		Mode:          entity.ModeAudit,
		SessionID:     session,
		ParticipantID: participant,
	})
	require.NoError(t, err)
	return mut
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests Record
// ──────────────────────────────────────────────────────────────────────────────

func TestRecord_AsignaIDYPersisteSinRed(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, newFakeConn(false), 0)

	mut := record(t, m, "789", 3, "s1", "p1")
	assert.NotEmpty(t, mut.ID)
	assert.Equal(t, owner, mut.OwnerID)
	assert.False(t, mut.CreatedAt.IsZero())
	assert.Zero(t, api.callCount())

	list, err := st.ListMutations(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, m.Status().Pending)
}

func TestRecord_EventoIncompletoRechaza(t *testing.T) {
	m, _ := newManager(t, newFakeAPI(), nil, 0)
	_, err := m.Record(context.Background(), entity.QueuedMutation{
		Code: "789", Quantity: decimal.Zero, Location: entity.LocationFront, Mode: entity.ModeAudit,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Record(context.Background(), entity.QueuedMutation{
		Code: "789", Quantity: decimal.NewFromInt(1), Location: "pasillo", Mode: entity.ModeAudit,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests Flush
// ──────────────────────────────────────────────────────────────────────────────

func TestFlush_EscenarioSinConexionUnSoloLote(t *testing.T) {
	api := newFakeAPI()
	conn := newFakeConn(false)
	m, st := newManager(t, api, conn, 0)
	ctx := context.Background()

	first := record(t, m, "789", 3, "s1", "p1")
	second := record(t, m, "789", 5, "s1", "p1")

	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.SkipOffline, rep.Skipped)
	assert.Zero(t, api.callCount())

	conn.online.Store(true)
	rep, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.ResultOK, rep.Result())
	require.Equal(t, 1, api.callCount())

	call := api.calls[0]
	assert.Equal(t, "s1", call.sessionID)
	assert.Equal(t, "p1", call.req.ParticipantID)
	require.Len(t, call.req.Movements, 2)
	assert.Equal(t, first.ID, call.req.Movements[0].ID)
	assert.Equal(t, second.ID, call.req.Movements[1].ID)
	assert.Equal(t, "front", call.req.Movements[0].LocationBucket)
	total := call.req.Movements[0].Quantity.Add(call.req.Movements[1].Quantity)
	assert.True(t, total.Equal(decimal.NewFromInt(8)))

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, m.Status().Pending)
}

func TestFlush_FalloEnParticionANoAfectaB(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, nil, 0)
	ctx := context.Background()

	a := record(t, m, "111", 1, "sesion-A", "p1")
	record(t, m, "222", 2, "sesion-B", "p1")
	record(t, m, "333", 3, "sesion-B", "p1")
	api.setFail("sesion-A", fmt.Errorf("%w: 503", domain.ErrNetwork))

	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Partitions)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 2, rep.Acknowledged)
	assert.Equal(t, syncqueue.ResultPartial, rep.Result())

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestFlush_AcusePerdidoReenviaMismosIDs(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, nil, 0)
	ctx := context.Background()
	mut := record(t, m, "789", 3, "s1", "p1")

	// El servidor guardó el lote pero la respuesta se perdió.
	api.seen[mut.ID] = true
	api.setFail("s1", fmt.Errorf("%w: timeout", domain.ErrNetwork))
	_, err := m.Flush(ctx)
	require.NoError(t, err)

	api.setFail("s1", nil)
	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Duplicates)
	require.Equal(t, 2, api.callCount())
	assert.Equal(t, api.calls[0].req.Movements[0].ID, api.calls[1].req.Movements[0].ID)

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFlush_EventosSinSesionQuedanPendientes(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, nil, 0)
	record(t, m, "789", 3, "", "")

	rep, err := m.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.ResultEmpty, rep.Result())
	assert.Equal(t, 1, rep.LocalOnly)
	assert.Zero(t, api.callCount())

	list, err := st.ListMutations(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, m.Status().LocalOnly)
}

func TestFlush_SeOmiteSiOtroCicloEstaEnCurso(t *testing.T) {
	api := newFakeAPI()
	m, _ := newManager(t, api, nil, 0)
	record(t, m, "789", 3, "s1", "p1")

	err := m.Hold(context.Background(), func(ctx context.Context) error {
		rep, err := m.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, syncqueue.SkipRunning, rep.Skipped)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, api.callCount())
}

func TestFlush_SeparacionMinimaEntreCiclos(t *testing.T) {
	api := newFakeAPI()
	m, _ := newManager(t, api, nil, time.Hour)
	record(t, m, "789", 3, "s1", "p1")

	rep, err := m.Flush(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Skipped)

	record(t, m, "789", 1, "s1", "p1")
	rep, err = m.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.SkipSpacing, rep.Skipped)
	assert.Equal(t, 1, api.callCount())
}

func TestFlush_NoAutorizadoSuspendeHastaResume(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, nil, 0)
	record(t, m, "789", 3, "s1", "p1")
	api.setFail("s1", fmt.Errorf("%w: 401", domain.ErrUnauthorized))

	_, err := m.Flush(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.True(t, m.Status().Suspended)

	rep, err := m.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.SkipSuspended, rep.Skipped)
	assert.Equal(t, 1, api.callCount())

	api.setFail("s1", nil)
	m.Resume()
	assert.False(t, m.Status().Suspended)
	rep, err = m.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.ResultOK, rep.Result())

	list, err := st.ListMutations(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFlush_ProhibidoEnANoSuspendeNiBloqueaB(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, nil, 0)
	ctx := context.Background()

	a := record(t, m, "111", 1, "sesion-A", "p1")
	record(t, m, "222", 2, "sesion-B", "p1")
	api.setFail("sesion-A", fmt.Errorf("%w: HTTP 403", domain.ErrForbidden))

	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Partitions)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, 1, rep.Acknowledged)
	assert.False(t, m.Status().Suspended)
	assert.Equal(t, 1, m.Status().Rejected)

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	// B sigue fluyendo; A no se reenvía en cada ciclo.
	record(t, m, "333", 1, "sesion-B", "p1")
	rep, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.ResultOK, rep.Result())
	assert.Equal(t, 3, api.callCount())
	assert.Equal(t, "sesion-B", api.calls[2].sessionID)
}

func TestFlush_SesionCerradaSeApartaHastaDescartar(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, nil, 0)
	ctx := context.Background()
	record(t, m, "111", 1, "s-cerrada", "p1")
	record(t, m, "222", 1, "s-cerrada", "p1")
	record(t, m, "333", 1, "", "")
	api.setFail("s-cerrada", fmt.Errorf("%w: HTTP 409: sesión cerrada", domain.ErrConflict))

	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, syncqueue.ResultFailed, rep.Result())

	rejected, err := m.Rejections(ctx)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "s-cerrada", rejected[0].SessionID)
	assert.Equal(t, "p1", rejected[0].ParticipantID)
	assert.Equal(t, 2, rejected[0].Pending)
	assert.Contains(t, rejected[0].Reason, "sesión cerrada")

	n, err := m.DiscardRejected(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, m.Status().Rejected)
	assert.Equal(t, 1, m.Status().Pending)

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "333", list[0].Code)

	rejected, err = m.Rejections(ctx)
	require.NoError(t, err)
	assert.Empty(t, rejected)
}

func TestFlush_ResumeReintentaParticionesRechazadas(t *testing.T) {
	api := newFakeAPI()
	m, st := newManager(t, api, nil, 0)
	ctx := context.Background()
	record(t, m, "111", 1, "s1", "p1")
	api.setFail("s1", fmt.Errorf("%w: HTTP 403", domain.ErrForbidden))

	_, err := m.Flush(ctx)
	require.NoError(t, err)
	_, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, api.callCount())

	api.setFail("s1", nil)
	m.Resume()
	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.ResultOK, rep.Result())

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFlush_ParticionGrandeSeParteEnLotesOrdenados(t *testing.T) {
	api := newFakeAPI()
	m, st := newManagerBatch(t, api, 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, record(t, m, fmt.Sprintf("c%d", i), 1, "s1", "p1").ID)
	}

	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Partitions)
	assert.Equal(t, 5, rep.Acknowledged)
	require.Equal(t, 3, api.callCount())

	var sent []string
	for i, call := range api.calls {
		assert.LessOrEqual(t, len(call.req.Movements), 2, "lote %d", i)
		for _, mv := range call.req.Movements {
			sent = append(sent, mv.ID)
		}
	}
	assert.Equal(t, ids, sent)

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFlush_TramoFallidoDetieneElRestoDeLaParticion(t *testing.T) {
	api := newFakeAPI()
	m, st := newManagerBatch(t, api, 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, record(t, m, fmt.Sprintf("c%d", i), 1, "s1", "p1").ID)
	}
	api.failAt[2] = fmt.Errorf("%w: 503", domain.ErrNetwork)

	rep, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, api.callCount())
	assert.Equal(t, 2, rep.Acknowledged)
	assert.Equal(t, syncqueue.ResultPartial, rep.Result())

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	entity.SortMutations(list)
	var left []string
	for _, mut := range list {
		left = append(left, mut.ID)
	}
	assert.Equal(t, ids[2:], left)

	rep, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.ResultOK, rep.Result())
	assert.Equal(t, ids[2], api.calls[2].req.Movements[0].ID)
}

func TestFlush_ReportaCadaCiclo(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "conteo.db"))
	require.NoError(t, err)
	defer st.Close()
	rep := &countingReporter{}
	conn := newFakeConn(false)
	m := syncqueue.NewManager(newFakeAPI(), st, conn, rep, logger.Nop(), syncqueue.Config{OwnerID: owner})

	_, err = m.Flush(context.Background())
	require.NoError(t, err)
	conn.online.Store(true)
	_, err = m.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{syncqueue.ResultSkipped, syncqueue.ResultEmpty}, rep.results)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests Discard / Run / Subscribe
// ──────────────────────────────────────────────────────────────────────────────

func TestDiscard_SoloEventosLocalesDelModo(t *testing.T) {
	m, st := newManager(t, newFakeAPI(), newFakeConn(false), 0)
	ctx := context.Background()
	record(t, m, "111", 1, "", "")
	session := record(t, m, "222", 1, "s1", "p1")
	imp, err := m.Record(ctx, entity.QueuedMutation{
		Code: "333", Quantity: decimal.NewFromInt(1), Location: entity.LocationBack, Mode: entity.ModeImport,
	})
	require.NoError(t, err)

	n, err := m.Discard(ctx, entity.ModeAudit)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{session.ID, imp.ID}, ids)
}

func TestDiscardCode_SoloElCodigoDeLaSesion(t *testing.T) {
	m, st := newManager(t, newFakeAPI(), newFakeConn(false), 0)
	ctx := context.Background()
	record(t, m, "555", 1, "s1", "p1")
	record(t, m, "555", 2, "s1", "p1")
	other := record(t, m, "555", 1, "s2", "p1")
	keep := record(t, m, "777", 1, "s1", "p1")
	local := record(t, m, "555", 1, "", "")

	n, err := m.DiscardCode(ctx, entity.ModeAudit, " 555 ", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := st.ListMutations(ctx, owner)
	require.NoError(t, err)
	var ids []string
	for _, mut := range list {
		ids = append(ids, mut.ID)
	}
	assert.ElementsMatch(t, []string{other.ID, keep.ID, local.ID}, ids)

	n, err = m.DiscardCode(ctx, entity.ModeAudit, "555", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, m.Status().Pending)
}

func TestRun_EnviaAlVolverLaConexion(t *testing.T) {
	api := newFakeAPI()
	conn := newFakeConn(false)
	m, _ := newManager(t, api, conn, 0)
	record(t, m, "789", 3, "s1", "p1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	conn.set(true)
	require.Eventually(t, func() bool { return api.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return m.Status().Pending == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRun_SyncNowDisparaCiclo(t *testing.T) {
	api := newFakeAPI()
	m, _ := newManager(t, api, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	record(t, m, "789", 3, "s1", "p1")
	m.SyncNow()
	require.Eventually(t, func() bool { return api.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribe_EntregaUltimoEstado(t *testing.T) {
	m, _ := newManager(t, newFakeAPI(), newFakeConn(false), 0)
	ch, cancel := m.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Zero(t, initial.Pending)
	assert.False(t, initial.Online)

	record(t, m, "789", 3, "s1", "p1")
	var last syncqueue.Status
	require.Eventually(t, func() bool {
		select {
		case last = <-ch:
		default:
		}
		return last.Pending == 1
	}, time.Second, 5*time.Millisecond)
}
