package catalog_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-conteo/internal/application/catalog"
	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/sqlite"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

const owner = "owner-1"

type fakeAPI struct {
	catalog *dto.CatalogResponse
	err     error
	calls   int
}

func (f *fakeAPI) FetchCatalog(ctx context.Context) (*dto.CatalogResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.catalog, nil
}

func (f *fakeAPI) SyncSession(context.Context, string, dto.SessionSyncRequest) (*dto.SessionSyncResponse, error) {
	return nil, domain.ErrNetwork
}

func (f *fakeAPI) FetchSessionSnapshot(context.Context, string) (*dto.SnapshotResponse, error) {
	return nil, domain.ErrNetwork
}

func (f *fakeAPI) DeleteCountItem(context.Context, string, string) error { return domain.ErrNetwork }

// failingStore falla al reemplazar el catálogo; el resto delega en el store real.
type failingStore struct {
	repository.LocalStore
}

func (failingStore) ReplaceCatalog(context.Context, string, []entity.CatalogProduct, []entity.BarcodeLink) error {
	return fmt.Errorf("%w: disco lleno", domain.ErrStorage)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "conteo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleCatalog() *dto.CatalogResponse {
	return &dto.CatalogResponse{
		Products: []dto.CatalogProductDTO{
			{ID: 1, Code: "789100", Description: "Aceite", Balance: decimal.NewFromInt(12)},
			{ID: 2, Code: "555", Description: "Sal", Balance: decimal.NewFromInt(4), RegistrationType: "imported"},
		},
		BarcodeLinks: []dto.BarcodeLinkDTO{{Barcode: "7701234", ProductID: 1}},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests Refresh
// ──────────────────────────────────────────────────────────────────────────────

func TestRefresh_EnLineaReemplazaCopiaLocal(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{catalog: sampleCatalog()}
	m := catalog.NewCacheManager(api, st, logger.Nop(), time.Second)

	res, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Len(t, res.Snapshot.Products, 2)

	stored, err := st.ReadCatalog(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, stored.Products, 2)
	assert.Len(t, stored.Links, 1)
}

func TestRefresh_SinRedDevuelveCopiaMarcadaStale(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{catalog: sampleCatalog()}
	m := catalog.NewCacheManager(api, st, logger.Nop(), time.Second)
	_, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)

	api.err = fmt.Errorf("%w: timeout", domain.ErrNetwork)
	res, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Len(t, res.Snapshot.Products, 2)
}

func TestRefresh_SinRedYSinCopiaDevuelveNoData(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{err: fmt.Errorf("%w: connection refused", domain.ErrNetwork)}
	m := catalog.NewCacheManager(api, st, logger.Nop(), time.Second)

	res, err := m.Refresh(context.Background(), owner)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, catalog.ErrNoCatalogData)
	assert.ErrorIs(t, err, domain.ErrNoCatalogData)

	// La copia local sigue siendo un resultado explícito vacío, no un error.
	snap, err := st.ReadCatalog(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestRefresh_CatalogoVacioDescargadoSirveSinRed(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{catalog: &dto.CatalogResponse{}}
	m := catalog.NewCacheManager(api, st, logger.Nop(), time.Second)
	res, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, res.Snapshot.Products)

	api.err = fmt.Errorf("%w: timeout", domain.ErrNetwork)
	res, err = m.Refresh(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Empty(t, res.Snapshot.Products)
	assert.False(t, res.Snapshot.FetchedAt.IsZero())
}

func TestRefresh_NoAutorizadoNoCaeACache(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{catalog: sampleCatalog()}
	m := catalog.NewCacheManager(api, st, logger.Nop(), time.Second)
	_, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)

	api.err = fmt.Errorf("%w: token expirado", domain.ErrUnauthorized)
	_, err = m.Refresh(context.Background(), owner)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefresh_CatalogoInconsistenteUsaCopia(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{catalog: sampleCatalog()}
	m := catalog.NewCacheManager(api, st, logger.Nop(), time.Second)
	_, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)

	bad := sampleCatalog()
	bad.BarcodeLinks = append(bad.BarcodeLinks, dto.BarcodeLinkDTO{Barcode: "x", ProductID: 99})
	api.catalog = bad
	res, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Len(t, res.Snapshot.Links, 1)
}

func TestRefresh_ErrorDeAlmacenamientoSePropaga(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{catalog: sampleCatalog()}
	m := catalog.NewCacheManager(api, failingStore{LocalStore: st}, logger.Nop(), time.Second)

	_, err := m.Refresh(context.Background(), owner)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestImportCompleted_VuelveADescargar(t *testing.T) {
	st := openStore(t)
	api := &fakeAPI{catalog: sampleCatalog()}
	m := catalog.NewCacheManager(api, st, logger.Nop(), time.Second)

	_, err := m.ImportCompleted(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests Resolve
// ──────────────────────────────────────────────────────────────────────────────

func TestResolve_PorCodigoDeBarrasYPorCodigo(t *testing.T) {
	st := openStore(t)
	m := catalog.NewCacheManager(&fakeAPI{catalog: sampleCatalog()}, st, logger.Nop(), time.Second)
	_, err := m.Refresh(context.Background(), owner)
	require.NoError(t, err)

	p, ok := m.Resolve("7701234")
	require.True(t, ok)
	assert.Equal(t, "Aceite", p.Description)

	p, ok = m.Resolve(" 555 ")
	require.True(t, ok)
	assert.Equal(t, "Sal", p.Description)

	// Dígitos de ancho completo de algunos lectores.
	p, ok = m.Resolve("７８９１００")
	require.True(t, ok)
	assert.Equal(t, int64(1), p.ID)

	_, ok = m.Resolve("000")
	assert.False(t, ok)
}

func TestResolve_SinRedTrasReinicioUsaCopiaLocal(t *testing.T) {
	st := openStore(t)
	first := catalog.NewCacheManager(&fakeAPI{catalog: sampleCatalog()}, st, logger.Nop(), time.Second)
	_, err := first.Refresh(context.Background(), owner)
	require.NoError(t, err)

	offline := catalog.NewCacheManager(&fakeAPI{err: domain.ErrNetwork}, st, logger.Nop(), time.Second)
	_, err = offline.Load(context.Background(), owner)
	require.NoError(t, err)
	_, ok := offline.Resolve("7701234")
	assert.True(t, ok)
}
