package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/application/ports"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// ErrNoCatalogData no hubo descarga ni copia local: no hay contra qué contar.
var ErrNoCatalogData = fmt.Errorf("%w: sin conexión y sin copia local", domain.ErrNoCatalogData)

const defaultFetchTimeout = 8 * time.Second

// Result catálogo devuelto por Refresh. Stale indica que viene de la copia local
// porque la descarga falló; la UI muestra un aviso de datos desactualizados.
type Result struct {
	Snapshot *entity.CatalogSnapshot
	Stale    bool
}

// CacheManager mantiene una copia local del catálogo utilizable sin red.
type CacheManager struct {
	api     ports.CountingAPI
	store   repository.LocalStore
	log     *logger.Logger
	timeout time.Duration

	mu      sync.RWMutex
	current *entity.CatalogSnapshot
}

// NewCacheManager construye el gestor. timeout acota la descarga; 0 usa el valor por defecto.
func NewCacheManager(api ports.CountingAPI, store repository.LocalStore, log *logger.Logger, timeout time.Duration) *CacheManager {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &CacheManager{
		api:     api,
		store:   store,
		log:     log.Component("catalog"),
		timeout: timeout,
	}
}

// Refresh intenta descargar el catálogo completo y reemplazar la copia local.
// Si la red falla devuelve la copia local marcada como Stale; sin copia devuelve ErrNoCatalogData.
// Un fallo de autenticación se devuelve tal cual para que el usuario vuelva a iniciar sesión.
func (m *CacheManager) Refresh(ctx context.Context, ownerID string) (*Result, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: propietario requerido", domain.ErrInvalidInput)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	resp, err := m.api.FetchCatalog(fetchCtx)
	cancel()
	if err == nil {
		snap, convErr := toSnapshot(ownerID, resp)
		if convErr != nil {
			// Catálogo inconsistente desde el servidor: se trata como descarga fallida.
			m.log.Warn().Err(convErr).Msg("catálogo recibido inválido, se usa la copia local")
			return m.fromCache(ctx, ownerID)
		}
		if err := m.store.ReplaceCatalog(ctx, ownerID, snap.Products, snap.Links); err != nil {
			return nil, err
		}
		snap.FetchedAt = time.Now().UTC()
		m.setCurrent(snap)
		m.log.Info().Int("productos", len(snap.Products)).Int("codigos_barras", len(snap.Links)).Msg("catálogo actualizado")
		return &Result{Snapshot: snap}, nil
	}

	if errors.Is(err, domain.ErrUnauthorized) {
		return nil, err
	}
	m.log.Warn().Err(err).Msg("descarga de catálogo fallida, se usa la copia local")
	return m.fromCache(ctx, ownerID)
}

// ImportCompleted la importación masiva terminó en el servidor: se vuelve a descargar el catálogo.
func (m *CacheManager) ImportCompleted(ctx context.Context, ownerID string) (*Result, error) {
	return m.Refresh(ctx, ownerID)
}

// Load carga la copia local en memoria sin intentar la red (arranque sin conexión).
func (m *CacheManager) Load(ctx context.Context, ownerID string) (*entity.CatalogSnapshot, error) {
	snap, err := m.store.ReadCatalog(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	m.setCurrent(snap)
	return snap, nil
}

// Resolve busca un código escaneado en el último catálogo conocido.
func (m *CacheManager) Resolve(code string) (*entity.CatalogProduct, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.current.Lookup(code)
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Current último catálogo conocido (puede ser nil si nunca se cargó).
func (m *CacheManager) Current() *entity.CatalogSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *CacheManager) fromCache(ctx context.Context, ownerID string) (*Result, error) {
	snap, err := m.store.ReadCatalog(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	// Sin fila de fecha nunca hubo descarga; un catálogo descargado vacío sí es válido.
	if snap.FetchedAt.IsZero() {
		return nil, ErrNoCatalogData
	}
	m.setCurrent(snap)
	return &Result{Snapshot: snap, Stale: true}, nil
}

func (m *CacheManager) setCurrent(snap *entity.CatalogSnapshot) {
	m.mu.Lock()
	m.current = snap
	m.mu.Unlock()
}

func toSnapshot(ownerID string, resp *dto.CatalogResponse) (*entity.CatalogSnapshot, error) {
	if resp == nil {
		return nil, errors.New("respuesta vacía")
	}
	snap := &entity.CatalogSnapshot{
		Products: make([]entity.CatalogProduct, 0, len(resp.Products)),
		Links:    make([]entity.BarcodeLink, 0, len(resp.BarcodeLinks)),
	}
	for _, p := range resp.Products {
		regType := p.RegistrationType
		if regType == "" {
			regType = entity.RegistrationFixed
		}
		snap.Products = append(snap.Products, entity.CatalogProduct{
			ID:               p.ID,
			OwnerID:          ownerID,
			Code:             entity.NormalizeCode(p.Code),
			Description:      p.Description,
			Balance:          p.Balance,
			Price:            p.Price,
			Category:         p.Category,
			Brand:            p.Brand,
			RegistrationType: regType,
		})
	}
	for _, l := range resp.BarcodeLinks {
		snap.Links = append(snap.Links, entity.BarcodeLink{
			Barcode:   entity.NormalizeCode(l.Barcode),
			ProductID: l.ProductID,
		})
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
