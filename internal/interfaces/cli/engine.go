package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-conteo/internal/application/catalog"
	"github.com/jhoicas/inventario-conteo/internal/application/syncqueue"
	"github.com/jhoicas/inventario-conteo/internal/application/workingset"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/connectivity"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/metrics"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/remote"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/sqlite"
	"github.com/jhoicas/inventario-conteo/pkg/config"
	"github.com/jhoicas/inventario-conteo/pkg/jwt"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// engine cableado completo del cliente para un comando.
type engine struct {
	cfg     *config.Config
	log     *logger.Logger
	ownerID string
	mode    entity.CountMode
	session *workingset.Session

	store      *sqlite.Store
	client     *remote.Client
	observer   *connectivity.Observer
	prober     *connectivity.Prober
	metrics    *metrics.SyncMetrics
	queue      *syncqueue.Manager
	catalog    *catalog.CacheManager
	reconciler *workingset.Reconciler
}

func newEngine(opts *RootOptions, cmd *cobra.Command) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cargar configuración: %w", err)
	}
	if opts.DBPath != "" {
		cfg.Local.Path = opts.DBPath
	}
	if opts.ServerURL != "" {
		cfg.Sync.ServerURL = opts.ServerURL
	}
	if opts.Token != "" {
		cfg.Sync.Token = opts.Token
	}

	ownerID := cfg.Sync.OwnerID
	if ownerID == "" {
		if cfg.Sync.Token == "" {
			return nil, fmt.Errorf("sin propietario: defina SYNC_TOKEN o SYNC_OWNER_ID")
		}
		if ownerID, err = jwt.OwnerFromToken(cfg.Sync.Token); err != nil {
			return nil, err
		}
	}

	level := cfg.App.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: level, Out: errWriter(cmd)})

	store, err := sqlite.Open(cfg.Local.Path)
	if err != nil {
		return nil, err
	}

	e := &engine{
		cfg:     cfg,
		log:     log,
		ownerID: ownerID,
		mode:    entity.CountMode(opts.Mode),
		store:   store,
	}
	if opts.Session != "" {
		e.session = &workingset.Session{ID: opts.Session, ParticipantID: opts.Participant}
	}

	e.client = remote.NewClient(remote.Config{
		BaseURL: cfg.Sync.ServerURL,
		Token:   cfg.Sync.Token,
		Timeout: cfg.Sync.RequestTimeout,
		Breaker: remote.BreakerConfig{
			FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
			OpenTimeout:      cfg.Breaker.OpenTimeout,
		},
	}, log)
	e.observer = connectivity.NewObserver(false, log)
	e.prober = connectivity.NewProber(e.client, e.observer, cfg.Sync.ProbeInterval)
	e.metrics = metrics.New("conteo")
	e.queue = syncqueue.NewManager(e.client, store, e.observer, e.metrics, log, syncqueue.Config{
		OwnerID:        ownerID,
		FlushInterval:  cfg.Sync.FlushInterval,
		MinSpacing:     cfg.Sync.MinSpacing,
		RequestTimeout: cfg.Sync.RequestTimeout,
	})
	e.catalog = catalog.NewCacheManager(e.client, store, log, cfg.Sync.CatalogTimeout)
	e.reconciler = workingset.NewReconciler(store, e.queue, e.client, e.catalog, e.observer, log, cfg.Sync.RequestTimeout)
	return e, nil
}

// start sondea el servidor una vez y carga catálogo local y conjunto de trabajo.
func (e *engine) start(ctx context.Context) (*workingset.View, error) {
	e.prober.Probe(ctx)
	if _, err := e.catalog.Load(ctx, e.ownerID); err != nil {
		return nil, err
	}
	return e.reconciler.Load(ctx, loadInput(e))
}

func loadInput(e *engine) workingset.LoadInput {
	return workingset.LoadInput{OwnerID: e.ownerID, Mode: e.mode, Session: e.session}
}

// pendingCounts lee la cola del disco: total y eventos sin sesión.
func (e *engine) pendingCounts(ctx context.Context) (total, localOnly int, err error) {
	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, m := range pending {
		if !m.HasSessionContext() {
			localOnly++
		}
	}
	return len(pending), localOnly, nil
}

// reloadToken relee el token (archivo si tokenFile no está vacío; si no SYNC_TOKEN del
// entorno o .env), lo instala en el cliente y reactiva el envío suspendido por un 401.
func (e *engine) reloadToken(tokenFile string) error {
	var token string
	if tokenFile != "" {
		raw, err := os.ReadFile(tokenFile)
		if err != nil {
			return fmt.Errorf("leer token: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	} else {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("cargar configuración: %w", err)
		}
		token = cfg.Sync.Token
	}
	if token == "" {
		return fmt.Errorf("%w: token vacío", domain.ErrUnauthorized)
	}
	if e.cfg.Sync.OwnerID == "" {
		owner, err := jwt.OwnerFromToken(token)
		if err != nil {
			return err
		}
		// La cola es de un propietario: un token ajeno enviaría eventos a su nombre.
		if owner != e.ownerID {
			return fmt.Errorf("%w: el token pertenece a otro propietario", domain.ErrForbidden)
		}
	}

	e.client.SetToken(token)
	e.queue.Resume()
	e.log.Info().Msg("token renovado, envío automático reactivado")
	return nil
}

func (e *engine) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn().Err(err).Msg("cerrar almacenamiento local")
	}
}

func errWriter(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stderr
	}
	return cmd.ErrOrStderr()
}
