package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/inventario-conteo/internal/application/catalog"
)

// NewAgentCommand proceso de fondo: envía la cola, sondea el servidor y expone métricas.
func NewAgentCommand(rootOpts *RootOptions) *cobra.Command {
	var metricsAddr, tokenFile string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Sincronizar en segundo plano hasta SIGINT/SIGTERM",
		Long: `Envía la cola en segundo plano. Si el servidor responde 401 el envío se suspende;
tras renovar el token (archivo --token-file o SYNC_TOKEN en .env) envíe SIGHUP para reanudar.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, rootOpts, metricsAddr, tokenFile)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "dirección del endpoint /metrics (METRICS_ADDR); \"off\" lo desactiva")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "archivo con el token que se relee al recibir SIGHUP")
	return cmd
}

func runAgent(cmd *cobra.Command, opts *RootOptions, metricsAddr, tokenFile string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEngine(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	e.prober.Probe(ctx)
	if res, err := e.catalog.Refresh(ctx, e.ownerID); err != nil {
		if !errors.Is(err, catalog.ErrNoCatalogData) {
			return err
		}
		e.log.Warn().Msg("sin catálogo: los escaneos se registran como desconocidos")
	} else if res.Stale {
		e.log.Warn().Msg("catálogo desactualizado, se usa la copia local")
	}
	if _, err := e.reconciler.Load(ctx, loadInput(e)); err != nil {
		return err
	}

	if metricsAddr == "" {
		metricsAddr = e.cfg.Metrics.Addr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.queue.Run(gctx) })
	g.Go(func() error { return e.prober.Run(gctx) })

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		watchReload(gctx, e, hup, tokenFile)
		return nil
	})

	updates, unsubscribe := e.queue.Subscribe()
	defer unsubscribe()
	g.Go(func() error {
		e.metrics.Watch(gctx, updates)
		return nil
	})

	if metricsAddr != "off" {
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		app.Get("/metrics", adaptor.HTTPHandler(e.metrics.Handler()))
		g.Go(func() error {
			e.log.Info().Str("addr", metricsAddr).Msg("métricas expuestas")
			return app.Listen(metricsAddr)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return app.ShutdownWithContext(shutdownCtx)
		})
	}

	err = g.Wait()
	e.log.Info().Int("pendientes", e.queue.Status().Pending).Msg("agente detenido")
	return err
}

// watchReload renueva el token por cada señal recibida hasta que ctx termina.
func watchReload(ctx context.Context, e *engine, signals <-chan os.Signal, tokenFile string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if err := e.reloadToken(tokenFile); err != nil {
				e.log.Error().Err(err).Msg("no se pudo renovar el token; el envío sigue suspendido")
			}
		}
	}
}
