package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/inventario-conteo/internal/application/counting"
	"github.com/jhoicas/inventario-conteo/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/inventario-conteo/internal/interfaces/http"
	"github.com/jhoicas/inventario-conteo/pkg/config"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	catalogRepo := postgres.NewCatalogRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	movementRepo := postgres.NewCountMovementRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	catalogUC := counting.NewCatalogUseCase(catalogRepo)
	sessionUC := counting.NewSessionUseCase(txRunner, sessionRepo, movementRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
		// Lotes de hasta 5000 movimientos.
		BodyLimit: 8 * 1024 * 1024,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Conteo de inventario API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Catalog:     catalogUC,
		Sessions:    sessionUC,
		JWTSecret:   cfg.JWT.Secret,
		ServiceName: cfg.App.Name,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
