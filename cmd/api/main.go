package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facturasv/dte-api/internal/application/transmision"
	"github.com/facturasv/dte-api/internal/domain/dte"
	"github.com/facturasv/dte-api/internal/infrastructure/cifrado"
	infrafirmador "github.com/facturasv/dte-api/internal/infrastructure/firmador"
	inframh "github.com/facturasv/dte-api/internal/infrastructure/mh"
	infrapdf "github.com/facturasv/dte-api/internal/infrastructure/pdf"
	"github.com/facturasv/dte-api/internal/infrastructure/postgres"
	httpRouter "github.com/facturasv/dte-api/internal/interfaces/http"
	"github.com/facturasv/dte-api/pkg/config"
	"github.com/facturasv/dte-api/pkg/logger"
	"github.com/facturasv/dte-api/pkg/metrics"
	"github.com/facturasv/dte-api/pkg/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ambiente_mh", cfg.MH.Ambiente).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	cifrador, err := cifrado.NewCifrador(cfg.Crypto.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar cifrador de credenciales")
	}

	dteRepo := postgres.NewDTERepository(pool)
	emisorRepo := postgres.NewEmisorRepository(pool, cifrador)

	met := metrics.New()

	// Breaker solo sobre el envío al MH: firma y auth fallan rápido por
	// timeout propio.
	breakerMH := resilience.New("mh", resilience.Config{
		UmbralFallos:       cfg.Breaker.UmbralFallos,
		TiempoRecuperacion: cfg.Breaker.TiempoRecuperacion,
		VentanaFallos:      cfg.Breaker.VentanaFallos,
	})
	breakerMH.OnAbrir(func(nombre string) {
		met.BreakerAperturas.WithLabelValues(nombre).Inc()
		log.Warn().Str("dependencia", nombre).Msg("circuit breaker abierto")
	})

	firmador := infrafirmador.NewCliente(cfg.Firmador, log)
	autenticador := inframh.NewAutenticador(cfg.MH, log, met)
	transmisor := inframh.NewTransmisor(cfg.MH, log)

	orquestador := transmision.NewOrquestador(
		dteRepo, emisorRepo,
		firmador, autenticador, transmisor,
		breakerMH, dte.GeneradorUUID{}, log, met,
	)

	cola := transmision.NewColaReintentos(dteRepo, orquestador, cfg.Reintentos, log, met)
	colaCtx, detenerCola := context.WithCancel(ctx)
	cola.Iniciar(colaCtx)
	defer detenerCola()

	pdfGenerator := infrapdf.NewMarotoPDFGenerator()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "DTE API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":       "ok",
			"service":      cfg.App.Name,
			"breaker":      breakerMH.Estado(),
			"tokens_cache": autenticador.EstadisticasCache(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Orquestador: orquestador,
		Cola:        cola,
		DTERepo:     dteRepo,
		PDFGen:      pdfGenerator,
		APIKey:      cfg.HTTP.APIKey,
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
	cola.Detener()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
