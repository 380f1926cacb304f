package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tu-usuario/facturacion-cr/internal/application/billing"
	domainhacienda "github.com/tu-usuario/facturacion-cr/internal/domain/hacienda"
	infrahacienda "github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
	"github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda/signer"
	"github.com/tu-usuario/facturacion-cr/internal/infrastructure/postgres"
	httpRouter "github.com/tu-usuario/facturacion-cr/internal/interfaces/http"
	"github.com/tu-usuario/facturacion-cr/pkg/config"
	"github.com/tu-usuario/facturacion-cr/pkg/jwt"
	"github.com/tu-usuario/facturacion-cr/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}
	if err := cfg.Hacienda.Validate(); err != nil {
		panic(err.Error())
	}

	log := logger.New(cfg.App.Env)
	log.Info().
		Str("env", cfg.App.Env).
		Str("hacienda_env", cfg.Hacienda.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	businessRepo := postgres.NewBusinessRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	docRepo := postgres.NewDocumentRepository(pool)
	respRepo := postgres.NewResponseRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	claveSvc := domainhacienda.NewClaveService()
	xmlBuilder := infrahacienda.NewXMLBuilderService()
	validator := infrahacienda.NewValidatorService()
	certSvc := infrahacienda.NewCertService(cfg.Hacienda)
	signerSvc := signer.NewXAdESSignatureService()
	tokenSvc := infrahacienda.NewTokenService(cfg.Hacienda, log)

	// Cliente de recepción — solo se usa si HACIENDA_ENV es "stag" o "prod".
	// En modo "dev" el orquestador genera y firma pero no envía.
	var submitter billing.Submitter
	if cfg.Hacienda.Env != "dev" {
		submitter = infrahacienda.NewRecepcionClient(cfg.Hacienda, log)
	}

	// Orchestrator: ciclo Clave → XML v4.4 → XAdES-BES → Validación → Envío → Update DB
	orchestrator := billing.NewOrchestrator(
		invoiceRepo, businessRepo, docRepo, respRepo,
		claveSvc, xmlBuilder, validator, certSvc, signerSvc,
		tokenSvc, submitter, cfg.Hacienda, log,
	)

	invoiceSvc := billing.NewInvoiceService(invoiceRepo, businessRepo, docRepo, txRunner, orchestrator)
	jwtSvc := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.Issuer)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		InvoiceService: invoiceSvc,
		JWTService:     jwtSvc,
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
