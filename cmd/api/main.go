package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultcore/internal/config"
	"vaultcore/internal/database"
	"vaultcore/internal/database/migration"
	handlers "vaultcore/internal/http/handler"
	"vaultcore/internal/http/middleware"
	"vaultcore/internal/identity"
	"vaultcore/internal/notify"
	"vaultcore/internal/otel"
	"vaultcore/internal/payment"
	"vaultcore/internal/pipeline"
	"vaultcore/internal/repository/postgres"
	"vaultcore/internal/service"
	"vaultcore/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	// PostgreSQL connection with pooling, instrumented for tracing
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, time.UTC, cfg.Database.Host); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Object storage: S3-compatible when configured, in-memory otherwise so
	// the service runs without external dependencies in development.
	var objStore storage.Storage
	if cfg.MinIO.Endpoint != "" {
		objStore, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			log.Fatalf("failed to initialize object storage: %v", err)
		}
	} else {
		objStore = storage.NewMemory("http://" + cfg.AppHost)
	}

	// Repositories
	tenants := postgres.NewTenantPostgres(db)
	docs := postgres.NewDocumentPostgres(db)
	folders := postgres.NewFolderPostgres(db)
	portals := postgres.NewPortalPostgres(db)
	shares := postgres.NewSharePostgres(db)
	ledger := postgres.NewLedgerPostgres(db)

	// Payment processor. The local processor backs development and mock
	// deployments; a hosted gateway implementation plugs in here.
	var processor payment.Processor
	if cfg.Payment.Mock {
		processor = payment.NewLocalProcessor(cfg.Payment.CheckoutBaseURL)
	} else {
		log.Fatal("no hosted payment processor configured; set PAYMENT_MOCK=true")
	}

	// Identity provider. Tokens are registered statically; production
	// deployments swap in an IdP-backed provider.
	provider := identity.NewStaticProvider()
	if token := os.Getenv("API_TOKEN"); token != "" {
		provider.Register(token, identity.Principal{
			UserID: os.Getenv("API_TOKEN_USER_ID"),
			Email:  os.Getenv("API_TOKEN_EMAIL"),
		})
	}

	// Services
	admission := service.NewAdmissionService(objStore, tenants, docs)
	portalSvc := service.NewPortalService(portals, tenants, docs, admission, notify.NewLogSender(time.UTC))
	shareSvc := service.NewShareService(shares, docs, tenants, objStore)
	ledgerSvc := service.NewLedgerService(ledger, tenants, portals, shares, processor)
	classifier := pipeline.NewClassifier(cfg.Pipeline, pipeline.StubRecognizer{}, tenants, docs, folders, ledger).
		WithTopUp(ledgerSvc)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Global middleware: request IDs, JSON request logs, request metrics
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())

	prom, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	app.Use(prom.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(app, db, handlers.Services{
		Admission:  admission,
		Portals:    portalSvc,
		Shares:     shareSvc,
		Ledger:     ledgerSvc,
		Classifier: classifier,
		Identity:   provider,
	})

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := ":" + cfg.Port
	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
