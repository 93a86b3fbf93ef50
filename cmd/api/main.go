package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"contentgate/docs"
	"contentgate/internal/config"
	"contentgate/internal/database"
	"contentgate/internal/database/migration"
	"contentgate/internal/events"
	handlers "contentgate/internal/http/handler"
	"contentgate/internal/http/middleware"
	"contentgate/internal/logger"
	"contentgate/internal/otel"
	"contentgate/internal/render"
	"contentgate/internal/render/fitz"
	"contentgate/internal/repository/postgres"
	"contentgate/internal/revocation"
	"contentgate/internal/service"
	"contentgate/internal/storage"
	"contentgate/internal/telemetry"
	"contentgate/internal/token"
)

// @title Content Gate API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	appLog := logger.Stdout(cfg.Location())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, cfg.Tracing, appLog.With("otel"))
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database, appLog.With("database"))
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := migration.EnsureMigrated(ctx, db, appLog, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	tokens, err := token.NewManager(cfg.Token.Secret, cfg.Token.Issuer)
	if err != nil {
		log.Fatalf("failed to initialize token signer: %v", err)
	}

	// Grant windows and subject-level revocations share one bound.
	maxGrant := cfg.Token.MaxExpiry()

	// Revocation is optional; without Redis every check fails open.
	var revoked revocation.List = revocation.Disabled{}
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = revocation.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		revoked = revocation.NewRedisList(redisClient, maxGrant)
	}

	publisher, err := events.NewPublisher(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange, appLog.With("events"))
	if err != nil {
		log.Fatalf("failed to initialize event publisher: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatalf("failed to register http metrics: %v", err)
	}

	// Initialize repositories and services
	contentRepo := postgres.NewContentPostgres(db)
	grantRepo := postgres.NewGrantPostgres(db)
	viewRepo := postgres.NewViewEventPostgres(db)

	recorder := telemetry.NewRecorder(viewRepo, publisher, appLog.With("telemetry"), metrics, cfg.TelemetryQueueSize)

	accessSvc := service.NewAccessService(service.AccessDeps{
		Units:         contentRepo,
		Entitlements:  contentRepo,
		Grants:        grantRepo,
		Views:         viewRepo,
		Signer:        tokens,
		Recorder:      recorder,
		Revocations:   revoked,
		Metrics:       metrics,
		Log:           appLog.With("access"),
		DefaultExpiry: time.Duration(cfg.Token.DefaultExpiryMinutes) * time.Minute,
		MaxExpiry:     maxGrant,
	})
	contentSvc := service.NewContentService(tokens, revoked, objStore, recorder, metrics, appLog.With("content"))

	viewer := render.NewManager(
		render.StorageSource{Store: objStore},
		fitz.New(cfg.Viewer.BaseDPI),
		render.NewCompositor(cfg.Watermark),
		render.Options{
			Limits: render.Limits{
				MinZoom:       cfg.Viewer.MinZoom,
				MaxZoom:       cfg.Viewer.MaxZoom,
				ZoomStep:      cfg.Viewer.ZoomStep,
				RenderTimeout: time.Duration(cfg.Viewer.RenderTimeoutSec) * time.Second,
			},
			MaxSessions: cfg.Viewer.MaxSessions,
			IdleTimeout: time.Duration(cfg.Viewer.IdleTimeoutSec) * time.Second,
			ObserveRender: func(d time.Duration) {
				metrics.RenderDuration.Observe(d.Seconds())
			},
			// Sessions the client never closed still produce a view event.
			OnClose: handlers.SessionFinalizer(recorder, time.Now),
		},
		appLog.With("viewer"),
	)
	// The reaper has its own context so shutdown can stop it before the recorder drains.
	viewerCtx, cancelViewer := context.WithCancel(context.Background())
	viewerDone := make(chan struct{})
	go func() {
		defer close(viewerDone)
		viewer.Run(viewerCtx, time.Duration(cfg.Viewer.ReapIntervalSec)*time.Second)
	}()
	stopViewer := func() {
		cancelViewer()
		<-viewerDone
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    1 << 20,
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger(cfg.Location()))
	app.Use(httpMetrics.Handler())
	app.Use(middleware.Subject())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:          db,
		Access:      accessSvc,
		Content:     contentSvc,
		Sessions:    viewer,
		Recorder:    recorder,
		Metrics:     metrics,
		Watermark:   cfg.Watermark,
		InternalKey: cfg.InternalAPIKey,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			appLog.Error("server_failed", logger.Fields{"error": err.Error()})
		}
	case <-ctx.Done():
		appLog.Info("shutting_down", logger.Fields{"addr": addr})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	shutdown(shutdownCtx, appLog, app, stopViewer, recorder, publisher, redisClient, db, shutdownTracing)
}

// shutdown stops accepting requests first, then closes viewer sessions so their views are queued,
// then drains the recorder, then closes connections.
func shutdown(ctx context.Context, appLog *logger.Logger, app *fiber.App, stopViewer func(), recorder *telemetry.Recorder,
	publisher events.Publisher, redisClient *redis.Client, db *sql.DB, shutdownTracing func(context.Context) error) {
	var errs []error
	if err := app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, err)
	}
	stopViewer()
	if err := recorder.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := shutdownTracing(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		appLog.Error("shutdown_incomplete", logger.Fields{"error": err.Error()})
		return
	}
	appLog.Info("shutdown_complete", nil)
}
