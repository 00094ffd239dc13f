package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/CreditGate/app/repository"
	apiv1 "github.com/ManuelReschke/CreditGate/internal/api/v1"
	"github.com/ManuelReschke/CreditGate/internal/pkg/archive"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/cache"
	"github.com/ManuelReschke/CreditGate/internal/pkg/database"
	"github.com/ManuelReschke/CreditGate/internal/pkg/dispatch"
	"github.com/ManuelReschke/CreditGate/internal/pkg/env"
	"github.com/ManuelReschke/CreditGate/internal/pkg/intake"
	"github.com/ManuelReschke/CreditGate/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CreditGate/internal/pkg/openapi"
	"github.com/ManuelReschke/CreditGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/CreditGate/internal/pkg/router"
	"github.com/ManuelReschke/CreditGate/internal/pkg/statistics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup := NewApplication(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("[Server] Shutting down...")
		err := app.ShutdownWithTimeout(15 * time.Second)
		cleanup()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Info("[Server] Stopped")
}

// NewApplication wires storage, services and background workers. The
// returned cleanup stops the workers after the HTTP server has drained.
func NewApplication(ctx context.Context) (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	billingService := billing.NewServiceFromDB(db)

	intakeService := intake.NewService(
		repos.IncomingTrigger,
		repos.TriggerEvent,
		billingService,
		counter.AddIncomingUsage,
		env.GetEnvInt("INTAKE_FAILURE_THRESHOLD", intake.DefaultFailureThreshold),
	)

	// dispatch workers
	manager := dispatch.GetManager()
	manager.Configure(dispatch.NewExecutor(
		repos.OutgoingTrigger,
		billingService,
		dispatch.NewHTTPDeliverer(env.GetEnvDuration("DISPATCH_TIMEOUT", 10*time.Second)),
		dispatch.Backoff{
			Base: env.GetEnvDuration("DISPATCH_BACKOFF_BASE", time.Second),
			Max:  env.GetEnvDuration("DISPATCH_BACKOFF_MAX", 5*time.Minute),
		},
	))
	manager.Start()

	scheduler := startArchive(ctx, billingService.Repository())

	server := apiv1.NewAPIServer(billingService, repos, intakeService, manager.GetQueue(), apiv1.Config{
		PublicBaseURL:    env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000"),
		TokenSecret:      env.GetEnv("AUTH_TOKEN_SECRET", ""),
		TokenTTL:         env.GetEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		BroadcastWorkers: env.GetEnvInt("BROADCAST_WORKERS", 4),
	})
	server.SetStatistics(statistics.NewService(
		statistics.NewSource(db, billingService.Repository()),
		cache.GetClient(),
	), manager.GetQueue())

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "CreditGate",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	docPath, err := openapi.Locate()
	if err != nil {
		log.Warnf("[Server] API docs disabled: %v", err)
		docPath = ""
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Server:          server,
		Subscriptions:   repos.Subscription,
		AdminToken:      env.GetEnv("ADMIN_TOKEN", ""),
		HookStorage:     ratelimit.NewRedisStorage(),
		OpenAPIPath:     docPath,
		MonitorUser:     env.GetEnv("MONITOR_USER", "admin"),
		MonitorPassword: env.GetEnv("MONITOR_PASSWORD", ""),
	})

	if docPath != "" {
		checkDocumentation(ctx, app, docPath)
	}

	return app, func() {
		manager.Stop()
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
	}
}

// startArchive schedules the daily ledger export when it is enabled.
func startArchive(ctx context.Context, ledger archive.LedgerSource) *archive.Scheduler {
	cfg, err := archive.LoadConfig()
	if err != nil {
		log.Errorf("[Archive] Invalid configuration, archive disabled: %v", err)
		return nil
	}
	if !cfg.Enabled {
		return nil
	}

	store, err := archive.NewS3Store(ctx, cfg)
	if err != nil {
		log.Errorf("[Archive] Could not reach bucket %s, archive disabled: %v", cfg.BucketName, err)
		return nil
	}
	scheduler := archive.NewScheduler(archive.NewExporter(ledger, store, cfg), cfg.Schedule)
	if err := scheduler.Start(); err != nil {
		return nil
	}
	return scheduler
}

func checkDocumentation(ctx context.Context, app *fiber.App, path string) {
	doc, err := openapi.Load(ctx, path)
	if err != nil {
		log.Warnf("[Server] %v", err)
		return
	}
	for _, route := range openapi.UndocumentedRoutes(doc, app.GetRoutes(true), "/api/v1", "/hooks") {
		log.Warnf("[Server] Route %s is missing from %s", route, path)
	}
}
