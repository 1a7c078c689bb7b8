package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"delivery-impact-service/config"
	"delivery-impact-service/handlers"
	"delivery-impact-service/middleware"
	"delivery-impact-service/services"
	"delivery-impact-service/storage"
	"delivery-impact-service/utils"
	"delivery-impact-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Used when a route pair has no table entry.
const defaultRouteKm = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("invalid configuration: " + err.Error())
	}

	log, err := utils.NewLogger(cfg)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer log.Sync()

	if cfg.ServiceToken == "" {
		log.Fatal("SERVICE_TOKEN environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(cfg, log)

	rdb, err := utils.NewRedis(ctx, cfg)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	hub := services.NewEventHub(log)
	events := &services.Emitter{Publisher: hub, Log: log}
	var memDeduper *services.MemoryDeduper
	if rdb != nil {
		events.Publisher = services.MultiPublisher{hub, &services.RedisPublisher{Client: rdb}}
		events.Deduper = &services.RedisDeduper{Client: rdb, TTL: cfg.DedupeTTL}
	} else {
		memDeduper = services.NewMemoryDeduper(cfg.DedupeTTL)
		events.Deduper = memDeduper
	}

	var leaderboardPub services.LeaderboardPublisher
	if cfg.R2Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg)
		if err != nil {
			log.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		leaderboardPub = utils.NewR2LeaderboardPublisher(r2, cfg.R2Bucket, cfg.LeaderboardKey)
	}

	ledger := services.NewCreditLedger(store, log, events)
	orchestrator := services.NewDeliveryOrchestrator(store, services.StaticDistanceProvider{Default: defaultRouteKm}, events, log)
	gamification := services.NewGamificationEngine(store, log)
	ranking := services.NewRankingService(store, leaderboardPub, log)
	impact := services.NewImpactAggregator(store, gamification, ranking, events, log)
	impact.RankingInline = cfg.RankingInline
	impact.StartWorkers(ctx, cfg.RecomputeWorkers, cfg.RecomputeWorkers*64)
	gateway := services.NewVerificationGateway(store, ledger, impact, events, log)

	sched, err := services.StartScheduler(ctx, services.ScheduleConfig{
		Ranking:        ranking,
		RankingEvery:   cfg.RankingEvery,
		Ledger:         ledger,
		ReconcileEvery: cfg.ReconcileEvery,
		Deduper:        memDeduper,
		PurgeEvery:     cfg.DedupePurgeEvery,
	}, log)
	if err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	if cfg.RegistryURL != "" {
		registry := &workers.RegistryClient{BaseURL: cfg.RegistryURL, Token: cfg.RegistryToken, HTTPClient: utils.HTTPClient}
		workers.NewDonationSyncWorker(store, registry, impact, cfg.DonationSyncEvery, log).Start(ctx)
		go workers.PollRoster(ctx, store, registry, cfg.RosterSyncEvery, log)
	} else {
		log.Warn("REGISTRY_URL not set, donation and roster sync disabled")
	}
	if rdb != nil {
		(&workers.DonationChangeListener{Client: rdb, Channel: cfg.DonationChangeTopic, Impact: impact, Log: log}).Start(ctx)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		Immutable:    true, // ids from params and headers are kept by the stores
		ErrorHandler: errorHandler(log),
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(cfg.AllowedOrigins),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Only Gateway requests allowed, and every route acts for a user.
	api := app.Group("/", middleware.GatewayAuthMiddleware(cfg.ServiceToken, log), middleware.UserContextMiddleware(log))
	handlers.SetupDeliveryRoutes(api, orchestrator, gateway)
	handlers.SetupVolunteerRoutes(api, store, ledger)
	handlers.SetupImpactRoutes(api, impact, gamification, ranking)
	handlers.SetupEventRoutes(api, &services.EventStream{Hub: hub, Log: log})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()
	log.Info("server running",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("redis", rdb != nil),
		zap.Bool("r2", leaderboardPub != nil))

	<-ctx.Done()
	log.Info("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

func openStore(cfg *config.Config, log *zap.Logger) storage.Store {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, state is lost on restart")
		return storage.NewMemory()
	}
	pg, err := storage.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	return pg
}

func allowedOrigins(raw string) string {
	origins := strings.Split(raw, ",")
	for i, o := range origins {
		origins[i] = strings.TrimSpace(o)
	}
	return strings.Join(origins, ",")
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
