package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/internal/api/handlers"
	"github.com/maheshrc27/fanflow/internal/api/middleware"
	"github.com/maheshrc27/fanflow/internal/cache"
	"github.com/maheshrc27/fanflow/internal/jobs"
	"github.com/maheshrc27/fanflow/internal/queue"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/pkg/kv"
	"github.com/maheshrc27/fanflow/pkg/logger"
	"github.com/maheshrc27/fanflow/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	minuteTick    = "0 * * * * *"
	dueItemsTick  = "30 * * * * *"
	reconcileTick = "@every 00h05m00s"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: cfg.App.Name,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	logg.SetGlobal()

	ctx := context.Background()
	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database is unreachable")
	}
	if err := db.Migrate(ctx); err != nil {
		closeDB(db)
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.Redis.URI, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.URI, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()
	store := kv.NewRedisStore(redisClient)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cronMetrics := metrics.NewCronJobMetrics(registry)
	dispatchMetrics := metrics.NewDispatchMetrics(registry)

	itemRepo := repository.NewScheduleItemRepository(db)
	logRepo := repository.NewLogRepository(db)
	fanRepo := repository.NewFanRepository(db)
	ppvRepo := repository.NewPPVRepository(db)

	activity := service.NewActivityLog(logRepo, logg)
	platformService := service.NewPlatformService(cfg.Platform)
	imageStore := service.NewImageStore(cfg.ImageStore, &http.Client{Timeout: cfg.Platform.Timeout})
	fetcher := service.NewMediaFetcher(cfg.Platform.Timeout)
	retryCache := cache.NewRetryCache(
		cache.WithTTL(cfg.Scheduler.RetryCacheTTL),
		cache.WithMaxBatches(cfg.Scheduler.RetryCacheMaxBatches),
	)
	enqueuer := queue.NewEnqueuer(client, "")

	dispatchService := service.NewDispatchService(itemRepo, platformService, fetcher, activity, dispatchMetrics, service.DispatchConfig{
		MediaMode:       cfg.Platform.MediaMode,
		ClaimStaleAfter: cfg.Scheduler.ClaimStaleAfter,
		Lead:            cfg.Scheduler.DispatchLead,
	})
	scheduleService := service.NewScheduleService(db, itemRepo, imageStore, retryCache, activity, enqueuer)
	textGenerator := service.NewTextGenerator(cfg.OpenAI)
	captionService := service.NewCaptionService(textGenerator)
	nameService := service.NewNameService(fanRepo, textGenerator, store, logg)
	broadcastService := service.NewBroadcastService(platformService, cfg.Platform.SendConcurrency)
	ppvService := service.NewPPVService(db, ppvRepo)

	// cron jobs
	ppvJob := jobs.NewPPVSchedulerJob(ppvRepo, fanRepo, platformService, dispatchMetrics, cfg.Platform.SendConcurrency)
	scheduler := jobs.NewScheduler(jobs.SchedulerParams{
		Logger:  logg,
		Metrics: cronMetrics,
		Store:   store,
		LockTTL: cfg.Scheduler.LockTTL,
	})
	mustRegister(scheduler, minuteTick, ppvJob)
	mustRegister(scheduler, dueItemsTick, jobs.NewDueItemsJob(itemRepo, dispatchService, cfg.Scheduler.DispatchLead))
	mustRegister(scheduler, reconcileTick, jobs.NewReconcileJob(dispatchService))
	mustRegister(scheduler, cfg.Scheduler.RosterRefresh, jobs.NewFanRefreshJob(db, fanRepo, platformService, cfg.Platform.MaxRecipients))
	scheduler.Start()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    200 * 1024 * 1024, // 200 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	health := handlers.NewHealthHandler(db)
	app.Get("/healthz", health.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	auth := handlers.NewAuthHandler(cfg.Auth)
	app.Post("/auth/token", auth.IssueToken)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	schedule := handlers.NewScheduleHandler(scheduleService)
	api.Post("/schedule/bulk", schedule.ScheduleBulk)

	items := handlers.NewItemHandler(scheduleService, dispatchService)
	api.Post("/items", items.CreateItem)
	api.Get("/items", items.ListItems)
	api.Post("/items/dispatch", items.Dispatch)
	api.Get("/items/:id", items.GetItem)

	logs := handlers.NewLogHandler(activity)
	api.Get("/logs", logs.ListLogs)

	ppvs := handlers.NewPPVHandler(ppvService, ppvJob)
	api.Post("/ppvs", ppvs.CreatePPV)
	api.Get("/ppvs", ppvs.ListPPVs)
	api.Post("/ppvs/run", ppvs.RunPPVs)

	messages := handlers.NewMessageHandler(broadcastService)
	api.Post("/messages/broadcast", messages.Broadcast)

	captions := handlers.NewCaptionHandler(captionService)
	api.Post("/captions/generate", captions.GenerateCaptions)

	names := handlers.NewNameHandler(nameService)
	api.Post("/fans/names/generate", names.StartGeneration)
	api.Get("/fans/names/status", names.GenerationStatus)

	//queue
	queueW := queue.NewQueue(dispatchService)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})
	if err := server.Start(queueW.Mux()); err != nil {
		log.Fatal().Err(err).Msg("Could not start Asynq server")
	}

	go func() {
		if err := app.Listen(cfg.App.Address()); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Str("addr", cfg.App.Address()).Msg("Server is running")

	gracefulShutdown(app, server, scheduler, db)
}

func mustRegister(s *jobs.Scheduler, expr string, job jobs.Job) {
	if err := s.Register(expr, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
	}
}

func closeDB(db *repository.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, scheduler *jobs.Scheduler, db *repository.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down server...")

	scheduler.Stop()
	server.Shutdown()

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Error().Err(err).Msg("Failed to shut down server")
	}

	closeDB(db)
	log.Info().Msg("Server shutdown complete.")
}
