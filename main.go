package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"hama/estate/internal/api"
	"hama/estate/internal/cache"
	"hama/estate/internal/config"
	"hama/estate/internal/db"
	"hama/estate/internal/email"
	"hama/estate/internal/logging"
	"hama/estate/internal/services"
	"hama/estate/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	runAPI := cfg.RunMode == "api" || cfg.RunMode == "all"
	runBg := cfg.RunMode == "bg" || cfg.RunMode == "all"
	if !runAPI && !runBg {
		log.Fatal().Str("mode", cfg.RunMode).Msg("invalid run mode")
	}

	// Initialize document store
	var store db.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Msg("using in-memory store, data is lost on exit")
		store = db.NewMemoryStore()
	default:
		mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer func() {
			if err := db.DisconnectDB(mongoClient); err != nil {
				log.Error().Err(err).Msg("error disconnecting from MongoDB")
			}
		}()
		var opts []db.MongoStoreOption
		if cfg.MongoHintOrderedQueries {
			opts = append(opts, db.WithOrderedQueryHints())
		}
		store = db.NewMongoStore(mongoDb, opts...)
	}

	// Initialize Redis. Without it there is no shared cache, no settings
	// propagation and inquiry syncs run in-process.
	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient, err = cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer func() {
			if err := cache.DisconnectRedis(redisClient); err != nil {
				log.Error().Err(err).Msg("error disconnecting from Redis")
			}
		}()
	} else if runBg {
		log.Fatal().Msg("background worker requires REDIS_ADDR")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Initialize Services
	settings := services.NewSettingsService(rootCtx, store, cfg, redisClient)
	var inquiryCache services.InquiryCache
	if redisClient != nil {
		inquiryCache = cache.NewInquiryCache(redisClient, cfg.InquiryCacheTTL)
	}

	// Email sender: captured in Redis for end-to-end tests, otherwise SMTP
	// (or logged when no SMTP host is set). LOG_EMAILS adds a file copy.
	var mailbox api.Mailbox
	compositeSender := email.NewCompositeEmailSender()
	if cfg.MockEmail && redisClient != nil {
		redisSender := email.NewRedisSender(redisClient, nil)
		compositeSender.AddSender(redisSender)
		mailbox = redisSender
		log.Info().Msg("emails are captured in Redis")
	} else {
		compositeSender.AddSender(email.NewSMTPSender(cfg))
	}
	if cfg.EmailLogPath != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailLogPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize file email sender")
		}
		compositeSender.AddSender(fileSender)
		log.Info().Str("path", cfg.EmailLogPath).Msg("emails are also written to file")
	}

	runner := tasks.NewRunner(cfg.BestEffortTimeout)
	var taskClient *asynq.Client
	var notifier services.InquiryNotifier
	if redisClient != nil {
		taskClient = tasks.NewClient(redisClient)
		defer taskClient.Close()
		notifier = tasks.NewAsynqInquiryNotifier(taskClient)
	} else {
		notifier = tasks.NewLocalInquiryNotifier(runner, compositeSender, cfg)
	}

	inquiries := services.NewInquiryService(store, cfg, settings, inquiryCache, services.WithNotifier(notifier))
	presence := services.NewPresenceService(store, cfg, settings)

	var syncer services.InquirySyncer
	if taskClient != nil {
		syncer = tasks.NewAsynqInquirySyncer(taskClient)
	} else {
		syncer = tasks.NewLocalInquirySyncer(runner, inquiries)
	}
	conversations := services.NewConversationService(store, syncer)

	svc := api.Services{
		Settings:      settings,
		Inquiries:     inquiries,
		Presence:      presence,
		Conversations: conversations,
		Notifier:      notifier,
		Mailbox:       mailbox,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := settings.SubscribeToChanges(rootCtx); err != nil {
			log.Error().Err(err).Msg("settings subscription stopped")
		}
	}()

	shutdownChan := make(chan struct{}, 1)

	// Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(svc, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("port", cfg.ServiceApiPort).Msg("service API listening")
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("service API ListenAndServe error")
		}
	}()

	log.Info().Str("mode", cfg.RunMode).Str("store", cfg.StoreDriver).Msg("starting application")

	var mainApiSrv *http.Server
	if runAPI {
		mainApiSrv = &http.Server{
			Addr:              ":" + cfg.ApiPort,
			Handler:           api.SetupRouter(cfg, svc),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("port", cfg.ApiPort).Msg("main API listening")
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("main API ListenAndServe error")
			}
		}()
	}

	var backgroundTaskSrv *asynq.Server
	if runBg {
		srv, mux := tasks.SetupServer(redisClient, tasks.NewTaskProcessor(inquiries, compositeSender, cfg))
		if err := srv.Start(mux); err != nil {
			log.Fatal().Err(err).Msg("could not start background task server")
		}
		backgroundTaskSrv = srv
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case <-shutdownChan:
		log.Info().Msg("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("service API shutdown error")
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Error().Err(err).Msg("main API shutdown error")
		}
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	cancelRoot()
	runner.Wait()
	wg.Wait()

	log.Info().Msg("server gracefully stopped")
}
