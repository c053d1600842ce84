package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"queuesync/config"
	"queuesync/core/queue"
	"queuesync/db"
	"queuesync/logger"
	"queuesync/repository"
	"queuesync/storage"
)

// Start initializes dependencies, wires the queue service and runs the HTTP
// server until interrupted.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutput,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database", logger.ErrorField(err))
	}

	var media queue.AudioURLResolver
	if ok, err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO unavailable, serving tracks without audio URLs", logger.ErrorField(err))
	} else if ok {
		media = storage.NewMediaStore(storage.GetMinioClient(), cfg.MinioBucket)
	}

	queueRepo := repository.NewGormQueueRepository(db.GormDB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	prefRepo := repository.NewMySQLPreferenceRepository(db.DB)

	cache := queue.NewCache(cfg.QueueCacheSize, cfg.QueueCacheTTL)
	hydrator := queue.NewHydrator(trackRepo, media)
	hub := NewQueueHub()

	notifier := queue.NewChangeNotifier(db.RedisClient, cfg)
	notifier.OnChange(cache.Invalidate)
	notifier.OnChange(hub.NotifyQueueChanged)

	queueService := queue.NewService(queueRepo, prefRepo, hydrator, cache, notifier)
	apiHandler := NewAPIHandler(queueService, prefRepo, notifier, hub, cfg)

	notifier.Start()

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(requestLogMiddleware)

	router.HandleFunc("/api/health", apiHandler.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", apiHandler.AuthMiddleware(apiHandler.GetQueueHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", apiHandler.AuthMiddleware(apiHandler.UpdateQueueHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/queue/ws", apiHandler.AuthMiddleware(apiHandler.QueueStreamHandler)).Methods(http.MethodGet)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", logger.ErrorField(err))
	}

	// Stop the change subscription before dropping cached views so a
	// restarted instance never serves entries it believes are still watched.
	notifier.Shutdown()
	queueService.Shutdown()

	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			logger.String("requestId", requestID),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Duration("elapsed", time.Since(start)))
	})
}
