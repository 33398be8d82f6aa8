package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/hoangnm-dev/meeting-scribe/pkg/validator"

	"github.com/hoangnm-dev/meeting-scribe/internal/adapter/handler"
	"github.com/hoangnm-dev/meeting-scribe/internal/adapter/repository"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/cache"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/database"
	httpmw "github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/http/middleware"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/storage"
	meetinguse "github.com/hoangnm-dev/meeting-scribe/internal/usecase/meeting"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/pipeline"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/progress"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/quota"
	pkgai "github.com/hoangnm-dev/meeting-scribe/pkg/ai"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
	"github.com/hoangnm-dev/meeting-scribe/pkg/jwt"
	"github.com/hoangnm-dev/meeting-scribe/pkg/notify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Set-Cookie", "Cookie"},
		AllowCredentials: true,
	}))

	// Initialize dependencies
	log.Println("🔧 Initializing dependencies...")

	// Initialize Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Run migrations only when explicitly enabled in config.
	// Production deployments should manage schema via sql-migrate.
	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			log.Fatalf("AutoMigrate is enabled in production. Disable DB_AUTO_MIGRATE or manage schema with sql-migrate.")
		}
		log.Println("🔄 Running migrations (development only) ...")
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	} else {
		log.Println("🔄 Skipping migrations; use sql-migrate for schema migrations in CI/CD/production")
	}

	// Initialize Redis
	log.Println("📦 Connecting to Redis...")
	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize object storage
	log.Println("📦 Connecting to object storage...")
	minioClient, err := storage.NewMinIOClient(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize repositories
	log.Println("⚙️  Initializing repositories...")
	meetingRepo := repository.NewMeetingRepository(db)
	speakerRepo := repository.NewSpeakerRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	jobRepo := repository.NewPipelineJobRepository(db)
	minutesRepo := repository.NewMinutesRepository(db)

	// Initialize transcription provider
	log.Println("🤖 Initializing transcription provider...")
	llmClient := pkgai.NewLLMClient(&cfg.Provider)
	var provider pkgai.TranscriptionProvider = llmClient
	if cfg.Provider.Kind == "assemblyai" {
		log.Println("🎙️ Using AssemblyAI transcription backend")
		provider = pkgai.NewAssemblyAIProvider(&cfg.Provider, llmClient)
	}

	// Initialize pipeline collaborators
	log.Println("⚙️  Initializing pipeline...")
	cancelFlags := cache.NewCancelFlags(redisClient)
	sessionStore := cache.NewUploadSessionStore(redisClient, time.Hour)
	broadcaster := progress.NewBroadcaster(redisClient, logger)
	ledger := quota.NewLedger(redisClient, &cfg.Quota, logger)
	notifier := notify.NewNotifier(&cfg.Notify, logger)

	orchestrator := pipeline.NewOrchestrator(
		meetingRepo,
		speakerRepo,
		segmentRepo,
		jobRepo,
		minutesRepo,
		provider,
		minioClient,
		cancelFlags,
		broadcaster,
		ledger,
		notifier,
		cfg,
		logger,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if err := orchestrator.StartWorkerPool(workerCtx); err != nil {
		log.Fatalf("Failed to start pipeline workers: %v", err)
	}
	defer orchestrator.StopWorkerPool()

	// Initialize meeting service
	log.Println("📋 Initializing meeting service...")
	meetingService := meetinguse.NewService(
		meetingRepo,
		speakerRepo,
		segmentRepo,
		minutesRepo,
		minioClient,
		sessionStore,
		ledger,
		orchestrator,
		broadcaster,
		cfg,
		logger,
	)

	// Initialize JWT manager and auth middleware
	log.Println("🔑 Initializing JWT manager...")
	jwtManager := jwt.NewManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)
	authMiddleware := httpmw.NewAuthMiddleware(jwtManager)

	// Initialize handlers
	log.Println("🚀 Initializing handlers...")
	meetingHandler := handler.NewMeetingHandler(meetingService, orchestrator, cfg, logger)
	progressHandler := handler.NewProgressHandler(broadcaster, logger)

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	router := handler.NewRouter(cfg, meetingHandler, progressHandler, authMiddleware)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
