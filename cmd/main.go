package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/config"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/database/minio"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/database/postgres"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/database/redis"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/drive"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/event"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/handlers"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/repository"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/services"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging(logDir string) (*os.File, error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic: %v\n", r)
		}
	}()

	fmt.Println("Log directory:", logDir)
	err := os.MkdirAll(logDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	cfg := config.New()

	logFile, err := setupLogging(cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		log.Printf("error connect to database: %s", err)
		go postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}

	areaRepo := repository.NewAreaRepository(db)
	surveyorRepo := repository.NewSurveyorRepository(db)
	fieldRepo := repository.NewFieldRepository(db)
	recordRepo := repository.NewSurveyRecordRepository(db)

	// Optional backends degrade one by one: no Redis means uncoordinated
	// workbook writes, no MinIO means photo submissions are rejected, no
	// Drive means records accumulate as pending until it comes back.
	var locker services.DestinationLocker
	if cfg.RedisCfg.Host != "" {
		redisClient, err := redis.NewRedisClient(cfg.RedisCfg.Host, cfg.RedisCfg.Port, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
		if err != nil {
			log.Printf("Failed to connect to Redis, sync runs uncoordinated: %v", err)
		} else {
			defer redisClient.Close()
			locker = redisClient
		}
	}

	var photoStorage services.PhotoStorage
	if cfg.MinioCfg.MinioURL != "" {
		minioClient, err := minio.NewMinioClient(cfg.MinioCfg)
		if err != nil {
			log.Printf("Failed to connect to MinIO, photo submissions will be rejected: %v", err)
		} else {
			photoStorage = minioClient
		}
	}

	var archive services.SpreadsheetArchive
	if cfg.DriveCfg.CredentialsFile != "" {
		driveClient, err := drive.NewDriveClient(context.Background(), cfg.DriveCfg)
		if err != nil {
			log.Fatalf("Failed to initialize Drive archive: %v", err)
		}
		archive = driveClient
	} else {
		log.Printf("DRIVE_CREDENTIALS_FILE not set, spreadsheet sync disabled")
	}

	var events services.SyncEventPublisher
	if cfg.RabbitMQCfg.Host != "" {
		rabbitConn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
		if err != nil {
			log.Printf("Failed to connect to RabbitMQ, sync events disabled: %v", err)
		} else {
			defer rabbitConn.Close()
			events = event.NewSyncPublisher(rabbitConn)
		}
	}

	locationService := services.NewLocationService(areaRepo, cfg.ResolverCfg.CacheSize)
	weatherService := services.NewWeatherService(cfg.WeatherCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workerWg sync.WaitGroup

	var syncQueue *worker.SyncQueue
	var enqueuer services.SyncEnqueuer
	var scheduler *worker.SyncScheduler
	if archive != nil {
		syncService := services.NewSyncService(recordRepo, photoStorage, archive, locker, events, cfg.SyncCfg)

		syncQueue = worker.NewSyncQueue(syncService, cfg.SyncCfg.Concurrency, cfg.SyncCfg.QueueSize)
		enqueuer = syncQueue
		workerWg.Add(1)
		go syncQueue.Start(ctx, &workerWg)

		scheduler = worker.NewSyncScheduler(syncService, cfg.SyncCfg.Interval)
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			scheduler.Run(ctx)
		}()
	}

	submissionService := services.NewSubmissionService(
		locationService,
		surveyorRepo,
		fieldRepo,
		recordRepo,
		photoStorage,
		weatherService,
		enqueuer,
	)

	app := fiber.New()
	app.Get("/checkhealth", func(c fiber.Ctx) error {
		if !postgres.DBStatus {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Paddy ingestion is degraded: database unreachable")
		}
		return c.Status(fiber.StatusOK).SendString("Paddy ingestion is healthy")
	})

	surveyHandler := handlers.NewSurveyHandler(submissionService, locationService)
	surveyHandler.Register(app)

	if scheduler != nil {
		syncHandler := handlers.NewSyncHandler(scheduler, syncQueue, recordRepo)
		syncHandler.Register(app)
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := app.Listen(fmt.Sprintf("0.0.0.0:%s", cfg.Port)); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutting down server...")
	cancel()
	workerWg.Wait()
	log.Println("Background workers stopped.")
}
