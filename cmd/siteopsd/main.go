package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/alert"
	"site-attendance-backend/internal/api"
	"site-attendance-backend/internal/attendance"
	"site-attendance-backend/internal/db"
	"site-attendance-backend/internal/scan"
	"site-attendance-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "siteopsd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		logger.Fatalf("invalid site timezone %q: %v", cfg.Site.Timezone, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Out-of-area alerts run only when VAPID keys are configured.
	var dispatcher attendance.AlertDispatcher
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		pool := alert.NewWorkerPool(cfg.WorkerPool.Size, appStore, &webpushOptions)
		pool.Start(ctx)
		dispatcher = pool
		logger.Printf("out-of-area alert pool started with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured; out-of-area alerts disabled")
	}

	svc := attendance.NewService(appStore, loc, dispatcher)

	// Still-image decoding for kiosk uploads. The external decoder is used
	// when configured, with the text detector as fallback.
	var detectors []scan.Detector
	if d := scan.NewCommandDetector(cfg.Scanner.DecoderCommand, cfg.Scanner.DecoderArgs,
		time.Duration(cfg.Scanner.DecoderTimeoutSecs)*time.Second); d != nil {
		detectors = append(detectors, d)
	}
	detectors = append(detectors, scan.TextDetector{})
	decoder := scan.NewPipeline(nil, detectors, cfg.Scanner.SampleInterval)

	// Initialize router
	router := api.NewRouter(cfg, appStore, svc, decoder, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
