package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ppe-cascade/config"
	"ppe-cascade/internal/api/handlers"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/cleanup"
	"ppe-cascade/internal/core/processor"
	"ppe-cascade/internal/db"
	"ppe-cascade/internal/db/repository"
	"ppe-cascade/internal/integrations/detectors"
	"ppe-cascade/internal/integrations/mqtt"
	"ppe-cascade/internal/integrations/opencv"
	"ppe-cascade/internal/logger"
	"ppe-cascade/internal/server/sse"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("ppe-server", pflag.ExitOnError)
	flags.String("config", "/config/config.yaml", "path to the configuration file")
	flags.Int("server.port", 3000, "HTTP port")
	flags.String("log.level", "info", "log level")
	flags.Parse(os.Args[1:])

	// Konfiguration laden
	cfg, err := config.LoadFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		log.Warnf("File logging disabled: %v", err)
	}
	defer logCloser.Close()

	table, err := classes.LoadOrDefault(cfg.Classes.File)
	if err != nil {
		log.Fatalf("Failed to load class table: %v", err)
	}
	log.Infof("Class table: %d classes (%s)", table.Len(), table.Fingerprint()[:12])

	// Datenbank
	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewSQLiteRepository(db.DB)

	// Kaskade
	runner, detectorCloser, err := detectors.NewRunner(cfg, table)
	if err != nil {
		log.Fatalf("Failed to initialize detectors: %v", err)
	}
	defer detectorCloser.Close()

	// Ergebnisse gehen an Browser (SSE) und optional an MQTT
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := sse.NewHub()
	go hub.Run(hubCtx)

	mqttClient := mqtt.NewClient(cfg.MQTT)
	publishers := processor.Publishers{hub}
	if cfg.MQTT.Enabled {
		publishers = append(publishers, mqttClient)
	}

	imageProcessor := processor.NewImageProcessor(repo, runner, publishers, cfg.Server.CropDir)
	debugService := opencv.NewDebugService(30)
	imageProcessor.SetAnnotator(debugService)

	pool := processor.NewWorkerPool(imageProcessor, cfg.Cascade.PoolWorkers, cfg.Cascade.QueueSize)
	defer pool.Shutdown()

	mqttClient.RegisterHandler(pool)
	if err := mqttClient.Start(); err != nil {
		log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
	}
	defer mqttClient.Stop()

	// Bereinigung alter Läufe
	cleanupService := cleanup.NewService(repo, cfg.Cleanup.RetentionDays,
		time.Duration(cfg.Cleanup.IntervalHours)*time.Hour, cfg.Server.UploadDir, cfg.Server.CropDir)
	cleanupService.StartBackgroundCleanup()
	defer cleanupService.StopBackgroundCleanup()

	// Router
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.Default())
	router.MaxMultipartMemory = cfg.Server.MaxUpload << 20

	api := router.Group("/api")
	apiHandler := handlers.NewAPIHandler(cfg, repo, pool, table, cleanup.NewFiles(cfg.Server.UploadDir, cfg.Server.CropDir))
	apiHandler.RegisterRoutes(api)
	debugService.RegisterRoutes(api)
	hub.RegisterRoutes(api)

	router.Static("/crops", cfg.Server.CropDir)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// offene Event-Streams beenden, sonst wartet Shutdown auf sie
	stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}

	log.Info("Server stopped.")
}

// requestLogger protokolliert Anfragen über logrus
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
		} else {
			entry.Debug("Request handled")
		}
	}
}
