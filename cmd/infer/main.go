// Command infer schickt alle Bilder eines Verzeichnisses durch die Kaskade
// und speichert die Ergebnisse in der Datenbank.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"ppe-cascade/config"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/core/processor"
	"ppe-cascade/internal/db"
	"ppe-cascade/internal/db/repository"
	"ppe-cascade/internal/integrations/detectors"
	"ppe-cascade/internal/logger"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("ppe-infer", pflag.ExitOnError)
	flags.String("config", "/config/config.yaml", "path to the configuration file")
	dir := flags.String("dir", "", "directory with images")
	force := flags.Bool("force", false, "process images already in the database again")
	flags.Bool("cascade.save_crops", false, "store person crops")
	asJSON := flags.Bool("json", false, "print the batch report as JSON")
	flags.Parse(os.Args[1:])

	cfg, err := config.LoadFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		log.Warnf("File logging disabled: %v", err)
	}
	defer logCloser.Close()

	if *dir == "" {
		log.Fatal("--dir is required")
	}

	table, err := classes.LoadOrDefault(cfg.Classes.File)
	if err != nil {
		log.Fatalf("Failed to load class table: %v", err)
	}
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewSQLiteRepository(db.DB)

	runner, detectorCloser, err := detectors.NewRunner(cfg, table)
	if err != nil {
		log.Fatalf("Failed to initialize detectors: %v", err)
	}
	defer detectorCloser.Close()

	pool := processor.NewWorkerPool(
		processor.NewImageProcessor(repo, runner, nil, cfg.Server.CropDir),
		cfg.Cascade.PoolWorkers, cfg.Cascade.QueueSize)
	defer pool.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := pool.ProcessDirectory(ctx, *dir, "cli", cfg.Conversion.Extensions, processor.ProcessingOptions{
		SaveCrops: cfg.Cascade.SaveCrops,
		Force:     *force,
	})
	if err != nil {
		log.Errorf("Batch inference failed: %v", err)
		return
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		return
	}

	for image, msg := range report.Failed {
		log.WithField("image", image).Warnf("Failed: %s", msg)
	}
	log.WithFields(log.Fields{
		"run":        report.RunID,
		"images":     report.Images,
		"processed":  report.Processed,
		"duplicates": report.Duplicates,
		"no_person":  report.NoPerson,
		"persons":    report.Persons,
		"ppe_items":  report.PPEItems,
		"duration":   report.Duration,
	}).Info("Batch inference finished")
}
