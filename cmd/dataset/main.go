// Command dataset erzeugt YOLO-Trainingsdaten aus PascalVOC-Annotationen.
//
// Im Personenmodus wird jede Person eines Bildes ausgeschnitten und die
// Annotation relativ zum Ausschnitt umgerechnet. Mit --full-frame werden nur
// die Annotationen des ganzen Bildes konvertiert.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ppe-cascade/config"
	"ppe-cascade/internal/annotation"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/dataset"
	"ppe-cascade/internal/db"
	"ppe-cascade/internal/db/repository"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/geometry"
	"ppe-cascade/internal/integrations/detectors"
	"ppe-cascade/internal/logger"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("ppe-dataset", pflag.ExitOnError)
	flags.String("config", "/config/config.yaml", "path to the configuration file")
	images := flags.String("images", "", "directory with source images")
	annotations := flags.String("annotations", "", "directory with PascalVOC files")
	outImages := flags.String("out-images", "dataset/images", "output directory for person crops")
	outLabels := flags.String("out-labels", "dataset/labels", "output directory for YOLO label files")
	fullFrame := flags.Bool("full-frame", false, "convert whole images without cropping persons")
	flags.String("conversion.person_source", "detector", "person regions from \"detector\" or \"ground_truth\"")
	flags.String("conversion.overlap_policy", "touch", "touch, centroid or contained")
	flags.String("conversion.empty_label_policy", "omit", "omit or write")
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

	if *annotations == "" || (!*fullFrame && *images == "") {
		log.Fatal("--annotations is required, --images too unless --full-frame is set")
	}

	table, err := classes.LoadOrDefault(cfg.Classes.File)
	if err != nil {
		log.Fatalf("Failed to load class table: %v", err)
	}

	// Werte wurden in config.Validate bereits geprüft
	overlap, _ := geometry.ParseOverlapPolicy(cfg.Conversion.OverlapPolicy)
	emptyLabels, _ := annotation.ParseEmptyLabelPolicy(cfg.Conversion.EmptyLabelPolicy)
	source, _ := dataset.ParsePersonSource(cfg.Conversion.PersonSource)

	var persons detection.Detector
	if !*fullFrame && source == dataset.SourceDetector {
		d, closer, err := detectors.NewPerson(cfg.Detection.Person)
		if err != nil {
			log.Fatalf("Failed to initialize person detector: %v", err)
		}
		defer closer.Close()
		persons = d
	}

	builder, err := dataset.NewBuilder(table, persons, dataset.Options{
		PersonSource: source,
		PersonClass:  cfg.Classes.PersonClass,
		Overlap:      overlap,
		EmptyLabels:  emptyLabels,
		Extensions:   cfg.Conversion.Extensions,
	})
	if err != nil {
		log.Fatalf("Failed to create dataset builder: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var report *dataset.Report
	if *fullFrame {
		report, err = builder.ConvertDirectory(*annotations, *outLabels)
	} else {
		report, err = builder.Run(ctx, *images, *annotations, *outImages, *outLabels)
	}
	if err != nil {
		log.Errorf("Dataset run aborted: %v", err)
	}
	if report == nil {
		os.Exit(1)
	}

	log.WithFields(log.Fields{
		"run":                  report.RunID,
		"images":               report.Images,
		"persons":              report.Persons,
		"labels":               report.LabelFiles,
		"skipped_images":       report.SkippedImages,
		"skipped_unknown":      report.SkippedUnknown,
		"discarded_outside":    report.DiscardedOutside,
		"discarded_degenerate": report.DiscardedDegenerate,
	}).Info("Dataset run finished")

	// Lauf protokollieren, ein Fehler hier betrifft die erzeugten Dateien nicht
	if dbErr := db.Initialize(cfg); dbErr != nil {
		log.Warnf("Conversion run not recorded: %v", dbErr)
	} else {
		run, mErr := report.Model()
		if mErr == nil {
			mErr = repository.NewSQLiteRepository(db.DB).SaveConversionRun(run)
		}
		if mErr != nil {
			log.Warnf("Conversion run not recorded: %v", mErr)
		}
	}

	if err != nil {
		os.Exit(1)
	}
}
