package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ppe-cascade/internal/annotation"
	"ppe-cascade/internal/dataset"
	"ppe-cascade/internal/geometry"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Detektor-Backends
const (
	BackendDNN  = "dnn"
	BackendHOG  = "hog"
	BackendHTTP = "http"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Classes    ClassesConfig    `mapstructure:"classes"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Cascade    CascadeConfig    `mapstructure:"cascade"`
	Conversion ConversionConfig `mapstructure:"conversion"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	DataDir   string `mapstructure:"data_dir"`
	UploadDir string `mapstructure:"upload_dir"` // hochgeladene Bilder der API
	CropDir   string `mapstructure:"crop_dir"`   // gespeicherte Personen-Crops
	MaxUpload int64  `mapstructure:"max_upload_mb"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" oder "json"
	File   string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // für SQLite
}

// ClassesConfig beschreibt die PPE-Klassentabelle
type ClassesConfig struct {
	File        string `mapstructure:"file"`         // leer = eingebaute Standardtabelle
	PersonClass string `mapstructure:"person_class"` // Objektname der Person in VOC-Dateien
}

// DetectorConfig konfiguriert ein Detektor-Backend
type DetectorConfig struct {
	Backend             string        `mapstructure:"backend"`              // "dnn", "hog" oder "http"
	ModelPath           string        `mapstructure:"model_path"`           // ONNX-Modell für "dnn"
	InputSize           int           `mapstructure:"input_size"`           // quadratische Netzgröße
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"` // Mindestkonfidenz
	NMSThreshold        float64       `mapstructure:"nms_threshold"`        // IoU-Schwelle der Non-Maximum-Suppression
	ClassID             int           `mapstructure:"class_id"`             // Personenklasse im Modell, nur Stufe 1
	UseGPU              bool          `mapstructure:"use_gpu"`              // CUDA-Backend für gocv
	URL                 string        `mapstructure:"url"`                  // Inferenzserver für "http"
	Timeout             time.Duration `mapstructure:"timeout"`              // pro Aufruf, 0 = kein Limit
	ScaleFactor         float64       `mapstructure:"scale_factor"`         // HOG Multi-Scale
}

// DetectionConfig fasst beide Stufen der Kaskade zusammen
type DetectionConfig struct {
	Person DetectorConfig `mapstructure:"person"`
	PPE    DetectorConfig `mapstructure:"ppe"`
}

// CascadeConfig steuert die Ausführung
type CascadeConfig struct {
	Workers     int  `mapstructure:"workers"`      // parallele PPE-Aufrufe pro Bild
	PoolWorkers int  `mapstructure:"pool_workers"` // parallel verarbeitete Bilder
	QueueSize   int  `mapstructure:"queue_size"`
	SaveCrops   bool `mapstructure:"save_crops"`
}

// ConversionConfig steuert die Annotationskonvertierung
type ConversionConfig struct {
	OverlapPolicy    string   `mapstructure:"overlap_policy"`     // touch, centroid, contained
	EmptyLabelPolicy string   `mapstructure:"empty_label_policy"` // omit, write
	PersonSource     string   `mapstructure:"person_source"`      // detector, ground_truth
	Extensions       []string `mapstructure:"extensions"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	IntervalHours int `mapstructure:"interval_hours"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	return load(configPath, nil)
}

// LoadFlags lädt die Konfiguration wie Load; der Pfad kommt aus dem Flag
// "config", gesetzte Flags überschreiben gleichnamige Schlüssel.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	path, _ := fs.GetString("config")
	return load(path, fs)
}

func load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("PPE_CASCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Sicherstellen, dass erforderliche Verzeichnisse existieren
	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.upload_dir", "/data/uploads")
	v.SetDefault("server.crop_dir", "/data/crops")
	v.SetDefault("server.max_upload_mb", 20)

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "/data/logs/ppe-cascade.log")

	// DB-Standardwerte
	v.SetDefault("db.file", "/data/ppe-cascade.db")

	v.SetDefault("classes.file", "")
	v.SetDefault("classes.person_class", "person")

	// Stufe 1: Personen
	v.SetDefault("detection.person.backend", BackendDNN)
	v.SetDefault("detection.person.model_path", "/data/models/person_detection.onnx")
	v.SetDefault("detection.person.input_size", 640)
	v.SetDefault("detection.person.confidence_threshold", 0.5)
	v.SetDefault("detection.person.nms_threshold", 0.45)
	v.SetDefault("detection.person.class_id", 0)
	v.SetDefault("detection.person.use_gpu", false)
	v.SetDefault("detection.person.url", "")
	v.SetDefault("detection.person.timeout", "30s")
	v.SetDefault("detection.person.scale_factor", 1.05)

	// Stufe 2: PPE
	v.SetDefault("detection.ppe.backend", BackendDNN)
	v.SetDefault("detection.ppe.model_path", "/data/models/ppe_detection.onnx")
	v.SetDefault("detection.ppe.input_size", 640)
	v.SetDefault("detection.ppe.confidence_threshold", 0.25)
	v.SetDefault("detection.ppe.nms_threshold", 0.45)
	v.SetDefault("detection.ppe.class_id", 0)
	v.SetDefault("detection.ppe.use_gpu", false)
	v.SetDefault("detection.ppe.url", "")
	v.SetDefault("detection.ppe.timeout", "30s")
	v.SetDefault("detection.ppe.scale_factor", 1.05)

	v.SetDefault("cascade.workers", 1)
	v.SetDefault("cascade.pool_workers", 2)
	v.SetDefault("cascade.queue_size", 100)
	v.SetDefault("cascade.save_crops", false)

	v.SetDefault("conversion.overlap_policy", string(geometry.OverlapTouch))
	v.SetDefault("conversion.empty_label_policy", string(annotation.EmptyOmit))
	v.SetDefault("conversion.person_source", string(dataset.SourceDetector))
	v.SetDefault("conversion.extensions", []string{".jpg", ".png"})

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "ppe-cascade")
	v.SetDefault("mqtt.topic", "ppe-cascade")

	// Cleanup-Standardwerte
	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval_hours", 24)
}

// Validate prüft Werte, die Viper nicht selbst prüfen kann
func (c *Config) Validate() error {
	if _, err := geometry.ParseOverlapPolicy(c.Conversion.OverlapPolicy); err != nil {
		return err
	}
	if _, err := annotation.ParseEmptyLabelPolicy(c.Conversion.EmptyLabelPolicy); err != nil {
		return err
	}
	if _, err := dataset.ParsePersonSource(c.Conversion.PersonSource); err != nil {
		return err
	}

	if err := c.Detection.Person.validate("detection.person"); err != nil {
		return err
	}
	if err := c.Detection.PPE.validate("detection.ppe"); err != nil {
		return err
	}
	// HOG kennt nur Personen
	if c.Detection.PPE.Backend == BackendHOG {
		return fmt.Errorf("detection.ppe: backend %q cannot detect PPE", BackendHOG)
	}

	if c.Cascade.Workers < 1 {
		return fmt.Errorf("cascade.workers must be at least 1, got %d", c.Cascade.Workers)
	}
	if c.Cascade.PoolWorkers < 1 {
		return fmt.Errorf("cascade.pool_workers must be at least 1, got %d", c.Cascade.PoolWorkers)
	}
	return nil
}

func (d DetectorConfig) validate(key string) error {
	switch d.Backend {
	case BackendDNN:
		if d.ModelPath == "" {
			return fmt.Errorf("%s: model_path is required for backend %q", key, d.Backend)
		}
		if d.InputSize <= 0 {
			return fmt.Errorf("%s: input_size must be positive", key)
		}
	case BackendHTTP:
		if d.URL == "" {
			return fmt.Errorf("%s: url is required for backend %q", key, d.Backend)
		}
	case BackendHOG:
	default:
		return fmt.Errorf("%s: unknown backend %q", key, d.Backend)
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return fmt.Errorf("%s: confidence_threshold must be within [0,1]", key)
	}
	return nil
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	for _, dir := range []string{cfg.Server.DataDir, cfg.Server.UploadDir, cfg.Server.CropDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Log-Verzeichnis
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.File != "" && !strings.HasPrefix(cfg.DB.File, "file::memory:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
