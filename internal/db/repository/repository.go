package repository

import (
	"errors"
	"fmt"
	"time"

	"ppe-cascade/internal/core/models"

	"gorm.io/gorm"
)

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	// Inference-Methoden
	SaveInference(inference *models.Inference) error
	GetInferenceByID(id uint) (*models.Inference, error)
	GetInferences(limit, offset int) ([]models.Inference, int64, error)
	FindInferenceByHash(hash string) (*models.Inference, error)
	GetInferencesOlderThan(cutoff time.Time) ([]models.Inference, error)
	DeleteInference(id uint) (*models.Inference, error)

	// ConversionRun-Methoden
	SaveConversionRun(run *models.ConversionRun) error
	GetConversionRuns(limit int) ([]models.ConversionRun, error)

	// Statistik-Methoden
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveInference speichert einen Lauf samt Personen und PPE-Detektionen
func (r *SQLiteRepository) SaveInference(inference *models.Inference) error {
	return r.db.Create(inference).Error
}

// GetInferenceByID holt einen Lauf mit allen Personen und Detektionen; nil, wenn er nicht existiert
func (r *SQLiteRepository) GetInferenceByID(id uint) (*models.Inference, error) {
	var inference models.Inference
	result := r.db.
		Preload("Persons", func(db *gorm.DB) *gorm.DB { return db.Order("persons.position ASC") }).
		Preload("Persons.Items").
		First(&inference, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &inference, nil
}

// GetInferences holt Läufe mit Pagination, neueste zuerst
func (r *SQLiteRepository) GetInferences(limit, offset int) ([]models.Inference, int64, error) {
	var inferences []models.Inference
	var total int64

	if err := r.db.Model(&models.Inference{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	result := r.db.Order("processed_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&inferences)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	return inferences, total, nil
}

// FindInferenceByHash sucht einen früheren Lauf für denselben Bildinhalt
func (r *SQLiteRepository) FindInferenceByHash(hash string) (*models.Inference, error) {
	var inference models.Inference
	result := r.db.Where("content_hash = ?", hash).Order("id DESC").First(&inference)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &inference, nil
}

// GetInferencesOlderThan liefert Läufe, die vor cutoff verarbeitet wurden, inklusive Personen
func (r *SQLiteRepository) GetInferencesOlderThan(cutoff time.Time) ([]models.Inference, error) {
	var inferences []models.Inference
	err := r.db.Preload("Persons").Where("created_at < ?", cutoff).Find(&inferences).Error
	return inferences, err
}

// DeleteInference löscht einen Lauf mit Personen und Detektionen in einer
// Transaktion. Der gelöschte Datensatz wird zurückgegeben, damit zugehörige
// Dateien entfernt werden können; nil, wenn er nicht existiert.
func (r *SQLiteRepository) DeleteInference(id uint) (*models.Inference, error) {
	var deleted *models.Inference

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var inference models.Inference
		if err := tx.Preload("Persons").First(&inference, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		// SQLite prüft Fremdschlüssel nur mit PRAGMA foreign_keys; daher explizit löschen
		personIDs := make([]uint, 0, len(inference.Persons))
		for _, p := range inference.Persons {
			personIDs = append(personIDs, p.ID)
		}
		if len(personIDs) > 0 {
			if err := tx.Unscoped().Where("person_id IN ?", personIDs).Delete(&models.PPEItem{}).Error; err != nil {
				return fmt.Errorf("failed to delete PPE items of inference %d: %w", id, err)
			}
		}
		if err := tx.Unscoped().Where("inference_id = ?", id).Delete(&models.Person{}).Error; err != nil {
			return fmt.Errorf("failed to delete persons of inference %d: %w", id, err)
		}
		if err := tx.Unscoped().Delete(&models.Inference{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete inference %d: %w", id, err)
		}

		deleted = &inference
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// SaveConversionRun speichert den Bericht eines Dataset-Laufs
func (r *SQLiteRepository) SaveConversionRun(run *models.ConversionRun) error {
	return r.db.Create(run).Error
}

// GetConversionRuns holt die letzten Dataset-Läufe
func (r *SQLiteRepository) GetConversionRuns(limit int) ([]models.ConversionRun, error) {
	var runs []models.ConversionRun
	err := r.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetStatistics gibt Statistiken über die gespeicherten Daten zurück
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	stats := models.Statistics{ItemsByLabel: map[string]int64{}}

	if err := r.db.Model(&models.Inference{}).Count(&stats.TotalInferences).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Person{}).Count(&stats.TotalPersons).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.PPEItem{}).Count(&stats.TotalPPEItems).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Person{}).Where("failure_msg <> ''").Count(&stats.FailedPersons).Error; err != nil {
		return stats, err
	}

	// Personen ohne PPE-Detektion
	var withPPE int64
	if err := r.db.Model(&models.PPEItem{}).
		Distinct("person_id").
		Count(&withPPE).Error; err != nil {
		return stats, err
	}
	stats.PersonsWithoutPPE = stats.TotalPersons - withPPE

	var rows []struct {
		Label string
		Count int64
	}
	if err := r.db.Model(&models.PPEItem{}).
		Select("label, COUNT(*) AS count").
		Group("label").
		Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.ItemsByLabel[row.Label] = row.Count
	}

	if err := r.db.Model(&models.ConversionRun{}).Count(&stats.ConversionRuns).Error; err != nil {
		return stats, err
	}

	// Ermittle den neuesten Lauf
	var latest models.Inference
	if err := r.db.Order("processed_at DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestInference = latest.ProcessedAt
	}

	return stats, nil
}
