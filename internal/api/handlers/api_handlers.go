package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ppe-cascade/config"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/core/models"
	"ppe-cascade/internal/core/processor"
	"ppe-cascade/internal/db/repository"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Pool verarbeitet Bilder und liefert seine Kennzahlen, z.B. processor.WorkerPool
type Pool interface {
	ProcessImage(ctx context.Context, imagePath, source string, options processor.ProcessingOptions) (*processor.ProcessResult, error)
	utils.PoolStats
}

// FileRemover entfernt die Dateien eines gelöschten Laufs, z.B. cleanup.Files
type FileRemover interface {
	Remove(inf *models.Inference) int
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	cfg   *config.Config
	repo  repository.Repository
	pool  Pool
	table *classes.Table
	files FileRemover
}

// NewAPIHandler erstellt einen neuen API-Handler. files darf nil sein.
func NewAPIHandler(cfg *config.Config, repo repository.Repository, pool Pool, table *classes.Table, files FileRemover) *APIHandler {
	return &APIHandler{
		cfg:   cfg,
		repo:  repo,
		pool:  pool,
		table: table,
		files: files,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router gin.IRouter) {
	// Verarbeitungs-Endpunkte
	router.POST("/detect", h.Detect)
	router.POST("/convert", h.Convert)

	// Ergebnis-Endpunkte
	router.GET("/inferences", h.ListInferences)
	router.GET("/inferences/:id", h.GetInference)
	router.DELETE("/inferences/:id", h.DeleteInference)
	router.GET("/conversions", h.ListConversions)

	// System-Endpunkte
	router.GET("/classes", h.GetClasses)
	router.GET("/status", h.GetStatus)
}

// Detect speichert ein hochgeladenes Bild und führt die Kaskade darauf aus
func (h *APIHandler) Detect(c *gin.Context) {
	if h.cfg.Server.MaxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxUpload<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}

	source := c.DefaultPostForm("source", "api_upload")

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	filename := fmt.Sprintf("%s_%s%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8], ext)
	filePath := filepath.Join(h.cfg.Server.UploadDir, filename)

	if err := os.MkdirAll(h.cfg.Server.UploadDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create upload directory: %v", err)})
		return
	}
	if err := c.SaveUploadedFile(header, filePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save file: %v", err)})
		return
	}

	options := processor.ProcessingOptions{
		SaveCrops: h.cfg.Cascade.SaveCrops || formBool(c, "save_crops"),
		Force:     formBool(c, "force"),
	}

	res, err := h.pool.ProcessImage(c.Request.Context(), filePath, source, options)
	if err != nil {
		os.Remove(filePath)
		status := http.StatusInternalServerError
		if errors.Is(err, frame.ErrFrameExtraction) {
			status = http.StatusUnprocessableEntity
		} else if errors.Is(err, processor.ErrPoolClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": fmt.Sprintf("Image processing failed: %v", err)})
		return
	}

	if res.Duplicate {
		// der gespeicherte Lauf verweist auf den ersten Upload
		os.Remove(filePath)
	}

	c.JSON(http.StatusOK, gin.H{
		"duplicate": res.Duplicate,
		"inference": res.Inference,
	})
}

// ListInferences gibt eine Seite gespeicherter Läufe zurück, neueste zuerst
func (h *APIHandler) ListInferences(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	page = max(page, 1)
	pageSize = min(max(pageSize, 1), 200)

	inferences, total, err := h.repo.GetInferences(pageSize, (page-1)*pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch inferences: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"inferences": inferences,
		"pagination": gin.H{
			"page":     page,
			"pageSize": pageSize,
			"total":    total,
		},
	})
}

// GetInference gibt einen Lauf mit Personen und PPE zurück
func (h *APIHandler) GetInference(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	inference, err := h.repo.GetInferenceByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch inference: %v", err)})
		return
	}
	if inference == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inference not found"})
		return
	}

	c.JSON(http.StatusOK, inference)
}

// DeleteInference löscht einen Lauf und die vom Server angelegten Dateien
func (h *APIHandler) DeleteInference(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleted, err := h.repo.DeleteInference(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete inference: %v", err)})
		return
	}
	if deleted == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inference not found"})
		return
	}

	removed := 0
	if h.files != nil {
		removed = h.files.Remove(deleted)
	}
	log.WithField("id", id).Infof("Inference deleted (%d files removed)", removed)

	c.JSON(http.StatusOK, gin.H{"message": "Inference deleted successfully", "files_removed": removed})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

func formBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.PostForm(key))
	return v
}
