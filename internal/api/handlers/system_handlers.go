package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"ppe-cascade/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetClasses gibt die PPE-Klassentabelle zurück
func (h *APIHandler) GetClasses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"classes":     h.table.Names(),
		"fingerprint": h.table.Fingerprint(),
	})
}

// GetStatus gibt System-, Pool- und Datenbankstatistiken zurück
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats, err := h.repo.GetStatistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch statistics: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"system":     utils.GetSystemStats(h.pool),
		"statistics": stats,
	})
}

// ListConversions gibt die letzten Dataset-Läufe zurück
func (h *APIHandler) ListConversions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	runs, err := h.repo.GetConversionRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch conversion runs: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversions": runs})
}
