package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rankforge/pbn-detector/internal/config"
	"github.com/rankforge/pbn-detector/internal/db"
	"github.com/rankforge/pbn-detector/internal/heuristics"
	"github.com/rankforge/pbn-detector/pkg/models"
)

type APIHandler struct {
	settings config.Settings
	detector *heuristics.Detector
	dbStore  *db.PostgresStore
	wsHub    *Hub
}

func SetupRouter(settings config.Settings, detector *heuristics.Detector, dbStore *db.PostgresStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rankforge.io,https://www.rankforge.io
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{settings: settings, detector: detector, dbStore: dbStore, wsHub: wsHub}

	r.POST("/detect", handler.handleDetect)
	r.GET("/health", handler.handleHealth)
	r.GET("/stream", wsHub.Subscribe)

	return r
}

// handleDetect scores one batch of backlinks for a target domain.
func (h *APIHandler) handleDetect(c *gin.Context) {
	var req models.DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if len(req.Backlinks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backlinks must be a non-empty array"})
		return
	}
	if len(req.Backlinks) > h.settings.MaxBacklinks {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "too many backlinks in one batch",
			"limit": h.settings.MaxBacklinks,
		})
		return
	}

	if h.settings.ClassifierModelRequired && !h.detector.UsesLearnedModel() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "classifier model not loaded"})
		return
	}

	requestID := uuid.New().String()
	start := time.Now()

	// Domain context is advisory: a store failure only costs the
	// threshold adjustment, never the request.
	var domainCtx *models.DomainContext
	if h.dbStore != nil {
		dc, err := h.dbStore.GetDomainContext(c.Request.Context(), req.Domain)
		if err != nil {
			log.Printf("[%s] domain context lookup failed for %s: %v", requestID, req.Domain, err)
		} else {
			domainCtx = dc
		}
	}

	result, err := h.detector.Detect(c.Request.Context(), &req, domainCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away; nothing left to answer.
			c.Status(499)
			return
		}
		log.Printf("[%s] detection failed for %s: %v", requestID, req.Domain, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "detection failed"})
		return
	}

	latency := time.Since(start)
	log.Printf("[%s] scored %d backlinks for %s in %v (high=%d medium=%d low=%d)",
		requestID, len(result.Items), req.Domain, latency,
		result.Summary.HighRiskCount, result.Summary.MediumRiskCount, result.Summary.LowRiskCount)

	if h.dbStore != nil {
		if err := h.dbStore.RecordBatchSummary(context.Background(), req.Domain, result.Summary); err != nil {
			log.Printf("[%s] failed to record batch summary for %s: %v", requestID, req.Domain, err)
		}
	}

	if h.wsHub != nil {
		var alerts []models.DetectionAlert
		for i := range result.Items {
			if result.Items[i].RiskLevel == "high" {
				alerts = append(alerts, models.DetectionAlert{
					RequestID:      requestID,
					TaskID:         req.TaskID,
					Domain:         req.Domain,
					SourceURL:      result.Items[i].SourceURL,
					PBNProbability: result.Items[i].PBNProbability,
					RiskLevel:      result.Items[i].RiskLevel,
				})
			}
		}
		h.wsHub.BroadcastHighRiskAlerts(alerts)
	}

	c.JSON(http.StatusOK, models.DetectionResponse{
		Domain:      req.Domain,
		TaskID:      req.TaskID,
		GeneratedAt: time.Now().UTC(),
		Items:       result.Items,
		Summary:     result.Summary,
		Meta: models.DetectionMeta{
			LatencyMs:    int(latency.Milliseconds()),
			ModelVersion: h.detector.ModelVersion(),
		},
	})
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
