package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"catalog-sync-service/internal/broker"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/service"
	"catalog-sync-service/internal/store"
	"catalog-sync-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store       *store.Store
	syncRunner  *service.SyncRunner
	dedupRunner *service.DedupRunner
	publisher   *broker.EventPublisher
}

// NewHandler creates a new HTTP handler. publisher may be nil when no
// broker is configured; the queue endpoint then responds 503.
func NewHandler(st *store.Store, syncRunner *service.SyncRunner, dedupRunner *service.DedupRunner, publisher *broker.EventPublisher) *Handler {
	return &Handler{
		store:       st,
		syncRunner:  syncRunner,
		dedupRunner: dedupRunner,
		publisher:   publisher,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/configs", h.createConfig)
		v1.GET("/configs", h.listConfigs)
		v1.GET("/configs/:id", h.getConfig)
		v1.PUT("/configs/:id", h.updateConfig)
		v1.DELETE("/configs/:id", h.deleteConfig)
		v1.POST("/configs/:id/toggle", h.toggleConfig)
		v1.GET("/configs/:id/logs", h.listSyncLogs)
		v1.POST("/configs/:id/sync", h.triggerSync)
		v1.POST("/configs/:id/sync/queue", h.queueSync)
		v1.POST("/businesses/:id/deduplicate", h.triggerDedup)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// ConfigRequest is the create/update body for a sync config
type ConfigRequest struct {
	BusinessID         int64              `json:"business_id" binding:"required"`
	Name               string             `json:"name" binding:"required"`
	ExternalSystemName string             `json:"external_system_name"`
	BaseURL            string             `json:"base_url" binding:"required"`
	APIKey             string             `json:"api_key" binding:"required"`
	Endpoints          models.EndpointMap `json:"endpoints"`
	DefaultPerPage     int                `json:"default_per_page"`
	BrandIDs           models.BrandFilter `json:"brand_ids"`
	IsActive           *bool              `json:"is_active"`
}

func (req *ConfigRequest) toModel() *models.SyncConfig {
	cfg := &models.SyncConfig{
		BusinessID:         req.BusinessID,
		Name:               req.Name,
		ExternalSystemName: req.ExternalSystemName,
		BaseURL:            req.BaseURL,
		APIKey:             req.APIKey,
		Endpoints:          req.Endpoints,
		DefaultPerPage:     req.DefaultPerPage,
		BrandIDs:           req.BrandIDs,
		IsActive:           true,
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = models.EndpointMap{}
	}
	if cfg.DefaultPerPage < 1 || cfg.DefaultPerPage > 500 {
		cfg.DefaultPerPage = 50
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	return cfg
}

// createConfig handles sync config creation
func (h *Handler) createConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cfg := req.toModel()
	if err := h.store.CreateConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create config",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// listConfigs lists sync configs for a business
func (h *Handler) listConfigs(c *gin.Context) {
	businessID, err := strconv.ParseInt(c.Query("business_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing business_id"})
		return
	}

	configs, err := h.store.GetConfigsByBusiness(c.Request.Context(), businessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list configs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

// getConfig retrieves one sync config
func (h *Handler) getConfig(c *gin.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	cfg, err := h.store.GetConfig(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load config",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// updateConfig updates a sync config's connection fields
func (h *Handler) updateConfig(c *gin.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cfg := req.toModel()
	cfg.ID = id
	err := h.store.UpdateConfig(c.Request.Context(), cfg)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to update config",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// deleteConfig deletes a sync config
func (h *Handler) deleteConfig(c *gin.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	err := h.store.DeleteConfig(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to delete config",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// toggleConfig sets a config's active flag
func (h *Handler) toggleConfig(c *gin.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	err := h.store.SetConfigActive(c.Request.Context(), id, *req.IsActive)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to toggle config",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"is_active": *req.IsActive})
}

// listSyncLogs lists the audit trail for a config
func (h *Handler) listSyncLogs(c *gin.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.store.GetSyncLogs(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list sync logs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// triggerSync runs a catalog sync synchronously and returns its result
func (h *Handler) triggerSync(c *gin.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	params := service.SyncRunParams{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	result, err := h.syncRunner.Run(c.Request.Context(), id, params)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrConfigNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrSyncInProgress):
			status = http.StatusConflict
		case errors.Is(err, service.ErrConfigInactive), errors.Is(err, service.ErrConfigIncomplete):
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// queueSync publishes a sync request for the background worker
func (h *Handler) queueSync(c *gin.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event broker not configured"})
		return
	}

	params := service.SyncRunParams{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	event := &models.SyncRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSyncRequested,
			Timestamp: time.Now(),
		},
		SyncConfigID: id,
		PerPage:      params.PerPage,
		StartPage:    params.StartPage,
		SyncAllPages: params.SyncAllPages,
	}

	if err := h.publisher.PublishSyncRequested(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to queue sync",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true, "event_id": event.EventID})
}

// triggerDedup runs a category deduplication pass for a business
func (h *Handler) triggerDedup(c *gin.Context) {
	businessID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid business ID"})
		return
	}

	report, err := h.dedupRunner.Run(c.Request.Context(), businessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Deduplication failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config ID"})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
