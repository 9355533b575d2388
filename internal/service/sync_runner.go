package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-sync-service/internal/extapi"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/store"
	"catalog-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Failures rejected before any page is fetched. The caller can distinguish
// "config is broken" from "the run itself went wrong".
var (
	ErrConfigNotFound   = errors.New("sync config not found")
	ErrConfigInactive   = errors.New("sync config is not active")
	ErrConfigIncomplete = errors.New("sync config is missing base url or api key")
	ErrSyncInProgress   = errors.New("sync already in progress for this config")
)

const (
	minPerPage = 1
	maxPerPage = 500
)

// PageFetcher fetches one page of raw records from the external system
type PageFetcher interface {
	FetchPage(ctx context.Context, cfg *models.SyncConfig, brandID, endpointKey string, page, perPage int) (*extapi.Page, error)
}

// ConfigStore persists sync configs and their run history
type ConfigStore interface {
	GetConfig(ctx context.Context, id int64) (*models.SyncConfig, error)
	UpdateRunStatus(ctx context.Context, id int64, status string, errMsg *string, at time.Time) error
	CreateSyncLog(ctx context.Context, entry *models.SyncLogEntry) error
}

// ProductStore applies idempotent product upserts
type ProductStore interface {
	UpsertProduct(ctx context.Context, businessID, syncConfigID int64, cmd *models.ProductUpsert) error
}

// EventPublisher publishes run-completion events for downstream consumers
type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error
	PublishDedupCompleted(ctx context.Context, event *models.DedupCompletedEvent) error
}

// SyncRunParams controls the scope of one sync run
type SyncRunParams struct {
	PerPage      int  `json:"perPage"`
	StartPage    int  `json:"currentPage"`
	SyncAllPages bool `json:"syncAllPages"`
}

// SyncError is one per-item failure in a run
type SyncError struct {
	ProductID string `json:"productId"`
	Error     string `json:"error"`
}

// Pagination reports progress through the external catalog based on the last
// fetched page. TotalPages and RemainingPages stay zero when the external
// system never declared a total.
type Pagination struct {
	Total          int `json:"total,omitempty"`
	PerPage        int `json:"per_page"`
	CurrentPage    int `json:"current_page"`
	TotalPages     int `json:"total_pages,omitempty"`
	RemainingPages int `json:"remaining_pages,omitempty"`
}

// SyncResult is the outcome of one sync run
type SyncResult struct {
	Status         string      `json:"status"`
	ProcessedCount int         `json:"processedCount"`
	SkippedCount   int         `json:"skippedCount"`
	Errors         []SyncError `json:"errors"`
	Pagination     *Pagination `json:"pagination,omitempty"`
}

// SyncRunner drives catalog sync runs: one leased lock per config, pages
// fetched in strictly increasing order per brand, records mapped and
// upserted idempotently, outcome logged to the append-only audit trail.
type SyncRunner struct {
	configs        ConfigStore
	products       ProductStore
	fetcher        PageFetcher
	mapper         *RecordMapper
	locker         Locker
	publisher      EventPublisher
	lockTTL        time.Duration
	defaultPerPage int
	logger         *zap.Logger
}

// NewSyncRunner creates a new sync runner. publisher may be nil when no
// broker is configured.
func NewSyncRunner(
	configs ConfigStore,
	products ProductStore,
	fetcher PageFetcher,
	locker Locker,
	publisher EventPublisher,
	lockTTL time.Duration,
	defaultPerPage int,
) *SyncRunner {
	if defaultPerPage < minPerPage || defaultPerPage > maxPerPage {
		defaultPerPage = 50
	}
	return &SyncRunner{
		configs:        configs,
		products:       products,
		fetcher:        fetcher,
		mapper:         NewRecordMapper(),
		locker:         locker,
		publisher:      publisher,
		lockTTL:        lockTTL,
		defaultPerPage: defaultPerPage,
		logger:         util.GetLogger(),
	}
}

// Run executes one sync for a config. Configuration problems and a
// concurrent run are returned as sentinel errors before any network call;
// everything that happens during the run resolves into the SyncResult.
func (r *SyncRunner) Run(ctx context.Context, configID int64, params SyncRunParams) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "SyncRunner.Run")
	defer span.End()

	cfg, err := r.configs.GetConfig(ctx, configID)
	if errors.Is(err, store.ErrNotFound) {
		util.SyncRunsRejectedTotal.WithLabelValues("not_found").Inc()
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync config: %w", err)
	}
	if !cfg.IsActive {
		util.SyncRunsRejectedTotal.WithLabelValues("inactive").Inc()
		return nil, ErrConfigInactive
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		util.SyncRunsRejectedTotal.WithLabelValues("incomplete").Inc()
		return nil, ErrConfigIncomplete
	}

	acquired, err := r.locker.TryLock(ctx, configID, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		util.SyncRunsRejectedTotal.WithLabelValues("in_progress").Inc()
		return nil, ErrSyncInProgress
	}
	// release must survive request cancellation, hence the fresh context
	defer func() {
		if err := r.locker.Unlock(context.Background(), configID); err != nil {
			r.logger.Error("Failed to release sync lock",
				zap.Int64("config_id", configID), zap.Error(err))
		}
	}()

	startedAt := time.Now()
	runID := uuid.New().String()

	perPage := params.PerPage
	if perPage <= 0 {
		perPage = cfg.DefaultPerPage
	}
	if perPage < minPerPage || perPage > maxPerPage {
		perPage = r.defaultPerPage
	}
	startPage := params.StartPage
	if startPage < 1 {
		startPage = 1
	}

	r.logger.Info("Sync run started",
		zap.Int64("config_id", configID),
		zap.String("run_id", runID),
		zap.Int("per_page", perPage),
		zap.Int("start_page", startPage),
		zap.Bool("all_pages", params.SyncAllPages))

	result := &SyncResult{Errors: []SyncError{}}

	brands := cfg.BrandIDs
	if len(brands) == 0 {
		// no brand filter: a single unfiltered page sequence
		brands = models.BrandFilter{""}
	}

	for _, brandID := range brands {
		r.syncBrand(ctx, cfg, brandID, perPage, startPage, params.SyncAllPages, result)
	}

	switch {
	case len(result.Errors) == 0:
		result.Status = models.SyncStatusSuccess
	case result.ProcessedCount > 0:
		result.Status = models.SyncStatusPartial
	default:
		result.Status = models.SyncStatusFailed
	}

	finishedAt := time.Now()
	r.recordRun(ctx, cfg, runID, result, startedAt, finishedAt)

	util.SyncRunsTotal.WithLabelValues(result.Status).Inc()
	util.SyncRunDuration.Observe(finishedAt.Sub(startedAt).Seconds())

	r.logger.Info("Sync run finished",
		zap.Int64("config_id", configID),
		zap.String("run_id", runID),
		zap.String("status", result.Status),
		zap.Int("processed", result.ProcessedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("errors", len(result.Errors)))

	return result, nil
}

// syncBrand walks one brand's page sequence. A fatal page error aborts the
// remaining pages of this brand only.
func (r *SyncRunner) syncBrand(ctx context.Context, cfg *models.SyncConfig, brandID string, perPage, startPage int, allPages bool, result *SyncResult) {
	for page := startPage; ; page++ {
		p, err := r.fetcher.FetchPage(ctx, cfg, brandID, models.EndpointKeyProducts, page, perPage)
		if err != nil {
			util.SyncPageErrorsTotal.Inc()
			result.Errors = append(result.Errors, SyncError{
				ProductID: pageRef(brandID, page),
				Error:     err.Error(),
			})
			r.logger.Warn("Page fetch failed",
				zap.Int64("config_id", cfg.ID),
				zap.String("brand_id", brandID),
				zap.Int("page", page),
				zap.Error(err))
			return
		}

		r.applyPage(ctx, cfg, p.Records, result)
		result.Pagination = paginationFor(p, page, perPage)

		if !allPages {
			return
		}
		if len(p.Records) == 0 {
			// empty page terminates the walk even when no total was declared
			return
		}
		if p.TotalKnown && result.Pagination.RemainingPages == 0 {
			return
		}
	}
}

// applyPage maps and upserts every record of one page. Per-record failures
// are collected and never abort the page.
func (r *SyncRunner) applyPage(ctx context.Context, cfg *models.SyncConfig, records []json.RawMessage, result *SyncResult) {
	for _, raw := range records {
		cmd, skip, reason, err := r.mapper.Map(raw)
		if err != nil {
			util.SyncRecordErrorsTotal.Inc()
			result.Errors = append(result.Errors, SyncError{
				ProductID: r.mapper.BestEffortID(raw),
				Error:     err.Error(),
			})
			continue
		}
		if skip {
			util.SyncRecordsSkippedTotal.Inc()
			result.SkippedCount++
			r.logger.Debug("Record skipped",
				zap.Int64("config_id", cfg.ID), zap.String("reason", reason))
			continue
		}

		if err := r.products.UpsertProduct(ctx, cfg.BusinessID, cfg.ID, cmd); err != nil {
			util.SyncRecordErrorsTotal.Inc()
			result.Errors = append(result.Errors, SyncError{
				ProductID: cmd.ExternalID,
				Error:     fmt.Sprintf("upsert failed: %v", err),
			})
			continue
		}

		util.SyncRecordsProcessedTotal.Inc()
		result.ProcessedCount++
	}
}

// recordRun persists the audit log entry, updates the config's last-run
// status, and publishes the completion event. Persistence problems here are
// logged, not surfaced: the run itself already finished.
func (r *SyncRunner) recordRun(ctx context.Context, cfg *models.SyncConfig, runID string, result *SyncResult, startedAt, finishedAt time.Time) {
	entry := &models.SyncLogEntry{
		SyncConfigID:   cfg.ID,
		RunID:          runID,
		Status:         result.Status,
		ProcessedCount: result.ProcessedCount,
		SkippedCount:   result.SkippedCount,
		ErrorCount:     len(result.Errors),
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
	}
	if err := r.configs.CreateSyncLog(ctx, entry); err != nil {
		r.logger.Error("Failed to persist sync log entry",
			zap.Int64("config_id", cfg.ID), zap.Error(err))
	}

	var lastErr *string
	if len(result.Errors) > 0 {
		msg := result.Errors[0].Error
		lastErr = &msg
	}
	if err := r.configs.UpdateRunStatus(ctx, cfg.ID, result.Status, lastErr, finishedAt); err != nil {
		r.logger.Error("Failed to update config run status",
			zap.Int64("config_id", cfg.ID), zap.Error(err))
	}

	if r.publisher != nil {
		event := &models.SyncCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeSyncCompleted,
				Timestamp: finishedAt,
			},
			SyncConfigID:   cfg.ID,
			BusinessID:     cfg.BusinessID,
			RunID:          runID,
			Status:         result.Status,
			ProcessedCount: result.ProcessedCount,
			SkippedCount:   result.SkippedCount,
			ErrorCount:     len(result.Errors),
		}
		if err := r.publisher.PublishSyncCompleted(ctx, event); err != nil {
			r.logger.Error("Failed to publish SyncCompleted event", zap.Error(err))
		}
	}
}

func pageRef(brandID string, page int) string {
	if brandID == "" {
		return fmt.Sprintf("page %d", page)
	}
	return fmt.Sprintf("brand %s page %d", brandID, page)
}

func paginationFor(p *extapi.Page, page, perPage int) *Pagination {
	pg := &Pagination{
		PerPage:     perPage,
		CurrentPage: page,
	}
	if p.TotalKnown {
		pg.Total = p.Total
		pg.TotalPages = (p.Total + perPage - 1) / perPage
		if pg.TotalPages > page {
			pg.RemainingPages = pg.TotalPages - page
		}
	}
	return pg
}
