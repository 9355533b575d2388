package store

import (
	"context"
	"database/sql"
	"time"

	"catalog-sync-service/internal/models"
)

// CreateConfig creates a new sync config
func (s *Store) CreateConfig(ctx context.Context, cfg *models.SyncConfig) error {
	query := `
		INSERT INTO sync_configs
			(business_id, name, external_system_name, base_url, api_key,
			 endpoints, default_per_page, brand_ids, is_active, last_sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		cfg.BusinessID, cfg.Name, cfg.ExternalSystemName, cfg.BaseURL, cfg.APIKey,
		cfg.Endpoints, cfg.DefaultPerPage, cfg.BrandIDs, cfg.IsActive, models.SyncStatusNever,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

// GetConfig retrieves a sync config by ID
func (s *Store) GetConfig(ctx context.Context, id int64) (*models.SyncConfig, error) {
	var cfg models.SyncConfig
	err := s.db.GetContext(ctx, &cfg, "SELECT * FROM sync_configs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigsByBusiness retrieves all sync configs for a business
func (s *Store) GetConfigsByBusiness(ctx context.Context, businessID int64) ([]models.SyncConfig, error) {
	var configs []models.SyncConfig
	err := s.db.SelectContext(ctx, &configs,
		"SELECT * FROM sync_configs WHERE business_id = $1 ORDER BY id", businessID)
	return configs, err
}

// UpdateConfig updates the connection fields of a sync config. Run status
// fields are owned by the sync runner and are not touched here.
func (s *Store) UpdateConfig(ctx context.Context, cfg *models.SyncConfig) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_configs
		SET name = $1, external_system_name = $2, base_url = $3, api_key = $4,
		    endpoints = $5, default_per_page = $6, brand_ids = $7, updated_at = NOW()
		WHERE id = $8`,
		cfg.Name, cfg.ExternalSystemName, cfg.BaseURL, cfg.APIKey,
		cfg.Endpoints, cfg.DefaultPerPage, cfg.BrandIDs, cfg.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConfigActive toggles a config's active flag
func (s *Store) SetConfigActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sync_configs SET is_active = $1, updated_at = NOW() WHERE id = $2", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConfig deletes a sync config
func (s *Store) DeleteConfig(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sync_configs WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRunStatus records the outcome of a sync run on the config
func (s *Store) UpdateRunStatus(ctx context.Context, id int64, status string, errMsg *string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_configs
		SET last_sync_at = $1, last_sync_status = $2, last_sync_error = $3, updated_at = NOW()
		WHERE id = $4`,
		at, status, errMsg, id)
	return err
}

// CreateSyncLog appends one sync run to the audit trail
func (s *Store) CreateSyncLog(ctx context.Context, entry *models.SyncLogEntry) error {
	query := `
		INSERT INTO sync_logs
			(sync_config_id, run_id, status, processed_count, skipped_count, error_count, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return s.db.GetContext(ctx, &entry.ID, query,
		entry.SyncConfigID, entry.RunID, entry.Status,
		entry.ProcessedCount, entry.SkippedCount, entry.ErrorCount,
		entry.StartedAt, entry.FinishedAt)
}

// GetSyncLogs retrieves the most recent sync runs for a config
func (s *Store) GetSyncLogs(ctx context.Context, configID int64, limit int) ([]models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.SyncLogEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM sync_logs WHERE sync_config_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2",
		configID, limit)
	return entries, err
}
