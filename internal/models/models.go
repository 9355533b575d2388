package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SyncConfig represents one external-system connection for a business
type SyncConfig struct {
	ID                 int64       `db:"id" json:"id"`
	BusinessID         int64       `db:"business_id" json:"business_id"`
	Name               string      `db:"name" json:"name"`
	ExternalSystemName string      `db:"external_system_name" json:"external_system_name"`
	BaseURL            string      `db:"base_url" json:"base_url"`
	APIKey             string      `db:"api_key" json:"-"`
	Endpoints          EndpointMap `db:"endpoints" json:"endpoints"`
	DefaultPerPage     int         `db:"default_per_page" json:"default_per_page"`
	BrandIDs           BrandFilter `db:"brand_ids" json:"brand_ids"`
	IsActive           bool        `db:"is_active" json:"is_active"`
	LastSyncAt         *time.Time  `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastSyncStatus     string      `db:"last_sync_status" json:"last_sync_status"`
	LastSyncError      *string     `db:"last_sync_error" json:"last_sync_error,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}

// Sync statuses, used both per run and as a config's last-run status
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
	SyncStatusNever   = "never"
)

// EndpointKeyProducts is the logical endpoint key for the external system's
// product listing endpoint
const EndpointKeyProducts = "products-by-brand"

// EndpointMap maps a logical endpoint key to a URL path on the external
// system. Stored as a JSONB column.
type EndpointMap map[string]string

func (m EndpointMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *EndpointMap) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = EndpointMap{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into EndpointMap", src)
	}
}

// BrandFilter is the set of external brand identifiers a sync iterates over.
// External input may send a single string or an array of strings; both forms
// normalize to a slice so the engine never branches on the shape again.
// Stored as a JSONB column.
type BrandFilter []string

func (f *BrandFilter) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = BrandFilter{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("brand filter must be a string or an array of strings")
	}
	*f = BrandFilter(many)
	return nil
}

func (f BrandFilter) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(f))
}

func (f *BrandFilter) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = BrandFilter{}
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into BrandFilter", src)
	}
}

// SyncLogEntry is the append-only audit record of one sync run.
// Never mutated after creation.
type SyncLogEntry struct {
	ID             int64     `db:"id" json:"id"`
	SyncConfigID   int64     `db:"sync_config_id" json:"sync_config_id"`
	RunID          string    `db:"run_id" json:"run_id"`
	Status         string    `db:"status" json:"status"`
	ProcessedCount int       `db:"processed_count" json:"processed_count"`
	SkippedCount   int       `db:"skipped_count" json:"skipped_count"`
	ErrorCount     int       `db:"error_count" json:"error_count"`
	StartedAt      time.Time `db:"started_at" json:"started_at"`
	FinishedAt     time.Time `db:"finished_at" json:"finished_at"`
}

// Product is a locally persisted catalog product. ExternalID is the
// idempotency key for upserts, scoped to the owning sync config.
type Product struct {
	ID           int64          `db:"id" json:"id"`
	BusinessID   int64          `db:"business_id" json:"business_id"`
	SyncConfigID int64          `db:"sync_config_id" json:"sync_config_id"`
	ExternalID   string         `db:"external_id" json:"external_id"`
	BrandID      string         `db:"brand_id" json:"brand_id"`
	CategoryID   *int64         `db:"category_id" json:"category_id,omitempty"`
	Name         string         `db:"name" json:"name"`
	Price        int64          `db:"price" json:"price"`
	Stock        int            `db:"stock" json:"stock"`
	Images       pq.StringArray `db:"images" json:"images"`
	Active       bool           `db:"active" json:"active"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// ProductUpsert is the idempotent write command produced by the record
// mapper for one external record. Not persisted as-is; the store applies it
// keyed by (sync config, external id). ExternalCategoryID is the external
// system's category identifier and is resolved to a local category at write
// time.
type ProductUpsert struct {
	ExternalID         string   `json:"external_id"`
	BrandID            string   `json:"brand_id"`
	ExternalCategoryID string   `json:"external_category_id"`
	Name               string   `json:"name"`
	Price              int64    `json:"price"`
	Stock              int      `json:"stock"`
	Images             []string `json:"images"`
	Active             bool     `json:"active"`
}

// Category is a locally persisted catalog category. Categories are at most
// two levels deep: parent/child, never deeper. A nil ExternalCategoryID
// excludes the category from deduplication grouping.
type Category struct {
	ID                 int64     `db:"id" json:"id"`
	BusinessID         int64     `db:"business_id" json:"business_id"`
	Name               string    `db:"name" json:"name"`
	ParentID           *int64    `db:"parent_id" json:"parent_id,omitempty"`
	ExternalCategoryID *string   `db:"external_category_id" json:"external_category_id,omitempty"`
	ProductCount       int       `db:"product_count" json:"product_count"`
	ChildCount         int       `db:"child_count" json:"child_count"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
