package service

import (
	"encoding/json"
	"fmt"
	"math"

	"catalog-sync-service/internal/models"
)

// Skip reasons for records that are incomplete upstream (drafts, items
// without pricing). Skips are expected and are never reported as errors.
const (
	SkipReasonMissingExternalID = "missing external id"
	SkipReasonMissingName       = "missing name"
	SkipReasonMissingPrice      = "missing price"
	SkipReasonNegativePrice     = "negative price"
)

// flexID accepts a JSON string or number. External systems disagree on
// whether identifiers are quoted; both normalize to a string. Any other JSON
// type is a structural error.
type flexID string

func (s *flexID) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexID(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*s = flexID(num.String())
	return nil
}

// rawProduct is the wire shape of one external catalog record. Field
// synonyms cover the common variations across external systems.
type rawProduct struct {
	ID         flexID   `json:"id"`
	ExternalID flexID   `json:"external_id"`
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Price      *float64 `json:"price"`
	Stock      *int     `json:"stock"`
	Quantity   *int     `json:"quantity"`
	BrandID    flexID   `json:"brand_id"`
	CategoryID flexID   `json:"category_id"`
	Images     []string `json:"images"`
	Active     *bool    `json:"active"`
}

// RecordMapper transforms raw external records into product upsert commands
type RecordMapper struct{}

// NewRecordMapper creates a new record mapper
func NewRecordMapper() *RecordMapper {
	return &RecordMapper{}
}

// Map transforms one raw record. A record missing its external identifier,
// name, or a usable price is skipped (skip=true with a reason); a record
// that fails structural parsing returns an error. Exactly one of the three
// outcomes applies.
func (m *RecordMapper) Map(raw json.RawMessage) (*models.ProductUpsert, bool, string, error) {
	var rec rawProduct
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, "", fmt.Errorf("malformed record: %w", err)
	}

	externalID := string(rec.ExternalID)
	if externalID == "" {
		externalID = rec.SKU
	}
	if externalID == "" {
		externalID = string(rec.ID)
	}
	if externalID == "" {
		return nil, true, SkipReasonMissingExternalID, nil
	}

	name := rec.Name
	if name == "" {
		name = rec.Title
	}
	if name == "" {
		return nil, true, SkipReasonMissingName, nil
	}

	if rec.Price == nil {
		return nil, true, SkipReasonMissingPrice, nil
	}
	if *rec.Price < 0 {
		return nil, true, SkipReasonNegativePrice, nil
	}

	stock := 0
	if rec.Stock != nil {
		stock = *rec.Stock
	} else if rec.Quantity != nil {
		stock = *rec.Quantity
	}

	active := true
	if rec.Active != nil {
		active = *rec.Active
	}

	cmd := &models.ProductUpsert{
		ExternalID:         externalID,
		BrandID:            string(rec.BrandID),
		ExternalCategoryID: string(rec.CategoryID),
		Name:               name,
		Price:              int64(math.Round(*rec.Price * 100)),
		Stock:              stock,
		Images:             rec.Images,
		Active:             active,
	}
	return cmd, false, "", nil
}

// BestEffortID extracts an item identifier from a record that failed
// mapping, for error reporting. Returns "unknown" when nothing usable can
// be read.
func (m *RecordMapper) BestEffortID(raw json.RawMessage) string {
	var probe struct {
		ID         flexID `json:"id"`
		ExternalID flexID `json:"external_id"`
		SKU        string `json:"sku"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		for _, id := range []string{string(probe.ExternalID), probe.SKU, string(probe.ID)} {
			if id != "" {
				return id
			}
		}
	}

	// the typed probe can fail on the same malformed field that failed the
	// map; fall back to a fully dynamic read of the id field
	var loose map[string]interface{}
	if err := json.Unmarshal(raw, &loose); err == nil {
		for _, key := range []string{"external_id", "sku", "id"} {
			if v, ok := loose[key]; ok && v != nil {
				return fmt.Sprintf("%v", v)
			}
		}
	}
	return "unknown"
}
