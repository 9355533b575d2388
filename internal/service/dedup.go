package service

import (
	"context"
	"sort"
	"time"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CategoryStore provides the category reads and the atomic merge write the
// deduplication pass needs
type CategoryStore interface {
	ListCategoriesByBusiness(ctx context.Context, businessID int64) ([]models.Category, error)
	MergeCategoryGroup(ctx context.Context, businessID, keepID int64, removeIDs []int64) (productsMoved, childrenMoved int, err error)
}

// RemovedCategory identifies one deleted duplicate in a report
type RemovedCategory struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// MergeDetail reports the outcome for one duplicate group. Error is set when
// the group's merge failed; its categories are left untouched in that case.
type MergeDetail struct {
	ExternalID string            `json:"externalId"`
	Kept       string            `json:"kept"`
	KeptID     int64             `json:"keptId"`
	Removed    []RemovedCategory `json:"removed"`
	Error      string            `json:"error,omitempty"`

	productsMoved int
	childrenMoved int
}

// DedupReport is the aggregate outcome of one deduplication pass
type DedupReport struct {
	DuplicatesFound   int           `json:"duplicatesFound"`
	DuplicatesRemoved int           `json:"duplicatesRemoved"`
	ProductsMoved     int           `json:"productsMoved"`
	ChildrenMoved     int           `json:"childrenMoved"`
	Details           []MergeDetail `json:"details"`
}

// CategoryGrouper finds local categories that share an external category
// identifier
type CategoryGrouper struct {
	categories CategoryStore
}

// NewCategoryGrouper creates a new grouper
func NewCategoryGrouper(categories CategoryStore) *CategoryGrouper {
	return &CategoryGrouper{categories: categories}
}

// GroupDuplicates returns the duplicate groups for a business, keyed by
// external category id. Categories without an external id are ignored and
// singleton groups are dropped.
func (g *CategoryGrouper) GroupDuplicates(ctx context.Context, businessID int64) (map[string][]models.Category, error) {
	categories, err := g.categories.ListCategoriesByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	byExternalID := make(map[string][]models.Category)
	for _, c := range categories {
		if c.ExternalCategoryID == nil || *c.ExternalCategoryID == "" {
			continue
		}
		byExternalID[*c.ExternalCategoryID] = append(byExternalID[*c.ExternalCategoryID], c)
	}

	for id, group := range byExternalID {
		if len(group) < 2 {
			delete(byExternalID, id)
		}
	}
	return byExternalID, nil
}

// CategoryMerger collapses one duplicate group into its canonical category
type CategoryMerger struct {
	categories CategoryStore
	logger     *zap.Logger
}

// NewCategoryMerger creates a new merger
func NewCategoryMerger(categories CategoryStore) *CategoryMerger {
	return &CategoryMerger{
		categories: categories,
		logger:     util.GetLogger(),
	}
}

// ChooseKept picks the category that survives a merge. Ordered tie-break:
// most products, then most children, then oldest, then lowest id. The
// result is stable across runs for identical input.
func (m *CategoryMerger) ChooseKept(group []models.Category) models.Category {
	ranked := make([]models.Category, len(group))
	copy(ranked, group)

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ProductCount != b.ProductCount {
			return a.ProductCount > b.ProductCount
		}
		if a.ChildCount != b.ChildCount {
			return a.ChildCount > b.ChildCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ranked[0]
}

// Merge collapses one duplicate group as a single transaction and reports
// what moved. On error the group is unmodified.
func (m *CategoryMerger) Merge(ctx context.Context, externalID string, group []models.Category) MergeDetail {
	kept := m.ChooseKept(group)

	detail := MergeDetail{
		ExternalID: externalID,
		Kept:       kept.Name,
		KeptID:     kept.ID,
		Removed:    []RemovedCategory{},
	}

	removeIDs := make([]int64, 0, len(group)-1)
	removed := make([]RemovedCategory, 0, len(group)-1)
	for _, c := range group {
		if c.ID == kept.ID {
			continue
		}
		removeIDs = append(removeIDs, c.ID)
		removed = append(removed, RemovedCategory{Name: c.Name, ID: c.ID})
	}

	productsMoved, childrenMoved, err := m.categories.MergeCategoryGroup(ctx, kept.BusinessID, kept.ID, removeIDs)
	if err != nil {
		util.DedupGroupErrorsTotal.Inc()
		detail.Error = err.Error()
		m.logger.Error("Category merge failed",
			zap.String("external_id", externalID),
			zap.Int64("kept_id", kept.ID),
			zap.Error(err))
		return detail
	}

	detail.Removed = removed
	m.logger.Info("Category group merged",
		zap.String("external_id", externalID),
		zap.Int64("kept_id", kept.ID),
		zap.Int("removed", len(removed)),
		zap.Int("products_moved", productsMoved),
		zap.Int("children_moved", childrenMoved))

	// carry the move counts back through the detail for aggregation
	detail.productsMoved = productsMoved
	detail.childrenMoved = childrenMoved
	return detail
}

// DedupRunner drives a full deduplication pass over a business's categories
type DedupRunner struct {
	grouper   *CategoryGrouper
	merger    *CategoryMerger
	publisher EventPublisher
	logger    *zap.Logger
}

// NewDedupRunner creates a new deduplication runner. publisher may be nil.
func NewDedupRunner(categories CategoryStore, publisher EventPublisher) *DedupRunner {
	return &DedupRunner{
		grouper:   NewCategoryGrouper(categories),
		merger:    NewCategoryMerger(categories),
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Run merges every duplicate group for a business. A failing group is
// reported in the details and does not stop the remaining groups.
func (r *DedupRunner) Run(ctx context.Context, businessID int64) (*DedupReport, error) {
	ctx, span := util.StartSpan(ctx, "DedupRunner.Run")
	defer span.End()

	util.DedupRunsTotal.Inc()

	groups, err := r.grouper.GroupDuplicates(ctx, businessID)
	if err != nil {
		return nil, err
	}

	report := &DedupReport{Details: []MergeDetail{}}

	// deterministic processing and reporting order
	externalIDs := make([]string, 0, len(groups))
	for id := range groups {
		externalIDs = append(externalIDs, id)
	}
	sort.Strings(externalIDs)

	for _, externalID := range externalIDs {
		group := groups[externalID]
		report.DuplicatesFound += len(group) - 1

		detail := r.merger.Merge(ctx, externalID, group)
		report.Details = append(report.Details, detail)

		if detail.Error == "" {
			report.DuplicatesRemoved += len(detail.Removed)
			report.ProductsMoved += detail.productsMoved
			report.ChildrenMoved += detail.childrenMoved
			util.DedupCategoriesRemovedTotal.Add(float64(len(detail.Removed)))
		}
	}

	r.logger.Info("Deduplication finished",
		zap.Int64("business_id", businessID),
		zap.Int("groups", len(externalIDs)),
		zap.Int("duplicates_found", report.DuplicatesFound),
		zap.Int("duplicates_removed", report.DuplicatesRemoved),
		zap.Int("products_moved", report.ProductsMoved),
		zap.Int("children_moved", report.ChildrenMoved))

	if r.publisher != nil {
		event := &models.DedupCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeDedupCompleted,
				Timestamp: time.Now(),
			},
			BusinessID:        businessID,
			DuplicatesFound:   report.DuplicatesFound,
			DuplicatesRemoved: report.DuplicatesRemoved,
			ProductsMoved:     report.ProductsMoved,
			ChildrenMoved:     report.ChildrenMoved,
		}
		if err := r.publisher.PublishDedupCompleted(ctx, event); err != nil {
			r.logger.Error("Failed to publish DedupCompleted event", zap.Error(err))
		}
	}

	return report, nil
}
