package store

import (
	"context"
	"fmt"

	"catalog-sync-service/internal/models"

	"github.com/lib/pq"
)

// ListCategoriesByBusiness retrieves all categories for a business with
// their current product and child counts
func (s *Store) ListCategoriesByBusiness(ctx context.Context, businessID int64) ([]models.Category, error) {
	query := `
		SELECT c.id, c.business_id, c.name, c.parent_id, c.external_category_id, c.created_at,
			(SELECT COUNT(*) FROM products p WHERE p.category_id = c.id) AS product_count,
			(SELECT COUNT(*) FROM categories ch WHERE ch.parent_id = c.id) AS child_count
		FROM categories c
		WHERE c.business_id = $1
		ORDER BY c.id`

	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories, query, businessID)
	return categories, err
}

// MergeCategoryGroup collapses a duplicate group into the kept category as
// one transaction: products on the removed categories move to the kept one,
// children of the removed categories are re-parented to it, and the removed
// categories are deleted. A failure at any step leaves the group unmodified.
func (s *Store) MergeCategoryGroup(ctx context.Context, businessID, keepID int64, removeIDs []int64) (int, int, error) {
	if len(removeIDs) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE products SET category_id = $1, updated_at = NOW()
		WHERE business_id = $2 AND category_id = ANY($3)`,
		keepID, businessID, pq.Array(removeIDs))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reassign products: %w", err)
	}
	productsMoved, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		UPDATE categories SET parent_id = $1
		WHERE business_id = $2 AND parent_id = ANY($3)`,
		keepID, businessID, pq.Array(removeIDs))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to re-parent child categories: %w", err)
	}
	childrenMoved, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM categories
		WHERE business_id = $1 AND id = ANY($2)`,
		businessID, pq.Array(removeIDs)); err != nil {
		return 0, 0, fmt.Errorf("failed to delete duplicate categories: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return int(productsMoved), int(childrenMoved), nil
}
