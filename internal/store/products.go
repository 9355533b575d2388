package store

import (
	"context"

	"catalog-sync-service/internal/models"

	"github.com/lib/pq"
)

// UpsertProduct applies one upsert command keyed by (sync config, external
// id): create-if-absent, else update-in-place. Re-running an identical page
// never creates duplicate products. The external category id is resolved to
// a local category within the business; no match leaves the product
// uncategorized.
func (s *Store) UpsertProduct(ctx context.Context, businessID, syncConfigID int64, cmd *models.ProductUpsert) error {
	query := `
		INSERT INTO products
			(business_id, sync_config_id, external_id, brand_id, category_id,
			 name, price, stock, images, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
			(SELECT id FROM categories WHERE business_id = $1 AND external_category_id = $5 LIMIT 1),
			$6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (sync_config_id, external_id) DO UPDATE SET
			brand_id = EXCLUDED.brand_id,
			category_id = EXCLUDED.category_id,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			images = EXCLUDED.images,
			active = EXCLUDED.active,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		businessID, syncConfigID, cmd.ExternalID, cmd.BrandID, cmd.ExternalCategoryID,
		cmd.Name, cmd.Price, cmd.Stock, pq.StringArray(cmd.Images), cmd.Active)
	return err
}

// GetProductByExternalID retrieves a synced product by its external identifier
func (s *Store) GetProductByExternalID(ctx context.Context, syncConfigID int64, externalID string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE sync_config_id = $1 AND external_id = $2",
		syncConfigID, externalID)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CountProductsByConfig counts products owned by a sync config
func (s *Store) CountProductsByConfig(ctx context.Context, syncConfigID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM products WHERE sync_config_id = $1", syncConfigID)
	return count, err
}
