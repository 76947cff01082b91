package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/storage"
)

const productColumns = `id, shop_id, category_id, name, description, price, image_url, in_stock, created_at`

type catalogRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewCatalogRepo(db *pgxpool.Pool, log logger.ILogger) storage.ICatalogStorage {
	return &catalogRepo{db: db, log: log}
}

func (r *catalogRepo) GetCategories(ctx context.Context, shopID string) ([]*models.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, shop_id, created_at FROM categories WHERE shop_id = $1 ORDER BY name`, shopID)
	if err != nil {
		r.log.Error("failed to list categories", logger.String("shop_id", shopID), logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []*models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ShopID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *catalogRepo) GetProducts(ctx context.Context, shopID string) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE shop_id = $1 AND in_stock ORDER BY name`
	return r.list(ctx, query, shopID)
}

func (r *catalogRepo) GetProductsByIDs(ctx context.Context, ids []string) ([]*models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	return r.list(ctx, query, ids)
}

func (r *catalogRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to list products", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		var p models.Product
		err := rows.Scan(&p.ID, &p.ShopID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.InStock, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
