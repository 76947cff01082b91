package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/storage"
)

type shopRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewShopRepo(db *pgxpool.Pool, log logger.ILogger) storage.IShopStorage {
	return &shopRepo{db: db, log: log}
}

func (r *shopRepo) GetAll(ctx context.Context) ([]*models.Shop, error) {
	query := `SELECT id, name, description, city_id, created_at FROM shops ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *shopRepo) GetByCity(ctx context.Context, cityID string) ([]*models.Shop, error) {
	query := `SELECT id, name, description, city_id, created_at FROM shops WHERE city_id = $1 ORDER BY name`
	return r.list(ctx, query, cityID)
}

func (r *shopRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.Shop, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shops []*models.Shop
	for rows.Next() {
		var s models.Shop
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CityID, &s.CreatedAt); err != nil {
			return nil, err
		}
		shops = append(shops, &s)
	}
	return shops, rows.Err()
}

func (r *shopRepo) GetByID(ctx context.Context, id string) (*models.Shop, error) {
	var s models.Shop
	query := `SELECT id, name, description, city_id, created_at FROM shops WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.Description, &s.CityID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		r.log.Error("failed to get shop", logger.String("id", id), logger.Error(err))
		return nil, err
	}
	return &s, nil
}
