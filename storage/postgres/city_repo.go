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

type cityRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewCityRepo(db *pgxpool.Pool, log logger.ILogger) storage.ICityStorage {
	return &cityRepo{db: db, log: log}
}

func (r *cityRepo) GetAll(ctx context.Context) ([]*models.City, error) {
	return r.list(ctx, `SELECT id, name, is_active, delivery_fee, created_at FROM cities ORDER BY name`)
}

func (r *cityRepo) GetActive(ctx context.Context) ([]*models.City, error) {
	return r.list(ctx, `SELECT id, name, is_active, delivery_fee, created_at FROM cities WHERE is_active ORDER BY name`)
}

func (r *cityRepo) list(ctx context.Context, query string) ([]*models.City, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []*models.City
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive, &c.DeliveryFee, &c.CreatedAt); err != nil {
			return nil, err
		}
		cities = append(cities, &c)
	}
	return cities, rows.Err()
}

func (r *cityRepo) GetByID(ctx context.Context, id string) (*models.City, error) {
	var c models.City
	query := `SELECT id, name, is_active, delivery_fee, created_at FROM cities WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.IsActive, &c.DeliveryFee, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cityRepo) Create(ctx context.Context, name string) (*models.City, error) {
	var c models.City
	query := `
		INSERT INTO cities (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET is_active = TRUE
		RETURNING id, name, is_active, delivery_fee, created_at
	`
	err := r.db.QueryRow(ctx, query, name).Scan(&c.ID, &c.Name, &c.IsActive, &c.DeliveryFee, &c.CreatedAt)
	if err != nil {
		r.log.Error("failed to create city", logger.String("name", name), logger.Error(err))
		return nil, err
	}
	return &c, nil
}

func (r *cityRepo) SetDeliveryFee(ctx context.Context, id string, fee int) error {
	tag, err := r.db.Exec(ctx, `UPDATE cities SET delivery_fee = $2 WHERE id = $1`, id, fee)
	if err != nil {
		r.log.Error("failed to set delivery fee", logger.String("city_id", id), logger.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
