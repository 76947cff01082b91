package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/storage"
)

type settingsRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewSettingsRepo(db *pgxpool.Pool, log logger.ILogger) storage.ISettingsStorage {
	return &settingsRepo{db: db, log: log}
}

func (r *settingsRepo) Get(ctx context.Context) (*models.AppSettings, error) {
	var s models.AppSettings
	err := r.db.QueryRow(ctx, `SELECT id, markup_percent FROM app_settings WHERE id = 1`).Scan(&s.ID, &s.MarkupPercent)
	if err != nil {
		r.log.Error("failed to load app settings", logger.Error(err))
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepo) SetMarkup(ctx context.Context, percent int) (*models.AppSettings, error) {
	var s models.AppSettings
	query := `
		INSERT INTO app_settings (id, markup_percent) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET markup_percent = EXCLUDED.markup_percent
		RETURNING id, markup_percent
	`
	if err := r.db.QueryRow(ctx, query, percent).Scan(&s.ID, &s.MarkupPercent); err != nil {
		r.log.Error("failed to set markup", logger.Int("percent", percent), logger.Error(err))
		return nil, err
	}
	return &s, nil
}
