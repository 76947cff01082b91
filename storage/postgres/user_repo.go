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

const userColumns = `id, telegram_id, phone, role, name, city_id,
	vehicle_model, vehicle_color, vehicle_plate, sbp_recipient_name, sbp_phone, sbp_bank, created_at`

type userRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewUserRepo(db *pgxpool.Pool, log logger.ILogger) storage.IUserStorage {
	return &userRepo{db: db, log: log}
}

func (r *userRepo) GetOrCreate(ctx context.Context, teleID int64, name string) (*models.User, error) {
	query := `
		INSERT INTO users (telegram_id, name, role)
		VALUES ($1, $2, 'passenger')
		ON CONFLICT (telegram_id) DO UPDATE
		SET name = CASE WHEN users.name = '' THEN EXCLUDED.name ELSE users.name END
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query, teleID, name))
	if err != nil {
		r.log.Error("failed to get or create user", logger.Int64("telegram_id", teleID), logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) Get(ctx context.Context, teleID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, teleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		r.log.Error("failed to get user", logger.Int64("telegram_id", teleID), logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		r.log.Error("failed to get user by id", logger.String("id", id), logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetAll(ctx context.Context, limit int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`
	return r.scanUsers(ctx, query, limit)
}

func (r *userRepo) GetDriversByCity(ctx context.Context, cityID string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = 'driver' AND city_id = $1`
	return r.scanUsers(ctx, query, cityID)
}

func (r *userRepo) UpdateRole(ctx context.Context, id string, role models.Role) error {
	return r.exec(ctx, "update role", `UPDATE users SET role = $1 WHERE id = $2`, role, id)
}

func (r *userRepo) UpdatePhone(ctx context.Context, id string, phone string) error {
	return r.exec(ctx, "update phone", `UPDATE users SET phone = $1 WHERE id = $2`, phone, id)
}

func (r *userRepo) UpdateCity(ctx context.Context, id string, cityID string) error {
	return r.exec(ctx, "update city", `UPDATE users SET city_id = $1 WHERE id = $2`, cityID, id)
}

func (r *userRepo) UpdateDriverProfile(ctx context.Context, id string, p models.DriverProfile) error {
	query := `
		UPDATE users
		SET vehicle_model = $1, vehicle_color = $2, vehicle_plate = $3,
		    sbp_recipient_name = $4, sbp_phone = $5, sbp_bank = $6
		WHERE id = $7
	`
	return r.exec(ctx, "update driver profile", query,
		p.VehicleModel, p.VehicleColor, p.VehiclePlate, p.SBPRecipientName, p.SBPPhone, p.SBPBank, id)
}

func (r *userRepo) exec(ctx context.Context, what, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to "+what, logger.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *userRepo) scanUsers(ctx context.Context, query string, args ...interface{}) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var teleID *int64
	err := row.Scan(
		&u.ID, &teleID, &u.Phone, &u.Role, &u.Name, &u.CityID,
		&u.VehicleModel, &u.VehicleColor, &u.VehiclePlate,
		&u.SBPRecipientName, &u.SBPPhone, &u.SBPBank, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if teleID != nil {
		u.TelegramID = *teleID
	}
	return &u, nil
}
