package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bombily/pkg/lifecycle"
	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/storage"
)

const orderColumns = `id, user_id, driver_id, city_id, shop_id, type, from_address, to_address, comment,
	scheduled_time, status, passenger_confirmed, updated_by, created_at, updated_at`

type orderRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewOrderRepo(db *pgxpool.Pool, log logger.ILogger) storage.IOrderStorage {
	return &orderRepo{db: db, log: log}
}

// querier is what both the pool and a transaction offer.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order, items ...models.DeliveryItem) (*models.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if len(items) == 0 {
		if err := r.insert(ctx, r.db, order); err != nil {
			return nil, err
		}
		return order, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("failed to begin order transaction", logger.Error(err))
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := r.insert(ctx, tx, order); err != nil {
		return nil, err
	}
	for _, it := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO delivery_items (id, order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), order.ID, it.ProductID, it.Quantity, it.UnitPrice)
		if err != nil {
			r.log.Error("failed to store delivery item", logger.String("order_id", order.ID), logger.Error(err))
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		r.log.Error("failed to commit order", logger.String("order_id", order.ID), logger.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) insert(ctx context.Context, q querier, order *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, driver_id, city_id, shop_id, type, from_address, to_address, comment, scheduled_time, status, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $2)
		RETURNING created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		order.ID,
		order.UserID,
		order.DriverID,
		order.CityID,
		order.ShopID,
		order.Type,
		order.FromAddress,
		order.ToAddress,
		order.Comment,
		order.ScheduledTime,
		order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		r.log.Error("failed to create order", logger.Error(err))
		return err
	}

	by := order.UserID
	order.UpdatedBy = &by
	return nil
}

func (r *orderRepo) GetItems(ctx context.Context, orderID string) ([]*models.DeliveryItem, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, created_at
		FROM delivery_items WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		r.log.Error("failed to list delivery items", logger.String("order_id", orderID), logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var items []*models.DeliveryItem
	for rows.Next() {
		var it models.DeliveryItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		r.log.Error("failed to get order by id", logger.String("id", id), logger.Error(err))
		return nil, err
	}
	return order, nil
}

// UpdateStatus is the conditional update every transition goes through. The
// status guard serialises concurrent writers; accept also requires the order
// to be unassigned.
func (r *orderRepo) UpdateStatus(ctx context.Context, id string, change lifecycle.Change) (bool, error) {
	var updatedBy *string
	if change.Actor.ID != "" {
		updatedBy = &change.Actor.ID
	}
	var at interface{}
	if !change.At.IsZero() {
		at = change.At
	}

	query := `
		UPDATE orders
		SET status = $1,
		    driver_id = CASE WHEN $2::boolean THEN NULL ELSE COALESCE($3, driver_id) END,
		    passenger_confirmed = passenger_confirmed OR $4,
		    updated_by = COALESCE($5, updated_by),
		    updated_at = COALESCE($6::timestamptz, NOW())
		WHERE id = $7 AND status = $8 AND ($9::boolean = FALSE OR driver_id IS NULL)
	`
	tag, err := r.db.Exec(ctx, query,
		change.To,
		change.ClearDriver,
		change.DriverID,
		change.PassengerConfirmed,
		updatedBy,
		at,
		id,
		change.From,
		change.Event == lifecycle.EventAccept,
	)
	if err != nil {
		r.log.Error("failed to update order status", logger.String("id", id), logger.String("to", string(change.To)), logger.Error(err))
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

func (r *orderRepo) GetAvailable(ctx context.Context, cityID string) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'pending' AND driver_id IS NULL AND city_id = $1
		ORDER BY created_at DESC
	`
	return r.scanOrders(ctx, query, cityID)
}

func (r *orderRepo) GetDriverOrders(ctx context.Context, driverID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE driver_id = $1 ORDER BY created_at DESC`
	return r.scanOrders(ctx, query, driverID)
}

func (r *orderRepo) GetClientOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.scanOrders(ctx, query, userID)
}

func (r *orderRepo) GetRecent(ctx context.Context, limit int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`
	return r.scanOrders(ctx, query, limit)
}

func (r *orderRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		r.log.Error("failed to delete order", logger.String("id", id), logger.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *orderRepo) scanOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to query orders", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.DriverID, &o.CityID, &o.ShopID, &o.Type,
		&o.FromAddress, &o.ToAddress, &o.Comment, &o.ScheduledTime, &o.Status,
		&o.PassengerConfirmed, &o.UpdatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
