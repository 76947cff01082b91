package storage

import (
	"context"
	"errors"

	"bombily/pkg/lifecycle"
	"bombily/pkg/models"
)

var ErrNotFound = errors.New("not found")

type IStorage interface {
	User() IUserStorage
	Order() IOrderStorage
	City() ICityStorage
	Shop() IShopStorage
	Settings() ISettingsStorage
	Catalog() ICatalogStorage
	Feed() IOrderFeed
	Close()
}

type IUserStorage interface {
	GetOrCreate(ctx context.Context, teleID int64, name string) (*models.User, error)
	Get(ctx context.Context, teleID int64) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetAll(ctx context.Context, limit int) ([]*models.User, error)
	GetDriversByCity(ctx context.Context, cityID string) ([]*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
	UpdatePhone(ctx context.Context, id string, phone string) error
	UpdateCity(ctx context.Context, id string, cityID string) error
	UpdateDriverProfile(ctx context.Context, id string, profile models.DriverProfile) error
}

type IOrderStorage interface {
	// Create stores the order together with its delivery items, if any.
	Create(ctx context.Context, order *models.Order, items ...models.DeliveryItem) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// UpdateStatus applies change only while the order is still in change.From
	// (and, for accept, still has no driver). false means nothing was written.
	UpdateStatus(ctx context.Context, id string, change lifecycle.Change) (bool, error)
	GetAvailable(ctx context.Context, cityID string) ([]*models.Order, error)
	GetDriverOrders(ctx context.Context, driverID string) ([]*models.Order, error)
	GetClientOrders(ctx context.Context, userID string) ([]*models.Order, error)
	GetRecent(ctx context.Context, limit int) ([]*models.Order, error)
	Delete(ctx context.Context, id string) error
	GetItems(ctx context.Context, orderID string) ([]*models.DeliveryItem, error)
}

type ICityStorage interface {
	GetAll(ctx context.Context) ([]*models.City, error)
	GetActive(ctx context.Context) ([]*models.City, error)
	GetByID(ctx context.Context, id string) (*models.City, error)
	Create(ctx context.Context, name string) (*models.City, error)
	SetDeliveryFee(ctx context.Context, id string, fee int) error
}

type IShopStorage interface {
	GetAll(ctx context.Context) ([]*models.Shop, error)
	GetByCity(ctx context.Context, cityID string) ([]*models.Shop, error)
	GetByID(ctx context.Context, id string) (*models.Shop, error)
}

type ISettingsStorage interface {
	Get(ctx context.Context) (*models.AppSettings, error)
	SetMarkup(ctx context.Context, percent int) (*models.AppSettings, error)
}

type ICatalogStorage interface {
	GetCategories(ctx context.Context, shopID string) ([]*models.Category, error)
	// GetProducts lists what a shop has in stock.
	GetProducts(ctx context.Context, shopID string) ([]*models.Product, error)
	// GetProductsByIDs returns the known products among ids, in stock or not.
	GetProductsByIDs(ctx context.Context, ids []string) ([]*models.Product, error)
}

// IOrderFeed delivers order row changes. Listen blocks until ctx is done,
// reconnecting on its own; events may arrive more than once.
type IOrderFeed interface {
	Listen(ctx context.Context, handle func(models.OrderEvent)) error
}
