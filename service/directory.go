package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"bombily/pkg/lifecycle"
	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/pkg/phone"
	"bombily/storage"
)

const (
	bootstrapOrders = 100
	bootstrapUsers  = 200

	MaxMarkupPercent = 1000
)

// Bootstrap is everything the admin views load at once.
type Bootstrap struct {
	Orders   []*models.Order     `json:"orders"`
	Users    []*models.User      `json:"users"`
	Cities   []*models.City      `json:"cities"`
	Shops    []*models.Shop      `json:"shops"`
	Settings *models.AppSettings `json:"settings"`
}

type Directory interface {
	Register(ctx context.Context, teleID int64, name string) (*models.User, error)
	User(ctx context.Context, teleID int64) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
	SetPhone(ctx context.Context, id, raw string) (string, error)
	SetCity(ctx context.Context, id, cityID string) error
	SetDriverProfile(ctx context.Context, id string, profile models.DriverProfile) error
	SetRole(ctx context.Context, actor lifecycle.Actor, id string, role models.Role) error
	Users(ctx context.Context, actor lifecycle.Actor, limit int) ([]*models.User, error)

	Cities(ctx context.Context) ([]*models.City, error)
	City(ctx context.Context, id string) (*models.City, error)
	CreateCity(ctx context.Context, actor lifecycle.Actor, name string) (*models.City, error)
	Shops(ctx context.Context, cityID string) ([]*models.Shop, error)
	Settings(ctx context.Context) (*models.AppSettings, error)
	SetMarkup(ctx context.Context, actor lifecycle.Actor, percent int) (*models.AppSettings, error)
	SetDeliveryFee(ctx context.Context, actor lifecycle.Actor, cityID string, fee int) (*models.City, error)
	Categories(ctx context.Context, shopID string) ([]*models.Category, error)
	Products(ctx context.Context, shopID string) ([]*models.Product, error)

	Bootstrap(ctx context.Context, actor lifecycle.Actor) (*Bootstrap, error)
}

type directory struct {
	stg     storage.IStorage
	adminID int64
	log     logger.ILogger
}

// NewDirectory promotes the telegram account adminID to admin on registration.
func NewDirectory(stg storage.IStorage, adminID int64, log logger.ILogger) Directory {
	return &directory{stg: stg, adminID: adminID, log: log}
}

func (d *directory) Register(ctx context.Context, teleID int64, name string) (*models.User, error) {
	user, err := d.stg.User().GetOrCreate(ctx, teleID, name)
	if err != nil {
		return nil, storageErr(err)
	}
	if d.adminID != 0 && teleID == d.adminID && user.Role != models.RoleAdmin {
		if err := d.stg.User().UpdateRole(ctx, user.ID, models.RoleAdmin); err != nil {
			return nil, storageErr(err)
		}
		user.Role = models.RoleAdmin
		d.log.Info("admin account promoted", logger.Int64("telegram_id", teleID))
	}
	return user, nil
}

func (d *directory) User(ctx context.Context, teleID int64) (*models.User, error) {
	u, err := d.stg.User().Get(ctx, teleID)
	if err != nil {
		return nil, storageErr(err)
	}
	return u, nil
}

func (d *directory) UserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := d.stg.User().GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return u, nil
}

// SetPhone stores raw in E.164 form and returns what was stored.
func (d *directory) SetPhone(ctx context.Context, id, raw string) (string, error) {
	formatted := phone.E164(raw)
	if len(formatted) < 8 {
		return "", ErrInvalidPhone
	}
	if err := d.stg.User().UpdatePhone(ctx, id, formatted); err != nil {
		return "", storageErr(err)
	}
	return formatted, nil
}

func (d *directory) SetCity(ctx context.Context, id, cityID string) error {
	city, err := d.stg.City().GetByID(ctx, cityID)
	if err != nil {
		return storageErr(err)
	}
	if !city.IsActive {
		return ErrNotFound
	}
	return storageErr(d.stg.User().UpdateCity(ctx, id, city.ID))
}

func (d *directory) SetDriverProfile(ctx context.Context, id string, profile models.DriverProfile) error {
	return storageErr(d.stg.User().UpdateDriverProfile(ctx, id, profile))
}

func (d *directory) SetRole(ctx context.Context, actor lifecycle.Actor, id string, role models.Role) error {
	if actor.Role != models.RoleAdmin {
		return ErrForbidden
	}
	switch role {
	case models.RolePassenger, models.RoleDriver, models.RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := d.stg.User().UpdateRole(ctx, id, role); err != nil {
		return storageErr(err)
	}
	d.log.Info("role changed", logger.String("user_id", id), logger.String("role", string(role)), logger.String("admin_id", actor.ID))
	return nil
}

func (d *directory) Users(ctx context.Context, actor lifecycle.Actor, limit int) ([]*models.User, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	users, err := d.stg.User().GetAll(ctx, limit)
	return users, storageErr(err)
}

func (d *directory) Cities(ctx context.Context) ([]*models.City, error) {
	cities, err := d.stg.City().GetActive(ctx)
	return cities, storageErr(err)
}

func (d *directory) City(ctx context.Context, id string) (*models.City, error) {
	c, err := d.stg.City().GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return c, nil
}

func (d *directory) CreateCity(ctx context.Context, actor lifecycle.Actor, name string) (*models.City, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: city name is required", ErrInvalidInput)
	}
	c, err := d.stg.City().Create(ctx, name)
	if err != nil {
		return nil, storageErr(err)
	}
	return c, nil
}

func (d *directory) Shops(ctx context.Context, cityID string) ([]*models.Shop, error) {
	shops, err := d.stg.Shop().GetByCity(ctx, cityID)
	return shops, storageErr(err)
}

func (d *directory) Settings(ctx context.Context) (*models.AppSettings, error) {
	s, err := d.stg.Settings().Get(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return s, nil
}

func (d *directory) SetMarkup(ctx context.Context, actor lifecycle.Actor, percent int) (*models.AppSettings, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if percent < 0 || percent > MaxMarkupPercent {
		return nil, fmt.Errorf("%w: markup must be between 0 and %d percent", ErrInvalidInput, MaxMarkupPercent)
	}
	s, err := d.stg.Settings().SetMarkup(ctx, percent)
	if err != nil {
		return nil, storageErr(err)
	}
	d.log.Info("markup changed", logger.Int("percent", percent), logger.String("admin_id", actor.ID))
	return s, nil
}

func (d *directory) SetDeliveryFee(ctx context.Context, actor lifecycle.Actor, cityID string, fee int) (*models.City, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if fee < 0 {
		return nil, fmt.Errorf("%w: delivery fee cannot be negative", ErrInvalidInput)
	}
	if err := d.stg.City().SetDeliveryFee(ctx, cityID, fee); err != nil {
		return nil, storageErr(err)
	}
	d.log.Info("delivery fee changed", logger.String("city_id", cityID), logger.Int("fee", fee), logger.String("admin_id", actor.ID))
	return d.City(ctx, cityID)
}

func (d *directory) Categories(ctx context.Context, shopID string) ([]*models.Category, error) {
	if _, err := d.stg.Shop().GetByID(ctx, shopID); err != nil {
		return nil, storageErr(err)
	}
	cats, err := d.stg.Catalog().GetCategories(ctx, shopID)
	return cats, storageErr(err)
}

// Products lists what the shop has in stock, at base prices.
func (d *directory) Products(ctx context.Context, shopID string) ([]*models.Product, error) {
	if _, err := d.stg.Shop().GetByID(ctx, shopID); err != nil {
		return nil, storageErr(err)
	}
	products, err := d.stg.Catalog().GetProducts(ctx, shopID)
	return products, storageErr(err)
}

// Bootstrap fetches the admin overview in parallel; the first failure wins.
func (d *directory) Bootstrap(ctx context.Context, actor lifecycle.Actor) (*Bootstrap, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	var b Bootstrap
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		b.Orders, err = d.stg.Order().GetRecent(ctx, bootstrapOrders)
		return err
	})
	g.Go(func() (err error) {
		b.Users, err = d.stg.User().GetAll(ctx, bootstrapUsers)
		return err
	})
	g.Go(func() (err error) {
		b.Cities, err = d.stg.City().GetAll(ctx)
		return err
	})
	g.Go(func() (err error) {
		b.Shops, err = d.stg.Shop().GetAll(ctx)
		return err
	})
	g.Go(func() (err error) {
		b.Settings, err = d.stg.Settings().Get(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		d.log.Error("admin bootstrap failed", logger.Error(err))
		return nil, storageErr(err)
	}
	return &b, nil
}
