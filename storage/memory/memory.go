// Package memory keeps every table in process. It backs STORAGE_DRIVER=memory
// and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bombily/pkg/lifecycle"
	"bombily/pkg/models"
	"bombily/storage"
)

type Store struct {
	mu         sync.RWMutex
	orders     map[string]models.Order
	items      map[string][]models.DeliveryItem
	users      map[string]models.User
	cities     map[string]models.City
	shops      map[string]models.Shop
	categories map[string]models.Category
	products   map[string]models.Product
	settings   models.AppSettings

	// pubMu is taken before mu is released so events leave in write order.
	pubMu sync.Mutex
	feed  *feed
	now   func() time.Time
}

func New() *Store {
	return &Store{
		orders:     make(map[string]models.Order),
		items:      make(map[string][]models.DeliveryItem),
		users:      make(map[string]models.User),
		cities:     make(map[string]models.City),
		shops:      make(map[string]models.Shop),
		categories: make(map[string]models.Category),
		products:   make(map[string]models.Product),
		settings:   models.AppSettings{ID: 1},
		feed:       newFeed(),
		now:        time.Now,
	}
}

func (s *Store) User() storage.IUserStorage         { return userRepo{s} }
func (s *Store) Order() storage.IOrderStorage       { return orderRepo{s} }
func (s *Store) City() storage.ICityStorage         { return cityRepo{s} }
func (s *Store) Shop() storage.IShopStorage         { return shopRepo{s} }
func (s *Store) Settings() storage.ISettingsStorage { return settingsRepo{s} }
func (s *Store) Catalog() storage.ICatalogStorage   { return catalogRepo{s} }
func (s *Store) Feed() storage.IOrderFeed           { return s.feed }
func (s *Store) Close()                             { s.feed.close() }

// commit must be called with mu held; it releases mu and publishes ev before
// any later write can publish.
func (s *Store) commit(ev models.OrderEvent) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Unlock()
	s.feed.publish(ev)
}

// AddShop seeds a shop; there is no shop management flow.
func (s *Store) AddShop(shop models.Shop) models.Shop {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = s.now()
	}
	s.shops[shop.ID] = shop
	return shop
}

func (s *Store) AddCategory(c models.Category) models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.categories[c.ID] = c
	return c
}

// AddProduct seeds the catalogue; products are managed outside this service.
func (s *Store) AddProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.products[p.ID] = p
	return p
}

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, order *models.Order, items ...models.DeliveryItem) (*models.Order, error) {
	r.s.mu.Lock()
	o := *order
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := r.s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	if o.UpdatedBy == nil {
		by := o.UserID
		o.UpdatedBy = &by
	}
	r.s.orders[o.ID] = o
	if len(items) > 0 {
		stored := make([]models.DeliveryItem, len(items))
		for i, it := range items {
			it.ID = uuid.NewString()
			it.OrderID = o.ID
			it.CreatedAt = now
			stored[i] = it
		}
		r.s.items[o.ID] = stored
	}
	r.s.commit(models.OrderEvent{Type: models.EventInsert, New: copyOrder(o)})

	*order = o
	return copyOrder(o), nil
}

func (r orderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyOrder(o), nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id string, change lifecycle.Change) (bool, error) {
	r.s.mu.Lock()
	old, ok := r.s.orders[id]
	if !ok {
		r.s.mu.Unlock()
		return false, storage.ErrNotFound
	}
	if old.Status != change.From {
		r.s.mu.Unlock()
		return false, nil
	}
	if change.Event == lifecycle.EventAccept && old.DriverID != nil {
		r.s.mu.Unlock()
		return false, nil
	}
	if change.At.IsZero() {
		change.At = r.s.now()
	}
	cur := lifecycle.Apply(*copyOrder(old), change)
	r.s.orders[id] = cur
	r.s.commit(models.OrderEvent{Type: models.EventUpdate, Old: copyOrder(old), New: copyOrder(cur)})
	return true, nil
}

func (r orderRepo) GetAvailable(_ context.Context, cityID string) ([]*models.Order, error) {
	return r.filter(func(o models.Order) bool {
		return o.Status == models.StatusPending && o.DriverID == nil && o.InCity(cityID)
	}, 0), nil
}

func (r orderRepo) GetDriverOrders(_ context.Context, driverID string) ([]*models.Order, error) {
	return r.filter(func(o models.Order) bool { return o.HasDriver(driverID) }, 0), nil
}

func (r orderRepo) GetClientOrders(_ context.Context, userID string) ([]*models.Order, error) {
	return r.filter(func(o models.Order) bool { return o.UserID == userID }, 0), nil
}

func (r orderRepo) GetRecent(_ context.Context, limit int) ([]*models.Order, error) {
	return r.filter(func(models.Order) bool { return true }, limit), nil
}

func (r orderRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	old, ok := r.s.orders[id]
	if !ok {
		r.s.mu.Unlock()
		return storage.ErrNotFound
	}
	delete(r.s.orders, id)
	delete(r.s.items, id)
	r.s.commit(models.OrderEvent{Type: models.EventDelete, Old: copyOrder(old)})
	return nil
}

func (r orderRepo) GetItems(_ context.Context, orderID string) ([]*models.DeliveryItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.orders[orderID]; !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]*models.DeliveryItem, 0, len(r.s.items[orderID]))
	for _, it := range r.s.items[orderID] {
		c := it
		out = append(out, &c)
	}
	return out, nil
}

// filter returns matches newest first.
func (r orderRepo) filter(keep func(models.Order) bool, limit int) []*models.Order {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.Order
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyOrder(o models.Order) *models.Order {
	c := o
	c.DriverID = copyString(o.DriverID)
	c.CityID = copyString(o.CityID)
	c.ShopID = copyString(o.ShopID)
	c.UpdatedBy = copyString(o.UpdatedBy)
	if o.ScheduledTime != nil {
		t := *o.ScheduledTime
		c.ScheduledTime = &t
	}
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
