package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"bombily/pkg/models"
	"bombily/storage"
)

type userRepo struct{ s *Store }

func (r userRepo) GetOrCreate(_ context.Context, teleID int64, name string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.TelegramID == teleID {
			c := u
			return &c, nil
		}
	}
	u := models.User{
		ID:         uuid.NewString(),
		TelegramID: teleID,
		Name:       name,
		Role:       models.RolePassenger,
		CreatedAt:  r.s.now(),
	}
	r.s.users[u.ID] = u
	return &u, nil
}

func (r userRepo) Get(_ context.Context, teleID int64) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.TelegramID == teleID {
			c := u
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetAll(_ context.Context, limit int) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		c := u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r userRepo) GetDriversByCity(_ context.Context, cityID string) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.User
	for _, u := range r.s.users {
		if u.Role == models.RoleDriver && u.CityID != nil && *u.CityID == cityID {
			c := u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r userRepo) update(id string, fn func(*models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	fn(&u)
	r.s.users[id] = u
	return nil
}

func (r userRepo) UpdateRole(_ context.Context, id string, role models.Role) error {
	return r.update(id, func(u *models.User) { u.Role = role })
}

func (r userRepo) UpdatePhone(_ context.Context, id string, phone string) error {
	return r.update(id, func(u *models.User) { u.Phone = &phone })
}

func (r userRepo) UpdateCity(_ context.Context, id string, cityID string) error {
	return r.update(id, func(u *models.User) { u.CityID = &cityID })
}

func (r userRepo) UpdateDriverProfile(_ context.Context, id string, profile models.DriverProfile) error {
	return r.update(id, func(u *models.User) { u.DriverProfile = profile })
}

type cityRepo struct{ s *Store }

func (r cityRepo) GetAll(_ context.Context) ([]*models.City, error) {
	return r.list(func(models.City) bool { return true }), nil
}

func (r cityRepo) GetActive(_ context.Context) ([]*models.City, error) {
	return r.list(func(c models.City) bool { return c.IsActive }), nil
}

func (r cityRepo) list(keep func(models.City) bool) []*models.City {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.City
	for _, c := range r.s.cities {
		if keep(c) {
			v := c
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r cityRepo) GetByID(_ context.Context, id string) (*models.City, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.cities[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (r cityRepo) Create(_ context.Context, name string) (*models.City, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := models.City{ID: uuid.NewString(), Name: name, IsActive: true, CreatedAt: r.s.now()}
	r.s.cities[c.ID] = c
	return &c, nil
}

func (r cityRepo) SetDeliveryFee(_ context.Context, id string, fee int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cities[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.DeliveryFee = fee
	r.s.cities[id] = c
	return nil
}

type shopRepo struct{ s *Store }

func (r shopRepo) GetAll(_ context.Context) ([]*models.Shop, error) {
	return r.list(func(models.Shop) bool { return true }), nil
}

func (r shopRepo) GetByCity(_ context.Context, cityID string) ([]*models.Shop, error) {
	return r.list(func(s models.Shop) bool { return s.CityID == cityID }), nil
}

func (r shopRepo) list(keep func(models.Shop) bool) []*models.Shop {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Shop
	for _, s := range r.s.shops {
		if keep(s) {
			v := s
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r shopRepo) GetByID(_ context.Context, id string) (*models.Shop, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	s, ok := r.s.shops[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

type settingsRepo struct{ s *Store }

func (r settingsRepo) Get(_ context.Context) (*models.AppSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v := r.s.settings
	return &v, nil
}

func (r settingsRepo) SetMarkup(_ context.Context, percent int) (*models.AppSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings.MarkupPercent = percent
	v := r.s.settings
	return &v, nil
}

type catalogRepo struct{ s *Store }

func (r catalogRepo) GetCategories(_ context.Context, shopID string) ([]*models.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Category
	for _, c := range r.s.categories {
		if c.ShopID == shopID {
			v := c
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r catalogRepo) GetProducts(_ context.Context, shopID string) ([]*models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Product
	for _, p := range r.s.products {
		if p.ShopID == shopID && p.InStock {
			v := p
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r catalogRepo) GetProductsByIDs(_ context.Context, ids []string) ([]*models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, &p)
		}
	}
	return out, nil
}
