package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"bombily/pkg/lifecycle"
	"bombily/pkg/logger"
	"bombily/pkg/metrics"
	"bombily/pkg/models"
	"bombily/pkg/pricing"
	"bombily/pkg/schedule"
	"bombily/storage"
)

const (
	MaxAddressLength = 300
	MaxCommentLength = 1000

	DefaultRecentLimit = 100
	MaxRecentLimit     = 500
)

// CreateCommand is a requester's new order. A nil Schedule means "now".
type CreateCommand struct {
	Actor       lifecycle.Actor
	Type        models.OrderType
	CityID      string
	ShopID      string
	FromAddress string
	ToAddress   string
	Comment     string
	Schedule    *schedule.Input
	// Items is the delivery cart; other order types take none.
	Items []pricing.Line
}

type TransitionCommand struct {
	OrderID string
	Actor   lifecycle.Actor
}

type OrderService interface {
	Create(ctx context.Context, cmd CreateCommand) (*models.Order, error)
	Quote(ctx context.Context, cmd CreateCommand) (*pricing.Quote, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	Items(ctx context.Context, actor lifecycle.Actor, id string) ([]*models.DeliveryItem, error)

	Accept(ctx context.Context, cmd TransitionCommand) (*models.Order, error)
	Start(ctx context.Context, cmd TransitionCommand) (*models.Order, error)
	Arrive(ctx context.Context, cmd TransitionCommand) (*models.Order, error)
	Ready(ctx context.Context, cmd TransitionCommand) (*models.Order, error)
	Complete(ctx context.Context, cmd TransitionCommand) (*models.Order, error)
	Cancel(ctx context.Context, cmd TransitionCommand) (*models.Order, error)
	Transition(ctx context.Context, ev lifecycle.Event, cmd TransitionCommand) (*models.Order, error)

	ListAvailable(ctx context.Context, cityID string) ([]*models.Order, error)
	ListByDriver(ctx context.Context, driverID string) ([]*models.Order, error)
	ListByRequester(ctx context.Context, userID string) ([]*models.Order, error)
	ActiveByRequester(ctx context.Context, userID string) ([]*models.Order, error)
	ListRecent(ctx context.Context, actor lifecycle.Actor, limit int) ([]*models.Order, error)

	AdminDelete(ctx context.Context, actor lifecycle.Actor, id string) error
}

type orderService struct {
	stg      storage.IStorage
	resolver *schedule.Resolver
	now      func() time.Time
	log      logger.ILogger
}

func NewOrderService(stg storage.IStorage, resolver *schedule.Resolver, now func() time.Time, log logger.ILogger) OrderService {
	if now == nil {
		now = time.Now
	}
	return &orderService{
		stg:      stg,
		resolver: resolver,
		now:      now,
		log:      log,
	}
}

func (s *orderService) Create(ctx context.Context, cmd CreateCommand) (*models.Order, error) {
	if cmd.Actor.ID == "" {
		return nil, invalidOrder("requester is required")
	}
	if !cmd.Type.Valid() {
		return nil, invalidOrder("unknown order type")
	}
	if cmd.CityID == "" {
		return nil, invalidOrder("city is required")
	}
	city, err := s.city(ctx, cmd.CityID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:      cmd.Actor.ID,
		CityID:      &city.ID,
		Type:        cmd.Type,
		FromAddress: strings.TrimSpace(cmd.FromAddress),
		ToAddress:   strings.TrimSpace(cmd.ToAddress),
		Comment:     strings.TrimSpace(cmd.Comment),
		Status:      models.StatusPending,
	}

	var quote *pricing.Quote
	switch {
	case cmd.Type == models.OrderDelivery:
		shop, err := s.shop(ctx, city, cmd.ShopID)
		if err != nil {
			return nil, err
		}
		if quote, err = s.price(ctx, city, shop, cmd.Items); err != nil {
			return nil, err
		}
		order.ShopID = &shop.ID
		if order.FromAddress == "" {
			order.FromAddress = shop.Name
		}
	case cmd.ShopID != "":
		return nil, invalidOrder("only delivery orders take a shop")
	case len(cmd.Items) > 0:
		return nil, invalidOrder("only delivery orders take items")
	}

	if order.FromAddress == "" {
		return nil, invalidOrder("from address is required")
	}
	if order.ToAddress == "" {
		return nil, invalidOrder("to address is required")
	}
	if utf8.RuneCountInString(order.FromAddress) > MaxAddressLength || utf8.RuneCountInString(order.ToAddress) > MaxAddressLength {
		return nil, invalidOrder(fmt.Sprintf("addresses are limited to %d characters", MaxAddressLength))
	}
	if utf8.RuneCountInString(order.Comment) > MaxCommentLength {
		return nil, invalidOrder(fmt.Sprintf("comment is limited to %d characters", MaxCommentLength))
	}

	if cmd.Schedule != nil {
		at, err := s.resolver.ResolveInput(*cmd.Schedule, s.now())
		if err != nil {
			return nil, err
		}
		order.ScheduledTime = &at
	}

	var items []models.DeliveryItem
	if quote != nil {
		items = quote.Items()
	}
	created, err := s.stg.Order().Create(ctx, order, items...)
	if err != nil {
		s.log.Error("failed to create order", logger.String("user_id", cmd.Actor.ID), logger.Error(err))
		return nil, storageErr(err)
	}
	metrics.OrdersCreatedTotal.WithLabelValues(string(created.Type)).Inc()
	s.log.Info("order created", logger.String("order_id", created.ID), logger.String("type", string(created.Type)))
	return created, nil
}

// Quote prices a delivery cart without placing the order.
func (s *orderService) Quote(ctx context.Context, cmd CreateCommand) (*pricing.Quote, error) {
	if cmd.CityID == "" {
		return nil, invalidOrder("city is required")
	}
	city, err := s.city(ctx, cmd.CityID)
	if err != nil {
		return nil, err
	}
	shop, err := s.shop(ctx, city, cmd.ShopID)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, city, shop, cmd.Items)
}

func (s *orderService) city(ctx context.Context, id string) (*models.City, error) {
	city, err := s.stg.City().GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !city.IsActive) {
		return nil, invalidOrder("unknown city")
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return city, nil
}

func (s *orderService) shop(ctx context.Context, city *models.City, id string) (*models.Shop, error) {
	if id == "" {
		return nil, invalidOrder("delivery needs a shop")
	}
	shop, err := s.stg.Shop().GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && shop.CityID != city.ID) {
		return nil, invalidOrder("unknown shop")
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return shop, nil
}

// price applies the current markup to every line and adds the city's
// delivery fee.
func (s *orderService) price(ctx context.Context, city *models.City, shop *models.Shop, lines []pricing.Line) (*pricing.Quote, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, pricing.ErrEmptyCart)
	}
	settings, err := s.stg.Settings().Get(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	products, err := s.stg.Catalog().GetProductsByIDs(ctx, pricing.ProductIDs(lines))
	if err != nil {
		return nil, storageErr(err)
	}
	q, err := pricing.Build(shop.ID, lines, products, settings.MarkupPercent, city.DeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	return q, nil
}

func (s *orderService) Get(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.stg.Order().GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return o, nil
}

// Items lists a delivery order's cart to the requester, its driver, drivers
// who could still take it, and admins.
func (s *orderService) Items(ctx context.Context, actor lifecycle.Actor, id string) ([]*models.DeliveryItem, error) {
	o, err := s.stg.Order().GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if !canSeeOrder(actor, o) {
		return nil, ErrForbidden
	}
	items, err := s.stg.Order().GetItems(ctx, id)
	return items, storageErr(err)
}

func canSeeOrder(actor lifecycle.Actor, o *models.Order) bool {
	switch {
	case actor.Role == models.RoleAdmin, o.UserID == actor.ID, o.HasDriver(actor.ID):
		return true
	case actor.Role == models.RoleDriver:
		return o.Status == models.StatusPending && o.DriverID == nil
	}
	return false
}

func (s *orderService) Accept(ctx context.Context, cmd TransitionCommand) (*models.Order, error) {
	return s.Transition(ctx, lifecycle.EventAccept, cmd)
}

func (s *orderService) Start(ctx context.Context, cmd TransitionCommand) (*models.Order, error) {
	return s.Transition(ctx, lifecycle.EventStart, cmd)
}

func (s *orderService) Arrive(ctx context.Context, cmd TransitionCommand) (*models.Order, error) {
	return s.Transition(ctx, lifecycle.EventArrive, cmd)
}

func (s *orderService) Ready(ctx context.Context, cmd TransitionCommand) (*models.Order, error) {
	return s.Transition(ctx, lifecycle.EventReady, cmd)
}

func (s *orderService) Complete(ctx context.Context, cmd TransitionCommand) (*models.Order, error) {
	return s.Transition(ctx, lifecycle.EventComplete, cmd)
}

func (s *orderService) Cancel(ctx context.Context, cmd TransitionCommand) (*models.Order, error) {
	return s.Transition(ctx, lifecycle.EventCancel, cmd)
}

// Transition loads the order, validates ev and writes it as a conditional
// update keyed on the status that was read. Nothing is written on failure.
func (s *orderService) Transition(ctx context.Context, ev lifecycle.Event, cmd TransitionCommand) (*models.Order, error) {
	log := s.log.With(logger.String("order_id", cmd.OrderID), logger.String("event", string(ev)), logger.String("actor_id", cmd.Actor.ID))

	o, err := s.stg.Order().GetByID(ctx, cmd.OrderID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Error("failed to load order", logger.Error(err))
		}
		metrics.TransitionsTotal.WithLabelValues(string(ev), "error").Inc()
		return nil, storageErr(err)
	}

	change, err := lifecycle.Plan(*o, ev, cmd.Actor, s.now().UTC())
	if err != nil {
		log.Warning("transition rejected", logger.String("status", string(o.Status)), logger.Error(err))
		metrics.TransitionsTotal.WithLabelValues(string(ev), "rejected").Inc()
		return nil, err
	}

	applied, err := s.stg.Order().UpdateStatus(ctx, o.ID, change)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Error("failed to update order", logger.Error(err))
		}
		metrics.TransitionsTotal.WithLabelValues(string(ev), "error").Inc()
		return nil, storageErr(err)
	}
	if !applied {
		log.Warning("transition lost a race", logger.String("expected", string(change.From)))
		metrics.TransitionsTotal.WithLabelValues(string(ev), "stale").Inc()
		return nil, ErrStaleTransition
	}

	metrics.TransitionsTotal.WithLabelValues(string(ev), "applied").Inc()
	log.Info("order transitioned", logger.String("from", string(change.From)), logger.String("to", string(change.To)))

	updated := lifecycle.Apply(*o, change)
	return &updated, nil
}

func (s *orderService) ListAvailable(ctx context.Context, cityID string) ([]*models.Order, error) {
	orders, err := s.stg.Order().GetAvailable(ctx, cityID)
	return orders, storageErr(err)
}

func (s *orderService) ListByDriver(ctx context.Context, driverID string) ([]*models.Order, error) {
	orders, err := s.stg.Order().GetDriverOrders(ctx, driverID)
	return orders, storageErr(err)
}

func (s *orderService) ListByRequester(ctx context.Context, userID string) ([]*models.Order, error) {
	orders, err := s.stg.Order().GetClientOrders(ctx, userID)
	return orders, storageErr(err)
}

// ActiveByRequester returns the requester's orders that can still change.
func (s *orderService) ActiveByRequester(ctx context.Context, userID string) ([]*models.Order, error) {
	orders, err := s.stg.Order().GetClientOrders(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	active := orders[:0]
	for _, o := range orders {
		if !lifecycle.IsTerminal(o.Status) {
			active = append(active, o)
		}
	}
	return active, nil
}

func (s *orderService) ListRecent(ctx context.Context, actor lifecycle.Actor, limit int) ([]*models.Order, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	orders, err := s.stg.Order().GetRecent(ctx, limit)
	return orders, storageErr(err)
}

// AdminDelete removes an order in any status. It is an override, not a
// lifecycle transition.
func (s *orderService) AdminDelete(ctx context.Context, actor lifecycle.Actor, id string) error {
	if actor.Role != models.RoleAdmin {
		return ErrForbidden
	}
	if err := s.stg.Order().Delete(ctx, id); err != nil {
		return storageErr(err)
	}
	s.log.Info("order deleted by admin", logger.String("order_id", id), logger.String("admin_id", actor.ID))
	return nil
}
