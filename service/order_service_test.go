package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bombily/pkg/lifecycle"
	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/pkg/pricing"
	"bombily/pkg/schedule"
	"bombily/storage"
	"bombily/storage/memory"
)

var fixedNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	orders    OrderService
	city      *models.City
	passenger lifecycle.Actor
	driverA   lifecycle.Actor
	driverB   lifecycle.Actor
	admin     lifecycle.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	city, err := store.City().Create(ctx, "Ставрополь")
	if err != nil {
		t.Fatalf("create city: %v", err)
	}

	user := func(teleID int64, role models.Role) lifecycle.Actor {
		u, err := store.User().GetOrCreate(ctx, teleID, fmt.Sprintf("user-%d", teleID))
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if err := store.User().UpdateRole(ctx, u.ID, role); err != nil {
			t.Fatalf("set role: %v", err)
		}
		if err := store.User().UpdateCity(ctx, u.ID, city.ID); err != nil {
			t.Fatalf("set city: %v", err)
		}
		return lifecycle.Actor{ID: u.ID, Role: role}
	}

	return &fixture{
		store:     store,
		orders:    newOrders(store),
		city:      city,
		passenger: user(1, models.RolePassenger),
		driverA:   user(2, models.RoleDriver),
		driverB:   user(3, models.RoleDriver),
		admin:     user(4, models.RoleAdmin),
	}
}

func newOrders(stg storage.IStorage) OrderService {
	resolver := schedule.NewResolver(time.UTC, schedule.DefaultLeadTime)
	return NewOrderService(stg, resolver, func() time.Time { return fixedNow }, logger.NewNop())
}

func (f *fixture) taxi(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), CreateCommand{
		Actor:       f.passenger,
		Type:        models.OrderTaxi,
		CityID:      f.city.ID,
		FromAddress: "ул. Ленина, 1",
		ToAddress:   "вокзал",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.store.AddShop(models.Shop{Name: "Пекарня", CityID: f.city.ID})
	bread := f.store.AddProduct(models.Product{ShopID: shop.ID, Name: "Хлеб", Price: 50, InStock: true})
	cart := []pricing.Line{{ProductID: bread.ID, Quantity: 2}}

	cases := []struct {
		name string
		cmd  CreateCommand
		err  error
	}{
		{
			name: "taxi",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: "a", ToAddress: "b"},
		},
		{
			name: "delivery takes the shop name as pickup",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderDelivery, CityID: f.city.ID, ShopID: shop.ID, ToAddress: "b", Items: cart},
		},
		{
			name: "delivery with an empty cart",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderDelivery, CityID: f.city.ID, ShopID: shop.ID, ToAddress: "b"},
			err:  pricing.ErrEmptyCart,
		},
		{
			name: "items on a taxi order",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: "a", ToAddress: "b", Items: cart},
			err:  ErrInvalidOrder,
		},
		{
			name: "no requester",
			cmd:  CreateCommand{Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: "a", ToAddress: "b"},
			err:  ErrInvalidOrder,
		},
		{
			name: "unknown type",
			cmd:  CreateCommand{Actor: f.passenger, Type: "boat", CityID: f.city.ID, FromAddress: "a", ToAddress: "b"},
			err:  ErrInvalidOrder,
		},
		{
			name: "unknown city",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: "nowhere", FromAddress: "a", ToAddress: "b"},
			err:  ErrInvalidOrder,
		},
		{
			name: "blank destination",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderCargo, CityID: f.city.ID, FromAddress: "a", ToAddress: "  "},
			err:  ErrInvalidOrder,
		},
		{
			name: "shop on a taxi order",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, ShopID: shop.ID, FromAddress: "a", ToAddress: "b"},
			err:  ErrInvalidOrder,
		},
		{
			name: "delivery without shop",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderDelivery, CityID: f.city.ID, FromAddress: "a", ToAddress: "b"},
			err:  ErrInvalidOrder,
		},
		{
			name: "comment at the limit counts characters, not bytes",
			cmd: CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: "a", ToAddress: "b",
				Comment: strings.Repeat("я", MaxCommentLength)},
		},
		{
			name: "comment too long",
			cmd: CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: "a", ToAddress: "b",
				Comment: strings.Repeat("я", MaxCommentLength+1)},
			err: ErrInvalidOrder,
		},
		{
			name: "address too long",
			cmd:  CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: strings.Repeat("a", MaxAddressLength+1), ToAddress: "b"},
			err:  ErrInvalidOrder,
		},
		{
			name: "schedule too soon",
			cmd: CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: "a", ToAddress: "b",
				Schedule: &schedule.Input{Day: "today", Hour: "11", Minute: "0"}},
			err: schedule.ErrLeadTimeTooShort,
		},
		{
			name: "schedule with bad minute",
			cmd: CreateCommand{Actor: f.passenger, Type: models.OrderTaxi, CityID: f.city.ID, FromAddress: "a", ToAddress: "b",
				Schedule: &schedule.Input{Day: "today", Hour: "15", Minute: "75"}},
			err: schedule.ErrInvalidTimeComponent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := f.orders.Create(ctx, tc.cmd)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if o.Status != models.StatusPending || o.DriverID != nil || o.ID == "" {
				t.Fatalf("bad new order: %+v", o)
			}
			if o.FromAddress == "" {
				t.Fatal("pickup address not set")
			}
		})
	}
}

func TestCreateScheduled(t *testing.T) {
	f := newFixture(t)
	o, err := f.orders.Create(context.Background(), CreateCommand{
		Actor:       f.passenger,
		Type:        models.OrderTaxi,
		CityID:      f.city.ID,
		FromAddress: "a",
		ToAddress:   "b",
		Schedule:    &schedule.Input{Day: "today", Hour: "13", Minute: "01"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := time.Date(2024, 1, 1, 13, 1, 0, 0, time.UTC)
	if o.ScheduledTime == nil || !o.ScheduledTime.Equal(want) {
		t.Fatalf("scheduled %v, want %v", o.ScheduledTime, want)
	}
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.taxi(t)

	steps := []struct {
		run  func(context.Context, TransitionCommand) (*models.Order, error)
		by   lifecycle.Actor
		want models.OrderStatus
	}{
		{f.orders.Accept, f.driverA, models.StatusAccepted},
		{f.orders.Start, f.driverA, models.StatusEnRoute},
		{f.orders.Arrive, f.driverA, models.StatusArrived},
		{f.orders.Ready, f.passenger, models.StatusPassengerOnWay},
		{f.orders.Complete, f.driverA, models.StatusCompleted},
	}
	for _, step := range steps {
		got, err := step.run(ctx, TransitionCommand{OrderID: o.ID, Actor: step.by})
		if err != nil {
			t.Fatalf("to %s: %v", step.want, err)
		}
		if got.Status != step.want {
			t.Fatalf("got %s, want %s", got.Status, step.want)
		}
	}

	stored, _ := f.orders.Get(ctx, o.ID)
	if stored.Status != models.StatusCompleted || !stored.PassengerConfirmed || !stored.HasDriver(f.driverA.ID) {
		t.Fatalf("stored order: %+v", stored)
	}

	if _, err := f.orders.Cancel(ctx, TransitionCommand{OrderID: o.ID, Actor: f.passenger}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel after complete: %v", err)
	}
}

func TestAcceptThenOtherDriverStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.taxi(t)

	accepted, err := f.orders.Accept(ctx, TransitionCommand{OrderID: o.ID, Actor: f.driverA})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != models.StatusAccepted || !accepted.HasDriver(f.driverA.ID) {
		t.Fatalf("accepted order: %+v", accepted)
	}

	if _, err := f.orders.Start(ctx, TransitionCommand{OrderID: o.ID, Actor: f.driverB}); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
	if _, err := f.orders.Accept(ctx, TransitionCommand{OrderID: o.ID, Actor: f.driverB}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	stored, _ := f.orders.Get(ctx, o.ID)
	if stored.Status != models.StatusAccepted || !stored.HasDriver(f.driverA.ID) {
		t.Fatalf("rejected transitions changed the order: %+v", stored)
	}
}

func TestCancelByPassengerClearsDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.taxi(t)

	if _, err := f.orders.Accept(ctx, TransitionCommand{OrderID: o.ID, Actor: f.driverA}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, err := f.orders.Cancel(ctx, TransitionCommand{OrderID: o.ID, Actor: f.passenger})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != models.StatusCancelled || got.DriverID != nil {
		t.Fatalf("cancelled order: %+v", got)
	}
	if got.UpdatedBy == nil || *got.UpdatedBy != f.passenger.ID {
		t.Fatalf("updated_by: %v", got.UpdatedBy)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.taxi(t)

	const drivers = 16
	var wg sync.WaitGroup
	errs := make(chan error, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := lifecycle.Actor{ID: fmt.Sprintf("driver-%d", i), Role: models.RoleDriver}
			_, err := f.orders.Accept(ctx, TransitionCommand{OrderID: o.ID, Actor: actor})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	winners := 0
	for err := range errs {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, ErrStaleTransition) && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

// racingOrders lets a competing writer move the order between the read and
// the conditional write.
type racingOrders struct {
	storage.IOrderStorage
	before func()
	fail   error
}

func (r *racingOrders) UpdateStatus(ctx context.Context, id string, change lifecycle.Change) (bool, error) {
	if r.fail != nil {
		return false, r.fail
	}
	if r.before != nil {
		r.before()
		r.before = nil
	}
	return r.IOrderStorage.UpdateStatus(ctx, id, change)
}

type wrappedStore struct {
	*memory.Store
	orders storage.IOrderStorage
}

func (w wrappedStore) Order() storage.IOrderStorage { return w.orders }

func TestStaleTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.taxi(t)

	racing := &racingOrders{IOrderStorage: f.store.Order()}
	racing.before = func() {
		cancel := lifecycle.Change{Event: lifecycle.EventCancel, From: models.StatusPending, To: models.StatusCancelled, Actor: f.passenger}
		if ok, err := f.store.Order().UpdateStatus(ctx, o.ID, cancel); !ok || err != nil {
			t.Errorf("competing cancel: %v %v", ok, err)
		}
	}
	svc := newOrders(wrappedStore{Store: f.store, orders: racing})

	if _, err := svc.Accept(ctx, TransitionCommand{OrderID: o.ID, Actor: f.driverA}); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	stored, _ := f.orders.Get(ctx, o.ID)
	if stored.Status != models.StatusCancelled || stored.DriverID != nil {
		t.Fatalf("stale accept overwrote the order: %+v", stored)
	}
}

func TestStorageFailureLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.taxi(t)

	failing := &racingOrders{IOrderStorage: f.store.Order(), fail: errors.New("connection refused")}
	svc := newOrders(wrappedStore{Store: f.store, orders: failing})

	if _, err := svc.Accept(ctx, TransitionCommand{OrderID: o.ID, Actor: f.driverA}); !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
	stored, _ := f.orders.Get(ctx, o.ID)
	if stored.Status != models.StatusPending || stored.DriverID != nil {
		t.Fatalf("order changed: %+v", stored)
	}
}

func TestTransitionUnknownOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orders.Accept(context.Background(), TransitionCommand{OrderID: "missing", Actor: f.driverA}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.taxi(t)
	second := f.taxi(t)

	if _, err := f.orders.Accept(ctx, TransitionCommand{OrderID: first.ID, Actor: f.driverA}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	available, err := f.orders.ListAvailable(ctx, f.city.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(available) != 1 || available[0].ID != second.ID {
		t.Fatalf("available: %+v", available)
	}

	mine, _ := f.orders.ListByDriver(ctx, f.driverA.ID)
	if len(mine) != 1 || mine[0].ID != first.ID {
		t.Fatalf("driver orders: %+v", mine)
	}

	if _, err := f.orders.Cancel(ctx, TransitionCommand{OrderID: second.ID, Actor: f.passenger}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	active, _ := f.orders.ActiveByRequester(ctx, f.passenger.ID)
	if len(active) != 1 || active[0].ID != first.ID {
		t.Fatalf("active: %+v", active)
	}
	all, _ := f.orders.ListByRequester(ctx, f.passenger.ID)
	if len(all) != 2 {
		t.Fatalf("requester orders: %d", len(all))
	}
}

func TestAdminDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.taxi(t)

	if err := f.orders.AdminDelete(ctx, f.driverA, o.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.orders.AdminDelete(ctx, f.admin, o.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.orders.Get(ctx, o.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.orders.AdminDelete(ctx, f.admin, o.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDeliveryPricing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.store.AddShop(models.Shop{Name: "Пекарня", CityID: f.city.ID})
	other := f.store.AddShop(models.Shop{Name: "Сыроварня", CityID: f.city.ID})
	bread := f.store.AddProduct(models.Product{ShopID: shop.ID, Name: "Хлеб", Price: 50, InStock: true})
	milk := f.store.AddProduct(models.Product{ShopID: shop.ID, Name: "Молоко", Price: 80, InStock: true})
	kvass := f.store.AddProduct(models.Product{ShopID: shop.ID, Name: "Квас", Price: 70})
	cheese := f.store.AddProduct(models.Product{ShopID: other.ID, Name: "Сыр", Price: 300, InStock: true})

	dir := NewDirectory(f.store, 0, logger.NewNop())
	if _, err := dir.SetMarkup(ctx, f.admin, 15); err != nil {
		t.Fatalf("markup: %v", err)
	}
	if _, err := dir.SetDeliveryFee(ctx, f.admin, f.city.ID, 150); err != nil {
		t.Fatalf("fee: %v", err)
	}

	cmd := CreateCommand{
		Actor:     f.passenger,
		Type:      models.OrderDelivery,
		CityID:    f.city.ID,
		ShopID:    shop.ID,
		ToAddress: "ул. Мира, 5",
		Items:     []pricing.Line{{ProductID: bread.ID, Quantity: 3}, {ProductID: milk.ID, Quantity: 1}},
	}
	q, err := f.orders.Quote(ctx, cmd)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// ceil(50*1.15)=58, ceil(80*1.15)=92
	if q.ItemsTotal != 58*3+92 || q.DeliveryFee != 150 || q.Total != 58*3+92+150 {
		t.Fatalf("quote: %+v", q)
	}

	o, err := f.orders.Create(ctx, cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	items, err := f.orders.Items(ctx, f.passenger, o.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 2 || items[0].UnitPrice != 58 || items[0].Quantity != 3 || items[1].UnitPrice != 92 {
		t.Fatalf("stored items: %+v", items)
	}

	rejected := []struct {
		name  string
		lines []pricing.Line
		want  error
	}{
		{"out of stock", []pricing.Line{{ProductID: kvass.ID, Quantity: 1}}, pricing.ErrOutOfStock},
		{"other shop", []pricing.Line{{ProductID: cheese.ID, Quantity: 1}}, pricing.ErrWrongShop},
		{"unknown product", []pricing.Line{{ProductID: "missing", Quantity: 1}}, pricing.ErrUnknownProduct},
		{"negative quantity", []pricing.Line{{ProductID: bread.ID, Quantity: -1}}, pricing.ErrBadQuantity},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			bad := cmd
			bad.Items = tc.lines
			_, err := f.orders.Create(ctx, bad)
			if !errors.Is(err, tc.want) || !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestItemsVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.store.AddShop(models.Shop{Name: "Пекарня", CityID: f.city.ID})
	bread := f.store.AddProduct(models.Product{ShopID: shop.ID, Name: "Хлеб", Price: 50, InStock: true})
	o, err := f.orders.Create(ctx, CreateCommand{
		Actor: f.passenger, Type: models.OrderDelivery, CityID: f.city.ID, ShopID: shop.ID, ToAddress: "b",
		Items: []pricing.Line{{ProductID: bread.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stranger := lifecycle.Actor{ID: "someone", Role: models.RolePassenger}
	if _, err := f.orders.Items(ctx, stranger, o.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger: %v", err)
	}
	// an unassigned order is open to every driver
	if _, err := f.orders.Items(ctx, f.driverB, o.ID); err != nil {
		t.Fatalf("driver before accept: %v", err)
	}
	if _, err := f.orders.Accept(ctx, TransitionCommand{OrderID: o.ID, Actor: f.driverA}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.orders.Items(ctx, f.driverB, o.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other driver after accept: %v", err)
	}
	for _, actor := range []lifecycle.Actor{f.passenger, f.driverA, f.admin} {
		if _, err := f.orders.Items(ctx, actor, o.ID); err != nil {
			t.Fatalf("%s: %v", actor.Role, err)
		}
	}
	if _, err := f.orders.Items(ctx, f.admin, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing order: %v", err)
	}
}

type limitSpy struct {
	storage.IOrderStorage
	got []int
}

func (s *limitSpy) GetRecent(ctx context.Context, limit int) ([]*models.Order, error) {
	s.got = append(s.got, limit)
	return s.IOrderStorage.GetRecent(ctx, limit)
}

func TestListRecentClampsLimit(t *testing.T) {
	store := memory.New()
	spy := &limitSpy{IOrderStorage: store.Order()}
	orders := newOrders(wrappedStore{Store: store, orders: spy})
	admin := lifecycle.Actor{ID: "a", Role: models.RoleAdmin}

	cases := []struct{ in, want int }{
		{0, DefaultRecentLimit},
		{-5, DefaultRecentLimit},
		{20, 20},
		{MaxRecentLimit + 1, MaxRecentLimit},
	}
	for _, tc := range cases {
		if _, err := orders.ListRecent(context.Background(), admin, tc.in); err != nil {
			t.Fatalf("limit %d: %v", tc.in, err)
		}
		if last := spy.got[len(spy.got)-1]; last != tc.want {
			t.Errorf("limit %d reached storage as %d, want %d", tc.in, last, tc.want)
		}
	}
}
