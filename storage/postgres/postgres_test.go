package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bombily/pkg/lifecycle"
	"bombily/pkg/logger"
	"bombily/pkg/models"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, ev models.OrderEvent)
	}{
		{
			name: "slim update",
			payload: `{"type":"UPDATE",
				"old":{"id":"o1","user_id":"p","driver_id":null,"status":"pending","updated_at":"2024-01-01T10:00:00+00:00"},
				"new":{"id":"o1","user_id":"p","driver_id":"d","status":"accepted","updated_at":"2024-01-01T10:01:00.5+00:00"}}`,
			check: func(t *testing.T, ev models.OrderEvent) {
				if ev.Old.Status != models.StatusPending || ev.New.Status != models.StatusAccepted || !ev.New.HasDriver("d") {
					t.Fatalf("decoded %+v / %+v", ev.Old, ev.New)
				}
			},
		},
		{
			name:    "delete",
			payload: `{"type":"DELETE","old":{"id":"o1","status":"cancelled"},"new":null}`,
			check: func(t *testing.T, ev models.OrderEvent) {
				if ev.New != nil || ev.Order().ID != "o1" {
					t.Fatalf("decoded %+v", ev)
				}
			},
		},
		{name: "no images", payload: `{"type":"UPDATE","old":null,"new":null}`, wantErr: true},
		{name: "garbage", payload: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeEvent(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestMigrationsDirWalksUp(t *testing.T) {
	cwd, _ := os.Getwd()
	dir := migrationsDir(cwd)
	if _, err := os.Stat(dir + "/000001_init.up.sql"); err != nil {
		t.Fatalf("migrations not found from %s: %s", cwd, dir)
	}
}

type pgEnv struct {
	pool   *pgxpool.Pool
	url    string
	orders *orderRepo
	userID string
	driver string
	other  string
	cityID string
}

func setupPostgres(t *testing.T) *pgEnv {
	t.Helper()
	url := os.Getenv("BOMBILY_POSTGRES_URL")
	if url == "" {
		t.Skip("BOMBILY_POSTGRES_URL not set; skipping integration test")
	}
	ctx := context.Background()
	log := logger.NewNop()

	if err := Migrate(url, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	stamp := time.Now().UnixNano()
	users := NewUserRepo(pool, log)
	user := func(offset int64) string {
		u, err := users.GetOrCreate(ctx, stamp+offset, "test")
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		return u.ID
	}
	city, err := NewCityRepo(pool, log).Create(ctx, fmt.Sprintf("test-city-%d", stamp))
	if err != nil {
		t.Fatalf("create city: %v", err)
	}

	return &pgEnv{
		pool:   pool,
		url:    url,
		orders: &orderRepo{db: pool, log: log},
		userID: user(0),
		driver: user(1),
		other:  user(2),
		cityID: city.ID,
	}
}

func (e *pgEnv) newOrder(t *testing.T) *models.Order {
	t.Helper()
	o, err := e.orders.Create(context.Background(), &models.Order{
		UserID:      e.userID,
		CityID:      &e.cityID,
		Type:        models.OrderTaxi,
		FromAddress: "ул. Ленина, 1",
		ToAddress:   "вокзал",
		Comment:     strings.Repeat("длинный комментарий ", 40),
		Status:      models.StatusPending,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func acceptBy(driver string) lifecycle.Change {
	return lifecycle.Change{
		Event:    lifecycle.EventAccept,
		From:     models.StatusPending,
		To:       models.StatusAccepted,
		DriverID: &driver,
		Actor:    lifecycle.Actor{ID: driver, Role: models.RoleDriver},
	}
}

func TestUpdateStatusGuards(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()

	t.Run("double accept", func(t *testing.T) {
		o := env.newOrder(t)
		if ok, err := env.orders.UpdateStatus(ctx, o.ID, acceptBy(env.driver)); err != nil || !ok {
			t.Fatalf("first accept: %v %v", ok, err)
		}
		if ok, err := env.orders.UpdateStatus(ctx, o.ID, acceptBy(env.other)); err != nil || ok {
			t.Fatalf("second accept must not apply: %v %v", ok, err)
		}
		got, _ := env.orders.GetByID(ctx, o.ID)
		if !got.HasDriver(env.driver) {
			t.Fatalf("driver %v, want %s", got.DriverID, env.driver)
		}
	})

	t.Run("stale from status", func(t *testing.T) {
		o := env.newOrder(t)
		start := lifecycle.Change{Event: lifecycle.EventStart, From: models.StatusAccepted, To: models.StatusEnRoute}
		if ok, err := env.orders.UpdateStatus(ctx, o.ID, start); err != nil || ok {
			t.Fatalf("start from pending must not apply: %v %v", ok, err)
		}
		got, _ := env.orders.GetByID(ctx, o.ID)
		if got.Status != models.StatusPending {
			t.Fatalf("status %s", got.Status)
		}
	})

	t.Run("cancel clears driver", func(t *testing.T) {
		o := env.newOrder(t)
		if ok, _ := env.orders.UpdateStatus(ctx, o.ID, acceptBy(env.driver)); !ok {
			t.Fatal("accept not applied")
		}
		cancel := lifecycle.Change{
			Event:       lifecycle.EventCancel,
			From:        models.StatusAccepted,
			To:          models.StatusCancelled,
			ClearDriver: true,
			Actor:       lifecycle.Actor{ID: env.userID, Role: models.RolePassenger},
		}
		if ok, err := env.orders.UpdateStatus(ctx, o.ID, cancel); err != nil || !ok {
			t.Fatalf("cancel: %v %v", ok, err)
		}
		got, _ := env.orders.GetByID(ctx, o.ID)
		if got.Status != models.StatusCancelled || got.DriverID != nil {
			t.Fatalf("after cancel: %s %v", got.Status, got.DriverID)
		}
	})
}

func TestFeedCarriesOldAndNewStatus(t *testing.T) {
	env := setupPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events := make(chan models.OrderEvent, 64)
	feed := NewFeed(env.url, "orders_changes", 100*time.Millisecond, logger.NewNop())
	go func() { _ = feed.Listen(ctx, func(ev models.OrderEvent) { events <- ev }) }()

	// LISTEN has no ready signal; write until an insert comes back.
	waitFor := func(match func(models.OrderEvent) bool) models.OrderEvent {
		t.Helper()
		for {
			select {
			case ev := <-events:
				if match(ev) {
					return ev
				}
			case <-ctx.Done():
				t.Fatal("timed out waiting for order event")
			}
		}
	}
	var o *models.Order
	for o == nil {
		candidate := env.newOrder(t)
		select {
		case ev := <-events:
			if ev.Type == models.EventInsert && ev.New.ID == candidate.ID {
				o = candidate
			}
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			t.Fatal("feed never started listening")
		}
	}

	if ok, err := env.orders.UpdateStatus(ctx, o.ID, acceptBy(env.driver)); err != nil || !ok {
		t.Fatalf("accept: %v %v", ok, err)
	}
	ev := waitFor(func(ev models.OrderEvent) bool {
		return ev.Type == models.EventUpdate && ev.New != nil && ev.New.ID == o.ID
	})
	if ev.Old.Status != models.StatusPending || ev.New.Status != models.StatusAccepted {
		t.Fatalf("statuses %s -> %s", ev.Old.Status, ev.New.Status)
	}
	if !ev.New.HasDriver(env.driver) || ev.Old.DriverID != nil {
		t.Fatalf("drivers %v -> %v", ev.Old.DriverID, ev.New.DriverID)
	}
	if ev.New.Comment != o.Comment || ev.Old.ToAddress != "вокзал" {
		t.Fatalf("text columns not filled: %q / %q", ev.New.Comment, ev.Old.ToAddress)
	}
}
