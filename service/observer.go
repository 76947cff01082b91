package service

import (
	"context"
	"sync"
	"time"

	"bombily/pkg/lifecycle"
	"bombily/pkg/logger"
	"bombily/pkg/metrics"
	"bombily/pkg/models"
	"bombily/pkg/notify"
	"bombily/storage"
)

// Deduper remembers which change events were already handled. Seen claims
// the key; Forget releases a claim whose handling failed.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Publisher receives every handled change event, e.g. the websocket hub.
type Publisher interface {
	Publish(ev models.OrderEvent)
}

// Observer consumes the order change feed and turns status changes into
// notifications. Events may arrive more than once; each key is handled once.
type Observer struct {
	feed     storage.IOrderFeed
	users    storage.IUserStorage
	notifier notify.Notifier
	dedup    Deduper
	pub      Publisher
	timeout  time.Duration
	log      logger.ILogger

	wg sync.WaitGroup
}

func NewObserver(stg storage.IStorage, notifier notify.Notifier, dedup Deduper, pub Publisher, timeout time.Duration, log logger.ILogger) *Observer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if dedup == nil {
		dedup = NewMemoryDeduper(10 * time.Minute)
	}
	return &Observer{
		feed:     stg.Feed(),
		users:    stg.User(),
		notifier: notifier,
		dedup:    dedup,
		pub:      pub,
		timeout:  timeout,
		log:      log,
	}
}

// Run blocks until ctx is done. The feed reconnects on its own.
func (o *Observer) Run(ctx context.Context) error {
	o.log.Info("order observer started")
	return o.feed.Listen(ctx, func(ev models.OrderEvent) {
		o.Handle(ctx, ev)
	})
}

func (o *Observer) Handle(ctx context.Context, ev models.OrderEvent) {
	metrics.FeedEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	seen, err := o.dedup.Seen(ctx, ev.Key())
	if err != nil {
		// handling twice beats dropping
		o.log.Warning("dedup check failed", logger.String("key", ev.Key()), logger.Error(err))
	}
	if seen {
		metrics.FeedDuplicatesTotal.Inc()
		o.log.Debug("duplicate order event dropped", logger.String("key", ev.Key()))
		return
	}

	if o.pub != nil {
		o.pub.Publish(ev)
	}

	switch ev.Type {
	case models.EventInsert:
		if ev.New == nil {
			return
		}
		if n, ok := lifecycle.NewOrderBroadcast(*ev.New); ok {
			if err := o.broadcast(ctx, n); err != nil {
				o.release(ctx, ev.Key())
			}
		}
	case models.EventUpdate:
		if ev.Old == nil || ev.New == nil {
			return
		}
		if n, ok := lifecycle.Notice(*ev.Old, *ev.New); ok {
			o.dispatch(n.UserID, n.OrderID, n.Text)
		}
	}
}

func (o *Observer) broadcast(ctx context.Context, n lifecycle.Notification) error {
	drivers, err := o.users.GetDriversByCity(ctx, n.CityID)
	if err != nil {
		o.log.Error("failed to load city drivers", logger.String("city_id", n.CityID), logger.Error(err))
		return err
	}
	for _, d := range drivers {
		o.dispatch(d.ID, n.OrderID, n.Text)
	}
	return nil
}

// release lets a redelivered copy of a failed event through.
func (o *Observer) release(ctx context.Context, key string) {
	if err := o.dedup.Forget(ctx, key); err != nil {
		o.log.Warning("failed to release dedup key", logger.String("key", key), logger.Error(err))
	}
}

// dispatch sends in the background; the caller never waits on delivery.
func (o *Observer) dispatch(userID, orderID, text string) {
	if o.notifier == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()

		if err := o.notifier.Notify(ctx, userID, text); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			o.log.Warning("notification failed",
				logger.String("user_id", userID), logger.String("order_id", orderID), logger.Error(err))
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}()
}

// Wait blocks until in-flight notifications finish.
func (o *Observer) Wait() {
	o.wg.Wait()
}

// MemoryDeduper is the single-process Deduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return true, nil
	}
	d.seen[key] = now.Add(d.ttl)

	if len(d.seen) > 4096 {
		for k, exp := range d.seen {
			if !now.Before(exp) {
				delete(d.seen, k)
			}
		}
	}
	return false, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}
