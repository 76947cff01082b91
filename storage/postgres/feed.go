package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bombily/pkg/logger"
	"bombily/pkg/metrics"
	"bombily/pkg/models"
)

// Feed listens for notify_order_change payloads on a dedicated connection.
// Notifications sent while the connection is down are lost; the observer
// tolerates that and de-duplicates what it does receive.
type Feed struct {
	url     string
	channel string
	delay   time.Duration
	log     logger.ILogger
}

func NewFeed(url, channel string, delay time.Duration, log logger.ILogger) *Feed {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Feed{url: url, channel: channel, delay: delay, log: log}
}

func (f *Feed) Listen(ctx context.Context, handle func(models.OrderEvent)) error {
	for {
		err := f.listenOnce(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.FeedReconnectsTotal.Inc()
		f.log.Warning("order feed dropped, reconnecting",
			logger.Error(err), logger.Duration("delay", f.delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
}

func (f *Feed) listenOnce(ctx context.Context, handle func(models.OrderEvent)) error {
	conn, err := pgx.Connect(ctx, f.url)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return err
	}
	f.log.Info("listening for order changes", logger.String("channel", f.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		ev, err := decodeEvent(n.Payload)
		if err != nil {
			f.log.Error("bad order change payload", logger.String("payload", n.Payload), logger.Error(err))
			continue
		}
		if err := fillText(ctx, conn, &ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warning("failed to read order text columns", logger.Error(err))
		}
		handle(ev)
	}
}

func decodeEvent(payload string) (models.OrderEvent, error) {
	var ev models.OrderEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.OrderEvent{}, err
	}
	if ev.New == nil && ev.Old == nil {
		return models.OrderEvent{}, errors.New("event carries no row image")
	}
	return ev, nil
}

// fillText reads back the columns the payload leaves out. They never change
// after insert, so the current row serves both images. A deleted row leaves
// them empty.
func fillText(ctx context.Context, conn *pgx.Conn, ev *models.OrderEvent) error {
	o := ev.Order()
	if ev.Type == models.EventDelete {
		return nil
	}
	err := conn.QueryRow(ctx,
		`SELECT from_address, to_address, comment, scheduled_time FROM orders WHERE id = $1`, o.ID,
	).Scan(&o.FromAddress, &o.ToAddress, &o.Comment, &o.ScheduledTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if ev.Old != nil && ev.Old != o {
		ev.Old.FromAddress, ev.Old.ToAddress = o.FromAddress, o.ToAddress
		ev.Old.Comment, ev.Old.ScheduledTime = o.Comment, o.ScheduledTime
	}
	return nil
}
