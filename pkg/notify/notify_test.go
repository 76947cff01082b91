package notify

import (
	"context"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v3"

	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/storage/memory"
)

type recordingSender struct {
	to   []int64
	text []string
	err  error
}

func (s *recordingSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	u := to.(*tele.User)
	s.to = append(s.to, u.ID)
	s.text = append(s.text, what.(string))
	return &tele.Message{}, nil
}

func TestTelegramRoutesByRole(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p, _ := store.User().GetOrCreate(ctx, 100, "passenger")
	d, _ := store.User().GetOrCreate(ctx, 200, "driver")
	_ = store.User().UpdateRole(ctx, d.ID, models.RoleDriver)

	passengerBot := &recordingSender{}
	driverBot := &recordingSender{}
	n := NewTelegram(store.User(), passengerBot, driverBot, logger.NewNop())

	if err := n.Notify(ctx, p.ID, "hello passenger"); err != nil {
		t.Fatalf("notify passenger: %v", err)
	}
	if err := n.Notify(ctx, d.ID, "hello driver"); err != nil {
		t.Fatalf("notify driver: %v", err)
	}

	if len(passengerBot.to) != 1 || passengerBot.to[0] != 100 {
		t.Fatalf("passenger bot sends: %v", passengerBot.to)
	}
	if len(driverBot.to) != 1 || driverBot.to[0] != 200 {
		t.Fatalf("driver bot sends: %v", driverBot.to)
	}
}

func TestTelegramUnknownUserIsNoop(t *testing.T) {
	store := memory.New()
	bot := &recordingSender{}
	n := NewTelegram(store.User(), bot, bot, logger.NewNop())

	if err := n.Notify(context.Background(), "missing", "text"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(bot.to) != 0 {
		t.Fatal("nothing should be sent")
	}
}

type failing struct{ err error }

func (f failing) Notify(context.Context, string, string) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{NewLog(logger.NewNop()), failing{boom}}
	if err := m.Notify(context.Background(), "u", "t"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
