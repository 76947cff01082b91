package bot

import (
	"context"

	tele "gopkg.in/telebot.v3"

	"bombily/pkg/lifecycle"
	"bombily/pkg/models"
)

func (b *Bot) handleAvailableOrders(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	user := sess.Current()
	if user.CityID == nil {
		_ = c.Send(msg("no_city"))
		return b.sendCityPicker(c, sess)
	}

	orders, err := b.Svc.Order().ListAvailable(context.Background(), *user.CityID)
	if err != nil {
		return c.Send(userError(err))
	}
	return b.sendOrders(c, orders, user)
}

func (b *Bot) handleMyOrdersDriver(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	user := sess.Current()
	orders, err := b.Svc.Order().ListByDriver(context.Background(), user.ID)
	if err != nil {
		return c.Send(userError(err))
	}

	var active []*models.Order
	for _, o := range orders {
		if !lifecycle.IsTerminal(o.Status) {
			active = append(active, o)
		}
	}
	return b.sendOrders(c, active, user)
}
