package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/pkg/pricing"
	"bombily/pkg/schedule"
	"bombily/service"
)

func (b *Bot) handleContact(c tele.Context) error {
	contact := c.Message().Contact
	if contact == nil || contact.UserID != c.Sender().ID {
		return c.Send(msg("own_contact"))
	}
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	if _, err := b.Svc.Directory().SetPhone(context.Background(), sess.Current().ID, contact.PhoneNumber); err != nil {
		return c.Send(userError(err))
	}
	if sess, err = b.refresh(c); err != nil {
		return c.Send(userError(err))
	}
	_ = c.Send(msg("registered"), tele.RemoveKeyboard)

	user := sess.Current()
	if user.CityID == nil {
		return b.sendCityPicker(c, sess)
	}
	return b.showMenu(c, user)
}

func (b *Bot) handleOrderStart(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	user := sess.Current()
	if user.CityID == nil {
		_ = c.Send(msg("no_city"))
		return b.sendCityPicker(c, sess)
	}

	sess.Reset()
	sess.EditDraft(func(d *service.CreateCommand) {
		d.Actor = actorOf(user)
		d.CityID = *user.CityID
	})

	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data(typeLabels[models.OrderTaxi], cbType, string(models.OrderTaxi))),
		menu.Row(menu.Data(typeLabels[models.OrderCargo], cbType, string(models.OrderCargo))),
		menu.Row(menu.Data(typeLabels[models.OrderDelivery], cbType, string(models.OrderDelivery))),
	)
	return c.Send(msg("order_type"), menu)
}

func (b *Bot) handleTypeChosen(c tele.Context) error {
	_ = c.Respond()
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	t := models.OrderType(c.Data())
	if !t.Valid() {
		return nil
	}
	sess.EditDraft(func(d *service.CreateCommand) {
		d.Type = t
		d.ShopID = ""
	})

	if t != models.OrderDelivery {
		sess.SetState(StateFrom)
		return c.Edit(msg("order_from"))
	}

	if len(sess.Shops) == 0 {
		sess.Reset()
		return c.Edit(msg("no_shops"))
	}
	menu := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, shop := range sess.Shops {
		rows = append(rows, menu.Row(menu.Data(shop.Name, cbShop, shop.ID)))
	}
	menu.Inline(rows...)
	return c.Edit(msg("order_shop"), menu)
}

func (b *Bot) handleShopChosen(c tele.Context) error {
	_ = c.Respond()
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	shopID := c.Data()
	products, err := b.Svc.Directory().Products(context.Background(), shopID)
	if err != nil {
		return c.Send(userError(err))
	}
	if len(products) == 0 {
		sess.Reset()
		return c.Edit(msg("no_products"))
	}
	sess.EditDraft(func(d *service.CreateCommand) {
		d.ShopID = shopID
		d.Items = nil
	})
	return c.Edit(msg("order_products"), productMenu(products), tele.ModeHTML)
}

// productMenu offers one button per product; each tap adds one unit.
func productMenu(products []*models.Product) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(products)+1)
	for _, p := range products {
		label := fmt.Sprintf("%s · %d ₽", p.Name, p.Price)
		rows = append(rows, menu.Row(menu.Data(label, cbProduct, p.ID)))
	}
	rows = append(rows, menu.Row(menu.Data(msg("cart_done"), cbCart, "done")))
	menu.Inline(rows...)
	return menu
}

func (b *Bot) handleProductChosen(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	if d := sess.Draft(); d.Type != models.OrderDelivery || d.ShopID == "" {
		return c.Respond()
	}
	var count int
	sess.EditDraft(func(d *service.CreateCommand) {
		d.Items = addToCart(d.Items, c.Data())
		for _, l := range d.Items {
			count += l.Quantity
		}
	})
	return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf(msg("cart_added"), count)})
}

func addToCart(lines []pricing.Line, productID string) []pricing.Line {
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity++
			return lines
		}
	}
	return append(lines, pricing.Line{ProductID: productID, Quantity: 1})
}

func (b *Bot) handleCartDone(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	if len(sess.Draft().Items) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: msg("cart_empty"), ShowAlert: true})
	}
	_ = c.Respond()
	sess.SetState(StateTo)
	return c.Edit(msg("order_to"))
}

func (b *Bot) handleOrderText(c tele.Context, sess *service.Session) error {
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}

	switch sess.State() {
	case StateFrom:
		sess.EditDraft(func(d *service.CreateCommand) { d.FromAddress = text })
		sess.SetState(StateTo)
		return c.Send(msg("order_to"))

	case StateTo:
		sess.EditDraft(func(d *service.CreateCommand) { d.ToAddress = text })
		sess.SetState(StateComment)
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(menu.Data(msg("skip_comment"), cbSkip)))
		return c.Send(msg("order_comment"), menu)

	case StateComment:
		sess.EditDraft(func(d *service.CreateCommand) { d.Comment = text })
		return b.askWhen(c, sess)

	case StateTime:
		in, err := schedule.ParseClock(text)
		if err != nil {
			return c.Send(userError(err))
		}
		in.Day = sess.Value("day")
		resolver := b.Svc.Resolver()
		if _, err := resolver.ResolveInput(in, time.Now()); err != nil {
			if errors.Is(err, schedule.ErrLeadTimeTooShort) {
				return c.Send(fmt.Sprintf(msg("lead_time"), formatLead(resolver.LeadTime())))
			}
			return c.Send(userError(err))
		}
		sess.EditDraft(func(d *service.CreateCommand) { d.Schedule = &in })
		return b.askConfirm(c, sess)
	}
	return nil
}

func (b *Bot) handleSkipComment(c tele.Context) error {
	_ = c.Respond()
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	if sess.State() != StateComment {
		return nil
	}
	return b.askWhen(c, sess)
}

func (b *Bot) askWhen(c tele.Context, sess *service.Session) error {
	sess.SetState(StateIdle)
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data(msg("when_now"), cbWhen, "now")),
		menu.Row(
			menu.Data(msg("when_today"), cbWhen, string(schedule.Today)),
			menu.Data(msg("when_tomorrow"), cbWhen, string(schedule.Tomorrow)),
		),
	)
	return c.Send(msg("order_when"), menu)
}

func (b *Bot) handleWhenChosen(c tele.Context) error {
	_ = c.Respond()
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}

	switch day := c.Data(); day {
	case "now":
		sess.EditDraft(func(d *service.CreateCommand) { d.Schedule = nil })
		return b.askConfirm(c, sess)
	case string(schedule.Today):
		sess.Put("day", day)
		sess.SetState(StateTime)
		earliest := b.Svc.Resolver().MinimumToday(time.Now())
		return c.Send(fmt.Sprintf(msg("order_time_min"), earliest.Format("15:04")))
	case string(schedule.Tomorrow):
		sess.Put("day", day)
		sess.SetState(StateTime)
		return c.Send(msg("order_time"))
	}
	return nil
}

func (b *Bot) askConfirm(c tele.Context, sess *service.Session) error {
	sess.SetState(StateConfirm)
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data(msg("confirm_yes"), cbConfirm, "yes"),
		menu.Data(msg("confirm_no"), cbConfirm, "no"),
	))
	draft := sess.Draft()
	text := b.formatDraft(draft)
	if draft.Type == models.OrderDelivery {
		q, err := b.Svc.Order().Quote(context.Background(), draft)
		if err != nil {
			sess.Reset()
			return c.Send(userError(err))
		}
		text += formatQuote(q)
	}
	return c.Send(fmt.Sprintf(msg("order_confirm"), text), menu, tele.ModeHTML)
}

func formatQuote(q *pricing.Quote) string {
	var sb strings.Builder
	sb.WriteString("\n")
	for _, l := range q.Lines {
		fmt.Fprintf(&sb, "\n• %s × %d = %d ₽", html.EscapeString(l.Name), l.Quantity, l.Sum)
	}
	fmt.Fprintf(&sb, "\n🚚 Доставка: %d ₽\n<b>Итого: %d ₽</b>", q.DeliveryFee, q.Total)
	return sb.String()
}

func formatLead(d time.Duration) string {
	h, m := int(d/time.Hour), int(d%time.Hour/time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%d мин", m)
	case m == 0:
		return fmt.Sprintf("%d ч", h)
	}
	return fmt.Sprintf("%d ч %d мин", h, m)
}

func (b *Bot) formatDraft(d service.CreateCommand) string {
	var sb strings.Builder
	sb.WriteString(typeLabels[d.Type])
	if d.FromAddress != "" {
		fmt.Fprintf(&sb, "\n📍 %s", html.EscapeString(d.FromAddress))
	}
	fmt.Fprintf(&sb, "\n🏁 %s", html.EscapeString(d.ToAddress))
	if d.Comment != "" {
		fmt.Fprintf(&sb, "\n💬 %s", html.EscapeString(d.Comment))
	}
	if d.Schedule == nil {
		sb.WriteString("\n🕒 " + msg("when_now"))
	} else {
		day := msg("when_today")
		if d.Schedule.Day == string(schedule.Tomorrow) {
			day = msg("when_tomorrow")
		}
		fmt.Fprintf(&sb, "\n🕒 %s %s:%s", day, d.Schedule.Hour, d.Schedule.Minute)
	}
	return sb.String()
}

func (b *Bot) handleConfirm(c tele.Context) error {
	_ = c.Respond()
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	if sess.State() != StateConfirm {
		return nil
	}

	if c.Data() != "yes" {
		sess.Reset()
		return c.Edit(msg("order_dropped"))
	}

	o, err := b.Svc.Order().Create(context.Background(), sess.Draft())
	if err != nil {
		b.Log.Warning("order rejected", logger.Int64("telegram_id", c.Sender().ID), logger.Error(err))
		return c.Send(userError(err))
	}
	sess.Reset()
	_ = c.Edit(msg("order_created"))
	return c.Send(b.formatOrder(o), b.orderButtons(o, sess.Current()), tele.ModeHTML)
}

func (b *Bot) handleMyOrders(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	user := sess.Current()
	orders, err := b.Svc.Order().ActiveByRequester(context.Background(), user.ID)
	if err != nil {
		return c.Send(userError(err))
	}
	return b.sendOrders(c, orders, user)
}

// sendOrders posts one message per order, with the driver's details once
// someone has taken it.
func (b *Bot) sendOrders(c tele.Context, orders []*models.Order, user models.User) error {
	if len(orders) == 0 {
		return c.Send(msg("no_orders"))
	}
	for _, o := range orders {
		text := b.formatOrder(o)
		if o.DriverID != nil && user.Role == models.RolePassenger {
			if d, err := b.Svc.Directory().UserByID(context.Background(), *o.DriverID); err == nil {
				text += formatDriver(d)
			}
		}
		if err := c.Send(text, b.orderButtons(o, user), tele.ModeHTML); err != nil {
			return err
		}
	}
	return nil
}
