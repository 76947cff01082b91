package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v3"

	"bombily/pkg/lifecycle"
	"bombily/pkg/models"
	"bombily/service"
)

const (
	adminOrdersLimit = 20
	adminUsersLimit  = 30
)

// admin returns the session of an admin, or answers the user and returns nil.
func (b *Bot) admin(c tele.Context) *service.Session {
	sess, err := b.session(c)
	if err != nil {
		_ = c.Send(userError(err))
		return nil
	}
	if sess.Current().Role != models.RoleAdmin {
		_ = c.Send(userError(service.ErrForbidden))
		return nil
	}
	return sess
}

func (b *Bot) handleAdminOrders(c tele.Context) error {
	sess := b.admin(c)
	if sess == nil {
		return nil
	}
	orders, err := b.Svc.Order().ListRecent(context.Background(), actorOf(sess.Current()), adminOrdersLimit)
	if err != nil {
		return c.Send(userError(err))
	}
	if len(orders) == 0 {
		return c.Send(msg("no_orders"))
	}
	for _, o := range orders {
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(menu.Data(msg("btn_delete"), cbDelete, o.ID)))
		if err := c.Send(b.formatOrder(o), menu, tele.ModeHTML); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleAdminDelete(c tele.Context) error {
	sess := b.admin(c)
	if sess == nil {
		return c.Respond()
	}
	if err := b.Svc.Order().AdminDelete(context.Background(), actorOf(sess.Current()), c.Data()); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: msg("deleted")})
	return c.Edit(msg("deleted"))
}

func (b *Bot) handleAdminUsers(c tele.Context) error {
	sess := b.admin(c)
	if sess == nil {
		return nil
	}
	users, err := b.Svc.Directory().Users(context.Background(), actorOf(sess.Current()), adminUsersLimit)
	if err != nil {
		return c.Send(userError(err))
	}
	for _, u := range users {
		if err := c.Send(formatUser(u), userButtons(u), tele.ModeHTML); err != nil {
			return err
		}
	}
	return nil
}

func formatUser(u *models.User) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b> (%s)", html.EscapeString(u.Name), u.Role)
	if u.Phone != nil {
		fmt.Fprintf(&sb, "\n📞 %s", *u.Phone)
	}
	if u.VehiclePlate != nil && *u.VehiclePlate != "" {
		fmt.Fprintf(&sb, "\n🚗 %s", html.EscapeString(*u.VehiclePlate))
	}
	return sb.String()
}

// userButtons toggles between passenger and driver. Admins are left alone.
func userButtons(u *models.User) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	switch u.Role {
	case models.RolePassenger:
		menu.Inline(menu.Row(menu.Data(msg("btn_driver"), cbRole, u.ID, string(models.RoleDriver))))
	case models.RoleDriver:
		menu.Inline(menu.Row(menu.Data(msg("btn_passenger"), cbRole, u.ID, string(models.RolePassenger))))
	}
	return menu
}

// handleAdminRole takes "userID|role".
func (b *Bot) handleAdminRole(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Respond()
	}
	sess := b.admin(c)
	if sess == nil {
		return c.Respond()
	}
	ctx := context.Background()
	if err := b.Svc.Directory().SetRole(ctx, actorOf(sess.Current()), args[0], models.Role(args[1])); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: msg("role_changed")})

	u, err := b.Svc.Directory().UserByID(ctx, args[0])
	if err != nil {
		return c.Send(userError(err))
	}
	return c.Edit(formatUser(u), userButtons(u), tele.ModeHTML)
}

func (b *Bot) handleCityAddStart(c tele.Context) error {
	sess := b.admin(c)
	if sess == nil {
		return nil
	}
	sess.Reset()
	sess.SetState(StateCityAdd)
	return c.Send(msg("city_name"))
}

func (b *Bot) handleCityAdd(c tele.Context, sess *service.Session) error {
	sess.Reset()
	city, err := b.Svc.Directory().CreateCity(context.Background(), actorOf(sess.Current()), c.Text())
	if err != nil {
		return c.Send(userError(err))
	}
	return c.Send(fmt.Sprintf(msg("city_created"), html.EscapeString(city.Name)))
}

func (b *Bot) handleAdminStats(c tele.Context) error {
	sess := b.admin(c)
	if sess == nil {
		return nil
	}
	snap, err := b.Svc.Directory().Bootstrap(context.Background(), actorOf(sess.Current()))
	if err != nil {
		return c.Send(userError(err))
	}
	active := 0
	for _, o := range snap.Orders {
		if !lifecycle.IsTerminal(o.Status) {
			active++
		}
	}
	return c.Send(fmt.Sprintf(msg("stats"), len(snap.Users), active, len(snap.Orders)), tele.ModeHTML)
}
