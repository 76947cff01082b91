package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"bombily/config"
	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/service"
)

type BotType string

const (
	BotTypeClient      BotType = "client"
	BotTypeDriverAdmin BotType = "driver_admin"
)

// Wizard states kept in the user's session.
const (
	StateIdle     = ""
	StateFrom     = "awaiting_from"
	StateTo       = "awaiting_to"
	StateComment  = "awaiting_comment"
	StateTime     = "awaiting_time"
	StateConfirm  = "awaiting_confirm"
	StateCarModel = "awaiting_car_model"
	StateCarColor = "awaiting_car_color"
	StateCarPlate = "awaiting_car_plate"
	StateSBPName  = "awaiting_sbp_name"
	StateSBPPhone = "awaiting_sbp_phone"
	StateSBPBank  = "awaiting_sbp_bank"
	StateCityAdd  = "awaiting_city_name"
)

// Callback uniques. Payloads travel in the callback data.
const (
	cbCity    = "city"
	cbType    = "otype"
	cbShop    = "shop"
	cbProduct = "prod"
	cbCart    = "cart"
	cbSkip    = "skip_comment"
	cbWhen    = "when"
	cbConfirm = "confirm"
	cbOrder   = "ord"
	cbDelete  = "adm_del"
	cbRole    = "adm_role"
)

type Bot struct {
	Type BotType
	Bot  *tele.Bot
	Svc  service.IServiceManager
	Log  logger.ILogger
	Cfg  config.Config
}

func New(botType BotType, cfg config.Config, svc service.IServiceManager, log logger.ILogger) (*Bot, error) {
	token := cfg.TelegramBotToken
	if botType == BotTypeDriverAdmin {
		token = cfg.DriverBotToken
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error("bot handler failed", logger.String("bot", string(botType)), logger.Error(err))
		},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}
	bot := &Bot{
		Type: botType,
		Bot:  b,
		Svc:  svc,
		Log:  log.With(logger.String("bot", string(botType))),
		Cfg:  cfg,
	}
	bot.registerHandlers()
	return bot, nil
}

// Start polls until Stop is called.
func (b *Bot) Start() {
	b.Log.Info("bot started")
	b.Bot.Start()
}

func (b *Bot) Stop() {
	b.Bot.Stop()
}

func (b *Bot) registerHandlers() {
	b.Bot.Handle("/start", b.handleStart)
	b.Bot.Handle("/logout", b.handleLogout)
	b.Bot.Handle(msg("btn_city"), b.handleCityMenu)
	b.Bot.Handle("\f"+cbCity, b.handleCityChosen)
	b.Bot.Handle("\f"+cbOrder, b.handleOrderAction)

	if b.Type == BotTypeClient {
		b.Bot.Handle(tele.OnContact, b.handleContact)
		b.Bot.Handle(msg("btn_order"), b.handleOrderStart)
		b.Bot.Handle(msg("btn_my_orders"), b.handleMyOrders)
		b.Bot.Handle("\f"+cbType, b.handleTypeChosen)
		b.Bot.Handle("\f"+cbShop, b.handleShopChosen)
		b.Bot.Handle("\f"+cbProduct, b.handleProductChosen)
		b.Bot.Handle("\f"+cbCart, b.handleCartDone)
		b.Bot.Handle("\f"+cbSkip, b.handleSkipComment)
		b.Bot.Handle("\f"+cbWhen, b.handleWhenChosen)
		b.Bot.Handle("\f"+cbConfirm, b.handleConfirm)
	} else {
		b.Bot.Handle(msg("btn_available"), b.handleAvailableOrders)
		b.Bot.Handle(msg("btn_my_orders"), b.handleMyOrdersDriver)
		b.Bot.Handle(msg("btn_profile"), b.handleDriverRegistrationStart)
		b.Bot.Handle(msg("btn_admin_orders"), b.handleAdminOrders)
		b.Bot.Handle(msg("btn_admin_users"), b.handleAdminUsers)
		b.Bot.Handle(msg("btn_admin_city"), b.handleCityAddStart)
		b.Bot.Handle(msg("btn_admin_stats"), b.handleAdminStats)
		b.Bot.Handle("\f"+cbDelete, b.handleAdminDelete)
		b.Bot.Handle("\f"+cbRole, b.handleAdminRole)
	}

	b.Bot.Handle(tele.OnText, b.handleText)
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx := context.Background()
	name := strings.TrimSpace(c.Sender().FirstName + " " + c.Sender().LastName)

	sess, err := b.Svc.Sessions().Open(ctx, c.Sender().ID, name)
	if err != nil {
		b.Log.Error("failed to open session", logger.Int64("telegram_id", c.Sender().ID), logger.Error(err))
		return c.Send(userError(err))
	}
	user := sess.Current()

	if b.Type == BotTypeDriverAdmin && user.Role == models.RolePassenger {
		return c.Send(msg("no_entry"))
	}

	if b.Type == BotTypeClient && user.Phone == nil {
		menu := &tele.ReplyMarkup{ResizeKeyboard: true}
		menu.Reply(menu.Row(menu.Contact(msg("share_contact"))))
		return c.Send(msg("contact_msg"), menu)
	}

	if user.CityID == nil {
		return b.sendCityPicker(c, sess)
	}
	return b.showMenu(c, user)
}

func (b *Bot) handleLogout(c tele.Context) error {
	b.Svc.Sessions().Close(c.Sender().ID)
	return c.Send(msg("logged_out"), tele.RemoveKeyboard)
}

// session returns the open session, opening one when the process restarted
// since the user's last /start.
func (b *Bot) session(c tele.Context) (*service.Session, error) {
	if sess, ok := b.Svc.Sessions().Get(c.Sender().ID); ok {
		return sess, nil
	}
	name := strings.TrimSpace(c.Sender().FirstName + " " + c.Sender().LastName)
	return b.Svc.Sessions().Open(context.Background(), c.Sender().ID, name)
}

func (b *Bot) refresh(c tele.Context) (*service.Session, error) {
	sess, err := b.Svc.Sessions().Refresh(context.Background(), c.Sender().ID)
	if errors.Is(err, service.ErrNotFound) {
		return b.session(c)
	}
	return sess, err
}

func (b *Bot) showMenu(c tele.Context, user models.User) error {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}

	if b.Type == BotTypeClient {
		menu.Reply(
			menu.Row(menu.Text(msg("btn_order"))),
			menu.Row(menu.Text(msg("btn_my_orders")), menu.Text(msg("btn_city"))),
		)
		return c.Send(msg("menu_client"), menu)
	}

	rows := []tele.Row{
		menu.Row(menu.Text(msg("btn_available")), menu.Text(msg("btn_my_orders"))),
		menu.Row(menu.Text(msg("btn_profile")), menu.Text(msg("btn_city"))),
	}
	if user.Role == models.RoleAdmin {
		rows = append(rows,
			menu.Row(menu.Text(msg("btn_admin_orders")), menu.Text(msg("btn_admin_users"))),
			menu.Row(menu.Text(msg("btn_admin_city")), menu.Text(msg("btn_admin_stats"))),
		)
		menu.Reply(rows...)
		return c.Send(msg("menu_admin"), menu)
	}
	menu.Reply(rows...)
	return c.Send(msg("menu_driver"), menu)
}

func (b *Bot) handleCityMenu(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	return b.sendCityPicker(c, sess)
}

func (b *Bot) sendCityPicker(c tele.Context, sess *service.Session) error {
	if len(sess.Cities) == 0 {
		return c.Send(msg("no_cities"))
	}
	menu := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, city := range sess.Cities {
		rows = append(rows, menu.Row(menu.Data(city.Name, cbCity, city.ID)))
	}
	menu.Inline(rows...)
	return c.Send(msg("choose_city"), menu)
}

func (b *Bot) handleCityChosen(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	if err := b.Svc.Directory().SetCity(context.Background(), sess.Current().ID, c.Data()); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: msg("city_saved")})
	sess, err = b.refresh(c)
	if err != nil {
		return c.Send(userError(err))
	}
	return b.showMenu(c, sess.Current())
}

func (b *Bot) handleText(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}

	switch sess.State() {
	case StateFrom, StateTo, StateComment, StateTime:
		if b.Type == BotTypeClient {
			return b.handleOrderText(c, sess)
		}
	case StateCarModel, StateCarColor, StateCarPlate, StateSBPName, StateSBPPhone, StateSBPBank:
		if b.Type == BotTypeDriverAdmin {
			return b.handleRegistrationText(c, sess)
		}
	case StateCityAdd:
		if b.Type == BotTypeDriverAdmin {
			return b.handleCityAdd(c, sess)
		}
	}
	return nil
}

// handleOrderAction runs a lifecycle event from an inline button. Payload is
// "event|orderID".
func (b *Bot) handleOrderAction(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Respond()
	}
	sess, err := b.session(c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	user := sess.Current()

	o, err := b.Svc.Order().Transition(context.Background(), eventOf(args[0]), service.TransitionCommand{
		OrderID: args[1],
		Actor:   actorOf(user),
	})
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userError(err), ShowAlert: true})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf(msg("status_now"), statusLabel(o.Status))})
	return c.Edit(b.formatOrder(o), b.orderButtons(o, user), tele.ModeHTML)
}
