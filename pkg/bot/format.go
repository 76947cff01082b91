package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v3"

	"bombily/pkg/lifecycle"
	"bombily/pkg/models"
	"bombily/pkg/pricing"
	"bombily/pkg/schedule"
	"bombily/service"
)

var messages = map[string]string{
	"btn_order":        "🚕 Заказать",
	"btn_my_orders":    "📋 Мои заказы",
	"btn_city":         "🏙 Сменить город",
	"btn_available":    "📦 Доступные заказы",
	"btn_profile":      "🚗 Мои данные",
	"btn_admin_orders": "🛠 Все заказы",
	"btn_admin_users":  "👥 Пользователи",
	"btn_admin_city":   "➕ Город",
	"btn_admin_stats":  "📊 Статистика",

	"contact_msg":   "Для регистрации отправьте свой номер телефона:",
	"share_contact": "📱 Отправить номер",
	"own_contact":   "Отправьте, пожалуйста, свой номер.",
	"registered":    "🎉 Регистрация завершена!",
	"no_entry":      "🚫 Этот бот только для водителей и администраторов.",
	"logged_out":    "Вы вышли. Нажмите /start, чтобы начать снова.",
	"menu_client":   "👤 Меню пассажира:",
	"menu_driver":   "🚖 Меню водителя:",
	"menu_admin":    "🛠 Панель администратора:",
	"choose_city":   "🏙 Выберите ваш город:",
	"no_cities":     "Пока нет доступных городов.",
	"city_saved":    "Город сохранён",
	"no_city":       "Сначала выберите город.",

	"order_type":     "Что нужно?",
	"order_shop":     "🏪 Выберите магазин:",
	"no_shops":       "В вашем городе пока нет магазинов.",
	"no_products":    "В этом магазине сейчас нет товаров в наличии.",
	"order_products": "🛒 Выберите товары. Каждое нажатие добавляет одну штуку.",
	"cart_added":     "В корзине: %d шт.",
	"cart_done":      "➡️ Готово",
	"cart_empty":     "Корзина пуста.",
	"lead_time":      "Заказ на сегодня оформляется минимум за %s.",
	"order_from":     "📍 Откуда вас забрать?",
	"order_to":       "🏁 Куда едем?",
	"order_comment":  "💬 Комментарий для водителя (или нажмите «Без комментария»):",
	"skip_comment":   "Без комментария",
	"order_when":     "🕒 Когда подать машину?",
	"when_now":       "Сейчас",
	"when_today":     "Сегодня",
	"when_tomorrow":  "Завтра",
	"order_time":     "Введите время в формате ЧЧ:ММ.",
	"order_time_min": "Введите время в формате ЧЧ:ММ. Не раньше %s.",
	"order_confirm":  "<b>Проверьте заказ</b>\n\n%s\n\nВсё верно?",
	"confirm_yes":    "✅ Подтвердить",
	"confirm_no":     "❌ Отмена",
	"order_created":  "✅ Заказ создан! Мы сообщим, когда водитель его примет.",
	"order_dropped":  "Заказ отменён.",
	"no_orders":      "📭 Заказов пока нет.",
	"status_now":     "Статус: %s",

	"reg_model":     "🚗 Марка и модель автомобиля:",
	"reg_color":     "🎨 Цвет автомобиля:",
	"reg_plate":     "🔢 Гос. номер автомобиля, например <code>А123ВС777</code>:",
	"reg_bad_plate": "❌ Некорректный номер. Формат: <code>А123ВС777</code>.",
	"reg_sbp_name":  "💳 Получатель перевода по СБП (имя и первая буква фамилии):",
	"reg_sbp_phone": "📞 Телефон для перевода по СБП:",
	"reg_sbp_bank":  "🏦 Банк получателя:",
	"reg_done":      "✅ Данные сохранены!",

	"city_name":     "Введите название города:",
	"city_created":  "✅ Город «%s» добавлен.",
	"stats":         "📊 <b>Статистика</b> (последние записи)\n\nПользователей: %d\nАктивных заказов: %d\nЗаказов: %d",
	"deleted":       "🗑 Заказ удалён.",
	"role_changed":  "Роль изменена",
	"btn_delete":    "🗑 Удалить",
	"btn_driver":    "🚕 Сделать водителем",
	"btn_passenger": "👤 Сделать пассажиром",
}

func msg(key string) string {
	if m, ok := messages[key]; ok {
		return m
	}
	return key
}

var statusLabels = map[models.OrderStatus]string{
	models.StatusPending:        "⏳ Ищем водителя",
	models.StatusAccepted:       "✅ Принят",
	models.StatusEnRoute:        "🚖 Водитель в пути",
	models.StatusArrived:        "📍 Водитель на месте",
	models.StatusPassengerOnWay: "🚶 Пассажир выходит",
	models.StatusCompleted:      "🏁 Завершён",
	models.StatusCancelled:      "❌ Отменён",
}

func statusLabel(s models.OrderStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

var typeLabels = map[models.OrderType]string{
	models.OrderTaxi:     "🚕 Такси",
	models.OrderCargo:    "🚚 Грузовое",
	models.OrderDelivery: "📦 Доставка",
}

var eventLabels = map[lifecycle.Event]string{
	lifecycle.EventAccept:   "📥 Принять",
	lifecycle.EventStart:    "🚖 Выехал",
	lifecycle.EventArrive:   "📍 На месте",
	lifecycle.EventReady:    "🚶 Выхожу",
	lifecycle.EventComplete: "🏁 Завершить",
	lifecycle.EventCancel:   "❌ Отменить",
}

func eventOf(s string) lifecycle.Event {
	return lifecycle.Event(s)
}

func actorOf(u models.User) lifecycle.Actor {
	return lifecycle.Actor{ID: u.ID, Role: u.Role}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (b *Bot) formatOrder(o *models.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Заказ #%s</b> %s\n", shortID(o.ID), typeLabels[o.Type])
	fmt.Fprintf(&sb, "📍 %s\n🏁 %s\n", html.EscapeString(o.FromAddress), html.EscapeString(o.ToAddress))
	if o.Comment != "" {
		fmt.Fprintf(&sb, "💬 %s\n", html.EscapeString(o.Comment))
	}
	if o.ScheduledTime != nil {
		fmt.Fprintf(&sb, "🕒 %s\n", o.ScheduledTime.In(b.Svc.Resolver().Location()).Format("02.01 15:04"))
	} else {
		sb.WriteString("🕒 Как можно скорее\n")
	}
	fmt.Fprintf(&sb, "Статус: %s", statusLabel(o.Status))
	return sb.String()
}

// formatDriver is what a passenger sees about the assigned driver.
func formatDriver(d *models.User) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n\n👤 Водитель: %s", html.EscapeString(d.Name))
	if d.VehicleModel != nil {
		fmt.Fprintf(&sb, "\n🚗 %s", html.EscapeString(*d.VehicleModel))
		if d.VehicleColor != nil {
			fmt.Fprintf(&sb, ", %s", html.EscapeString(*d.VehicleColor))
		}
		if d.VehiclePlate != nil {
			fmt.Fprintf(&sb, " (%s)", html.EscapeString(*d.VehiclePlate))
		}
	}
	if d.SBPPhone != nil {
		sb.WriteString("\n💳 Оплата переводом по СБП: ")
		sb.WriteString(html.EscapeString(*d.SBPPhone))
		if d.SBPBank != nil {
			fmt.Fprintf(&sb, ", %s", html.EscapeString(*d.SBPBank))
		}
		if d.SBPRecipientName != nil {
			fmt.Fprintf(&sb, ", %s", html.EscapeString(*d.SBPRecipientName))
		}
	}
	return sb.String()
}

// availableEvents lists the buttons user may press on o.
func availableEvents(o *models.Order, user models.User) []lifecycle.Event {
	var out []lifecycle.Event
	for _, ev := range []lifecycle.Event{
		lifecycle.EventAccept, lifecycle.EventStart, lifecycle.EventArrive,
		lifecycle.EventReady, lifecycle.EventComplete, lifecycle.EventCancel,
	} {
		if _, err := lifecycle.Plan(*o, ev, actorOf(user), o.UpdatedAt); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (b *Bot) orderButtons(o *models.Order, user models.User) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	var btns []tele.Btn
	for _, ev := range availableEvents(o, user) {
		btns = append(btns, menu.Data(eventLabels[ev], cbOrder, string(ev), o.ID))
	}
	if len(btns) > 0 {
		menu.Inline(menu.Row(btns...))
	}
	return menu
}

func userError(err error) string {
	var ce *schedule.ComponentError
	switch {
	case errors.As(err, &ce) && ce.Component == "hour":
		return "Часы должны быть от 0 до 23."
	case errors.As(err, &ce) && ce.Component == "minute":
		return "Минуты должны быть от 0 до 59."
	case errors.Is(err, schedule.ErrInvalidTimeComponent):
		return "Введите время в формате ЧЧ:ММ."
	case errors.Is(err, schedule.ErrTimeAlreadyPassed):
		return "Это время уже прошло. Выберите «Завтра»."
	case errors.Is(err, schedule.ErrLeadTimeTooShort):
		return "Заказ на сегодня оформляется минимум за 2 часа."
	case errors.Is(err, service.ErrInvalidTransition):
		return "Это действие сейчас недоступно."
	case errors.Is(err, service.ErrStaleTransition):
		return "Заказ уже изменился. Обновите список."
	case errors.Is(err, service.ErrNotAssigned):
		return "Это не ваш заказ."
	case errors.Is(err, service.ErrForbidden):
		return "Недостаточно прав."
	case errors.Is(err, service.ErrNotFound):
		return "Не найдено."
	case errors.Is(err, pricing.ErrOutOfStock):
		return "Часть товаров закончилась. Соберите корзину заново."
	case errors.Is(err, service.ErrInvalidOrder):
		return "Проверьте данные заказа."
	case errors.Is(err, service.ErrInvalidPhone):
		return "Не удалось распознать номер телефона."
	case errors.Is(err, service.ErrCollaboratorUnavailable):
		return "Сервис временно недоступен, попробуйте позже."
	}
	return "Произошла ошибка."
}
