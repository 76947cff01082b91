package lifecycle

import "bombily/pkg/models"

// Notification is one message for one recipient. CityID is set instead of
// UserID for broadcasts to every driver of a city.
type Notification struct {
	OrderID string
	UserID  string
	CityID  string
	Text    string
}

var passengerMessages = map[models.OrderStatus]string{
	models.StatusAccepted:  "Ваш заказ принят. Водитель уже назначен и готовится к выезду.",
	models.StatusEnRoute:   "Водитель выехал к вам. Отслеживайте его движение в приложении.",
	models.StatusArrived:   "Водитель прибыл и ожидает вас у указанного адреса.",
	models.StatusCompleted: "Поездка завершена. Пожалуйста, уточните сумму и оплатите переводом.",
	models.StatusCancelled: "Водитель отменил заказ. Заказ можно оформить заново.",
}

var driverMessages = map[models.OrderStatus]string{
	models.StatusPassengerOnWay: "Пассажир подтвердил, что выходит. Ожидайте возле адреса.",
	models.StatusCancelled:      "Пассажир отменил заказ.",
}

const newOrderMessage = "Новый заказ доступен в вашем городе."

// Notice maps a row change to the single counterpart notification it causes.
// Changes that keep the status produce nothing.
func Notice(old, cur models.Order) (Notification, bool) {
	if old.Status == cur.Status {
		return Notification{}, false
	}

	requesterActed := cur.UpdatedBy != nil && *cur.UpdatedBy == cur.UserID
	if cur.Status == models.StatusPassengerOnWay {
		requesterActed = true
	}

	if requesterActed {
		driverID := cur.DriverID
		if driverID == nil {
			// cancel clears the driver; the old image still carries it
			driverID = old.DriverID
		}
		text, ok := driverMessages[cur.Status]
		if !ok || driverID == nil {
			return Notification{}, false
		}
		return Notification{OrderID: cur.ID, UserID: *driverID, Text: text}, true
	}

	text, ok := passengerMessages[cur.Status]
	if !ok {
		return Notification{}, false
	}
	return Notification{OrderID: cur.ID, UserID: cur.UserID, Text: text}, true
}

// NewOrderBroadcast announces a fresh unassigned order to its city's drivers.
func NewOrderBroadcast(o models.Order) (Notification, bool) {
	if o.Status != models.StatusPending || o.DriverID != nil || o.CityID == nil {
		return Notification{}, false
	}
	return Notification{OrderID: o.ID, CityID: *o.CityID, Text: newOrderMessage}, true
}
