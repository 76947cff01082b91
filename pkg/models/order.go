package models

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusAccepted       OrderStatus = "accepted"
	StatusEnRoute        OrderStatus = "en_route"
	StatusArrived        OrderStatus = "arrived"
	StatusPassengerOnWay OrderStatus = "passenger_on_way"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
)

type OrderType string

const (
	OrderTaxi     OrderType = "taxi"
	OrderCargo    OrderType = "cargo"
	OrderDelivery OrderType = "delivery"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderTaxi, OrderCargo, OrderDelivery:
		return true
	}
	return false
}

type Order struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"user_id"`
	DriverID           *string     `json:"driver_id"`
	CityID             *string     `json:"city_id"`
	ShopID             *string     `json:"shop_id"`
	Type               OrderType   `json:"type"`
	FromAddress        string      `json:"from_address"`
	ToAddress          string      `json:"to_address"`
	Comment            string      `json:"comment,omitempty"`
	ScheduledTime      *time.Time  `json:"scheduled_time"`
	Status             OrderStatus `json:"status"`
	PassengerConfirmed bool        `json:"passenger_confirmed"`
	UpdatedBy          *string     `json:"updated_by"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// HasDriver reports whether driverID is the assignee.
func (o Order) HasDriver(driverID string) bool {
	return o.DriverID != nil && *o.DriverID == driverID
}

func (o Order) InCity(cityID string) bool {
	return o.CityID != nil && *o.CityID == cityID
}

type OrderEventType string

const (
	EventInsert OrderEventType = "INSERT"
	EventUpdate OrderEventType = "UPDATE"
	EventDelete OrderEventType = "DELETE"
)

// OrderEvent is one row change delivered by the change feed.
type OrderEvent struct {
	Type OrderEventType `json:"type"`
	Old  *Order         `json:"old"`
	New  *Order         `json:"new"`
}

// Order returns the most recent row image carried by the event.
func (e OrderEvent) Order() *Order {
	if e.New != nil {
		return e.New
	}
	return e.Old
}

// Key identifies an event for de-duplication. Redelivered copies of the same
// change share a key.
func (e OrderEvent) Key() string {
	var oldStatus, newStatus OrderStatus
	if e.Old != nil {
		oldStatus = e.Old.Status
	}
	var id string
	var stamp int64
	if e.New != nil {
		newStatus = e.New.Status
		id = e.New.ID
		stamp = e.New.UpdatedAt.UnixNano()
	} else if e.Old != nil {
		id = e.Old.ID
		stamp = e.Old.UpdatedAt.UnixNano()
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d", id, e.Type, oldStatus, newStatus, stamp)
}
