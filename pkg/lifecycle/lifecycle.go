// Package lifecycle owns the order state machine: which event moves an order
// from one status to the next, who may cause it, and whom to tell afterwards.
package lifecycle

import (
	"errors"
	"time"

	"bombily/pkg/models"
)

type Event string

const (
	EventAccept   Event = "accept"
	EventStart    Event = "start"
	EventArrive   Event = "arrive"
	EventReady    Event = "ready"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
)

var (
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrNotAssigned       = errors.New("order is not assigned to this user")
	ErrStaleTransition   = errors.New("order was changed by someone else")
)

// Actor is whoever requests a transition.
type Actor struct {
	ID   string
	Role models.Role
}

// transitions maps an event to the statuses it may leave from and the status it
// leads to.
var transitions = map[Event]struct {
	from map[models.OrderStatus]struct{}
	to   models.OrderStatus
}{
	EventAccept: {
		from: set(models.StatusPending),
		to:   models.StatusAccepted,
	},
	EventStart: {
		from: set(models.StatusAccepted),
		to:   models.StatusEnRoute,
	},
	EventArrive: {
		from: set(models.StatusEnRoute),
		to:   models.StatusArrived,
	},
	EventReady: {
		from: set(models.StatusArrived),
		to:   models.StatusPassengerOnWay,
	},
	EventComplete: {
		from: set(models.StatusArrived, models.StatusPassengerOnWay),
		to:   models.StatusCompleted,
	},
	EventCancel: {
		from: set(models.StatusPending, models.StatusAccepted, models.StatusEnRoute),
		to:   models.StatusCancelled,
	},
}

func set(statuses ...models.OrderStatus) map[models.OrderStatus]struct{} {
	m := make(map[models.OrderStatus]struct{}, len(statuses))
	for _, s := range statuses {
		m[s] = struct{}{}
	}
	return m
}

func IsTerminal(s models.OrderStatus) bool {
	return s == models.StatusCompleted || s == models.StatusCancelled
}

// CanTransition reports whether some event moves an order from one status to
// the other.
func CanTransition(from, to models.OrderStatus) bool {
	for _, t := range transitions {
		if t.to != to {
			continue
		}
		if _, ok := t.from[from]; ok {
			return true
		}
	}
	return false
}

// Change is a validated transition ready to be applied as a conditional update
// keyed on From.
type Change struct {
	Event              Event
	From               models.OrderStatus
	To                 models.OrderStatus
	DriverID           *string
	ClearDriver        bool
	PassengerConfirmed bool
	Actor              Actor
	At                 time.Time
}

// Plan validates ev against the order and the actor. A rejected plan leaves
// nothing to apply.
func Plan(o models.Order, ev Event, actor Actor, at time.Time) (Change, error) {
	if IsTerminal(o.Status) {
		return Change{}, ErrInvalidTransition
	}
	t, ok := transitions[ev]
	if !ok {
		return Change{}, ErrInvalidTransition
	}
	if _, ok := t.from[o.Status]; !ok {
		return Change{}, ErrInvalidTransition
	}

	c := Change{Event: ev, From: o.Status, To: t.to, Actor: actor, At: at}

	switch ev {
	case EventAccept:
		if actor.Role != models.RoleDriver || actor.ID == "" {
			return Change{}, ErrInvalidTransition
		}
		if o.DriverID != nil {
			return Change{}, ErrInvalidTransition
		}
		id := actor.ID
		c.DriverID = &id

	case EventStart, EventArrive, EventComplete:
		if actor.Role != models.RoleDriver {
			return Change{}, ErrInvalidTransition
		}
		if !o.HasDriver(actor.ID) {
			return Change{}, ErrNotAssigned
		}

	case EventReady:
		if actor.Role != models.RolePassenger {
			return Change{}, ErrInvalidTransition
		}
		if o.UserID != actor.ID {
			return Change{}, ErrNotAssigned
		}
		c.PassengerConfirmed = true

	case EventCancel:
		switch actor.Role {
		case models.RoleDriver:
			if !o.HasDriver(actor.ID) {
				return Change{}, ErrNotAssigned
			}
		case models.RolePassenger:
			if o.UserID != actor.ID {
				return Change{}, ErrNotAssigned
			}
		default:
			return Change{}, ErrInvalidTransition
		}
		c.ClearDriver = o.DriverID != nil
	}
	return c, nil
}

// Apply returns o with c applied. Callers must have checked that o.Status is
// still c.From.
func Apply(o models.Order, c Change) models.Order {
	o.Status = c.To
	if c.DriverID != nil {
		id := *c.DriverID
		o.DriverID = &id
	}
	if c.ClearDriver {
		o.DriverID = nil
	}
	if c.PassengerConfirmed {
		o.PassengerConfirmed = true
	}
	if c.Actor.ID != "" {
		by := c.Actor.ID
		o.UpdatedBy = &by
	}
	if !c.At.IsZero() {
		o.UpdatedAt = c.At
	}
	return o
}
