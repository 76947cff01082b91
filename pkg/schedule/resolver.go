// Package schedule turns a day/hour/minute choice into a pickup timestamp.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Day string

const (
	Today    Day = "today"
	Tomorrow Day = "tomorrow"
)

// DefaultLeadTime is the minimum gap between now and a same-day pickup.
const DefaultLeadTime = 2 * time.Hour

var (
	ErrInvalidTimeComponent = errors.New("invalid time component")
	ErrInvalidDay           = errors.New("day must be today or tomorrow")
	ErrTimeAlreadyPassed    = errors.New("the selected time has already passed, choose tomorrow")
	ErrLeadTimeTooShort     = errors.New("same-day pickup must be more than the lead time from now")
)

// ComponentError reports which of hour or minute was rejected.
type ComponentError struct {
	Component string
	Value     string
}

func (e *ComponentError) Error() string {
	switch e.Component {
	case "hour":
		return "hours must be between 0 and 23"
	case "minute":
		return "minutes must be between 0 and 59"
	}
	return ErrInvalidTimeComponent.Error()
}

func (e *ComponentError) Unwrap() error { return ErrInvalidTimeComponent }

// Input is the raw form state; components arrive as typed text.
type Input struct {
	Day    string `json:"day"`
	Hour   string `json:"hour"`
	Minute string `json:"minute"`
}

// Resolver holds no mutable state and is safe for concurrent use.
type Resolver struct {
	loc  *time.Location
	lead time.Duration
}

func NewResolver(loc *time.Location, lead time.Duration) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if lead <= 0 {
		lead = DefaultLeadTime
	}
	return &Resolver{loc: loc, lead: lead}
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) LeadTime() time.Duration { return r.lead }

func ParseDay(s string) (Day, error) {
	switch Day(strings.ToLower(strings.TrimSpace(s))) {
	case Today:
		return Today, nil
	case Tomorrow:
		return Tomorrow, nil
	}
	return "", ErrInvalidDay
}

// Resolve returns the pickup instant in UTC, truncated to the minute.
func (r *Resolver) Resolve(day Day, hour, minute int, now time.Time) (time.Time, error) {
	if hour < 0 || hour > 23 {
		return time.Time{}, &ComponentError{Component: "hour", Value: strconv.Itoa(hour)}
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, &ComponentError{Component: "minute", Value: strconv.Itoa(minute)}
	}

	local := now.In(r.loc)
	y, m, d := local.Date()

	switch day {
	case Tomorrow:
		return time.Date(y, m, d+1, hour, minute, 0, 0, r.loc).UTC(), nil
	case Today:
		candidate := time.Date(y, m, d, hour, minute, 0, 0, r.loc)
		if !candidate.After(now) {
			return time.Time{}, ErrTimeAlreadyPassed
		}
		if !candidate.After(now.Add(r.lead)) {
			return time.Time{}, ErrLeadTimeTooShort
		}
		return candidate.UTC(), nil
	}
	return time.Time{}, ErrInvalidDay
}

// ResolveInput validates raw form text. Empty or non-numeric components are
// rejected rather than read as zero; hour is checked before minute.
func (r *Resolver) ResolveInput(in Input, now time.Time) (time.Time, error) {
	hour, err := parseComponent("hour", in.Hour, 23)
	if err != nil {
		return time.Time{}, err
	}
	minute, err := parseComponent("minute", in.Minute, 59)
	if err != nil {
		return time.Time{}, err
	}
	day, err := ParseDay(in.Day)
	if err != nil {
		return time.Time{}, err
	}
	return r.Resolve(day, hour, minute, now)
}

// MinimumToday is the earliest wall-clock time shown as a hint for same-day
// pickups. The accepted time must be strictly later.
func (r *Resolver) MinimumToday(now time.Time) time.Time {
	return now.Add(r.lead).In(r.loc)
}

// ParseClock splits "HH:MM" (also "HH.MM" or "HH MM") typed in a chat.
func ParseClock(s string) (Input, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(c rune) bool { return c == ':' || c == '.' || c == ' ' })
	if len(parts) != 2 {
		return Input{}, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidTimeComponent, s)
	}
	return Input{Hour: parts[0], Minute: parts[1]}, nil
}

func parseComponent(name, raw string, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > max {
		return 0, &ComponentError{Component: name, Value: raw}
	}
	return n, nil
}
