package models

import "time"

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

type User struct {
	ID         string    `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Phone      *string   `json:"phone"`
	Role       Role      `json:"role"`
	Name       string    `json:"name"`
	CityID     *string   `json:"city_id"`
	CreatedAt  time.Time `json:"created_at"`

	DriverProfile
}
