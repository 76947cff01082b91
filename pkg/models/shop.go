package models

import "time"

type Shop struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CityID      string    `json:"city_id"`
	CreatedAt   time.Time `json:"created_at"`
}
