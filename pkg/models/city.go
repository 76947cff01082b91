package models

import "time"

type City struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	DeliveryFee int       `json:"delivery_fee"`
	CreatedAt   time.Time `json:"created_at"`
}
