package models

import "time"

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ShopID    string    `json:"shop_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Product prices are whole rubles before the service markup.
type Product struct {
	ID          string    `json:"id"`
	ShopID      string    `json:"shop_id"`
	CategoryID  *string   `json:"category"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Price       int       `json:"price"`
	ImageURL    *string   `json:"image_url"`
	InStock     bool      `json:"in_stock"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeliveryItem is one cart line of a delivery order. UnitPrice already
// includes the markup that was in force when the order was placed.
type DeliveryItem struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int       `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}
