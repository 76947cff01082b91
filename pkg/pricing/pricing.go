// Package pricing turns a delivery cart into the prices a requester pays.
package pricing

import (
	"errors"
	"fmt"

	"bombily/pkg/models"
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 99

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrBadQuantity    = errors.New("quantity out of range")
	ErrUnknownProduct = errors.New("unknown product")
	ErrOutOfStock     = errors.New("product is out of stock")
	ErrWrongShop      = errors.New("product belongs to another shop")
)

// Line is one requested product and how many of it.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type QuoteLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
	Sum       int    `json:"sum"`
}

type Quote struct {
	Lines         []QuoteLine `json:"lines"`
	MarkupPercent int         `json:"markup_percent"`
	ItemsTotal    int         `json:"items_total"`
	DeliveryFee   int         `json:"delivery_fee"`
	Total         int         `json:"total"`
}

// UnitPrice applies the markup to a base price, rounding up to a whole ruble.
func UnitPrice(base, markupPercent int) int {
	return (base*(100+markupPercent) + 99) / 100
}

// Build prices lines against products from shopID. Repeated products are
// merged in first-seen order.
func Build(shopID string, lines []Line, products []*models.Product, markupPercent, deliveryFee int) (*Quote, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	byID := make(map[string]*models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	q := &Quote{MarkupPercent: markupPercent, DeliveryFee: deliveryFee}
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 || l.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: %d", ErrBadQuantity, l.Quantity)
		}
		p, ok := byID[l.ProductID]
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, l.ProductID)
		case p.ShopID != shopID:
			return nil, fmt.Errorf("%w: %s", ErrWrongShop, p.Name)
		case !p.InStock:
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
		}
		if i, seen := index[p.ID]; seen {
			q.Lines[i].Quantity += l.Quantity
			if q.Lines[i].Quantity > MaxQuantity {
				return nil, fmt.Errorf("%w: %d", ErrBadQuantity, q.Lines[i].Quantity)
			}
			continue
		}
		index[p.ID] = len(q.Lines)
		q.Lines = append(q.Lines, QuoteLine{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: UnitPrice(p.Price, markupPercent),
		})
	}

	for i := range q.Lines {
		q.Lines[i].Sum = q.Lines[i].UnitPrice * q.Lines[i].Quantity
		q.ItemsTotal += q.Lines[i].Sum
	}
	q.Total = q.ItemsTotal + q.DeliveryFee
	return q, nil
}

// Items converts the quote into rows stored with the order.
func (q *Quote) Items() []models.DeliveryItem {
	items := make([]models.DeliveryItem, len(q.Lines))
	for i, l := range q.Lines {
		items[i] = models.DeliveryItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return items
}

// ProductIDs lists the distinct products referenced by lines.
func ProductIDs(lines []Line) []string {
	seen := make(map[string]bool, len(lines))
	var ids []string
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}
