package pricing

import (
	"errors"
	"testing"

	"bombily/pkg/models"
)

func TestUnitPrice(t *testing.T) {
	tests := []struct {
		base, markup, want int
	}{
		{100, 0, 100},
		{100, 15, 115},
		{50, 15, 58},
		{99, 10, 109},
		{1, 1, 2},
		{0, 50, 0},
	}
	for _, tc := range tests {
		if got := UnitPrice(tc.base, tc.markup); got != tc.want {
			t.Errorf("UnitPrice(%d, %d) = %d, want %d", tc.base, tc.markup, got, tc.want)
		}
	}
}

func TestBuild(t *testing.T) {
	products := []*models.Product{
		{ID: "bread", ShopID: "s1", Name: "Хлеб", Price: 50, InStock: true},
		{ID: "milk", ShopID: "s1", Name: "Молоко", Price: 80, InStock: true},
		{ID: "kvass", ShopID: "s1", Name: "Квас", Price: 70},
		{ID: "cheese", ShopID: "s2", Name: "Сыр", Price: 300, InStock: true},
	}

	q, err := Build("s1", []Line{{"bread", 2}, {"milk", 1}, {"bread", 1}}, products, 15, 150)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(q.Lines) != 2 || q.Lines[0].ProductID != "bread" || q.Lines[0].Quantity != 3 {
		t.Fatalf("lines: %+v", q.Lines)
	}
	// bread 58*3 + milk 92
	if q.ItemsTotal != 266 || q.DeliveryFee != 150 || q.Total != 416 {
		t.Fatalf("totals: items=%d fee=%d total=%d", q.ItemsTotal, q.DeliveryFee, q.Total)
	}
	items := q.Items()
	if len(items) != 2 || items[1].UnitPrice != 92 || items[1].Quantity != 1 {
		t.Fatalf("items: %+v", items)
	}

	failures := []struct {
		name  string
		lines []Line
		want  error
	}{
		{"empty", nil, ErrEmptyCart},
		{"zero quantity", []Line{{"bread", 0}}, ErrBadQuantity},
		{"too many", []Line{{"bread", MaxQuantity + 1}}, ErrBadQuantity},
		{"merged too many", []Line{{"bread", MaxQuantity}, {"bread", 1}}, ErrBadQuantity},
		{"unknown", []Line{{"caviar", 1}}, ErrUnknownProduct},
		{"out of stock", []Line{{"kvass", 1}}, ErrOutOfStock},
		{"other shop", []Line{{"cheese", 1}}, ErrWrongShop},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build("s1", tc.lines, products, 0, 0); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestProductIDs(t *testing.T) {
	ids := ProductIDs([]Line{{"a", 1}, {"b", 2}, {"a", 3}})
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids: %v", ids)
	}
}
