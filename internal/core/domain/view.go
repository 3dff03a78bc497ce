package domain

import (
	"cmp"
	"slices"
)

type Status string

const (
	StatusCritical   Status = "critical"
	StatusOutOfStock Status = "out_of_stock"
	StatusInStock    Status = "in_stock"
)

// Classify flags an item. Critical takes precedence over out-of-stock.
func Classify(quantity, reorderPoint int) Status {
	switch {
	case quantity <= reorderPoint:
		return StatusCritical
	case quantity == 0:
		return StatusOutOfStock
	default:
		return StatusInStock
	}
}

type ItemView struct {
	Item        StockItem
	Status      Status
	Price       string
	CanDecrease bool
}

type View struct {
	Items []ItemView
	Empty bool
	Stale bool
}

// Project orders items by quantity ascending, then by creation time and id, and
// classifies each one. The input slice is not modified.
func Project(items []StockItem, reorderPoint int) View {
	sorted := CloneItems(items)
	slices.SortStableFunc(sorted, func(a, b StockItem) int {
		if c := cmp.Compare(a.Quantity, b.Quantity); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	view := View{Items: make([]ItemView, 0, len(sorted)), Empty: len(sorted) == 0}
	for _, item := range sorted {
		view.Items = append(view.Items, ItemView{
			Item:        item,
			Status:      Classify(item.Quantity, reorderPoint),
			Price:       FormatPrice(item.Price),
			CanDecrease: item.Quantity > 0,
		})
	}
	return view
}

// Find returns the item view with the given id.
func (v View) Find(id string) (ItemView, bool) {
	for _, iv := range v.Items {
		if iv.Item.ID == id {
			return iv, true
		}
	}
	return ItemView{}, false
}
