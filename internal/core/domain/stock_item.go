package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ItemCollection      = "my_shop_stock"
	DefaultReorderPoint = 5
)

type StockItem struct {
	ID        string
	Name      string
	Quantity  int
	Price     decimal.Decimal
	OwnerID   string
	Version   int64 // maintained by storage on every write
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch is a partial update. Nil fields are left untouched; UpdatedAt is always written.
type Patch struct {
	Name      *string
	Quantity  *int
	Price     *decimal.Decimal
	OwnerID   *string
	UpdatedAt time.Time
}

// Snapshot is the full content of a collection as delivered by one notification.
type Snapshot struct {
	Items      []StockItem
	ReceivedAt time.Time
}

// CollectionPath returns the shared public collection for an application instance.
func CollectionPath(appID string) string {
	return fmt.Sprintf("/artifacts/%s/public/data/%s", appID, ItemCollection)
}

// Now returns the current time truncated to the millisecond precision storage keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func CloneItems(items []StockItem) []StockItem {
	if items == nil {
		return []StockItem{}
	}
	out := make([]StockItem, len(items))
	copy(out, items)
	return out
}
