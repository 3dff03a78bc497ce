package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/shop-stock/internal/core/domain"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrBelowFloor = errors.New("quantity would drop below floor")
)

// Subscription is a live feed of full collection snapshots.
type Subscription interface {
	// Updates is closed when the subscription ends, either by Unsubscribe or a fatal error.
	Updates() <-chan domain.Snapshot

	// Err reports the error that ended the feed; nil after a clean Unsubscribe.
	Err() error

	Unsubscribe()
}

type DocumentCollection interface {
	// Subscribe starts a feed that first delivers the current content and then a new
	// snapshot after every change. It is not restartable.
	Subscribe(ctx context.Context, path string) (Subscription, error)

	// Create stores a new document and returns the id assigned to it.
	Create(ctx context.Context, path string, item domain.StockItem) (string, error)

	// Update applies a partial update, ErrNotFound if the document is gone.
	Update(ctx context.Context, path, id string, patch domain.Patch) error

	// Increment atomically adds delta to the quantity unless the result would be
	// below floor (ErrBelowFloor). Returns the stored quantity.
	Increment(ctx context.Context, path, id string, delta, floor int, updatedAt time.Time) (int, error)

	// Delete removes a document, ErrNotFound if it is already gone.
	Delete(ctx context.Context, path, id string) error
}
