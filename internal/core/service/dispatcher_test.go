package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rl1809/shop-stock/internal/core/domain"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *mockCollection, *mockPresenter, context.CancelFunc) {
	t.Helper()
	collection := newMockCollection()
	presenter := newMockPresenter()
	session := newTestSession(t, collection)
	engine := NewSyncEngine(session, presenter, domain.DefaultReorderPoint)
	mutations := NewMutationService(session, presenter)
	cancel, _ := startEngine(t, engine)
	return NewDispatcher(engine, mutations), collection, presenter, cancel
}

func TestDispatch_AdjustUsesRenderedQuantity(t *testing.T) {
	d, collection, presenter, cancel := newTestDispatcher(t)
	defer cancel()

	item := stockItem("a", 4)
	collection.put(item)
	collection.sub.push(item)
	waitRender(t, presenter)

	if _, err := d.Dispatch(context.Background(), "a", ActionDecrease); err != nil {
		t.Fatalf("decrease failed: %v", err)
	}
	if collection.quantity("a") != 3 {
		t.Errorf("expected 3, got %d", collection.quantity("a"))
	}

	// The view was not refreshed, the dispatcher still sees 4. The atomic
	// increment applies the delta to the stored value regardless.
	if _, err := d.Dispatch(context.Background(), "a", ActionIncrease); err != nil {
		t.Fatalf("increase failed: %v", err)
	}
	if collection.quantity("a") != 4 {
		t.Errorf("expected 4, got %d", collection.quantity("a"))
	}
}

func TestDispatch_DecreaseAtZeroRefused(t *testing.T) {
	d, collection, presenter, cancel := newTestDispatcher(t)
	defer cancel()

	item := stockItem("a", 0)
	collection.put(item)
	collection.sub.push(item)
	waitRender(t, presenter)

	_, err := d.Dispatch(context.Background(), "a", ActionDecrease)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if collection.writes() != 0 {
		t.Error("expected no write")
	}
}

func TestDispatch_EditAndDelete(t *testing.T) {
	d, collection, presenter, cancel := newTestDispatcher(t)
	defer cancel()

	item := stockItem("a", 12)
	collection.put(item)
	collection.sub.push(item)
	waitRender(t, presenter)

	res, err := d.Dispatch(context.Background(), "a", ActionEdit)
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if res.Edit == nil || res.Edit.ID != "a" || res.Edit.Quantity != "12" || res.Edit.Price != "2.00" {
		t.Errorf("unexpected edit prefill: %+v", res.Edit)
	}

	res, err = d.Dispatch(context.Background(), "a", ActionDelete)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if res.Confirmation == nil || res.Confirmation.Name != "item-a" {
		t.Errorf("unexpected confirmation: %+v", res.Confirmation)
	}
	if collection.writes() != 0 {
		t.Error("delete request must not write")
	}
}

func TestDispatch_UnknownItemOrAction(t *testing.T) {
	d, collection, presenter, cancel := newTestDispatcher(t)
	defer cancel()

	item := stockItem("a", 1)
	collection.put(item)
	collection.sub.push(item)
	waitRender(t, presenter)

	if _, err := d.Dispatch(context.Background(), "missing", ActionIncrease); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := d.Dispatch(context.Background(), "a", Action("explode")); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
