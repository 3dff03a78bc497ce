package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rl1809/shop-stock/internal/core/domain"
)

type Action string

const (
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
)

// DispatchResult carries what an action hands back to the caller: the form
// prefill for edit, the prompt for delete.
type DispatchResult struct {
	Edit         *UpsertInput
	Confirmation *Confirmation
}

// Dispatcher routes per-item controls to mutations using the item as it
// appeared in the last rendered view.
type Dispatcher struct {
	engine    *SyncEngine
	mutations *MutationService
}

func NewDispatcher(engine *SyncEngine, mutations *MutationService) *Dispatcher {
	return &Dispatcher{engine: engine, mutations: mutations}
}

func (d *Dispatcher) Dispatch(ctx context.Context, id string, action Action) (DispatchResult, error) {
	iv, ok := d.engine.View().Find(id)
	if !ok {
		return DispatchResult{}, domain.NewError(domain.KindValidation, fmt.Sprintf("item %s is not in the current view", id))
	}

	switch action {
	case ActionIncrease:
		return DispatchResult{}, d.mutations.AdjustQuantity(ctx, id, 1, iv.Item.Quantity)
	case ActionDecrease:
		return DispatchResult{}, d.mutations.AdjustQuantity(ctx, id, -1, iv.Item.Quantity)
	case ActionEdit:
		return DispatchResult{Edit: &UpsertInput{
			ID:       iv.Item.ID,
			Name:     iv.Item.Name,
			Quantity: strconv.Itoa(iv.Item.Quantity),
			Price:    iv.Price,
		}}, nil
	case ActionDelete:
		c, err := d.mutations.RequestDelete(ctx, id, iv.Item.Name)
		if err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{Confirmation: &c}, nil
	default:
		return DispatchResult{}, domain.NewError(domain.KindValidation, fmt.Sprintf("unknown action %q", action))
	}
}
