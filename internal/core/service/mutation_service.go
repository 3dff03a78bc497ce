package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

type AdjustMode string

const (
	// AdjustAtomic pushes the delta to storage, which applies it with a floor guard.
	AdjustAtomic AdjustMode = "atomic"
	// AdjustLastWrite writes currentQuantity+delta as seen in the rendered view.
	// Concurrent adjustments from several clients can overwrite each other.
	AdjustLastWrite AdjustMode = "last-write"
)

const defaultConfirmationTTL = 2 * time.Minute

const (
	msgInvalidInput  = "Please enter valid data for all fields (Price must be > $0.00)."
	msgSaveFailed    = "Failed to save product details."
	msgBelowZero     = "Stock cannot go below zero!"
	msgAdjustFailed  = "Failed to adjust stock count."
	msgDeleteFailed  = "Failed to delete product."
	msgDeleteExpired = "Delete request expired. Please try again."
	msgUpdated       = "Stock for \"%s\" updated successfully."
	msgRegistered    = "New item \"%s\" registered."
	msgRemoved       = "Product \"%s\" has been removed."
	msgConfirmPrompt = "Are you absolutely sure you want to permanently remove \"%s\" from stock?"
)

// ErrNoIdentity is returned, without any notification, when a mutation is
// attempted before the session is authenticated.
var ErrNoIdentity = errors.New("no authenticated identity")

type UpsertInput struct {
	ID       string
	Name     string
	Quantity string
	Price    string
}

type UpsertResult struct {
	ID          string
	Created     bool
	CloseEditor bool
}

type Confirmation struct {
	Token     string
	ItemID    string
	Name      string
	Prompt    string
	ExpiresAt time.Time
}

type DeleteOutcome string

const (
	DeleteDone      DeleteOutcome = "deleted"
	DeleteCancelled DeleteOutcome = "cancelled"
)

type pendingDelete struct {
	confirmation Confirmation
	userID       string
}

type MutationService struct {
	session    *Session
	presenter  port.Presenter
	mode       AdjustMode
	now        func() time.Time
	confirmTTL time.Duration

	mu      sync.Mutex
	pending map[string]pendingDelete
}

type MutationOption func(*MutationService)

func WithAdjustMode(mode AdjustMode) MutationOption {
	return func(s *MutationService) { s.mode = mode }
}

func WithClock(now func() time.Time) MutationOption {
	return func(s *MutationService) { s.now = now }
}

func WithConfirmationTTL(ttl time.Duration) MutationOption {
	return func(s *MutationService) { s.confirmTTL = ttl }
}

func NewMutationService(session *Session, presenter port.Presenter, opts ...MutationOption) *MutationService {
	s := &MutationService{
		session:    session,
		presenter:  presenter,
		mode:       AdjustAtomic,
		now:        domain.Now,
		confirmTTL: defaultConfirmationTTL,
		pending:    make(map[string]pendingDelete),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert validates form input and creates or updates an item. The local
// snapshot is left alone; the next notification carries the change.
func (s *MutationService) Upsert(ctx context.Context, in UpsertInput) (res UpsertResult, err error) {
	ctx, span := tracer.Start(ctx, "mutation.upsert")
	defer func() { endSpan(span, err) }()

	identity, ok := s.session.Identity()
	if !ok {
		return UpsertResult{}, ErrNoIdentity
	}

	name := strings.TrimSpace(in.Name)
	quantity, qerr := strconv.Atoi(strings.TrimSpace(in.Quantity))
	price, priceOK := domain.ParsePrice(in.Price)
	if name == "" || qerr != nil || quantity < 0 || !priceOK {
		s.notifyError(msgInvalidInput)
		return UpsertResult{}, domain.NewError(domain.KindValidation, "invalid stock item fields")
	}

	now := s.now()
	collection := s.session.Collection()
	path := s.session.Path()

	if id := strings.TrimSpace(in.ID); id != "" {
		span.SetAttributes(attribute.String("stock.item_id", id))
		patch := domain.Patch{
			Name:      &name,
			Quantity:  &quantity,
			Price:     &price,
			OwnerID:   &identity.UserID,
			UpdatedAt: now,
		}
		if err := collection.Update(ctx, path, id, patch); err != nil {
			log.Printf("mutation: failed to update item %s: %v", id, err)
			s.notifyError(msgSaveFailed)
			return UpsertResult{}, domain.WrapError(domain.KindWrite, "update stock item", err)
		}
		s.notifyInfo(fmt.Sprintf(msgUpdated, name))
		return UpsertResult{ID: id, CloseEditor: true}, nil
	}

	item := domain.StockItem{
		Name:      name,
		Quantity:  quantity,
		Price:     price,
		OwnerID:   identity.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := collection.Create(ctx, path, item)
	if err != nil {
		log.Printf("mutation: failed to create item %q: %v", name, err)
		s.notifyError(msgSaveFailed)
		return UpsertResult{}, domain.WrapError(domain.KindWrite, "create stock item", err)
	}
	span.SetAttributes(attribute.String("stock.item_id", id))
	s.notifyInfo(fmt.Sprintf(msgRegistered, name))
	return UpsertResult{ID: id, Created: true, CloseEditor: true}, nil
}

// AdjustQuantity moves stock in or out by one unit. currentQuantity is the value
// the caller saw in the last rendered view.
func (s *MutationService) AdjustQuantity(ctx context.Context, id string, delta, currentQuantity int) (err error) {
	ctx, span := tracer.Start(ctx, "mutation.adjust")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("stock.item_id", id),
		attribute.Int("stock.delta", delta),
		attribute.String("stock.adjust_mode", string(s.mode)),
	)

	if _, ok := s.session.Identity(); !ok {
		return ErrNoIdentity
	}
	if delta != 1 && delta != -1 {
		s.notifyError(msgAdjustFailed)
		return domain.NewError(domain.KindValidation, fmt.Sprintf("unsupported delta %d", delta))
	}

	newQuantity := currentQuantity + delta
	if newQuantity < 0 {
		s.notifyError(msgBelowZero)
		return domain.NewError(domain.KindValidation, "quantity would be negative")
	}

	now := s.now()
	collection := s.session.Collection()
	path := s.session.Path()

	switch s.mode {
	case AdjustLastWrite:
		err = collection.Update(ctx, path, id, domain.Patch{Quantity: &newQuantity, UpdatedAt: now})
	default:
		_, err = collection.Increment(ctx, path, id, delta, 0, now)
	}
	if err != nil {
		if errors.Is(err, port.ErrBelowFloor) {
			s.notifyError(msgBelowZero)
			return domain.WrapError(domain.KindWrite, "stock drained concurrently", err)
		}
		log.Printf("mutation: failed to adjust item %s by %d: %v", id, delta, err)
		s.notifyError(msgAdjustFailed)
		return domain.WrapError(domain.KindWrite, "adjust stock", err)
	}
	return nil
}

// RequestDelete starts the two-phase delete and returns the prompt the user must answer.
func (s *MutationService) RequestDelete(ctx context.Context, id, name string) (Confirmation, error) {
	identity, ok := s.session.Identity()
	if !ok {
		return Confirmation{}, ErrNoIdentity
	}
	if strings.TrimSpace(id) == "" {
		s.notifyError(msgDeleteFailed)
		return Confirmation{}, domain.NewError(domain.KindValidation, "item id is required")
	}

	now := s.now()
	c := Confirmation{
		Token:     uuid.NewString(),
		ItemID:    id,
		Name:      name,
		Prompt:    fmt.Sprintf(msgConfirmPrompt, name),
		ExpiresAt: now.Add(s.confirmTTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for token, p := range s.pending {
		if !now.Before(p.confirmation.ExpiresAt) {
			delete(s.pending, token)
		}
	}
	s.pending[c.Token] = pendingDelete{confirmation: c, userID: identity.UserID}
	return c, nil
}

// ConfirmDelete completes a pending delete. Any answer other than "yes" cancels it.
func (s *MutationService) ConfirmDelete(ctx context.Context, token, answer string) (outcome DeleteOutcome, err error) {
	ctx, span := tracer.Start(ctx, "mutation.delete")
	defer func() { endSpan(span, err) }()

	identity, ok := s.session.Identity()
	if !ok {
		return "", ErrNoIdentity
	}

	s.mu.Lock()
	p, found := s.pending[token]
	delete(s.pending, token)
	s.mu.Unlock()

	if !found || !s.now().Before(p.confirmation.ExpiresAt) || p.userID != identity.UserID {
		s.notifyError(msgDeleteExpired)
		return "", domain.NewError(domain.KindValidation, "no pending confirmation for token")
	}
	if !strings.EqualFold(strings.TrimSpace(answer), "yes") {
		return DeleteCancelled, nil
	}

	c := p.confirmation
	span.SetAttributes(attribute.String("stock.item_id", c.ItemID))
	if err := s.session.Collection().Delete(ctx, s.session.Path(), c.ItemID); err != nil {
		log.Printf("mutation: failed to delete item %s: %v", c.ItemID, err)
		s.notifyError(msgDeleteFailed)
		return "", domain.WrapError(domain.KindWrite, "delete stock item", err)
	}
	s.notifyInfo(fmt.Sprintf(msgRemoved, c.Name))
	return DeleteDone, nil
}

func (s *MutationService) notifyInfo(msg string) {
	s.presenter.Notify(port.Notification{Message: msg, Severity: port.SeverityInfo})
}

func (s *MutationService) notifyError(msg string) {
	s.presenter.Notify(port.Notification{Message: msg, Severity: port.SeverityError})
}
