package service

import (
	"context"
	"errors"
	"log"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

type EngineState string

const (
	StateIdle        EngineState = "idle"
	StateConnecting  EngineState = "connecting"
	StateLive        EngineState = "live"
	StateUnavailable EngineState = "unavailable"
	StateStale       EngineState = "stale"
	StateStopped     EngineState = "stopped"
)

const (
	msgAuthRequired     = "Authentication required to load inventory."
	msgListenerFailed   = "Failed to initialize database listener."
	msgConnectionBroken = "A connection error occurred with the database."
)

var ErrAlreadyStarted = errors.New("sync engine already started")

// SyncEngine keeps a local snapshot that mirrors the remote collection. The
// snapshot is only ever replaced wholesale from subscription notifications.
type SyncEngine struct {
	session      *Session
	presenter    port.Presenter
	reorderPoint int

	mu        sync.RWMutex
	started   bool
	state     EngineState
	items     []domain.StockItem
	view      domain.View
	listeners []func(EngineState)
}

func NewSyncEngine(session *Session, presenter port.Presenter, reorderPoint int) *SyncEngine {
	return &SyncEngine{
		session:      session,
		presenter:    presenter,
		reorderPoint: reorderPoint,
		state:        StateIdle,
		items:        []domain.StockItem{},
		view:         domain.Project(nil, reorderPoint),
	}
}

// OnStateChange registers fn to be called after every state transition.
func (e *SyncEngine) OnStateChange(fn func(EngineState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Run opens the single standing subscription and renders every snapshot it
// delivers. It returns nil when ctx is cancelled or the feed is closed cleanly.
// There is no reconnection: a broken feed leaves the engine stale.
func (e *SyncEngine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	if _, ok := e.session.Identity(); !ok {
		e.setState(StateUnavailable)
		e.presenter.Notify(port.Notification{Message: msgAuthRequired, Severity: port.SeverityError})
		return domain.NewError(domain.KindAuth, "session is not authenticated")
	}

	e.setState(StateConnecting)
	sub, err := e.session.Collection().Subscribe(ctx, e.session.Path())
	if err != nil {
		log.Printf("sync: failed to subscribe to %s: %v", e.session.Path(), err)
		e.setState(StateUnavailable)
		e.presenter.Notify(port.Notification{Message: msgListenerFailed, Severity: port.SeverityError})
		return domain.WrapError(domain.KindSubscription, "subscribe", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			e.setState(StateStopped)
			return nil
		case snap, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					log.Printf("sync: subscription to %s broke: %v", e.session.Path(), err)
					e.markStale()
					e.presenter.Notify(port.Notification{Message: msgConnectionBroken, Severity: port.SeverityError})
					return domain.WrapError(domain.KindSubscription, "subscription broken", err)
				}
				e.setState(StateStopped)
				return nil
			}
			e.apply(ctx, snap)
		}
	}
}

func (e *SyncEngine) apply(ctx context.Context, snap domain.Snapshot) {
	_, span := tracer.Start(ctx, "sync.apply")
	defer span.End()

	items := domain.CloneItems(snap.Items)
	view := domain.Project(items, e.reorderPoint)
	span.SetAttributes(attribute.Int("stock.items", len(items)))

	e.mu.Lock()
	e.items = items
	e.view = view
	changed := e.state != StateLive
	e.state = StateLive
	listeners := e.listeners
	e.mu.Unlock()

	if changed {
		notifyListeners(listeners, StateLive)
	}
	e.presenter.Render(view)
}

func (e *SyncEngine) markStale() {
	e.mu.Lock()
	e.view.Stale = true
	view := e.view
	e.state = StateStale
	listeners := e.listeners
	e.mu.Unlock()

	notifyListeners(listeners, StateStale)
	e.presenter.Render(view)
}

func (e *SyncEngine) setState(state EngineState) {
	e.mu.Lock()
	if e.state == state {
		e.mu.Unlock()
		return
	}
	e.state = state
	listeners := e.listeners
	e.mu.Unlock()

	notifyListeners(listeners, state)
}

func notifyListeners(listeners []func(EngineState), state EngineState) {
	for _, fn := range listeners {
		fn(state)
	}
}

func (e *SyncEngine) State() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Snapshot returns a copy of the items from the last notification.
func (e *SyncEngine) Snapshot() []domain.StockItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.CloneItems(e.items)
}

// View returns the last rendered projection.
func (e *SyncEngine) View() domain.View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v := e.view
	v.Items = append([]domain.ItemView(nil), e.view.Items...)
	return v
}
