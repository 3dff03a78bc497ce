package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

// Mock DocumentCollection
type mockCollection struct {
	mu           sync.Mutex
	docs         map[string]domain.StockItem
	nextID       int
	creates      []domain.StockItem
	updates      map[string][]domain.Patch
	increments   int
	deletes      []string
	writeErr     error
	subscribeErr error
	sub          *mockSubscription
}

func newMockCollection() *mockCollection {
	return &mockCollection{
		docs:    make(map[string]domain.StockItem),
		updates: make(map[string][]domain.Patch),
		sub:     newMockSubscription(),
	}
}

func (m *mockCollection) put(item domain.StockItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[item.ID] = item
}

func (m *mockCollection) quantity(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Quantity
}

func (m *mockCollection) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.creates) + m.increments + len(m.deletes)
	for _, u := range m.updates {
		n += len(u)
	}
	return n
}

func (m *mockCollection) Subscribe(ctx context.Context, path string) (port.Subscription, error) {
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	return m.sub, nil
}

func (m *mockCollection) Create(ctx context.Context, path string, item domain.StockItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return "", m.writeErr
	}
	m.nextID++
	item.ID = fmt.Sprintf("doc-%d", m.nextID)
	m.creates = append(m.creates, item)
	m.docs[item.ID] = item
	return item.ID, nil
}

func (m *mockCollection) Update(ctx context.Context, path, id string, patch domain.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.updates[id] = append(m.updates[id], patch)
	item, ok := m.docs[id]
	if !ok {
		return port.ErrNotFound
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	item.UpdatedAt = patch.UpdatedAt
	m.docs[id] = item
	return nil
}

func (m *mockCollection) Increment(ctx context.Context, path, id string, delta, floor int, updatedAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.increments++
	item, ok := m.docs[id]
	if !ok {
		return 0, port.ErrNotFound
	}
	if item.Quantity+delta < floor {
		return item.Quantity, port.ErrBelowFloor
	}
	item.Quantity += delta
	item.UpdatedAt = updatedAt
	m.docs[id] = item
	return item.Quantity, nil
}

func (m *mockCollection) Delete(ctx context.Context, path, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.deletes = append(m.deletes, id)
	if _, ok := m.docs[id]; !ok {
		return port.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

// Mock Subscription
type mockSubscription struct {
	updates chan domain.Snapshot
	once    sync.Once
	mu      sync.Mutex
	err     error
}

func newMockSubscription() *mockSubscription {
	return &mockSubscription{updates: make(chan domain.Snapshot, 16)}
}

func (s *mockSubscription) push(items ...domain.StockItem) {
	s.updates <- domain.Snapshot{Items: items, ReceivedAt: time.Now()}
}

func (s *mockSubscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.updates) })
}

func (s *mockSubscription) Updates() <-chan domain.Snapshot { return s.updates }

func (s *mockSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *mockSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.updates) })
}

// Mock Presenter
type mockPresenter struct {
	mu       sync.Mutex
	views    []domain.View
	notes    []port.Notification
	rendered chan domain.View
}

func newMockPresenter() *mockPresenter {
	return &mockPresenter{rendered: make(chan domain.View, 64)}
}

func (p *mockPresenter) Render(view domain.View) {
	p.mu.Lock()
	p.views = append(p.views, view)
	p.mu.Unlock()
	p.rendered <- view
}

func (p *mockPresenter) Notify(n port.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, n)
}

func (p *mockPresenter) notifications() []port.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]port.Notification(nil), p.notes...)
}

func (p *mockPresenter) lastNotification() (port.Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.notes) == 0 {
		return port.Notification{}, false
	}
	return p.notes[len(p.notes)-1], true
}

// Mock Authenticator
type mockAuth struct {
	identity port.Identity
	err      error
}

func (a *mockAuth) Authenticate(ctx context.Context, credential string) (port.Identity, error) {
	return a.identity, a.err
}

func newTestSession(t *testing.T, collection port.DocumentCollection) *Session {
	t.Helper()
	session := NewSession("test-app", collection, &mockAuth{identity: port.Identity{UserID: "user-1"}})
	if _, err := session.Authenticate(context.Background(), "token"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return session
}
