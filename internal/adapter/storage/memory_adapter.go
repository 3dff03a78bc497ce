package storage

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

var ErrClosed = errors.New("collection closed")

type memoryCollection struct {
	docs map[string]domain.StockItem
	subs map[*feed]struct{}
}

// MemoryAdapter is a process-local document collection. Every write publishes
// the full collection to all subscribers of the path.
type MemoryAdapter struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
	closed      bool
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryAdapter) collection(path string) *memoryCollection {
	c, ok := m.collections[path]
	if !ok {
		c = &memoryCollection{
			docs: make(map[string]domain.StockItem),
			subs: make(map[*feed]struct{}),
		}
		m.collections[path] = c
	}
	return c
}

func (m *MemoryAdapter) Subscribe(ctx context.Context, path string) (port.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	c := m.collection(path)
	var f *feed
	f = newFeed(func() {
		m.mu.Lock()
		delete(c.subs, f)
		m.mu.Unlock()
	})
	c.subs[f] = struct{}{}
	f.offer(c.snapshot())

	stop := context.AfterFunc(ctx, f.Unsubscribe)
	go func() {
		<-f.stopped()
		stop()
	}()
	return f, nil
}

func (m *MemoryAdapter) Create(ctx context.Context, path string, item domain.StockItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	c := m.collection(path)
	item.ID = uuid.NewString()
	item.Version = 1
	c.docs[item.ID] = item
	c.publish()
	return item.ID, nil
}

func (m *MemoryAdapter) Update(ctx context.Context, path, id string, patch domain.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	c := m.collection(path)
	item, ok := c.docs[id]
	if !ok {
		return port.ErrNotFound
	}
	c.docs[id] = applyPatch(item, patch)
	c.publish()
	return nil
}

func (m *MemoryAdapter) Increment(ctx context.Context, path, id string, delta, floor int, updatedAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	c := m.collection(path)
	item, ok := c.docs[id]
	if !ok {
		return 0, port.ErrNotFound
	}
	if item.Quantity+delta < floor {
		return item.Quantity, port.ErrBelowFloor
	}
	item.Quantity += delta
	item.UpdatedAt = updatedAt
	item.Version++
	c.docs[id] = item
	c.publish()
	return item.Quantity, nil
}

func (m *MemoryAdapter) Delete(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	c := m.collection(path)
	if _, ok := c.docs[id]; !ok {
		return port.ErrNotFound
	}
	delete(c.docs, id)
	c.publish()
	return nil
}

// Break terminates every subscription on path with err, as a dropped
// connection would.
func (m *MemoryAdapter) Break(path string, err error) {
	m.mu.Lock()
	c := m.collection(path)
	feeds := make([]*feed, 0, len(c.subs))
	for f := range c.subs {
		feeds = append(feeds, f)
	}
	m.mu.Unlock()

	for _, f := range feeds {
		f.stop(err)
	}
}

// Close ends all subscriptions cleanly and rejects further calls.
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	m.closed = true
	var feeds []*feed
	for _, c := range m.collections {
		for f := range c.subs {
			feeds = append(feeds, f)
		}
	}
	m.mu.Unlock()

	for _, f := range feeds {
		f.Unsubscribe()
	}
	return nil
}

func (c *memoryCollection) snapshot() domain.Snapshot {
	items := make([]domain.StockItem, 0, len(c.docs))
	for _, item := range c.docs {
		items = append(items, item)
	}
	sortByCreation(items)
	return domain.Snapshot{Items: items, ReceivedAt: time.Now().UTC()}
}

func (c *memoryCollection) publish() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshot()
	for f := range c.subs {
		f.offer(domain.Snapshot{Items: domain.CloneItems(snap.Items), ReceivedAt: snap.ReceivedAt})
	}
}

func applyPatch(item domain.StockItem, patch domain.Patch) domain.StockItem {
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.Price != nil {
		item.Price = *patch.Price
	}
	if patch.OwnerID != nil {
		item.OwnerID = *patch.OwnerID
	}
	item.UpdatedAt = patch.UpdatedAt
	item.Version++
	return item
}

func sortByCreation(items []domain.StockItem) {
	slices.SortFunc(items, func(a, b domain.StockItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
