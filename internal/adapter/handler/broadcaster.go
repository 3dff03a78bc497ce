package handler

import (
	"context"
	"log"
	"sync"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

const (
	EventRender = "render"
	EventNotify = "notify"
)

const noticeBuffer = 32

// Event is one message pushed to connected viewers.
type Event struct {
	Type         string
	View         domain.View
	Notification port.Notification
}

// Broadcaster is the process presenter. It fans every render and notification
// out to connected viewers. Renders are coalesced per viewer, so a viewer that
// falls behind skips intermediate views but always ends on the latest one.
// Notifications beyond noticeBuffer are dropped for that viewer.
type Broadcaster struct {
	mu      sync.Mutex
	viewers map[*Viewer]struct{}
	closed  bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{viewers: make(map[*Viewer]struct{})}
}

func (b *Broadcaster) Render(view domain.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for v := range b.viewers {
		v.offer(view)
	}
}

func (b *Broadcaster) Notify(n port.Notification) {
	log.Printf("notify [%s]: %s", n.Severity, n.Message)

	b.mu.Lock()
	defer b.mu.Unlock()
	for v := range b.viewers {
		select {
		case v.notices <- n:
		default:
		}
	}
}

// Subscribe registers a viewer. Cancel must be called once the viewer goes
// away. After Close the returned viewer is already ended.
func (b *Broadcaster) Subscribe() *Viewer {
	v := &Viewer{
		b:       b,
		notices: make(chan port.Notification, noticeBuffer),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		v.stop()
		return v
	}
	b.viewers[v] = struct{}{}
	return v
}

// Close ends every viewer and refuses new ones. Streams blocked in Next
// return, which lets http.Server.Shutdown finish.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for v := range b.viewers {
		v.stop()
		delete(b.viewers, v)
	}
}

// Viewer is one connected client of a Broadcaster.
type Viewer struct {
	b       *Broadcaster
	notices chan port.Notification
	signal  chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	pending *domain.View

	once sync.Once
}

func (v *Viewer) offer(view domain.View) {
	v.mu.Lock()
	v.pending = &view
	v.mu.Unlock()

	select {
	case v.signal <- struct{}{}:
	default:
	}
}

// Next blocks until the viewer has an event. It returns false once ctx is
// done, the viewer is cancelled or the broadcaster is closed.
func (v *Viewer) Next(ctx context.Context) (Event, bool) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, false
		case <-v.done:
			return Event{}, false
		case n := <-v.notices:
			return Event{Type: EventNotify, Notification: n}, true
		case <-v.signal:
			v.mu.Lock()
			view := v.pending
			v.pending = nil
			v.mu.Unlock()
			if view == nil {
				continue
			}
			return Event{Type: EventRender, View: *view}, true
		}
	}
}

func (v *Viewer) Cancel() {
	v.b.mu.Lock()
	delete(v.b.viewers, v)
	v.b.mu.Unlock()
	v.stop()
}

func (v *Viewer) stop() {
	v.once.Do(func() { close(v.done) })
}
