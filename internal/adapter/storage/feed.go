package storage

import (
	"sync"

	"github.com/rl1809/shop-stock/internal/core/domain"
)

// feed delivers snapshots to a single subscriber in order. A snapshot that has
// not been picked up yet is replaced by a newer one, so a slow reader always
// ends on the latest state.
type feed struct {
	updates chan domain.Snapshot
	signal  chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	pending *domain.Snapshot
	err     error

	once    sync.Once
	onClose func()
}

func newFeed(onClose func()) *feed {
	f := &feed{
		updates: make(chan domain.Snapshot),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go f.pump()
	return f
}

func (f *feed) offer(snap domain.Snapshot) {
	f.mu.Lock()
	f.pending = &snap
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *feed) pump() {
	defer close(f.updates)
	for {
		select {
		case <-f.done:
			return
		case <-f.signal:
			f.mu.Lock()
			snap := f.pending
			f.pending = nil
			f.mu.Unlock()
			if snap == nil {
				continue
			}
			select {
			case f.updates <- *snap:
			case <-f.done:
				return
			}
		}
	}
}

// stop ends the feed. A non-nil err is reported to the subscriber through Err.
func (f *feed) stop(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
		if f.onClose != nil {
			f.onClose()
		}
	})
}

func (f *feed) stopped() <-chan struct{} {
	return f.done
}

func (f *feed) Updates() <-chan domain.Snapshot {
	return f.updates
}

func (f *feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *feed) Unsubscribe() {
	f.stop(nil)
}
