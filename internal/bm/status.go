package bm

import (
	"sync"
	"time"
)

// Backend names the persistence backend reported on the status channel.
const Backend = "sqlite"

// Status describes how durable the store currently is.
type Status struct {
	Backend    string
	Persisted  bool       // the vault accepted the last snapshot or passed ValidateSetup
	LastSaveAt *time.Time // nil until the first successful save
}

// Status returns the current status.
func (s *BMService) Status() Status {
	return s.status.current()
}

// Subscribe registers fn to receive the status now and after every change.
// The returned function removes the subscription.
func (s *BMService) Subscribe(fn func(Status)) (unsubscribe func()) {
	return s.status.subscribe(fn)
}

// RefreshPersisted re-checks the vault and broadcasts the result.
func (s *BMService) RefreshPersisted() Status {
	err := s.vault.ValidateSetup()
	if err != nil {
		s.logger.Warn("vault is not available", "error", err)
	}
	s.status.setPersisted(err == nil)
	return s.status.current()
}

type statusBroadcaster struct {
	mu        sync.Mutex
	status    Status
	listeners map[int]func(Status)
	nextID    int
}

func newStatusBroadcaster(backend string) *statusBroadcaster {
	return &statusBroadcaster{
		status:    Status{Backend: backend},
		listeners: make(map[int]func(Status)),
	}
}

func (b *statusBroadcaster) current() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked()
}

func (b *statusBroadcaster) subscribe(fn func(Status)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	st := b.copyLocked()
	b.mu.Unlock()

	fn(st)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *statusBroadcaster) saved(at time.Time) {
	b.update(func(st *Status) {
		st.Persisted = true
		st.LastSaveAt = &at
	})
}

func (b *statusBroadcaster) setPersisted(ok bool) {
	b.update(func(st *Status) { st.Persisted = ok })
}

// update applies fn and notifies listeners. Listeners run outside the lock.
func (b *statusBroadcaster) update(fn func(*Status)) {
	b.mu.Lock()
	fn(&b.status)
	st := b.copyLocked()
	listeners := make([]func(Status), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l(st)
	}
}

func (b *statusBroadcaster) copyLocked() Status {
	st := b.status
	if st.LastSaveAt != nil {
		at := *st.LastSaveAt
		st.LastSaveAt = &at
	}
	return st
}
