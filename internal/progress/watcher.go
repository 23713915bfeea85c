package progress

import (
	"context"
	"sync"
)

// SnapshotResolver is satisfied by *Resolver
type SnapshotResolver interface {
	Resolve(ctx context.Context, userID string) Snapshot
}

// Subscription receives the latest snapshot of one user. A slow reader only
// ever sees the most recent value.
type Subscription struct {
	userID  string
	ch      chan Snapshot
	watcher *Watcher
	once    sync.Once
}

// C is closed when the subscription is closed
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.watcher.remove(s)
	})
}

// Watcher tracks progress subscribers per user
type Watcher struct {
	resolver SnapshotResolver

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewWatcher(resolver SnapshotResolver) *Watcher {
	return &Watcher{
		resolver: resolver,
		subs:     make(map[string]map[*Subscription]struct{}),
	}
}

func (w *Watcher) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		userID:  userID,
		ch:      make(chan Snapshot, 1),
		watcher: w,
	}

	w.mu.Lock()
	if w.subs[userID] == nil {
		w.subs[userID] = make(map[*Subscription]struct{})
	}
	w.subs[userID][sub] = struct{}{}
	w.mu.Unlock()

	return sub
}

// Publish re-resolves userID and delivers the result to its subscribers.
func (w *Watcher) Publish(ctx context.Context, userID string) {
	if !w.hasSubscribers(userID) {
		return
	}
	w.Deliver(userID, w.resolver.Resolve(ctx, userID))
}

// Deliver hands snap to every subscriber of userID without blocking.
func (w *Watcher) Deliver(userID string, snap Snapshot) {
	// Exclusive so concurrent deliveries cannot reorder a drain and a send.
	w.mu.Lock()
	defer w.mu.Unlock()

	for sub := range w.subs[userID] {
		// Drop the stale value, if any, so the send below cannot block.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions for userID
func (w *Watcher) Subscribers(userID string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.subs[userID])
}

func (w *Watcher) hasSubscribers(userID string) bool {
	return w.Subscribers(userID) > 0
}

func (w *Watcher) remove(sub *Subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if set, ok := w.subs[sub.userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(w.subs, sub.userID)
		}
	}
	close(sub.ch)
}
