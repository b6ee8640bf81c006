package accounts

import "sync"

// AuthChangeBroadcaster fans backend auth-state notifications out to
// subscribers. Backends embed one and call Publish whenever the current
// principal changes; subscriber callbacks run synchronously on the
// publishing goroutine.
type AuthChangeBroadcaster struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]AuthChangeCallback
}

// NewAuthChangeBroadcaster creates an empty broadcaster
func NewAuthChangeBroadcaster() *AuthChangeBroadcaster {
	return &AuthChangeBroadcaster{
		subs: map[uint64]AuthChangeCallback{},
	}
}

// Subscribe registers a callback and returns its subscription handle.
// It does not notify; backends are responsible for delivering the current
// principal to new subscribers before their SubscribeToAuthChanges returns.
func (b *AuthChangeBroadcaster) Subscribe(cb AuthChangeCallback) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs[id] = cb

	return &subscription{id: id, owner: b}
}

// Publish delivers the principal to every registered callback
func (b *AuthChangeBroadcaster) Publish(p Principal) {
	b.mu.Lock()
	cbs := make([]AuthChangeCallback, 0, len(b.subs))
	for _, cb := range b.subs {
		cbs = append(cbs, cb)
	}
	b.mu.Unlock()

	for _, cb := range cbs {
		cb(p)
	}
}

// Len reports the number of live subscriptions
func (b *AuthChangeBroadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *AuthChangeBroadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

type subscription struct {
	id    uint64
	owner *AuthChangeBroadcaster
	once  sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.owner.remove(s.id)
	})
}
