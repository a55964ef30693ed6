// Package notify provides change notification for settings updates.
//
// The notify package implements an observer pattern that lets the settings
// registry fan out single-setting changes and bulk reloads to subscribers.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

// ChangeType represents the type of settings change.
type ChangeType int

const (
	// ChangeSet indicates a value was set or updated.
	ChangeSet ChangeType = iota

	// ChangeReload indicates every setting may have changed.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change represents a settings change event.
type Change struct {
	// ID is the dot-separated identifier of the changed setting.
	// Empty for reload events.
	ID string

	// Type is the type of change.
	Type ChangeType

	// OldValue is the previous value (may be nil).
	OldValue any

	// NewValue is the new value (may be nil).
	NewValue any

	// Source identifies where the change came from.
	Source string
}

// Observer is called when settings change.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	notifier *Notifier
	once     sync.Once
}

// Unsubscribe removes this subscription. Notifications started after
// Unsubscribe returns are not delivered to the observer.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.notifier == nil {
		return
	}
	s.once.Do(func() {
		s.notifier.unsubscribe(s.id)
	})
}

// Notifier manages settings change subscriptions.
type Notifier struct {
	mu sync.RWMutex

	// Observers that receive all changes
	globalObservers map[uint64]Observer

	// ID-specific observers
	idObservers map[string]map[uint64]Observer

	nextID uint64
	closed bool

	logger *zap.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger used to report observer panics.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a new Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		globalObservers: make(map[uint64]Observer),
		idObservers:     make(map[string]map[uint64]Observer),
		logger:          zap.NewNop(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.globalObservers[id] = observer

	return &Subscription{id: id, notifier: n}
}

// SubscribeID registers an observer for changes to a specific setting.
// The observer is called for exact matches and for settings below the
// given prefix, so subscribing to "pvrrecord" receives "pvrrecord.marginstart".
// Reload events are delivered to every ID observer.
func (n *Notifier) SubscribeID(id string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	subID := n.nextID
	n.nextID++

	if n.idObservers[id] == nil {
		n.idObservers[id] = make(map[uint64]Observer)
	}
	n.idObservers[id][subID] = observer

	return &Subscription{id: subID, notifier: n}
}

// Notify delivers change to all relevant observers before returning.
// Changes sent after Close are dropped.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	n.deliverChange(change)
}

// NotifySet is a convenience method for set changes.
func (n *Notifier) NotifySet(id string, oldValue, newValue any, source string) {
	n.Notify(Change{
		ID:       id,
		Type:     ChangeSet,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   source,
	})
}

// NotifyReload is a convenience method for reload events.
func (n *Notifier) NotifyReload(source string) {
	n.Notify(Change{
		Type:   ChangeReload,
		Source: source,
	})
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	count := len(n.globalObservers)
	for _, observers := range n.idObservers {
		count += len(observers)
	}
	return count
}

// Close stops delivery. It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.globalObservers, id)

	for key, observers := range n.idObservers {
		delete(observers, id)
		if len(observers) == 0 {
			delete(n.idObservers, key)
		}
	}
}

// deliverChange sends a change to all matching observers.
func (n *Notifier) deliverChange(change Change) {
	n.mu.RLock()

	var matched []uint64
	observers := make(map[uint64]Observer)

	collect := func(set map[uint64]Observer) {
		for id, obs := range set {
			if _, dup := observers[id]; !dup {
				observers[id] = obs
				matched = append(matched, id)
			}
		}
	}

	collect(n.globalObservers)

	if change.ID != "" {
		for key, set := range n.idObservers {
			if key == change.ID || isParentID(key, change.ID) {
				collect(set)
			}
		}
	} else {
		for _, set := range n.idObservers {
			collect(set)
		}
	}

	n.mu.RUnlock()

	// Observers run outside the lock so they may subscribe or unsubscribe.
	for _, id := range matched {
		if !n.active(id) {
			continue
		}
		n.safeCall(observers[id], change)
	}
}

// active reports whether subscription id is still registered.
func (n *Notifier) active(id uint64) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if _, ok := n.globalObservers[id]; ok {
		return true
	}
	for _, set := range n.idObservers {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func (n *Notifier) safeCall(observer Observer, change Change) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("settings observer panicked",
				zap.String("setting", change.ID),
				zap.Stringer("change", change.Type),
				zap.Any("panic", r))
		}
	}()
	observer(change)
}

// isParentID checks if parent is a parent identifier of child.
// e.g., "pvrrecord" is parent of "pvrrecord.marginstart".
func isParentID(parent, child string) bool {
	if parent == "" {
		return true
	}
	return len(child) > len(parent) && child[:len(parent)] == parent && child[len(parent)] == '.'
}

// Batch collects multiple changes and delivers them as a group.
type Batch struct {
	notifier *Notifier
	changes  []Change
	mu       sync.Mutex
}

// NewBatch creates a new batch for collecting changes.
func (n *Notifier) NewBatch() *Batch {
	return &Batch{notifier: n}
}

// Add adds a change to the batch.
func (b *Batch) Add(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, change)
}

// Set adds a set change to the batch.
func (b *Batch) Set(id string, oldValue, newValue any, source string) {
	b.Add(Change{
		ID:       id,
		Type:     ChangeSet,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   source,
	})
}

// Commit sends all batched changes to observers in insertion order.
func (b *Batch) Commit() {
	b.mu.Lock()
	changes := b.changes
	b.changes = nil
	b.mu.Unlock()

	for _, change := range changes {
		b.notifier.Notify(change)
	}
}
