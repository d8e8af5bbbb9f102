package main

import "sync"

// Registry is the set of live subscribers. All methods are safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	tel         *telemetry
}

func newRegistry(tel *telemetry) *Registry {
	return &Registry{
		subscribers: make(map[Subscriber]struct{}),
		tel:         tel,
	}
}

func (r *Registry) Add(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[sub] = struct{}{}
	r.tel.setSubscribers(len(r.subscribers))
}

// Remove is a no-op for subscribers that are not registered.
func (r *Registry) Remove(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, sub)
	r.tel.setSubscribers(len(r.subscribers))
}

// RemoveAll drops every given subscriber under a single lock.
func (r *Registry) RemoveAll(subs []Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range subs {
		delete(r.subscribers, sub)
	}
	r.tel.setSubscribers(len(r.subscribers))
}

// Snapshot returns a point-in-time copy of the membership. Later Add and
// Remove calls do not affect the returned slice.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for sub := range r.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

func (r *Registry) Contains(sub Subscriber) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subscribers[sub]
	return ok
}
