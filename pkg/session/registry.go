package session

import (
	"errors"
	"sync"
)

// registry owns every subscription a controller opened so they can be torn
// down together.
type registry struct {
	mu     sync.Mutex
	subs   map[string]Subscription
	closed bool
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]Subscription)}
}

// add stores sub under key, closing any previous holder of the key. Once
// the registry is closed, sub is closed immediately and add reports false.
func (r *registry) add(key string, sub Subscription) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Close()
		return false
	}
	prev := r.subs[key]
	r.subs[key] = sub
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *registry) closeAll() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]Subscription)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
