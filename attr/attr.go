// Package attr provides typed, identity-keyed attribute stores that can be
// attached to long-lived objects (a listening socket, an accepted
// connection) to carry out-of-band metadata without extending their types.
//
// Keys compare by identity, never by name: two keys created with the same
// label are distinct entries, so unrelated features cannot collide.
//
//	var clientKey = attr.NewKey[string]("clientKey")
//
//	attr.Set(store, clientKey, "clientValue")
//	v, ok := attr.Get(store, clientKey)
package attr

import (
	"fmt"
	"sync"
)

// AnyKey is implemented by every *Key[T].  It lets a Store report the
// names of its entries without knowing their value types.
type AnyKey interface {
	Name() string
	keyTag()
}

// Key identifies one attribute whose value has type T.
type Key[T any] struct {
	name string
}

// NewKey returns a new key.  The name is for display only.
func NewKey[T any](name string) *Key[T] {
	return &Key[T]{name: name}
}

// Name returns the key's display label.
func (k *Key[T]) Name() string { return k.name }

func (k *Key[T]) String() string {
	var zero T
	return fmt.Sprintf("%s(%T)", k.name, zero)
}

func (k *Key[T]) keyTag() {}

// Store maps keys to values.  It is safe for concurrent use.  A nil
// *Store reads as empty; writing to it panics.
type Store struct {
	mu sync.RWMutex
	m  map[AnyKey]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{m: make(map[AnyKey]any)}
}

// Set stores v under k, overwriting any previous value.
func Set[T any](s *Store, k *Key[T], v T) {
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[AnyKey]any)
	}
	s.m[k] = v
	s.mu.Unlock()
}

// Get returns the value stored under k, or the zero value and false if
// k was never set.
func Get[T any](s *Store, k *Key[T]) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	s.mu.RLock()
	v, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// SetIfAbsent stores v under k only if k has no value yet.  It returns
// the value that ends up stored and whether v was inserted.
func SetIfAbsent[T any](s *Store, k *Key[T], v T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[AnyKey]any)
	}
	if cur, ok := s.m[k]; ok {
		return cur.(T), false
	}
	s.m[k] = v
	return v, true
}

// Delete removes k.  Deleting an absent key is a no-op.
func Delete(s *Store, k AnyKey) {
	s.mu.Lock()
	delete(s.m, k)
	s.mu.Unlock()
}

// Has reports whether k has a value.
func Has(s *Store, k AnyKey) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	_, ok := s.m[k]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Clone returns a new store holding the same entries.  Values are copied
// by assignment; reference-typed values are shared, not deep-copied.
func (s *Store) Clone() *Store {
	c := NewStore()
	if s == nil {
		return c
	}
	s.mu.RLock()
	for k, v := range s.m {
		c.m[k] = v
	}
	s.mu.RUnlock()
	return c
}

// Range calls fn for each entry until fn returns false.  fn must not
// modify the store.  Iteration order is unspecified.
func (s *Store) Range(fn func(k AnyKey, v any) bool) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.m {
		if !fn(k, v) {
			return
		}
	}
}

// Names returns the display names of all set keys, for diagnostics.
func (s *Store) Names() []string {
	var out []string
	s.Range(func(k AnyKey, _ any) bool {
		out = append(out, k.Name())
		return true
	})
	return out
}
