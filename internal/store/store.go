// Package store provides the bounded FIFO stores behind result and spec
// handles. Outside code holds only the opaque IDs a store mints; the
// entries themselves never leave the process.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the store size used unless configured otherwise.
const DefaultCapacity = 20

// Entry is one stored value with its handle.
type Entry[T any] struct {
	ID        string
	Value     T
	CreatedAt time.Time
}

// FIFO is a bounded first-in-first-out store. Inserting into a full store
// evicts the oldest entry; lookups never refresh an entry's position.
type FIFO[T any] struct {
	mu       sync.Mutex
	prefix   string
	capacity int
	entries  []Entry[T]
}

// New returns a FIFO minting IDs like "<prefix>-<8 hex>".
func New[T any](prefix string, capacity int) *FIFO[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO[T]{prefix: prefix, capacity: capacity}
}

// Put stores a value and returns its new ID.
func (s *FIFO[T]) Put(v T) string {
	id := s.prefix + "-" + shortHex()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry[T]{ID: id, Value: v, CreatedAt: time.Now().UTC()})
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	return id
}

// Get returns the entry for id, or ok=false when it was evicted or never
// existed.
func (s *FIFO[T]) Get(id string) (Entry[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry[T]{}, false
}

// Clear empties the store.
func (s *FIFO[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len reports the number of live entries.
func (s *FIFO[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// IDs lists the live entry IDs, oldest first.
func (s *FIFO[T]) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ID
	}
	return ids
}

func shortHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
