package journal

import (
	"context"
	"errors"
	"sync"
)

var errStoreClosed = errors.New("journal store closed")

// MemoryStore keeps the most recent entries in process memory. A limit of
// zero keeps everything.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
	closed  bool
}

// NewMemoryStore returns an empty MemoryStore retaining at most limit
// entries.
func NewMemoryStore(limit int) *MemoryStore {
	if limit < 0 {
		limit = 0
	}
	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	s.entries = append(s.entries, entry)
	if s.limit > 0 && len(s.entries) > s.limit {
		s.entries = append([]Entry(nil), s.entries[len(s.entries)-s.limit:]...)
	}
	return nil
}

// Entries returns a copy of the retained entries, oldest first.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *MemoryStore) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
