package token

import "sync"

// Store holds the authoritative token set for the running process. A single
// RWMutex guards the map so concurrent readers always observe either the
// pre- or post-mutation state of a record, never a torn mix of fields.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Get returns a copy of the record for token, or false if it is unknown.
func (s *Store) Get(token string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[token]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Put inserts or replaces the record for token.
func (s *Store) Put(token string, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[token] = rec
}

// Delete removes the record for token, reporting whether it existed.
func (s *Store) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[token]; !ok {
		return false
	}
	delete(s.records, token)
	return true
}

// Update applies fn to the record for token under the write lock, so
// read-modify-write sequences (validation's counter increment plus timestamp
// set) are atomic with respect to every other operation on the same token.
// It reports whether the token exists.
func (s *Store) Update(token string, fn func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[token]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// PutIfAbsent inserts rec only when token is not already present, reporting
// whether the insert happened. The existence check and insert share one
// critical section so concurrent creates cannot both succeed.
func (s *Store) PutIfAbsent(token string, rec *Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[token]; ok {
		return false
	}
	s.records[token] = rec
	return true
}

// Snapshot returns a deep copy of every record keyed by token. Callers must
// not assume any ordering.
func (s *Store) Snapshot() map[string]*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Record, len(s.records))
	for token, rec := range s.records {
		out[token] = rec.Clone()
	}
	return out
}

// Replace swaps the entire content of the store. Used when loading the
// initial snapshot at startup.
func (s *Store) Replace(records map[string]*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if records == nil {
		records = make(map[string]*Record)
	}
	s.records = records
}

// Len returns the number of records in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
