package dispatcher

import (
	"sync"
	"time"
)

// DefaultPendingTTL bounds how long an operator may take to send the photo.
const DefaultPendingTTL = 10 * time.Minute

// PendingKind names the flow awaiting a photo.
type PendingKind string

const (
	// PendingAttach follows addbutton and attaches the first thumbnail.
	PendingAttach PendingKind = "attach"
	// PendingReplace follows setthumb and replaces the thumbnail.
	PendingReplace PendingKind = "replace"
)

// Pending records that an operator is expected to send a photo for a button.
type Pending struct {
	Kind       PendingKind
	ButtonID   string
	ButtonText string
	ExpiresAt  time.Time
}

// PendingStore holds at most one pending flow per operator. Writes are
// last-write-wins.
type PendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	entries map[int64]Pending
}

// NewPendingStore constructs a PendingStore. A non-positive ttl selects
// DefaultPendingTTL.
func NewPendingStore(ttl time.Duration, clock Clock) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &PendingStore{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[int64]Pending),
	}
}

// Set records p for userID and returns the live entry it replaced, if any.
func (s *PendingStore) Set(userID int64, p Pending) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	prev, had := s.entries[userID]
	if had && !now.Before(prev.ExpiresAt) {
		had = false
	}

	p.ExpiresAt = now.Add(s.ttl)
	s.entries[userID] = p

	return prev, had
}

// Take removes and returns the live entry for userID.
func (s *PendingStore) Take(userID int64) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[userID]
	if !ok {
		return Pending{}, false
	}
	delete(s.entries, userID)

	if !s.clock.Now().Before(p.ExpiresAt) {
		return Pending{}, false
	}

	return p, true
}

// Clear drops the entry for userID and reports whether a live one existed.
func (s *PendingStore) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[userID]
	delete(s.entries, userID)

	return ok && s.clock.Now().Before(p.ExpiresAt)
}

// Sweep removes expired entries and returns how many were dropped.
func (s *PendingStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, p := range s.entries {
		if !now.Before(p.ExpiresAt) {
			delete(s.entries, id)
			removed++
		}
	}

	return removed
}

// size reports the number of stored entries, expired or not.
func (s *PendingStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
