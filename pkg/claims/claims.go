// Package claims reserves short-lived keys so that concurrent triggers do not
// send the same notification twice.
package claims

import (
	"context"
	"sync"
	"time"
)

// Claimer atomically reserves keys for a limited time.
type Claimer interface {
	// Claim reserves key for ttl. It returns false if the key is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a reservation so a later trigger may claim the key again.
	Release(ctx context.Context, key string) error
}

// Memory is an in-process Claimer. It only guards triggers within one process.
type Memory struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewMemory creates an empty in-process claimer.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, ok := m.held[key]; ok && now.Before(until) {
		return false, nil
	}
	m.held[key] = now.Add(ttl)

	// Opportunistic sweep keeps the map bounded.
	for k, until := range m.held {
		if !now.Before(until) {
			delete(m.held, k)
		}
	}
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
	return nil
}

var _ Claimer = (*Memory)(nil)
