// Package cache provides the in-memory result cache used by the calculator.
package cache

import (
	"context"
	"time"

	"taxcalc/internal/log"
)

// Stats reports cache effectiveness
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically purges expired entries from registered caches
type Manager struct {
	caches []Cleaner
	logger *log.Logger
	done   chan struct{}
}

// NewManager creates a new cache manager
func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		logger: logger.WithComponent(log.ComponentCalculator),
		done:   make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup. Register before Run.
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// Run purges expired entries every interval until ctx is cancelled
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Purged expired cache entries", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// CleanNow purges every registered cache once and returns the number of
// entries removed
func (m *Manager) CleanNow() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Done is closed once Run has returned
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
