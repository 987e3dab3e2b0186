package ratelimit

import (
	"context"
	"sync"
	"time"
)

// clientWindows is one client's sliding-window request log for both caps:
// a slice of request timestamps per window, trimmed of anything older than
// the window's period before every count.
type clientWindows struct {
	mu      sync.Mutex
	minute  []time.Time
	hour    []time.Time
	lastHit time.Time
}

// LocalStore is a single-process fallback for when Redis is unreachable: a
// mutex-guarded map of per-client timestamp logs, trimmed and counted the
// same way RedisStore's sorted sets are (drop anything outside the window,
// then compare the remaining count to the limit), so a client sees
// identical admission behavior whether or not Redis is reachable.
type LocalStore struct {
	mu          sync.Mutex
	clients     map[string]*clientWindows
	lastCleanup time.Time

	PerMinute int
	PerHour   int
}

// NewLocalStore builds a LocalStore with the given per-minute/per-hour caps.
func NewLocalStore(perMinute, perHour int) *LocalStore {
	return &LocalStore{
		clients:     map[string]*clientWindows{},
		lastCleanup: time.Now(),
		PerMinute:   perMinute,
		PerHour:     perHour,
	}
}

func (s *LocalStore) windowsFor(clientID string) *clientWindows {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.clients[clientID]
	if !ok {
		w = &clientWindows{}
		s.clients[clientID] = w
	}
	return w
}

// trim drops timestamps older than cutoff from ts, preserving order.
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// Allow admits clientID's request if both trimmed windows have room, the
// same trim-then-count logic RedisStore's sorted-set windows use.
func (s *LocalStore) Allow(ctx context.Context, clientID string) (Decision, error) {
	s.cleanupIfNeeded()

	w := s.windowsFor(clientID)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.lastHit = now
	w.minute = trim(w.minute, now.Add(-time.Minute))
	w.hour = trim(w.hour, now.Add(-time.Hour))

	if len(w.minute) >= s.PerMinute {
		return Decision{
			Allowed:         false,
			RetryAfter:      retryAfter(w.minute, time.Minute, now),
			RemainingMinute: 0,
			RemainingHour:   remainingInt(s.PerHour, len(w.hour)),
		}, nil
	}
	if len(w.hour) >= s.PerHour {
		return Decision{
			Allowed:         false,
			RetryAfter:      retryAfter(w.hour, time.Hour, now),
			RemainingMinute: remainingInt(s.PerMinute, len(w.minute)),
			RemainingHour:   0,
		}, nil
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return Decision{
		Allowed:         true,
		RemainingMinute: remainingInt(s.PerMinute, len(w.minute)),
		RemainingHour:   remainingInt(s.PerHour, len(w.hour)),
	}, nil
}

// retryAfter estimates when the oldest entry in ts ages out of a window of
// length period, the point at which a rejected request would next fit.
func retryAfter(ts []time.Time, period time.Duration, now time.Time) time.Duration {
	if len(ts) == 0 {
		return 0
	}
	d := ts[0].Add(period).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Stats reports clientID's current usage without consuming quota.
func (s *LocalStore) Stats(ctx context.Context, clientID string) (Stats, error) {
	w := s.windowsFor(clientID)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.minute = trim(w.minute, now.Add(-time.Minute))
	w.hour = trim(w.hour, now.Add(-time.Hour))

	return Stats{
		UsedMinute:  len(w.minute),
		LimitMinute: s.PerMinute,
		UsedHour:    len(w.hour),
		LimitHour:   s.PerHour,
	}, nil
}

// Reset clears clientID's windows entirely.
func (s *LocalStore) Reset(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
	return nil
}

// cleanupIfNeeded evicts clients idle through both windows, run at most
// once every five minutes to bound the scan cost.
func (s *LocalStore) cleanupIfNeeded() {
	s.mu.Lock()
	now := time.Now()
	if now.Sub(s.lastCleanup) < 5*time.Minute {
		s.mu.Unlock()
		return
	}
	s.lastCleanup = now
	s.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.clients {
		w.mu.Lock()
		idle := now.Sub(w.lastHit) > time.Hour
		w.mu.Unlock()
		if idle {
			delete(s.clients, id)
		}
	}
}

func remainingInt(limit, used int) int {
	r := limit - used
	if r < 0 {
		return 0
	}
	return r
}
