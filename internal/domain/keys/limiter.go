package keys

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// attemptLimiter is a per-patient sliding window over failed PIN attempts.
// It lives inside the Manager so every verification path shares one window;
// a guessing client cannot switch endpoints to reset its budget, and a
// blocked patient id never reaches the KDF.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	failures map[uuid.UUID][]time.Time

	now func() time.Time
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		limit:    limit,
		window:   window,
		failures: make(map[uuid.UUID][]time.Time),
		now:      time.Now,
	}
}

func (l *attemptLimiter) blocked(patientID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(patientID)) >= l.limit
}

func (l *attemptLimiter) recordFailure(patientID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[patientID] = append(l.prune(patientID), l.now())
}

// reset clears the window after a successful verification.
func (l *attemptLimiter) reset(patientID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, patientID)
}

// prune drops failures older than the window. Caller holds the lock.
func (l *attemptLimiter) prune(patientID uuid.UUID) []time.Time {
	cutoff := l.now().Add(-l.window)
	kept := l.failures[patientID][:0]
	for _, t := range l.failures[patientID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, patientID)
		return nil
	}
	l.failures[patientID] = kept
	return kept
}
