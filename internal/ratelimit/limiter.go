// Package ratelimit provides an admission gate in front of agent calls.
// One Limiter instance is shared by every task and review in a run, so the
// combined request rate stays under the configured budget no matter how many
// milestones execute in parallel.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Iron-Ham/maestro/internal/logging"
)

const window = time.Minute

// Limiter enforces a sliding one-minute request budget with a burst cap.
// The effective budget shrinks by 20% on every rate-limited response and
// recovers by 10% per subsequent success. Safe for concurrent use.
type Limiter struct {
	mu sync.Mutex

	requestsPerMinute int
	burstLimit        int

	requestTimes []time.Time
	burstCount   int
	lastReset    time.Time

	consecutive429s  int
	adjustmentFactor float64

	logger *logging.Logger
}

// Stats is a point-in-time snapshot of limiter state.
type Stats struct {
	RequestsLastMinute int     `json:"requests_last_minute"`
	BurstCount         int     `json:"burst_count"`
	AdjustmentFactor   float64 `json:"adjustment_factor"`
	Consecutive429s    int     `json:"consecutive_429s"`
	EffectiveRate      int     `json:"effective_rate"`
}

// New creates a Limiter with the given sustained and burst budgets.
func New(requestsPerMinute, burstLimit int, logger *logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.NopLogger()
	}

	l := &Limiter{
		requestsPerMinute: requestsPerMinute,
		burstLimit:        burstLimit,
		lastReset:         time.Now(),
		adjustmentFactor:  1.0,
		logger:            logger,
	}

	logger.Info("rate limiter initialized",
		"requests_per_minute", requestsPerMinute,
		"burst_limit", burstLimit)

	return l
}

// Acquire blocks until both a burst slot and a per-minute window slot are
// free, records the admission, and returns how long it waited. A cancelled
// context aborts the wait without recording an admission.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	var waited time.Duration

	for {
		l.mu.Lock()
		wait := l.nextWait(time.Now())
		if wait <= 0 {
			l.admit(time.Now())
			l.mu.Unlock()
			return waited, nil
		}
		l.mu.Unlock()

		l.logger.Debug("rate limit waiting", "wait", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
			waited += wait
		}
	}
}

// nextWait computes how long the caller must wait before admission.
// The caller must hold the mutex.
func (l *Limiter) nextWait(now time.Time) time.Duration {
	// Reset the burst counter once the window has elapsed.
	if now.Sub(l.lastReset) > window {
		l.burstCount = 0
		l.lastReset = now
	}

	l.pruneWindow(now)

	var wait time.Duration

	// Burst cap: wait out the remainder of the current burst window.
	if l.burstCount >= l.burstLimit {
		if w := window - now.Sub(l.lastReset); w > wait {
			wait = w
		}
	}

	// Sliding-window cap against the adjusted budget.
	if len(l.requestTimes) >= l.effectiveLimit() {
		oldest := l.requestTimes[0]
		if w := window - now.Sub(oldest); w > wait {
			wait = w
		}
	}

	return wait
}

// admit records an admission. The caller must hold the mutex.
func (l *Limiter) admit(now time.Time) {
	l.requestTimes = append(l.requestTimes, now)
	l.burstCount++
}

// pruneWindow drops admission timestamps older than one minute.
// requestTimes stays ordered, so the prefix is all that can expire.
func (l *Limiter) pruneWindow(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.requestTimes) && !l.requestTimes[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.requestTimes = append(l.requestTimes[:0], l.requestTimes[i:]...)
	}
}

// effectiveLimit is the per-minute budget after adjustment, never below 1.
// The caller must hold the mutex.
func (l *Limiter) effectiveLimit() int {
	limit := int(float64(l.requestsPerMinute) * l.adjustmentFactor)
	if limit < 1 {
		limit = 1
	}
	return limit
}

// OnResponse adapts the budget to the backend's response. A 429 shrinks the
// effective rate by 20% (floor 10% of nominal) and honors a retry-after hint
// with a context-aware sleep; any other status recovers the rate by 10% while
// a consecutive-429 streak is being paid down.
func (l *Limiter) OnResponse(ctx context.Context, statusCode int, retryAfter time.Duration) {
	l.mu.Lock()
	if statusCode == http.StatusTooManyRequests {
		l.consecutive429s++
		l.adjustmentFactor *= 0.8
		if l.adjustmentFactor < 0.1 {
			l.adjustmentFactor = 0.1
		}
		l.logger.Warn("rate limited by backend",
			"consecutive", l.consecutive429s,
			"adjustment_factor", l.adjustmentFactor,
			"retry_after", retryAfter.String())
	} else if l.consecutive429s > 0 {
		l.consecutive429s--
		l.adjustmentFactor = min(1.0, l.adjustmentFactor*1.1)
	}
	l.mu.Unlock()

	if statusCode == http.StatusTooManyRequests && retryAfter > 0 {
		timer := time.NewTimer(retryAfter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// Stats returns a snapshot of the limiter's current state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneWindow(time.Now())

	return Stats{
		RequestsLastMinute: len(l.requestTimes),
		BurstCount:         l.burstCount,
		AdjustmentFactor:   l.adjustmentFactor,
		Consecutive429s:    l.consecutive429s,
		EffectiveRate:      l.effectiveLimit(),
	}
}
