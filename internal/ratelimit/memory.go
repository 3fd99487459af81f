package ratelimit

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/time/rate"

	apperrors "costpilot/internal/errors"
)

// MemoryLimiter is a token bucket holding maxAttempts tokens that refills
// maxAttempts per window. It is safe for concurrent use.
type MemoryLimiter struct {
	limiter     *rate.Limiter
	maxAttempts int
	clock       quartz.Clock
	rejected    atomic.Int64
}

// NewMemoryLimiter creates an in-process limiter. A nil clock uses real time.
func NewMemoryLimiter(maxAttempts int, window time.Duration, clock quartz.Clock) *MemoryLimiter {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	every := rate.Every(window / time.Duration(maxAttempts))
	return &MemoryLimiter{
		limiter:     rate.NewLimiter(every, maxAttempts),
		maxAttempts: maxAttempts,
		clock:       clock,
	}
}

// RecordAttemptAndCheck consumes one token or reports how long until the
// next one is available.
func (m *MemoryLimiter) RecordAttemptAndCheck(context.Context) error {
	now := m.clock.Now()
	if m.limiter.AllowN(now, 1) {
		m.rejected.Store(0)
		return nil
	}

	rejected := m.rejected.Add(1)

	deficit := 1 - m.limiter.TokensAt(now)
	retryAfter := time.Duration(math.Ceil(deficit / float64(m.limiter.Limit()) * float64(time.Second)))

	return &apperrors.RateLimitExceededError{
		Attempts:   m.maxAttempts + int(rejected),
		Limit:      m.maxAttempts,
		RetryAfter: retryAfter,
	}
}
