// Package ratelimit throttles license validation attempts.
//
// FileLimiter persists a fixed attempt window on disk so that the limit holds
// across short-lived CLI invocations. MemoryLimiter is the token-bucket
// equivalent for long-lived processes, where a per-process limit is enough.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/coder/quartz"
	"github.com/gofrs/flock"

	"costpilot/internal/config"
	apperrors "costpilot/internal/errors"
)

// Limiter records one validation attempt and reports whether it is allowed.
// A blocked attempt returns *errors.RateLimitExceededError.
type Limiter interface {
	RecordAttemptAndCheck(ctx context.Context) error
}

// Noop never blocks
type Noop struct{}

// RecordAttemptAndCheck always succeeds
func (Noop) RecordAttemptAndCheck(context.Context) error { return nil }

// lockRetryDelay is the poll interval while waiting for the advisory lock
const lockRetryDelay = 10 * time.Millisecond

// FileLimiter is a fixed-window limiter whose state lives in a JSON file
type FileLimiter struct {
	path        string
	maxAttempts int
	window      time.Duration
	lockTimeout time.Duration
	clock       quartz.Clock
	logger      *slog.Logger
}

// Option configures a FileLimiter
type Option func(*FileLimiter)

// WithMaxAttempts sets the number of attempts allowed per window
func WithMaxAttempts(n int) Option {
	return func(l *FileLimiter) { l.maxAttempts = n }
}

// WithWindow sets the window length
func WithWindow(d time.Duration) Option {
	return func(l *FileLimiter) { l.window = d }
}

// WithLockTimeout bounds the wait for the cross-process lock. Zero means a
// single non-blocking try.
func WithLockTimeout(d time.Duration) Option {
	return func(l *FileLimiter) { l.lockTimeout = d }
}

// WithClock replaces the time source
func WithClock(c quartz.Clock) Option {
	return func(l *FileLimiter) { l.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewFileLimiter creates a limiter persisting to path with the default
// limit of 10 attempts per 60 seconds.
func NewFileLimiter(path string, opts ...Option) *FileLimiter {
	l := &FileLimiter{
		path:        path,
		maxAttempts: config.DefaultMaxAttempts,
		window:      config.DefaultAttemptWindow,
		lockTimeout: config.DefaultLockTimeout,
		clock:       quartz.NewReal(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "ratelimit"))
	return l
}

// NewFileLimiterFromConfig creates a limiter from the rate_limit config section
func NewFileLimiterFromConfig(cfg config.RateLimitConfig, opts ...Option) *FileLimiter {
	base := []Option{
		WithMaxAttempts(cfg.MaxAttempts),
		WithWindow(cfg.Window),
		WithLockTimeout(cfg.LockTimeout),
	}
	return NewFileLimiter(cfg.StateFile, append(base, opts...)...)
}

// Path returns the state file location
func (l *FileLimiter) Path() string { return l.path }

// RecordAttemptAndCheck counts an attempt in the current window and fails
// once the count exceeds the limit. Storage problems never block: the
// limiter falls back to a fresh window and logs the failure.
func (l *FileLimiter) RecordAttemptAndCheck(ctx context.Context) error {
	unlock := l.lock(ctx)
	defer unlock()

	now := l.clock.Now()

	state, err := readState(l.path)
	if err != nil {
		l.logger.WarnContext(ctx, "Resetting unreadable rate limit state",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
		state = State{}
	}

	if state.expired(now, l.window) {
		state = State{WindowStart: now}
	}
	state.AttemptCount++

	if err := writeState(l.path, state); err != nil {
		l.logger.WarnContext(ctx, "Failed to persist rate limit state",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
	}

	if state.AttemptCount > l.maxAttempts {
		retryAfter := state.WindowStart.Add(l.window).Sub(now)
		l.logger.DebugContext(ctx, "License validation rate limit exceeded",
			slog.Int("attempts", state.AttemptCount),
			slog.Int("limit", l.maxAttempts),
			slog.Duration("retry_after", retryAfter),
		)
		return &apperrors.RateLimitExceededError{
			Attempts:   state.AttemptCount,
			Limit:      l.maxAttempts,
			RetryAfter: retryAfter,
		}
	}

	l.logger.DebugContext(ctx, "Recorded license validation attempt",
		slog.Int("attempts", state.AttemptCount),
		slog.Int("limit", l.maxAttempts),
	)
	return nil
}

// Current returns the persisted state without recording an attempt. An
// elapsed window is reported as empty.
func (l *FileLimiter) Current() (State, error) {
	state, err := readState(l.path)
	if err != nil {
		return State{}, err
	}
	if state.expired(l.clock.Now(), l.window) {
		return State{}, nil
	}
	return state, nil
}

// Reset removes the state file. A missing file is not an error.
func (l *FileLimiter) Reset() error {
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.NewIOError("remove", l.path, err)
	}
	return nil
}

// lock takes the advisory lock on <state>.lock for at most lockTimeout. On
// timeout or error the caller proceeds unlocked; the returned func is always
// safe to call.
func (l *FileLimiter) lock(ctx context.Context) func() {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		l.logger.DebugContext(ctx, "Cannot create state directory, skipping lock",
			slog.String("error", err.Error()))
		return func() {}
	}

	fl := flock.New(l.path + ".lock")

	var (
		ok  bool
		err error
	)
	if l.lockTimeout <= 0 {
		ok, err = fl.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
		defer cancel()
		ok, err = fl.TryLockContext(lockCtx, lockRetryDelay)
	}

	if !ok {
		l.logger.DebugContext(ctx, "Proceeding without rate limit lock",
			slog.String("lock", fl.Path()),
			slog.String("error", fmt.Sprint(err)),
		)
		_ = fl.Close()
		return func() {}
	}

	return func() { _ = fl.Close() }
}
