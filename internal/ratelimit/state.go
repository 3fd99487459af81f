package ratelimit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// State is the persisted attempt window
type State struct {
	AttemptCount int       `json:"attempt_count"`
	WindowStart  time.Time `json:"window_start"`
}

// expired reports whether the window no longer covers now. A window that
// starts in the future (clock moved backwards) is treated as expired.
func (s State) expired(now time.Time, window time.Duration) bool {
	if s.WindowStart.IsZero() || s.WindowStart.After(now) {
		return true
	}
	return now.Sub(s.WindowStart) >= window
}

// errCorruptState marks a state file that exists but cannot be used
var errCorruptState = errors.New("corrupt rate limit state")

// readState loads the state file. A missing file yields a zero State and no
// error; an unreadable or unparsable file yields a zero State and an error
// the caller may log before starting fresh.
func readState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("%w: %v", errCorruptState, err)
	}
	if state.AttemptCount < 0 {
		return State{}, fmt.Errorf("%w: negative attempt count", errCorruptState)
	}
	return state, nil
}

// writeState persists the state through a temp file and rename so that
// readers never observe a partially written file.
func writeState(path string, state State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	// atomic.WriteFile keeps the mode of an existing file; force owner-only.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("chmod state file: %w", err)
	}
	return nil
}
