package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("cache: key not found")
	ErrUnavailable = errors.New("cache: unavailable")
	ErrInvalidTTL  = errors.New("cache: ttl must be positive")
)

// Store represents a simple TTL-based cache abstraction that can be backed
// by memory, Redis, or any other KV store.
//
// Get returns ErrNotFound for absent or expired keys. Transport failures are
// reported wrapping ErrUnavailable so callers can tell an outage from a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ValidateTTL rejects zero and negative expiries.
func ValidateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTTL, ttl)
	}
	return nil
}

// TTLFromSeconds converts a whole number of seconds into a validated ttl.
func TTLFromSeconds(seconds int) (time.Duration, error) {
	if seconds <= 0 {
		return 0, fmt.Errorf("%w: got %ds", ErrInvalidTTL, seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// Unavailable wraps a transport error so it matches ErrUnavailable while
// keeping the underlying cause reachable through errors.Is/As.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// UnavailableError records which operation failed to reach the store.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache: %s unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }
