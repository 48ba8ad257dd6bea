package weather

import (
	"context"
	"errors"
	"fmt"

	"github.com/adeilh/go-rakh-weather/cache"
)

var (
	// ErrConfiguration wraps template failures: the service is misconfigured
	// and retrying will not help.
	ErrConfiguration  = errors.New("weather: service misconfigured")
	ErrInvalidSubject = errors.New("weather: subject must not be empty")
)

// ProviderError reports a failed provider call. Status is the upstream HTTP
// status when one was received and 0 for transport or decoding failures.
type ProviderError struct {
	Status int
	Cause  error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("weather: provider returned %d: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("weather: provider failed: %v", e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Kind groups lookup failures by what a caller should do about them.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidInput
	KindConfiguration
	KindProvider
	KindCache
	KindCanceled
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindConfiguration:
		return "configuration"
	case KindProvider:
		return "provider"
	case KindCache:
		return "cache"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether repeating the same lookup may succeed.
func (k Kind) Retryable() bool {
	return k == KindProvider || k == KindCache
}

// Classify maps an error returned by Lookup onto a Kind.
//
// Context errors win over provider errors: a provider call that failed
// because the lookup deadline passed or the caller went away is KindCanceled,
// not KindProvider, even though it is also wrapped in a *ProviderError.
// KindCanceled is not Retryable; callers that want to retry after a timeout
// must opt in explicitly.
func Classify(err error) Kind {
	var pe *ProviderError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrInvalidSubject):
		return KindInvalidInput
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.As(err, &pe):
		return KindProvider
	case errors.Is(err, cache.ErrUnavailable):
		return KindCache
	default:
		return KindUnknown
	}
}
