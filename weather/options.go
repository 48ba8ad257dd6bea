package weather

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Placeholders the weather request template may reference.
const (
	CityPlaceholder = "{CITY}"
	KeyPlaceholder  = "{KEY}"
)

const (
	DefaultTTL           = 300 * time.Second
	DefaultKeyPrefix     = "weather_of_"
	DefaultTemplateName  = "weather_api"
	DefaultLookupTimeout = 10 * time.Second
)

// CachePolicy decides what a failed cache read means for a lookup.
type CachePolicy int

const (
	// FailOpen treats an unreachable cache as a miss and calls the provider.
	FailOpen CachePolicy = iota
	// FailClosed surfaces the cache error to the caller.
	FailClosed
)

func (p CachePolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

type Options struct {
	TTL           time.Duration
	KeyPrefix     string
	TemplateName  string
	APIKey        string
	Method        string
	CachePolicy   CachePolicy
	Coalesce      bool
	LookupTimeout time.Duration
	Logger        zerolog.Logger
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		TTL:           DefaultTTL,
		KeyPrefix:     DefaultKeyPrefix,
		TemplateName:  DefaultTemplateName,
		Method:        http.MethodGet,
		CachePolicy:   FailOpen,
		LookupTimeout: DefaultLookupTimeout,
		Logger:        zerolog.Nop(),
	}
}

// WithTTL sets how long provider results stay cached. Non-positive values are
// rejected by NewService.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = ttl }
}

func WithKeyPrefix(prefix string) Option {
	return func(o *Options) { o.KeyPrefix = prefix }
}

func WithTemplateName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.TemplateName = name
		}
	}
}

// WithAPIKey sets the credential substituted for KeyPlaceholder.
func WithAPIKey(key string) Option {
	return func(o *Options) { o.APIKey = key }
}

func WithMethod(method string) Option {
	return func(o *Options) {
		if method != "" {
			o.Method = method
		}
	}
}

func WithCachePolicy(p CachePolicy) Option {
	return func(o *Options) { o.CachePolicy = p }
}

// WithCoalescing collapses concurrent misses for the same key into a single
// provider call. Off by default.
func WithCoalescing(enabled bool) Option {
	return func(o *Options) { o.Coalesce = enabled }
}

// WithLookupTimeout bounds a whole lookup; zero disables the extra deadline.
func WithLookupTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.LookupTimeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
