// Package weather answers "conditions for city X" with a cache-aside lookup:
// the TTL cache is consulted first and the provider is only called on a miss,
// after which its payload is cached for a fixed TTL.
package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/adeilh/go-rakh-weather/cache"
	"github.com/adeilh/go-rakh-weather/logging"
	"github.com/adeilh/go-rakh-weather/template"
)

// Service is safe for concurrent use. It holds no mutable state of its own
// apart from the optional in-flight table used when coalescing is enabled.
type Service struct {
	registry *template.Registry
	store    cache.Store
	provider Provider
	opts     Options
	log      zerolog.Logger
	inflight singleflight.Group
}

// NewService wires a lookup service. The registry must be fully built before
// the first lookup; it is only read afterwards.
func NewService(registry *template.Registry, store cache.Store, provider Provider, opts ...Option) (*Service, error) {
	if registry == nil || store == nil || provider == nil {
		return nil, errors.New("weather: registry, store and provider are required")
	}
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := cache.ValidateTTL(cfg.TTL); err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	return &Service{
		registry: registry,
		store:    store,
		provider: provider,
		opts:     cfg,
		log:      logging.Component(cfg.Logger, "weather"),
	}, nil
}

// CacheKey derives the cache key for subject. Keys are case-sensitive and the
// subject is not normalised.
func (s *Service) CacheKey(subject string) string {
	return s.opts.KeyPrefix + subject
}

// Preflight renders the request template with dummy values so that a broken
// template is reported at startup rather than on the first miss.
func (s *Service) Preflight() error {
	if _, err := s.render("preflight"); err != nil {
		return err
	}
	if s.opts.APIKey == "" {
		s.log.Warn().Msg("no api key configured; provider requests will carry an empty credential")
	}
	return nil
}

// Lookup returns the current conditions for subject.
func (s *Service) Lookup(ctx context.Context, subject string) (Result, error) {
	if strings.TrimSpace(subject) == "" {
		return Result{}, ErrInvalidSubject
	}
	if s.opts.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.LookupTimeout)
		defer cancel()
	}

	// a broken template aborts before any cache or provider traffic
	target, err := s.render(subject)
	if err != nil {
		return Result{}, err
	}

	key := s.CacheKey(subject)
	log := s.log.With().Str("key", key).Logger()

	res, hit, err := s.fromCache(ctx, key, log)
	if err != nil {
		return Result{}, err
	}
	if hit {
		log.Debug().Msg("served from cache")
		return res, nil
	}

	if !s.opts.Coalesce {
		return s.fromProvider(ctx, target, key, log)
	}
	return s.coalesced(ctx, target, key, log)
}

// coalesced shares one provider call between concurrent misses on key. The
// call runs detached from any single caller under its own lookup timeout, so
// one caller giving up neither fails the others nor cancels the fetch; each
// caller still returns as soon as its own context is done.
func (s *Service) coalesced(ctx context.Context, target, key string, log zerolog.Logger) (Result, error) {
	ch := s.inflight.DoChan(key, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if s.opts.LookupTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, s.opts.LookupTimeout)
			defer cancel()
		}
		return s.fromProvider(fetchCtx, target, key, log)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			log.Debug().Msg("joined in-flight provider call")
		}
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// fromCache reports a hit, a miss, or an error that must abort the lookup.
func (s *Service) fromCache(ctx context.Context, key string, log zerolog.Logger) (Result, bool, error) {
	payload, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var c Conditions
		if derr := json.Unmarshal(payload, &c); derr != nil {
			log.Warn().Err(derr).Msg("discarding undecodable cache entry")
			return Result{}, false, nil
		}
		return Result{Source: SourceCache, Conditions: &c}, true, nil
	case errors.Is(err, cache.ErrNotFound):
		return Result{}, false, nil
	case ctx.Err() != nil:
		return Result{}, false, ctx.Err()
	case s.opts.CachePolicy == FailClosed:
		return Result{}, false, fmt.Errorf("weather: cache read: %w", err)
	default:
		log.Warn().Err(err).Msg("cache read failed, falling back to provider")
		return Result{}, false, nil
	}
}

func (s *Service) fromProvider(ctx context.Context, target, key string, log zerolog.Logger) (Result, error) {
	start := time.Now()
	body, err := s.provider.Fetch(ctx, s.opts.Method, target)
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{Cause: err}
		}
		log.Warn().Err(err).Dur("latency", time.Since(start)).Msg("provider call failed")
		return Result{}, err
	}
	if isEmpty(body) {
		log.Info().Msg("provider returned no payload; nothing cached")
		return Result{Source: SourceProvider}, nil
	}

	var c Conditions
	if err := json.Unmarshal(body, &c); err != nil {
		return Result{}, &ProviderError{Cause: fmt.Errorf("decode response: %w", err)}
	}
	if c.Error != nil {
		return Result{}, &ProviderError{Cause: fmt.Errorf("upstream error %d: %s", c.Error.Code, c.Error.Type)}
	}

	// a cancelled lookup must not populate the cache
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := s.store.Set(ctx, key, body, s.opts.TTL); err != nil {
		log.Warn().Err(err).Msg("cache write failed; returning provider result")
	}
	log.Debug().Dur("latency", time.Since(start)).Msg("served from provider")
	return Result{Source: SourceProvider, Conditions: &c}, nil
}

func (s *Service) render(subject string) (string, error) {
	target, err := s.registry.Render(s.opts.TemplateName,
		template.Sub(CityPlaceholder, subject),
		template.Sub(KeyPlaceholder, s.opts.APIKey),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return target, nil
}

func isEmpty(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
