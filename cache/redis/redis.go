package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adeilh/go-rakh-weather/cache"
)

// Store implements cache.Store on top of a go-redis client. Expiry is left to
// the server: values are written with PX so they vanish once the ttl elapses.
type Store struct {
	opts   Options
	client goredis.UniversalClient
}

var _ cache.Store = (*Store)(nil)

// NewStore builds a Redis-backed cache store. No connection is made until the
// first command; call Ping to fail fast at startup.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
	})
	return &Store{opts: cfg, client: client}
}

// NewStoreWithClient wraps an existing client (cluster, sentinel, or tests).
func NewStoreWithClient(client goredis.UniversalClient) *Store {
	opts := Options{}
	if c, ok := client.(*goredis.Client); ok {
		opts.Addr = c.Options().Addr
	}
	return &Store{opts: opts.withDefaults(), client: client}
}

// Addr reports the configured server address.
func (s *Store) Addr() string { return s.opts.Addr }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, cache.ErrNotFound
		}
		return nil, s.translate(ctx, "get", err)
	}
	return payload, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateTTL(ttl); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	// go-redis rounds sub-millisecond expiries down to zero, which means "no ttl".
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return s.translate(ctx, "set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return s.translate(ctx, "delete", err)
	}
	if n == 0 {
		return cache.ErrNotFound
	}
	return nil
}

// TTL returns the remaining lifetime of key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, s.translate(ctx, "ttl", err)
	}
	// -2 means missing; -1 means no expiry which this store never writes.
	if d < 0 {
		return 0, cache.ErrNotFound
	}
	return d, nil
}

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.translate(ctx, "ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// translate keeps caller cancellation distinct from a store outage.
func (s *Store) translate(ctx context.Context, op string, err error) error {
	if cerr := ctxErr(ctx); cerr != nil {
		return cerr
	}
	return cache.Unavailable(op, fmt.Errorf("redis %s: %w", s.opts.Addr, err))
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
