package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/adeilh/go-rakh-weather/api"
	"github.com/adeilh/go-rakh-weather/cache/redis"
	"github.com/adeilh/go-rakh-weather/config"
	"github.com/adeilh/go-rakh-weather/db/sql/postgres"
	"github.com/adeilh/go-rakh-weather/httpx"
	"github.com/adeilh/go-rakh-weather/logging"
	"github.com/adeilh/go-rakh-weather/notify"
	"github.com/adeilh/go-rakh-weather/template"
	"github.com/adeilh/go-rakh-weather/users"
	"github.com/adeilh/go-rakh-weather/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("weatherd stopped")
		os.Exit(1)
	}
	logger.Info().Msg("weatherd shut down")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store := redis.NewStore(cfg.Redis)
	defer store.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := store.Ping(pingCtx)
	cancel()
	if err != nil {
		// lookups still work against the provider while the cache is down
		logger.Warn().Err(err).Str("addr", store.Addr()).Msg("redis not reachable at startup")
	}

	var db *sql.DB
	if cfg.HasDatabase() {
		db, err = postgres.Open(ctx, postgres.WithOptions(cfg.Database))
		if err != nil {
			return err
		}
		defer db.Close()
	}

	registry, err := loadTemplates(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	policy := weather.FailOpen
	if !cfg.Weather.CacheFailOpen {
		policy = weather.FailClosed
	}
	client := httpx.NewClient(
		httpx.WithClientTimeout(cfg.Weather.ProviderTimeout),
		httpx.WithUserAgent("weatherd"),
	)
	svc, err := weather.NewService(registry, store, weather.NewHTTPProvider(client),
		weather.WithTTL(cfg.Weather.CacheTTL),
		weather.WithKeyPrefix(cfg.Weather.CacheKeyPrefix),
		weather.WithTemplateName(cfg.Weather.TemplateName),
		weather.WithAPIKey(cfg.Weather.APIKey),
		weather.WithMethod(cfg.Weather.Method),
		weather.WithCachePolicy(policy),
		weather.WithCoalescing(cfg.Weather.Coalesce),
		weather.WithLookupTimeout(cfg.Weather.LookupTimeout),
		weather.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := svc.Preflight(); err != nil {
		return err
	}

	handlerOpts := []api.Option{
		api.WithLogger(logger),
		api.WithCheck("redis", store.Ping),
	}
	if db != nil {
		accounts, err := users.NewService(users.ServiceConfig{
			Repository: postgres.NewUserRepository(db),
			Hasher:     users.BcryptHasher{},
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts,
			api.WithAccounts(accounts),
			api.WithCheck("postgres", db.PingContext),
		)

		if cfg.Notify.Enabled {
			sched, err := newScheduler(cfg, accounts, logger)
			if err != nil {
				return err
			}
			sched.Start(ctx)
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
				defer cancel()
				if err := sched.Stop(stopCtx); err != nil {
					logger.Warn().Err(err).Msg("notification run still in progress at shutdown")
				}
			}()
		}
	}

	server := httpx.NewServer(
		httpx.WithAddress(cfg.HTTP.Addr),
		httpx.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
		httpx.WithBodyLimit(cfg.HTTP.BodyLimit),
		httpx.WithCORSOrigins(cfg.HTTP.CORSOrigins...),
		httpx.WithLogger(logger),
	)
	server.RegisterRoutes(api.NewHandler(svc, handlerOpts...).Routes)

	logger.Info().
		Str("addr", server.Address()).
		Str("redis", store.Addr()).
		Bool("database", db != nil).
		Dur("cache_ttl", cfg.Weather.CacheTTL).
		Msg("weatherd listening")
	return server.Start(ctx, httpx.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout))
}

// loadTemplates prefers the templates table and seeds it from the
// environment when the configured template is not stored yet.
func loadTemplates(ctx context.Context, cfg *config.Config, db *sql.DB, logger zerolog.Logger) (*template.Registry, error) {
	fromEnv := template.Definition{
		Name: cfg.Weather.TemplateName,
		Body: cfg.Weather.Template,
	}
	if db == nil {
		return template.New(fromEnv)
	}

	repo := postgres.NewTemplateRepository(db)
	defs, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if d.Name == fromEnv.Name {
			logger.Info().Int("templates", len(defs)).Msg("request templates loaded from database")
			return template.New(defs...)
		}
	}
	if err := repo.Upsert(ctx, fromEnv); err != nil {
		return nil, err
	}
	logger.Info().Str("template", fromEnv.Name).Msg("seeded request template from environment")
	return template.New(append(defs, fromEnv)...)
}

func newScheduler(cfg *config.Config, accounts *users.Service, logger zerolog.Logger) (*notify.Scheduler, error) {
	var sender notify.Sender = notify.LogSender{Logger: logger}
	if cfg.HasSMTP() {
		sender = notify.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	}
	job, err := notify.NewJob(accounts, sender, nil, logger)
	if err != nil {
		return nil, err
	}
	return notify.NewScheduler(cfg.Notify.Schedule, job, 0, logger)
}
