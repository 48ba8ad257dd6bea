// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/adeilh/go-rakh-weather/cache"
	"github.com/adeilh/go-rakh-weather/cache/redis"
	"github.com/adeilh/go-rakh-weather/db/sql/postgres"
)

// DefaultWeatherTemplate targets weatherstack's current-conditions endpoint.
const DefaultWeatherTemplate = "http://api.weatherstack.com/current?access_key={KEY}&query={CITY}"

// Config holds all application configuration.
type Config struct {
	HTTP     HTTPConfig       `envPrefix:"HTTP_"`
	Weather  WeatherConfig    `envPrefix:"WEATHER_"`
	Redis    redis.Options    `envPrefix:"REDIS_"`
	Database postgres.Options `envPrefix:"DATABASE_"`
	SMTP     SMTPConfig       `envPrefix:"SMTP_"`
	Notify   NotifyConfig     `envPrefix:"NOTIFY_"`
	Log      LogConfig        `envPrefix:"LOG_"`
}

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	BodyLimit       string        `env:"BODY_LIMIT" envDefault:"64K"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
}

// WeatherConfig drives the lookup service and its provider.
type WeatherConfig struct {
	APIKey          string        `env:"API_KEY,required"`
	Template        string        `env:"API_TEMPLATE" envDefault:"http://api.weatherstack.com/current?access_key={KEY}&query={CITY}"`
	TemplateName    string        `env:"TEMPLATE_NAME" envDefault:"weather_api"`
	Method          string        `env:"API_METHOD" envDefault:"GET"`
	ProviderTimeout time.Duration `env:"API_TIMEOUT" envDefault:"5s"`
	LookupTimeout   time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"10s"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"300s"`
	CacheKeyPrefix  string        `env:"CACHE_KEY_PREFIX" envDefault:"weather_of_"`
	CacheFailOpen   bool          `env:"CACHE_FAIL_OPEN" envDefault:"true"`
	Coalesce        bool          `env:"COALESCE" envDefault:"false"`
}

type SMTPConfig struct {
	Addr     string `env:"ADDR"`
	From     string `env:"FROM" envDefault:"no-reply@weather.local"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

type NotifyConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Schedule string `env:"SCHEDULE" envDefault:"0 0 9 * * SUN"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasDatabase reports whether Postgres-backed features are configured. An
// empty DSN keeps templates in the environment and disables the user
// endpoints and the notification job.
func (c *Config) HasDatabase() bool { return c.Database.DSN != "" }

// HasSMTP reports whether notification mail goes out over SMTP.
func (c *Config) HasSMTP() bool { return c.SMTP.Addr != "" }

// Validate checks values env parsing cannot express.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Weather.APIKey) == "" {
		errs = append(errs, errors.New("WEATHER_API_KEY must not be blank"))
	}
	if strings.TrimSpace(c.Weather.Template) == "" {
		errs = append(errs, errors.New("WEATHER_API_TEMPLATE must not be blank"))
	}
	if err := cache.ValidateTTL(c.Weather.CacheTTL); err != nil {
		errs = append(errs, fmt.Errorf("WEATHER_CACHE_TTL: %w", err))
	} else if c.Weather.CacheTTL%time.Second != 0 {
		errs = append(errs, fmt.Errorf("WEATHER_CACHE_TTL must be whole seconds, got %s", c.Weather.CacheTTL))
	}
	switch strings.ToUpper(c.Weather.Method) {
	case http.MethodGet, http.MethodPost:
		c.Weather.Method = strings.ToUpper(c.Weather.Method)
	default:
		errs = append(errs, fmt.Errorf("WEATHER_API_METHOD must be GET or POST, got %q", c.Weather.Method))
	}
	if c.Weather.LookupTimeout <= 0 || c.Weather.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("weather timeouts must be positive"))
	}
	if c.Notify.Enabled && !c.HasDatabase() {
		errs = append(errs, errors.New("NOTIFY_ENABLED requires DATABASE_DSN"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
