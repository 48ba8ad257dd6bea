package httpx

import (
	"time"

	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

type ServerOptions struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// BodyLimit caps request bodies, e.g. "64K"; empty disables the check.
	BodyLimit string
	CORS      *middleware.CORSConfig
	Logger    *zerolog.Logger
}

type ServerOption func(*ServerOptions)

func defaultServerOptions() ServerOptions {
	return ServerOptions{
		Address:      ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		BodyLimit:    "64K",
	}
}

func WithAddress(addr string) ServerOption {
	return func(o *ServerOptions) {
		if addr != "" {
			o.Address = addr
		}
	}
}

func WithTimeouts(read, write time.Duration) ServerOption {
	return func(o *ServerOptions) {
		if read > 0 {
			o.ReadTimeout = read
		}
		if write > 0 {
			o.WriteTimeout = write
		}
	}
}

func WithBodyLimit(limit string) ServerOption {
	return func(o *ServerOptions) { o.BodyLimit = limit }
}

// WithLogger enables per-request logging through the given logger.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = &logger
	}
}

// WithCORSOrigins allows browser calls from the listed origins. No origins
// leaves CORS off.
func WithCORSOrigins(origins ...string) ServerOption {
	return func(o *ServerOptions) {
		if len(origins) == 0 {
			o.CORS = nil
			return
		}
		cfg := middleware.DefaultCORSConfig
		cfg.AllowOrigins = append([]string(nil), origins...)
		cfg.AllowMethods = []string{"GET", "POST"}
		o.CORS = &cfg
	}
}

type ClientOptions struct {
	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string
}

type ClientOption func(*ClientOptions)

func defaultClientOptions() ClientOptions {
	return ClientOptions{Timeout: 10 * time.Second, Headers: map[string]string{"Accept": "application/json"}}
}

func WithClientTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithHeaders adds headers sent on every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(o *ClientOptions) { o.UserAgent = ua }
}
