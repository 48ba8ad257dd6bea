// Package api exposes the weather lookup and user registration over HTTP.
package api

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/adeilh/go-rakh-weather/httpx"
	"github.com/adeilh/go-rakh-weather/logging"
	"github.com/adeilh/go-rakh-weather/users"
	"github.com/adeilh/go-rakh-weather/weather"
)

// Looker is the read side of weather.Service.
type Looker interface {
	Lookup(ctx context.Context, subject string) (weather.Result, error)
}

// Accounts is the subset of users.Service the handlers call.
type Accounts interface {
	Register(ctx context.Context, reg users.Registration) (users.User, error)
	PromoteAdmin(ctx context.Context, userName string) (users.User, error)
	FindByUserName(ctx context.Context, userName string) (users.User, error)
}

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

type Handler struct {
	weather  Looker
	accounts Accounts
	checks   map[string]Check
	log      zerolog.Logger
}

type Option func(*Handler)

// WithAccounts enables the /users routes.
func WithAccounts(a Accounts) Option {
	return func(h *Handler) { h.accounts = a }
}

// WithCheck adds a named dependency to /healthz.
func WithCheck(name string, check Check) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.log = logger }
}

func NewHandler(looker Looker, opts ...Option) *Handler {
	h := &Handler{weather: looker, checks: map[string]Check{}, log: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.log = logging.Component(h.log, "api")
	return h
}

// Routes is an httpx.RouteRegistrar.
func (h *Handler) Routes(a *httpx.App) {
	routes := []httpx.Route{
		{Method: "GET", Path: "/healthz", Handler: h.health},
		{Method: "GET", Path: "/weather/:city", Handler: h.lookup},
	}
	if h.accounts != nil {
		routes = append(routes,
			httpx.Route{Method: "POST", Path: "/users", Handler: h.register},
			httpx.Route{Method: "GET", Path: "/users/:name", Handler: h.findUser},
			httpx.Route{Method: "POST", Path: "/users/:name/admin", Handler: h.promote},
		)
	}
	httpx.RegisterRoutes(a, routes...)
}

func (h *Handler) lookup(c httpx.Context) error {
	city := c.Param("city")
	res, err := h.weather.Lookup(c.Request().Context(), city)
	if err != nil {
		return h.lookupError(city, err)
	}
	if res.Empty() {
		return c.NoContent(httpx.StatusNoContent)
	}
	return c.JSON(httpx.StatusOK, res)
}

func (h *Handler) lookupError(city string, err error) error {
	kind := weather.Classify(err)
	ev := h.log.Warn()
	if kind == weather.KindConfiguration || kind == weather.KindUnknown {
		ev = h.log.Error()
	}
	ev.Err(err).Str("city", city).Stringer("kind", kind).Msg("lookup failed")

	switch kind {
	case weather.KindInvalidInput:
		return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
	case weather.KindProvider:
		return httpx.HTTPError(httpx.StatusBadGateway, "weather provider unavailable")
	case weather.KindCache:
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "cache unavailable")
	case weather.KindCanceled:
		return httpx.HTTPError(httpx.StatusGatewayTimeout, "lookup timed out")
	default:
		return httpx.HTTPError(httpx.StatusInternalError, "service misconfigured")
	}
}

func (h *Handler) register(c httpx.Context) error {
	var reg users.Registration
	if err := c.Bind(&reg); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}
	u, err := h.accounts.Register(c.Request().Context(), reg)
	if err != nil {
		return userError(err)
	}
	return c.JSON(httpx.StatusCreated, u)
}

func (h *Handler) findUser(c httpx.Context) error {
	u, err := h.accounts.FindByUserName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return userError(err)
	}
	return c.JSON(httpx.StatusOK, u)
}

func (h *Handler) promote(c httpx.Context) error {
	if _, err := h.accounts.PromoteAdmin(c.Request().Context(), c.Param("name")); err != nil {
		return userError(err)
	}
	return c.NoContent(httpx.StatusNoContent)
}

func userError(err error) error {
	switch {
	case errors.Is(err, users.ErrInvalidUser):
		return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrUserNotFound):
		return httpx.HTTPError(httpx.StatusNotFound, "user not found")
	case errors.Is(err, users.ErrUserNameTaken), errors.Is(err, users.ErrEmailTaken):
		return httpx.HTTPError(httpx.StatusConflict, err.Error())
	default:
		return err
	}
}

func (h *Handler) health(c httpx.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{}
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	code := httpx.StatusOK
	if !healthy {
		code = httpx.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"healthy": healthy, "checks": status})
}
