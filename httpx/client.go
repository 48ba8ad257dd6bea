package httpx

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d: %s %s", e.StatusCode, e.Method, e.URL)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Client is a thin resty wrapper for calling upstream APIs by absolute URL.
type Client struct {
	resty *resty.Client
}

func NewClient(opts ...ClientOption) *Client {
	cfg := defaultClientOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeaders(cfg.Headers)
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{resty: rc}
}

type RequestOption func(*resty.Request)

// WithRequestHeaders sets headers on a single request.
func WithRequestHeaders(headers map[string]string) RequestOption {
	return func(r *resty.Request) {
		if len(headers) > 0 {
			r.SetHeaders(headers)
		}
	}
}

// Fetch issues method against target and returns the raw response body with
// the status code. A 2xx reply with no body yields a nil slice and no error;
// anything outside 2xx is a *StatusError.
func (c *Client) Fetch(ctx context.Context, method, target string, opts ...RequestOption) ([]byte, int, error) {
	req := c.resty.R().SetContext(ctx)
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}
	method = strings.ToUpper(method)
	resp, err := req.Execute(method, target)
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	if err != nil {
		return nil, status, err
	}
	if resp.IsError() {
		return nil, status, &StatusError{
			Method:     method,
			URL:        resp.Request.URL,
			StatusCode: status,
			Body:       strings.TrimSpace(resp.String()),
		}
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, status, nil
	}
	return body, status, nil
}
