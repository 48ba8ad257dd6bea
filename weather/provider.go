package weather

import (
	"context"

	"github.com/adeilh/go-rakh-weather/httpx"
)

// Provider performs the upstream call for a fully rendered request URL.
// Implementations return a nil body when the upstream sent nothing and a
// *ProviderError for transport failures and non-2xx replies.
type Provider interface {
	Fetch(ctx context.Context, method, url string) ([]byte, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, method, url string) ([]byte, error)

func (f ProviderFunc) Fetch(ctx context.Context, method, url string) ([]byte, error) {
	return f(ctx, method, url)
}

// HTTPProvider calls the weather API through an httpx.Client.
type HTTPProvider struct {
	client *httpx.Client
}

func NewHTTPProvider(client *httpx.Client) *HTTPProvider {
	if client == nil {
		client = httpx.NewClient()
	}
	return &HTTPProvider{client: client}
}

func (p *HTTPProvider) Fetch(ctx context.Context, method, url string) ([]byte, error) {
	body, status, err := p.client.Fetch(ctx, method, url)
	if err != nil {
		return nil, &ProviderError{Status: status, Cause: err}
	}
	return body, nil
}
