package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// TestServer is an httptest.Server that counts the requests it served, for
// asserting how often an upstream was hit.
type TestServer struct {
	*httptest.Server
	hits atomic.Int64
}

func NewTestServer(handler http.Handler) *TestServer {
	ts := &TestServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		handler.ServeHTTP(w, r)
	}))
	return ts
}

func (ts *TestServer) BaseURL() string {
	if ts == nil || ts.Server == nil {
		return ""
	}
	return ts.URL
}

// Hits reports how many requests reached the server.
func (ts *TestServer) Hits() int64 { return ts.hits.Load() }
