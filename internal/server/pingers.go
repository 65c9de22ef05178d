package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// HTTPPinger probes an HTTP dependency such as the Ollama API with a GET
// request. Any status below 500 counts as reachable, so an endpoint that
// answers 404 on the probe path is still up.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// url is the probe target.
	url string
	// client performs the request; the probe context bounds it.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for baseURL joined with path.
func NewHTTPPinger(name, baseURL, path string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the GET request.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("get %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}

// PingFunc adapts a function to the Pinger interface.
type PingFunc struct {
	// Label is returned by Name.
	Label string
	// Fn is called by Ping.
	Fn func(ctx context.Context) error
}

// Name implements Pinger.
func (p PingFunc) Name() string { return p.Label }

// Ping implements Pinger.
func (p PingFunc) Ping(ctx context.Context) error { return p.Fn(ctx) }
