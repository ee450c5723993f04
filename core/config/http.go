package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultRetryDelay = 5 * time.Second

// HTTPProvider fetches the settings scope from the assistant's config API.
type HTTPProvider struct {
	endpoint   string
	client     *http.Client
	retryDelay time.Duration
}

type HTTPOption func(*HTTPProvider)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = client }
}

func WithRetryDelay(delay time.Duration) HTTPOption {
	return func(p *HTTPProvider) { p.retryDelay = delay }
}

// NewHTTPProvider builds a provider for the server at baseURL, an http or
// https address.
func NewHTTPProvider(baseURL string, opts ...HTTPOption) (*HTTPProvider, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid config server address: %w", err)
	}

	p := &HTTPProvider{
		endpoint:   base.JoinPath("/api/config/configs", Scope).String(),
		client:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type scopedConfig struct {
	Scope   string          `json:"scope"`
	Config  json.RawMessage `json:"config"`
	Comment string          `json:"comment,omitempty"`
}

// Fetch makes a single request.
func (p *HTTPProvider) Fetch(ctx context.Context) (Config, error) {
	ctx, span := tracer.Start(ctx, "fetch config", trace.WithAttributes(attribute.String("url", p.endpoint)))
	defer span.End()

	cfg, err := p.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return cfg, err
}

func (p *HTTPProvider) fetch(ctx context.Context) (Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to build config request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Config{}, fmt.Errorf("failed to request config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Config{}, fmt.Errorf("failed to request config: unexpected status %s", resp.Status)
	}

	var scoped scopedConfig
	if err := json.NewDecoder(resp.Body).Decode(&scoped); err != nil {
		return Config{}, fmt.Errorf("failed to decode config response: %w", err)
	}
	if scoped.Scope != Scope {
		return Config{}, fmt.Errorf("expected config scope %q, got %q", Scope, scoped.Scope)
	}
	if len(scoped.Config) == 0 || string(scoped.Config) == "null" {
		return Default(), nil
	}
	return Parse(scoped.Config)
}

// Load fetches until a request succeeds or ctx is done, waiting the retry
// delay between attempts.
func (p *HTTPProvider) Load(ctx context.Context) (Config, error) {
	for {
		cfg, err := p.Fetch(ctx)
		if err == nil {
			return cfg, nil
		}
		logger.Error("Failed to load config, check that the server is running", "error", err, "retry_in", p.retryDelay)

		select {
		case <-ctx.Done():
			return Config{}, fmt.Errorf("gave up loading config: %w", ctx.Err())
		case <-time.After(p.retryDelay):
		}
	}
}
