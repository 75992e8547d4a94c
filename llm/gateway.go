package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"socrates/config"
	"socrates/metrics"
)

// Gateway is the single call surface used by ingestion and chat. It owns
// one adapter resolved at construction time.
type Gateway struct {
	provider string
	model    string
	adapter  Adapter
}

type gatewayOptions struct {
	registry   *Registry
	extractor  *Extractor
	httpClient *http.Client
}

// Option configures a Gateway.
type Option func(*gatewayOptions)

// WithRegistry replaces the default provider and model tables.
func WithRegistry(r *Registry) Option {
	return func(o *gatewayOptions) {
		o.registry = r
	}
}

// WithExtractor sets the reasoning extractor shared by the adapter.
func WithExtractor(e *Extractor) Option {
	return func(o *gatewayOptions) {
		o.extractor = e
	}
}

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *gatewayOptions) {
		o.httpClient = c
	}
}

// NewGateway resolves the provider for cfg and builds its adapter. An
// unknown provider or model, or missing credentials, is returned as an error
// so misconfiguration fails at start-up.
func NewGateway(cfg config.LLMConfig, opts ...Option) (*Gateway, error) {
	o := &gatewayOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	for model, provider := range cfg.Models {
		o.registry.RegisterModel(model, provider)
	}
	if o.extractor == nil {
		ex := DefaultExtractor()
		if cfg.ReasoningPattern != "" {
			var err error
			ex, err = NewExtractor(cfg.ReasoningPattern, nil)
			if err != nil {
				return nil, err
			}
		}
		o.extractor = ex
	}
	if o.httpClient == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSecs > 0 {
			timeout = time.Duration(cfg.TimeoutSecs) * time.Second
		}
		o.httpClient = &http.Client{Timeout: timeout}
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: no model configured", ErrUnknownModel)
	}

	provider := cfg.Provider
	if provider == "" {
		p, ok := o.registry.ProviderFor(cfg.Model)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
		}
		provider = p
	}

	factory, ok := o.registry.Factory(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	adapter := factory(cfg, Deps{HTTPClient: o.httpClient, Extractor: o.extractor})
	if err := adapter.BuildClient(); err != nil {
		return nil, fmt.Errorf("build %s client: %w", provider, err)
	}

	return &Gateway{
		provider: provider,
		model:    cfg.Model,
		adapter:  adapter,
	}, nil
}

// Provider returns the resolved provider name.
func (g *Gateway) Provider() string {
	return g.provider
}

// Model returns the configured model name.
func (g *Gateway) Model() string {
	return g.model
}

// Send runs build, execute and extract in sequence and returns the
// adapter's normalized result.
func (g *Gateway) Send(ctx context.Context, msgs []Message, jsonMode bool) Result {
	start := time.Now()

	req := g.adapter.BuildRequest(msgs, g.model, jsonMode)
	raw := g.adapter.Execute(ctx, req)
	result := g.adapter.ExtractResponse(raw, jsonMode)

	metrics.RecordLLMRequest(g.provider, result.Kind.String(), time.Since(start).Seconds())

	switch result.Kind {
	case KindError:
		slog.Warn("llm request failed", "provider", g.provider, "model", g.model, "error", result.Err)
	case KindNull:
		slog.Warn("llm returned unparseable json", "provider", g.provider, "model", g.model)
	default:
		slog.Debug("llm request complete", "provider", g.provider, "model", g.model, "kind", result.Kind.String(), "duration", time.Since(start))
	}

	return result
}
