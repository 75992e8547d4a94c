package llm

import (
	"errors"
	"sort"
	"sync"

	"socrates/config"
)

var (
	// ErrUnknownProvider is returned when no factory is registered for a provider.
	ErrUnknownProvider = errors.New("unknown llm provider")
	// ErrUnknownModel is returned when a model has no provider mapping.
	ErrUnknownModel = errors.New("unknown llm model")
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Factory builds an adapter for one provider.
type Factory func(cfg config.LLMConfig, deps Deps) Adapter

// Registry maps provider names to factories and model names to providers.
// Both tables are open for registration.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Factory
	models    map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Factory),
		models:    make(map[string]string),
	}
}

// DefaultRegistry returns a registry with the built-in providers and models.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	openAI := func(cfg config.LLMConfig, deps Deps) Adapter { return NewOpenAI(cfg.OpenAI, deps) }
	anthropic := func(cfg config.LLMConfig, deps Deps) Adapter { return NewAnthropic(cfg.Anthropic, deps) }
	ollama := func(cfg config.LLMConfig, deps Deps) Adapter { return NewOllama(cfg.Ollama, deps) }

	r.Register(ProviderOpenAI, openAI)
	r.Register("chatgpt", openAI)
	r.Register(ProviderAnthropic, anthropic)
	r.Register("claude", anthropic)
	r.Register(ProviderOllama, ollama)

	for _, m := range []string{
		"gpt-3.5-turbo-0613",
		"gpt-3.5-turbo",
		"gpt-3.5-turbo-16k",
		"gpt-4-1106-preview",
		"gpt-4",
		"gpt-4-32k",
		"gpt-4o",
		"gpt-4o-mini",
	} {
		r.RegisterModel(m, ProviderOpenAI)
	}
	r.RegisterModel("claude-2", ProviderAnthropic)
	r.RegisterModel("claude-instant-1", ProviderAnthropic)

	return r
}

// Register adds or replaces the factory for a provider.
func (r *Registry) Register(provider string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = f
}

// RegisterModel maps a model name to a provider.
func (r *Registry) RegisterModel(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = provider
}

// Factory returns the factory registered for provider.
func (r *Registry) Factory(provider string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.providers[provider]
	return f, ok
}

// ProviderFor returns the provider a model is mapped to.
func (r *Registry) ProviderFor(model string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.models[model]
	return p, ok
}

// Models lists registered model names in sorted order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]string, 0, len(r.models))
	for m := range r.models {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
