package provider

import (
	"strings"
	"sync"
	"time"

	"github.com/plauder-dev/plauder/pkg/api"
)

// FallbackScope controls which fallback credentials apply when a bot
// is missing its own.
type FallbackScope string

const (
	// ScopeGlobal uses the process-wide fallback credentials for every
	// namespace.
	ScopeGlobal FallbackScope = "global"
	// ScopeNamespace prefers per-namespace credentials and falls back
	// to the global pair only when the namespace has none.
	ScopeNamespace FallbackScope = "namespace"
)

// Credentials is a base URL / API key pair.
type Credentials struct {
	BaseURL string
	APIKey  string
}

// Defaults holds the fallback credentials and timing applied to bots
// with incomplete configuration.
type Defaults struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Scope      FallbackScope
	Namespaces map[string]Credentials
}

// Factory hands out providers for bot configurations, applying
// credential fallback and caching one client per endpoint identity.
type Factory struct {
	defaults Defaults

	mu      sync.Mutex
	clients map[string]*OpenAIClient
}

// NewFactory creates a factory with the given fallback defaults.
func NewFactory(defaults Defaults) *Factory {
	if defaults.Scope == "" {
		defaults.Scope = ScopeGlobal
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultTimeout
	}
	return &Factory{
		defaults: defaults,
		clients:  make(map[string]*OpenAIClient),
	}
}

// ForBot resolves the provider for a bot in the given namespace. A bot
// carrying both a base URL and an API key uses them as configured; if
// either is missing, the fallback pair replaces both, so credentials
// are never mixed across endpoints.
func (f *Factory) ForBot(namespace string, bot *api.BotConfig) (Provider, error) {
	baseURL := bot.BaseURL
	apiKey := bot.APIKey
	if baseURL == "" || apiKey == "" {
		creds := f.fallback(namespace)
		if creds.BaseURL == "" {
			return nil, api.NewInvalidRequestError(
				"bot " + bot.Name + " has no endpoint and no fallback credentials are configured")
		}
		baseURL = creds.BaseURL
		apiKey = creds.APIKey
	}

	timeout := f.defaults.Timeout
	if bot.TimeoutMS > 0 {
		timeout = time.Duration(bot.TimeoutMS) * time.Millisecond
	}

	return f.client(baseURL, apiKey, timeout), nil
}

func (f *Factory) fallback(namespace string) Credentials {
	if f.defaults.Scope == ScopeNamespace {
		if creds, ok := f.defaults.Namespaces[namespace]; ok && creds.BaseURL != "" {
			return creds
		}
	}
	return Credentials{BaseURL: f.defaults.BaseURL, APIKey: f.defaults.APIKey}
}

func (f *Factory) client(baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	key := strings.Join([]string{baseURL, apiKey, timeout.String()}, "\x00")

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c
	}
	c := NewOpenAIClient(providerName(baseURL), baseURL, apiKey, timeout)
	f.clients[key] = c
	return c
}

// Close releases every cached client.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		c.Close()
	}
	f.clients = make(map[string]*OpenAIClient)
	return nil
}

// providerName derives a short identifier from an endpoint URL, used
// for transcript provenance and metrics labels.
func providerName(baseURL string) string {
	name := baseURL
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	name = strings.TrimPrefix(name, "www.")
	if i := strings.IndexAny(name, "/:"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "openai-compatible"
	}
	return name
}
