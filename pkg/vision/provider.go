package vision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Provider is one vision-capable model endpoint.
type Provider interface {
	Name() string
	// Complete sends the prompt and the image reference and returns the model's text answer.
	Complete(ctx context.Context, prompt string, image string) (string, error)
}

// ProviderSettings configures an HTTP provider.
type ProviderSettings struct {
	Name        string
	Kind        string // openai, anthropic or gemini
	Endpoint    string
	Model       string
	APIKeyEnv   string
	Temperature float64
	MaxTokens   int
}

type httpProvider struct {
	settings   ProviderSettings
	httpClient *http.Client
	adapter    providerAdapter
}

type providerAdapter struct {
	defaultEndpoint string
	defaultModel    string
	defaultKeyEnv   string
	buildRequest    func(ctx context.Context, p *httpProvider, prompt, image string) ([]byte, error)
	parseResponse   func([]byte) (string, error)
	prepare         func(req *http.Request, p *httpProvider, apiKey string)
}

// NewProvider builds a provider for settings.Kind. The client's timeout bounds every call.
func NewProvider(settings ProviderSettings, client *http.Client) (Provider, error) {
	var adapter providerAdapter
	switch strings.ToLower(settings.Kind) {
	case "openai":
		adapter = openaiAdapter()
	case "anthropic":
		adapter = anthropicAdapter()
	case "gemini":
		adapter = geminiAdapter()
	default:
		return nil, fmt.Errorf("unsupported provider kind: %q", settings.Kind)
	}

	if settings.Name == "" {
		settings.Name = strings.ToLower(settings.Kind)
	}
	settings.Endpoint = valueOrDefault(settings.Endpoint, adapter.defaultEndpoint)
	settings.Model = valueOrDefault(settings.Model, adapter.defaultModel)
	settings.APIKeyEnv = valueOrDefault(settings.APIKeyEnv, adapter.defaultKeyEnv)
	settings.Endpoint = strings.ReplaceAll(settings.Endpoint, "{model}", settings.Model)
	if settings.MaxTokens == 0 {
		settings.MaxTokens = 1024
	}

	return &httpProvider{
		settings:   settings,
		httpClient: client,
		adapter:    adapter,
	}, nil
}

// MissingAPIKey returns the environment variable p reads its API key from when that
// variable is unset. Providers that are not HTTP backed never report a missing key.
func MissingAPIKey(p Provider) (string, bool) {
	hp, ok := p.(*httpProvider)
	if !ok || os.Getenv(hp.settings.APIKeyEnv) != "" {
		return "", false
	}
	return hp.settings.APIKeyEnv, true
}

func (p *httpProvider) Name() string {
	return p.settings.Name
}

func (p *httpProvider) Complete(ctx context.Context, prompt string, image string) (string, error) {
	apiKey := os.Getenv(p.settings.APIKeyEnv)
	if apiKey == "" {
		return "", fmt.Errorf("%w: %s: %w (set %s)", ErrProviderUnreachable, p.Name(), ErrMissingAPIKey, p.settings.APIKeyEnv)
	}

	body, err := p.adapter.buildRequest(ctx, p, prompt, image)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnreachable, p.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.settings.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnreachable, p.Name(), err)
	}
	httpReq.Header.Set("content-type", "application/json")
	p.adapter.prepare(httpReq, p, apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnreachable, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s: %s", ErrProviderUnreachable, p.Name(), resp.Status)
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnreachable, p.Name(), err)
	}

	content, err := p.adapter.parseResponse(responseBody)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnreachable, p.Name(), err)
	}
	return content, nil
}

func valueOrDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
