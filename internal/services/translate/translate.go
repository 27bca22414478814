// Package translate implements the pipeline Translator with two providers:
// an OpenAI-compatible chat model (through services/llm) and DeepL.
package translate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"redub/internal/artifacts"
	"redub/internal/config"
	"redub/internal/language"
	"redub/internal/pipeline"
	"redub/internal/services"
	"redub/internal/services/llm"
)

const (
	ProviderOpenAI = "openai"
	ProviderDeepL  = "deepl"
)

// Service dispatches batches to the requested provider.
type Service struct {
	defaultProvider string
	chat            *llm.Client
	deepl           *deeplClient
}

// Option customizes the Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client used by both providers.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client == nil {
			return
		}
		s.deepl.httpClient = client
	}
}

// New builds a Service from configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	t := cfg.Translation
	timeout := time.Duration(t.TimeoutSeconds) * time.Second
	s := &Service{
		defaultProvider: t.Provider,
		deepl: &deeplClient{
			apiKey:     strings.TrimSpace(t.DeepLAPIKey),
			baseURL:    strings.TrimRight(t.DeepLBaseURL, "/"),
			httpClient: &http.Client{Timeout: timeout},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chat = llm.NewClient(llm.Config{
		APIKey:         t.APIKey,
		BaseURL:        t.BaseURL,
		Model:          t.Model,
		Temperature:    0.3,
		TimeoutSeconds: t.TimeoutSeconds,
	}, llm.WithHTTPClient(s.deepl.httpClient))
	if s.defaultProvider == "" {
		s.defaultProvider = ProviderOpenAI
	}
	return s
}

// Translate translates one batch. The result carries one segment per input
// segment in input order.
func (s *Service) Translate(ctx context.Context, req pipeline.TranslateRequest) (*artifacts.Translation, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = s.defaultProvider
	}
	source := language.Normalize(req.SourceLanguage)
	target := language.Normalize(req.TargetLanguage)
	texts := make([]string, len(req.Segments))
	for i, seg := range req.Segments {
		texts[i] = seg.OriginalText
	}

	var (
		translated []string
		err        error
	)
	switch provider {
	case ProviderOpenAI:
		if !s.chat.Configured() {
			return nil, services.Wrap(services.ErrConfiguration, "translating", "translate", "openai api key is not configured", nil)
		}
		translated, err = s.translateChat(ctx, texts, source, target, req.Prompt)
	case ProviderDeepL:
		if s.deepl.apiKey == "" {
			return nil, services.Wrap(services.ErrConfiguration, "translating", "translate", "deepl api key is not configured", nil)
		}
		translated, err = s.deepl.translate(ctx, texts, source, target)
	default:
		return nil, services.Wrap(services.ErrValidation, "translating", "translate", fmt.Sprintf("unsupported translation provider %q", provider), nil)
	}
	if err != nil {
		return nil, err
	}
	if len(translated) != len(texts) {
		return nil, fmt.Errorf("%s returned %d translations for %d segments", provider, len(translated), len(texts))
	}

	out := &artifacts.Translation{
		SourceLanguage: source,
		TargetLanguage: target,
		Provider:       provider,
		Segments:       make([]artifacts.TranslatedSegment, len(req.Segments)),
	}
	for i, seg := range req.Segments {
		seg.TranslatedText = strings.TrimSpace(translated[i])
		out.Segments[i] = seg
	}
	out.Text = strings.Join(translated, " ")
	return out, nil
}

// HealthCheck reports whether the default provider is usable.
func (s *Service) HealthCheck(context.Context) pipeline.Health {
	const name = "translator"
	switch s.defaultProvider {
	case ProviderDeepL:
		if s.deepl.apiKey == "" {
			return pipeline.Unhealthy(name, "translation.deepl_api_key / DEEPL_API_KEY not set")
		}
	default:
		if !s.chat.Configured() {
			return pipeline.Unhealthy(name, "translation.api_key / OPENAI_API_KEY not set")
		}
	}
	return pipeline.Healthy(name)
}
