package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/zhouzirui/pymind/backend/internal/config"
)

// Generator produces a completion for a single prompt string. An empty
// result with a nil error means the provider returned no usable text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service is the model client used by the session controller.
type Service struct {
	provider  string
	generator Generator
}

// NewService creates the model client for the configured provider.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("model provider %q is missing credentials or model name", cfg.Provider)
	}

	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		gen, err = newGeminiGenerator(ctx, cfg)
	case config.ProviderArk:
		gen, err = newArkGenerator(ctx, cfg)
	case config.ProviderOpenAI:
		gen, err = newOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model client: %w", cfg.Provider, err)
	}

	return NewServiceWithGenerator(cfg.Provider, gen), nil
}

// NewServiceWithGenerator wraps an existing generator.
func NewServiceWithGenerator(provider string, gen Generator) *Service {
	return &Service{provider: provider, generator: gen}
}

// Provider names the backing model provider.
func (s *Service) Provider() string {
	return s.provider
}

// Generate sends prompt to the model and returns its text. The call blocks
// until the provider answers; no retry is attempted.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", errors.Wrapf(err, "%s generate", s.provider)
	}

	log.Printf("[ai] generated response provider=%s, prompt=%d, length=%d", s.provider, len(prompt), len(text))
	return text, nil
}
