// Package ai turns chat context into reply suggestions using a
// generative-text backend.
package ai

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Generator is the generative-text collaborator: one prompt in, free text
// out. Parsing the text into discrete suggestions is the caller's job.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// ProviderConfig holds the OpenAI-compatible backend configuration.
type ProviderConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
}

// Provider implements Generator against an OpenAI-compatible chat API.
type Provider struct {
	client *openai.Client
	config ProviderConfig
	logger *zap.Logger
}

var _ Generator = (*Provider)(nil)

// NewProvider creates a generative-text provider.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) *Provider {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: logger,
	}
}

// Configured reports whether an API key is present.
func (p *Provider) Configured() bool {
	return p.config.APIKey != ""
}

// GenerateContent performs a chat completion for the prompt.
func (p *Provider) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if !p.Configured() {
		return "", fmt.Errorf("generative backend not configured")
	}

	var result string
	err := p.doWithRetry(ctx, func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return result, nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				p.logger.Debug("generation request failed, retrying",
					zap.Int("attempt", attempt+1),
					zap.Duration("wait_time", waitTime),
					zap.Error(err))
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}
