package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Defaults for the Anthropic analyzer.
const (
	DefaultModel     = "claude-haiku-4-5"
	DefaultMaxTokens = 60
)

const describePrompt = "Analyze the link: %s. In about 15 words, explain what data it offers."

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
	Timeout   time.Duration
}

// AnthropicAnalyzer describes URLs with the Anthropic Messages API.
type AnthropicAnalyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ Analyzer = (*AnthropicAnalyzer)(nil)

// NewAnthropicAnalyzer builds an analyzer. Retries are disabled: the caller
// already falls back to the heuristic on the first failure.
func NewAnthropicAnalyzer(cfg AnthropicConfig) *AnthropicAnalyzer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicAnalyzer{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Describe asks the model for a one-line description of url.
func (a *AnthropicAnalyzer) Describe(ctx context.Context, url string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(describePrompt, url))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("anthropic response carried no text")
	}
	return strings.Join(parts, " "), nil
}
