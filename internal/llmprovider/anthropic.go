// Package llmprovider adapts third-party LLM clients to the
// agentloop.LLMProvider contract (spec 6 "LLM callback contract"),
// grounded on the teacher's internal/agent/providers.AnthropicProvider,
// narrowed from its streaming chunk channel to the loop's single
// blocking Complete call per turn.
package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexus-ptc/ptc/pkg/ptc"
)

// AnthropicConfig configures an Anthropic-backed provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// Anthropic implements ptc.LLMProvider against Claude's Messages API
// (spec 6: the loop needs exactly one non-streaming completion per
// turn, so this wraps the SDK's blocking Messages.New rather than its
// SSE streaming path).
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
	maxRetries   int
	retryDelay   time.Duration
}

// NewAnthropic builds an Anthropic-backed provider.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llmprovider: anthropic api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Complete sends one blocking completion request (spec 6 "LLM
// callback contract"). Turn-loop retry classification happens one
// level up in internal/llmretry; this method's own retry loop only
// covers errors whose text names a 429/rate limit, a 500/502/503, or
// an overloaded server (see isRetryable).
func (a *Anthropic) Complete(ctx context.Context, req ptc.CompletionRequest) (ptc.CompletionResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.defaultModel),
		MaxTokens: int64(a.maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	var msg *anthropic.Message
	var err error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		msg, err = a.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryable(err) || attempt == a.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ptc.CompletionResponse{}, ctx.Err()
		case <-time.After(a.retryDelay * time.Duration(1<<uint(attempt))):
		}
	}
	if err != nil {
		return ptc.CompletionResponse{}, fmt.Errorf("llmprovider: anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ptc.CompletionResponse{
		Content: text.String(),
		Tokens: &ptc.TokenUsage{
			Input:  int(msg.Usage.InputTokens),
			Output: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func convertMessages(messages []ptc.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func isRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded")
}
