// Package agents drives the autonomous trading agents: the decision-model
// collaborator, the per-agent cycle, and the worker/scheduler machinery.
package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"perp-trader/internal/config"
)

// DecisionResult is the decision model's output for one cycle.
type DecisionResult struct {
	Reasoning    string
	RawDecisions string
}

// DecisionCaller is the opaque decision-model collaborator: prompt text
// in, reasoning plus a raw JSON decision array out.
type DecisionCaller interface {
	Decide(ctx context.Context, systemPrompt, marketContext string) (DecisionResult, error)
}

// OpenAICaller implements DecisionCaller against any OpenAI-compatible
// endpoint.
type OpenAICaller struct {
	client *openai.Client
	model  string
}

// NewOpenAICaller creates a caller for the configured provider endpoint.
func NewOpenAICaller(cfg config.LLMConfig) *OpenAICaller {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAICaller{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Decide sends the prompts and returns the model's reasoning and raw
// decision JSON. The model is instructed to reason first, then emit the
// decision array; both come back in one completion.
func (c *OpenAICaller) Decide(ctx context.Context, systemPrompt, marketContext string) (DecisionResult, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: marketContext},
		},
	})
	if err != nil {
		return DecisionResult{}, fmt.Errorf("decision completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return DecisionResult{}, fmt.Errorf("no response from decision model")
	}

	content := resp.Choices[0].Message.Content
	return DecisionResult{
		Reasoning:    content,
		RawDecisions: content,
	}, nil
}

// ProviderLimiter bounds concurrent decision calls per provider so that
// several agents sharing one API key do not stampede it.
type ProviderLimiter struct {
	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
	limit int64
}

// NewProviderLimiter creates a limiter admitting maxConcurrent calls per
// provider name.
func NewProviderLimiter(maxConcurrent int) *ProviderLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ProviderLimiter{
		slots: make(map[string]*semaphore.Weighted),
		limit: int64(maxConcurrent),
	}
}

// Acquire blocks until a slot for the provider is free, returning its
// release function.
func (l *ProviderLimiter) Acquire(ctx context.Context, provider string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.slots[provider]
	if !ok {
		sem = semaphore.NewWeighted(l.limit)
		l.slots[provider] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
