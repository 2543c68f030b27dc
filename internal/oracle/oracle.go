// Package oracle wraps the LLM used for best-effort annotation: friction fix
// suggestions, automation proposal drafting, and build learning extraction.
// Every caller must tolerate the oracle being disabled or failing; the
// deterministic pipeline never depends on it.
package oracle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
)

const (
	// ModelDefault is the model used for annotation calls
	ModelDefault = "claude-sonnet-4-5-20250929"

	// callTimeout bounds every single completion call. A slow oracle must
	// never stall an agent run past its window.
	callTimeout = 30 * time.Second

	defaultMaxTokens     = 4096
	defaultMaxConcurrent = 4
)

// Completion is one oracle response with its token accounting. Token counts
// feed the cost watcher via agent execution records.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Client is the annotation interface agents depend on
type Client interface {
	// Complete sends one prompt and returns the raw text response
	Complete(ctx context.Context, system, prompt string) (*Completion, error)

	// Enabled reports whether calls can succeed. Agents use this to skip
	// annotation entirely rather than collect per-call errors.
	Enabled() bool
}

// Config holds oracle configuration
type Config struct {
	// APIKey is the Anthropic API key (if empty, reads ANTHROPIC_API_KEY)
	APIKey string
	// Model overrides ModelDefault when set
	Model string
	// MaxConcurrent limits in-flight API calls
	MaxConcurrent int64
}

// AnthropicClient implements Client against the Anthropic API
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	sem    *semaphore.Weighted
}

// NewAnthropicClient creates an oracle client. Returns an error when no API
// key is available; callers that can run without annotation should fall back
// to Disabled().
func NewAnthropicClient(cfg *Config) (*AnthropicClient, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = ModelDefault
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicClient{
		client: &client,
		model:  model,
		sem:    semaphore.NewWeighted(maxConcurrent),
	}, nil
}

// Complete sends one prompt and collects the text blocks of the response
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (*Completion, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire oracle slot: %w", err)
	}
	defer c.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	resp, err := c.client.Messages.New(callCtx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Completion{
		Text:         text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// Enabled always reports true for a constructed client
func (c *AnthropicClient) Enabled() bool {
	return true
}

// DisabledClient is the no-op oracle used when no API key is configured.
// Agents check Enabled() and skip annotation.
type DisabledClient struct{}

// Disabled returns the no-op oracle
func Disabled() *DisabledClient {
	return &DisabledClient{}
}

// Complete always fails; callers should have checked Enabled()
func (c *DisabledClient) Complete(ctx context.Context, system, prompt string) (*Completion, error) {
	return nil, fmt.Errorf("oracle is disabled")
}

// Enabled always reports false
func (c *DisabledClient) Enabled() bool {
	return false
}
