package harnessports

import (
	"context"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons reported by providers.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // high-level system instructions
	Messages []PromptMessage   // ordered chat history (already windowed)
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling and limits for one call.
type Options struct {
	Model        string // empty means the provider default
	MaxNewTokens int
	Temperature  float32
	// TimeoutMs applies to the provider call only (not the overall dispatcher deadline)
	TimeoutMs int
}

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text         string
	FinishReason string // FinishStop, FinishLength or provider specific
	Usage        *Usage // optional usage information
}

// Truncated reports whether the model stopped because it hit its output limit.
func (c Completion) Truncated() bool { return c.FinishReason == FinishLength }

// Provider is the abstraction for all LLM backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
