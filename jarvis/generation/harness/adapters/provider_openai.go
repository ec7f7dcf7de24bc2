package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

const maxSnippetLength = 300

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint (OpenAI, Groq, OpenRouter, vLLM...).
type OpenAIConfig struct {
	Name    string // provider name used in errors and logs
	BaseURL string // e.g. https://api.groq.com/openai/v1
	APIKey  string
	Model   string // default model when Options.Model is empty
	Timeout time.Duration
}

// OpenAIProvider implements ports.Provider over the /chat/completions API.
type OpenAIProvider struct {
	config     OpenAIConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIProvider creates a provider. A zero timeout means 60 seconds.
func NewOpenAIProvider(config OpenAIConfig, logger zerolog.Logger) *OpenAIProvider {
	if config.Name == "" {
		config.Name = "openai"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &OpenAIProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With().Str("provider", config.Name).Logger(),
	}
}

// Complete sends one non-streaming chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	const op = "complete"

	if strings.TrimSpace(p.config.APIKey) == "" {
		return ports.Completion{}, ports.ConfigError(op, ports.ErrMissingCredentials)
	}

	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	model := opts.Model
	if model == "" {
		model = p.config.Model
	}

	messages := make([]openAIMessage, 0, len(in.Messages)+1)
	if strings.TrimSpace(in.System) != "" {
		messages = append(messages, openAIMessage{Role: ports.RoleSystem, Content: in.System})
	}
	for _, m := range in.Messages {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return ports.Completion{}, ports.ValidationError(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ports.Completion{}, ports.ConfigError(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ports.Completion{}, classifyTransport(ctx, op, p.config.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.Completion{}, classifyTransport(ctx, op, p.config.Name, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ports.Completion{}, ports.TransientError(op, p.config.Name, fmt.Errorf("%w (429)", ports.ErrRateLimited))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		e := ports.ResponseError(op, p.config.Name, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body)))
		e.Snippet = snippet(body)
		return ports.Completion{}, e
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		e := ports.ResponseError(op, p.config.Name, fmt.Errorf("failed to parse response: %w", err))
		e.Snippet = snippet(body)
		return ports.Completion{}, e
	}
	if parsed.Error != nil {
		return ports.Completion{}, ports.ResponseError(op, p.config.Name, errors.New(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return ports.Completion{}, ports.ResponseError(op, p.config.Name, errors.New("no completion returned"))
	}

	choice := parsed.Choices[0]
	completion := ports.Completion{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if parsed.Usage != nil {
		completion.Usage = &ports.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}

	p.logger.Debug().
		Str("model", model).
		Dur("latency", time.Since(start)).
		Int("response_len", len(completion.Text)).
		Str("finish_reason", completion.FinishReason).
		Msg("Completion received")

	return completion, nil
}

// classifyTransport maps client-side failures onto timeout or connection errors.
func classifyTransport(ctx context.Context, op, provider string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return ports.TransientError(op, provider, fmt.Errorf("%w: %v", ports.ErrTimeout, err))
	}
	return ports.TransientError(op, provider, fmt.Errorf("%w: %v", ports.ErrConnection, err))
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippetLength {
		s = s[:maxSnippetLength] + "..."
	}
	return s
}

// Ensure OpenAIProvider implements the Provider interface.
var _ ports.Provider = (*OpenAIProvider)(nil)
