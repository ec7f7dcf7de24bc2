package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness"
	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

const (
	msgNoPrompt          = "No prompt provided."
	msgNoJSON            = "No JSON data found in AI response."
	msgUnparseable       = "Could not parse 3D model data. Try a simpler request or fewer objects."
	msgNoObjectsGenerate = "AI returned no valid 3D objects. Try rephrasing your request."
	msgNoObjectsModify   = "No valid objects returned."
)

// Options controls scene model calls.
type Options struct {
	Model           string
	MaxTokens       int
	Temperature     float32
	Timeout         time.Duration
	SceneCharBudget int // serialized scene size sent on modify
	FallbackObjects int // objects sent when the budget is exceeded
}

// DefaultOptions favors long, low-temperature completions.
func DefaultOptions() Options {
	return Options{
		MaxTokens:       8000,
		Temperature:     0.25,
		Timeout:         60 * time.Second,
		SceneCharBudget: 4000,
		FallbackObjects: 20,
	}
}

// Generator produces scenes from text with one model call followed by recovery and sanitation.
type Generator struct {
	provider ports.Provider
	opts     Options
	logger   zerolog.Logger
}

// NewGenerator creates a generator; zero option values take their defaults.
func NewGenerator(provider ports.Provider, opts Options, logger zerolog.Logger) *Generator {
	def := DefaultOptions()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = def.Temperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.SceneCharBudget <= 0 {
		opts.SceneCharBudget = def.SceneCharBudget
	}
	if opts.FallbackObjects <= 0 {
		opts.FallbackObjects = def.FallbackObjects
	}
	return &Generator{provider: provider, opts: opts, logger: logger}
}

// Generate builds a new scene for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) *Result {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return failure(ports.ValidationError("generate", errors.New("empty prompt")), msgNoPrompt, "")
	}

	return g.run(ctx, "generate", generateSystemPrompt, fmt.Sprintf(generateUserTemplate, prompt), msgNoObjectsGenerate)
}

// Modify asks for the complete updated scene. Large scenes are cut to the first FallbackObjects objects.
func (g *Generator) Modify(ctx context.Context, current []SceneObject, instruction string) *Result {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return failure(ports.ValidationError("modify", errors.New("empty instruction")), msgNoPrompt, "")
	}

	serialized, err := g.serializeScene(current)
	if err != nil {
		return failure(ports.ValidationError("modify", err), "Could not serialize the current scene.", "")
	}

	return g.run(ctx, "modify", modifySystemPrompt, fmt.Sprintf(modifyUserTemplate, serialized, instruction), msgNoObjectsModify)
}

// serializeScene encodes scene compactly, falling back to a truncated, annotated prefix over budget.
func (g *Generator) serializeScene(scene []SceneObject) (string, error) {
	if scene == nil {
		scene = []SceneObject{}
	}

	data, err := json.Marshal(scene)
	if err != nil {
		return "", err
	}
	if len(data) <= g.opts.SceneCharBudget {
		return string(data), nil
	}

	n := min(g.opts.FallbackObjects, len(scene))
	data, err = json.Marshal(scene[:n])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s  // ... (showing first %d objects)", data, n), nil
}

func (g *Generator) run(ctx context.Context, op, system, user, noObjects string) *Result {
	completion, err := g.complete(ctx, op, ports.PromptInput{
		System:   system,
		Messages: []ports.PromptMessage{{Role: ports.RoleUser, Content: user}},
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("op", op).Msg("Scene completion failed")
		return failure(err, harness.UserMessage(err), "")
	}

	raw := strings.TrimSpace(completion.Text)
	records, err := Recover(raw)
	if err != nil {
		msg := msgUnparseable
		if errors.Is(err, ports.ErrNoJSON) {
			msg = msgNoJSON
		}
		g.logger.Warn().Err(err).Str("op", op).Int("raw_len", len(raw)).Msg("Scene recovery failed")
		return failure(err, msg, firstChars(raw, maxRawSnippet))
	}

	objects, err := Sanitize(records)
	if err != nil {
		return failure(err, noObjects, "")
	}

	g.logger.Debug().
		Str("op", op).
		Int("records", len(records)).
		Int("objects", len(objects)).
		Bool("truncated", completion.Truncated()).
		Msg("Scene recovered")

	return &Result{
		Objects:      objects,
		Count:        len(objects),
		Success:      true,
		WasTruncated: completion.Truncated(),
	}
}

func (g *Generator) complete(ctx context.Context, op string, in ports.PromptInput) (completion ports.Completion, err error) {
	if g.provider == nil {
		return ports.Completion{}, ports.ConfigError(op, errors.New("no model provider configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	var pc panics.Catcher
	pc.Try(func() {
		completion, err = g.provider.Complete(ctx, in, ports.Options{
			Model:        g.opts.Model,
			MaxNewTokens: g.opts.MaxTokens,
			Temperature:  g.opts.Temperature,
			TimeoutMs:    int(g.opts.Timeout.Milliseconds()),
		})
	})
	if r := pc.Recovered(); r != nil {
		return ports.Completion{}, ports.ResponseError(op, "provider", r.AsError())
	}
	return completion, err
}
