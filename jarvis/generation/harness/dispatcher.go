package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/service"
)

const (
	msgEmptyMessage = "Please send a message."
	msgResetDone    = "Memory and conversation history cleared. Fresh start!"

	searchFollowUp = "Web search results for '%s':\n%s\n\nNow answer my original question using these results. Be concise and cite the key facts."
	readFollowUp   = "Content of %s:\n%s\n\nNow answer my original question using this page. Be concise and cite the key facts."
	searchFailed   = "I searched for '%s' but couldn't retrieve results. Check your internet connection."
	readFailed     = "I couldn't read %s: %s"

	factAck         = "Got it. I've stored that under \"%s\"."
	researchAck     = "I've researched \"%s\" and stored what I learned in my knowledge base."
	researchMissing = "I couldn't find anything to learn about \"%s\"."
	learnFailed     = "I couldn't store what I learned about \"%s\": %s"
	learnTagAck     = "(learned about \"%s\")"
	learnTagFailed  = "(couldn't learn about \"%s\")"
	saveTagAck      = "(saved %s)"
	saveTagFailed   = "(couldn't save %s)"

	summarySystem = "You are a research assistant. Summarize the search results into a compact, factual note " +
		"about the topic in at most five sentences. Do not mention the search itself."
)

// Policy controls model call parameters for the conversational path.
type Policy struct {
	AssistantName    string
	Model            string
	MaxTokens        int
	Temperature      float32
	Timeout          time.Duration // per model call
	SummaryMaxTokens int           // research-mode summarization call
}

// DefaultPolicy returns the conversational defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		AssistantName:    "J.A.R.V.I.S",
		MaxTokens:        1024,
		Temperature:      0.7,
		Timeout:          15 * time.Second,
		SummaryMaxTokens: 400,
	}
}

// Request is one user message for the dispatcher.
type Request struct {
	Message     string
	Annotations []string // e.g. image analysis or uploaded file context, appended to the user turn
	External    ExternalContext
}

// Effect records one side effect performed while handling a request.
type Effect struct {
	Kind   TagKind
	Arg    string
	OK     bool
	Detail string
}

// Response is the finalized reply plus what happened on the way.
type Response struct {
	Reply     string
	Trigger   TriggerMode
	Effects   []Effect
	FollowUps int
}

// Dependencies are the collaborators of a Dispatcher. Limiter and Tracer may be nil.
type Dependencies struct {
	Provider  ports.Provider
	Searcher  ports.Searcher
	Fetcher   ports.Fetcher
	Knowledge *service.KnowledgeBase
	Profile   *service.Profile
	Limiter   ports.RateLimiter
	Tracer    ports.Tracer
	Guard     *Guardrails // nil means NewGuardrails
}

// Dispatcher turns user messages into replies: it short-circuits learn/research phrases, calls the model,
// executes at most one tag of each kind and issues at most one follow-up call per data-returning tag.
type Dispatcher struct {
	deps     Dependencies
	builder  *PromptBuilder
	triggers *TriggerClassifier
	policy   *Policy
	logger   zerolog.Logger
}

// NewDispatcher wires a dispatcher. A nil policy means DefaultPolicy.
func NewDispatcher(deps Dependencies, policy *Policy, logger zerolog.Logger) *Dispatcher {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if deps.Limiter == nil {
		deps.Limiter = noOpLimiter{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noOpTracer{}
	}
	if deps.Guard == nil {
		deps.Guard = NewGuardrails()
	}
	return &Dispatcher{
		deps:     deps,
		builder:  NewPromptBuilder(deps.Knowledge),
		triggers: NewTriggerClassifier(),
		policy:   policy,
		logger:   logger,
	}
}

// Policy exposes the live policy, e.g. to rename the assistant after a config reload.
func (d *Dispatcher) Policy() *Policy { return d.policy }

// NewSession starts a session and restores the rolling summary saved by earlier sessions.
func (d *Dispatcher) NewSession(ctx context.Context, opts service.SessionOptions) *service.Session {
	sess := service.NewSession(opts)
	if d.deps.Profile == nil {
		return sess
	}
	summary, err := d.deps.Profile.Summary(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to load conversation summary")
		return sess
	}
	sess.Summary().Set(summary)
	return sess
}

// Knowledge returns the knowledge base the dispatcher learns into; may be nil.
func (d *Dispatcher) Knowledge() *service.KnowledgeBase { return d.deps.Knowledge }

// Handle processes one message against sess. Provider failures are rendered into Reply; the error is only
// non-nil for caller mistakes.
func (d *Dispatcher) Handle(ctx context.Context, sess *service.Session, req Request) (*Response, error) {
	if sess == nil {
		return nil, errors.New("dispatcher: nil session")
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return &Response{Reply: msgEmptyMessage}, nil
	}

	ctx, finish := d.deps.Tracer.StartSpan(ctx, "dispatch", map[string]any{"session_id": sess.ID})
	defer finish(nil)

	trigger := d.triggers.Classify(message)
	switch trigger.Mode {
	case TriggerReset:
		return d.reset(ctx, sess), nil
	case TriggerPersonalFact, TriggerResearch:
		resp := d.learnFromTrigger(ctx, trigger)
		sess.Append(service.RoleUser, userContent(message, req.Annotations))
		sess.Append(service.RoleAssistant, resp.Reply)
		d.afterTurn(ctx, sess, message, resp.Reply)
		return resp, nil
	}

	resp := &Response{}
	sess.Append(service.RoleUser, userContent(message, req.Annotations))

	system := d.builder.BuildSystemPrompt(sess, d.external(ctx, req.External), message)
	prompt := d.builder.Build(system, sess.Turns(), map[string]string{"session_id": sess.ID})

	completion, err := d.complete(ctx, "chat", prompt, d.chatOptions())
	if err != nil {
		d.logger.Warn().Err(err).Str("kind", ports.KindOf(err).String()).Msg("Chat completion failed")
		resp.Reply = UserMessage(err)
	} else {
		resp.Reply = d.applyTags(ctx, prompt, strings.TrimSpace(completion.Text), resp)
	}

	sess.Append(service.RoleAssistant, resp.Reply)
	d.afterTurn(ctx, sess, message, resp.Reply)
	return resp, nil
}

// applyTags runs the SEARCH, READ, LEARN and SAVE steps once each, in that order, on the working reply.
func (d *Dispatcher) applyTags(ctx context.Context, prompt ports.PromptInput, reply string, resp *Response) string {
	if tag, ok := FirstTag(reply, TagSearch); ok {
		var digest string
		err := d.deps.Guard.ValidateTag(tag)
		if err == nil {
			digest, err = d.search(ctx, tag.Arg)
		}
		resp.Effects = append(resp.Effects, effect(tag, err))
		if err != nil {
			digest = fmt.Sprintf(searchFailed, tag.Arg)
		}
		reply = d.followUp(ctx, prompt, reply, fmt.Sprintf(searchFollowUp, tag.Arg, digest), resp)
	}

	if tag, ok := FirstTag(reply, TagRead); ok {
		var text string
		err := d.deps.Guard.ValidateTag(tag)
		if err == nil {
			text, err = d.read(ctx, tag.Arg)
		}
		resp.Effects = append(resp.Effects, effect(tag, err))
		if err != nil {
			text = fmt.Sprintf(readFailed, tag.Arg, UserMessage(err))
		}
		reply = d.followUp(ctx, prompt, reply, fmt.Sprintf(readFollowUp, tag.Arg, text), resp)
	}

	if tag, ok := FirstTag(reply, TagLearn); ok {
		err := d.deps.Guard.ValidateTag(tag)
		if err == nil {
			_, err = d.research(ctx, tag.Arg)
		}
		resp.Effects = append(resp.Effects, effect(tag, err))
		ack := fmt.Sprintf(learnTagAck, tag.Arg)
		if err != nil {
			ack = fmt.Sprintf(learnTagFailed, tag.Arg)
		}
		reply = ReplaceTag(reply, tag, ack)
	}

	if tag, ok := FirstTag(reply, TagSave); ok {
		err := d.deps.Guard.ValidateTag(tag)
		if err == nil {
			err = d.savePreference(ctx, tag.Arg, tag.Value)
		}
		resp.Effects = append(resp.Effects, effect(tag, err))
		ack := fmt.Sprintf(saveTagAck, tag.Arg)
		if err != nil {
			ack = fmt.Sprintf(saveTagFailed, tag.Arg)
		}
		reply = ReplaceTag(reply, tag, ack)
	}

	return d.deps.Guard.SanitizeOutput(strings.TrimSpace(reply))
}

// followUp asks the model once more with the first reply and the injected data appended.
func (d *Dispatcher) followUp(ctx context.Context, prompt ports.PromptInput, reply, injected string, resp *Response) string {
	messages := make([]ports.PromptMessage, 0, len(prompt.Messages)+2)
	messages = append(messages, prompt.Messages...)
	messages = append(messages,
		ports.PromptMessage{Role: ports.RoleAssistant, Content: reply},
		ports.PromptMessage{Role: ports.RoleUser, Content: injected},
	)

	resp.FollowUps++
	completion, err := d.complete(ctx, "follow_up", ports.PromptInput{
		System:   prompt.System,
		Messages: messages,
		Meta:     prompt.Meta,
	}, d.chatOptions())
	if err != nil {
		d.logger.Warn().Err(err).Msg("Follow-up completion failed")
		return UserMessage(err)
	}
	return strings.TrimSpace(completion.Text)
}

// learnFromTrigger handles "remember that ..." and "learn about ..." without a conversational model call.
func (d *Dispatcher) learnFromTrigger(ctx context.Context, trigger Trigger) *Response {
	resp := &Response{Trigger: trigger.Mode}

	if trigger.Mode == TriggerPersonalFact {
		title := FactTitle(trigger.Remainder)
		_, err := d.learn(ctx, title, trigger.Remainder)
		resp.Effects = append(resp.Effects, Effect{Kind: TagLearn, Arg: title, OK: err == nil, Detail: errDetail(err)})
		if err != nil {
			resp.Reply = fmt.Sprintf(learnFailed, title, UserMessage(err))
			return resp
		}
		resp.Reply = fmt.Sprintf(factAck, title)
		return resp
	}

	topic := trigger.Remainder
	_, err := d.research(ctx, topic)
	resp.Effects = append(resp.Effects, Effect{Kind: TagLearn, Arg: topic, OK: err == nil, Detail: errDetail(err)})
	switch {
	case err == nil:
		resp.Reply = fmt.Sprintf(researchAck, topic)
	case errors.Is(err, ports.ErrNoResults):
		resp.Reply = fmt.Sprintf(researchMissing, topic)
	default:
		resp.Reply = fmt.Sprintf(learnFailed, topic, UserMessage(err))
	}
	return resp
}

// research searches topic, summarizes the digest with one model call and stores the summary.
// When summarization fails the raw digest is stored instead.
func (d *Dispatcher) research(ctx context.Context, topic string) (service.KnowledgeEntry, error) {
	digest, err := d.search(ctx, topic)
	if err != nil {
		return service.KnowledgeEntry{}, err
	}

	content := digest
	completion, err := d.complete(ctx, "summarize", ports.PromptInput{
		System: summarySystem,
		Messages: []ports.PromptMessage{{
			Role:    ports.RoleUser,
			Content: fmt.Sprintf("Topic: %s\n\nSearch results:\n%s", topic, digest),
		}},
	}, ports.Options{
		Model:        d.policy.Model,
		MaxNewTokens: d.policy.SummaryMaxTokens,
		Temperature:  0.3,
		TimeoutMs:    int(d.policy.Timeout.Milliseconds()),
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("topic", topic).Msg("Summarization failed, storing raw search digest")
	} else if text := strings.TrimSpace(completion.Text); text != "" {
		content = text
	}

	return d.learn(ctx, topic, content)
}

func (d *Dispatcher) learn(ctx context.Context, topic, content string) (service.KnowledgeEntry, error) {
	if d.deps.Knowledge == nil {
		return service.KnowledgeEntry{}, ports.ConfigError("learn", errors.New("knowledge base not configured"))
	}
	return d.deps.Knowledge.Learn(ctx, topic, content)
}

func (d *Dispatcher) search(ctx context.Context, query string) (digest string, err error) {
	if d.deps.Searcher == nil {
		return "", ports.ConfigError("search", errors.New("no search provider configured"))
	}

	ctx, finish := d.deps.Tracer.StartSpan(ctx, "search", map[string]any{"query": query})
	defer func() { finish(err) }()

	err = guard("search", d.deps.Searcher.Name(), func() error {
		var serr error
		digest, serr = d.deps.Searcher.Search(ctx, query)
		return serr
	})
	return digest, err
}

func (d *Dispatcher) read(ctx context.Context, url string) (text string, err error) {
	if d.deps.Fetcher == nil {
		return "", ports.ConfigError("read", errors.New("no fetcher configured"))
	}

	ctx, finish := d.deps.Tracer.StartSpan(ctx, "read", map[string]any{"url": url})
	defer func() { finish(err) }()

	err = guard("read", "fetcher", func() error {
		var ferr error
		text, ferr = d.deps.Fetcher.Fetch(ctx, url)
		return ferr
	})
	return text, err
}

func (d *Dispatcher) savePreference(ctx context.Context, key, value string) error {
	if d.deps.Profile == nil {
		return ports.ConfigError("save", errors.New("profile store not configured"))
	}
	return d.deps.Profile.SavePreference(ctx, key, value)
}

// complete performs one rate-limited, traced, time-bounded model call.
func (d *Dispatcher) complete(ctx context.Context, op string, in ports.PromptInput, opts ports.Options) (completion ports.Completion, err error) {
	if d.deps.Provider == nil {
		return ports.Completion{}, ports.ConfigError(op, errors.New("no model provider configured"))
	}

	release, err := d.deps.Limiter.Acquire(ctx, "model")
	if err != nil {
		return ports.Completion{}, ports.TransientError(op, "rate_limiter", fmt.Errorf("%w: %v", ports.ErrRateLimited, err))
	}
	defer release()

	requestID := "req_" + uuid.NewString()[:8]
	ctx, finish := d.deps.Tracer.StartSpan(ctx, "model_call", map[string]any{
		"op":         op,
		"request_id": requestID,
		"messages":   len(in.Messages),
	})
	defer func() { finish(err) }()

	if d.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.policy.Timeout)
		defer cancel()
	}

	start := time.Now()
	err = guard(op, "provider", func() error {
		var cerr error
		completion, cerr = d.deps.Provider.Complete(ctx, in, opts)
		return cerr
	})

	d.logger.Debug().
		Str("op", op).
		Str("request_id", requestID).
		Dur("latency", time.Since(start)).
		Str("finish_reason", completion.FinishReason).
		Bool("ok", err == nil).
		Msg("Model call finished")

	return completion, err
}

func (d *Dispatcher) chatOptions() ports.Options {
	return ports.Options{
		Model:        d.policy.Model,
		MaxNewTokens: d.policy.MaxTokens,
		Temperature:  d.policy.Temperature,
		TimeoutMs:    int(d.policy.Timeout.Milliseconds()),
	}
}

// external fills identity facts the caller left empty from the profile store.
func (d *Dispatcher) external(ctx context.Context, ext ExternalContext) ExternalContext {
	if ext.AssistantName == "" {
		ext.AssistantName = d.policy.AssistantName
	}
	if d.deps.Profile == nil {
		return ext
	}

	if ext.UserName == "" {
		name, err := d.deps.Profile.UserName(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to load user name")
		}
		ext.UserName = name
	}
	if ext.Preferences == "" {
		prefs, err := d.deps.Profile.Preferences(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to load preferences")
		}
		ext.Preferences = service.PreferencesText(prefs)
	}
	return ext
}

// afterTurn appends and persists the summary sentence and captures the user's name.
func (d *Dispatcher) afterTurn(ctx context.Context, sess *service.Session, message, reply string) {
	sess.Summary().Append(fmt.Sprintf("User said: %s. %s replied with %d chars.",
		firstChars(message, 80), d.policy.AssistantName, utf8.RuneCountInString(reply)))

	if d.deps.Profile == nil {
		return
	}
	if err := d.deps.Profile.SaveSummary(ctx, sess.Summary().String()); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to save conversation summary")
	}
	if name := ExtractUserName(message); name != "" {
		if err := d.deps.Profile.SetUserName(ctx, name); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to save user name")
		}
	}
}

func (d *Dispatcher) reset(ctx context.Context, sess *service.Session) *Response {
	sess.Clear()
	sess.Summary().Reset()
	if d.deps.Profile != nil {
		if err := d.deps.Profile.Reset(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to reset profile")
		}
	}
	return &Response{Reply: msgResetDone, Trigger: TriggerReset}
}

// guard runs fn and converts a panic into a ProviderResponse error.
func guard(op, provider string, fn func() error) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		return ports.ResponseError(op, provider, r.AsError())
	}
	return err
}

func userContent(message string, annotations []string) string {
	parts := []string{message}
	for _, a := range annotations {
		if a = strings.TrimSpace(a); a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, "\n")
}

func effect(tag ToolTag, err error) Effect {
	return Effect{Kind: tag.Kind, Arg: tag.Arg, OK: err == nil, Detail: errDetail(err)}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstChars(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
