package harness

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// StubProvider replays scripted completions and records every prompt it receives.
type StubProvider struct {
	mu        sync.Mutex
	replies   []string
	err       error
	panicWith any
	calls     []ports.PromptInput
}

func (p *StubProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, in)
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	if p.err != nil {
		return ports.Completion{}, p.err
	}
	if len(p.replies) == 0 {
		return ports.Completion{Text: "stub completion", FinishReason: ports.FinishStop}, nil
	}
	text := p.replies[0]
	p.replies = p.replies[1:]
	return ports.Completion{Text: text, FinishReason: ports.FinishStop}, nil
}

func (p *StubProvider) Calls() []ports.PromptInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.PromptInput(nil), p.calls...)
}

// StubSearcher returns a fixed digest per query.
type StubSearcher struct {
	results map[string]string
	queries []string
}

func (s *StubSearcher) Name() string { return "stub" }

func (s *StubSearcher) Search(ctx context.Context, query string) (string, error) {
	s.queries = append(s.queries, query)
	if r, ok := s.results[query]; ok {
		return r, nil
	}
	return "", ports.TransientError("search", "stub", ports.ErrNoResults)
}

// StubFetcher returns a fixed page text.
type StubFetcher struct {
	text string
}

func (f *StubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.text == "" {
		return "", ports.ResponseError("read", "stub", errors.New("status 404"))
	}
	return f.text, nil
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	provider   *StubProvider
	searcher   *StubSearcher
	knowledge  *service.KnowledgeBase
	profile    *service.Profile
	session    *service.Session
}

func newDispatcherFixture(t *testing.T, provider *StubProvider, results map[string]string) *dispatcherFixture {
	t.Helper()

	store := adapters.NewMemoryKVStore()
	kb, err := service.NewKnowledgeBase(context.Background(), store, service.KnowledgeOptions{})
	require.NoError(t, err)

	searcher := &StubSearcher{results: results}
	profile := service.NewProfile(store)

	d := NewDispatcher(Dependencies{
		Provider:  provider,
		Searcher:  searcher,
		Fetcher:   &StubFetcher{text: "Go 1.25 release notes: container-aware GOMAXPROCS."},
		Knowledge: kb,
		Profile:   profile,
		Limiter:   adapters.NewTokenBucket(100, 0),
	}, nil, zerolog.Nop())

	return &dispatcherFixture{
		dispatcher: d,
		provider:   provider,
		searcher:   searcher,
		knowledge:  kb,
		profile:    profile,
		session:    service.NewSession(service.DefaultSessionOptions()),
	}
}

func (f *dispatcherFixture) handle(t *testing.T, message string) *Response {
	t.Helper()
	resp, err := f.dispatcher.Handle(context.Background(), f.session, Request{Message: message})
	require.NoError(t, err)
	return resp
}

func TestDispatcher_EmptyMessage(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{}, nil)

	resp := f.handle(t, "   ")
	assert.Equal(t, msgEmptyMessage, resp.Reply)
	assert.Equal(t, 0, f.session.Len())
	assert.Empty(t, f.provider.Calls())
}

func TestDispatcher_NilSession(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{}, nil)
	_, err := f.dispatcher.Handle(context.Background(), nil, Request{Message: "hi"})
	assert.Error(t, err)
}

func TestDispatcher_ResearchTrigger(t *testing.T) {
	provider := &StubProvider{replies: []string{"Plants convert light into chemical energy."}}
	f := newDispatcherFixture(t, provider, map[string]string{
		"photosynthesis": "Photosynthesis is the process used by plants to convert light energy.",
	})

	resp := f.handle(t, "learn about photosynthesis")

	assert.Equal(t, TriggerResearch, resp.Trigger)
	assert.Equal(t, `I've researched "photosynthesis" and stored what I learned in my knowledge base.`, resp.Reply)

	entry, ok := f.knowledge.Get("photosynthesis")
	require.True(t, ok)
	assert.Equal(t, "Plants convert light into chemical energy.", entry.Content)

	// Only the summarization call reaches the model.
	calls := f.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, summarySystem, calls[0].System)

	turns := f.session.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, service.RoleUser, turns[0].Role)
	assert.Equal(t, service.RoleAssistant, turns[1].Role)
}

func TestDispatcher_ResearchStoresDigestWhenSummaryFails(t *testing.T) {
	provider := &StubProvider{err: ports.TransientError("complete", "stub", ports.ErrTimeout)}
	f := newDispatcherFixture(t, provider, map[string]string{"tides": "Tides are caused by the moon."})

	resp := f.handle(t, "research tides")
	assert.Contains(t, resp.Reply, `I've researched "tides"`)

	entry, ok := f.knowledge.Get("tides")
	require.True(t, ok)
	assert.Equal(t, "Tides are caused by the moon.", entry.Content)
}

func TestDispatcher_ResearchWithoutResults(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{}, nil)

	resp := f.handle(t, "learn about zzyzx")
	assert.Equal(t, `I couldn't find anything to learn about "zzyzx".`, resp.Reply)
	assert.Equal(t, 0, f.knowledge.Len())
	assert.Empty(t, f.provider.Calls())
}

func TestDispatcher_PersonalFactTrigger(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{}, nil)

	resp := f.handle(t, "Remember that my sister's birthday is May 3.")
	assert.Equal(t, TriggerPersonalFact, resp.Trigger)
	assert.Equal(t, `Got it. I've stored that under "my sister's birthday is May 3".`, resp.Reply)

	entry, ok := f.knowledge.Get("my sister's birthday is May 3")
	require.True(t, ok)
	assert.Equal(t, "my sister's birthday is May 3.", entry.Content)
	assert.Empty(t, f.provider.Calls())
}

func TestDispatcher_PlainReply(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{replies: []string{"  Hello Tony  "}}, nil)

	resp := f.handle(t, "Hi, my name is tony")
	assert.Equal(t, "Hello Tony", resp.Reply)
	assert.Zero(t, resp.FollowUps)

	name, err := f.profile.UserName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Tony", name)

	assert.Equal(t, "User said: Hi, my name is tony. J.A.R.V.I.S replied with 10 chars.", f.session.Summary().String())

	// The next prompt carries the stored name and the summary.
	f.handle(t, "what's up")
	calls := f.provider.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].System, "User's name: Tony")
	assert.Contains(t, calls[1].System, "Conversation so far: User said: Hi, my name is tony.")
	assert.Len(t, calls[1].Messages, 3)
}

func TestDispatcher_SearchFollowUp(t *testing.T) {
	provider := &StubProvider{replies: []string{
		"Let me check. [SEARCH: weather in Paris]",
		"It's sunny in Paris today.",
	}}
	f := newDispatcherFixture(t, provider, map[string]string{"weather in Paris": "Sunny, 24C"})

	resp := f.handle(t, "What's the weather in Paris?")
	assert.Equal(t, "It's sunny in Paris today.", resp.Reply)
	assert.Equal(t, 1, resp.FollowUps)
	require.Len(t, resp.Effects, 1)
	assert.True(t, resp.Effects[0].OK)
	assert.Equal(t, []string{"weather in Paris"}, f.searcher.queries)

	calls := f.provider.Calls()
	require.Len(t, calls, 2)
	follow := calls[1].Messages
	require.GreaterOrEqual(t, len(follow), 2)
	assert.Equal(t, "Let me check. [SEARCH: weather in Paris]", follow[len(follow)-2].Content)
	assert.True(t, strings.HasPrefix(follow[len(follow)-1].Content, "Web search results for 'weather in Paris':\nSunny, 24C"))

	turns := f.session.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "It's sunny in Paris today.", turns[1].Content)
}

func TestDispatcher_SearchFailureStillFollowsUp(t *testing.T) {
	provider := &StubProvider{replies: []string{"[SEARCH: offline thing]", "Sorry, I couldn't look that up."}}
	f := newDispatcherFixture(t, provider, nil)

	resp := f.handle(t, "look up offline thing")
	assert.Equal(t, "Sorry, I couldn't look that up.", resp.Reply)
	require.Len(t, resp.Effects, 1)
	assert.False(t, resp.Effects[0].OK)

	calls := f.provider.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1].Content
	assert.Contains(t, last, "I searched for 'offline thing' but couldn't retrieve results.")
}

func TestDispatcher_FollowUpTagsAreNotRescannedForSearch(t *testing.T) {
	provider := &StubProvider{replies: []string{"[SEARCH: one]", "Still unsure. [SEARCH: two]"}}
	f := newDispatcherFixture(t, provider, map[string]string{"one": "first", "two": "second"})

	resp := f.handle(t, "question")
	assert.Equal(t, "Still unsure. [SEARCH: two]", resp.Reply)
	assert.Equal(t, []string{"one"}, f.searcher.queries)
	assert.Len(t, f.provider.Calls(), 2)
}

func TestDispatcher_ReadFollowUp(t *testing.T) {
	provider := &StubProvider{replies: []string{"[READ: https://go.dev/doc/go1.25]", "GOMAXPROCS is now container-aware."}}
	f := newDispatcherFixture(t, provider, nil)

	resp := f.handle(t, "what's new in go 1.25?")
	assert.Equal(t, "GOMAXPROCS is now container-aware.", resp.Reply)

	calls := f.provider.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1].Content
	assert.True(t, strings.HasPrefix(last, "Content of https://go.dev/doc/go1.25:\nGo 1.25 release notes"))
}

func TestDispatcher_LearnAndSaveTagsAreReplaced(t *testing.T) {
	provider := &StubProvider{replies: []string{
		"Sure! [SAVE: color | blue] I'll also [LEARN: quantum computing].",
		"Quantum computers use qubits.",
	}}
	f := newDispatcherFixture(t, provider, map[string]string{"quantum computing": "Quantum computing uses qubits."})

	resp := f.handle(t, "I like blue, and teach yourself quantum computing")
	assert.Equal(t, `Sure! (saved color) I'll also (learned about "quantum computing").`, resp.Reply)
	assert.Zero(t, resp.FollowUps)
	require.Len(t, resp.Effects, 2)
	assert.Equal(t, TagLearn, resp.Effects[0].Kind)
	assert.Equal(t, TagSave, resp.Effects[1].Kind)

	prefs, err := f.profile.Preferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []service.Preference{{Key: "color", Value: "blue"}}, prefs)

	entry, ok := f.knowledge.Get("quantum computing")
	require.True(t, ok)
	assert.Equal(t, "Quantum computers use qubits.", entry.Content)
}

func TestDispatcher_ProviderErrorsBecomeReplies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing key", ports.ConfigError("complete", ports.ErrMissingCredentials), msgMissingKey},
		{"timeout", ports.TransientError("complete", "groq", ports.ErrTimeout), msgTimeout},
		{"connection", ports.TransientError("complete", "groq", ports.ErrConnection), msgConnection},
		{"bad status", ports.ResponseError("complete", "groq", errors.New("status 500: boom")), "⚠ LLM error: status 500: boom"},
		{"untyped", errors.New("weird"), msgUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, &StubProvider{err: tt.err}, nil)

			resp := f.handle(t, "hello")
			assert.Equal(t, tt.want, resp.Reply)
			assert.Equal(t, 2, f.session.Len(), "failed turns are still recorded")
		})
	}
}

func TestDispatcher_ProviderPanicIsContained(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{panicWith: "nil map write"}, nil)

	resp := f.handle(t, "hello")
	assert.True(t, strings.HasPrefix(resp.Reply, msgProviderFail), resp.Reply)
}

func TestDispatcher_ResetKeepsKnowledge(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{replies: []string{"Noted."}}, nil)
	ctx := context.Background()

	f.handle(t, "Remember that the wifi password is hunter2")
	require.NoError(t, f.profile.SetUserName(ctx, "Tony"))
	require.NoError(t, f.profile.SavePreference(ctx, "units", "metric"))

	resp := f.handle(t, "Please forget everything")
	assert.Equal(t, TriggerReset, resp.Trigger)
	assert.Equal(t, msgResetDone, resp.Reply)
	assert.Equal(t, 0, f.session.Len())
	assert.Empty(t, f.session.Summary().String())

	name, err := f.profile.UserName(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)
	prefs, err := f.profile.Preferences(ctx)
	require.NoError(t, err)
	assert.Empty(t, prefs)

	assert.Equal(t, 1, f.knowledge.Len())
}

func TestDispatcher_ResearchPhraseWinsOverReset(t *testing.T) {
	provider := &StubProvider{replies: []string{"Profile the heap and drop stale references."}}
	f := newDispatcherFixture(t, provider, map[string]string{
		"how to clear memory leaks": "Use pprof to find allocations that are never freed.",
	})
	ctx := context.Background()
	require.NoError(t, f.profile.SetUserName(ctx, "Tony"))
	require.NoError(t, f.profile.SavePreference(ctx, "units", "metric"))

	resp := f.handle(t, "learn about how to clear memory leaks")
	assert.Equal(t, TriggerResearch, resp.Trigger)

	name, err := f.profile.UserName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Tony", name)
	prefs, err := f.profile.Preferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []service.Preference{{Key: "units", Value: "metric"}}, prefs)

	_, ok := f.knowledge.Get("how to clear memory leaks")
	assert.True(t, ok)
}

func TestDispatcher_SummarySurvivesSessions(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{replies: []string{"Hello there.", "Cleared."}}, nil)
	ctx := context.Background()

	f.handle(t, "good morning")
	first := f.session.Summary().String()
	require.NotEmpty(t, first)

	next := f.dispatcher.NewSession(ctx, service.DefaultSessionOptions())
	assert.Equal(t, first, next.Summary().String())
	assert.Equal(t, 0, next.Len())

	f.handle(t, "wipe memory")
	fresh := f.dispatcher.NewSession(ctx, service.DefaultSessionOptions())
	assert.Empty(t, fresh.Summary().String())
}

func TestDispatcher_RateLimited(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{}, nil)
	f.dispatcher.deps.Limiter = adapters.NewTokenBucket(1, 0)

	release, err := f.dispatcher.deps.Limiter.Acquire(context.Background(), "model")
	require.NoError(t, err)
	defer release()

	resp := f.handle(t, "hello")
	assert.Equal(t, msgRateLimited, resp.Reply)
}

func TestDispatcher_AnnotationsJoinUserTurn(t *testing.T) {
	f := newDispatcherFixture(t, &StubProvider{replies: []string{"A red cube."}}, nil)

	_, err := f.dispatcher.Handle(context.Background(), f.session, Request{
		Message:     "what is in this picture?",
		Annotations: []string{"[Image analysis: a red cube on a table]", "  "},
	})
	require.NoError(t, err)

	turns := f.session.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "what is in this picture?\n[Image analysis: a red cube on a table]", turns[0].Content)
}

func TestPromptBuilder_SystemPromptOrder(t *testing.T) {
	ctx := context.Background()
	kb, err := service.NewKnowledgeBase(ctx, adapters.NewMemoryKVStore(), service.KnowledgeOptions{})
	require.NoError(t, err)
	_, err = kb.Learn(ctx, "kubernetes operators", "Operators extend kubernetes with custom controllers.")
	require.NoError(t, err)

	sess := service.NewSession(service.DefaultSessionOptions())
	b := NewPromptBuilder(kb)

	system := b.BuildSystemPrompt(sess, ExternalContext{
		AssistantName: "Friday",
		Now:           "Friday, October 16 2026 at 09:00 AM",
		Timezone:      "Europe/Paris",
		Greeting:      "Good morning",
	}, "explain kubernetes operators")

	order := []string{
		"You are Friday",
		"Date/Time: Friday, October 16 2026 at 09:00 AM (Europe/Paris)",
		"Greeting: Good morning",
		"User's name: there",
		"User preferences: none stored yet",
		"Conversation so far: no prior conversation",
		"TOPICS I HAVE LEARNED:",
		service.RelevantHeader,
		"TOOLS",
	}
	last := -1
	for _, part := range order {
		idx := strings.Index(system, part)
		require.GreaterOrEqual(t, idx, 0, "missing %q", part)
		assert.Greater(t, idx, last, "%q out of order", part)
		last = idx
	}
}

func TestPromptBuilder_EmptyKnowledge(t *testing.T) {
	kb, err := service.NewKnowledgeBase(context.Background(), adapters.NewMemoryKVStore(), service.KnowledgeOptions{})
	require.NoError(t, err)

	system := NewPromptBuilder(kb).BuildSystemPrompt(nil, ExternalContext{}, "anything at all")
	assert.Contains(t, system, "You are J.A.R.V.I.S")
	assert.Contains(t, system, service.NoTopicsLearned)
	assert.NotContains(t, system, service.RelevantHeader)
	assert.NotContains(t, system, "Date/Time:")
}

func TestPromptBuilder_BuildNormalizes(t *testing.T) {
	in := NewPromptBuilder(nil).Build("  sys\r\n", []service.ConversationTurn{
		{Role: service.RoleUser, Content: " hi\r\nthere "},
	}, map[string]string{"session_id": "s1"})

	assert.Equal(t, "sys", in.System)
	require.Len(t, in.Messages, 1)
	assert.Equal(t, ports.RoleUser, in.Messages[0].Role)
	assert.Equal(t, "hi\nthere", in.Messages[0].Content)
	assert.Equal(t, "s1", in.Meta["session_id"])
}
