package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/service"
)

// ExternalContext carries identity and time facts computed outside the dispatcher.
type ExternalContext struct {
	AssistantName string
	UserName      string
	Now           string // preformatted date and time
	Timezone      string
	Greeting      string
	Preferences   string
}

const toolInstructions = `TOOLS (use at most one of each per reply, exactly as written):
- [SEARCH: query] when you need current or factual information from the web.
- [READ: https://url] when the user asks about a specific web page.
- [LEARN: topic] when the user asks you to study a topic for later.
- [SAVE: key | value] when the user states a lasting preference.
Never explain the tags; the system replaces them.`

// PromptBuilder assembles model-ready inputs from session state and the knowledge base.
type PromptBuilder struct {
	knowledge *service.KnowledgeBase
}

func NewPromptBuilder(knowledge *service.KnowledgeBase) *PromptBuilder {
	return &PromptBuilder{knowledge: knowledge}
}

// BuildSystemPrompt renders the system instruction. It has no side effects; query selects the relevance excerpt.
func (b *PromptBuilder) BuildSystemPrompt(sess *service.Session, ext ExternalContext, query string) string {
	name := orDefault(ext.AssistantName, "J.A.R.V.I.S")

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a sharp, concise personal AI assistant.\n", name)

	now := ext.Now
	if ext.Timezone != "" {
		now = strings.TrimSpace(now + " (" + ext.Timezone + ")")
	}
	if now != "" {
		fmt.Fprintf(&sb, "Date/Time: %s\n", now)
	}
	if ext.Greeting != "" {
		fmt.Fprintf(&sb, "Greeting: %s\n", ext.Greeting)
	}
	fmt.Fprintf(&sb, "User's name: %s\n", orDefault(ext.UserName, "there"))
	fmt.Fprintf(&sb, "User preferences: %s\n", orDefault(ext.Preferences, "none stored yet"))

	summary := ""
	if sess != nil {
		summary = sess.Summary().String()
	}
	fmt.Fprintf(&sb, "Conversation so far: %s\n", orDefault(summary, "no prior conversation"))

	if b.knowledge != nil {
		fmt.Fprintf(&sb, "\nTOPICS I HAVE LEARNED:\n%s\n", b.knowledge.RecentDigest(5))
		if strings.TrimSpace(query) != "" {
			if relevant := b.knowledge.Relevant(query, 5); relevant != "" {
				fmt.Fprintf(&sb, "\n%s\n", relevant)
			}
		}
	}

	sb.WriteString("\n")
	sb.WriteString(toolInstructions)

	return sb.String()
}

// Build flattens system + session turns into a Provider PromptInput.
func (b *PromptBuilder) Build(system string, turns []service.ConversationTurn, meta map[string]string) ports.PromptInput {
	// Normalize newlines and trim whitespace to keep prompts stable across platforms
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	messages := make([]ports.PromptMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, ports.PromptMessage{Role: string(t.Role), Content: norm(t.Content)})
	}

	return ports.PromptInput{
		System:   norm(system),
		Messages: messages,
		Meta:     meta,
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
