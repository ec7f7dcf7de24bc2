package harness

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

const defaultMaxTagArg = 300

// Guardrails vets tags before they run and masks secrets in finished replies.
type Guardrails struct {
	allowlist     map[TagKind]bool // tags the dispatcher may execute
	blockedKeys   []string         // preference keys that must never be stored
	outputFilters []*regexp.Regexp // patterns masked in replies
	maxArgLength  int              // runes
}

// NewGuardrails allows every tag kind with default limits.
func NewGuardrails() *Guardrails {
	g := &Guardrails{
		allowlist: make(map[TagKind]bool),
		blockedKeys: []string{
			"password", "secret", "token", "credential", "api_key", "apikey",
		},
		outputFilters: []*regexp.Regexp{
			// Labelled values must look like a token, not a word of prose.
			regexp.MustCompile(`(?i)\b(?:password|passwd|secret|api[_-]?key|token)\s*[:=]\s*[A-Za-z0-9_\-./+]*[0-9_\-/+][A-Za-z0-9_\-./+]*`),
			regexp.MustCompile(`\bgsk_[A-Za-z0-9]{20,}\b`),
			regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
		},
		maxArgLength: defaultMaxTagArg,
	}
	for _, k := range tagKinds {
		g.allowlist[k] = true
	}
	return g
}

// AddAllowedTag permits kind.
func (g *Guardrails) AddAllowedTag(kind TagKind) {
	g.allowlist[kind] = true
}

// RemoveAllowedTag stops kind from executing; its tags are reported as failed.
func (g *Guardrails) RemoveAllowedTag(kind TagKind) {
	delete(g.allowlist, kind)
}

// ValidateTag checks that tag is allowed and well-formed.
func (g *Guardrails) ValidateTag(tag ToolTag) error {
	if !g.allowlist[tag.Kind] {
		return ports.ValidationError("guardrails", fmt.Errorf("tag %s is not allowed", tag.Kind))
	}

	arg := strings.TrimSpace(tag.Arg)
	if arg == "" {
		return ports.ValidationError("guardrails", errors.New("tag argument is empty"))
	}
	if n := utf8.RuneCountInString(arg); n > g.maxArgLength {
		return ports.ValidationError("guardrails", fmt.Errorf("tag argument has %d characters, limit is %d", n, g.maxArgLength))
	}

	if tag.Kind == TagSave {
		key := strings.ToLower(arg)
		for _, word := range g.blockedKeys {
			if strings.Contains(key, word) {
				return ports.ValidationError("guardrails", fmt.Errorf("preference key contains blocked word: %s", word))
			}
		}
	}

	return nil
}

// SanitizeOutput masks credentials that leaked into a reply, for example from a fetched page.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output
	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}
