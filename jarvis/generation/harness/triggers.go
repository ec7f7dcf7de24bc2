package harness

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/armon/go-radix"
)

// TriggerMode says how a user message short-circuits the conversational model call.
type TriggerMode int

const (
	TriggerNone TriggerMode = iota
	// TriggerPersonalFact stores the rest of the sentence verbatim.
	TriggerPersonalFact
	// TriggerResearch searches the rest of the sentence, summarizes and stores the summary.
	TriggerResearch
	// TriggerReset clears the session, summary and user profile.
	TriggerReset
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerPersonalFact:
		return "personal_fact"
	case TriggerResearch:
		return "research"
	case TriggerReset:
		return "reset"
	default:
		return "none"
	}
}

// Trigger is the classification of one user message.
type Trigger struct {
	Mode      TriggerMode
	Phrase    string // matched trigger phrase, lowercase
	Remainder string // text after the phrase, original casing, trimmed
}

var (
	personalFactPhrases = []string{"learn that", "remember that", "memorize that", "memorise that"}
	researchPhrases     = []string{"learn about", "research", "study", "deep dive into", "do a deep dive into"}
	resetPhrases        = []string{"forget everything", "clear memory", "reset memory", "wipe memory"}

	namePattern   = regexp.MustCompile(`(?i)(?:my name is|call me|i am called|i'm called)\s+([a-zA-Z]+)`)
	nameStopWords = map[string]bool{
		"not": true, "a": true, "an": true, "the": true, "just": true, "very": true,
		"so": true, "really": true, "going": true, "here": true, "back": true, "later": true,
	}
)

// TriggerClassifier detects natural-language learn, research and reset requests.
type TriggerClassifier struct {
	tree *radix.Tree
}

// NewTriggerClassifier indexes the trigger phrases in a radix tree for longest-prefix matching.
func NewTriggerClassifier() *TriggerClassifier {
	tree := radix.New()
	for _, p := range personalFactPhrases {
		tree.Insert(p, TriggerPersonalFact)
	}
	for _, p := range researchPhrases {
		tree.Insert(p, TriggerResearch)
	}
	return &TriggerClassifier{tree: tree}
}

// Classify inspects the start of message for a trigger phrase. A phrase must end on a word boundary and be
// followed by something to store; "study" alone or "researchers say" are ordinary messages. Learn and research
// phrases take precedence, so "learn about how to clear memory leaks" researches rather than resets.
func (c *TriggerClassifier) Classify(message string) Trigger {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	if t, ok := c.prefixTrigger(trimmed, lower); ok {
		return t
	}

	for _, p := range resetPhrases {
		if strings.Contains(lower, p) {
			return Trigger{Mode: TriggerReset, Phrase: p}
		}
	}
	return Trigger{}
}

// prefixTrigger matches the longest learn or research phrase. Personal facts keep their remainder verbatim;
// research topics drop trailing punctuation.
func (c *TriggerClassifier) prefixTrigger(trimmed, lower string) (Trigger, bool) {
	prefix, value, ok := c.tree.LongestPrefix(lower)
	if !ok {
		return Trigger{}, false
	}
	// Case mapping may change byte lengths outside ASCII.
	if !strings.EqualFold(trimmed[:min(len(prefix), len(trimmed))], prefix) {
		return Trigger{}, false
	}

	rest := trimmed[len(prefix):]
	if rest != "" {
		r := []rune(rest)[0]
		if !unicode.IsSpace(r) && r != ':' && r != ',' {
			return Trigger{}, false
		}
	}
	rest = strings.TrimSpace(strings.TrimLeft(rest, " :,"))
	topic := strings.TrimRight(rest, " .!?")
	if topic == "" {
		return Trigger{}, false
	}

	mode := value.(TriggerMode)
	if mode == TriggerResearch {
		rest = topic
	}
	return Trigger{Mode: mode, Phrase: prefix, Remainder: rest}, true
}

// ExtractUserName returns the name in phrases like "my name is Tony", or "" when none is found.
func ExtractUserName(message string) string {
	m := namePattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	name := m[1]
	if nameStopWords[strings.ToLower(name)] || len(name) < 2 {
		return ""
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}

// FactTitle derives a short knowledge topic from a personal fact: the first six words, at most 50 characters.
func FactTitle(fact string) string {
	words := strings.Fields(fact)
	if len(words) > 6 {
		words = words[:6]
	}
	title := strings.Join(words, " ")
	if r := []rune(title); len(r) > 50 {
		title = strings.TrimSpace(string(r[:50]))
	}
	return strings.TrimRight(title, " .,;:!?")
}
