package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
	"github.com/rs/zerolog"
)

const (
	DefaultKnowledgeKey   = "learned_knowledge"
	DefaultMaxEntries     = 50
	DefaultMaxContent     = 1000
	digestExcerptLength   = 200
	relevantExcerptLength = 400

	// RelevantHeader prefixes a non-empty relevance excerpt.
	RelevantHeader = "RELEVANT KNOWLEDGE FOUND:"
	// NoTopicsLearned is the digest of an empty knowledge base.
	NoTopicsLearned = "No topics learned yet."

	preferencePrefix = "saved_"
	userNameKey      = "user_name"
	summaryKey       = "short_conversation_summary"
)

// EvictionPolicy selects which entry is dropped when the knowledge base is over capacity.
type EvictionPolicy string

const (
	// EvictOldest drops the earliest inserted entry.
	EvictOldest EvictionPolicy = "oldest"
	// EvictLexical drops the entry whose topic sorts first.
	EvictLexical EvictionPolicy = "lexical"
)

// ParseEvictionPolicy maps a config value to a policy, defaulting to EvictOldest.
func ParseEvictionPolicy(s string) EvictionPolicy {
	if EvictionPolicy(strings.ToLower(strings.TrimSpace(s))) == EvictLexical {
		return EvictLexical
	}
	return EvictOldest
}

// ErrKnowledgeNotFound is returned by Forget when no topic matches.
var ErrKnowledgeNotFound = fmt.Errorf("knowledge %w", ports.ErrNotFound)

// KnowledgeEntry is one learned topic.
type KnowledgeEntry struct {
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	LearnedAt time.Time `json:"learned_at"`
}

// ScoredEntry is a knowledge entry ranked against a query.
type ScoredEntry struct {
	KnowledgeEntry
	Score int
}

// KnowledgeOptions configures a KnowledgeBase.
type KnowledgeOptions struct {
	StorageKey string
	MaxEntries int
	MaxContent int
	Eviction   EvictionPolicy
	Now        func() time.Time
	Logger     zerolog.Logger
}

// KnowledgeBase is the long-term topic -> note store shared by every session of an installation.
// Entries keep insertion order; the whole base is persisted as one JSON array under StorageKey.
type KnowledgeBase struct {
	mu      sync.Mutex
	store   ports.KVStore
	opts    KnowledgeOptions
	entries []KnowledgeEntry
	logger  zerolog.Logger
}

// NewKnowledgeBase loads the persisted knowledge from store.
func NewKnowledgeBase(ctx context.Context, store ports.KVStore, opts KnowledgeOptions) (*KnowledgeBase, error) {
	if store == nil {
		return nil, ports.ConfigError("knowledge", errors.New("nil store"))
	}
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultKnowledgeKey
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxContent <= 0 {
		opts.MaxContent = DefaultMaxContent
	}
	if opts.Eviction == "" {
		opts.Eviction = EvictOldest
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	kb := &KnowledgeBase{store: store, opts: opts, logger: opts.Logger}

	raw, ok, err := store.Get(ctx, opts.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge: %w", err)
	}
	if ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &kb.entries); err != nil {
			// A corrupt blob should not take the assistant down; start empty and overwrite on next learn.
			kb.logger.Warn().Err(err).Str("key", opts.StorageKey).Msg("Discarding unreadable knowledge base")
			kb.entries = nil
		}
	}

	return kb, nil
}

// Learn upserts topic. Content is truncated to MaxContent characters and stamped with the current time.
// A re-learned topic keeps its position; a new topic beyond MaxEntries evicts exactly one entry.
func (kb *KnowledgeBase) Learn(ctx context.Context, topic, content string) (KnowledgeEntry, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return KnowledgeEntry{}, ports.ValidationError("learn", errors.New("empty topic"))
	}

	entry := KnowledgeEntry{
		Topic:     topic,
		Content:   firstRunes(strings.TrimSpace(content), kb.opts.MaxContent),
		LearnedAt: kb.opts.Now(),
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	next := make([]KnowledgeEntry, len(kb.entries), len(kb.entries)+1)
	copy(next, kb.entries)

	if i := indexOf(next, topic); i >= 0 {
		next[i] = entry
	} else {
		next = append(next, entry)
	}

	var evicted string
	if len(next) > kb.opts.MaxEntries {
		next, evicted = kb.evict(next)
	}

	if err := kb.persist(ctx, next); err != nil {
		return KnowledgeEntry{}, err
	}
	kb.entries = next

	ev := kb.logger.Debug().Str("topic", topic).Int("size", len(next))
	if evicted != "" {
		ev = ev.Str("evicted", evicted)
	}
	ev.Msg("Learned topic")

	return entry, nil
}

// evict removes one entry per policy and returns the new slice and the evicted topic.
func (kb *KnowledgeBase) evict(entries []KnowledgeEntry) ([]KnowledgeEntry, string) {
	victim := 0
	if kb.opts.Eviction == EvictLexical {
		for i := range entries {
			if entries[i].Topic < entries[victim].Topic {
				victim = i
			}
		}
	}
	topic := entries[victim].Topic
	return append(entries[:victim:victim], entries[victim+1:]...), topic
}

// RecentDigest lists the last n inserted topics with a short excerpt, oldest first.
func (kb *KnowledgeBase) RecentDigest(n int) string {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if len(kb.entries) == 0 {
		return NoTopicsLearned
	}
	if n <= 0 {
		n = 5
	}

	start := max(len(kb.entries)-n, 0)
	lines := make([]string, 0, len(kb.entries)-start)
	for _, e := range kb.entries[start:] {
		lines = append(lines, fmt.Sprintf("- %s: %s", e.Topic, firstRunes(e.Content, digestExcerptLength)))
	}
	return strings.Join(lines, "\n")
}

// RelevantEntries scores every entry against the keywords of query (words longer than three characters):
// +5 per keyword in the topic, +1 per keyword in the content. Only positive scores are returned, best first;
// ties keep insertion order.
func (kb *KnowledgeBase) RelevantEntries(query string, limit int) []ScoredEntry {
	keywords := Keywords(query)
	if len(keywords) == 0 {
		return nil
	}

	kb.mu.Lock()
	scored := make([]ScoredEntry, 0, len(kb.entries))
	for _, e := range kb.entries {
		topic := strings.ToLower(e.Topic)
		content := strings.ToLower(e.Content)

		score := 0
		for _, kw := range keywords {
			if strings.Contains(topic, kw) {
				score += 5
			}
			if strings.Contains(content, kw) {
				score++
			}
		}
		if score > 0 {
			scored = append(scored, ScoredEntry{KnowledgeEntry: e, Score: score})
		}
	}
	kb.mu.Unlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Relevant formats the top matches for prompt injection. It returns "" when nothing scores.
func (kb *KnowledgeBase) Relevant(query string, limit int) string {
	if limit <= 0 {
		limit = 5
	}

	scored := kb.RelevantEntries(query, limit)
	if len(scored) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(RelevantHeader)
	for _, s := range scored {
		fmt.Fprintf(&b, "\n- %s: %s", s.Topic, firstRunes(s.Content, relevantExcerptLength))
	}
	return b.String()
}

// Keywords lowercases query and keeps whitespace-separated words longer than three characters.
func Keywords(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// Forget removes every entry whose topic contains substr, case-insensitively.
func (kb *KnowledgeBase) Forget(ctx context.Context, substr string) ([]string, error) {
	needle := strings.ToLower(strings.TrimSpace(substr))
	if needle == "" {
		return nil, ports.ValidationError("forget", errors.New("empty topic"))
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	var (
		kept    []KnowledgeEntry
		removed []string
	)
	for _, e := range kb.entries {
		if strings.Contains(strings.ToLower(e.Topic), needle) {
			removed = append(removed, e.Topic)
			continue
		}
		kept = append(kept, e)
	}

	if len(removed) == 0 {
		return nil, ErrKnowledgeNotFound
	}

	if err := kb.persist(ctx, kept); err != nil {
		return nil, err
	}
	kb.entries = kept

	kb.logger.Debug().Strs("topics", removed).Msg("Forgot topics")
	return removed, nil
}

// ForgetMessage renders the outcome of Forget for the user.
func ForgetMessage(substr string, removed []string, err error) string {
	if len(removed) > 0 {
		return "Forgot everything about: " + strings.Join(removed, ", ")
	}
	if err != nil && !errors.Is(err, ErrKnowledgeNotFound) {
		return fmt.Sprintf("Couldn't forget '%s': %v", substr, err)
	}
	return fmt.Sprintf("No knowledge found about '%s'", substr)
}

// All returns a copy of every entry in insertion order.
func (kb *KnowledgeBase) All() []KnowledgeEntry {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	out := make([]KnowledgeEntry, len(kb.entries))
	copy(out, kb.entries)
	return out
}

// Get returns the entry for topic.
func (kb *KnowledgeBase) Get(topic string) (KnowledgeEntry, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if i := indexOf(kb.entries, strings.TrimSpace(topic)); i >= 0 {
		return kb.entries[i], true
	}
	return KnowledgeEntry{}, false
}

func (kb *KnowledgeBase) Len() int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return len(kb.entries)
}

func (kb *KnowledgeBase) persist(ctx context.Context, entries []KnowledgeEntry) error {
	if entries == nil {
		entries = []KnowledgeEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge: %w", err)
	}
	if err := kb.store.Set(ctx, kb.opts.StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist knowledge: %w", err)
	}
	return nil
}

func indexOf(entries []KnowledgeEntry, topic string) int {
	for i := range entries {
		if entries[i].Topic == topic {
			return i
		}
	}
	return -1
}
