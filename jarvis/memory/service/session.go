package service

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	DefaultMaxTurns          = 10
	DefaultSummaryMaxLength  = 800
	DefaultSummaryTrimLength = 400
)

// ConversationTurn is one message of a conversation. Turns are never modified after Append.
type ConversationTurn struct {
	Role    Role
	Content string
}

// SessionOptions bounds the history and the rolling summary.
type SessionOptions struct {
	MaxTurns          int // history keeps at most 2*MaxTurns turns
	SummaryMaxLength  int
	SummaryTrimLength int
}

// DefaultSessionOptions mirrors the assistant defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		MaxTurns:          DefaultMaxTurns,
		SummaryMaxLength:  DefaultSummaryMaxLength,
		SummaryTrimLength: DefaultSummaryTrimLength,
	}
}

// Session is the short-term state of one conversation: a FIFO-bounded history and a rolling summary.
// A Session is owned by a single conversation; the mutex only guards against accidental sharing.
type Session struct {
	ID string

	mu       sync.Mutex
	maxTurns int
	turns    []ConversationTurn
	summary  *RollingSummary
}

// NewSession creates an empty session with a fresh ID.
func NewSession(opts SessionOptions) *Session {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	return &Session{
		ID:       uuid.NewString(),
		maxTurns: opts.MaxTurns,
		summary:  NewRollingSummary(opts.SummaryMaxLength, opts.SummaryTrimLength),
	}
}

// Append adds a turn and drops the oldest turns beyond 2*MaxTurns.
func (s *Session) Append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, ConversationTurn{Role: role, Content: content})
	s.trim()
}

func (s *Session) trim() {
	limit := 2 * s.maxTurns
	if over := len(s.turns) - limit; over > 0 {
		kept := make([]ConversationTurn, limit)
		copy(kept, s.turns[over:])
		s.turns = kept
	}
}

// Turns returns a copy of the history, oldest first.
func (s *Session) Turns() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// MaxLen is the history bound, 2*MaxTurns.
func (s *Session) MaxLen() int { return 2 * s.maxTurns }

// Clear empties the history. The summary and the knowledge base are untouched.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Summary exposes the session's rolling summary.
func (s *Session) Summary() *RollingSummary { return s.summary }

// RollingSummary is a lossy, forward-only log of the conversation.
type RollingSummary struct {
	mu      sync.Mutex
	maxLen  int
	trimLen int
	text    string
}

// NewRollingSummary creates a summary capped at maxLen characters that keeps the trailing trimLen
// characters once the cap is exceeded.
func NewRollingSummary(maxLen, trimLen int) *RollingSummary {
	if maxLen <= 0 {
		maxLen = DefaultSummaryMaxLength
	}
	if trimLen <= 0 || trimLen > maxLen {
		trimLen = maxLen / 2
	}
	return &RollingSummary{maxLen: maxLen, trimLen: trimLen}
}

// Append adds a sentence, trimming the existing text first when it is over the cap.
func (r *RollingSummary) Append(sentence string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if utf8.RuneCountInString(r.text) > r.maxLen {
		r.text = lastRunes(r.text, r.trimLen)
	}
	r.text = strings.TrimSpace(r.text + " " + sentence)
}

func (r *RollingSummary) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

// Set replaces the summary text, e.g. when restoring a persisted summary.
func (r *RollingSummary) Set(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = strings.TrimSpace(text)
}

func (r *RollingSummary) Reset() { r.Set("") }

func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func firstRunes(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
