package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

// Preference is a saved user preference.
type Preference struct {
	Key   string
	Value string
}

// Profile stores facts about the user outside the knowledge base: their name, saved preferences and the
// rolling conversation summary.
type Profile struct {
	store ports.KVStore
}

func NewProfile(store ports.KVStore) *Profile {
	return &Profile{store: store}
}

// SavePreference persists value under key. Both must be non-empty after trimming.
func (p *Profile) SavePreference(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return ports.ValidationError("save", errors.New("preference key and value are required"))
	}
	if err := p.store.Set(ctx, preferencePrefix+key, value); err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// Preferences lists every saved preference ordered by key.
func (p *Profile) Preferences(ctx context.Context) ([]Preference, error) {
	entries, err := p.store.List(ctx, preferencePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}

	prefs := make([]Preference, 0, len(entries))
	for _, e := range entries {
		prefs = append(prefs, Preference{Key: strings.TrimPrefix(e.Key, preferencePrefix), Value: e.Value})
	}
	return prefs, nil
}

// PreferencesText renders preferences as "key: value; key: value".
func PreferencesText(prefs []Preference) string {
	parts := make([]string, 0, len(prefs))
	for _, p := range prefs {
		parts = append(parts, p.Key+": "+p.Value)
	}
	return strings.Join(parts, "; ")
}

// UserName returns the stored user name, or "" when unknown.
func (p *Profile) UserName(ctx context.Context) (string, error) {
	name, _, err := p.store.Get(ctx, userNameKey)
	if err != nil {
		return "", fmt.Errorf("failed to load user name: %w", err)
	}
	return name, nil
}

func (p *Profile) SetUserName(ctx context.Context, name string) error {
	if err := p.store.Set(ctx, userNameKey, strings.TrimSpace(name)); err != nil {
		return fmt.Errorf("failed to save user name: %w", err)
	}
	return nil
}

// Summary returns the persisted rolling summary, or "" when none was saved.
func (p *Profile) Summary(ctx context.Context) (string, error) {
	text, _, err := p.store.Get(ctx, summaryKey)
	if err != nil {
		return "", fmt.Errorf("failed to load summary: %w", err)
	}
	return text, nil
}

func (p *Profile) SaveSummary(ctx context.Context, text string) error {
	if err := p.store.Set(ctx, summaryKey, text); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// Reset removes the user name, the summary and every saved preference.
func (p *Profile) Reset(ctx context.Context) error {
	prefs, err := p.store.List(ctx, preferencePrefix)
	if err != nil {
		return fmt.Errorf("failed to list preferences: %w", err)
	}
	for _, e := range prefs {
		if err := p.store.Delete(ctx, e.Key); err != nil {
			return fmt.Errorf("failed to delete preference: %w", err)
		}
	}
	if err := p.store.Delete(ctx, userNameKey); err != nil {
		return fmt.Errorf("failed to delete user name: %w", err)
	}
	if err := p.store.Delete(ctx, summaryKey); err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	return nil
}
