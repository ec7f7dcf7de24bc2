package harness

import (
	"strings"
)

// TagKind enumerates the bracketed directives a model may embed in a reply.
type TagKind string

const (
	TagSearch TagKind = "SEARCH"
	TagRead   TagKind = "READ"
	TagLearn  TagKind = "LEARN"
	TagSave   TagKind = "SAVE"
)

var tagKinds = []TagKind{TagSearch, TagRead, TagLearn, TagSave}

// ToolTag is one parsed directive. Arg holds the query, URL, topic or (for SAVE) the key;
// Value is only set for SAVE. Start and End delimit the whole bracketed span in the source text.
type ToolTag struct {
	Kind  TagKind
	Arg   string
	Value string
	Start int
	End   int
}

// Raw returns the span of text the tag was parsed from.
func (t ToolTag) Raw(text string) string { return text[t.Start:t.End] }

// ScanTags tokenizes text in one left-to-right pass and returns every well-formed tag in order.
// A tag is "[" + KEYWORD + ":" + content + "]" where content runs to the first "]" on the same line.
// Anything else, including unclosed or empty tags, is prose.
func ScanTags(text string) []ToolTag {
	var tags []ToolTag

	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		tag, ok := parseTagAt(text, i)
		if !ok {
			continue
		}
		tags = append(tags, tag)
		i = tag.End - 1
	}

	return tags
}

// FirstTag returns the first well-formed tag of kind in text. Only the first tag of each kind is honored.
func FirstTag(text string, kind TagKind) (ToolTag, bool) {
	for _, tag := range ScanTags(text) {
		if tag.Kind == kind {
			return tag, true
		}
	}
	return ToolTag{}, false
}

// ReplaceTag substitutes replacement for the tag's span.
func ReplaceTag(text string, tag ToolTag, replacement string) string {
	if tag.Start < 0 || tag.End > len(text) || tag.Start >= tag.End {
		return text
	}
	return text[:tag.Start] + replacement + text[tag.End:]
}

func parseTagAt(text string, start int) (ToolTag, bool) {
	rest := text[start+1:]

	var kind TagKind
	for _, k := range tagKinds {
		if strings.HasPrefix(rest, string(k)+":") {
			kind = k
			break
		}
	}
	if kind == "" {
		return ToolTag{}, false
	}

	bodyStart := start + 1 + len(kind) + 1
	closing := strings.IndexByte(text[bodyStart:], ']')
	if closing < 0 {
		return ToolTag{}, false
	}
	body := text[bodyStart : bodyStart+closing]
	if strings.ContainsAny(body, "\r\n") {
		return ToolTag{}, false
	}

	tag := ToolTag{Kind: kind, Start: start, End: bodyStart + closing + 1}

	if kind == TagSave {
		key, value, found := strings.Cut(body, "|")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !found || key == "" || value == "" {
			return ToolTag{}, false
		}
		tag.Arg, tag.Value = key, value
		return tag, true
	}

	tag.Arg = strings.TrimSpace(body)
	if tag.Arg == "" {
		return ToolTag{}, false
	}
	return tag, true
}
