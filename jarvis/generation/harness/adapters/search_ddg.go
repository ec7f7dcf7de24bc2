package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

const (
	DDGInstantEndpoint = "https://api.duckduckgo.com/"
	DDGLiteEndpoint    = "https://lite.duckduckgo.com/lite/"
	DDGHTMLEndpoint    = "https://html.duckduckgo.com/html/"

	defaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) jarvis/1.0"
	defaultMaxResults = 4
	maxSearchBody     = 2 << 20
	snippetSeparator  = " | "
)

// SearchConfig is shared by the DuckDuckGo searchers. Endpoint overrides the public URL.
type SearchConfig struct {
	Endpoint   string
	UserAgent  string
	MaxResults int
	Client     *http.Client
}

func (c SearchConfig) withDefaults(endpoint string) SearchConfig {
	if c.Endpoint == "" {
		c.Endpoint = endpoint
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

// DDGInstantSearcher queries the DuckDuckGo instant-answer JSON API.
type DDGInstantSearcher struct {
	config SearchConfig
}

func NewDDGInstantSearcher(config SearchConfig) *DDGInstantSearcher {
	return &DDGInstantSearcher{config: config.withDefaults(DDGInstantEndpoint)}
}

func (s *DDGInstantSearcher) Name() string { return "ddg_instant" }

type ddgInstantResponse struct {
	AbstractText   string `json:"AbstractText"`
	AbstractSource string `json:"AbstractSource"`
	Answer         any    `json:"Answer"` // string, or an object for calculator-style answers
	Definition     string `json:"Definition"`
}

// Search returns the abstract, answer or definition, suffixed with its source.
func (s *DDGInstantSearcher) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_redirect", "1")
	params.Set("no_html", "1")

	body, err := get(ctx, s.config, s.Name(), params)
	if err != nil {
		return "", err
	}

	var data ddgInstantResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", ports.ResponseError("search", s.Name(), fmt.Errorf("failed to parse response: %w", err))
	}

	answer, _ := data.Answer.(string)
	text := strings.TrimSpace(firstNonEmpty(data.AbstractText, answer, data.Definition))
	if text == "" {
		return "", ports.TransientError("search", s.Name(), ports.ErrNoResults)
	}
	if data.AbstractSource != "" {
		text += " (Source: " + data.AbstractSource + ")"
	}
	return text, nil
}

// DDGLiteSearcher scrapes result snippets from the lite HTML frontend.
type DDGLiteSearcher struct {
	config SearchConfig
}

func NewDDGLiteSearcher(config SearchConfig) *DDGLiteSearcher {
	return &DDGLiteSearcher{config: config.withDefaults(DDGLiteEndpoint)}
}

func (s *DDGLiteSearcher) Name() string { return "ddg_lite" }

func (s *DDGLiteSearcher) Search(ctx context.Context, query string) (string, error) {
	return scrapeSnippets(ctx, s.config, s.Name(), query, "result-snippet")
}

// DDGHTMLSearcher scrapes result snippets from the html frontend.
type DDGHTMLSearcher struct {
	config SearchConfig
}

func NewDDGHTMLSearcher(config SearchConfig) *DDGHTMLSearcher {
	return &DDGHTMLSearcher{config: config.withDefaults(DDGHTMLEndpoint)}
}

func (s *DDGHTMLSearcher) Name() string { return "ddg_html" }

func (s *DDGHTMLSearcher) Search(ctx context.Context, query string) (string, error) {
	return scrapeSnippets(ctx, s.config, s.Name(), query, "result__snippet")
}

func scrapeSnippets(ctx context.Context, config SearchConfig, name, query, class string) (string, error) {
	params := url.Values{}
	params.Set("q", query)

	body, err := get(ctx, config, name, params)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", ports.ResponseError("search", name, fmt.Errorf("failed to parse html: %w", err))
	}

	snippets := collectByClass(doc, class, config.MaxResults)
	if len(snippets) == 0 {
		return "", ports.TransientError("search", name, ports.ErrNoResults)
	}
	return strings.Join(snippets, snippetSeparator), nil
}

// collectByClass returns the collapsed text of up to limit elements carrying class.
func collectByClass(root *html.Node, class string, limit int) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, class) {
			if text := collapseSpace(nodeText(n)); text != "" {
				out = append(out, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func get(ctx context.Context, config SearchConfig, name string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, ports.ConfigError("search", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := config.Client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, "search", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return nil, classifyTransport(ctx, "search", name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := ports.ResponseError("search", name, fmt.Errorf("status %d", resp.StatusCode))
		e.Snippet = snippet(body)
		return nil, e
	}
	return body, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var (
	_ ports.Searcher = (*DDGInstantSearcher)(nil)
	_ ports.Searcher = (*DDGLiteSearcher)(nil)
	_ ports.Searcher = (*DDGHTMLSearcher)(nil)
)
