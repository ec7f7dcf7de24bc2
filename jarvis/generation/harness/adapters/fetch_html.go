package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

const maxPageBody = 1 << 20

// HTMLFetcher downloads a page and returns its visible text.
type HTMLFetcher struct {
	client    *http.Client
	userAgent string
	maxChars  int
}

// NewHTMLFetcher creates a fetcher. Non-positive values fall back to 10s and 4000 characters.
func NewHTMLFetcher(timeout time.Duration, maxChars int, userAgent string) *HTMLFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 4000
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTMLFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxChars:  maxChars,
	}
}

// Fetch accepts only http and https URLs.
func (f *HTMLFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	const op = "read"

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ports.ValidationError(op, fmt.Errorf("unsupported url %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", ports.ValidationError(op, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, op, u.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return "", classifyTransport(ctx, op, u.Host, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ports.ResponseError(op, u.Host, fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", ports.ResponseError(op, u.Host, fmt.Errorf("failed to parse html: %w", err))
	}

	text := collapseSpace(visibleText(doc))
	if text == "" {
		return "", ports.ResponseError(op, u.Host, ports.ErrNoResults)
	}
	if r := []rune(text); len(r) > f.maxChars {
		text = string(r[:f.maxChars])
	}
	return text, nil
}

func visibleText(root *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Svg, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}

var _ ports.Fetcher = (*HTMLFetcher)(nil)
