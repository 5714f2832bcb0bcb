package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/llm"
)

// Page is the readable content of a web page.
type Page struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

// PageReader fetches a page and extracts its readable text.
type PageReader interface {
	Read(ctx context.Context, url string) (Page, error)
}

func readWebpageTool(r PageReader) Tool {
	return &handler[ReadWebpageArgs]{
		kind:        KindReadWebpage,
		description: "Fetch a web page and return its readable text. Use it to read a search result in full.",
		schema: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Property{
				"url": {Type: "string", Description: "Absolute http(s) URL of the page"},
			},
			Required: []string{"url"},
		},
		exec: func(ctx context.Context, _ string, args ReadWebpageArgs) (any, error) {
			return r.Read(ctx, args.URL)
		},
	}
}

// HTTPPageReader downloads HTML and strips it to text with goquery.
type HTTPPageReader struct {
	client    *http.Client
	maxChars  int
	maxBytes  int64
	userAgent string
}

func NewHTTPPageReader(cfg config.WebpageToolConfig) *HTTPPageReader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &HTTPPageReader{
		client:    &http.Client{Timeout: timeout},
		maxChars:  maxChars,
		maxBytes:  5 << 20,
		userAgent: "aegis-chat/1.0 (+read_webpage)",
	}
}

// noise is removed before text extraction.
const noise = "script, style, noscript, svg, iframe, nav, header, footer, aside, form"

func (p *HTTPPageReader) Read(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("create page request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Page{}, fmt.Errorf("unsupported content type %q", ct)
	}

	page, err := extractPage(io.LimitReader(resp.Body, p.maxBytes), p.maxChars)
	if err != nil {
		return Page{}, err
	}
	page.URL = url
	return page, nil
}

func extractPage(r io.Reader, maxChars int) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find(noise).Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var parts []string
	root.Find("h1, h2, h3, h4, p, li, pre, blockquote, td").Each(func(_ int, s *goquery.Selection) {
		// Nested matches (p inside li) would otherwise repeat text.
		if s.ParentsFiltered("p, li, pre, blockquote, td").Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		if text := collapse(root.Text()); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, "\n")
	page := Page{Title: collapse(doc.Find("title").First().Text())}
	if runes := []rune(text); len(runes) > maxChars {
		text = string(runes[:maxChars])
		page.Truncated = true
	}
	page.Text = text
	return page, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
