package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	fetchTimeout = 30 * time.Second
	maxPageChars = 8000 // keeps the tool result within the model's context
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Web fetches pages and extracts their readable text so the model can answer
// questions about them. Summarization is left to the agent loop's own model
// call, which sees the extracted text as a tool result.
type Web struct {
	logger *slog.Logger
	client *http.Client
	defs   []Definition
}

func NewWeb(logger *slog.Logger) *Web {
	return &Web{
		logger: logger,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

func (w *Web) Name() string {
	return "web"
}

func (w *Web) Init(_ context.Context) error {
	w.defs = []Definition{
		{
			Name:        "fetch_webpage",
			Description: "Fetch a web page and return its readable text content. Use this to answer questions about a specific URL.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "The URL of the page to fetch",
					},
				},
				"required": []string{"url"},
			},
		},
	}
	return nil
}

func (w *Web) Definitions() []Definition {
	return w.defs
}

func (w *Web) Call(ctx context.Context, tool string, args map[string]any) string {
	if tool != "fetch_webpage" {
		return "unsupported tool " + tool
	}

	pageURL, ok := args["url"].(string)
	if !ok || pageURL == "" {
		return `missing required argument "url"`
	}
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		pageURL = "https://" + pageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Sprintf("invalid URL %q: %v", pageURL, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ragbot/1.0)")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("page fetch failed", "url", pageURL, "error", err)
		return fmt.Sprintf("fetching %s failed: %v", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("fetching %s failed: HTTP %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("reading %s failed: %v", pageURL, err)
	}

	text := extractText(string(body))
	if text == "" {
		return "Could not extract text content from the page."
	}
	if len(text) > maxPageChars {
		text = text[:maxPageChars] + "..."
	}
	return text
}

func (w *Web) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// extractText pulls visible text out of an HTML document, skipping chrome
// elements. Unparseable markup falls back to tag stripping.
func extractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return collapseWhitespace(regexp.MustCompile(`<[^>]*>`).ReplaceAllString(htmlContent, " "))
	}

	var sb strings.Builder
	walkTextNodes(doc, &sb)
	return collapseWhitespace(sb.String())
}

func walkTextNodes(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "nav", "footer", "header", "aside", "noscript":
			return
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkTextNodes(c, sb)
	}
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
