// Package fetch resolves article URLs into plain text. It extracts the
// main content region of static HTML pages and drops navigation chrome,
// scripts and styles.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/MimeLyc/longdoc-translator/internal/jobs"
)

const (
	// Browser-like agent to get past basic bot blocking.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxBodyBytes = 10 << 20
)

// Content containers tried in priority order before falling back to body.
var contentSelectors = []func(*html.Node) bool{
	isElement("article"),
	hasAttr("role", "main"),
	isElement("main"),
	hasClassOrID("post-content", "article-content", "entry-content", "content", "markdown-body", "prose"),
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"form": true, "button": true, "svg": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "blockquote": true, "pre": true, "br": true,
	"tr": true, "table": true, "ul": true, "ol": true,
}

// Fetcher implements the worker's Fetcher interface over plain HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func New() *Fetcher {
	return &Fetcher{
		client:    &http.Client{},
		userAgent: defaultUserAgent,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (jobs.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return jobs.FetchResult{}, fmt.Errorf("invalid url %q: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return jobs.FetchResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jobs.FetchResult{}, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/plain") {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return jobs.FetchResult{}, fmt.Errorf("read body: %w", err)
		}
		return jobs.FetchResult{Content: string(data)}, nil
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return jobs.FetchResult{}, fmt.Errorf("parse html: %w", err)
	}

	title := extractTitle(doc)
	content := extractContent(doc)
	if strings.TrimSpace(content) == "" {
		return jobs.FetchResult{}, fmt.Errorf("no readable content at %s", url)
	}
	return jobs.FetchResult{Title: title, Content: content}, nil
}

func extractTitle(doc *html.Node) string {
	if t := findNode(doc, isElement("title")); t != nil {
		return strings.TrimSpace(textOf(t))
	}
	if h1 := findNode(doc, isElement("h1")); h1 != nil {
		return strings.TrimSpace(textOf(h1))
	}
	return ""
}

func extractContent(doc *html.Node) string {
	root := doc
	for _, match := range contentSelectors {
		if n := findNode(doc, match); n != nil {
			root = n
			break
		}
	}
	if root == doc {
		if body := findNode(doc, isElement("body")); body != nil {
			root = body
		}
	}

	var b strings.Builder
	renderText(root, &b)
	return normalize(b.String())
}

// renderText flattens the subtree into text, inserting paragraph breaks at
// block element boundaries.
func renderText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && skippedElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteString("\n\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, b)
	}
	if block {
		b.WriteString("\n\n")
	}
}

var (
	spaceRun = regexp.MustCompile(`[ \t]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

func normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(joined, "\n\n"))
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		} else {
			b.WriteString(textOf(c))
		}
	}
	return b.String()
}

func isElement(name string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == name }
}

func hasAttr(key, value string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		for _, a := range n.Attr {
			if a.Key == key && a.Val == value {
				return true
			}
		}
		return false
	}
}

func hasClassOrID(names ...string) func(*html.Node) bool {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	return func(n *html.Node) bool {
		for _, a := range n.Attr {
			if a.Key == "id" && wanted[a.Val] {
				return true
			}
			if a.Key == "class" {
				for _, cls := range strings.Fields(a.Val) {
					if wanted[cls] {
						return true
					}
				}
			}
		}
		return false
	}
}
