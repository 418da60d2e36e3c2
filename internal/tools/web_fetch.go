package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// MaxFetchLines is the number of body lines web_fetch returns.
	MaxFetchLines = 200

	MaxResponseSize   = 5 * 1024 * 1024 // 5MB
	DefaultWebTimeout = 30 * time.Second
)

// Fetcher retrieves a URL and returns its body as text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches over HTTP(S) and converts HTML bodies to plain text.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher returns a fetcher with the given timeout (DefaultWebTimeout if zero).
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultWebTimeout
	}
	return &HTTPFetcher{Client: &http.Client{}, Timeout: timeout}
}

// WebFetchTool returns the web_fetch tool definition.
func WebFetchTool() *Definition {
	return &Definition{
		Name:        "web_fetch",
		Usage:       "web_fetch(url)",
		Description: fmt.Sprintf("fetch a URL and return the first %d lines of its text", MaxFetchLines),
		Execute:     executeWebFetch,
	}
}

func executeWebFetch(ctx context.Context, d *Dispatcher, args string) (string, error) {
	url := cleanArg(args)
	if url == "" {
		return "", fmt.Errorf("%w: web_fetch requires a url", ErrInvalidFormat)
	}
	if d.fetcher == nil {
		return "", fmt.Errorf("%w: no network fetch capability configured", ErrFetchUnavailable)
	}

	body, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	return firstLines(body, MaxFetchLines), nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("%w: URL must start with http:// or https://", ErrInvalidFormat)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrExecution, err)
	}
	req.Header.Set("User-Agent", "nlsh/1.0 (+https://github.com/atinylittleshell/nlsh)")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.8")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrExecution, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: request failed with status code %d", ErrExecution, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrExecution, err)
	}

	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		text, err := extractTextFromHTML(body)
		if err != nil {
			return "", fmt.Errorf("%w: failed to extract text from HTML: %v", ErrExecution, err)
		}
		return text, nil
	}

	return string(body), nil
}

// blockElements end a line of extracted text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "table": true,
}

// extractTextFromHTML extracts readable text, one block element per line.
func extractTextFromHTML(htmlContent []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var text strings.Builder
	var extract func(*html.Node, bool)
	extract = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "object", "embed", "head":
				skip = true
			}
		}

		if n.Type == html.TextNode && !skip {
			if s := strings.TrimSpace(n.Data); s != "" {
				text.WriteString(s)
				text.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c, skip)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			text.WriteString("\n")
		}
	}
	extract(doc, false)

	lines := strings.Split(text.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
