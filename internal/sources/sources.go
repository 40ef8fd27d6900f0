// Package sources turns configured source records into news candidates.
// Each record's kind selects an adapter: static HTML listings, RSS/Atom
// feeds, or token-gated JSON APIs behind a single-page app.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/news"
)

// Fetcher extracts candidates from one source.
type Fetcher interface {
	FetchCandidates(ctx context.Context, src config.Source) ([]news.Candidate, error)
}

const maxBodyBytes = 5 << 20

// httpGet performs a GET with the shared client and returns the body.
func httpGet(ctx context.Context, client *http.Client, rawURL, userAgent string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d from %s", e.Code, e.URL)
}

// ResolveLink makes href absolute against base. Fragments, javascript:
// links and unparseable values yield "".
func ResolveLink(href, base string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return ""
		}
		return u.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(u).String()
}

func baseFor(src config.Source) string {
	if src.BaseURL != "" {
		return src.BaseURL + "/"
	}
	return src.URL
}

const defaultLimit = 5

func limitFor(src config.Source) int {
	if src.Limit > 0 {
		return src.Limit
	}
	return defaultLimit
}
