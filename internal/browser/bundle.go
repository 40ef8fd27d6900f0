// Package browser captures API credentials that single-page apps only
// hand to a real browser session.
package browser

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/newsdesk/internal/config"
)

var ErrNoCapture = errors.New("no matching api request observed")

// Bundle is a captured credential set. It lives in memory only and is
// passed explicitly to the dynamic adapter.
type Bundle struct {
	Token     string
	Hash      string
	Headers   map[string]string
	CreatedAt time.Time
}

// IsStale reports whether the bundle is missing or older than maxAge.
func (b *Bundle) IsStale(now time.Time, maxAge time.Duration) bool {
	if b == nil {
		return true
	}
	return now.Sub(b.CreatedAt) > maxAge
}

// Seed tells an Acquirer where to look and what to keep.
type Seed struct {
	URL           string
	APIMatch      string
	TokenHeader   string
	HashParam     string
	ReplayHeaders []string
}

func SeedFor(src config.Source) Seed {
	return Seed{
		URL:           src.SeedURL,
		APIMatch:      src.APIMatch,
		TokenHeader:   src.TokenHeader,
		HashParam:     src.HashParam,
		ReplayHeaders: src.ReplayHeaders,
	}
}

type Acquirer interface {
	Acquire(ctx context.Context, seed Seed) (*Bundle, error)
}

// StaticAcquirer hands out a preconfigured bundle.
type StaticAcquirer struct {
	Token   string
	Hash    string
	Headers map[string]string
	Now     func() time.Time
}

func (s *StaticAcquirer) Acquire(ctx context.Context, _ Seed) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	headers := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		headers[k] = v
	}
	return &Bundle{Token: s.Token, Hash: s.Hash, Headers: headers, CreatedAt: now()}, nil
}

// bundleFromRequest extracts credentials from an intercepted request.
func bundleFromRequest(reqURL string, headers map[string]any, seed Seed, now time.Time) (*Bundle, bool) {
	if seed.APIMatch == "" || !strings.Contains(reqURL, seed.APIMatch) {
		return nil, false
	}

	b := &Bundle{Headers: map[string]string{}, CreatedAt: now}
	tokenHeader := seed.TokenHeader
	if tokenHeader == "" {
		tokenHeader = "Authorization"
	}
	if v, ok := headerValue(headers, tokenHeader); ok {
		b.Token = strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	for _, name := range seed.ReplayHeaders {
		if v, ok := headerValue(headers, name); ok {
			b.Headers[name] = v
		}
	}
	if seed.HashParam != "" {
		if u, err := url.Parse(reqURL); err == nil {
			b.Hash = u.Query().Get(seed.HashParam)
		}
	}

	if b.Token == "" && b.Hash == "" {
		return nil, false
	}
	return b, true
}

// headerValue looks a header up case-insensitively; devtools reports
// whatever casing the page used.
func headerValue(headers map[string]any, name string) (string, bool) {
	for k, v := range headers {
		if !strings.EqualFold(k, name) {
			continue
		}
		s, ok := v.(string)
		return s, ok && s != ""
	}
	return "", false
}
