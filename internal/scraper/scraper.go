package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/newsdesk/internal/cache"
	"github.com/deusflow/newsdesk/internal/dates"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/sources"
)

const maxPageBytes = 5 << 20

// Enricher fetches an article page and fills in text, image and date.
type Enricher struct {
	client       *http.Client
	userAgent    string
	minParagraph int
	dates        *dates.Parser
	cache        *cache.Cache[news.Article]
	log          *slog.Logger
	now          func() time.Time
}

func NewEnricher(client *http.Client, userAgent string, minParagraphRunes int, parser *dates.Parser, c *cache.Cache[news.Article], log *slog.Logger) *Enricher {
	return &Enricher{
		client:       client,
		userAgent:    userAgent,
		minParagraph: minParagraphRunes,
		dates:        parser,
		cache:        c,
		log:          log,
		now:          time.Now,
	}
}

// Enrich always returns a usable article. When the page cannot be fetched
// the text falls back to the feed summary or the title and the error is
// returned alongside.
func (e *Enricher) Enrich(ctx context.Context, cand news.Candidate) (news.Article, error) {
	if e.cache != nil {
		if a, ok := e.cache.Get(cand.Link); ok {
			return a, nil
		}
	}

	now := e.now()
	article := news.Article{Candidate: cand}

	body, err := e.fetch(ctx, cand.Link)
	if err != nil {
		e.degrade(&article, now)
		return article, fmt.Errorf("enrich %s: %w", cand.Link, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.degrade(&article, now)
		return article, fmt.Errorf("error parsing HTML: %w", err)
	}

	article.Text = e.extractText(doc)
	if article.Text == "" {
		article.Text = readabilityText(body, cand.Link)
	}
	if article.Text == "" {
		article.Text = fallbackText(cand)
	}
	article.ImageURL = extractImage(doc, cand)
	article.PublishedAt, article.DateResolved = e.resolveDate(doc, cand, now)
	article.Language = news.DetectLanguage(cand.Title+" "+article.Text, cand.Language)

	if e.cache != nil {
		e.cache.Set(cand.Link, article)
	}
	return article, nil
}

func (e *Enricher) degrade(a *news.Article, now time.Time) {
	a.Text = fallbackText(a.Candidate)
	a.ImageURL = a.ImageHint
	a.PublishedAt, a.DateResolved = e.dates.OrNow(a.DateHint, now)
	a.Language = news.DetectLanguage(a.Title+" "+a.Text, a.Candidate.Language)
}

func fallbackText(c news.Candidate) string {
	if s := strings.TrimSpace(stripTags(c.Summary)); s != "" {
		return s
	}
	return c.Title
}

func (e *Enricher) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &sources.StatusError{URL: pageURL, Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// Article-scoped selectors first, then every paragraph on the page.
var paragraphSelectors = []string{
	"article p",
	".article-body p",
	".article__text p",
	".content p",
	".entry-content p",
	"main p",
	"p",
}

func (e *Enricher) extractText(doc *goquery.Document) string {
	var paragraphs []string
	for _, selector := range paragraphSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if utf8.RuneCountInString(text) > e.minParagraph && !isJunk(text) {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			break
		}
	}
	return strings.Join(paragraphs, "\n")
}

func readabilityText(body []byte, pageURL string) string {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

// Boilerplate that survives the length filter on RU/KZ news sites.
var junkIndicators = []string{
	"подписывайтесь на наш", "все права защищены", "при использовании материалов",
	"cookie", "читайте также", "біздің telegram", "материалды көшіріп",
}

func isJunk(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range junkIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func extractImage(doc *goquery.Document, cand news.Candidate) string {
	for _, sel := range []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if link := sources.ResolveLink(v, cand.Link); link != "" {
				return link
			}
		}
	}
	if cand.ImageHint != "" {
		return cand.ImageHint
	}
	if v, ok := doc.Find("img[src]").First().Attr("src"); ok {
		return sources.ResolveLink(v, cand.Link)
	}
	return ""
}

var dateMetaSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[property="og:published_time"]`,
	`meta[itemprop="datePublished"]`,
	`meta[name="pubdate"]`,
	`meta[name="publish-date"]`,
}

// resolveDate tries, in order: the listing's hint, meta tags, JSON-LD,
// <time datetime>, and a scan of the visible text. Unresolved dates
// become now.
func (e *Enricher) resolveDate(doc *goquery.Document, cand news.Candidate, now time.Time) (time.Time, bool) {
	if t, ok := e.dates.Resolve(cand.DateHint, now); ok {
		return t, true
	}
	for _, sel := range dateMetaSelectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if t, ok := e.dates.Resolve(v, now); ok {
				return t, true
			}
		}
	}
	if v := jsonLDDate(doc); v != "" {
		if t, ok := e.dates.Resolve(v, now); ok {
			return t, true
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, ok := e.dates.Resolve(v, now); ok {
			return t, true
		}
	}
	doc.Find("script, style, noscript").Remove()
	if t, ok := e.dates.Scan(doc.Find("body").Text(), now); ok {
		return t, true
	}
	return now, false
}

func jsonLDDate(doc *goquery.Document) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		found = findDatePublished(payload)
		return found == ""
	})
	return found
}

func findDatePublished(v any) string {
	switch node := v.(type) {
	case map[string]any:
		if s, ok := node["datePublished"].(string); ok && s != "" {
			return s
		}
		if graph, ok := node["@graph"]; ok {
			return findDatePublished(graph)
		}
	case []any:
		for _, item := range node {
			if s := findDatePublished(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
