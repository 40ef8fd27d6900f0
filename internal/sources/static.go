package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/news"
)

// StaticAdapter scrapes a server-rendered listing page with CSS selectors.
type StaticAdapter struct {
	client    *http.Client
	userAgent string
}

var _ Fetcher = (*StaticAdapter)(nil)

func NewStaticAdapter(client *http.Client, userAgent string) *StaticAdapter {
	return &StaticAdapter{client: client, userAgent: userAgent}
}

func (a *StaticAdapter) FetchCandidates(ctx context.Context, src config.Source) ([]news.Candidate, error) {
	body, err := httpGet(ctx, a.client, src.URL, a.userAgent, map[string]string{
		"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	return parseListing(doc, src), nil
}

// parseListing applies the record's selectors to a listing document.
func parseListing(doc *goquery.Document, src config.Source) []news.Candidate {
	base := baseFor(src)
	limit := limitFor(src)
	seen := make(map[string]struct{})
	var out []news.Candidate

	doc.Find(src.ContainerSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		titleEl := item.Find(src.TitleSelector).First()
		title := strings.Join(strings.Fields(titleEl.Text()), " ")
		if title == "" {
			return true
		}

		link := ResolveLink(linkHref(item, titleEl, src.LinkSelector), base)
		if link == "" {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}

		c := news.Candidate{
			Title:      title,
			Link:       link,
			SourceName: src.Name,
			Language:   src.Language,
		}
		if dt, ok := item.Find("time[datetime]").First().Attr("datetime"); ok {
			c.DateHint = dt
		}
		out = append(out, c)
		return len(out) < limit
	})
	return out
}

// linkHref picks the href: the link selector, the title element itself,
// then the container or its first anchor.
func linkHref(item, titleEl *goquery.Selection, linkSelector string) string {
	if linkSelector != "" {
		if href, ok := item.Find(linkSelector).First().Attr("href"); ok {
			return href
		}
	}
	if href, ok := titleEl.Attr("href"); ok {
		return href
	}
	if href, ok := titleEl.Find("a").First().Attr("href"); ok {
		return href
	}
	if href, ok := item.Attr("href"); ok {
		return href
	}
	href, _ := item.Find("a").First().Attr("href")
	return href
}
