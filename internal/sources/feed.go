package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/news"
)

// FeedAdapter reads RSS and Atom feeds.
type FeedAdapter struct {
	client    *http.Client
	userAgent string
}

var _ Fetcher = (*FeedAdapter)(nil)

func NewFeedAdapter(client *http.Client, userAgent string) *FeedAdapter {
	return &FeedAdapter{client: client, userAgent: userAgent}
}

func (a *FeedAdapter) FetchCandidates(ctx context.Context, src config.Source) ([]news.Candidate, error) {
	parser := gofeed.NewParser()
	parser.Client = a.client
	parser.UserAgent = a.userAgent

	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("error parsing feed %s: %w", src.URL, err)
	}

	base := baseFor(src)
	limit := limitFor(src)
	out := make([]news.Candidate, 0, limit)
	for _, item := range feed.Items {
		if len(out) >= limit {
			break
		}
		link := ResolveLink(item.Link, base)
		title := strings.TrimSpace(item.Title)
		if link == "" || title == "" {
			continue
		}

		c := news.Candidate{
			Title:      title,
			Link:       link,
			SourceName: src.Name,
			Language:   src.Language,
			Summary:    strings.TrimSpace(item.Description),
			ImageHint:  feedImage(item),
		}
		switch {
		case item.Published != "":
			c.DateHint = item.Published
		case item.Updated != "":
			c.DateHint = item.Updated
		}
		out = append(out, c)
	}
	return out, nil
}

// feedImage looks at the item image and image enclosures.
func feedImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}
