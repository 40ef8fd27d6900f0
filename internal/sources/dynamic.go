package sources

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/deusflow/newsdesk/internal/browser"
	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/news"
)

// ErrCredentialsRejected means the API refused the captured bundle.
var ErrCredentialsRejected = errors.New("api rejected credentials")

// DynamicAdapter replays captured credentials against a SPA's JSON API.
type DynamicAdapter struct {
	client    *http.Client
	userAgent string
	acquirer  browser.Acquirer
}

var _ Fetcher = (*DynamicAdapter)(nil)

func NewDynamicAdapter(client *http.Client, userAgent string, acquirer browser.Acquirer) *DynamicAdapter {
	return &DynamicAdapter{client: client, userAgent: userAgent, acquirer: acquirer}
}

// FetchCandidates acquires a one-off bundle. The collector prefers
// FetchWith so a batch shares one browser session.
func (a *DynamicAdapter) FetchCandidates(ctx context.Context, src config.Source) ([]news.Candidate, error) {
	if a.acquirer == nil {
		return nil, errors.New("no credential acquirer configured")
	}
	bundle, err := a.acquirer.Acquire(ctx, browser.SeedFor(src))
	if err != nil {
		return nil, fmt.Errorf("acquire credentials for %s: %w", src.Name, err)
	}
	return a.FetchWith(ctx, bundle, src)
}

// FetchWith queries the source API with an existing bundle.
func (a *DynamicAdapter) FetchWith(ctx context.Context, bundle *browser.Bundle, src config.Source) ([]news.Candidate, error) {
	if bundle == nil {
		return nil, errors.New("nil credential bundle")
	}

	apiURL := strings.NewReplacer(
		"{project}", url.PathEscape(src.Project),
		"{hash}", url.QueryEscape(bundle.Hash),
	).Replace(src.APIURL)

	headers := map[string]string{"Accept": "application/json"}
	for k, v := range src.ExtraHeaders {
		headers[k] = v
	}
	for k, v := range bundle.Headers {
		headers[k] = v
	}
	if bundle.Token != "" {
		tokenHeader := src.TokenHeader
		if tokenHeader == "" {
			tokenHeader = "Authorization"
		}
		if strings.EqualFold(tokenHeader, "Authorization") {
			headers[tokenHeader] = "Bearer " + bundle.Token
		} else {
			headers[tokenHeader] = bundle.Token
		}
	}

	body, err := httpGet(ctx, a.client, apiURL, a.userAgent, headers)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return nil, fmt.Errorf("%s: %w", src.Name, ErrCredentialsRejected)
		}
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode %s response: invalid json", src.Name)
	}
	return parseAPIItems(body, src)
}

func parseAPIItems(body []byte, src config.Source) ([]news.Candidate, error) {
	items := gjson.ParseBytes(body)
	if src.ItemsPath != "" {
		items = items.Get(src.ItemsPath)
	}
	if !items.Exists() {
		return nil, fmt.Errorf("items path %q not found", src.ItemsPath)
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("items path %q is not a list", src.ItemsPath)
	}

	titleField := src.TitleField
	if titleField == "" {
		titleField = "title"
	}
	base := baseFor(src)
	if src.BaseURL == "" {
		base = src.SeedURL
	}
	limit := limitFor(src)

	out := make([]news.Candidate, 0, limit)
	for _, item := range items.Array() {
		if len(out) >= limit {
			break
		}
		rawTitle, _ := field(item, titleField)
		title := strings.Join(strings.Fields(html.UnescapeString(rawTitle)), " ")
		if title == "" {
			continue
		}

		var link string
		if src.LinkField != "" {
			if v, ok := field(item, src.LinkField); ok {
				link = ResolveLink(v, base)
			}
		}
		if link == "" && src.LinkTemplate != "" {
			if expanded, ok := expand(src.LinkTemplate, item); ok {
				link = ResolveLink(expanded, base)
			}
		}
		if link == "" {
			continue
		}

		c := news.Candidate{
			Title:      title,
			Link:       link,
			SourceName: src.Name,
			Language:   src.Language,
		}
		if src.DateField != "" {
			if v, ok := field(item, src.DateField); ok {
				c.DateHint = v
			}
		}
		out = append(out, c)
	}
	return out, nil
}
