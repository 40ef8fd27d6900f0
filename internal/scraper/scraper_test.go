package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdesk/internal/cache"
	"github.com/deusflow/newsdesk/internal/dates"
	"github.com/deusflow/newsdesk/internal/news"
)

var almt = time.FixedZone("ALMT", 5*60*60)

var longPara = strings.Repeat("Национальный банк Казахстана сохранил ставку. ", 3)

func newTestEnricher(t *testing.T, srv *httptest.Server) (*Enricher, *cache.Cache[news.Article]) {
	t.Helper()
	c := cache.New[news.Article](time.Hour)
	t.Cleanup(c.Close)
	e := NewEnricher(srv.Client(), "newsdesk-test", 50, dates.NewParser(almt), c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, almt) }
	return e, c
}

func TestEnrich_MetaAndParagraphs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprintf(w, `<html><head>
<meta property="og:image" content="/img/cover.jpg">
<meta property="article:published_time" content="2024-06-09T08:00:00+05:00">
</head><body><article>
<p>короткий</p>
<p>%s</p>
<p>%s</p>
<p>Подписывайтесь на наш канал, чтобы не пропустить ничего интересного и важного</p>
</article><img src="/img/other.jpg"></body></html>`, longPara, longPara)
	}))
	defer srv.Close()

	e, _ := newTestEnricher(t, srv)
	cand := news.Candidate{Title: "Ставка", Link: srv.URL + "/news/1", SourceName: "x", Language: "ru"}

	a, err := e.Enrich(context.Background(), cand)
	require.NoError(t, err)

	assert.Equal(t, strings.TrimSpace(longPara)+"\n"+strings.TrimSpace(longPara), a.Text)
	assert.Equal(t, srv.URL+"/img/cover.jpg", a.ImageURL)
	assert.True(t, a.DateResolved)
	assert.True(t, time.Date(2024, 6, 9, 8, 0, 0, 0, almt).Equal(a.PublishedAt))
	assert.Equal(t, news.LangRU, a.Language)

	_, err = e.Enrich(context.Background(), cand)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second call served from cache")
}

func TestEnrich_DateHintWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><meta property="article:published_time" content="2020-01-01T00:00:00Z"></head><body><p>%s</p></body></html>`, longPara)
	}))
	defer srv.Close()

	e, _ := newTestEnricher(t, srv)
	a, err := e.Enrich(context.Background(), news.Candidate{Title: "t", Link: srv.URL, DateHint: "1717977600"})
	require.NoError(t, err)
	assert.True(t, a.DateResolved)
	assert.Equal(t, int64(1717977600), a.PublishedAt.Unix())
}

func TestEnrich_JSONLDAndTextScan(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ld", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><script type="application/ld+json">{"@graph":[{"@type":"NewsArticle","datePublished":"2024-06-08T09:30:00+05:00"}]}</script></head><body><p>%s</p></body></html>`, longPara)
	})
	mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><div class="meta">Жарияланды: 2024 жылғы 7 маусым 14:20</div><p>%s</p></body></html>`, longPara)
	})
	mux.HandleFunc("/none", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><p>%s</p></body></html>`, longPara)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, _ := newTestEnricher(t, srv)

	a, err := e.Enrich(context.Background(), news.Candidate{Title: "t", Link: srv.URL + "/ld"})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 6, 8, 9, 30, 0, 0, almt).Equal(a.PublishedAt))

	a, err = e.Enrich(context.Background(), news.Candidate{Title: "t", Link: srv.URL + "/scan"})
	require.NoError(t, err)
	assert.True(t, a.DateResolved)
	assert.True(t, time.Date(2024, 6, 7, 14, 20, 0, 0, almt).Equal(a.PublishedAt), a.PublishedAt.String())

	a, err = e.Enrich(context.Background(), news.Candidate{Title: "t", Link: srv.URL + "/none"})
	require.NoError(t, err)
	assert.False(t, a.DateResolved)
	assert.Equal(t, e.now(), a.PublishedAt)
}

func TestEnrich_FetchFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, c := newTestEnricher(t, srv)
	cand := news.Candidate{
		Title:     "Заголовок",
		Link:      srv.URL + "/broken",
		Summary:   "<p>Краткое <b>описание</b></p>",
		ImageHint: "https://cdn.kz/1.jpg",
		Language:  "kz",
	}
	a, err := e.Enrich(context.Background(), cand)
	require.Error(t, err)
	assert.Equal(t, "Краткое описание", a.Text)
	assert.Equal(t, "https://cdn.kz/1.jpg", a.ImageURL)
	assert.False(t, a.DateResolved)
	assert.Equal(t, 0, c.Len(), "failures are not cached")

	cand.Summary = ""
	a, _ = e.Enrich(context.Background(), cand)
	assert.Equal(t, "Заголовок", a.Text)
}

func TestEnrich_FirstImageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><img src="pics/a.png"><p>%s</p></body></html>`, longPara)
	}))
	defer srv.Close()

	e, _ := newTestEnricher(t, srv)
	a, err := e.Enrich(context.Background(), news.Candidate{Title: "t", Link: srv.URL + "/news/2"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/news/pics/a.png", a.ImageURL)
}
