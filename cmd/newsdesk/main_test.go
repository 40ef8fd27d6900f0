package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deusflow/newsdesk/internal/config"
)

func TestRenderSources(t *testing.T) {
	srcs := []config.Source{
		{Name: "tengrinews", Kind: "feed", Language: "ru", Limit: 10, URL: "https://tengrinews.kz/news.rss"},
		{Name: "kaztag", Kind: "dynamic", Language: "kz", Limit: 5, SeedURL: "https://kaztag.kz/kz/"},
	}

	var buf bytes.Buffer
	renderSources(&buf, srcs)
	out := strings.ToLower(buf.String())

	assert.Contains(t, out, "https://tengrinews.kz/news.rss")
	assert.Contains(t, out, "https://kaztag.kz/kz/")
	assert.NotContains(t, out, "enabled")
	assert.NotContains(t, out, "true")
	assert.Contains(t, out, "total")
}
