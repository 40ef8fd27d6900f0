package news

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  Тенге   УКРЕПИЛСЯ\n к доллару ", "тенге укрепился к доллару"},
		{"empty", "   ", ""},
		{"latin", "Tenge Falls 3%", "tenge falls 3%"},
		{"compatibility forms", "Ｎｅｗｓ ﬁnance", "news finance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestNormalizeTitle_Capped(t *testing.T) {
	long := strings.Repeat("ә", 400)
	got := NormalizeTitle(long)
	assert.Equal(t, MaxNormalizedTitleRunes, utf8.RuneCountInString(got))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		hint string
		want string
	}{
		{"kazakh text", "Қазақстанның ұлттық банкі базалық мөлшерлемені өзгеріссіз қалдырды", "", LangKZ},
		{"russian text with one kazakh word", "Национальный банк Казахстана сохранил базовую ставку, сообщает пресс-служба Қазақстан", "kz", LangRU},
		{"short text uses hint", "Тенге", "kz", LangKZ},
		{"unknown defaults to ru", "hello", "", LangRU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.text, tt.hint))
		})
	}
}

func TestScore(t *testing.T) {
	text := strings.Repeat("а", 2000) + " банк инфляция алматы"
	s := Score("Рынок в Казахстане", text)
	// 3 for volume, банк, инфляция, рынок, казахстан, алматы
	assert.InDelta(t, 8.0, s, 0.001)

	assert.InDelta(t, 0.2, Score("", strings.Repeat("x", 100)), 0.001)
}

func TestTopByScore(t *testing.T) {
	now := time.Now()
	in := []Article{
		{Candidate: Candidate{Title: "a"}, Score: 1, PublishedAt: now},
		{Candidate: Candidate{Title: "b"}, Score: 3, PublishedAt: now},
		{Candidate: Candidate{Title: "c"}, Score: 3, PublishedAt: now.Add(time.Hour)},
		{Candidate: Candidate{Title: "d"}, Score: 2, PublishedAt: now},
	}
	top := TopByScore(in, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "c", top[0].Title)
	assert.Equal(t, "b", top[1].Title)
}

func TestScore_ShortStemsMatchWholeWords(t *testing.T) {
	assert.InDelta(t, 1.0, Score("Новости СНГ за неделю", ""), 0.001)
	assert.InDelta(t, 0.0, Score("сносное снговое", ""), 0.001)
	assert.InDelta(t, 2.0, Score("ВВП и НБК", ""), 0.001)
	assert.InDelta(t, 1.024, Score("", "Рост в ЕАЭС."), 0.001)
}

func TestKeyword(t *testing.T) {
	ks := keywords("инфляц", "сезон в горах", " ", "снг")
	require.Len(t, ks, 3)
	assert.True(t, ks[0].in("инфляция замедлилась"))
	assert.True(t, ks[1].in("туристический сезон в горах"))
	assert.Nil(t, ks[1].whole)
	assert.True(t, ks[2].in("(снг)"))
	assert.False(t, ks[2].in("снговое"))
}

func TestArticleDraft(t *testing.T) {
	pub := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := Article{
		Candidate:    Candidate{Title: " Big  News ", Link: "https://x.kz/1", SourceName: "X"},
		Text:         "body",
		ImageURL:     "https://x.kz/i.jpg",
		PublishedAt:  pub,
		DateResolved: true,
		Language:     LangKZ,
		Score:        2.5,
	}
	it := a.Draft()
	assert.Equal(t, StatusDraft, it.Status)
	assert.Equal(t, "big news", it.NormalizedTitle)
	require.NotNil(t, it.SourcePublishedAt)
	assert.True(t, pub.Equal(*it.SourcePublishedAt))
	assert.Equal(t, "https://x.kz/i.jpg", it.Image())
	assert.Nil(t, it.RewrittenText)

	a.DateResolved = false
	a.ImageURL = ""
	it = a.Draft()
	assert.Nil(t, it.SourcePublishedAt)
	assert.Equal(t, "", it.Image())
}
