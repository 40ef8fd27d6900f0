package rewrite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/retry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type scriptedGenerator struct {
	replies []string
	errs    []error
	systems []string
	calls   int
}

func (s *scriptedGenerator) Generate(_ context.Context, system, _ string, _ int32) (string, error) {
	i := s.calls
	s.calls++
	s.systems = append(s.systems, system)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", nil
}

func testGemini(gen generator, limiter *ratelimit.CallLimiter) *Gemini {
	g := newGemini(gen, limiter, 0, discard)
	g.retry = retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}
	return g
}

func TestGemini_ThreeStages(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"**Теңге нығайды**\n\nҰлттық валюта апта басында нығайды.",
		"APPROVE",
		"Here is the text **Теңге нығайды**\n\nҰлттық валюта апта басында нығайды. DONE",
	}}
	g := testGemini(gen, ratelimit.NewCallLimiter(0, 10, time.UTC, discard))

	out, err := g.Rewrite(context.Background(), Request{Title: "Теңге", Text: "source", Language: news.LangKZ})
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, "<b>Теңге нығайды</b>\n\nҰлттық валюта апта басында нығайды.", out)
	assert.Contains(t, gen.systems[0], "КАЗАХСКИЙ")
}

func TestGemini_EditorRejects(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"draft", "reject"}}
	g := testGemini(gen, nil)

	_, err := g.Rewrite(context.Background(), Request{Text: "press release", Language: news.LangRU})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 2, gen.calls)
}

func TestGemini_RetriesTransientErrors(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    []error{errors.New("503")},
		replies: []string{"", "<b>T</b> draft.", "APPROVE", "<b>T</b> final."},
	}
	g := testGemini(gen, nil)

	out, err := g.Rewrite(context.Background(), Request{Text: "x", Language: news.LangRU})
	require.NoError(t, err)
	assert.Equal(t, "<b>T</b> final.", out)
	assert.Contains(t, gen.systems[0], "РУССКИЙ")
}

func TestGemini_BudgetExhaustedIsNotRetried(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"draft"}}
	g := testGemini(gen, ratelimit.NewCallLimiter(0, 1, time.UTC, discard))

	_, err := g.Rewrite(context.Background(), Request{Text: "x"})
	assert.ErrorIs(t, err, ratelimit.ErrBudgetExhausted)
	assert.Equal(t, 1, gen.calls)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markdown bold", "**Title** body", "<b>Title</b> body"},
		{"service tokens", "APPROVE\n<b>T</b> text", "<b>T</b> text"},
		{"disallowed tags", `<div><b>T</b> <script>x()</script><span>text</span></div>`, "<b>T</b> text"},
		{"links kept", `<a href="https://kapital.kz/a">link</a>`, `<a href="https://kapital.kz/a">link</a>`},
		{"disclaimer", "(Note: machine generated) Текст новости.", "Текст новости."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSmartTruncate(t *testing.T) {
	assert.Equal(t, "short", SmartTruncate("short", 950))

	s := "Первое предложение. Второе предложение длиннее"
	assert.Equal(t, "Первое предложение.", SmartTruncate(s, 30))

	noPunct := "слово слово слово слово"
	assert.Equal(t, "слово слово...", SmartTruncate(noPunct, 14))

	tagged := "<b>Заголовок без точки и очень длинный</b>"
	out := SmartTruncate(tagged, 20)
	assert.True(t, strings.HasSuffix(out, "</b>"), out)

	entity := "Курс &amp; рынок"
	assert.NotContains(t, SmartTruncate(entity, 7), "&am")

	long := strings.Repeat("Сөйлем. ", 200)
	assert.LessOrEqual(t, utf8.RuneCountInString(SmartTruncate(long, 950)), 950)
}

func TestPassthrough(t *testing.T) {
	out, err := Passthrough{}.Rewrite(context.Background(), Request{Title: "A & B", Text: "Body <text>."})
	require.NoError(t, err)
	assert.Equal(t, "<b>A &amp; B</b>\n\nBody &lt;text&gt;.", out)

	out, err = Passthrough{}.Rewrite(context.Background(), Request{Text: "First line\nrest"})
	require.NoError(t, err)
	assert.Equal(t, "<b>First line</b>\n\nrest", out)

	_, err = Passthrough{}.Rewrite(context.Background(), Request{})
	assert.Error(t, err)
}
