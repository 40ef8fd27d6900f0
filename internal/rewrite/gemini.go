package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/retry"
)

const (
	maxSourceRunes = 6000
	callTimeout    = 60 * time.Second
)

var errEmptyResponse = errors.New("no response from Gemini")

// generator is one chat completion: system instruction plus user prompt.
type generator interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int32) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) Generate(ctx context.Context, system, prompt string, maxTokens int32) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.SetMaxOutputTokens(maxTokens)
	model.SetTemperature(0.7)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// Gemini runs the journalist, editor and polisher stages. Every model
// call waits on the shared limiter first.
type Gemini struct {
	gen      generator
	closer   func() error
	limiter  *ratelimit.CallLimiter
	retry    retry.RetryConfig
	maxRunes int
	log      *slog.Logger
}

var _ Rewriter = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, model string, limiter *ratelimit.CallLimiter, maxRunes int, log *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g := newGemini(&genaiGenerator{client: client, model: model}, limiter, maxRunes, log)
	g.closer = client.Close
	return g, nil
}

func newGemini(gen generator, limiter *ratelimit.CallLimiter, maxRunes int, log *slog.Logger) *Gemini {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Gemini{
		gen:      gen,
		limiter:  limiter,
		retry:    retry.RetryConfig{MaxAttempts: 3, Delay: 5 * time.Second, Backoff: true},
		maxRunes: maxRunes,
		log:      log,
	}
}

func (g *Gemini) Close() {
	if g.closer != nil {
		_ = g.closer()
	}
}

func (g *Gemini) Rewrite(ctx context.Context, req Request) (string, error) {
	rules := rulesFor(req.Language)
	source := prepareSource(req.Title, req.Text)

	draft, err := g.call(ctx, "journalist", rules.journalistSystem(), fmt.Sprintf(journalistPrompt, source), 900)
	if err != nil {
		return "", err
	}

	decision, err := g.call(ctx, "editor", editorSystem, fmt.Sprintf(editorPrompt, draft), 10)
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToUpper(decision), "REJECT") {
		g.log.Warn("editor rejected draft", "language", req.Language)
		return "", ErrRejected
	}

	final, err := g.call(ctx, "polisher", rules.polisherSystem(), fmt.Sprintf(polisherPrompt, draft), 900)
	if err != nil {
		return "", err
	}

	out := SmartTruncate(Sanitize(final), g.maxRunes)
	if out == "" {
		return "", errors.New("rewrite produced empty text")
	}
	return out, nil
}

func (g *Gemini) call(ctx context.Context, stage, system, prompt string, maxTokens int32) (string, error) {
	var out string
	err := retry.WithRetry(ctx, g.retry, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return retry.Stop(err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		g.log.Debug("rewrite stage", "stage", stage)
		text, err := g.gen.Generate(callCtx, system, prompt, maxTokens)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(text)
		if out == "" {
			return errEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}
	return out, nil
}

// prepareSource collapses whitespace and caps the prompt input, ending at
// a sentence where possible.
func prepareSource(title, text string) string {
	text = strings.Join(strings.Fields(strings.ReplaceAll(text, "\r", "")), " ")
	if utf8.RuneCountInString(text) > maxSourceRunes {
		trimmed := string([]rune(text)[:maxSourceRunes])
		if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
			trimmed = trimmed[:idx+1]
		}
		text = trimmed
	}
	if title == "" {
		return text
	}
	return "Заголовок: " + title + "\n" + text
}

type languageRules struct {
	name  string
	rules string
}

func rulesFor(lang string) languageRules {
	if lang == news.LangKZ {
		return languageRules{name: "КАЗАХСКИЙ", rules: kazakhRules}
	}
	return languageRules{name: "РУССКИЙ", rules: russianRules}
}

func (r languageRules) journalistSystem() string {
	return "Ты колумнист делового издания. Напиши короткую заметку на основе новости: " +
		"не только что случилось, но и что это значит для читателя. Тон умный, сдержанно ироничный. " +
		"ЯЗЫК ОТВЕТА: " + r.name + ". " + r.rules
}

func (r languageRules) polisherSystem() string {
	return "Ты корректор. Сделай текст чистым и коротким. ЯЗЫК ОТВЕТА: " + r.name + ". " + r.rules
}

const (
	kazakhRules = "Пиши на чистом казахском языке без русизмов и англицизмов: 'әсіресе' вместо 'в частности', " +
		"'алайда' вместо 'однако'. Проверяй септік жалғаулары и сингармонизм. " +
		"Месяцы только так: қаңтар, ақпан, наурыз, сәуір, мамыр, маусым, шілде, тамыз, қыркүйек, қазан, қараша, желтоқсан."

	russianRules = "Пиши на грамотном русском языке без канцелярита и англицизмов. Названия организаций не переводи."

	editorSystem = "Ты главный редактор. Ответь одним словом: APPROVE или REJECT."

	journalistPrompt = `Напиши заметку на основе текста ниже.

ФОРМАТ:
1. Заголовок в теге <b>Заголовок</b>.
2. Не длиннее 850 символов.
3. Два или три абзаца.
4. В конце короткий аналитический комментарий и 2-3 хэштега.

ИСХОДНЫЙ ТЕКСТ:
%s`

	editorPrompt = `Оцени текст. Пресс-релиз, реклама, спам или бессмыслица: REJECT. Нормальная новость: APPROVE.

ТЕКСТ:
%s`

	polisherPrompt = `Отредактируй текст для публикации в Telegram.

1. Текст короче 900 символов, сокращай лишнее.
2. Исправь грамматику и убери чужие слова.
3. Сохрани тег <b></b> у заголовка.
4. Верни только готовый текст.

ТЕКСТ:
%s`
)
