// Package rewrite turns an article's original text into a Telegram post.
package rewrite

import (
	"context"
	"errors"
	"html"
	"strings"
)

// ErrRejected means the editorial stage declined the draft.
var ErrRejected = errors.New("rewrite rejected by editor")

type Request struct {
	Title    string
	Text     string
	Language string
}

type Rewriter interface {
	Rewrite(ctx context.Context, req Request) (string, error)
}

// Passthrough formats the original text without a model: bold title,
// escaped body, truncated to the post limit.
type Passthrough struct {
	MaxRunes int
}

var _ Rewriter = Passthrough{}

func (p Passthrough) Rewrite(_ context.Context, req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title, text, _ = strings.Cut(text, "\n")
		title, text = strings.TrimSpace(title), strings.TrimSpace(text)
	}
	if title == "" && text == "" {
		return "", errors.New("nothing to rewrite")
	}

	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</b>")
	if text != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(text))
	}
	return SmartTruncate(b.String(), p.maxRunes()), nil
}

func (p Passthrough) maxRunes() int {
	if p.MaxRunes > 0 {
		return p.MaxRunes
	}
	return DefaultMaxRunes
}
