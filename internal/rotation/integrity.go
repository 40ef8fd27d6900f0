package rotation

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/newsdesk/internal/rewrite"
)

// ErrIntegrity marks a composed post that must not be sent.
var ErrIntegrity = errors.New("post failed integrity check")

// Attribution renders the link back to the original article.
func Attribution(sourceURL, label string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(sourceURL), label)
}

// Compose appends the attribution link, shortening the body so the whole
// post fits maxRunes.
func Compose(rewritten, sourceURL, label string, maxRunes int) string {
	anchor := Attribution(sourceURL, label)
	body := strings.TrimSpace(rewritten)
	if maxRunes > 0 {
		budget := maxRunes - utf8.RuneCountInString(anchor) - 2
		if budget > 0 && utf8.RuneCountInString(body) > budget {
			body = rewrite.SmartTruncate(body, budget)
		}
	}
	return body + "\n\n" + anchor
}

// CheckIntegrity validates a composed post before it is sent.
func CheckIntegrity(post, sourceURL, label string, minRunes int) error {
	var problems []string
	if n := utf8.RuneCountInString(post); n < minRunes {
		problems = append(problems, fmt.Sprintf("too short (%d < %d runes)", n, minRunes))
	}
	if !strings.Contains(post, "<b>") {
		problems = append(problems, "missing bold headline")
	}
	if u, err := url.Parse(sourceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("source url not absolute: %q", sourceURL))
	} else if !strings.Contains(post, Attribution(sourceURL, label)) {
		problems = append(problems, "missing attribution link")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrIntegrity, strings.Join(problems, "; "))
	}
	return nil
}
