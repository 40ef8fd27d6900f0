package rewrite

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxRunes leaves room for the attribution link under Telegram's
// 1024-rune caption limit.
const DefaultMaxRunes = 950

// Tags Telegram accepts in HTML parse mode.
var telegramPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.RequireParseableURLs(true)
	return p
}()

var (
	serviceTokens  = []string{"APPROVE", "REJECT", "ACCEPT", "DONE", "Here is the text"}
	reMarkdownBold = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reDisclaimer   = regexp.MustCompile(`(?i)[(\[]\s*note:[^)\]]*[)\]]|(?m)^\s*note:.*$`)
	reBlankLines   = regexp.MustCompile(`\n{3,}`)
	reBreak        = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// Sanitize strips model chatter, converts markdown bold to <b> and reduces
// the markup to what Telegram renders.
func Sanitize(text string) string {
	s := strings.TrimSpace(text)
	for _, tok := range serviceTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = reDisclaimer.ReplaceAllString(s, "")
	s = reMarkdownBold.ReplaceAllString(s, "<b>$1</b>")
	s = reBreak.ReplaceAllString(s, "\n")
	s = telegramPolicy.Sanitize(s)
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SmartTruncate cuts s to at most max runes, preferring the end of a
// sentence, then a word boundary with an ellipsis. Unclosed tags are
// closed again.
func SmartTruncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := dropPartial(string([]rune(s)[:max]))

	if i := strings.LastIndexAny(cut, `.!?»"`); i >= 0 {
		_, size := utf8.DecodeRuneInString(cut[i:])
		if out := dropPartial(cut[:i+size]); out != "" {
			return closeOpenTags(out)
		}
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return closeOpenTags(dropPartial(cut[:i]) + "...")
	}
	return closeOpenTags(cut)
}

// dropPartial removes a trailing half-written tag or entity.
func dropPartial(s string) string {
	if lt := strings.LastIndex(s, "<"); lt > strings.LastIndex(s, ">") {
		s = s[:lt]
	}
	if amp := strings.LastIndex(s, "&"); amp >= 0 && !strings.Contains(s[amp:], ";") {
		s = s[:amp]
	}
	return s
}

var reTag = regexp.MustCompile(`<(/?)([a-z]+)[^>]*>`)

func closeOpenTags(s string) string {
	var open []string
	for _, m := range reTag.FindAllStringSubmatch(s, -1) {
		name := m[2]
		if m[1] == "" {
			open = append(open, name)
			continue
		}
		for i := len(open) - 1; i >= 0; i-- {
			if open[i] == name {
				open = append(open[:i], open[i+1:]...)
				break
			}
		}
	}
	for i := len(open) - 1; i >= 0; i-- {
		s += "</" + open[i] + ">"
	}
	return s
}
