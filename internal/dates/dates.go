// Package dates resolves publish dates from the many shapes news sites use:
// ISO strings, Unix timestamps, dd.mm.yyyy and Russian or Kazakh month names.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// Parser resolves dates in a fixed location. Local times without an
// offset are interpreted in that location.
type Parser struct {
	loc *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

var defaultParser = NewParser(almaty())

func almaty() *time.Location {
	loc, err := time.LoadLocation("Asia/Almaty")
	if err != nil {
		return time.FixedZone("ALMT", 5*60*60)
	}
	return loc
}

// Resolve parses a raw date value using the default Asia/Almaty parser.
func Resolve(raw string, now time.Time) (time.Time, bool) { return defaultParser.Resolve(raw, now) }

// Scan finds the first date in free text using the default parser.
func Scan(text string, now time.Time) (time.Time, bool) { return defaultParser.Scan(text, now) }

// OrNow resolves raw or falls back to now.
func OrNow(raw string, now time.Time) (time.Time, bool) { return defaultParser.OrNow(raw, now) }

var ruMonths = map[string]time.Month{
	"января": 1, "январь": 1, "янв": 1,
	"февраля": 2, "февраль": 2, "фев": 2,
	"марта": 3, "март": 3, "мар": 3,
	"апреля": 4, "апрель": 4, "апр": 4,
	"мая": 5, "май": 5,
	"июня": 6, "июнь": 6, "июн": 6,
	"июля": 7, "июль": 7, "июл": 7,
	"августа": 8, "август": 8, "авг": 8,
	"сентября": 9, "сентябрь": 9, "сен": 9,
	"октября": 10, "октябрь": 10, "окт": 10,
	"ноября": 11, "ноябрь": 11, "ноя": 11,
	"декабря": 12, "декабрь": 12, "дек": 12,
}

// Kazakh month names take case suffixes (қаңтарда, наурыздың), so they
// are matched by prefix.
var kzMonths = []struct {
	stem  string
	month time.Month
}{
	{"қаңтар", 1}, {"ақпан", 2}, {"наурыз", 3}, {"сәуір", 4},
	{"мамыр", 5}, {"маусым", 6}, {"шілде", 7}, {"тамыз", 8},
	{"қыркүйек", 9}, {"қазан", 10}, {"қараша", 11}, {"желтоқсан", 12},
}

func monthFromWord(word string) (time.Month, bool) {
	word = strings.TrimSuffix(strings.ToLower(word), ".")
	if m, ok := ruMonths[word]; ok {
		return m, true
	}
	for _, km := range kzMonths {
		if strings.HasPrefix(word, km.stem) {
			return km.month, true
		}
	}
	return 0, false
}

var (
	reDigits   = regexp.MustCompile(`^\d{10}(\d{3})?$`)
	reDotted   = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)
	reDayMonth = regexp.MustCompile(`(\d{1,2})\s+(\p{L}+)\.?(?:\s+(\d{4}))?`)
	reKazakh   = regexp.MustCompile(`(\d{4})\s*(?:жылғы|жыл|ж\.)?\s*(\d{1,2})\s+(\p{L}+)`)
	reRelative = regexp.MustCompile(`(?:^|[^\p{L}])(сегодня|бүгін|вчера|кеше)(?:$|[^\p{L}])`)
	reISO      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)?`)
	reClock    = regexp.MustCompile(`^[^\d\n]{0,12}?(\d{1,2}):(\d{2})`)
)

// Resolve parses one raw date value.
func (p *Parser) Resolve(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if reDigits.MatchString(raw) {
		return fromUnix(raw)
	}
	if hasCyrillic(raw) || reDotted.MatchString(raw) {
		if t, _, ok := p.find(raw, now); ok {
			return t, true
		}
	}
	if t, err := dateparse.ParseIn(raw, p.loc); err == nil {
		return t, true
	}
	if t, _, ok := p.find(raw, now); ok {
		return t, true
	}
	return time.Time{}, false
}

// Scan returns the earliest date-looking substring of text.
func (p *Parser) Scan(text string, now time.Time) (time.Time, bool) {
	t, _, ok := p.find(text, now)
	return t, ok
}

// OrNow resolves raw; unresolved values yield now and false.
func (p *Parser) OrNow(raw string, now time.Time) (time.Time, bool) {
	if t, ok := p.Resolve(raw, now); ok {
		return t, true
	}
	return now, false
}

type match struct {
	at int
	t  time.Time
}

// find tries every grammar and keeps the match that starts first.
func (p *Parser) find(text string, now time.Time) (time.Time, int, bool) {
	lower := strings.ToLower(text)
	var best *match
	keep := func(at int, t time.Time) {
		if best == nil || at < best.at {
			best = &match{at: at, t: t}
		}
	}

	for _, idx := range reISO.FindAllStringIndex(lower, 3) {
		if t, err := dateparse.ParseIn(strings.ToUpper(lower[idx[0]:idx[1]]), p.loc); err == nil {
			keep(idx[0], t)
			break
		}
	}

	for _, m := range reDotted.FindAllStringSubmatchIndex(lower, 3) {
		day, month, year := atoi(lower, m, 1), atoi(lower, m, 2), atoi(lower, m, 3)
		if t, ok := p.build(year, time.Month(month), day, lower[m[1]:]); ok {
			keep(m[0], t)
			break
		}
	}

	for _, m := range reKazakh.FindAllStringSubmatchIndex(lower, 3) {
		month, ok := monthFromWord(lower[m[6]:m[7]])
		if !ok {
			continue
		}
		if t, ok := p.build(atoi(lower, m, 1), month, atoi(lower, m, 2), lower[m[1]:]); ok {
			keep(m[0], t)
			break
		}
	}

	for _, m := range reDayMonth.FindAllStringSubmatchIndex(lower, 5) {
		if m[0] > 0 && isDigit(lower[m[0]-1]) {
			continue
		}
		month, ok := monthFromWord(lower[m[4]:m[5]])
		if !ok {
			continue
		}
		day := atoi(lower, m, 1)
		if m[6] >= 0 {
			if t, ok := p.build(atoi(lower, m, 3), month, day, lower[m[1]:]); ok {
				keep(m[0], t)
				break
			}
			continue
		}
		// No year: assume the current one, or last year if that lands in the future.
		local := now.In(p.loc)
		t, ok := p.build(local.Year(), month, day, lower[m[1]:])
		if !ok {
			continue
		}
		if t.After(now.Add(24 * time.Hour)) {
			t, ok = p.build(local.Year()-1, month, day, lower[m[1]:])
		}
		if ok {
			keep(m[0], t)
			break
		}
	}

	if m := reRelative.FindStringSubmatchIndex(lower); m != nil {
		local := now.In(p.loc)
		switch lower[m[2]:m[3]] {
		case "вчера", "кеше":
			local = local.AddDate(0, 0, -1)
		}
		hour, minute := 0, 0
		if h, mi, ok := clockAfter(lower[m[3]:]); ok {
			hour, minute = h, mi
		}
		keep(m[2], time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, p.loc))
	}

	if best == nil {
		return time.Time{}, -1, false
	}
	return best.t, best.at, true
}

// build validates the calendar date and attaches an optional hh:mm that
// follows it closely in rest.
func (p *Parser) build(year int, month time.Month, day int, rest string) (time.Time, bool) {
	if year < 1990 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	hour, minute := 0, 0
	if h, m, ok := clockAfter(rest); ok {
		hour, minute = h, m
	}
	t := time.Date(year, month, day, hour, minute, 0, 0, p.loc)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func clockAfter(rest string) (int, int, bool) {
	m := reClock.FindStringSubmatch(rest)
	if m == nil {
		return 0, 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	if h > 23 || mi > 59 {
		return 0, 0, false
	}
	return h, mi, true
}

func fromUnix(raw string) (time.Time, bool) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(raw) == 13 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func atoi(s string, m []int, group int) int {
	if m[2*group] < 0 {
		return 0
	}
	n, _ := strconv.Atoi(s[m[2*group]:m[2*group+1]])
	return n
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
