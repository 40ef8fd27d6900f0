package news

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// keyword is a lowercase stem. Stems of three runes or fewer only match
// whole words, so "снг" does not fire inside "снговое".
type keyword struct {
	stem  string
	whole *regexp.Regexp
}

func keywords(stems ...string) []keyword {
	out := make([]keyword, 0, len(stems))
	for _, s := range stems {
		k := keyword{stem: strings.ToLower(strings.TrimSpace(s))}
		if k.stem == "" {
			continue
		}
		if !strings.Contains(k.stem, " ") && utf8.RuneCountInString(k.stem) <= 3 {
			k.whole = regexp.MustCompile(`(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(k.stem) + `($|[^\p{L}\p{N}])`)
		}
		out = append(out, k)
	}
	return out
}

// in expects lowercase text.
func (k keyword) in(text string) bool {
	if k.whole != nil {
		return k.whole.MatchString(text)
	}
	return strings.Contains(text, k.stem)
}

var (
	economyKeywords = keywords("экономика", "финансы", "банк", "инфляция", "рынок", "валюта", "инвестиции", "ввп", "нбк")
	regionKeywords  = keywords("казахстан", "россия", "узбекистан", "снг", "алматы", "астана", "москва", "ташкент", "еаэс")
)

// Score ranks an article: up to 3 points for volume plus one point per
// economy or region keyword found in the title or text.
func Score(title, text string) float64 {
	base := float64(utf8.RuneCountInString(text)) / 500
	if base > 3 {
		base = 3
	}
	haystack := strings.ToLower(title + "\n" + text)
	hits := 0
	for _, set := range [][]keyword{economyKeywords, regionKeywords} {
		for _, k := range set {
			if k.in(haystack) {
				hits++
			}
		}
	}
	return base + float64(hits)
}

// TopByScore sorts by score (desc), newest first on ties, and keeps k.
func TopByScore(articles []Article, k int) []Article {
	sort.SliceStable(articles, func(i, j int) bool {
		if articles[i].Score != articles[j].Score {
			return articles[i].Score > articles[j].Score
		}
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if k >= 0 && len(articles) > k {
		articles = articles[:k]
	}
	return articles
}
