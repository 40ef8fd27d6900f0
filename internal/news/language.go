package news

import (
	"strings"
	"unicode"
)

// Letters present in Kazakh Cyrillic but not in Russian.
const kazakhLetters = "әғқңөұүһі"

// DetectLanguage guesses ru or kz from the text. When the text is too short
// to decide, the source hint wins, then Russian.
func DetectLanguage(text, hint string) string {
	var cyrillic, kazakh int
	for _, r := range strings.ToLower(text) {
		if !unicode.Is(unicode.Cyrillic, r) {
			continue
		}
		cyrillic++
		if strings.ContainsRune(kazakhLetters, r) {
			kazakh++
		}
	}

	// Одно-два слова вроде "Қазақстан" в русском тексте не делают его казахским.
	if kazakh >= 3 && float64(kazakh)/float64(cyrillic) >= 0.02 {
		return LangKZ
	}
	if cyrillic >= 40 {
		return LangRU
	}

	switch hint = strings.ToLower(strings.TrimSpace(hint)); hint {
	case LangKZ, "kk", "kaz":
		return LangKZ
	case LangRU:
		return LangRU
	}
	return LangRU
}
