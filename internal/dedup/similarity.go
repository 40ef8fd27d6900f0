package dedup

import "strings"

// Ratio returns 2*LCS/(len(a)+len(b)) over lowercased, whitespace-collapsed
// runes. Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra := []rune(strings.Join(strings.Fields(strings.ToLower(a)), " "))
	rb := []rune(strings.Join(strings.Fields(strings.ToLower(b)), " "))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(lcs(ra, rb)) / float64(total)
}

// lcs is the classic two-row dynamic programme.
func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
