package domain

// Ratio retourne la similarité Indel 2·LCS/(|a|+|b|) dans [0, 1], calculée
// sur les runes. Deux chaînes vides valent 0: rien à comparer.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

// Similarity compare deux libellés après repli et retrait du conditionnement
func Similarity(a, b string) float64 {
	return Ratio(StripPackaging(a), StripPackaging(b))
}

// lcsLength calcule la plus longue sous-séquence commune sur deux lignes
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
