package normalization

import (
	"strings"
	"unicode"
)

var textReplacer = strings.NewReplacer(
	"\u00a0", " ", // espace insécable
	"\u202f", " ", // espace fine insécable
	"\u2007", " ",
	"\u200b", "", // espace de largeur nulle
	"\ufeff", "",
	"«", "",
	"»", "",
	"‹", "",
	"›", "",
)

// CleanText réduit les espaces et caractères de contrôle, supprime les
// guillemets français et espaces insécables. nil -> nil, vide -> nil.
func (n *Normalizer) CleanText(raw *string) *string {
	if raw == nil {
		return nil
	}
	cleaned := cleanString(*raw)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

func cleanString(s string) string {
	s = textReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
