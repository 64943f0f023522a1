// Package domain contient les règles pures de rapprochement ingrédient/produit:
// extraction de termes, nettoyage du conditionnement, similarité et ratio.
package domain

import (
	"strings"
	"unicode"

	"etlfactures/internal/normalization"
)

// MinTermLength est la longueur minimale d'un terme de recherche
const MinTermLength = 3

var stopWords = map[string]bool{
	"les": true, "des": true, "une": true, "aux": true, "pour": true, "avec": true,
	"sans": true, "sur": true, "par": true, "dans": true, "son": true, "ses": true,
	"and": true, "extra": true, "qualite": true, "fin": true,
}

// ExtractTerms replie les accents et la casse, découpe sur tout ce qui n'est
// pas une lettre et écarte mots courts et mots vides. L'ordre est conservé,
// sans doublon.
func ExtractTerms(name string) []string {
	words := strings.FieldsFunc(normalization.FoldText(name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := map[string]bool{}
	var out []string
	for _, w := range words {
		if len([]rune(w)) < MinTermLength || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// SearchTerms retourne les termes de la première passe: les alias s'ils
// existent, sinon les termes extraits du nom. Avec loose, alias et termes
// extraits sont réunis.
func SearchTerms(name string, aliases []string, loose bool) []string {
	var alias []string
	seen := map[string]bool{}
	for _, a := range aliases {
		a = normalization.FoldText(a)
		if len([]rune(a)) < MinTermLength || seen[a] {
			continue
		}
		seen[a] = true
		alias = append(alias, a)
	}
	if len(alias) > 0 && !loose {
		return alias
	}
	out := alias
	for _, term := range ExtractTerms(name) {
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}
