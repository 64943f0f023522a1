package normalization

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// abbreviations développe les abréviations fournisseurs (mot entier, insensible à la casse)
var abbreviations = map[string]string{
	"WH":    "Whiskey",
	"RH":    "Rhum",
	"VDF":   "Vin De France",
	"BTL":   "Bouteille",
	"BTE":   "Boite",
	"PCE":   "Piece",
	"SCE":   "Sauce",
	"FRM":   "Fromage",
	"CHAMP": "Champagne",
	"SURG":  "Surgele",
	"PDT":   "Produit",
	"LGM":   "Legumes",
	"HE":    "Huile Extra",
}

var (
	apostropheReplacer = strings.NewReplacer("’", "'", "‘", "'", "`", "'", "´", "'", "′", "'")

	reVolume  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(cl|ml|l)\b`)
	reWeight  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|gr|g)\b`)
	rePercent = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
	// unités re-minusculées après la mise en casse titre
	reUnitSuffix = regexp.MustCompile(`(\d)(Kg|Cl|Ml|L|G)\b`)
	reUnitWord   = regexp.MustCompile(`\b(Kg|Cl|Ml|Gr)\b`)
	reMultiplier = regexp.MustCompile(`(\d)X(\d)`)
)

var (
	mlPerLiter = decimal.NewFromInt(1000)
	mlPerCl    = decimal.NewFromInt(10)
)

// NormalizeDesignation produit le libellé canonique d'un article:
// nettoyage, abréviations développées, casse titre, unités en minuscules,
// apostrophes normalisées et volumes canoniques ("0,7 L" -> "70cl").
// Déterministe et idempotente; nil ou vide -> nil.
func (n *Normalizer) NormalizeDesignation(raw *string) *string {
	cleaned := n.CleanText(raw)
	if cleaned == nil {
		return nil
	}
	out := designation(*cleaned)
	if out == "" {
		return nil
	}
	return &out
}

func designation(s string) string {
	s = apostropheReplacer.Replace(s)
	s = expandAbbreviations(s)
	s = reVolume.ReplaceAllStringFunc(s, canonicalVolume)
	s = reWeight.ReplaceAllStringFunc(s, canonicalWeight)
	s = rePercent.ReplaceAllStringFunc(s, canonicalPercent)
	s = titleCase(s)
	s = reUnitSuffix.ReplaceAllStringFunc(s, strings.ToLower)
	s = reUnitWord.ReplaceAllStringFunc(s, strings.ToLower)
	s = reMultiplier.ReplaceAllString(s, "${1}x${2}")
	return strings.Join(strings.Fields(s), " ")
}

func expandAbbreviations(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if full, ok := abbreviations[strings.ToUpper(w)]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

// titleCase met en majuscule chaque lettre qui suit un caractère non-lettre.
// Après une apostrophe, la lettre reste minuscule si le mot qui précède
// compte plus d'une lettre: "Daniel's" mais "L'Huile".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	run, elided := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if run > 0 || elided > 1 {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			run++
			elided = 0
			continue
		}
		elided = 0
		if r == '\'' {
			elided = run
		}
		run = 0
		b.WriteRune(r)
	}
	return b.String()
}

// canonicalPercent colle le signe % et passe la décimale au point: "12,5 %" -> "12.5%".
func canonicalPercent(match string) string {
	value := strings.TrimSpace(strings.TrimSuffix(match, "%"))
	return strings.ReplaceAll(value, ",", ".") + "%"
}

func canonicalVolume(match string) string {
	parts := reVolume.FindStringSubmatch(match)
	value, err := decimal.NewFromString(strings.ReplaceAll(parts[1], ",", "."))
	if err != nil {
		return match
	}
	var ml decimal.Decimal
	switch strings.ToLower(parts[2]) {
	case "l":
		ml = value.Mul(mlPerLiter)
	case "cl":
		ml = value.Mul(mlPerCl)
	default:
		ml = value
	}
	if ml.GreaterThanOrEqual(mlPerLiter) {
		return ml.Div(mlPerLiter).String() + "l"
	}
	cl := ml.Div(mlPerCl)
	if cl.IsInteger() {
		return cl.String() + "cl"
	}
	return ml.String() + "ml"
}

func canonicalWeight(match string) string {
	parts := reWeight.FindStringSubmatch(match)
	unit := strings.ToLower(parts[2])
	if unit == "gr" {
		unit = "g"
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(parts[1], ",", "."))
	if err != nil {
		return match
	}
	return value.String() + unit
}
