package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"etlfactures/internal/normalization"
)

var (
	// 6x25cl, 12 x 1,5 l
	reColisage = regexp.MustCompile(`\b(\d+)\s*x\s*(\d+(?:[.,]\d+)?)\s*(kg|gr|g|cl|ml|l)\b`)
	// 20kg, 1.5 l, 250 g
	reQuantityUnit = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\s*(kg|gr|g|cl|ml|l)\b`)
	// 40%, 37,5 % vol, 12°
	reDegree = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:%|°)(?:\s*vol\b)?`)
	reSpaces = regexp.MustCompile(`\s+`)
)

var packagingWords = map[string]bool{
	"pce": true, "pcs": true, "pc": true, "bte": true, "btl": true, "col": true, "colis": true,
	"sac": true, "carton": true, "ctn": true, "lot": true, "pack": true, "bouteille": true,
	"boite": true, "sachet": true, "barquette": true, "bqt": true, "seau": true, "fut": true,
	"surg": true, "surgele": true, "surgeles": true,
}

// StripPackaging replie le texte puis retire colisages, quantités unitaires,
// degrés d'alcool et abréviations de conditionnement
func StripPackaging(s string) string {
	s = normalization.FoldText(s)
	s = reColisage.ReplaceAllString(s, " ")
	s = reQuantityUnit.ReplaceAllString(s, " ")
	s = reDegree.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if !packagingWords[strings.Trim(w, ".,;:-")] {
			kept = append(kept, w)
		}
	}
	return strings.TrimSpace(reSpaces.ReplaceAllString(strings.Join(kept, " "), " "))
}

// Packaging est la quantité conditionnée d'un produit, convertie en kg ou en litres
type Packaging struct {
	Quantity decimal.Decimal
	// "kg" ou "l"
	Unit string
}

// ParsePackaging lit le colisage (N × QTÉ) ou, à défaut, la première quantité
// unitaire d'une désignation
func ParsePackaging(designation string) (Packaging, bool) {
	s := normalization.FoldText(designation)
	if m := reColisage.FindStringSubmatch(s); m != nil {
		count, err1 := decimal.NewFromString(m[1])
		qty, err2 := parseNumber(m[2])
		if err1 == nil && err2 == nil {
			return convert(count.Mul(qty), m[3])
		}
	}
	if m := reQuantityUnit.FindStringSubmatch(s); m != nil {
		if qty, err := parseNumber(m[1]); err == nil {
			return convert(qty, m[2])
		}
	}
	return Packaging{}, false
}

var thousand = decimal.NewFromInt(1000)

func convert(qty decimal.Decimal, unit string) (Packaging, bool) {
	if !qty.IsPositive() {
		return Packaging{}, false
	}
	switch unit {
	case "kg":
		return Packaging{Quantity: qty, Unit: "kg"}, true
	case "g", "gr":
		return Packaging{Quantity: qty.Div(thousand), Unit: "kg"}, true
	case "l":
		return Packaging{Quantity: qty, Unit: "l"}, true
	case "cl":
		return Packaging{Quantity: qty.Div(decimal.NewFromInt(100)), Unit: "l"}, true
	case "ml":
		return Packaging{Quantity: qty.Div(thousand), Unit: "l"}, true
	}
	return Packaging{}, false
}

func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(s, ",", ".", 1))
}
