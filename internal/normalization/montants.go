package normalization

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	shareddomain "etlfactures/internal/shared/domain"
)

// DefaultTauxTVA est le taux appliqué quand la ligne n'en porte pas
var DefaultTauxTVA = decimal.NewFromInt(20)

var hundred = decimal.NewFromInt(100)

// taux de TVA français en vigueur
var validTauxTVA = []decimal.Decimal{
	decimal.Zero,
	decimal.RequireFromString("2.1"),
	decimal.RequireFromString("5.5"),
	decimal.NewFromInt(10),
	decimal.NewFromInt(20),
}

// NormalizeTauxTVA lit "20", "20%", "5,5" ou "5.50"; nil si le taux n'existe pas
func (n *Normalizer) NormalizeTauxTVA(raw *string) *decimal.Decimal {
	if raw == nil {
		return nil
	}
	s := strings.TrimSuffix(strings.ReplaceAll(cleanString(*raw), " ", ""), "%")
	if s == "" {
		return nil
	}
	value, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		n.logger.Warn("taux de TVA illisible", zap.String("raw", *raw))
		return nil
	}
	for _, rate := range validTauxTVA {
		if value.Equal(rate) {
			return &rate
		}
	}
	n.logger.Warn("taux de TVA inconnu", zap.String("raw", *raw))
	return nil
}

// Montants regroupe les montants calculés d'une ligne
type Montants struct {
	HT   decimal.Decimal
	TVA  decimal.Decimal
	TTC  decimal.Decimal
	Taux decimal.Decimal
}

// CalculateMontants calcule HT = arrondi(prix*qté), TVA = arrondi(HT*taux/100)
// et TTC = HT+TVA, arrondis au demi supérieur à 2 décimales à chaque étape.
// Un taux nil vaut 20%. nil si le prix ou la quantité manque.
func CalculateMontants(prix *decimal.Decimal, quantite *int, taux *decimal.Decimal) *Montants {
	if quantite == nil {
		return nil
	}
	qty := decimal.NewFromInt(int64(*quantite))
	return CalculateMontantsDecimal(prix, &qty, taux)
}

// CalculateMontantsDecimal est CalculateMontants pour une quantité pesée (kg)
func CalculateMontantsDecimal(prix, quantite, taux *decimal.Decimal) *Montants {
	if prix == nil || quantite == nil {
		return nil
	}
	rate := DefaultTauxTVA
	if taux != nil {
		rate = *taux
	}
	ht := shareddomain.RoundHalfUp(prix.Mul(*quantite), shareddomain.MoneyScale)
	tva := shareddomain.RoundHalfUp(ht.Mul(rate).Div(hundred), shareddomain.MoneyScale)
	ttc := shareddomain.RoundHalfUp(ht.Add(tva), shareddomain.MoneyScale)
	return &Montants{HT: ht, TVA: tva, TTC: ttc, Taux: rate}
}

// CalculateMontants est exposé sur le Normalizer pour homogénéité d'appel
func (n *Normalizer) CalculateMontants(prix *decimal.Decimal, quantite *int, taux *decimal.Decimal) *Montants {
	return CalculateMontants(prix, quantite, taux)
}
