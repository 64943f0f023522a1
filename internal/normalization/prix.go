package normalization

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// MaxPrix borne haute (incluse) d'un prix accepté
	MaxPrix = decimal.NewFromInt(100000)

	// "1.234,56": le point suivi de trois chiffres puis d'une virgule est un séparateur de milliers
	reThousandsDot = regexp.MustCompile(`\.\d{3},`)
	rePriceChars   = regexp.MustCompile(`[^0-9,.\-+]`)
)

// NormalizePrix convertit un montant texte (format français ou anglais) en
// décimal. Symboles monétaires et espaces sont ignorés. Hors [0, 100000] -> nil.
func (n *Normalizer) NormalizePrix(raw *string) *decimal.Decimal {
	if raw == nil {
		return nil
	}
	s := rePriceChars.ReplaceAllString(cleanString(*raw), "")
	if s == "" {
		return nil
	}

	switch {
	case reThousandsDot.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// "1,234.56": virgule de milliers
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		// "1.234.567": uniquement des séparateurs de milliers
		s = strings.ReplaceAll(s, ".", "")
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		n.logger.Warn("prix illisible", zap.String("raw", *raw))
		return nil
	}
	if value.IsNegative() || value.GreaterThan(MaxPrix) {
		n.logger.Warn("prix hors bornes", zap.String("raw", *raw), zap.String("value", value.String()))
		return nil
	}
	return &value
}
