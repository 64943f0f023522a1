package normalization

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	shareddomain "etlfactures/internal/shared/domain"
)

var reTrailingZero = regexp.MustCompile(`[.,]0+$`)

// NormalizeQuantite retourne une quantité entière arrondie dans ]0, 10000]
func (n *Normalizer) NormalizeQuantite(raw *string) *int {
	if raw == nil {
		return nil
	}
	s := strings.ReplaceAll(cleanString(*raw), " ", "")
	if s == "" {
		return nil
	}
	s = reTrailingZero.ReplaceAllString(s, "")
	s = strings.Replace(s, ",", ".", 1)

	value, err := decimal.NewFromString(s)
	if err != nil {
		n.logger.Warn("quantité illisible", zap.String("raw", *raw))
		return nil
	}
	qty := int(value.Round(0).IntPart())
	if _, err := shareddomain.NewQuantity(qty); err != nil {
		n.logger.Warn("quantité hors bornes", zap.String("raw", *raw), zap.Int("value", qty))
		return nil
	}
	return &qty
}
