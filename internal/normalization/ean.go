package normalization

import (
	"strings"

	"go.uber.org/zap"
)

// NormalizeEAN ne garde que les chiffres, retire le zéro parasite des codes à
// 14 chiffres et complète les EAN-8 à 13 chiffres. Un code dont la clé ne
// correspond pas est conservé avec un warning. nil si irrécupérable.
func (n *Normalizer) NormalizeEAN(raw *string) *string {
	if raw == nil {
		return nil
	}
	digits := onlyDigits(*raw)
	if len(digits) == 14 && digits[0] == '0' {
		digits = digits[1:]
	}
	switch len(digits) {
	case 13:
	case 8:
		digits = strings.Repeat("0", 5) + digits
	default:
		if digits != "" {
			n.logger.Warn("EAN rejeté: longueur invalide",
				zap.String("raw", *raw), zap.Int("digits", len(digits)))
		}
		return nil
	}
	if !ValidEANChecksum(digits) {
		n.logger.Warn("EAN: clé de contrôle invalide, code conservé", zap.String("ean", digits))
	}
	return &digits
}

// ValidEANChecksum vérifie la clé EAN-13 (pondération 1,3 depuis la gauche, modulo 10)
func ValidEANChecksum(code string) bool {
	if len(code) != 13 {
		return false
	}
	sum := 0
	for i := 0; i < 12; i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	last := code[12]
	if last < '0' || last > '9' {
		return false
	}
	return (10-sum%10)%10 == int(last-'0')
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
