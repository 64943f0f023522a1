package domain

import (
	"github.com/shopspring/decimal"

	catalogdomain "etlfactures/internal/catalog/domain"
)

// ConversionRatio exprime une unité de produit dans l'unité de stockage de
// l'ingrédient: kg vers kg, litres vers litres. Les ingrédients à la pièce,
// les conditionnements illisibles et les unités incompatibles valent 1.
func ConversionRatio(designation string, unit catalogdomain.StorageUnit) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if unit == catalogdomain.UnitPiece {
		return one
	}
	p, ok := ParsePackaging(designation)
	if !ok || p.Unit != string(unit) {
		return one
	}
	return p.Quantity
}
