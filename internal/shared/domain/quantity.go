package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MaxQuantity est la quantité maximale acceptée sur une ligne de facture
	MaxQuantity = 10000
	// QuantityScale est la précision d'une quantité pesée (g pour un poids en kg)
	QuantityScale = 3
)

// ErrInvalidQuantity signale une quantité hors de ]0, MaxQuantity]
var ErrInvalidQuantity = errors.New("invalid quantity")

var maxQuantity = decimal.NewFromInt(MaxQuantity)

// Quantity est une quantité facturée strictement positive: un nombre d'unités
// ou un poids pour les lignes au kilo. La valeur zéro n'est jamais produite
// par les constructeurs.
type Quantity struct {
	value decimal.Decimal
}

// NewQuantity crée une quantité entière (unités, colis)
func NewQuantity(units int) (Quantity, error) {
	return NewQuantityDecimal(decimal.NewFromInt(int64(units)))
}

// NewQuantityDecimal crée une quantité pesée, arrondie à QuantityScale décimales
func NewQuantityDecimal(value decimal.Decimal) (Quantity, error) {
	value = RoundHalfUp(value, QuantityScale)
	if !value.IsPositive() || value.GreaterThan(maxQuantity) {
		return Quantity{}, fmt.Errorf("%w: %s not in ]0, %d]", ErrInvalidQuantity, value, MaxQuantity)
	}
	return Quantity{value: value}, nil
}

// MustNewQuantity panique si units est invalide (fixtures, constantes)
func MustNewQuantity(units int) Quantity {
	q, err := NewQuantity(units)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Decimal() decimal.Decimal { return q.value }

// IsWhole est vrai pour un nombre d'unités entier
func (q Quantity) IsWhole() bool { return q.value.Equal(q.value.Truncate(0)) }

// Add ne borne pas le résultat: un cumul de lignes peut dépasser MaxQuantity
func (q Quantity) Add(other Quantity) Quantity {
	return Quantity{value: q.value.Add(other.value)}
}

// IsZero est vrai pour la valeur zéro du type (quantité non renseignée)
func (q Quantity) IsZero() bool { return q.value.IsZero() }

func (q Quantity) String() string { return q.value.String() }
