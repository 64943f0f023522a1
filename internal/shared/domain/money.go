package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency est la devise de toutes les factures fournisseurs traitées
const DefaultCurrency = "EUR"

// MoneyScale est le nombre de décimales des montants comptables
const MoneyScale = 2

// Money représente une valeur monétaire en virgule fixe avec garanties d'invariants
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney crée une nouvelle instance de Money avec validation
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, errors.New("amount cannot be negative")
	}
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// EUR crée un montant en euros sans contrôle de signe (avoirs, écarts)
func EUR(amount decimal.Decimal) Money {
	return Money{amount: amount, currency: DefaultCurrency}
}

// ZeroEUR retourne un montant nul en euros
func ZeroEUR() Money {
	return Money{amount: decimal.Zero, currency: DefaultCurrency}
}

// Amount retourne le montant
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency retourne la devise
func (m Money) Currency() string {
	return m.currency
}

// Add additionne deux Money (même devise requise)
func (m Money) Add(other Money) (Money, error) {
	if m.currency == "" {
		m.currency = other.currency
	}
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{
		amount:   m.amount.Add(other.amount),
		currency: m.currency,
	}, nil
}

// Multiply multiplie le montant par un facteur, sans arrondi
func (m Money) Multiply(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, errors.New("multiplication factor cannot be negative")
	}
	return Money{
		amount:   m.amount.Mul(factor),
		currency: m.currency,
	}, nil
}

// Round arrondit au centime, demi vers le haut
func (m Money) Round() Money {
	return Money{amount: RoundHalfUp(m.amount, MoneyScale), currency: m.currency}
}

// IsZero vérifie si le montant est zéro
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// String formate le montant avec deux décimales
func (m Money) String() string {
	return m.amount.StringFixed(MoneyScale) + " " + m.currency
}

// RoundHalfUp arrondit à places décimales, la moitié s'éloignant de zéro
// (équivalent au demi-haut pour les montants positifs)
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// WithinTolerance vérifie que |a - b| <= tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
