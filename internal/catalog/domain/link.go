package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LinkSource indique l'origine d'un lien
type LinkSource string

const (
	LinkAuto   LinkSource = "auto"
	LinkManual LinkSource = "manual"
)

// LinkKey est la clé d'unicité d'un lien
type LinkKey struct {
	IngredientID IngredientID
	ProduitID    ProductID
	Fournisseur  string
}

// ReconciliationLink associe un ingrédient interne à un produit fournisseur
type ReconciliationLink struct {
	Key       LinkKey
	Ratio     decimal.Decimal
	IsPrimary bool
	Score     float64
	Source    LinkSource
	CreatedAt time.Time
}

// NewReconciliationLink crée un lien automatique avec validation
func NewReconciliationLink(key LinkKey, ratio decimal.Decimal, score float64, primary bool, createdAt time.Time) (*ReconciliationLink, error) {
	if key.IngredientID <= 0 || key.ProduitID <= 0 {
		return nil, errors.New("invalid ingredient or product id")
	}
	if key.Fournisseur == "" {
		return nil, errors.New("supplier cannot be empty")
	}
	if !ratio.IsPositive() {
		return nil, errors.New("ratio must be positive")
	}
	if score < 0 || score > 1 {
		return nil, errors.New("score must be within [0, 1]")
	}
	return &ReconciliationLink{
		Key:       key,
		Ratio:     ratio,
		IsPrimary: primary,
		Score:     score,
		Source:    LinkAuto,
		CreatedAt: createdAt,
	}, nil
}
