package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"etlfactures/internal/shared/domain"
)

// PrixMoyenScale est la précision du prix moyen pondéré
const PrixMoyenScale = 4

// ProductID représente l'identifiant unique d'un produit agrégé
type ProductID int64

// ProductKey est la clé naturelle d'un produit DWH
type ProductKey struct {
	TenantID         domain.TenantID
	FournisseurCode  string
	DesignationClean string
}

// Purchase est une ligne validée vue du DWH
type Purchase struct {
	Key          ProductKey
	EAN          *string
	Categorie    string
	PrixUnitaire decimal.Decimal
	Quantite     decimal.Decimal // unités ou kg
	MontantHT    decimal.Decimal
	MontantTTC   decimal.Decimal
	Date         time.Time
}

// ProductAggregate représente l'historique d'achat d'un produit (DWH).
// Les extrema et dates ne régressent jamais; min/max/sommes sont commutatifs,
// l'ordre de chargement des batches n'influe donc pas sur le résultat.
type ProductAggregate struct {
	ID              ProductID
	Key             ProductKey
	EAN             *string
	CategorieCode   string
	NbAchats        int
	QuantiteTotale  decimal.Decimal
	MontantTotalHT  decimal.Decimal
	MontantTotalTTC decimal.Decimal
	PrixMin         decimal.Decimal
	PrixMax         decimal.Decimal
	PrixMoyen       decimal.Decimal
	PremierAchat    time.Time
	DernierAchat    time.Time
	UpdatedAt       time.Time
}

// NewAggregateFromPurchase crée l'agrégat d'un seul achat
func NewAggregateFromPurchase(p Purchase) (*ProductAggregate, error) {
	if p.Key.DesignationClean == "" {
		return nil, errors.New("designation cannot be empty")
	}
	if p.Key.TenantID == "" {
		return nil, errors.New("tenant id cannot be empty")
	}
	if _, err := domain.NewQuantityDecimal(p.Quantite); err != nil {
		return nil, err
	}
	if p.Date.IsZero() {
		return nil, errors.New("purchase date cannot be zero")
	}
	a := &ProductAggregate{
		Key:             p.Key,
		EAN:             p.EAN,
		CategorieCode:   p.Categorie,
		NbAchats:        1,
		QuantiteTotale:  p.Quantite,
		MontantTotalHT:  p.MontantHT,
		MontantTotalTTC: p.MontantTTC,
		PrixMin:         p.PrixUnitaire,
		PrixMax:         p.PrixUnitaire,
		PremierAchat:    p.Date,
		DernierAchat:    p.Date,
	}
	a.recomputeAverage()
	return a, nil
}

// Merge intègre other dans a. Les attributs descriptifs déjà renseignés sont conservés.
func (a *ProductAggregate) Merge(other *ProductAggregate) error {
	if other == nil {
		return errors.New("aggregate cannot be nil")
	}
	if a.Key != other.Key {
		return errors.New("cannot merge aggregates of different products")
	}
	a.NbAchats += other.NbAchats
	a.QuantiteTotale = a.QuantiteTotale.Add(other.QuantiteTotale)
	a.MontantTotalHT = a.MontantTotalHT.Add(other.MontantTotalHT)
	a.MontantTotalTTC = a.MontantTotalTTC.Add(other.MontantTotalTTC)
	a.PrixMin = decimal.Min(a.PrixMin, other.PrixMin)
	a.PrixMax = decimal.Max(a.PrixMax, other.PrixMax)
	if other.PremierAchat.Before(a.PremierAchat) {
		a.PremierAchat = other.PremierAchat
	}
	if other.DernierAchat.After(a.DernierAchat) {
		a.DernierAchat = other.DernierAchat
	}
	if a.EAN == nil {
		a.EAN = other.EAN
	}
	if a.CategorieCode == "" || a.CategorieCode == unknownCategory {
		if other.CategorieCode != "" {
			a.CategorieCode = other.CategorieCode
		}
	}
	a.recomputeAverage()
	return nil
}

// AddPurchase est un raccourci pour fusionner un achat unique
func (a *ProductAggregate) AddPurchase(p Purchase) error {
	single, err := NewAggregateFromPurchase(p)
	if err != nil {
		return err
	}
	return a.Merge(single)
}

// prix moyen pondéré par les quantités (poids réels pour les lignes au kilo),
// donc compris entre PrixMin et PrixMax aux arrondis près
func (a *ProductAggregate) recomputeAverage() {
	if !a.QuantiteTotale.IsPositive() {
		a.PrixMoyen = decimal.Zero
		return
	}
	a.PrixMoyen = domain.RoundHalfUp(a.MontantTotalHT.Div(a.QuantiteTotale), PrixMoyenScale)
}

const unknownCategory = "UNKNOWN"
