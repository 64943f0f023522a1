package domain

import (
	"errors"

	"github.com/shopspring/decimal"

	"etlfactures/internal/shared/domain"
)

// InvoiceLine représente une ligne de facture ODS (entity dans l'aggregate Invoice)
type InvoiceLine struct {
	stagingLineID    int64
	sourceFile       string
	lineNumber       int
	ean              *string
	designationClean string
	categorieCode    string
	prixUnitaire     domain.Money
	quantite         domain.Quantity
	tauxTVA          decimal.Decimal
	montantHT        domain.Money
	montantTVA       domain.Money
	montantTTC       domain.Money
	promo            bool
}

// LineAmounts regroupe les montants déjà calculés d'une ligne
type LineAmounts struct {
	PrixUnitaire decimal.Decimal
	TauxTVA      decimal.Decimal
	HT           decimal.Decimal
	TVA          decimal.Decimal
	TTC          decimal.Decimal
}

// NewInvoiceLine crée une ligne de facture avec validation
func NewInvoiceLine(
	stagingLineID int64,
	sourceFile string,
	lineNumber int,
	ean *string,
	designationClean string,
	categorieCode string,
	quantite domain.Quantity,
	amounts LineAmounts,
	promo bool,
) (*InvoiceLine, error) {
	if sourceFile == "" || lineNumber <= 0 {
		return nil, errors.New("invalid line position")
	}
	if designationClean == "" {
		return nil, errors.New("designation cannot be empty")
	}
	if quantite.IsZero() {
		return nil, errors.New("quantity cannot be zero")
	}
	pu, err := domain.NewMoney(amounts.PrixUnitaire, domain.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	ht, err := domain.NewMoney(amounts.HT, domain.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	tva, err := domain.NewMoney(amounts.TVA, domain.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	ttc, err := domain.NewMoney(amounts.TTC, domain.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	return &InvoiceLine{
		stagingLineID:    stagingLineID,
		sourceFile:       sourceFile,
		lineNumber:       lineNumber,
		ean:              ean,
		designationClean: designationClean,
		categorieCode:    categorieCode,
		prixUnitaire:     pu,
		quantite:         quantite,
		tauxTVA:          amounts.TauxTVA,
		montantHT:        ht,
		montantTVA:       tva,
		montantTTC:       ttc,
		promo:            promo,
	}, nil
}

// StagingLineID retourne l'identifiant de la ligne de staging d'origine
func (l *InvoiceLine) StagingLineID() int64 { return l.stagingLineID }

// SourceFile retourne le fichier source
func (l *InvoiceLine) SourceFile() string { return l.sourceFile }

// LineNumber retourne la position dans le fichier source
func (l *InvoiceLine) LineNumber() int { return l.lineNumber }

// EAN retourne l'EAN normalisé (peut être nil)
func (l *InvoiceLine) EAN() *string { return l.ean }

// DesignationClean retourne le libellé canonique
func (l *InvoiceLine) DesignationClean() string { return l.designationClean }

// CategorieCode retourne le code catégorie
func (l *InvoiceLine) CategorieCode() string { return l.categorieCode }

// PrixUnitaire retourne le prix unitaire HT
func (l *InvoiceLine) PrixUnitaire() domain.Money { return l.prixUnitaire }

// Quantite retourne la quantité
func (l *InvoiceLine) Quantite() domain.Quantity { return l.quantite }

// TauxTVA retourne le taux appliqué
func (l *InvoiceLine) TauxTVA() decimal.Decimal { return l.tauxTVA }

// MontantHT retourne le montant HT
func (l *InvoiceLine) MontantHT() domain.Money { return l.montantHT }

// MontantTVA retourne le montant de TVA
func (l *InvoiceLine) MontantTVA() domain.Money { return l.montantTVA }

// MontantTTC retourne le montant TTC
func (l *InvoiceLine) MontantTTC() domain.Money { return l.montantTTC }

// Promo indique une ligne en promotion
func (l *InvoiceLine) Promo() bool { return l.promo }
