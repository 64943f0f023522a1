package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"etlfactures/internal/shared/domain"
)

// InvoiceKey est la clé d'unicité d'une facture ODS
type InvoiceKey struct {
	TenantID        domain.TenantID
	BatchID         domain.BatchID
	NumeroFacture   string
	FournisseurCode string
}

// Invoice représente une facture ODS (aggregate root). Les totaux sont
// toujours la somme des lignes, jamais le total imprimé sur le document.
type Invoice struct {
	key               InvoiceKey
	fournisseurNom    string
	fournisseurTVA    string
	client            string
	sourceFile        string
	dateFacture       time.Time
	montantHT         domain.Money
	montantTVA        domain.Money
	montantTTC        domain.Money
	montantHTDocument *decimal.Decimal
	ecartDocument     bool
	lines             []*InvoiceLine
}

// NewInvoice crée une facture vide avec validation
func NewInvoice(key InvoiceKey, fournisseurNom, fournisseurTVA, client, sourceFile string, dateFacture time.Time) (*Invoice, error) {
	if key.TenantID == "" {
		return nil, errors.New("tenant id cannot be empty")
	}
	if key.BatchID == "" {
		return nil, errors.New("batch id cannot be empty")
	}
	if key.NumeroFacture == "" {
		return nil, errors.New("invoice number cannot be empty")
	}
	if dateFacture.IsZero() {
		return nil, errors.New("invoice date cannot be zero")
	}
	return &Invoice{
		key:            key,
		fournisseurNom: fournisseurNom,
		fournisseurTVA: fournisseurTVA,
		client:         client,
		sourceFile:     sourceFile,
		dateFacture:    dateFacture,
		montantHT:      domain.ZeroEUR(),
		montantTVA:     domain.ZeroEUR(),
		montantTTC:     domain.ZeroEUR(),
		lines:          make([]*InvoiceLine, 0),
	}, nil
}

// Key retourne la clé de la facture
func (i *Invoice) Key() InvoiceKey { return i.key }

// FournisseurNom retourne le nom canonique du fournisseur
func (i *Invoice) FournisseurNom() string { return i.fournisseurNom }

// FournisseurTVA retourne le numéro de TVA du fournisseur
func (i *Invoice) FournisseurTVA() string { return i.fournisseurTVA }

// Client retourne le client facturé
func (i *Invoice) Client() string { return i.client }

// SourceFile retourne le fichier source
func (i *Invoice) SourceFile() string { return i.sourceFile }

// DateFacture retourne la date de facture
func (i *Invoice) DateFacture() time.Time { return i.dateFacture }

// MontantHT retourne le total HT (somme des lignes)
func (i *Invoice) MontantHT() domain.Money { return i.montantHT }

// MontantTVA retourne le total TVA (somme des lignes)
func (i *Invoice) MontantTVA() domain.Money { return i.montantTVA }

// MontantTTC retourne le total TTC (somme des lignes)
func (i *Invoice) MontantTTC() domain.Money { return i.montantTTC }

// MontantHTDocument retourne le total HT imprimé (contrôle uniquement)
func (i *Invoice) MontantHTDocument() *decimal.Decimal { return i.montantHTDocument }

// EcartDocument indique que le total imprimé diverge des lignes
func (i *Invoice) EcartDocument() bool { return i.ecartDocument }

// Lines retourne les lignes de la facture
func (i *Invoice) Lines() []*InvoiceLine {
	return append([]*InvoiceLine{}, i.lines...)
}

// NbArticles retourne la somme des quantités facturées
func (i *Invoice) NbArticles() domain.Quantity {
	var total domain.Quantity
	for _, line := range i.lines {
		total = total.Add(line.quantite)
	}
	return total
}

// AddLine ajoute une ligne (invariant: recalcule les totaux)
func (i *Invoice) AddLine(line *InvoiceLine) error {
	if line == nil {
		return errors.New("line cannot be nil")
	}
	for _, existing := range i.lines {
		if existing.sourceFile == line.sourceFile && existing.lineNumber == line.lineNumber {
			return errors.New("line already exists in invoice")
		}
	}
	i.lines = append(i.lines, line)
	return i.recalculateTotals()
}

// CheckDocumentTotal conserve le total imprimé et signale un écart au-delà de
// la tolérance. Retourne true si un écart est détecté.
func (i *Invoice) CheckDocumentTotal(documentHT *decimal.Decimal, tolerance decimal.Decimal) bool {
	i.montantHTDocument = documentHT
	if documentHT == nil {
		i.ecartDocument = false
		return false
	}
	i.ecartDocument = !domain.WithinTolerance(i.montantHT.Amount(), *documentHT, tolerance)
	return i.ecartDocument
}

// RestoreDocumentCheck réapplique un contrôle déjà enregistré (relecture du store)
func (i *Invoice) RestoreDocumentCheck(documentHT *decimal.Decimal, ecart bool) {
	i.montantHTDocument = documentHT
	i.ecartDocument = ecart
}

// recalculateTotals recalcule les totaux de la facture
func (i *Invoice) recalculateTotals() error {
	ht, tva, ttc := domain.ZeroEUR(), domain.ZeroEUR(), domain.ZeroEUR()
	var err error
	for _, line := range i.lines {
		if ht, err = ht.Add(line.montantHT); err != nil {
			return err
		}
		if tva, err = tva.Add(line.montantTVA); err != nil {
			return err
		}
		if ttc, err = ttc.Add(line.montantTTC); err != nil {
			return err
		}
	}
	i.montantHT, i.montantTVA, i.montantTTC = ht, tva, ttc
	return nil
}
