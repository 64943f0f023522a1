package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	shareddomain "etlfactures/internal/shared/domain"
)

// LineKey est la clé naturelle d'une ligne de staging
type LineKey struct {
	BatchID    shareddomain.BatchID
	SourceFile string
	LineNumber int
}

// RawFields contient les valeurs capturées telles quelles par le parseur.
// Aucun champ numérique n'est interprété à ce stade.
type RawFields struct {
	NumeroFacture     *string `json:"numero_facture,omitempty"`
	DateFacture       *string `json:"date_facture,omitempty"`
	Fournisseur       *string `json:"fournisseur,omitempty"`
	FournisseurTVA    *string `json:"fournisseur_tva,omitempty"`
	Client            *string `json:"client,omitempty"`
	MontantHTDocument *string `json:"montant_ht_document,omitempty"`

	EAN          *string `json:"ean,omitempty"`
	CodeArticle  *string `json:"code_article,omitempty"`
	Designation  *string `json:"designation,omitempty"`
	Categorie    *string `json:"categorie,omitempty"`
	Volume       *string `json:"volume,omitempty"`
	DegreAlcool  *string `json:"degre_alcool,omitempty"`
	Colisage     *string `json:"colisage,omitempty"`
	Unite        *string `json:"unite,omitempty"`
	PrixUnitaire *string `json:"prix_unitaire,omitempty"`
	Quantite     *string `json:"quantite,omitempty"`
	MontantLigne *string `json:"montant_ligne,omitempty"`
	CodeTVA      *string `json:"code_tva,omitempty"`
	TauxTVA      *string `json:"taux_tva,omitempty"`
	Promo        bool    `json:"promo"`
}

// NormalizedFields contient les valeurs canoniques calculées par les étapes
// de normalisation et de validation
type NormalizedFields struct {
	DesignationClean  *string
	EAN               *string
	DateFacture       *time.Time
	PrixUnitaire      *decimal.Decimal
	Quantite          *int
	Poids             *decimal.Decimal // kg, lignes au kilo uniquement
	TauxTVA           *decimal.Decimal
	MontantLigne      *decimal.Decimal
	MontantHTDocument *decimal.Decimal
	MontantHT         *decimal.Decimal
	MontantTVA        *decimal.Decimal
	MontantTTC        *decimal.Decimal
	CategorieCode     *string
	FournisseurCode   *string
	FournisseurNom    *string
}

// StagingLine est une ligne de facture brute en zone d'atterrissage
type StagingLine struct {
	ID         int64
	TenantID   shareddomain.TenantID
	BatchID    shareddomain.BatchID
	SourceFile string
	LineNumber int
	Supplier   string
	Grammar    string
	Status     Status
	Raw        RawFields
	Norm       NormalizedFields
	RawLine    string
	Issues     []Issue
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewStagingLine crée une ligne RAW avec validation de la clé
func NewStagingLine(tenant shareddomain.TenantID, batch shareddomain.BatchID, sourceFile string, lineNumber int) (*StagingLine, error) {
	if tenant == "" {
		return nil, errors.New("tenant id cannot be empty")
	}
	if batch == "" {
		return nil, errors.New("batch id cannot be empty")
	}
	if sourceFile == "" {
		return nil, errors.New("source file cannot be empty")
	}
	if lineNumber <= 0 {
		return nil, errors.New("line number must be positive")
	}
	return &StagingLine{
		TenantID:   tenant,
		BatchID:    batch,
		SourceFile: sourceFile,
		LineNumber: lineNumber,
		Status:     StatusRaw,
	}, nil
}

// Key retourne la clé naturelle de la ligne
func (l *StagingLine) Key() LineKey {
	return LineKey{BatchID: l.BatchID, SourceFile: l.SourceFile, LineNumber: l.LineNumber}
}

// TransitionTo fait avancer la ligne dans la machine d'état
func (l *StagingLine) TransitionTo(next Status) error {
	if err := CheckTransition(l.Status, next); err != nil {
		return err
	}
	l.Status = next
	return nil
}

// AddIssue ajoute une anomalie en conservant l'ordre
func (l *StagingLine) AddIssue(issue Issue) {
	l.Issues = append(l.Issues, issue)
}

// Clone retourne une copie indépendante (les pointeurs de valeurs sont partagés,
// ils ne sont jamais modifiés en place)
func (l *StagingLine) Clone() *StagingLine {
	out := *l
	out.Issues = append([]Issue(nil), l.Issues...)
	return &out
}
