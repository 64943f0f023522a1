package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	stagingdomain "etlfactures/internal/staging/domain"
)

// FileSummary détaille les compteurs d'un fichier source
type FileSummary struct {
	Lignes     int    `json:"lignes"`
	NonParsees int    `json:"non_parsees"`
	NormError  int    `json:"norm_error"`
	ValidError int    `json:"valid_error"`
	Warnings   int    `json:"warnings"`
	Error      string `json:"error,omitempty"`
}

// Summary est le résumé JSON d'un run
type Summary struct {
	BatchID             string                  `json:"batch_id"`
	TenantID            string                  `json:"tenant_id"`
	Status              string                  `json:"status"`
	FichiersTraites     int                     `json:"fichiers_traites"`
	FichiersEnErreur    int                     `json:"fichiers_en_erreur"`
	NbFactures          int                     `json:"nb_factures"`
	LignesExtraites     int                     `json:"lignes_extraites"`
	LignesNonParsees    int                     `json:"lignes_non_parsees"`
	LignesNormalisees   int                     `json:"lignes_normalisees"`
	LignesValidees      int                     `json:"lignes_validees"`
	LignesErreur        int                     `json:"lignes_erreur"`
	ErreursParCategorie map[ErrorCategory]int   `json:"erreurs_par_categorie"`
	Fichiers            map[string]*FileSummary `json:"fichiers"`
	MontantTotalHT      decimal.Decimal         `json:"montant_total_ht"`
	MontantTotalTVA     decimal.Decimal         `json:"montant_total_tva"`
	MontantTotalTTC     decimal.Decimal         `json:"montant_total_ttc"`
	ProduitsDWH         int                     `json:"produits_dwh"`
	LiensCrees          int                     `json:"liens_crees"`
	Steps               []stagingdomain.StepLog `json:"steps"`
	Error               string                  `json:"error,omitempty"`
}

// NewSummary crée un résumé vide; chaque catégorie d'erreur est présente à 0
func NewSummary(batch, tenant string) *Summary {
	s := &Summary{
		BatchID:             batch,
		TenantID:            tenant,
		Status:              string(stagingdomain.BatchRunning),
		ErreursParCategorie: map[ErrorCategory]int{},
		Fichiers:            map[string]*FileSummary{},
		MontantTotalHT:      decimal.Zero,
		MontantTotalTVA:     decimal.Zero,
		MontantTotalTTC:     decimal.Zero,
		Steps:               []stagingdomain.StepLog{},
	}
	for _, c := range Categories() {
		s.ErreursParCategorie[c] = 0
	}
	return s
}

// File retourne (en le créant) le détail d'un fichier
func (s *Summary) File(name string) *FileSummary {
	fs, ok := s.Fichiers[name]
	if !ok {
		fs = &FileSummary{}
		s.Fichiers[name] = fs
	}
	return fs
}

// Count ajoute n erreurs à une catégorie
func (s *Summary) Count(c ErrorCategory, n int) {
	s.ErreursParCategorie[c] += n
}

// WriteJSON écrit le résumé indenté
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteJSONFile écrit le résumé dans path
func (s *Summary) WriteJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := s.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
