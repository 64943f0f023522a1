package infrastructure

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"etlfactures/internal/extraction/domain"
)

// exportInvoice est le schéma stable de l'export JSON des factures parsées
type exportInvoice struct {
	SourceFile        string       `json:"source_file"`
	Supplier          string       `json:"supplier"`
	NumeroFacture     *string      `json:"numero_facture"`
	DateFacture       *string      `json:"date_facture"`
	Fournisseur       *string      `json:"fournisseur"`
	FournisseurTVA    *string      `json:"fournisseur_tva"`
	Client            *string      `json:"client"`
	MontantHTDocument *string      `json:"montant_ht_document"`
	Lignes            []exportLine `json:"lignes"`
}

type exportLine struct {
	LineNumber   int     `json:"line_number"`
	Grammar      string  `json:"grammar"`
	EAN          *string `json:"ean"`
	CodeArticle  *string `json:"code_article"`
	Designation  *string `json:"designation"`
	Categorie    *string `json:"categorie"`
	Volume       *string `json:"volume"`
	DegreAlcool  *string `json:"degre_alcool"`
	Colisage     *string `json:"colisage"`
	Unite        *string `json:"unite"`
	PrixUnitaire *string `json:"prix_unitaire"`
	Quantite     *string `json:"quantite"`
	MontantLigne *string `json:"montant_ligne"`
	CodeTVA      *string `json:"code_tva"`
	TauxTVA      *string `json:"taux_tva"`
	Promo        bool    `json:"promo"`
	Degraded     bool    `json:"degraded"`
	RawLine      string  `json:"raw_line"`
}

// WriteInvoicesJSON écrit les factures parsées au format d'export
func WriteInvoicesJSON(w io.Writer, invoices []*domain.ParsedInvoice) error {
	out := make([]exportInvoice, 0, len(invoices))
	for _, inv := range invoices {
		e := exportInvoice{
			SourceFile:        inv.SourceFile,
			Supplier:          inv.Supplier,
			NumeroFacture:     inv.Header.NumeroFacture,
			DateFacture:       inv.Header.DateFacture,
			Fournisseur:       inv.Header.Fournisseur,
			FournisseurTVA:    inv.Header.FournisseurTVA,
			Client:            inv.Header.Client,
			MontantHTDocument: inv.Header.MontantHTDocument,
			Lignes:            make([]exportLine, 0, len(inv.Lines)),
		}
		for _, l := range inv.Lines {
			f := l.Fields
			e.Lignes = append(e.Lignes, exportLine{
				LineNumber:   l.LineNumber,
				Grammar:      l.Grammar,
				EAN:          f.EAN,
				CodeArticle:  f.CodeArticle,
				Designation:  f.Designation,
				Categorie:    f.Categorie,
				Volume:       f.Volume,
				DegreAlcool:  f.DegreAlcool,
				Colisage:     f.Colisage,
				Unite:        f.Unite,
				PrixUnitaire: f.PrixUnitaire,
				Quantite:     f.Quantite,
				MontantLigne: f.MontantLigne,
				CodeTVA:      f.CodeTVA,
				TauxTVA:      f.TauxTVA,
				Promo:        f.Promo,
				Degraded:     l.Degraded,
				RawLine:      l.RawLine,
			})
		}
		out = append(out, e)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteInvoicesJSONFile écrit l'export dans path
func WriteInvoicesJSONFile(path string, invoices []*domain.ParsedInvoice) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteInvoicesJSON(f, invoices); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
