package domain

import (
	stagingdomain "etlfactures/internal/staging/domain"
)

// Document est le texte d'un fichier source, page par page
type Document struct {
	SourceFile string
	Pages      []string
}

// Header regroupe les champs d'en-tête bruts d'une facture
type Header struct {
	NumeroFacture     *string `json:"numero_facture"`
	DateFacture       *string `json:"date_facture"`
	Fournisseur       *string `json:"fournisseur"`
	FournisseurTVA    *string `json:"fournisseur_tva,omitempty"`
	Client            *string `json:"client,omitempty"`
	MontantHTDocument *string `json:"montant_ht_document,omitempty"`
}

// ParsedLine est une ligne d'article reconnue par une grammaire.
// LineNumber est la position physique dans le fichier, pas dans la facture.
type ParsedLine struct {
	LineNumber int                     `json:"line_number"`
	Grammar    string                  `json:"grammar"`
	Fields     stagingdomain.RawFields `json:"fields"`
	RawLine    string                  `json:"raw_line"`
	Degraded   bool                    `json:"degraded,omitempty"`
}

// ParsedInvoice est une facture logique (éventuellement multi-pages)
type ParsedInvoice struct {
	Supplier   string       `json:"supplier"`
	SourceFile string       `json:"source_file"`
	Header     Header       `json:"header"`
	Lines      []ParsedLine `json:"lignes"`
}

// ParseResult est la sortie d'un parseur pour un document
type ParseResult struct {
	Supplier   string
	SourceFile string
	Invoices   []*ParsedInvoice
	// Candidates compte les lignes ressemblant à un article
	Candidates int
	// Unparsed compte les candidats qu'aucune grammaire n'a reconnus
	Unparsed int
}

// LineCount retourne le nombre de lignes produites, toutes factures confondues
func (r *ParseResult) LineCount() int {
	n := 0
	for _, inv := range r.Invoices {
		n += len(inv.Lines)
	}
	return n
}
