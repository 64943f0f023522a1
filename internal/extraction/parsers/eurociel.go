package parsers

import (
	"regexp"

	"etlfactures/internal/extraction/domain"
)

// SupplierEurociel produits frais et surgelés
const SupplierEurociel = "EUROCIEL"

// EurocielLayout décrit les factures EUROCIEL; la TVA est imprimée en taux ("5,5%")
func EurocielLayout() Layout {
	return Layout{
		Supplier:      SupplierEurociel,
		Markers:       []string{"EUROCIEL"},
		FilePrefixes:  []string{"eurociel"},
		InvoiceNumber: regexp.MustCompile(`(?i)^Facture\s+n[°o]\s*:?\s*([A-Z0-9][A-Z0-9/-]*)$`),
		PageMarker:    regexp.MustCompile(`(?i)^Page\s+(\d+)\s*/\s*(\d+)$`),
		Headers: []HeaderRule{
			{HeaderDate, regexp.MustCompile(`(?i)^Date\s*:\s*(\d{4}-\d{2}-\d{2})`)},
			{HeaderTaxID, regexp.MustCompile(`(?i)^TVA\s+intracom\s*:\s*(FR[0-9A-Z ]+)$`)},
			{HeaderClient, regexp.MustCompile(`(?i)^Livr[ée]\s+à\s*:\s*(.+)$`)},
			{HeaderTotalHT, regexp.MustCompile(`(?i)^Montant\s+HT\s*:?\s*(` + amt + `)`)},
		},
		Ignore: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^R[ée]f\s`),
			regexp.MustCompile(`(?i)^(Montant|Total|TVA|Net)\b`),
		},
		Rules: []domain.Rule{
			domain.RegexRule("eurociel_weighted", regexp.MustCompile(
				`^(?P<code>[A-Z0-9-]{3,12})\s+(?P<designation>.+?)\s+(?P<qte>`+qty+`)\s+(?P<unit>(?i:kg|pce|col|bte))\s+(?P<pu>`+amt+`)\s+(?P<montant>`+amt+`)\s+(?P<tva_rate>\d+(?:[.,]\d+)?)\s?%$`), commonSetters),
			domain.RegexRule("eurociel_simple", regexp.MustCompile(
				`^(?P<code>[A-Z0-9-]{3,12})\s+(?P<designation>.+?)\s+(?P<qte>`+qty+`)\s+(?P<pu>`+amt+`)\s+(?P<montant>`+amt+`)$`), commonSetters),
		},
	}
}
