package parsers

import (
	"regexp"

	"etlfactures/internal/extraction/domain"
)

// SupplierMetro cash & carry
const SupplierMetro = "METRO"

var metroVATCodes = map[string]string{"A": "0", "B": "5.5", "C": "10", "D": "20"}

// MetroLayout décrit les factures METRO. Les sections "*** CATEGORIE ***"
// donnent la catégorie source des lignes qui suivent; un "P" final signale une promotion.
func MetroLayout() Layout {
	setters := withVATCodes(metroVATCodes)
	const tail = `\s+(?P<tva_code>[ABCD])(?:\s+(?P<promo>P))?$`
	return Layout{
		Supplier:      SupplierMetro,
		Markers:       []string{"METRO CASH", "METRO FRANCE"},
		FilePrefixes:  []string{"metro"},
		InvoiceNumber: regexp.MustCompile(`(?i)^N[°o]\s*FACTURE\s*:\s*([A-Z0-9][A-Z0-9/-]*)$`),
		PageMarker:    regexp.MustCompile(`(?i)^Page\s+(\d+)\s*/\s*(\d+)$`),
		Headers: []HeaderRule{
			{HeaderDate, regexp.MustCompile(`(?i)^Date\s+facture\s*:\s*(\d{2}-\d{2}-\d{4})`)},
			{HeaderTaxID, regexp.MustCompile(`(?i)^N[°o]\s*TVA\s*:\s*(FR[0-9A-Z ]+)$`)},
			{HeaderClient, regexp.MustCompile(`(?i)^Client\s*:\s*(.+)$`)},
			{HeaderTotalHT, regexp.MustCompile(`(?i)^Total\s+HT\s*:?\s*(` + amt + `)`)},
		},
		Section: regexp.MustCompile(`^\*{3}\s*(.+?)\s*\*{3}$`),
		Ignore: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^EAN\s`),
			regexp.MustCompile(`(?i)^(Total|TVA|Net|Sous-total|Consigne)\b`),
		},
		Rules: []domain.Rule{
			domain.RegexRule("metro_alcohol", regexp.MustCompile(
				`^(?P<ean>\d{8,14})\s+(?P<code>\d{4,10})\s+(?P<designation>.+?)\s+(?P<abv>\d+(?:[.,]\d+)?)\s?%\s+(?P<volume>\d+(?:[.,]\d+)?\s?(?i:cl|ml|l))\s+(?P<colis>\d+)\s+(?P<pu>`+amt+`)\s+(?P<qte>`+qty+`)\s+(?P<montant>`+amt+`)`+tail), setters),
			domain.RegexRule("metro_standard", regexp.MustCompile(
				`^(?P<ean>\d{8,14})\s+(?P<code>\d{4,10})\s+(?P<designation>.+?)\s+(?P<colis>\d+)\s+(?P<pu>`+amt+`)\s+(?P<qte>`+qty+`)\s+(?P<montant>`+amt+`)`+tail), setters),
			domain.RegexRule("metro_simple", regexp.MustCompile(
				`^(?P<designation>\D.*?)\s+(?P<qte>`+qty+`)\s+(?P<montant>`+amt+`)$`), setters),
		},
	}
}
