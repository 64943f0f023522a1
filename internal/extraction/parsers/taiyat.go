package parsers

import (
	"regexp"

	"etlfactures/internal/extraction/domain"
)

// SupplierTaiyat grossiste asiatique
const SupplierTaiyat = "TAIYAT"

var taiyatVATCodes = map[string]string{"1": "5.5", "2": "20", "3": "10"}

// TaiyatLayout décrit les factures TAIYAT:
//
//	FACTURE N° <numéro> / Date : JJ/MM/AAAA / TVA : FR.. / Client : <nom>
//	CODE EAN13 DESIGNATION COLIS QTE PU MONTANT CODE_TVA
func TaiyatLayout() Layout {
	setters := withVATCodes(taiyatVATCodes)
	return Layout{
		Supplier:      SupplierTaiyat,
		Markers:       []string{"TAIYAT"},
		FilePrefixes:  []string{"taiyat"},
		InvoiceNumber: regexp.MustCompile(`(?i)^FACTURE\s+N[°o]\.?\s*:?\s*([A-Z0-9][A-Z0-9/-]*)$`),
		PageMarker:    regexp.MustCompile(`(?i)^Page\s+(\d+)\s*/\s*(\d+)$`),
		Headers: []HeaderRule{
			{HeaderDate, regexp.MustCompile(`(?i)^Date\s*:\s*(\d{2}/\d{2}/\d{4})`)},
			{HeaderTaxID, regexp.MustCompile(`(?i)^TVA\s*:\s*(FR[0-9A-Z ]+)$`)},
			{HeaderClient, regexp.MustCompile(`(?i)^Client\s*:\s*(.+)$`)},
			{HeaderTotalHT, regexp.MustCompile(`(?i)^TOTAL\s+HT\s*:?\s*(` + amt + `)`)},
		},
		Ignore: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(CODE|DESIGNATION)\s`),
			regexp.MustCompile(`(?i)^(TOTAL|NET A PAYER|TVA|REMISE|ACOMPTE)\b`),
		},
		Rules: []domain.Rule{
			domain.RegexRule("taiyat_ean", regexp.MustCompile(
				`^(?P<code>[A-Z0-9]{3,10})\s+(?P<ean>\d{13})\s+(?P<designation>.+?)\s+(?P<colis>`+qty+`)\s+(?P<qte>`+qty+`)\s+(?P<pu>`+amt+`)\s+(?P<montant>`+amt+`)\s+(?P<tva_code>[123])$`), setters),
			domain.RegexRule("taiyat_standard", regexp.MustCompile(
				`^(?P<code>[A-Z0-9]{3,10})\s+(?P<designation>.+?)\s+(?P<colis>`+qty+`)\s+(?P<qte>`+qty+`)\s+(?P<pu>`+amt+`)\s+(?P<montant>`+amt+`)\s+(?P<tva_code>[123])$`), setters),
			domain.RegexRule("taiyat_simple", regexp.MustCompile(
				`^(?P<designation>\D.*?)\s+(?P<qte>`+qty+`)\s+(?P<montant>`+amt+`)$`), setters),
		},
	}
}
