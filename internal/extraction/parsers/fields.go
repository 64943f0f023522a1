package parsers

import (
	"strings"

	"etlfactures/internal/extraction/domain"
	stagingdomain "etlfactures/internal/staging/domain"
)

// fragments d'expressions partagés par les grammaires
const (
	// montant: "12,50", "12.50", "1.234,56"
	amt = `(?:\d{1,3}(?:\.\d{3})+|\d+)[.,]\d{2,4}`
	// quantité ou colisage: "3", "2,5"
	qty = `\d+(?:[.,]\d+)?`
)

func str(v string) *string {
	v = strings.TrimSpace(v)
	return &v
}

// commonSetters associe les groupes nommés des grammaires aux champs bruts
var commonSetters = map[string]domain.FieldSetter{
	"ean":         func(f *stagingdomain.RawFields, v string) { f.EAN = str(v) },
	"code":        func(f *stagingdomain.RawFields, v string) { f.CodeArticle = str(v) },
	"designation": func(f *stagingdomain.RawFields, v string) { f.Designation = str(v) },
	"colis":       func(f *stagingdomain.RawFields, v string) { f.Colisage = str(v) },
	"qte":         func(f *stagingdomain.RawFields, v string) { f.Quantite = str(v) },
	"pu":          func(f *stagingdomain.RawFields, v string) { f.PrixUnitaire = str(v) },
	"montant":     func(f *stagingdomain.RawFields, v string) { f.MontantLigne = str(v) },
	"abv":         func(f *stagingdomain.RawFields, v string) { f.DegreAlcool = str(v) },
	"volume":      func(f *stagingdomain.RawFields, v string) { f.Volume = str(v) },
	"unit":        func(f *stagingdomain.RawFields, v string) { f.Unite = str(strings.ToUpper(v)) },
	"tva_rate":    func(f *stagingdomain.RawFields, v string) { f.TauxTVA = str(v) },
	"promo":       func(f *stagingdomain.RawFields, v string) { f.Promo = true },
}

// withVATCodes ajoute un setter qui traduit le code TVA du fournisseur en taux
func withVATCodes(codes map[string]string) map[string]domain.FieldSetter {
	setters := make(map[string]domain.FieldSetter, len(commonSetters)+1)
	for k, v := range commonSetters {
		setters[k] = v
	}
	setters["tva_code"] = func(f *stagingdomain.RawFields, v string) {
		code := strings.ToUpper(strings.TrimSpace(v))
		f.CodeTVA = &code
		if rate, ok := codes[code]; ok {
			f.TauxTVA = str(rate)
		}
	}
	return setters
}
