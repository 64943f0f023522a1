package domain

import (
	"strconv"

	catalogdomain "etlfactures/internal/catalog/domain"
)

const dateLayout = "2006-01-02"

// ProductRow est une ligne d'export d'un agrégat produit DWH.
// Les tags décrivent le schéma Parquet.
type ProductRow struct {
	TenantID         string  `parquet:"name=tenant_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProduitID        int64   `parquet:"name=produit_id, type=INT64"`
	FournisseurCode  string  `parquet:"name=fournisseur_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	DesignationClean string  `parquet:"name=designation_clean, type=BYTE_ARRAY, convertedtype=UTF8"`
	EAN              string  `parquet:"name=ean, type=BYTE_ARRAY, convertedtype=UTF8"`
	CategorieCode    string  `parquet:"name=categorie_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	NbAchats         int32   `parquet:"name=nb_achats, type=INT32"`
	QuantiteTotale   float64 `parquet:"name=quantite_totale, type=DOUBLE"`
	MontantTotalHT   float64 `parquet:"name=montant_total_ht, type=DOUBLE"`
	MontantTotalTTC  float64 `parquet:"name=montant_total_ttc, type=DOUBLE"`
	PrixMin          float64 `parquet:"name=prix_min, type=DOUBLE"`
	PrixMax          float64 `parquet:"name=prix_max, type=DOUBLE"`
	PrixMoyen        float64 `parquet:"name=prix_moyen, type=DOUBLE"`
	PremierAchat     string  `parquet:"name=premier_achat, type=BYTE_ARRAY, convertedtype=UTF8"`
	DernierAchat     string  `parquet:"name=dernier_achat, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// NewProductRow aplatit un agrégat pour l'export
func NewProductRow(a *catalogdomain.ProductAggregate) ProductRow {
	row := ProductRow{
		TenantID:         string(a.Key.TenantID),
		ProduitID:        int64(a.ID),
		FournisseurCode:  a.Key.FournisseurCode,
		DesignationClean: a.Key.DesignationClean,
		CategorieCode:    a.CategorieCode,
		NbAchats:         int32(a.NbAchats),
		QuantiteTotale:   a.QuantiteTotale.InexactFloat64(),
		MontantTotalHT:   a.MontantTotalHT.InexactFloat64(),
		MontantTotalTTC:  a.MontantTotalTTC.InexactFloat64(),
		PrixMin:          a.PrixMin.InexactFloat64(),
		PrixMax:          a.PrixMax.InexactFloat64(),
		PrixMoyen:        a.PrixMoyen.InexactFloat64(),
		PremierAchat:     a.PremierAchat.Format(dateLayout),
		DernierAchat:     a.DernierAchat.Format(dateLayout),
	}
	if a.EAN != nil {
		row.EAN = *a.EAN
	}
	return row
}

// ToCSVRow convertit en tableau pour CSV
func (r ProductRow) ToCSVRow() []string {
	return []string{
		r.TenantID,
		strconv.FormatInt(r.ProduitID, 10),
		r.FournisseurCode,
		r.DesignationClean,
		r.EAN,
		r.CategorieCode,
		strconv.Itoa(int(r.NbAchats)),
		strconv.FormatFloat(r.QuantiteTotale, 'f', -1, 64),
		strconv.FormatFloat(r.MontantTotalHT, 'f', 2, 64),
		strconv.FormatFloat(r.MontantTotalTTC, 'f', 2, 64),
		strconv.FormatFloat(r.PrixMin, 'f', 4, 64),
		strconv.FormatFloat(r.PrixMax, 'f', 4, 64),
		strconv.FormatFloat(r.PrixMoyen, 'f', 4, 64),
		r.PremierAchat,
		r.DernierAchat,
	}
}

// CSVHeaders retourne les en-têtes CSV, alignés sur les colonnes Parquet
func CSVHeaders() []string {
	return []string{
		"tenant_id",
		"produit_id",
		"fournisseur_code",
		"designation_clean",
		"ean",
		"categorie_code",
		"nb_achats",
		"quantite_totale",
		"montant_total_ht",
		"montant_total_ttc",
		"prix_min",
		"prix_max",
		"prix_moyen",
		"premier_achat",
		"dernier_achat",
	}
}
