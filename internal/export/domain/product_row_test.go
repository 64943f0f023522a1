package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	catalogdomain "etlfactures/internal/catalog/domain"
)

func sampleAggregate() *catalogdomain.ProductAggregate {
	ean := "3259010001241"
	return &catalogdomain.ProductAggregate{
		ID:              7,
		Key:             catalogdomain.ProductKey{TenantID: "resto-1", FournisseurCode: "TAI", DesignationClean: "Riz Jasmin 20kg"},
		EAN:             &ean,
		CategorieCode:   "EPICERIE",
		NbAchats:        3,
		QuantiteTotale:  decimal.RequireFromString("5.25"),
		MontantTotalHT:  decimal.RequireFromString("122.70"),
		MontantTotalTTC: decimal.RequireFromString("129.45"),
		PrixMin:         decimal.RequireFromString("22"),
		PrixMax:         decimal.RequireFromString("26"),
		PrixMoyen:       decimal.RequireFromString("24.54"),
		PremierAchat:    time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		DernierAchat:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestProductRowCSV(t *testing.T) {
	row := NewProductRow(sampleAggregate()).ToCSVRow()
	if len(row) != len(CSVHeaders()) {
		t.Fatalf("row has %d columns, headers %d", len(row), len(CSVHeaders()))
	}
	want := map[int]string{1: "7", 4: "3259010001241", 7: "5.25", 8: "122.70", 12: "24.5400", 13: "2024-01-10", 14: "2024-03-15"}
	for i, v := range want {
		if row[i] != v {
			t.Errorf("%s = %q, want %q", CSVHeaders()[i], row[i], v)
		}
	}
}

func TestNewExportJob(t *testing.T) {
	if _, err := NewExportJob(FormatFromPath("out/produits.csv"), "resto-1", "out/produits.csv"); err != nil {
		t.Fatal(err)
	}
	if FormatFromPath("out/produits.parquet") != ExportFormatParquet || FormatFromPath("x.CSV") != ExportFormatCSV {
		t.Error("format detection")
	}
	if _, err := NewExportJob("xlsx", "resto-1", "x"); err == nil {
		t.Error("unknown format accepted")
	}
	if _, err := NewExportJob(ExportFormatCSV, "", "x"); err == nil {
		t.Error("empty tenant accepted")
	}
}

// BenchmarkProductRow_ToCSVRow mesure la conversion d'une ligne
func BenchmarkProductRow_ToCSVRow(b *testing.B) {
	row := NewProductRow(sampleAggregate())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = row.ToCSVRow()
	}
}
