package infrastructure

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"etlfactures/internal/export/domain"
)

func rows() []domain.ProductRow {
	return []domain.ProductRow{
		{TenantID: "resto-1", ProduitID: 1, FournisseurCode: "TAI", DesignationClean: "Sauce Soja 1l", NbAchats: 2, QuantiteTotale: 4, MontantTotalHT: 14, PrixMoyen: 3.5, PremierAchat: "2024-03-15", DernierAchat: "2024-03-15"},
		{TenantID: "resto-1", ProduitID: 2, FournisseurCode: "MET", DesignationClean: "Biere Blonde 6x25cl", EAN: "3080216052922", NbAchats: 1, QuantiteTotale: 6, MontantTotalHT: 29.4, PrixMoyen: 4.9, PremierAchat: "2024-02-01", DernierAchat: "2024-02-01"},
	}
}

func TestWriteProductsParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "produits.parquet")
	if err := WriteProductsParquet(path, rows()); err != nil {
		t.Fatal(err)
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(domain.ProductRow), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer pr.ReadStop()

	if n := pr.GetNumRows(); n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	got := make([]domain.ProductRow, 2)
	if err := pr.Read(&got); err != nil {
		t.Fatal(err)
	}
	if got[1].DesignationClean != "Biere Blonde 6x25cl" || got[1].EAN != "3080216052922" || got[1].PrixMoyen != 4.9 {
		t.Errorf("row = %+v", got[1])
	}
}

func TestWriteProductsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteProductsCSV(&buf, rows(), 1); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0][3] != "designation_clean" || records[2][3] != "Biere Blonde 6x25cl" {
		t.Errorf("records = %v", records)
	}
}
