package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	catalogdomain "etlfactures/internal/catalog/domain"
	"etlfactures/internal/export/domain"
	"etlfactures/internal/store/memory"
)

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	agg, err := catalogdomain.NewAggregateFromPurchase(catalogdomain.Purchase{
		Key:          catalogdomain.ProductKey{TenantID: "resto-1", FournisseurCode: "TAI", DesignationClean: "Sauce Soja 1l"},
		PrixUnitaire: decimal.RequireFromString("3.50"),
		Quantite:     decimal.NewFromInt(2),
		MontantHT:    decimal.RequireFromString("7.00"),
		MontantTTC:   decimal.RequireFromString("7.39"),
		Date:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.MergeProducts(ctx, "resto-1", "b1", []*catalogdomain.ProductAggregate{agg}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "produits.csv")
	job, err := domain.NewExportJob(domain.FormatFromPath(path), "resto-1", path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := NewExportService(store, zaptest.NewLogger(t)).Export(ctx, job)
	if err != nil || n != 1 {
		t.Fatalf("export = %d, %v", n, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Sauce Soja 1l") || !strings.Contains(string(data), "3.5000") {
		t.Errorf("csv = %s", data)
	}
}
