package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	invoicedomain "etlfactures/internal/invoices/domain"
	shareddomain "etlfactures/internal/shared/domain"
	"etlfactures/internal/store/memory"
)

const tenant = shareddomain.TenantID("tenant-a")

type purchase struct {
	designation string
	prix        string
	qty         string // unités ou kg
}

func invoice(t *testing.T, batch shareddomain.BatchID, numero string, date time.Time, purchases ...purchase) *invoicedomain.Invoice {
	t.Helper()
	return supplierInvoice(t, "TAI", batch, numero, date, purchases...)
}

func supplierInvoice(t *testing.T, supplier string, batch shareddomain.BatchID, numero string, date time.Time, purchases ...purchase) *invoicedomain.Invoice {
	t.Helper()
	source := strings.ToLower(supplier) + ".pdf"
	inv, err := invoicedomain.NewInvoice(invoicedomain.InvoiceKey{
		TenantID: tenant, BatchID: batch, NumeroFacture: numero, FournisseurCode: supplier,
	}, supplier, "", "", source, date)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range purchases {
		pu := decimal.RequireFromString(p.prix)
		qty, err := shareddomain.NewQuantityDecimal(decimal.RequireFromString(p.qty))
		if err != nil {
			t.Fatal(err)
		}
		ht := shareddomain.RoundHalfUp(pu.Mul(qty.Decimal()), shareddomain.MoneyScale)
		line, err := invoicedomain.NewInvoiceLine(int64(i+1), source, i+1, nil, p.designation, "UNKNOWN",
			qty,
			invoicedomain.LineAmounts{PrixUnitaire: pu, TauxTVA: decimal.Zero, HT: ht, TVA: decimal.Zero, TTC: ht}, false)
		if err != nil {
			t.Fatal(err)
		}
		if err := inv.AddLine(line); err != nil {
			t.Fatal(err)
		}
	}
	return inv
}

func TestFoldInvoices_IsOrderIndependent(t *testing.T) {
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := invoice(t, "b1", "FA-1", march, purchase{"Riz", "24.90", "3"}, purchase{"Soja", "3.50", "2"})
	b := invoice(t, "b1", "FA-2", march.AddDate(0, 0, 7), purchase{"Riz", "22.00", "1"})

	forward, n, err := FoldInvoices([]*invoicedomain.Invoice{a, b})
	if err != nil || n != 3 {
		t.Fatalf("fold = %d, %v", n, err)
	}
	backward, _, _ := FoldInvoices([]*invoicedomain.Invoice{b, a})
	if len(forward) != 2 || len(backward) != 2 {
		t.Fatalf("aggregates = %d/%d", len(forward), len(backward))
	}
	for i := range forward {
		f, r := forward[i], backward[i]
		if f.Key != r.Key || f.NbAchats != r.NbAchats || !f.PrixMoyen.Equal(r.PrixMoyen) ||
			!f.PremierAchat.Equal(r.PremierAchat) || !f.DernierAchat.Equal(r.DernierAchat) {
			t.Errorf("aggregate %d differs: %+v vs %+v", i, f, r)
		}
	}
	riz := forward[0]
	if riz.NbAchats != 2 || !riz.QuantiteTotale.Equal(decimal.NewFromInt(4)) || !riz.PrixMin.Equal(decimal.RequireFromString("22")) {
		t.Errorf("riz = %+v", riz)
	}
}

func TestFoldInvoices_ScopesProductsPerSupplier(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	taiyat := supplierInvoice(t, "TAIYAT", "b1", "F1", date, purchase{"Riz Jasmin", "10.00", "1"})
	metro := supplierInvoice(t, "METRO", "b1", "F1", date, purchase{"Riz Jasmin", "30.00", "1"})

	aggregates, n, err := FoldInvoices([]*invoicedomain.Invoice{taiyat, metro})
	if err != nil || n != 2 {
		t.Fatalf("fold = %d, %v", n, err)
	}
	if len(aggregates) != 2 {
		t.Fatalf("aggregates = %d, want one per supplier", len(aggregates))
	}
	for _, agg := range aggregates {
		if agg.NbAchats != 1 || !agg.PrixMin.Equal(agg.PrixMax) {
			t.Errorf("%s mixed purchases: nb=%d min=%s max=%s", agg.Key.FournisseurCode, agg.NbAchats, agg.PrixMin, agg.PrixMax)
		}
	}
	if aggregates[0].Key.FournisseurCode != "METRO" || aggregates[1].Key.FournisseurCode != "TAIYAT" {
		t.Errorf("keys = %+v / %+v", aggregates[0].Key, aggregates[1].Key)
	}
}

func TestFoldInvoices_WeightedLines(t *testing.T) {
	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	inv := supplierInvoice(t, "EUR", "b1", "EC-1", date,
		purchase{"Saumon Filet", "10.00", "0.4"},
		purchase{"Saumon Filet", "18.40", "2.5"},
	)
	aggregates, _, err := FoldInvoices([]*invoicedomain.Invoice{inv})
	if err != nil {
		t.Fatal(err)
	}
	saumon := aggregates[0]
	// HT 4,00 + 46,00 pour 2,9 kg
	if !saumon.QuantiteTotale.Equal(decimal.RequireFromString("2.9")) || !saumon.PrixMoyen.Equal(decimal.RequireFromString("17.2414")) {
		t.Errorf("quantite = %s prix_moyen = %s", saumon.QuantiteTotale, saumon.PrixMoyen)
	}
	if saumon.PrixMoyen.LessThan(saumon.PrixMin) || saumon.PrixMoyen.GreaterThan(saumon.PrixMax) {
		t.Errorf("prix_moyen %s outside [%s, %s]", saumon.PrixMoyen, saumon.PrixMin, saumon.PrixMax)
	}
}

func TestHistorizer_GuardsAgainstReplay(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := store.SaveInvoices(ctx, []*invoicedomain.Invoice{invoice(t, "b1", "FA-1", date, purchase{"Riz", "24.90", "3"})}); err != nil {
		t.Fatal(err)
	}
	h := NewHistorizer(store, store, nil)

	stats, err := h.Historize(ctx, tenant, "b1", false)
	if err != nil || stats.Products != 1 || stats.Lines != 1 {
		t.Fatalf("first load = %+v, %v", stats, err)
	}
	if _, err := h.Historize(ctx, tenant, "b1", false); !errors.Is(err, ErrBatchAlreadyHistorized) {
		t.Fatalf("replay: err = %v", err)
	}
	products, _ := store.ListProducts(ctx, tenant)
	if len(products) != 1 || products[0].NbAchats != 1 {
		t.Fatalf("products after refused replay = %+v", products)
	}

	if _, err := h.Historize(ctx, tenant, "b1", true); err != nil {
		t.Fatal(err)
	}
	products, _ = store.ListProducts(ctx, tenant)
	if products[0].NbAchats != 2 {
		t.Errorf("forced replay nb_achats = %d, want 2", products[0].NbAchats)
	}
}

func TestHistorizer_ForwardAndBackfillConverge(t *testing.T) {
	ctx := context.Background()
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	load := func(order ...shareddomain.BatchID) *memory.Store {
		store := memory.New()
		for _, b := range order {
			var inv *invoicedomain.Invoice
			if b == "early" {
				inv = invoice(t, b, "FA-1", jan, purchase{"Riz", "22.00", "1"})
			} else {
				inv = invoice(t, b, "FA-2", mar, purchase{"Riz", "26.00", "2"})
			}
			if _, err := store.SaveInvoices(ctx, []*invoicedomain.Invoice{inv}); err != nil {
				t.Fatal(err)
			}
			if _, err := NewHistorizer(store, store, nil).Historize(ctx, tenant, b, false); err != nil {
				t.Fatal(err)
			}
		}
		return store
	}

	for _, store := range []*memory.Store{load("early", "late"), load("late", "early")} {
		products, _ := store.ListProducts(ctx, tenant)
		p := products[0]
		if p.NbAchats != 2 || !p.PremierAchat.Equal(jan) || !p.DernierAchat.Equal(mar) {
			t.Errorf("aggregate = %+v", p)
		}
		// (22 + 52) / 3
		if !p.PrixMoyen.Equal(decimal.RequireFromString("24.6667")) {
			t.Errorf("prix moyen = %s", p.PrixMoyen)
		}
	}
}
