// Package storetest vérifie qu'une implémentation de ports.RelationalStore
// respecte le contrat commun (unicité, machine d'état, fusion DWH, liens).
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	catalogdomain "etlfactures/internal/catalog/domain"
	invoicedomain "etlfactures/internal/invoices/domain"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
	stagingdomain "etlfactures/internal/staging/domain"
)

const (
	Tenant = shareddomain.TenantID("tenant-a")
	Batch  = shareddomain.BatchID("batch-1")
)

// Factory crée un store vide pour un sous-test
type Factory func(t *testing.T) ports.RelationalStore

// Run exécute la suite de contrat
func Run(t *testing.T, newStore Factory) {
	t.Run("Batches", func(t *testing.T) { testBatches(t, newStore(t)) })
	t.Run("InsertLinesIsIdempotent", func(t *testing.T) { testInsertLines(t, newStore(t)) })
	t.Run("UpdateLinesEnforcesStateMachine", func(t *testing.T) { testUpdateLines(t, newStore(t)) })
	t.Run("Mappings", func(t *testing.T) { testMappings(t, newStore(t)) })
	t.Run("Invoices", func(t *testing.T) { testInvoices(t, newStore(t)) })
	t.Run("InvoiceLinePositionsAreUnique", func(t *testing.T) { testInvoiceLinePositions(t, newStore(t)) })
	t.Run("MergeProducts", func(t *testing.T) { testMergeProducts(t, newStore(t)) })
	t.Run("Links", func(t *testing.T) { testLinks(t, newStore(t)) })
}

func str(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewLine crée une ligne RAW de test
func NewLine(t *testing.T, batch shareddomain.BatchID, file string, n int) *stagingdomain.StagingLine {
	t.Helper()
	l, err := stagingdomain.NewStagingLine(Tenant, batch, file, n)
	if err != nil {
		t.Fatal(err)
	}
	l.Supplier = "TAIYAT"
	l.Grammar = "taiyat_simple"
	l.RawLine = "NOUILLES UDON 4 10,00"
	l.Raw = stagingdomain.RawFields{Designation: str("NOUILLES UDON"), Quantite: str("4"), MontantLigne: str("10,00")}
	return l
}

func testBatches(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	b, err := stagingdomain.NewBatch(Batch, Tenant, "/data/in", day(2024, 6, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.CreateBatch(ctx, b); err != nil {
		t.Fatal(err)
	}
	step := stagingdomain.StepLog{
		Step: "extraction", Status: stagingdomain.StepSuccess, Counts: map[string]int{"fichiers": 2},
		StartedAt: day(2024, 6, 1), FinishedAt: day(2024, 6, 1).Add(time.Second),
	}
	if err := store.AppendStep(ctx, Tenant, Batch, step); err != nil {
		t.Fatal(err)
	}
	if err := b.Finish(stagingdomain.BatchSuccess, day(2024, 6, 1).Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateBatch(ctx, b); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetBatch(ctx, Tenant, Batch)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != stagingdomain.BatchSuccess || got.FinishedAt == nil || got.SourceDirectory != "/data/in" {
		t.Errorf("batch = %+v", got)
	}
	if len(got.Steps) != 1 || got.Steps[0].Counts["fichiers"] != 2 {
		t.Errorf("steps = %+v", got.Steps)
	}

	if _, err := store.GetBatch(ctx, Tenant, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("missing batch: err = %v", err)
	}
	// isolement par tenant
	if _, err := store.GetBatch(ctx, "tenant-b", Batch); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("other tenant: err = %v", err)
	}
}

func testInsertLines(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	first := []*stagingdomain.StagingLine{NewLine(t, Batch, "a.pdf", 2), NewLine(t, Batch, "a.pdf", 1), NewLine(t, Batch, "b.pdf", 1)}
	n, err := store.InsertLines(ctx, first)
	if err != nil || n != 3 {
		t.Fatalf("insert = %d, %v", n, err)
	}
	if first[0].ID == 0 {
		t.Error("inserted line must receive an id")
	}

	n, err = store.InsertLines(ctx, []*stagingdomain.StagingLine{NewLine(t, Batch, "a.pdf", 1), NewLine(t, Batch, "a.pdf", 3)})
	if err != nil || n != 1 {
		t.Fatalf("re-insert = %d, %v, want 1", n, err)
	}
	// un autre batch peut réingérer les mêmes fichiers
	n, err = store.InsertLines(ctx, []*stagingdomain.StagingLine{NewLine(t, "batch-2", "a.pdf", 1)})
	if err != nil || n != 1 {
		t.Fatalf("other batch = %d, %v", n, err)
	}

	lines, err := store.ListLines(ctx, Tenant, Batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4", len(lines))
	}
	order := []struct {
		file string
		n    int
	}{{"a.pdf", 1}, {"a.pdf", 2}, {"a.pdf", 3}, {"b.pdf", 1}}
	for i, want := range order {
		if lines[i].SourceFile != want.file || lines[i].LineNumber != want.n {
			t.Errorf("lines[%d] = %s:%d, want %s:%d", i, lines[i].SourceFile, lines[i].LineNumber, want.file, want.n)
		}
	}
	if got := lines[0].Raw.Designation; got == nil || *got != "NOUILLES UDON" {
		t.Errorf("raw designation = %v", got)
	}
	if lines[0].Status != stagingdomain.StatusRaw || lines[0].RawLine == "" {
		t.Errorf("line = %+v", lines[0])
	}
}

func testUpdateLines(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	if _, err := store.InsertLines(ctx, []*stagingdomain.StagingLine{NewLine(t, Batch, "a.pdf", 1), NewLine(t, Batch, "a.pdf", 2)}); err != nil {
		t.Fatal(err)
	}
	lines, _ := store.ListLines(ctx, Tenant, Batch, stagingdomain.StatusRaw)

	ok := lines[0]
	ok.Norm.DesignationClean = str("Nouilles Udon")
	ok.Norm.PrixUnitaire = decPtr("2.5")
	qty := 4
	ok.Norm.Quantite = &qty
	ok.Norm.Poids = decPtr("3.75")
	date := day(2024, 3, 15)
	ok.Norm.DateFacture = &date
	ok.AddIssue(stagingdomain.NewWarning("prix_unitaire", stagingdomain.CodeRequired, "", "dérivé"))
	if err := ok.TransitionTo(stagingdomain.StatusNormalized); err != nil {
		t.Fatal(err)
	}
	bad := lines[1]
	if err := bad.TransitionTo(stagingdomain.StatusNormError); err != nil {
		t.Fatal(err)
	}
	err := store.UpdateLines(ctx, []ports.LineUpdate{
		{Line: ok, From: stagingdomain.StatusRaw},
		{Line: bad, From: stagingdomain.StatusRaw},
	})
	if err != nil {
		t.Fatal(err)
	}

	normalized, _ := store.ListLines(ctx, Tenant, Batch, stagingdomain.StatusNormalized)
	if len(normalized) != 1 {
		t.Fatalf("normalized = %d", len(normalized))
	}
	got := normalized[0]
	if got.Norm.PrixUnitaire == nil || !got.Norm.PrixUnitaire.Equal(dec("2.5")) {
		t.Errorf("prix = %v", got.Norm.PrixUnitaire)
	}
	if got.Norm.DateFacture == nil || !got.Norm.DateFacture.Equal(date) {
		t.Errorf("date = %v", got.Norm.DateFacture)
	}
	if got.Norm.Poids == nil || !got.Norm.Poids.Equal(dec("3.75")) {
		t.Errorf("poids = %v", got.Norm.Poids)
	}
	if got.Norm.Quantite == nil || *got.Norm.Quantite != 4 || len(got.Issues) != 1 {
		t.Errorf("norm = %+v issues = %+v", got.Norm, got.Issues)
	}

	// VALIDATED est terminal
	if err := got.TransitionTo(stagingdomain.StatusValidated); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateLines(ctx, []ports.LineUpdate{{Line: got, From: stagingdomain.StatusNormalized}}); err != nil {
		t.Fatal(err)
	}
	back := got.Clone()
	back.Status = stagingdomain.StatusRaw
	err = store.UpdateLines(ctx, []ports.LineUpdate{{Line: back, From: stagingdomain.StatusValidated}})
	if !errors.Is(err, stagingdomain.ErrIllegalTransition) {
		t.Errorf("VALIDATED -> RAW: err = %v", err)
	}

	// état lu périmé
	stale := got.Clone()
	stale.Status = stagingdomain.StatusValidError
	err = store.UpdateLines(ctx, []ports.LineUpdate{{Line: stale, From: stagingdomain.StatusNormalized}})
	if !errors.Is(err, ports.ErrStaleLine) {
		t.Errorf("stale update: err = %v", err)
	}

	transitions, err := store.Transitions(ctx, Tenant, Batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(transitions) != 3 {
		t.Fatalf("transitions = %+v", transitions)
	}
	for _, tr := range transitions {
		if !stagingdomain.CanTransition(tr.From, tr.To) {
			t.Errorf("audited illegal transition %s -> %s", tr.From, tr.To)
		}
	}
}

func testMappings(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	cat, _ := catalogdomain.NewCategoryMapping("METRO", "Spiritueux", "ALC", "Alcools")
	if err := store.SaveCategoryMapping(ctx, cat); err != nil {
		t.Fatal(err)
	}
	replaced, _ := catalogdomain.NewCategoryMapping("metro", "SPIRITUEUX", "ALCOOL", "Alcools")
	if err := store.SaveCategoryMapping(ctx, replaced); err != nil {
		t.Fatal(err)
	}
	sup, _ := catalogdomain.NewSupplierMapping("METRO CASH & CARRY", "MET", "METRO France")
	if err := store.SaveSupplierMapping(ctx, sup); err != nil {
		t.Fatal(err)
	}

	table, err := store.LoadMappings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if code, ok := table.LookupCategory("Metro", "spiritueux"); !ok || code != "ALCOOL" {
		t.Errorf("category = %q, %v", code, ok)
	}
	if code, name, ok := table.LookupSupplier("metro cash & carry"); !ok || code != "MET" || name != "METRO France" {
		t.Errorf("supplier = %q %q %v", code, name, ok)
	}
}

// newInvoice crée une facture de deux lignes aux positions firstLine et
// firstLine+1 de taiyat.pdf; la seconde est pesée (2,5 kg)
func newInvoice(t *testing.T, numero string, firstLine int) *invoicedomain.Invoice {
	t.Helper()
	inv, err := invoicedomain.NewInvoice(invoicedomain.InvoiceKey{
		TenantID: Tenant, BatchID: Batch, NumeroFacture: numero, FournisseurCode: "TAI",
	}, "TAIYAT", "FR12345678901", "RESTAURANT LE LOTUS", "taiyat.pdf", day(2024, 3, 15))
	if err != nil {
		t.Fatal(err)
	}
	for i, amount := range [][2]string{{"7.00", "1"}, {"74.70", "2.5"}} {
		qty, err := shareddomain.NewQuantityDecimal(dec(amount[1]))
		if err != nil {
			t.Fatal(err)
		}
		ht := dec(amount[0])
		pu := ht.Div(qty.Decimal())
		tva := shareddomain.RoundHalfUp(ht.Mul(dec("0.055")), 2)
		line, err := invoicedomain.NewInvoiceLine(int64(firstLine+i), "taiyat.pdf", firstLine+i, nil, "Produit", "UNKNOWN", qty,
			invoicedomain.LineAmounts{PrixUnitaire: pu, TauxTVA: dec("5.5"), HT: ht, TVA: tva, TTC: ht.Add(tva)}, i == 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := inv.AddLine(line); err != nil {
			t.Fatal(err)
		}
	}
	inv.CheckDocumentTotal(decPtr("91.70"), dec("0.05"))
	return inv
}

func testInvoices(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	n, err := store.SaveInvoices(ctx, []*invoicedomain.Invoice{newInvoice(t, "FA-1", 8), newInvoice(t, "FA-2", 20)})
	if err != nil || n != 2 {
		t.Fatalf("save = %d, %v", n, err)
	}
	n, err = store.SaveInvoices(ctx, []*invoicedomain.Invoice{newInvoice(t, "FA-1", 8)})
	if err != nil || n != 0 {
		t.Fatalf("re-save = %d, %v, want 0", n, err)
	}

	invoices, err := store.ListInvoices(ctx, Tenant, Batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(invoices) != 2 {
		t.Fatalf("invoices = %d", len(invoices))
	}
	inv := invoices[0]
	if inv.Key().NumeroFacture != "FA-1" || len(inv.Lines()) != 2 {
		t.Fatalf("invoice = %s with %d lines", inv.Key().NumeroFacture, len(inv.Lines()))
	}
	if !inv.MontantHT().Amount().Equal(dec("81.70")) {
		t.Errorf("HT = %s", inv.MontantHT())
	}
	if !inv.EcartDocument() || inv.MontantHTDocument() == nil || !inv.MontantHTDocument().Equal(dec("91.70")) {
		t.Errorf("document check = %v %v", inv.EcartDocument(), inv.MontantHTDocument())
	}
	if !inv.Lines()[1].Promo() || inv.Lines()[0].Promo() {
		t.Error("promo flag lost")
	}
	if q := inv.Lines()[1].Quantite().Decimal(); !q.Equal(dec("2.5")) {
		t.Errorf("weighted quantity = %s, want 2.5", q)
	}
	if pu := inv.Lines()[1].PrixUnitaire().Amount(); !pu.Equal(dec("29.88")) {
		t.Errorf("prix unitaire = %s", pu)
	}
}

func testInvoiceLinePositions(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	if _, err := store.SaveInvoices(ctx, []*invoicedomain.Invoice{newInvoice(t, "FA-1", 8)}); err != nil {
		t.Fatal(err)
	}
	// FA-3 réclame les lignes 8 et 9 de taiyat.pdf, déjà rattachées à FA-1
	if n, err := store.SaveInvoices(ctx, []*invoicedomain.Invoice{newInvoice(t, "FA-3", 8)}); err == nil {
		t.Fatalf("save = %d, want a duplicate line error", n)
	}
	// deux factures du même appel sur les mêmes lignes: rien n'est enregistré
	if _, err := store.SaveInvoices(ctx, []*invoicedomain.Invoice{newInvoice(t, "FA-4", 30), newInvoice(t, "FA-5", 31)}); err == nil {
		t.Fatal("overlapping invoices in one call accepted")
	}
	invoices, err := store.ListInvoices(ctx, Tenant, Batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(invoices) != 1 || invoices[0].Key().NumeroFacture != "FA-1" {
		t.Errorf("invoices = %d", len(invoices))
	}
}

func aggregate(t *testing.T, designation, prix string, qty int, date time.Time) *catalogdomain.ProductAggregate {
	t.Helper()
	pu := dec(prix)
	ht := pu.Mul(decimal.NewFromInt(int64(qty)))
	a, err := catalogdomain.NewAggregateFromPurchase(catalogdomain.Purchase{
		Key:          catalogdomain.ProductKey{TenantID: Tenant, FournisseurCode: "TAI", DesignationClean: designation},
		Categorie:    "UNKNOWN",
		PrixUnitaire: pu,
		Quantite:     decimal.NewFromInt(int64(qty)),
		MontantHT:    ht,
		MontantTTC:   ht,
		Date:         date,
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func testMergeProducts(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	loaded, err := store.IsBatchLoaded(ctx, Tenant, "batch-b")
	if err != nil || loaded {
		t.Fatalf("loaded = %v, %v", loaded, err)
	}

	// batch récent d'abord, puis un rattrapage plus ancien
	n, err := store.MergeProducts(ctx, Tenant, "batch-b", []*catalogdomain.ProductAggregate{
		aggregate(t, "Riz Jasmin 20kg", "24.90", 3, day(2024, 3, 15)),
		aggregate(t, "Sauce Soja 1l", "3.50", 2, day(2024, 3, 15)),
	})
	if err != nil || n != 2 {
		t.Fatalf("merge = %d, %v", n, err)
	}
	n, err = store.MergeProducts(ctx, Tenant, "batch-a", []*catalogdomain.ProductAggregate{
		aggregate(t, "Riz Jasmin 20kg", "22.00", 1, day(2024, 1, 10)),
		aggregate(t, "Riz Jasmin 20kg", "26.00", 1, day(2024, 1, 20)),
	})
	if err != nil || n != 1 {
		t.Fatalf("merge = %d, %v", n, err)
	}

	for _, b := range []shareddomain.BatchID{"batch-a", "batch-b"} {
		if loaded, _ := store.IsBatchLoaded(ctx, Tenant, b); !loaded {
			t.Errorf("%s not marked loaded", b)
		}
	}

	products, err := store.ListProducts(ctx, Tenant)
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d", len(products))
	}
	riz := products[0]
	if riz.Key.DesignationClean != "Riz Jasmin 20kg" || riz.ID == 0 {
		t.Fatalf("products[0] = %+v", riz)
	}
	if riz.NbAchats != 3 || !riz.QuantiteTotale.Equal(decimal.NewFromInt(5)) {
		t.Errorf("nb = %d qty = %s", riz.NbAchats, riz.QuantiteTotale)
	}
	if !riz.PrixMin.Equal(dec("22")) || !riz.PrixMax.Equal(dec("26")) {
		t.Errorf("min/max = %s/%s", riz.PrixMin, riz.PrixMax)
	}
	// (74.70 + 22 + 26) / 5
	if !riz.PrixMoyen.Equal(dec("24.54")) {
		t.Errorf("moyen = %s", riz.PrixMoyen)
	}
	if !riz.PremierAchat.Equal(day(2024, 1, 10)) || !riz.DernierAchat.Equal(day(2024, 3, 15)) {
		t.Errorf("dates = %v %v", riz.PremierAchat, riz.DernierAchat)
	}

	suppliers, err := store.ListSuppliers(ctx, Tenant)
	if err != nil || len(suppliers) != 1 || suppliers[0] != "TAI" {
		t.Errorf("suppliers = %v, %v", suppliers, err)
	}
	found, err := store.SearchProducts(ctx, Tenant, "TAI", "SOJA", 10)
	if err != nil || len(found) != 1 || found[0].Key.DesignationClean != "Sauce Soja 1l" {
		t.Errorf("search = %v, %v", found, err)
	}
	none, _ := store.SearchProducts(ctx, "tenant-b", "TAI", "soja", 10)
	if len(none) != 0 {
		t.Error("search must be tenant scoped")
	}
}

func testLinks(t *testing.T, store ports.RelationalStore) {
	ctx := context.Background()
	if _, err := store.MergeProducts(ctx, Tenant, Batch, []*catalogdomain.ProductAggregate{
		aggregate(t, "Sauce Soja 1l", "3.50", 2, day(2024, 3, 15)),
	}); err != nil {
		t.Fatal(err)
	}
	products, _ := store.ListProducts(ctx, Tenant)

	ing, _ := catalogdomain.NewIngredient(0, Tenant, "Sauce soja", catalogdomain.UnitLitre, []string{"soja"})
	id, err := store.SaveIngredient(ctx, ing)
	if err != nil || id == 0 {
		t.Fatalf("save ingredient = %d, %v", id, err)
	}
	again, err := store.SaveIngredient(ctx, ing)
	if err != nil || again != id {
		t.Fatalf("re-save = %d, %v, want %d", again, err, id)
	}
	ingredients, _ := store.ListIngredients(ctx, Tenant)
	if len(ingredients) != 1 || ingredients[0].UniteStockage != catalogdomain.UnitLitre || len(ingredients[0].Aliases) != 1 {
		t.Fatalf("ingredients = %+v", ingredients)
	}

	key := catalogdomain.LinkKey{IngredientID: id, ProduitID: products[0].ID, Fournisseur: "TAI"}
	link, err := catalogdomain.NewReconciliationLink(key, dec("1"), 0.8, true, day(2024, 6, 1))
	if err != nil {
		t.Fatal(err)
	}
	created, err := store.InsertLink(ctx, Tenant, link)
	if err != nil || !created {
		t.Fatalf("insert = %v, %v", created, err)
	}
	other, _ := catalogdomain.NewReconciliationLink(key, dec("2"), 0.5, false, day(2024, 6, 2))
	created, err = store.InsertLink(ctx, Tenant, other)
	if err != nil || created {
		t.Fatalf("second insert = %v, %v, want false", created, err)
	}

	links, err := store.ListLinks(ctx, Tenant, id)
	if err != nil || len(links) != 1 {
		t.Fatalf("links = %v, %v", links, err)
	}
	if !links[0].Ratio.Equal(dec("1")) || !links[0].IsPrimary || links[0].Source != catalogdomain.LinkAuto {
		t.Errorf("existing link was modified: %+v", links[0])
	}
}
