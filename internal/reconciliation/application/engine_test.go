package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	catalogdomain "etlfactures/internal/catalog/domain"
	"etlfactures/internal/store/memory"
	shareddomain "etlfactures/internal/shared/domain"
)

const tenant shareddomain.TenantID = "resto-1"

func product(t *testing.T, supplier, designation string) *catalogdomain.ProductAggregate {
	t.Helper()
	a, err := catalogdomain.NewAggregateFromPurchase(catalogdomain.Purchase{
		Key:          catalogdomain.ProductKey{TenantID: tenant, FournisseurCode: supplier, DesignationClean: designation},
		Categorie:    "EPICERIE",
		PrixUnitaire: decimal.NewFromInt(5),
		Quantite:     decimal.NewFromInt(1),
		MontantHT:    decimal.NewFromInt(5),
		MontantTTC:   decimal.NewFromInt(6),
		Date:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func seed(t *testing.T) (*memory.Store, map[string]catalogdomain.IngredientID) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	if _, err := store.MergeProducts(ctx, tenant, "b1", []*catalogdomain.ProductAggregate{
		product(t, "TAI", "Sauce Soja 1l"),
		product(t, "TAI", "Riz Jasmin 20kg"),
		product(t, "TAI", "Sauce Huitre 510g"),
		product(t, "MET", "Sauce Soja Salee 6x50cl"),
		product(t, "MET", "Biere Blonde 6x25cl"),
		product(t, "MET", "Sauce Poisson Nuoc Mam 70cl"),
	}); err != nil {
		t.Fatal(err)
	}

	ids := map[string]catalogdomain.IngredientID{}
	for _, ing := range []struct {
		nom     string
		unit    catalogdomain.StorageUnit
		aliases []string
	}{
		{"Sauce soja", catalogdomain.UnitLitre, nil},
		{"Riz jasmin", catalogdomain.UnitKg, nil},
		{"Citronnelle", catalogdomain.UnitKg, nil},
		{"Bière", catalogdomain.UnitLitre, []string{"biere blonde"}},
		{"Nuoc mam", catalogdomain.UnitLitre, []string{"nuoc"}},
	} {
		i, err := catalogdomain.NewIngredient(0, tenant, ing.nom, ing.unit, ing.aliases)
		if err != nil {
			t.Fatal(err)
		}
		id, err := store.SaveIngredient(ctx, i)
		if err != nil {
			t.Fatal(err)
		}
		ids[ing.nom] = id
	}
	return store, ids
}

func productID(t *testing.T, store *memory.Store, supplier, designation string) catalogdomain.ProductID {
	t.Helper()
	products, err := store.ListProducts(context.Background(), tenant)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range products {
		if p.Key.FournisseurCode == supplier && p.Key.DesignationClean == designation {
			return p.ID
		}
	}
	t.Fatalf("product %s/%s not found", supplier, designation)
	return 0
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	store, ids := seed(t)
	engine := NewEngine(store, store, nil, zaptest.NewLogger(t), DefaultOptions())
	defer engine.Close()

	stats, err := engine.Reconcile(ctx, tenant)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Ingredients != 5 || stats.Matched != 4 || stats.LinksCreated != 5 {
		t.Fatalf("stats = %+v", stats)
	}

	soja, err := store.ListLinks(ctx, tenant, ids["Sauce soja"])
	if err != nil {
		t.Fatal(err)
	}
	if len(soja) != 2 {
		t.Fatalf("soja links = %d, want 2", len(soja))
	}
	// meilleur score d'abord, marqué primaire
	if soja[0].Key.Fournisseur != "TAI" || !soja[0].IsPrimary || soja[0].Score != 1 {
		t.Errorf("first soja link = %+v", soja[0])
	}
	if soja[1].Key.Fournisseur != "MET" || soja[1].IsPrimary {
		t.Errorf("second soja link = %+v", soja[1])
	}
	if !soja[1].Ratio.Equal(decimal.NewFromInt(3)) {
		t.Errorf("6x50cl ratio = %s, want 3", soja[1].Ratio)
	}

	riz, _ := store.ListLinks(ctx, tenant, ids["Riz jasmin"])
	if len(riz) != 1 || !riz[0].Ratio.Equal(decimal.NewFromInt(20)) {
		t.Errorf("riz links = %+v", riz)
	}
	biere, _ := store.ListLinks(ctx, tenant, ids["Bière"])
	if len(biere) != 1 || !biere[0].Ratio.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("biere links = %+v", biere)
	}
	if links, _ := store.ListLinks(ctx, tenant, ids["Citronnelle"]); len(links) != 0 {
		t.Errorf("citronnelle links = %d", len(links))
	}
}

func TestReconcileLoosePass(t *testing.T) {
	store, ids := seed(t)
	engine := NewEngine(store, store, nil, zaptest.NewLogger(t), DefaultOptions())
	defer engine.Close()

	ing := &catalogdomain.Ingredient{ID: ids["Nuoc mam"], TenantID: tenant, Nom: "Nuoc mam", UniteStockage: catalogdomain.UnitLitre, Aliases: []string{"nuoc"}}
	candidates, err := engine.Candidates(context.Background(), tenant, ing, []string{"MET", "TAI"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	// sous le seuil strict, au-dessus du seuil large
	if s := candidates[0].Score; s >= 0.60 || s < 0.45 {
		t.Errorf("score = %v", s)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := seed(t)
	engine := NewEngine(store, store, nil, zaptest.NewLogger(t), DefaultOptions())
	defer engine.Close()

	if _, err := engine.Reconcile(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	stats, err := engine.Reconcile(ctx, tenant)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LinksCreated != 0 || stats.LinksSkipped != 5 {
		t.Errorf("second run = %+v", stats)
	}
}

func TestReconcileKeepsManualPrimary(t *testing.T) {
	ctx := context.Background()
	store, ids := seed(t)

	manual, err := catalogdomain.NewReconciliationLink(catalogdomain.LinkKey{
		IngredientID: ids["Sauce soja"],
		ProduitID:    productID(t, store, "MET", "Sauce Soja Salee 6x50cl"),
		Fournisseur:  "MET",
	}, decimal.NewFromInt(2), 0.5, true, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	manual.Source = catalogdomain.LinkManual
	if _, err := store.InsertLink(ctx, tenant, manual); err != nil {
		t.Fatal(err)
	}

	engine := NewEngine(store, store, nil, zaptest.NewLogger(t), DefaultOptions())
	defer engine.Close()
	if _, err := engine.Reconcile(ctx, tenant); err != nil {
		t.Fatal(err)
	}

	links, _ := store.ListLinks(ctx, tenant, ids["Sauce soja"])
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2", len(links))
	}
	m := links[0]
	if m.Source != catalogdomain.LinkManual || !m.IsPrimary || !m.Ratio.Equal(decimal.NewFromInt(2)) {
		t.Errorf("manual link modified: %+v", m)
	}
	if links[1].IsPrimary {
		t.Error("automatic link must not be primary when a primary exists")
	}
}

func TestReconcileRespectsMaxLinks(t *testing.T) {
	ctx := context.Background()
	store, ids := seed(t)
	opts := DefaultOptions()
	opts.MaxLinks = 1
	engine := NewEngine(store, store, nil, zaptest.NewLogger(t), opts)
	defer engine.Close()

	if _, err := engine.Reconcile(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	links, _ := store.ListLinks(ctx, tenant, ids["Sauce soja"])
	if len(links) != 1 || links[0].Key.Fournisseur != "TAI" {
		t.Errorf("links = %+v", links)
	}
}
