package infrastructure

import (
	"context"
	"strings"
	"testing"

	"etlfactures/internal/catalog/domain"
	"etlfactures/internal/store/memory"
)

const referenceYAML = `
categories:
  - supplier: METRO
    term: Spiritueux
    code: ALCOOL
    label: Alcools forts
  - supplier: TAIYAT
    term: Epicerie asiatique
    code: EPICERIE
suppliers:
  - source: Taiyat Distribution
    code: TAI
    name: TAIYAT DISTRIBUTION
ingredients:
  - nom: Sauce soja
    unite: litre
  - nom: Riz jasmin
    unite: kg
    aliases: [riz thai]
`

func TestSeedReference(t *testing.T) {
	ctx := context.Background()
	data, err := ParseReference(strings.NewReader(referenceYAML))
	if err != nil {
		t.Fatal(err)
	}
	store := memory.New()

	for run := 0; run < 2; run++ {
		stats, err := SeedReference(ctx, store, "resto-1", data)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Categories != 2 || stats.Suppliers != 1 || stats.Ingredients != 2 {
			t.Fatalf("stats = %+v", stats)
		}
	}

	table, err := store.LoadMappings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if code, ok := table.LookupCategory("METRO", "spiritueux"); !ok || code != "ALCOOL" {
		t.Errorf("category = %q, %v", code, ok)
	}
	if code, _, ok := table.LookupSupplier("TAIYAT DISTRIBUTION"); !ok || code != "TAI" {
		t.Errorf("supplier = %q, %v", code, ok)
	}

	ingredients, err := store.ListIngredients(ctx, "resto-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ingredients) != 2 {
		t.Fatalf("ingredients = %d, want 2 after two runs", len(ingredients))
	}
	if ingredients[1].UniteStockage != domain.UnitKg || len(ingredients[1].Aliases) != 1 {
		t.Errorf("riz = %+v", ingredients[1])
	}
}

func TestParseReference_RejectsUnknownFields(t *testing.T) {
	if _, err := ParseReference(strings.NewReader("categorys: []\n")); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestSeedReference_IngredientsNeedTenant(t *testing.T) {
	data := &ReferenceData{Ingredients: []IngredientSeed{{Nom: "Citron", Unite: "piece"}}}
	if _, err := SeedReference(context.Background(), memory.New(), "", data); err == nil {
		t.Error("ingredients without tenant accepted")
	}
}

func TestLoadReferenceFile_Shipped(t *testing.T) {
	data, err := LoadReferenceFile("../../../configs/reference.yaml")
	if err != nil {
		t.Fatal(err)
	}
	store := memory.New()
	stats, err := SeedReference(context.Background(), store, "resto-1", data)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Categories == 0 || stats.Suppliers == 0 || stats.Ingredients == 0 {
		t.Errorf("stats = %+v", stats)
	}

	// les parseurs émettent le code du layout comme nom de fournisseur
	table, err := store.LoadMappings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for layout, want := range map[string]string{"TAIYAT": "TAI", "METRO": "MET", "EUROCIEL": "EUR"} {
		if code, _, ok := table.LookupSupplier(layout); !ok || code != want {
			t.Errorf("LookupSupplier(%s) = %q, %v", layout, code, ok)
		}
	}
}
