package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	catalogdomain "etlfactures/internal/catalog/domain"
	"etlfactures/internal/normalization"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
	stagingdomain "etlfactures/internal/staging/domain"
	"etlfactures/internal/store/memory"
)

const (
	tenant = shareddomain.TenantID("tenant-a")
	batch  = shareddomain.BatchID("batch-1")
)

func str(s string) *string { return &s }

func newService(t *testing.T, store *memory.Store) *Service {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return NewService(store, store, normalization.New(zap.NewNop(), normalization.WithClock(clock)), DefaultOptions())
}

func rawLine(t *testing.T, n int, raw stagingdomain.RawFields) *stagingdomain.StagingLine {
	t.Helper()
	line, err := stagingdomain.NewStagingLine(tenant, batch, "taiyat.pdf", n)
	if err != nil {
		t.Fatal(err)
	}
	line.Supplier = "TAIYAT"
	if raw.NumeroFacture == nil {
		raw.NumeroFacture = str("FA2024-0153")
	}
	if raw.DateFacture == nil {
		raw.DateFacture = str("15/03/2024")
	}
	if raw.Fournisseur == nil {
		raw.Fournisseur = str("TAIYAT")
	}
	line.Raw = raw
	return line
}

func seed(t *testing.T, store *memory.Store, lines ...*stagingdomain.StagingLine) {
	t.Helper()
	if _, err := store.InsertLines(context.Background(), lines); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, svc *Service) (StageStats, StageStats) {
	t.Helper()
	ctx := context.Background()
	ns, err := svc.Normalize(ctx, tenant, batch)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	vs, err := svc.Validate(ctx, tenant, batch)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return ns, vs
}

func byLine(t *testing.T, store *memory.Store) map[int]*stagingdomain.StagingLine {
	t.Helper()
	lines, err := store.ListLines(context.Background(), tenant, batch)
	if err != nil {
		t.Fatal(err)
	}
	out := map[int]*stagingdomain.StagingLine{}
	for _, l := range lines {
		out[l.LineNumber] = l
	}
	return out
}

func assertDecimal(t *testing.T, name string, got *decimal.Decimal, want string) {
	t.Helper()
	if got == nil {
		t.Errorf("%s = nil, want %s", name, want)
		return
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", name, got.String(), want)
	}
}

func hasIssue(l *stagingdomain.StagingLine, field, code string) bool {
	for _, issue := range l.Issues {
		if issue.Field == field && issue.Code == code {
			return true
		}
	}
	return false
}

func TestService_NormalizeAndValidate(t *testing.T) {
	store := memory.New()
	seed(t, store,
		rawLine(t, 8, stagingdomain.RawFields{
			EAN: str("4006381333931"), Designation: str("SCE SOJA 1L"),
			Quantite: str("2"), PrixUnitaire: str("3,50"), MontantLigne: str("7,00"), TauxTVA: str("5.5"),
		}),
		rawLine(t, 9, stagingdomain.RawFields{
			Designation: str("RIZ JASMIN 20 KG"),
			Quantite: str("3"), PrixUnitaire: str("24,90"), MontantLigne: str("74,70"), TauxTVA: str("5.5"),
		}),
		rawLine(t, 10, stagingdomain.RawFields{
			Designation: str("NOUILLES UDON"), Quantite: str("4"), MontantLigne: str("10,00"),
		}),
	)
	svc := newService(t, store)

	ns, vs := run(t, svc)
	if ns.Succeeded != 3 || ns.Failed != 0 {
		t.Fatalf("normalize stats = %+v", ns)
	}
	if vs.Succeeded != 3 || vs.Failed != 0 {
		t.Fatalf("validate stats = %+v", vs)
	}

	lines := byLine(t, store)
	first := lines[8]
	if first.Status != stagingdomain.StatusValidated {
		t.Fatalf("status = %s, issues = %+v", first.Status, first.Issues)
	}
	if got := *first.Norm.DesignationClean; got != "Sauce Soja 1l" {
		t.Errorf("designation = %q", got)
	}
	assertDecimal(t, "HT", first.Norm.MontantHT, "7.00")
	assertDecimal(t, "TVA", first.Norm.MontantTVA, "0.39")
	assertDecimal(t, "TTC", first.Norm.MontantTTC, "7.39")

	// prix unitaire dérivé et TVA par défaut
	third := lines[10]
	assertDecimal(t, "PU", third.Norm.PrixUnitaire, "2.5")
	assertDecimal(t, "TVA", third.Norm.MontantTVA, "2.00")
	assertDecimal(t, "taux", third.Norm.TauxTVA, "20")
	if !hasIssue(third, "prix_unitaire", stagingdomain.CodeRequired) {
		t.Errorf("missing derivation warning: %+v", third.Issues)
	}
	if third.Status != stagingdomain.StatusValidated {
		t.Errorf("status = %s", third.Status)
	}
}

func TestService_NormErrorOnDesignationAndEAN(t *testing.T) {
	store := memory.New()
	seed(t, store,
		rawLine(t, 1, stagingdomain.RawFields{Quantite: str("1"), PrixUnitaire: str("1,00"), MontantLigne: str("1,00")}),
		rawLine(t, 2, stagingdomain.RawFields{EAN: str("12345"), Designation: str("THE VERT"), Quantite: str("1"), PrixUnitaire: str("1,00")}),
		// un prix illisible ne bloque pas la normalisation
		rawLine(t, 3, stagingdomain.RawFields{Designation: str("THE NOIR"), Quantite: str("1"), PrixUnitaire: str("abc")}),
	)
	svc := newService(t, store)
	ns, _ := run(t, svc)

	if ns.Failed != 2 || ns.Succeeded != 1 {
		t.Fatalf("stats = %+v", ns)
	}
	lines := byLine(t, store)
	if lines[1].Status != stagingdomain.StatusNormError || !hasIssue(lines[1], "designation", stagingdomain.CodeRequired) {
		t.Errorf("line 1 = %s %+v", lines[1].Status, lines[1].Issues)
	}
	if lines[2].Status != stagingdomain.StatusNormError || !hasIssue(lines[2], "ean", stagingdomain.CodeUnparseable) {
		t.Errorf("line 2 = %s %+v", lines[2].Status, lines[2].Issues)
	}
	// prix illisible et aucun montant: échec en validation
	if lines[3].Status != stagingdomain.StatusValidError || !hasIssue(lines[3], "prix_unitaire", stagingdomain.CodeRequired) {
		t.Errorf("line 3 = %s %+v", lines[3].Status, lines[3].Issues)
	}
	if ns.Files["taiyat.pdf"].NormError != 2 {
		t.Errorf("file stats = %+v", ns.Files["taiyat.pdf"])
	}
}

func TestService_AmountMismatch(t *testing.T) {
	store := memory.New()
	seed(t, store, rawLine(t, 1, stagingdomain.RawFields{
		Designation: str("RIZ"), Quantite: str("3"), PrixUnitaire: str("24,90"), MontantLigne: str("75,00"),
	}))
	_, vs := run(t, newService(t, store))

	if vs.Failed != 1 {
		t.Fatalf("stats = %+v", vs)
	}
	line := byLine(t, store)[1]
	if line.Status != stagingdomain.StatusValidError || !hasIssue(line, "montant_ligne", stagingdomain.CodeAmountMismatch) {
		t.Errorf("line = %s %+v", line.Status, line.Issues)
	}
	if line.Norm.MontantHT != nil {
		t.Error("amounts must not be computed on a rejected line")
	}
}

func TestService_WithinTolerance(t *testing.T) {
	store := memory.New()
	seed(t, store, rawLine(t, 1, stagingdomain.RawFields{
		Designation: str("RIZ"), Quantite: str("3"), PrixUnitaire: str("24,90"), MontantLigne: str("74,71"),
	}))
	_, vs := run(t, newService(t, store))
	if vs.Succeeded != 1 {
		t.Errorf("stats = %+v", vs)
	}
}

func TestService_MissingHeaderFields(t *testing.T) {
	store := memory.New()
	line := rawLine(t, 1, stagingdomain.RawFields{Designation: str("RIZ"), Quantite: str("1"), PrixUnitaire: str("2,00")})
	line.Raw.NumeroFacture = str(" ")
	line.Raw.DateFacture = str("31/12/1999")
	seed(t, store, line)
	run(t, newService(t, store))

	got := byLine(t, store)[1]
	if got.Status != stagingdomain.StatusValidError {
		t.Fatalf("status = %s", got.Status)
	}
	if !hasIssue(got, "numero_facture", stagingdomain.CodeRequired) || !hasIssue(got, "date_facture", stagingdomain.CodeRequired) {
		t.Errorf("issues = %+v", got.Issues)
	}
}

func TestService_WeightedLine(t *testing.T) {
	store := memory.New()
	line := rawLine(t, 1, stagingdomain.RawFields{
		Designation: str("SAUMON FILET SURGELE"), Quantite: str("2,5"), Unite: str("KG"),
		PrixUnitaire: str("18,40"), MontantLigne: str("46,00"), TauxTVA: str("5,5%"),
	})
	line.Supplier = "EUROCIEL"
	line.Raw.Fournisseur = str("EUROCIEL")
	seed(t, store, line)
	_, vs := run(t, newService(t, store))

	if vs.Succeeded != 1 {
		t.Fatalf("stats = %+v", vs)
	}
	got := byLine(t, store)[1]
	if got.Norm.Quantite == nil || *got.Norm.Quantite != 3 {
		t.Errorf("quantite = %v", got.Norm.Quantite)
	}
	assertDecimal(t, "poids", got.Norm.Poids, "2.5")
	assertDecimal(t, "HT", got.Norm.MontantHT, "46.00")
	assertDecimal(t, "TVA", got.Norm.MontantTVA, "2.53")
}

func TestService_WeightUnderOneKilo(t *testing.T) {
	store := memory.New()
	line := rawLine(t, 1, stagingdomain.RawFields{
		Designation: str("GINGEMBRE FRAIS"), Quantite: str("0,4"), Unite: str("KG"),
		PrixUnitaire: str("10,00"), MontantLigne: str("4,00"),
	})
	line.Supplier = "EUROCIEL"
	seed(t, store, line)
	_, vs := run(t, newService(t, store))

	if vs.Succeeded != 1 {
		t.Fatalf("stats = %+v", vs)
	}
	got := byLine(t, store)[1]
	if got.Norm.Quantite == nil || *got.Norm.Quantite != 1 {
		t.Errorf("quantite = %v, want the rounded count 1", got.Norm.Quantite)
	}
	assertDecimal(t, "poids", got.Norm.Poids, "0.4")
	assertDecimal(t, "HT", got.Norm.MontantHT, "4.00")
}

func TestService_ChecksumMismatchIsWarning(t *testing.T) {
	store := memory.New()
	seed(t, store, rawLine(t, 1, stagingdomain.RawFields{
		EAN: str("4006381333932"), Designation: str("THE"), Quantite: str("1"), PrixUnitaire: str("1,00"),
	}))
	run(t, newService(t, store))

	got := byLine(t, store)[1]
	if got.Status != stagingdomain.StatusValidated {
		t.Fatalf("status = %s %+v", got.Status, got.Issues)
	}
	if *got.Norm.EAN != "4006381333932" || !hasIssue(got, "ean", stagingdomain.CodeChecksumMismatch) {
		t.Errorf("ean = %v issues = %+v", *got.Norm.EAN, got.Issues)
	}
}

func TestService_RerunIsIdempotent(t *testing.T) {
	store := memory.New()
	seed(t, store,
		rawLine(t, 1, stagingdomain.RawFields{Designation: str("RIZ"), Quantite: str("3"), PrixUnitaire: str("24,90"), MontantLigne: str("74,70")}),
		rawLine(t, 2, stagingdomain.RawFields{Designation: str("RIZ"), Quantite: str("3"), PrixUnitaire: str("24,90"), MontantLigne: str("99,00")}),
	)
	svc := newService(t, store)
	run(t, svc)
	first := byLine(t, store)
	transitions, _ := store.Transitions(context.Background(), tenant, batch)

	ns, vs := run(t, svc)
	if ns.Processed != 0 || vs.Processed != 0 {
		t.Errorf("second run processed %d/%d lines", ns.Processed, vs.Processed)
	}
	second := byLine(t, store)
	if len(first) != len(second) {
		t.Fatalf("row count changed: %d -> %d", len(first), len(second))
	}
	for n, l := range first {
		if second[n].Status != l.Status || len(second[n].Issues) != len(l.Issues) {
			t.Errorf("line %d changed: %s -> %s", n, l.Status, second[n].Status)
		}
	}
	after, _ := store.Transitions(context.Background(), tenant, batch)
	if len(after) != len(transitions) || len(after) != 4 {
		t.Errorf("transitions = %d then %d, want 4", len(transitions), len(after))
	}
}

func TestEnrich_FillsOnlyUnresolved(t *testing.T) {
	cat, err := catalogdomain.NewCategoryMapping("METRO", "SPIRITUEUX", "ALC", "Alcools")
	if err != nil {
		t.Fatal(err)
	}
	sup, err := catalogdomain.NewSupplierMapping("METRO", "MET", "METRO France")
	if err != nil {
		t.Fatal(err)
	}
	table := catalogdomain.NewMappingTable([]*catalogdomain.CategoryMapping{cat}, []*catalogdomain.SupplierMapping{sup})

	line := rawLine(t, 1, stagingdomain.RawFields{Categorie: str("Spiritueux"), Fournisseur: str("metro")})
	line.Supplier = "METRO"
	unknown := normalization.UnknownCode
	line.Norm.CategorieCode = &unknown
	Enrich(line, table)
	if *line.Norm.CategorieCode != "ALC" || *line.Norm.FournisseurCode != "MET" || *line.Norm.FournisseurNom != "METRO France" {
		t.Errorf("norm = %+v", line.Norm)
	}

	existing := "BOISSONS"
	line.Norm.CategorieCode = &existing
	Enrich(line, table)
	if *line.Norm.CategorieCode != "BOISSONS" {
		t.Errorf("enrichment overwrote %q", *line.Norm.CategorieCode)
	}
}

func TestService_StaleUpdateIsRejected(t *testing.T) {
	store := memory.New()
	seed(t, store, rawLine(t, 1, stagingdomain.RawFields{Designation: str("RIZ"), Quantite: str("1"), PrixUnitaire: str("1,00")}))
	run(t, newService(t, store))

	lines, _ := store.ListLines(context.Background(), tenant, batch)
	lines[0].Status = stagingdomain.StatusNormalized
	err := store.UpdateLines(context.Background(), []ports.LineUpdate{{Line: lines[0], From: stagingdomain.StatusValidated}})
	if !errors.Is(err, stagingdomain.ErrIllegalTransition) {
		t.Errorf("err = %v, want ErrIllegalTransition", err)
	}
}
