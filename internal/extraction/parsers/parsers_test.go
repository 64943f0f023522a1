package parsers

import (
	"errors"
	"testing"

	"etlfactures/internal/extraction/domain"
	"etlfactures/internal/testhelpers"
)

func parse(t *testing.T, layout Layout, keep bool, file string, pages []string) *domain.ParseResult {
	t.Helper()
	return NewLayoutParser(layout, keep).Parse(domain.Document{SourceFile: file, Pages: pages})
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestTaiyat_ParsesHeaderAndLines(t *testing.T) {
	res := parse(t, TaiyatLayout(), false, "taiyat.pdf", testhelpers.TaiyatInvoice)

	if len(res.Invoices) != 1 {
		t.Fatalf("invoices = %d, want 1", len(res.Invoices))
	}
	inv := res.Invoices[0]
	if got := deref(inv.Header.NumeroFacture); got != "FA2024-0153" {
		t.Errorf("numero = %s", got)
	}
	if got := deref(inv.Header.DateFacture); got != "15/03/2024" {
		t.Errorf("date = %s", got)
	}
	if got := deref(inv.Header.Client); got != "RESTAURANT LE LOTUS" {
		t.Errorf("client = %s", got)
	}
	if got := deref(inv.Header.MontantHTDocument); got != "91,70" {
		t.Errorf("total = %s", got)
	}
	if res.Unparsed != 0 {
		t.Errorf("unparsed = %d", res.Unparsed)
	}

	want := []struct {
		grammar     string
		line        int
		designation string
		tauxTVA     string
	}{
		{"taiyat_ean", 8, "SCE SOJA 1L", "5.5"},
		{"taiyat_standard", 9, "RIZ JASMIN 20 KG", "5.5"},
		{"taiyat_simple", 10, "NOUILLES UDON", "<nil>"},
	}
	if len(inv.Lines) != len(want) {
		t.Fatalf("lines = %d, want %d", len(inv.Lines), len(want))
	}
	for i, w := range want {
		l := inv.Lines[i]
		if l.Grammar != w.grammar || l.LineNumber != w.line {
			t.Errorf("line %d: grammar=%s number=%d, want %s/%d", i, l.Grammar, l.LineNumber, w.grammar, w.line)
		}
		if got := deref(l.Fields.Designation); got != w.designation {
			t.Errorf("line %d: designation = %q, want %q", i, got, w.designation)
		}
		if got := deref(l.Fields.TauxTVA); got != w.tauxTVA {
			t.Errorf("line %d: taux = %s, want %s", i, got, w.tauxTVA)
		}
		if l.RawLine == "" {
			t.Errorf("line %d: raw line missing", i)
		}
	}
	if got := deref(inv.Lines[0].Fields.EAN); got != "4006381333931" {
		t.Errorf("ean = %s", got)
	}
	// les montants restent des chaînes brutes
	if got := deref(inv.Lines[1].Fields.PrixUnitaire); got != "24,90" {
		t.Errorf("pu = %s", got)
	}
}

func TestMetro_AlcoholGrammarTakesPrecedence(t *testing.T) {
	line := "3259354102014 123456 VODKA POLIAKOV 37,5% 70CL 6 9,90 2 19,80 D"
	layout := MetroLayout()

	// la grammaire standard reconnaît aussi la ligne, sans le degré
	standard := layout.Rules[1]
	if standard.Name != "metro_standard" {
		t.Fatalf("rule 1 = %s", standard.Name)
	}
	loose, ok := standard.Match(line)
	if !ok || loose.DegreAlcool != nil {
		t.Fatalf("standard grammar should match without ABV: ok=%v abv=%s", ok, deref(loose.DegreAlcool))
	}

	fields, grammar, ok := domain.Apply(layout.Rules, line)
	if !ok || grammar != "metro_alcohol" {
		t.Fatalf("grammar = %s, ok = %v", grammar, ok)
	}
	if got := deref(fields.DegreAlcool); got != "37,5" {
		t.Errorf("abv = %s", got)
	}
	if got := deref(fields.Volume); got != "70CL" {
		t.Errorf("volume = %s", got)
	}
	if got := deref(fields.Designation); got != "VODKA POLIAKOV" {
		t.Errorf("designation = %q", got)
	}
	if got := deref(fields.TauxTVA); got != "20" {
		t.Errorf("taux = %s", got)
	}
}

func TestMetro_MultiPageCarriesHeader(t *testing.T) {
	res := parse(t, MetroLayout(), false, "metro.pdf", testhelpers.MetroInvoice)

	if len(res.Invoices) != 1 {
		t.Fatalf("invoices = %d, want 1", len(res.Invoices))
	}
	inv := res.Invoices[0]
	if len(inv.Lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(inv.Lines))
	}
	if res.Unparsed != 1 || res.Candidates != 4 {
		t.Errorf("unparsed=%d candidates=%d, want 1/4", res.Unparsed, res.Candidates)
	}
	if got := deref(inv.Header.DateFacture); got != "02-04-2024" {
		t.Errorf("date = %s", got)
	}
	if got := deref(inv.Header.FournisseurTVA); got != "FR 98 765432109" {
		t.Errorf("tva = %s", got)
	}

	coca := inv.Lines[2]
	if coca.LineNumber != 14 {
		t.Errorf("line number = %d, want 14 (position in file)", coca.LineNumber)
	}
	if got := deref(coca.Fields.Categorie); got != "EPICERIE" {
		t.Errorf("section = %s", got)
	}
	if got := deref(inv.Lines[0].Fields.Categorie); got != "SPIRITUEUX" {
		t.Errorf("first section = %s", got)
	}
	if !inv.Lines[1].Fields.Promo || inv.Lines[0].Fields.Promo {
		t.Error("promo flag misread")
	}
}

func TestParser_KeepUnparsed(t *testing.T) {
	res := parse(t, MetroLayout(), true, "metro.pdf", testhelpers.MetroInvoice)

	lines := res.Invoices[0].Lines
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4 with the degraded one", len(lines))
	}
	degraded := lines[3]
	if !degraded.Degraded || degraded.Grammar != DegradedGrammar || degraded.Fields.Designation != nil {
		t.Errorf("degraded line = %+v", degraded)
	}
	if degraded.RawLine != "LIGNE ILLISIBLE 12,00 XX" {
		t.Errorf("raw = %q", degraded.RawLine)
	}
	if res.Unparsed != 1 {
		t.Errorf("unparsed = %d", res.Unparsed)
	}
}

func TestTaiyat_ResetsOnNewInvoice(t *testing.T) {
	res := parse(t, TaiyatLayout(), false, "taiyat.pdf", testhelpers.TaiyatTwoInvoices)

	if len(res.Invoices) != 2 {
		t.Fatalf("invoices = %d, want 2", len(res.Invoices))
	}
	a, b := res.Invoices[0], res.Invoices[1]
	if deref(a.Header.NumeroFacture) != "A-1" || deref(b.Header.NumeroFacture) != "B-2" {
		t.Errorf("numbers = %s, %s", deref(a.Header.NumeroFacture), deref(b.Header.NumeroFacture))
	}
	if deref(b.Header.Client) != "RESTO B" || deref(b.Header.DateFacture) != "05/02/2024" {
		t.Errorf("second header leaked from first: %+v", b.Header)
	}
	if len(a.Lines) != 1 || len(b.Lines) != 1 {
		t.Errorf("lines = %d/%d", len(a.Lines), len(b.Lines))
	}
}

func TestTaiyat_NewNumberWithoutPageMarker(t *testing.T) {
	pages := testhelpers.Pages([]string{
		"FACTURE N° X1",
		"Date : 01/02/2024",
		"T1001 SCE PIMENT 1 1 2,00 2,00 2",
		"FACTURE N° X2",
		"T1002 SCE HUITRE 1 1 3,00 3,00 2",
	})
	res := parse(t, TaiyatLayout(), false, "taiyat.pdf", pages)
	if len(res.Invoices) != 2 {
		t.Fatalf("invoices = %d, want 2", len(res.Invoices))
	}
	if res.Invoices[1].Header.DateFacture != nil {
		t.Error("date must not carry over to a new invoice number")
	}
}

func TestEurociel_WeightedAndSimple(t *testing.T) {
	res := parse(t, EurocielLayout(), false, "eurociel.pdf", testhelpers.EurocielInvoice)

	if len(res.Invoices) != 1 || len(res.Invoices[0].Lines) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	inv := res.Invoices[0]
	if deref(inv.Header.Client) != "CANTINE CENTRALE" || deref(inv.Header.DateFacture) != "2024-05-10" {
		t.Errorf("header = %+v", inv.Header)
	}
	w := inv.Lines[0]
	if w.Grammar != "eurociel_weighted" || deref(w.Fields.Unite) != "KG" || deref(w.Fields.TauxTVA) != "5,5" {
		t.Errorf("weighted = %s unit=%s rate=%s", w.Grammar, deref(w.Fields.Unite), deref(w.Fields.TauxTVA))
	}
	if got := deref(w.Fields.CodeArticle); got != "SAU-100" {
		t.Errorf("code = %s", got)
	}
	s := inv.Lines[1]
	if s.Grammar != "eurociel_simple" || deref(s.Fields.Quantite) != "4" {
		t.Errorf("simple = %s qty=%s", s.Grammar, deref(s.Fields.Quantite))
	}
}

func TestParser_GarbageYieldsNothing(t *testing.T) {
	res := parse(t, TaiyatLayout(), false, "garbage.pdf", testhelpers.GarbageText)
	if len(res.Invoices) != 0 || res.LineCount() != 0 {
		t.Errorf("garbage produced %d lines", res.LineCount())
	}
}

func TestRegistry_Detect(t *testing.T) {
	r := DefaultRegistry(false)

	if got := r.Suppliers(); len(got) != 3 || got[0] != SupplierMetro || got[1] != SupplierTaiyat || got[2] != SupplierEurociel {
		t.Errorf("order = %v", got)
	}

	tests := []struct {
		file  string
		pages []string
		want  string
	}{
		{"scan_001.pdf", testhelpers.TaiyatInvoice, SupplierTaiyat},
		{"scan_002.pdf", testhelpers.MetroInvoice, SupplierMetro},
		{"scan_003.pdf", testhelpers.EurocielInvoice, SupplierEurociel},
		{"Eurociel_mai.pdf", testhelpers.GarbageText, SupplierEurociel},
	}
	for _, tt := range tests {
		p, err := r.Detect(domain.Document{SourceFile: tt.file, Pages: tt.pages})
		if err != nil || p.Supplier() != tt.want {
			t.Errorf("Detect(%s) = %v, %v, want %s", tt.file, p, err, tt.want)
		}
	}

	_, err := r.Detect(domain.Document{SourceFile: "garbage.pdf", Pages: testhelpers.GarbageText})
	if !errors.Is(err, ErrUnknownLayout) {
		t.Errorf("err = %v, want ErrUnknownLayout", err)
	}
	if _, err := r.Resolve("UNKNOWN"); err == nil {
		t.Error("Resolve should fail for unregistered supplier")
	}
}
