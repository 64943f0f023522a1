package normalization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestNormalizer(t *testing.T) (*Normalizer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	n := New(zap.New(core), WithClock(func() time.Time { return now }))
	return n, logs
}

func sp(s string) *string { return &s }

func TestCleanText(t *testing.T) {
	n, _ := newTestNormalizer(t)

	tests := []struct {
		name string
		in   *string
		want *string
	}{
		{"nil", nil, nil},
		{"vide", sp("   "), nil},
		{"espaces multiples", sp("  Sauce \t soja\n "), sp("Sauce soja")},
		{"insécables et guillemets", sp("« Riz jasmin »"), sp("Riz jasmin")},
		{"contrôle", sp("Nouilles\x00udon"), sp("Nouilles udon")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.CleanText(tt.in)
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("CleanText(%v) = %v, want %v", deref(tt.in), deref(got), deref(tt.want))
			}
		})
	}
}

func TestNormalizeDesignation(t *testing.T) {
	n, _ := newTestNormalizer(t)

	tests := []struct {
		in   string
		want string
	}{
		{"WH JACK DANIELS 0,7 L", "Whiskey Jack Daniels 70cl"},
		{"coca cola 33 CL", "Coca Cola 33cl"},
		{"EAU MINERALE 1,5L", "Eau Minerale 1.5l"},
		{"SCE SOJA 250 ML", "Sauce Soja 25cl"},
		{"RIZ JASMIN 20 KG", "Riz Jasmin 20kg"},
		{"biere 6X25CL", "Biere 6x25cl"},
		{"huile d’olive", "Huile D'Olive"},
		{"RHUM BLANC 40 % 1L", "Rhum Blanc 40% 1l"},
		{"WH JACK DANIEL'S 0,7 L", "Whiskey Jack Daniel's 70cl"},
		{"l'huile D'ARGAN", "L'Huile D'Argan"},
		{"VODKA 37,5 % 70CL", "Vodka 37.5% 70cl"},
		{"VIN ROUGE 12,5% 75CL", "Vin Rouge 12.5% 75cl"},
		{"pâte-de-curry 125ml", "Pâte-De-Curry 125ml"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := n.NormalizeDesignation(sp(tt.in))
			if got == nil || *got != tt.want {
				t.Fatalf("NormalizeDesignation(%q) = %v, want %q", tt.in, deref(got), tt.want)
			}
			again := n.NormalizeDesignation(got)
			if again == nil || *again != *got {
				t.Errorf("not idempotent: %q -> %v", *got, deref(again))
			}
		})
	}

	if got := n.NormalizeDesignation(nil); got != nil {
		t.Errorf("nil input should give nil, got %q", *got)
	}
	if got := n.NormalizeDesignation(sp("  ")); got != nil {
		t.Errorf("empty input should give nil, got %q", *got)
	}
}

func TestNormalizeEAN(t *testing.T) {
	n, logs := newTestNormalizer(t)

	tests := []struct {
		name string
		in   string
		want *string
	}{
		{"valide inchangé", "4006381333931", sp("4006381333931")},
		{"espaces et tirets", "4006-381 333931", sp("4006381333931")},
		{"14 chiffres zéro parasite", "04006381333931", sp("4006381333931")},
		{"ean-8 complété", "12345670", sp("0000012345670")},
		{"longueur invalide", "123456", nil},
		{"non numérique", "abc", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.NormalizeEAN(sp(tt.in))
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("NormalizeEAN(%q) = %v, want %v", tt.in, deref(got), deref(tt.want))
			}
			if got != nil {
				if len(*got) != 13 {
					t.Errorf("length = %d, want 13", len(*got))
				}
				again := n.NormalizeEAN(got)
				if again == nil || *again != *got {
					t.Errorf("not idempotent: %q -> %v", *got, deref(again))
				}
			}
		})
	}

	logs.TakeAll()
	got := n.NormalizeEAN(sp("4006381333932"))
	if got == nil || *got != "4006381333932" {
		t.Fatalf("bad checksum should keep the code, got %v", deref(got))
	}
	if logs.FilterMessageSnippet("clé de contrôle").Len() != 1 {
		t.Errorf("expected a checksum warning, got %v", logs.All())
	}
}

func TestValidEANChecksum(t *testing.T) {
	if !ValidEANChecksum("4006381333931") {
		t.Error("4006381333931 should be valid")
	}
	if !ValidEANChecksum("0000012345670") {
		t.Error("0000012345670 should be valid")
	}
	if ValidEANChecksum("4006381333930") {
		t.Error("4006381333930 should be invalid")
	}
	if ValidEANChecksum("400638133393") {
		t.Error("12 digits should be invalid")
	}
}

func TestNormalizePrix(t *testing.T) {
	n, logs := newTestNormalizer(t)

	tests := []struct {
		in   string
		want string
	}{
		{"1.234,56 €", "1234.56"},
		{"12,5", "12.5"},
		{"12.50", "12.5"},
		{"€ 3,99", "3.99"},
		{"1,234.56", "1234.56"},
		{"2 345,10", "2345.1"},
		{"0", "0"},
		{"100000", "100000"},
		{"-5", ""},
		{"100000,01", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := n.NormalizePrix(sp(tt.in))
			if tt.want == "" {
				if got != nil {
					t.Errorf("NormalizePrix(%q) = %s, want nil", tt.in, got)
				}
				return
			}
			if got == nil || !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("NormalizePrix(%q) = %v, want %s", tt.in, got, tt.want)
			}
		})
	}

	if logs.FilterMessage("prix hors bornes").Len() < 2 {
		t.Errorf("expected out-of-range warnings, got %d", logs.FilterMessage("prix hors bornes").Len())
	}
	if n.NormalizePrix(nil) != nil {
		t.Error("nil input should give nil")
	}
}

func TestNormalizeQuantite(t *testing.T) {
	n, _ := newTestNormalizer(t)

	tests := []struct {
		in   string
		want int
	}{
		{"3", 3},
		{"3.0", 3},
		{"12,0", 12},
		{"2,5", 3},
		{"1,4", 1},
		{"10000", 10000},
		{"0", 0},
		{"-2", 0},
		{"10001", 0},
		{"x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := n.NormalizeQuantite(sp(tt.in))
			if tt.want == 0 {
				if got != nil {
					t.Errorf("NormalizeQuantite(%q) = %d, want nil", tt.in, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("NormalizeQuantite(%q) = %v, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	n, _ := newTestNormalizer(t)

	tests := []struct {
		in   string
		want string
	}{
		{"15-03-2024", "2024-03-15"},
		{"15/03/2024", "2024-03-15"},
		{"2024-03-15", "2024-03-15"},
		{"15.03.2024", "2024-03-15"},
		{"15/03/24", "2024-03-15"},
		{"2024/03/15", "2024-03-15"},
		{"15 janvier 2024", "2024-01-15"},
		{"1er mars 2024", "2024-03-01"},
		{"20/06/2024", "2024-06-20"},
		{"31/12/1999", ""},
		{"15/07/2024", ""},
		{"31 février 2024", ""},
		{"pas une date", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := n.NormalizeDate(sp(tt.in))
			if tt.want == "" {
				if got != nil {
					t.Errorf("NormalizeDate(%q) = %v, want nil", tt.in, got)
				}
				return
			}
			if got == nil || got.Format("2006-01-02") != tt.want {
				t.Errorf("NormalizeDate(%q) = %v, want %s", tt.in, got, tt.want)
			}
		})
	}
}

type fakeLookup struct {
	categories map[string]string
	suppliers  map[string][2]string
}

func (f fakeLookup) LookupCategory(supplier, term string) (string, bool) {
	code, ok := f.categories[MappingKey(supplier)+"|"+MappingKey(term)]
	return code, ok
}

func (f fakeLookup) LookupSupplier(name string) (string, string, bool) {
	s, ok := f.suppliers[MappingKey(name)]
	return s[0], s[1], ok
}

func TestNormalizeCategorieEtFournisseur(t *testing.T) {
	n, _ := newTestNormalizer(t)
	lookup := fakeLookup{
		categories: map[string]string{"metro|spiritueux": "ALCOOL"},
		suppliers:  map[string][2]string{"metro cash & carry": {"METRO", "METRO France"}},
	}

	if got := n.NormalizeCategorie(lookup, "METRO", sp("  SPIRITUEUX ")); got != "ALCOOL" {
		t.Errorf("category = %q, want ALCOOL", got)
	}
	if got := n.NormalizeCategorie(lookup, "METRO", sp("Epicerie")); got != UnknownCode {
		t.Errorf("unmapped category = %q, want %s", got, UnknownCode)
	}
	if got := n.NormalizeCategorie(nil, "METRO", sp("Epicerie")); got != UnknownCode {
		t.Errorf("nil lookup = %q, want %s", got, UnknownCode)
	}

	s := n.NormalizeFournisseur(lookup, sp("Metro Cash & Carry"))
	if s == nil || s.Code != "METRO" || s.Name != "METRO France" {
		t.Errorf("mapped supplier = %+v", s)
	}
	s = n.NormalizeFournisseur(lookup, sp("  Grossiste  inconnu "))
	if s == nil || s.Code != UnknownCode || s.Name != "GROSSISTE INCONNU" {
		t.Errorf("fallback supplier = %+v", s)
	}
	if n.NormalizeFournisseur(lookup, nil) != nil {
		t.Error("nil supplier should give nil")
	}
}

func TestSupplierKey(t *testing.T) {
	unknown := UnknownCode
	cases := []struct {
		code, name *string
		fallback   string
		want       string
	}{
		{sp("MET"), sp("METRO FRANCE"), "METRO", "MET"},
		{&unknown, sp("GROSSISTE INCONNU"), "METRO", "GROSSISTE INCONNU"},
		{&unknown, nil, "taiyat", "TAIYAT"},
		{nil, sp("  "), " eurociel ", "EUROCIEL"},
		{nil, nil, "", UnknownCode},
	}
	for _, c := range cases {
		if got := SupplierKey(c.code, c.name, c.fallback); got != c.want {
			t.Errorf("SupplierKey(%v, %v, %q) = %q, want %q", c.code, c.name, c.fallback, got, c.want)
		}
	}
}

func TestNormalizeTauxTVA(t *testing.T) {
	n, _ := newTestNormalizer(t)

	for in, want := range map[string]string{"20": "20", "20%": "20", "5,5": "5.5", "5.50": "5.5", "2,1 %": "2.1", "0": "0"} {
		got := n.NormalizeTauxTVA(sp(in))
		if got == nil || !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("NormalizeTauxTVA(%q) = %v, want %s", in, got, want)
		}
	}
	if got := n.NormalizeTauxTVA(sp("19,6")); got != nil {
		t.Errorf("19,6 should be rejected, got %s", got)
	}
}

func TestCalculateMontants(t *testing.T) {
	prix := decimal.RequireFromString("10.00")
	qty := 3
	rate := decimal.NewFromInt(20)

	m := CalculateMontants(&prix, &qty, &rate)
	if m == nil {
		t.Fatal("expected amounts")
	}
	assertDecimal(t, "HT", m.HT, "30.00")
	assertDecimal(t, "TVA", m.TVA, "6.00")
	assertDecimal(t, "TTC", m.TTC, "36.00")

	// arrondi de chaque étape: 0.125*3 = 0.375 -> 0.38; TVA 5.5% = 0.0209 -> 0.02
	prix = decimal.RequireFromString("0.125")
	rate = decimal.RequireFromString("5.5")
	m = CalculateMontants(&prix, &qty, &rate)
	assertDecimal(t, "HT", m.HT, "0.38")
	assertDecimal(t, "TVA", m.TVA, "0.02")
	assertDecimal(t, "TTC", m.TTC, "0.40")

	// taux absent = 20%
	m = CalculateMontants(&prix, &qty, nil)
	assertDecimal(t, "TVA défaut", m.TVA, "0.08")

	if CalculateMontants(nil, &qty, nil) != nil {
		t.Error("missing price should give nil")
	}
}

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", label, got, want)
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

// ========================================
// Benchmarks
// ========================================

func BenchmarkNormalizeDesignation(b *testing.B) {
	n := New(zap.NewNop())
	in := "WH JACK DANIELS 0,7 L BTL"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = n.NormalizeDesignation(&in)
	}
}

func BenchmarkNormalizePrix(b *testing.B) {
	n := New(zap.NewNop())
	in := "1.234,56 €"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = n.NormalizePrix(&in)
	}
}

func TestFoldText(t *testing.T) {
	for in, want := range map[string]string{
		"Pâté de Campagne": "pate de campagne",
		"CRÈME  Fraîche":   "creme fraiche",
		"Bœuf haché":       "boeuf hache",
		"":                 "",
	} {
		if got := FoldText(in); got != want {
			t.Errorf("FoldText(%q) = %q, want %q", in, got, want)
		}
	}
}
