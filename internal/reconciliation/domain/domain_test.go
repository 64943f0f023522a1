package domain

import (
	"math"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	catalogdomain "etlfactures/internal/catalog/domain"
)

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Crème fraîche épaisse", []string{"creme", "fraiche", "epaisse"}},
		{"Riz basmati pour risotto", []string{"riz", "basmati", "risotto"}},
		{"Thé vert de Chine", []string{"the", "vert", "chine"}},
		{"Sauce soja / soja", []string{"sauce", "soja"}},
		{"a b", nil},
	}
	for _, tt := range tests {
		if got := ExtractTerms(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractTerms(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSearchTerms(t *testing.T) {
	if got := SearchTerms("Sauce soja salée", []string{"Soja", "ab"}, false); !reflect.DeepEqual(got, []string{"soja"}) {
		t.Errorf("strict = %v", got)
	}
	if got := SearchTerms("Sauce soja salée", []string{"Soja"}, true); !reflect.DeepEqual(got, []string{"soja", "sauce", "salee"}) {
		t.Errorf("loose = %v", got)
	}
	if got := SearchTerms("Sauce soja", nil, false); !reflect.DeepEqual(got, []string{"sauce", "soja"}) {
		t.Errorf("no alias = %v", got)
	}
}

func TestStripPackaging(t *testing.T) {
	tests := map[string]string{
		"Biere Blonde 6x25cl":         "biere blonde",
		"Riz Jasmin 20kg":             "riz jasmin",
		"Rhum Blanc 40% 1l":           "rhum blanc",
		"Vodka 37,5 % vol 70cl":       "vodka",
		"Crevettes Surg. 1kg Sachet":  "crevettes",
		"Coca Cola 24 x 33 cl Carton": "coca cola",
	}
	for in, want := range tests {
		if got := StripPackaging(in); got != want {
			t.Errorf("StripPackaging(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("abc", "abc"); got != 1 {
		t.Errorf("identical = %v", got)
	}
	if got := Ratio("", ""); got != 0 {
		t.Errorf("empty = %v", got)
	}
	// LCS("sauce", "sirop") = 1 ("s"), 2*1/10
	if got := Ratio("sauce", "sirop"); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("sauce/sirop = %v", got)
	}
	if Ratio("crème", "creme") >= 1 {
		t.Error("ratio works on raw runes")
	}
	if got := Similarity("Crème fraîche", "Creme Fraiche Epaisse 1l"); got < 0.60 {
		t.Errorf("similarity = %v, want >= 0.60", got)
	}
}

func TestConversionRatio(t *testing.T) {
	tests := []struct {
		designation string
		unit        catalogdomain.StorageUnit
		want        string
	}{
		{"Riz Jasmin 20kg", catalogdomain.UnitKg, "20"},
		{"Farine 500g", catalogdomain.UnitKg, "0.5"},
		{"Biere 6x25cl", catalogdomain.UnitLitre, "1.5"},
		{"Huile 1.5l", catalogdomain.UnitLitre, "1.5"},
		{"Huile 1.5l", catalogdomain.UnitKg, "1"},
		{"Citron vert", catalogdomain.UnitKg, "1"},
		{"Riz Jasmin 20kg", catalogdomain.UnitPiece, "1"},
	}
	for _, tt := range tests {
		got := ConversionRatio(tt.designation, tt.unit)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ConversionRatio(%q, %s) = %s, want %s", tt.designation, tt.unit, got, tt.want)
		}
	}
}
