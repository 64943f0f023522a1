package domain

import (
	"etlfactures/internal/normalization"
)

// MappingTable est l'index en mémoire des tables de référence, chargé une fois
// par run. Lecture seule après construction.
type MappingTable struct {
	categories map[string]string
	suppliers  map[string]*SupplierMapping
}

// NewMappingTable indexe les mappings fournis
func NewMappingTable(categories []*CategoryMapping, suppliers []*SupplierMapping) *MappingTable {
	t := &MappingTable{
		categories: make(map[string]string, len(categories)),
		suppliers:  make(map[string]*SupplierMapping, len(suppliers)),
	}
	for _, c := range categories {
		t.categories[categoryKey(c.supplier, c.sourceTerm)] = c.code
	}
	for _, s := range suppliers {
		t.suppliers[normalization.MappingKey(s.sourceName)] = s
	}
	// le code et le nom canonique sont aussi reconnus comme noms source,
	// sans masquer un nom source explicite
	for _, s := range suppliers {
		for _, alias := range []string{s.code, s.canonicalName} {
			if _, exists := t.suppliers[normalization.MappingKey(alias)]; !exists {
				t.suppliers[normalization.MappingKey(alias)] = s
			}
		}
	}
	return t
}

// LookupCategory implémente normalization.MappingLookup
func (t *MappingTable) LookupCategory(supplier, sourceTerm string) (string, bool) {
	code, ok := t.categories[categoryKey(supplier, sourceTerm)]
	return code, ok
}

// LookupSupplier implémente normalization.MappingLookup
func (t *MappingTable) LookupSupplier(sourceName string) (string, string, bool) {
	s, ok := t.suppliers[normalization.MappingKey(sourceName)]
	if !ok {
		return "", "", false
	}
	return s.code, s.canonicalName, true
}

// Len retourne le nombre de mappings catégorie et fournisseur
func (t *MappingTable) Len() (categories, suppliers int) {
	return len(t.categories), len(t.suppliers)
}

func categoryKey(supplier, term string) string {
	return normalization.MappingKey(supplier) + "|" + normalization.MappingKey(term)
}
