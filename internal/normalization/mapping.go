package normalization

import (
	"strings"
)

// MappingLookup résout les termes libres des fournisseurs en codes canoniques.
// La comparaison est insensible à la casse; l'implémentation est responsable
// de la mise en forme des clés.
type MappingLookup interface {
	LookupCategory(supplier, sourceTerm string) (code string, ok bool)
	LookupSupplier(sourceName string) (code, canonicalName string, ok bool)
}

// Supplier est le résultat de NormalizeFournisseur
type Supplier struct {
	Code string
	Name string
}

// NormalizeCategorie retourne le code canonique de la catégorie d'un fournisseur,
// ou UnknownCode si aucun mapping ne correspond
func (n *Normalizer) NormalizeCategorie(lookup MappingLookup, supplier string, raw *string) string {
	term := n.CleanText(raw)
	if term == nil || lookup == nil {
		return UnknownCode
	}
	if code, ok := lookup.LookupCategory(supplier, *term); ok {
		return code
	}
	return UnknownCode
}

// NormalizeFournisseur résout un nom de fournisseur; à défaut, le nom nettoyé
// en majuscules avec le code UnknownCode. nil si le nom est vide.
func (n *Normalizer) NormalizeFournisseur(lookup MappingLookup, raw *string) *Supplier {
	name := n.CleanText(raw)
	if name == nil {
		return nil
	}
	if lookup != nil {
		if code, canonical, ok := lookup.LookupSupplier(*name); ok {
			return &Supplier{Code: code, Name: canonical}
		}
	}
	return &Supplier{Code: UnknownCode, Name: strings.ToUpper(*name)}
}

// MappingKey forme la clé insensible à la casse d'un terme
func MappingKey(s string) string {
	return strings.ToLower(cleanString(s))
}

// SupplierKey retourne le code fournisseur qui scope factures ODS et produits
// DWH: le code canonique s'il est résolu, sinon le nom en majuscules, sinon
// fallback (fournisseur du layout). Deux fournisseurs non mappés ne partagent
// donc jamais UnknownCode.
func SupplierKey(code, name *string, fallback string) string {
	if code != nil && *code != "" && *code != UnknownCode {
		return *code
	}
	for _, candidate := range []*string{name, &fallback} {
		if candidate == nil {
			continue
		}
		if v := strings.ToUpper(cleanString(*candidate)); v != "" {
			return v
		}
	}
	return UnknownCode
}
