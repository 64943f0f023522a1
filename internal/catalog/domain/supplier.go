package domain

import (
	"errors"
	"regexp"
	"strings"
)

// TaxID représente un numéro de TVA intracommunautaire
type TaxID struct {
	value string
}

var taxIDRegex = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{2,13}$`)

// NewTaxID crée un numéro de TVA validé (espaces ignorés)
func NewTaxID(value string) (TaxID, error) {
	value = strings.ToUpper(strings.ReplaceAll(value, " ", ""))
	if !taxIDRegex.MatchString(value) {
		return TaxID{}, errors.New("invalid tax id format")
	}
	return TaxID{value: value}, nil
}

// Value retourne la valeur
func (t TaxID) Value() string {
	return t.value
}

// String retourne la représentation textuelle
func (t TaxID) String() string {
	return t.value
}

// SupplierMapping associe un nom de fournisseur libre à un code canonique
type SupplierMapping struct {
	sourceName    string
	code          string
	canonicalName string
}

// NewSupplierMapping crée un mapping fournisseur avec validation
func NewSupplierMapping(sourceName, code, canonicalName string) (*SupplierMapping, error) {
	if strings.TrimSpace(sourceName) == "" {
		return nil, errors.New("supplier source name cannot be empty")
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("supplier code cannot be empty")
	}
	if strings.TrimSpace(canonicalName) == "" {
		canonicalName = strings.ToUpper(strings.TrimSpace(sourceName))
	}
	return &SupplierMapping{
		sourceName:    sourceName,
		code:          strings.ToUpper(strings.TrimSpace(code)),
		canonicalName: canonicalName,
	}, nil
}

// SourceName retourne le nom source
func (m *SupplierMapping) SourceName() string {
	return m.sourceName
}

// Code retourne le code canonique
func (m *SupplierMapping) Code() string {
	return m.code
}

// CanonicalName retourne le nom canonique
func (m *SupplierMapping) CanonicalName() string {
	return m.canonicalName
}
