package domain

import (
	"errors"
	"strings"
)

// CategoryMapping associe la catégorie libre d'un fournisseur à un code canonique.
// Clé: (supplier, sourceTerm), insensible à la casse.
type CategoryMapping struct {
	supplier   string
	sourceTerm string
	code       string
	label      string
}

// NewCategoryMapping crée un mapping de catégorie avec validation
func NewCategoryMapping(supplier, sourceTerm, code, label string) (*CategoryMapping, error) {
	if strings.TrimSpace(supplier) == "" {
		return nil, errors.New("supplier cannot be empty")
	}
	if strings.TrimSpace(sourceTerm) == "" {
		return nil, errors.New("source term cannot be empty")
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("category code cannot be empty")
	}
	return &CategoryMapping{
		supplier:   supplier,
		sourceTerm: sourceTerm,
		code:       strings.ToUpper(strings.TrimSpace(code)),
		label:      label,
	}, nil
}

// Supplier retourne le fournisseur du mapping
func (m *CategoryMapping) Supplier() string {
	return m.supplier
}

// SourceTerm retourne le terme source
func (m *CategoryMapping) SourceTerm() string {
	return m.sourceTerm
}

// Code retourne le code canonique
func (m *CategoryMapping) Code() string {
	return m.code
}

// Label retourne le libellé du code
func (m *CategoryMapping) Label() string {
	return m.label
}
