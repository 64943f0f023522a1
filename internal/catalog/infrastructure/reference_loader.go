package infrastructure

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"etlfactures/internal/catalog/domain"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
)

// ReferenceData est le contenu d'un fichier de référence: mappings
// catégorie/fournisseur et ingrédients du restaurant
type ReferenceData struct {
	Categories  []CategorySeed   `yaml:"categories"`
	Suppliers   []SupplierSeed   `yaml:"suppliers"`
	Ingredients []IngredientSeed `yaml:"ingredients"`
}

// CategorySeed associe un terme libre d'un fournisseur à un code catégorie
type CategorySeed struct {
	Supplier string `yaml:"supplier"`
	Term     string `yaml:"term"`
	Code     string `yaml:"code"`
	Label    string `yaml:"label"`
}

// SupplierSeed associe un nom de fournisseur lu sur les factures à un code
type SupplierSeed struct {
	Source string `yaml:"source"`
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
}

// IngredientSeed décrit un ingrédient interne
type IngredientSeed struct {
	Nom     string   `yaml:"nom"`
	Unite   string   `yaml:"unite"`
	Aliases []string `yaml:"aliases"`
}

// SeedStats compte les enregistrements chargés
type SeedStats struct {
	Categories  int
	Suppliers   int
	Ingredients int
}

// ReferenceStore est le stockage alimenté par le chargeur
type ReferenceStore interface {
	ports.MappingRepository
	ports.ReconciliationRepository
}

// ParseReference lit un document YAML de référence
func ParseReference(r io.Reader) (*ReferenceData, error) {
	var data ReferenceData
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	return &data, nil
}

// LoadReferenceFile lit le fichier YAML path
func LoadReferenceFile(path string) (*ReferenceData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ParseReference(f)
}

// SeedReference enregistre les données dans store. Les ingrédients sont
// rattachés à tenant. Relancé, il met à jour sans dupliquer.
func SeedReference(ctx context.Context, store ReferenceStore, tenant shareddomain.TenantID, data *ReferenceData) (SeedStats, error) {
	var stats SeedStats
	for i, c := range data.Categories {
		m, err := domain.NewCategoryMapping(c.Supplier, c.Term, c.Code, c.Label)
		if err != nil {
			return stats, fmt.Errorf("categories[%d]: %w", i, err)
		}
		if err := store.SaveCategoryMapping(ctx, m); err != nil {
			return stats, fmt.Errorf("categories[%d]: %w", i, err)
		}
		stats.Categories++
	}
	for i, s := range data.Suppliers {
		m, err := domain.NewSupplierMapping(s.Source, s.Code, s.Name)
		if err != nil {
			return stats, fmt.Errorf("suppliers[%d]: %w", i, err)
		}
		if err := store.SaveSupplierMapping(ctx, m); err != nil {
			return stats, fmt.Errorf("suppliers[%d]: %w", i, err)
		}
		stats.Suppliers++
	}
	if len(data.Ingredients) > 0 && tenant == "" {
		return stats, fmt.Errorf("ingredients require a tenant id")
	}
	for i, in := range data.Ingredients {
		unit, err := domain.ParseStorageUnit(in.Unite)
		if err != nil {
			return stats, fmt.Errorf("ingredients[%d]: %w", i, err)
		}
		ing, err := domain.NewIngredient(0, tenant, in.Nom, unit, in.Aliases)
		if err != nil {
			return stats, fmt.Errorf("ingredients[%d]: %w", i, err)
		}
		if _, err := store.SaveIngredient(ctx, ing); err != nil {
			return stats, fmt.Errorf("ingredients[%d]: %w", i, err)
		}
		stats.Ingredients++
	}
	return stats, nil
}
