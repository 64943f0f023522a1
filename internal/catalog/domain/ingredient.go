package domain

import (
	"errors"
	"strings"

	"etlfactures/internal/shared/domain"
)

// StorageUnit est l'unité de stockage d'un ingrédient
type StorageUnit string

const (
	UnitKg    StorageUnit = "kg"
	UnitLitre StorageUnit = "l"
	UnitPiece StorageUnit = "piece"
)

// ParseStorageUnit accepte quelques variantes usuelles
func ParseStorageUnit(value string) (StorageUnit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "kg", "kilo", "kilogramme":
		return UnitKg, nil
	case "l", "litre", "liter":
		return UnitLitre, nil
	case "piece", "pièce", "pce", "unite", "unité", "u", "":
		return UnitPiece, nil
	}
	return "", errors.New("unknown storage unit: " + value)
}

// IngredientID représente l'identifiant d'un ingrédient interne
type IngredientID int64

// Ingredient est un ingrédient du catalogue interne du restaurant
type Ingredient struct {
	ID            IngredientID
	TenantID      domain.TenantID
	Nom           string
	UniteStockage StorageUnit
	// Aliases prennent le pas sur les termes extraits automatiquement du nom
	Aliases []string
}

// NewIngredient crée un ingrédient avec validation
func NewIngredient(id IngredientID, tenant domain.TenantID, nom string, unit StorageUnit, aliases []string) (*Ingredient, error) {
	if tenant == "" {
		return nil, errors.New("tenant id cannot be empty")
	}
	if strings.TrimSpace(nom) == "" {
		return nil, errors.New("ingredient name cannot be empty")
	}
	return &Ingredient{ID: id, TenantID: tenant, Nom: nom, UniteStockage: unit, Aliases: aliases}, nil
}
