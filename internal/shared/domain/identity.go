package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// TenantID identifie le restaurant propriétaire des données.
// Fourni par l'appelant, jamais déduit du contenu des documents.
type TenantID string

// BatchID identifie une exécution du pipeline
type BatchID string

// NewTenantID valide un identifiant de tenant
func NewTenantID(value string) (TenantID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("tenant id cannot be empty")
	}
	return TenantID(value), nil
}

// NewBatchID retourne l'identifiant fourni, ou en génère un si vide
func NewBatchID(value string) BatchID {
	value = strings.TrimSpace(value)
	if value == "" {
		return BatchID(uuid.NewString())
	}
	return BatchID(value)
}

func (t TenantID) String() string { return string(t) }

func (b BatchID) String() string { return string(b) }
