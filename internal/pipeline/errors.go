package pipeline

import (
	catalogapp "etlfactures/internal/catalog/application"
)

// ErrorCategory classe les erreurs d'un run. Les trois premières catégories
// sont comptées et n'interrompent jamais le batch; infrastructure l'interrompt.
type ErrorCategory string

const (
	CategoryUnparseableDocument  ErrorCategory = "unparseable_document"
	CategoryFieldNormalization   ErrorCategory = "field_normalization"
	CategoryCrossFieldValidation ErrorCategory = "cross_field_validation"
	CategoryInfrastructure       ErrorCategory = "infrastructure"
)

// Categories liste les catégories dans l'ordre du résumé
func Categories() []ErrorCategory {
	return []ErrorCategory{
		CategoryUnparseableDocument,
		CategoryFieldNormalization,
		CategoryCrossFieldValidation,
		CategoryInfrastructure,
	}
}

// ErrBatchAlreadyHistorized est retournée par l'étape DWH quand le batch est
// déjà chargé; le pipeline la traite comme un avertissement
var ErrBatchAlreadyHistorized = catalogapp.ErrBatchAlreadyHistorized

// StageError porte l'étape en échec d'une erreur d'infrastructure
type StageError struct {
	Step string
	Err  error
}

func (e *StageError) Error() string {
	return "step " + e.Step + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
