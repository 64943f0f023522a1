package domain

import "fmt"

// Severity du descripteur d'anomalie
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Codes d'anomalie
const (
	CodeRequired         = "required"
	CodeUnparseable      = "unparseable"
	CodeOutOfRange       = "out_of_range"
	CodeChecksumMismatch = "checksum_mismatch"
	CodeAmountMismatch   = "amount_mismatch"
	CodeUnmapped         = "unmapped"
)

// Issue décrit une anomalie de normalisation ou de validation sur un champ
type Issue struct {
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Raw      string   `json:"raw,omitempty"`
}

// NewError crée une anomalie bloquante
func NewError(field, code, raw, format string, args ...interface{}) Issue {
	return Issue{Field: field, Code: code, Severity: SeverityError, Message: fmt.Sprintf(format, args...), Raw: raw}
}

// NewWarning crée une anomalie non bloquante
func NewWarning(field, code, raw, format string, args ...interface{}) Issue {
	return Issue{Field: field, Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Raw: raw}
}

// HasErrors indique si au moins une anomalie est bloquante
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
