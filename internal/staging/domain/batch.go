package domain

import (
	"errors"
	"time"

	shareddomain "etlfactures/internal/shared/domain"
)

// BatchStatus représente l'état global d'un batch
type BatchStatus string

const (
	BatchRunning BatchStatus = "RUNNING"
	BatchSuccess BatchStatus = "SUCCESS"
	BatchError   BatchStatus = "ERROR"
)

// StepStatus représente l'issue d'une étape
type StepStatus string

const (
	StepSuccess StepStatus = "SUCCESS"
	StepWarning StepStatus = "WARNING"
	StepError   StepStatus = "ERROR"
	StepSkipped StepStatus = "SKIPPED"
)

// StepLog trace l'exécution d'une étape du pipeline
type StepLog struct {
	Step       string         `json:"step"`
	Status     StepStatus     `json:"status"`
	Counts     map[string]int `json:"counts,omitempty"`
	Message    string         `json:"message,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Batch identifie une exécution du pipeline; jamais supprimé
type Batch struct {
	ID              shareddomain.BatchID
	TenantID        shareddomain.TenantID
	SourceDirectory string
	StartedAt       time.Time
	FinishedAt      *time.Time
	Status          BatchStatus
	Steps           []StepLog
}

// NewBatch crée un batch RUNNING
func NewBatch(id shareddomain.BatchID, tenant shareddomain.TenantID, sourceDirectory string, startedAt time.Time) (*Batch, error) {
	if id == "" {
		return nil, errors.New("batch id cannot be empty")
	}
	if tenant == "" {
		return nil, errors.New("tenant id cannot be empty")
	}
	return &Batch{
		ID:              id,
		TenantID:        tenant,
		SourceDirectory: sourceDirectory,
		StartedAt:       startedAt,
		Status:          BatchRunning,
	}, nil
}

// Finish fixe le statut final du batch
func (b *Batch) Finish(status BatchStatus, at time.Time) error {
	if b.Status != BatchRunning {
		return errors.New("batch is already finished")
	}
	if status == BatchRunning {
		return errors.New("cannot finish a batch as running")
	}
	b.Status = status
	b.FinishedAt = &at
	return nil
}

// Reopen repasse un batch terminé en RUNNING pour une reprise (--skip-extraction)
func (b *Batch) Reopen() {
	b.Status = BatchRunning
	b.FinishedAt = nil
}
