package pipeline

import (
	"go.uber.org/zap"

	shareddomain "etlfactures/internal/shared/domain"
	sharedinfra "etlfactures/internal/shared/infrastructure"
	stagingdomain "etlfactures/internal/staging/domain"
)

// RunContext porte l'état d'un run à travers les étapes
type RunContext struct {
	Tenant  shareddomain.TenantID
	Batch   *stagingdomain.Batch
	Logger  *zap.Logger
	Metrics *sharedinfra.Metrics
	Summary *Summary
}

func newRunContext(tenant shareddomain.TenantID, batch shareddomain.BatchID, logger *zap.Logger, metrics *sharedinfra.Metrics) *RunContext {
	return &RunContext{
		Tenant: tenant,
		Logger: logger.With(
			zap.String("batch_id", string(batch)),
			zap.String("tenant_id", string(tenant)),
		),
		Metrics: metrics,
		Summary: NewSummary(string(batch), string(tenant)),
	}
}

// BatchID retourne l'identifiant du batch du run
func (rc *RunContext) BatchID() shareddomain.BatchID {
	return shareddomain.BatchID(rc.Summary.BatchID)
}

// StepLogger enrichit le logger du run avec le nom de l'étape
func (rc *RunContext) StepLogger(step string) *zap.Logger {
	return rc.Logger.With(zap.String("step", step))
}
