// Package pipeline enchaîne les étapes d'un batch: extraction, normalisation,
// validation, chargement ODS, historisation DWH puis rapprochement.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	catalogapp "etlfactures/internal/catalog/application"
	exportapp "etlfactures/internal/export/application"
	exportdomain "etlfactures/internal/export/domain"
	extractionapp "etlfactures/internal/extraction/application"
	extractioninfra "etlfactures/internal/extraction/infrastructure"
	"etlfactures/internal/extraction/parsers"
	invoicesapp "etlfactures/internal/invoices/application"
	"etlfactures/internal/normalization"
	"etlfactures/internal/ports"
	reconciliationapp "etlfactures/internal/reconciliation/application"
	shareddomain "etlfactures/internal/shared/domain"
	sharedinfra "etlfactures/internal/shared/infrastructure"
	stagingdomain "etlfactures/internal/staging/domain"
	validationapp "etlfactures/internal/validation/application"
)

// Noms des étapes du journal de batch
const (
	StepExtraction     = "extraction"
	StepNormalization  = "normalisation"
	StepValidation     = "validation"
	StepODS            = "ods"
	StepDWH            = "dwh"
	StepReconciliation = "rapprochement"
	StepExport         = "export"
)

// Options pilote un run
type Options struct {
	Input          string
	SkipExtraction bool
	// DryRun saute le chargement DWH, le rapprochement et l'export Parquet
	DryRun       bool
	SkipDWH      bool
	ForceDWH     bool
	Reconcile    bool
	KeepUnparsed bool
	Workers      int

	Validation      validationapp.Options
	HeaderTolerance decimal.Decimal
	Reconciliation  reconciliationapp.Options

	// JSONExport reçoit l'export des factures parsées si renseigné
	JSONExport string
	// ParquetOut reçoit l'export des agrégats produits si renseigné
	ParquetOut string
}

// Pipeline exécute un batch sur un store relationnel
type Pipeline struct {
	store   ports.RelationalStore
	source  ports.DocumentSource
	logger  *zap.Logger
	metrics *sharedinfra.Metrics
	now     func() time.Time
}

// stepFunc exécute une étape et retourne son statut, ses compteurs et un message
type stepFunc func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error)

// New crée un pipeline; metrics peut être nil
func New(store ports.RelationalStore, source ports.DocumentSource, logger *zap.Logger, metrics *sharedinfra.Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = sharedinfra.NewMetrics()
	}
	return &Pipeline{store: store, source: source, logger: logger, metrics: metrics, now: time.Now}
}

// Metrics retourne le registre du pipeline
func (p *Pipeline) Metrics() *sharedinfra.Metrics { return p.metrics }

// Run exécute le batch. Les documents illisibles et les lignes en erreur sont
// comptés dans le résumé; seule une panne d'infrastructure est retournée, le
// batch est alors marqué ERROR. Le résumé est toujours retourné.
func (p *Pipeline) Run(ctx context.Context, tenant shareddomain.TenantID, batchID shareddomain.BatchID, opts Options) (*Summary, error) {
	if batchID == "" {
		batchID = shareddomain.NewBatchID("")
	}
	rc := newRunContext(tenant, batchID, p.logger, p.metrics)
	rc.Metrics.BatchStatus.Set(0)

	if err := p.openBatch(ctx, rc, opts); err != nil {
		return p.fail(ctx, rc, &StageError{Step: "batch", Err: err})
	}
	rc.Logger.Info("démarrage du batch",
		zap.String("input", opts.Input),
		zap.Bool("skip_extraction", opts.SkipExtraction),
		zap.Bool("dry_run", opts.DryRun),
	)

	steps := []struct {
		name string
		skip string
		run  stepFunc
	}{
		{StepExtraction, skipIf(opts.SkipExtraction, "--skip-extraction"), p.extract(opts)},
		{StepNormalization, "", p.normalize(opts)},
		{StepValidation, "", p.validate(opts)},
		{StepODS, "", p.loadODS(opts)},
		{StepDWH, firstOf(skipIf(opts.DryRun, "--dry-run"), skipIf(opts.SkipDWH, "--skip-dwh")), p.historize(opts)},
		{StepReconciliation, firstOf(skipIf(opts.DryRun, "--dry-run"), skipIf(!opts.Reconcile, "reconciliation disabled")), p.reconcile(opts)},
		{StepExport, firstOf(skipIf(opts.DryRun, "--dry-run"), skipIf(opts.ParquetOut == "", "no parquet output")), p.export(opts)},
	}
	for _, step := range steps {
		if err := p.runStep(ctx, rc, step.name, step.skip, step.run); err != nil {
			return p.fail(ctx, rc, &StageError{Step: step.name, Err: err})
		}
	}

	if err := rc.Batch.Finish(stagingdomain.BatchSuccess, p.now()); err != nil {
		return p.fail(ctx, rc, &StageError{Step: "batch", Err: err})
	}
	if err := p.store.UpdateBatch(ctx, rc.Batch); err != nil {
		return p.fail(ctx, rc, &StageError{Step: "batch", Err: err})
	}
	rc.Summary.Status = string(stagingdomain.BatchSuccess)
	rc.Metrics.BatchStatus.Set(1)
	rc.Logger.Info("batch terminé",
		zap.Int("fichiers", rc.Summary.FichiersTraites),
		zap.Int("lignes_validees", rc.Summary.LignesValidees),
		zap.Int("lignes_erreur", rc.Summary.LignesErreur),
	)
	return rc.Summary, nil
}

func skipIf(cond bool, reason string) string {
	if cond {
		return reason
	}
	return ""
}

func firstOf(reasons ...string) string {
	for _, r := range reasons {
		if r != "" {
			return r
		}
	}
	return ""
}

// openBatch crée le batch, ou le rouvre pour une reprise sans extraction
func (p *Pipeline) openBatch(ctx context.Context, rc *RunContext, opts Options) error {
	if opts.SkipExtraction {
		batch, err := p.store.GetBatch(ctx, rc.Tenant, rc.BatchID())
		if err != nil {
			return fmt.Errorf("resume batch %s: %w", rc.BatchID(), err)
		}
		batch.Reopen()
		if err := p.store.UpdateBatch(ctx, batch); err != nil {
			return err
		}
		rc.Batch = batch
		return nil
	}
	batch, err := stagingdomain.NewBatch(rc.BatchID(), rc.Tenant, opts.Input, p.now())
	if err != nil {
		return err
	}
	if err := p.store.CreateBatch(ctx, batch); err != nil {
		return err
	}
	rc.Batch = batch
	return nil
}

// fail marque le batch ERROR; l'échec de cette mise à jour est seulement journalisé
func (p *Pipeline) fail(ctx context.Context, rc *RunContext, err error) (*Summary, error) {
	rc.Summary.Status = string(stagingdomain.BatchError)
	rc.Summary.Error = err.Error()
	rc.Summary.Count(CategoryInfrastructure, 1)
	rc.Metrics.BatchStatus.Set(-1)
	rc.Logger.Error("batch en erreur", zap.Error(err))

	if rc.Batch == nil {
		return rc.Summary, err
	}
	if rc.Batch.Status == stagingdomain.BatchRunning {
		if ferr := rc.Batch.Finish(stagingdomain.BatchError, p.now()); ferr != nil {
			rc.Logger.Error("impossible de clore le batch", zap.Error(ferr))
			return rc.Summary, err
		}
	}
	if uerr := p.store.UpdateBatch(context.WithoutCancel(ctx), rc.Batch); uerr != nil {
		rc.Logger.Error("impossible d'enregistrer le statut ERROR", zap.Error(uerr))
	}
	return rc.Summary, err
}

// runStep exécute une étape, mesure sa durée et l'ajoute au journal du batch
func (p *Pipeline) runStep(
	ctx context.Context,
	rc *RunContext,
	name, skip string,
	run stepFunc,
) error {
	log := rc.StepLogger(name)
	entry := stagingdomain.StepLog{Step: name, StartedAt: p.now()}

	var err error
	if skip != "" {
		entry.Status = stagingdomain.StepSkipped
		entry.Message = skip
		log.Info("étape ignorée", zap.String("raison", skip))
	} else {
		timer := time.Now()
		entry.Status, entry.Counts, entry.Message, err = run(ctx, rc, log)
		rc.Metrics.StageDuration.WithLabelValues(name).Observe(time.Since(timer).Seconds())
		if err != nil {
			entry.Status = stagingdomain.StepError
			entry.Message = err.Error()
		}
	}
	entry.FinishedAt = p.now()
	rc.Summary.Steps = append(rc.Summary.Steps, entry)

	if aerr := p.store.AppendStep(ctx, rc.Tenant, rc.BatchID(), entry); aerr != nil && err == nil {
		err = fmt.Errorf("append step log: %w", aerr)
	}
	return err
}

// ========================================
// Étapes
// ========================================

func (p *Pipeline) extract(opts Options) stepFunc {
	return func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error) {
		extractor := extractionapp.NewExtractor(p.source, parsers.DefaultRegistry(opts.KeepUnparsed), opts.Workers, log)
		result, err := extractor.ExtractDirectory(ctx, opts.Input)
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}

		s := rc.Summary
		inserted := 0
		for _, fr := range result.Files {
			fs := s.File(fr.SourceFile)
			fs.Lignes = fr.Lines
			fs.NonParsees = fr.Unparsed
			switch {
			case fr.Err != nil:
				fs.Error = fr.Err.Error()
			case fr.Unreadable:
				fs.Error = fr.Warning
			}
			if fs.Error != "" {
				s.FichiersEnErreur++
				s.Count(CategoryUnparseableDocument, 1)
				continue
			}
			lines, err := extractionapp.ToStagingLines(rc.Tenant, rc.BatchID(), fr)
			if err != nil {
				return stagingdomain.StepError, nil, "", err
			}
			n, err := p.store.InsertLines(ctx, lines)
			if err != nil {
				return stagingdomain.StepError, nil, "", fmt.Errorf("insert staging lines of %s: %w", fr.SourceFile, err)
			}
			inserted += n
		}
		st := result.Stats
		s.FichiersTraites = st.Files
		s.NbFactures = st.Invoices
		s.LignesExtraites = st.Lines
		s.LignesNonParsees = st.Unparsed

		rc.Metrics.FilesProcessed.Add(float64(st.Files))
		rc.Metrics.FilesFailed.Add(float64(s.FichiersEnErreur))
		rc.Metrics.LinesExtracted.Add(float64(st.Lines))
		rc.Metrics.LinesUnparsed.Add(float64(st.Unparsed))

		if opts.JSONExport != "" {
			if err := extractioninfra.WriteInvoicesJSONFile(opts.JSONExport, result.Invoices()); err != nil {
				return stagingdomain.StepError, nil, "", err
			}
			log.Info("export JSON des factures écrit", zap.String("path", opts.JSONExport))
		}

		counts := map[string]int{
			"fichiers":    st.Files,
			"en_erreur":   s.FichiersEnErreur,
			"factures":    st.Invoices,
			"lignes":      st.Lines,
			"non_parsees": st.Unparsed,
			"inserees":    inserted,
		}
		if s.FichiersEnErreur > 0 || st.Unparsed > 0 {
			return stagingdomain.StepWarning, counts, fmt.Sprintf("%d file(s) unusable", s.FichiersEnErreur), nil
		}
		return stagingdomain.StepSuccess, counts, "", nil
	}
}

func (p *Pipeline) validationService(opts Options, log *zap.Logger) *validationapp.Service {
	return validationapp.NewService(p.store, p.store, normalization.New(log), opts.Validation)
}

func (p *Pipeline) normalize(opts Options) stepFunc {
	return func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error) {
		stats, err := p.validationService(opts, log).Normalize(ctx, rc.Tenant, rc.BatchID())
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}
		s := rc.Summary
		s.LignesNormalisees += stats.Succeeded
		s.LignesErreur += stats.Failed
		s.Count(CategoryFieldNormalization, stats.Failed)
		for name, fs := range stats.Files {
			f := s.File(name)
			f.NormError += fs.NormError
			f.Warnings += fs.Warnings
		}
		rc.Metrics.LinesErrored.WithLabelValues(string(CategoryFieldNormalization)).Add(float64(stats.Failed))
		return stageStatus(stats), stageCounts(stats), "", nil
	}
}

func (p *Pipeline) validate(opts Options) stepFunc {
	return func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error) {
		stats, err := p.validationService(opts, log).Validate(ctx, rc.Tenant, rc.BatchID())
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}
		s := rc.Summary
		s.LignesValidees += stats.Succeeded
		s.LignesErreur += stats.Failed
		s.Count(CategoryCrossFieldValidation, stats.Failed)
		for name, fs := range stats.Files {
			f := s.File(name)
			f.ValidError += fs.ValidError
			f.Warnings += fs.Warnings
		}
		rc.Metrics.LinesValidated.Add(float64(stats.Succeeded))
		rc.Metrics.LinesErrored.WithLabelValues(string(CategoryCrossFieldValidation)).Add(float64(stats.Failed))
		return stageStatus(stats), stageCounts(stats), "", nil
	}
}

func stageStatus(stats validationapp.StageStats) stagingdomain.StepStatus {
	if stats.Failed > 0 || stats.Warnings > 0 {
		return stagingdomain.StepWarning
	}
	return stagingdomain.StepSuccess
}

func stageCounts(stats validationapp.StageStats) map[string]int {
	return map[string]int{
		"lignes":   stats.Processed,
		"succes":   stats.Succeeded,
		"erreurs":  stats.Failed,
		"warnings": stats.Warnings,
	}
}

func (p *Pipeline) loadODS(opts Options) stepFunc {
	return func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error) {
		stats, err := invoicesapp.NewODSService(p.store, p.store, log, opts.HeaderTolerance).Load(ctx, rc.Tenant, rc.BatchID())
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}
		s := rc.Summary
		if opts.SkipExtraction {
			s.NbFactures = stats.Invoices
		}
		s.MontantTotalHT = stats.MontantHT
		s.MontantTotalTVA = stats.MontantTVA
		s.MontantTotalTTC = stats.MontantTTC

		counts := map[string]int{
			"factures":     stats.Invoices,
			"enregistrees": stats.Saved,
			"lignes":       stats.Lines,
			"ecarts":       stats.Discrepancies,
			"ignorees":     stats.Skipped,
		}
		if stats.Discrepancies > 0 || stats.Skipped > 0 {
			return stagingdomain.StepWarning, counts, fmt.Sprintf("%d invoice total discrepancies", stats.Discrepancies), nil
		}
		return stagingdomain.StepSuccess, counts, "", nil
	}
}

func (p *Pipeline) historize(opts Options) stepFunc {
	return func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error) {
		stats, err := catalogapp.NewHistorizer(p.store, p.store, log).Historize(ctx, rc.Tenant, rc.BatchID(), opts.ForceDWH)
		if errors.Is(err, ErrBatchAlreadyHistorized) {
			log.Warn("batch déjà historisé, chargement DWH ignoré (--force-dwh pour recharger)")
			return stagingdomain.StepWarning, nil, err.Error(), nil
		}
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}
		rc.Summary.ProduitsDWH = stats.Products
		return stagingdomain.StepSuccess, map[string]int{"lignes": stats.Lines, "produits": stats.Products}, "", nil
	}
}

func (p *Pipeline) reconcile(opts Options) stepFunc {
	return func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error) {
		engine := reconciliationapp.NewEngine(p.store, p.store, nil, log, opts.Reconciliation)
		defer engine.Close()
		stats, err := engine.Reconcile(ctx, rc.Tenant)
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}
		rc.Summary.LiensCrees = stats.LinksCreated
		return stagingdomain.StepSuccess, map[string]int{
			"ingredients": stats.Ingredients,
			"rapproches":  stats.Matched,
			"liens_crees": stats.LinksCreated,
			"existants":   stats.LinksSkipped,
		}, "", nil
	}
}

func (p *Pipeline) export(opts Options) stepFunc {
	return func(ctx context.Context, rc *RunContext, log *zap.Logger) (stagingdomain.StepStatus, map[string]int, string, error) {
		job, err := exportdomain.NewExportJob(exportdomain.FormatFromPath(opts.ParquetOut), rc.Tenant, opts.ParquetOut)
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}
		n, err := exportapp.NewExportService(p.store, log).Export(ctx, job)
		if err != nil {
			return stagingdomain.StepError, nil, "", err
		}
		return stagingdomain.StepSuccess, map[string]int{"produits": n}, "", nil
	}
}
