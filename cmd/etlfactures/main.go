// Commande etlfactures: exécute un batch du pipeline sur un répertoire de
// factures fournisseurs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"etlfactures/database"
	analyticsapp "etlfactures/internal/analytics/application"
	cataloginfra "etlfactures/internal/catalog/infrastructure"
	"etlfactures/internal/config"
	extractioninfra "etlfactures/internal/extraction/infrastructure"
	"etlfactures/internal/pipeline"
	"etlfactures/internal/ports"
	reconciliationapp "etlfactures/internal/reconciliation/application"
	shareddomain "etlfactures/internal/shared/domain"
	sharedinfra "etlfactures/internal/shared/infrastructure"
	"etlfactures/internal/store/memory"
	"etlfactures/internal/store/sqlstore"
	validationapp "etlfactures/internal/validation/application"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const memoryDriver = "memory"

type cliFlags struct {
	input          string
	dsn            string
	driver         string
	tenant         string
	batchID        string
	dryRun         bool
	skipExtraction bool
	skipDWH        bool
	forceDWH       bool
	reconcile      bool
	keepUnparsed   bool
	workers        int
	configPath     string
	jsonOut        string
	summaryOut     string
	parquetOut     string
	metricsOut     string
	statsOut       string
	seed           string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var f cliFlags
	fs := flag.NewFlagSet("etlfactures", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.input, "input", "", "Répertoire des factures (PDF ou export texte)")
	fs.StringVar(&f.dsn, "db", "", "DSN de la base (sinon DATABASE_URL)")
	fs.StringVar(&f.driver, "driver", "", "postgres, sqlite ou memory")
	fs.StringVar(&f.tenant, "tenant", "", "Identifiant du restaurant")
	fs.StringVar(&f.batchID, "batch-id", "", "Identifiant du batch (généré si vide)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Ne charge ni le DWH ni le rapprochement")
	fs.BoolVar(&f.skipExtraction, "skip-extraction", false, "Reprend un batch existant sans relire les fichiers")
	fs.BoolVar(&f.skipDWH, "skip-dwh", false, "Saute l'historisation DWH")
	fs.BoolVar(&f.forceDWH, "force-dwh", false, "Historise même un batch déjà chargé")
	fs.BoolVar(&f.reconcile, "reconcile", false, "Lance le rapprochement ingrédients / produits")
	fs.BoolVar(&f.keepUnparsed, "keep-unparsed", false, "Conserve en staging les lignes non parsées")
	fs.IntVar(&f.workers, "workers", 0, "Fichiers extraits en parallèle")
	fs.StringVar(&f.configPath, "config", "", "Fichier YAML de configuration (sinon ETL_CONFIG)")
	fs.StringVar(&f.jsonOut, "json-out", "", "Export JSON des factures parsées")
	fs.StringVar(&f.summaryOut, "summary-out", "", "Résumé du run (stdout par défaut)")
	fs.StringVar(&f.parquetOut, "parquet-out", "", "Export Parquet des agrégats produits")
	fs.StringVar(&f.metricsOut, "metrics-out", "", "Fichier textfile des métriques Prometheus")
	fs.StringVar(&f.statsOut, "stats-out", "", "Statistiques d'achat JSON calculées sur le DWH")
	fs.StringVar(&f.seed, "seed", "", "Données de référence YAML à charger avant le run")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	applyFlags(&cfg, fs, f)

	tenant, err := shareddomain.NewTenantID(cfg.Pipeline.TenantID)
	if err != nil {
		fmt.Fprintln(stderr, "tenant:", err)
		return exitUsage
	}
	if f.input == "" && !f.skipExtraction {
		fmt.Fprintln(stderr, "--input is required unless --skip-extraction is set")
		return exitUsage
	}

	logger, err := sharedinfra.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Error("ouverture du stockage impossible", zap.Error(err))
		return exitFailure
	}
	defer store.Close()

	if f.seed != "" {
		if err := seed(ctx, store, tenant, f.seed, logger); err != nil {
			logger.Error("chargement des données de référence impossible", zap.Error(err))
			return exitFailure
		}
	}

	p := pipeline.New(store, extractioninfra.NewMultiSource(), logger, sharedinfra.NewMetrics())
	summary, runErr := p.Run(ctx, tenant, shareddomain.NewBatchID(f.batchID), pipelineOptions(cfg, f))

	if runErr == nil && cfg.Outputs.Stats != "" {
		stats := analyticsapp.NewStatsService(store, logger)
		if err := stats.WriteStatsFile(ctx, tenant, analyticsapp.DefaultTopProducts, cfg.Outputs.Stats); err != nil {
			logger.Error("écriture des statistiques impossible", zap.Error(err))
			runErr = err
		}
	}

	if err := writeSummary(summary, cfg.Outputs.Summary, stdout); err != nil {
		logger.Error("écriture du résumé impossible", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	if cfg.Outputs.Metrics != "" {
		if err := p.Metrics().WriteTextfile(cfg.Outputs.Metrics); err != nil {
			logger.Error("écriture des métriques impossible", zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}
	if runErr != nil {
		var stageErr *pipeline.StageError
		if errors.As(runErr, &stageErr) {
			logger.Error("batch en échec", zap.String("step", stageErr.Step), zap.Error(stageErr.Err))
		}
		return exitFailure
	}
	return exitOK
}

// applyFlags applique les flags explicitement passés, prioritaires sur le reste
func applyFlags(cfg *config.Config, fs *flag.FlagSet, f cliFlags) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "db":
			cfg.Database.DSN = f.dsn
		case "driver":
			cfg.Database.Driver = f.driver
		case "tenant":
			cfg.Pipeline.TenantID = f.tenant
		case "workers":
			cfg.Pipeline.Workers = f.workers
		case "keep-unparsed":
			cfg.Pipeline.KeepUnparsed = f.keepUnparsed
		case "json-out":
			cfg.Outputs.JSONExport = f.jsonOut
		case "summary-out":
			cfg.Outputs.Summary = f.summaryOut
		case "parquet-out":
			cfg.Outputs.Parquet = f.parquetOut
		case "metrics-out":
			cfg.Outputs.Metrics = f.metricsOut
		case "stats-out":
			cfg.Outputs.Stats = f.statsOut
		}
	})
}

func pipelineOptions(cfg config.Config, f cliFlags) pipeline.Options {
	reco := reconciliationapp.DefaultOptions()
	reco.StrictThreshold = cfg.Reconciliation.StrictThreshold
	reco.LooseThreshold = cfg.Reconciliation.LooseThreshold
	reco.MaxLinks = cfg.Reconciliation.MaxLinks

	return pipeline.Options{
		Input:          f.input,
		SkipExtraction: f.skipExtraction,
		DryRun:         f.dryRun,
		SkipDWH:        f.skipDWH,
		ForceDWH:       f.forceDWH,
		Reconcile:      f.reconcile,
		KeepUnparsed:   cfg.Pipeline.KeepUnparsed,
		Workers:        cfg.Pipeline.Workers,
		Validation: validationapp.Options{
			Tolerance:      config.Decimal(cfg.Pipeline.RoundingTolerance),
			DefaultVATRate: config.Decimal(cfg.Pipeline.DefaultVATRate),
		},
		HeaderTolerance: config.Decimal(cfg.Pipeline.HeaderTolerance),
		Reconciliation:  reco,
		JSONExport:      cfg.Outputs.JSONExport,
		ParquetOut:      cfg.Outputs.Parquet,
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (ports.RelationalStore, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), memoryDriver) {
		return memory.New(), nil
	}
	dialect, err := database.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no DSN for %s driver", dialect)
	}
	db, err := database.Open(ctx, dialect, cfg.DSN, database.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, dialect), nil
}

func seed(ctx context.Context, store cataloginfra.ReferenceStore, tenant shareddomain.TenantID, path string, logger *zap.Logger) error {
	data, err := cataloginfra.LoadReferenceFile(path)
	if err != nil {
		return err
	}
	stats, err := cataloginfra.SeedReference(ctx, store, tenant, data)
	if err != nil {
		return err
	}
	logger.Info("données de référence chargées",
		zap.String("file", path),
		zap.Int("categories", stats.Categories),
		zap.Int("fournisseurs", stats.Suppliers),
		zap.Int("ingredients", stats.Ingredients),
	)
	return nil
}

func writeSummary(summary *pipeline.Summary, path string, stdout io.Writer) error {
	if summary == nil {
		return nil
	}
	if path == "" || path == "-" {
		return summary.WriteJSON(stdout)
	}
	return summary.WriteJSONFile(path)
}
