// Commande seed: applique le schéma puis charge les tables de référence
// (mappings catégories / fournisseurs, ingrédients) depuis un fichier YAML.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"etlfactures/database"
	cataloginfra "etlfactures/internal/catalog/infrastructure"
	"etlfactures/internal/config"
	shareddomain "etlfactures/internal/shared/domain"
	sharedinfra "etlfactures/internal/shared/infrastructure"
	"etlfactures/internal/store/sqlstore"
)

func main() {
	configPath := flag.String("config", "", "Fichier YAML de configuration (sinon ETL_CONFIG)")
	file := flag.String("file", getEnv("SEED_FILE", "configs/reference.yaml"), "Données de référence YAML")
	tenant := flag.String("tenant", "", "Restaurant propriétaire des ingrédients (sinon TENANT_ID)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *tenant != "" {
		cfg.Pipeline.TenantID = *tenant
	}

	logger, err := sharedinfra.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := seed(context.Background(), cfg, *file, logger); err != nil {
		logger.Error("seed en échec", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg config.Config, file string, logger *zap.Logger) error {
	dialect, err := database.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, dialect, cfg.Database.DSN, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	store := sqlstore.New(db, dialect)
	defer store.Close()

	if err := database.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	logger.Info("schéma appliqué", zap.String("driver", string(dialect)))

	data, err := cataloginfra.LoadReferenceFile(file)
	if err != nil {
		return err
	}
	stats, err := cataloginfra.SeedReference(ctx, store, shareddomain.TenantID(cfg.Pipeline.TenantID), data)
	if err != nil {
		return err
	}
	logger.Info("seed terminé",
		zap.String("file", file),
		zap.Int("categories", stats.Categories),
		zap.Int("fournisseurs", stats.Suppliers),
		zap.Int("ingredients", stats.Ingredients),
	)
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
