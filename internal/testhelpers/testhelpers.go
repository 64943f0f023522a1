package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/joho/godotenv"

	"etlfactures/database"
)

// tables vidées entre deux tests Postgres, dépendances d'abord
var tables = []string{
	"liens_ingredient_produit", "ingredients", "dwh_batch_loads", "dwh_produits",
	"ods_lignes_facture", "ods_factures", "ref_fournisseurs", "ref_categories",
	"stg_transitions", "stg_lignes", "etl_batch_steps", "etl_batches",
}

// SetupSQLite ouvre une base SQLite en mémoire avec le schéma appliqué.
// La connexion est fermée en fin de test.
func SetupSQLite(tb testing.TB) *sql.DB {
	tb.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.SQLite, ":memory:", database.DefaultPool())
	if err != nil {
		tb.Fatalf("Failed to open sqlite: %v", err)
	}
	if err := database.Migrate(ctx, db, database.SQLite); err != nil {
		db.Close()
		tb.Fatalf("Failed to migrate sqlite: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

// SetupPostgres ouvre la base Postgres de test, applique le schéma et vide
// les tables. Le test est ignoré si la base n'est pas joignable.
func SetupPostgres(tb testing.TB) *sql.DB {
	tb.Helper()
	SkipIfNoDatabase(tb)
	ctx := context.Background()

	db, err := database.Open(ctx, database.Postgres, PostgresDSN(), database.DefaultPool())
	if err != nil {
		tb.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(ctx, db, database.Postgres); err != nil {
		db.Close()
		tb.Fatalf("Failed to migrate database: %v", err)
	}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			db.Close()
			tb.Fatalf("Failed to truncate %s: %v", table, err)
		}
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

// PostgresDSN construit la chaîne de connexion de test; TEST_DATABASE_URL prime
func PostgresDSN() string {
	for _, path := range []string{"../../.env", "../../../.env"} {
		_ = godotenv.Load(path)
	}

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "etl"),
		getEnv("DB_PASSWORD", "etl"),
		getEnv("DB_NAME", "etlfactures_test"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

// getEnv récupère une variable d'environnement avec fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// SkipIfNoDatabase skip le test si la base Postgres n'est pas disponible
func SkipIfNoDatabase(tb testing.TB) {
	tb.Helper()

	db, err := sql.Open(string(database.Postgres), PostgresDSN())
	if err != nil {
		tb.Skip("Database not available:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		tb.Skip("Database not available:", err)
	}
}
