// Package config charge la configuration du pipeline: fichier YAML, .env,
// variables d'environnement puis, côté CLI, les flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "ETL_CONFIG"
	databaseURL   = "DATABASE_URL"
	dbDriverEnv   = "DB_DRIVER"
	tenantEnv     = "TENANT_ID"
	logLevelEnv   = "LOG_LEVEL"
	logFormatEnv  = "LOG_FORMAT"
	workersEnv    = "ETL_WORKERS"
)

// Config regroupe les réglages d'un run
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Logging        LoggingConfig        `yaml:"logging"`
	Pipeline       PipelineConfig       `yaml:"pipeline"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Outputs        OutputsConfig        `yaml:"outputs"`
}

// DatabaseConfig décrit la connexion et le pool
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// LoggingConfig règle le logger zap
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PipelineConfig porte les tolérances et le parallélisme
type PipelineConfig struct {
	TenantID          string  `yaml:"tenantId"`
	Workers           int     `yaml:"workers"`
	KeepUnparsed      bool    `yaml:"keepUnparsed"`
	RoundingTolerance float64 `yaml:"roundingTolerance"`
	HeaderTolerance   float64 `yaml:"headerTolerance"`
	DefaultVATRate    float64 `yaml:"defaultVatRate"`
}

// ReconciliationConfig porte les seuils du rapprochement
type ReconciliationConfig struct {
	StrictThreshold float64 `yaml:"strictThreshold"`
	LooseThreshold  float64 `yaml:"looseThreshold"`
	MaxLinks        int     `yaml:"maxLinks"`
}

// OutputsConfig liste les fichiers produits; vide = pas de sortie
type OutputsConfig struct {
	JSONExport string `yaml:"jsonExport"`
	Summary    string `yaml:"summary"`
	Parquet    string `yaml:"parquet"`
	Metrics    string `yaml:"metrics"`
	Stats      string `yaml:"stats"`
}

// Default retourne la configuration par défaut
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Pipeline: PipelineConfig{
			Workers:           4,
			RoundingTolerance: 0.02,
			HeaderTolerance:   0.05,
			DefaultVATRate:    20,
		},
		Reconciliation: ReconciliationConfig{
			StrictThreshold: 0.60,
			LooseThreshold:  0.45,
			MaxLinks:        3,
		},
	}
}

// Load lit .env (s'il existe), le fichier YAML path (ou celui d'ETL_CONFIG)
// puis applique les variables d'environnement. Un fichier explicitement
// demandé mais illisible est une erreur.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: cannot read %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return cfg, fmt.Errorf("config: cannot parse %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(databaseURL); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(dbDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(tenantEnv); v != "" {
		c.Pipeline.TenantID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(workersEnv); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return fmt.Errorf("config: invalid %s %q", workersEnv, v)
		}
		c.Pipeline.Workers = n
	}
	return nil
}

func mergeConfig(base, override Config) Config {
	db := override.Database
	if db.Driver != "" {
		base.Database.Driver = db.Driver
	}
	if db.DSN != "" {
		base.Database.DSN = db.DSN
	}
	if db.MaxOpenConns > 0 {
		base.Database.MaxOpenConns = db.MaxOpenConns
	}
	if db.MaxIdleConns > 0 {
		base.Database.MaxIdleConns = db.MaxIdleConns
	}
	if db.ConnMaxLifetime > 0 {
		base.Database.ConnMaxLifetime = db.ConnMaxLifetime
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	p := override.Pipeline
	if p.TenantID != "" {
		base.Pipeline.TenantID = p.TenantID
	}
	if p.Workers > 0 {
		base.Pipeline.Workers = p.Workers
	}
	if p.KeepUnparsed {
		base.Pipeline.KeepUnparsed = true
	}
	if p.RoundingTolerance > 0 {
		base.Pipeline.RoundingTolerance = p.RoundingTolerance
	}
	if p.HeaderTolerance > 0 {
		base.Pipeline.HeaderTolerance = p.HeaderTolerance
	}
	if p.DefaultVATRate > 0 {
		base.Pipeline.DefaultVATRate = p.DefaultVATRate
	}

	r := override.Reconciliation
	if r.StrictThreshold > 0 {
		base.Reconciliation.StrictThreshold = r.StrictThreshold
	}
	if r.LooseThreshold > 0 {
		base.Reconciliation.LooseThreshold = r.LooseThreshold
	}
	if r.MaxLinks > 0 {
		base.Reconciliation.MaxLinks = r.MaxLinks
	}

	o := override.Outputs
	if o.JSONExport != "" {
		base.Outputs.JSONExport = o.JSONExport
	}
	if o.Summary != "" {
		base.Outputs.Summary = o.Summary
	}
	if o.Parquet != "" {
		base.Outputs.Parquet = o.Parquet
	}
	if o.Metrics != "" {
		base.Outputs.Metrics = o.Metrics
	}
	if o.Stats != "" {
		base.Outputs.Stats = o.Stats
	}
	return base
}

// Decimal convertit une tolérance ou un taux lu en float
func Decimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
