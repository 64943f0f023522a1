package domain

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"etlfactures/internal/shared/domain"
)

// ExportFormat représente le format d'export
type ExportFormat string

const (
	ExportFormatCSV     ExportFormat = "CSV"
	ExportFormatParquet ExportFormat = "Parquet"
)

// FormatFromPath déduit le format de l'extension; Parquet par défaut
func FormatFromPath(path string) ExportFormat {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ExportFormatCSV
	}
	return ExportFormatParquet
}

// ExportJob représente un export des agrégats produits d'un tenant
type ExportJob struct {
	format    ExportFormat
	tenant    domain.TenantID
	path      string
	createdAt time.Time
}

// NewExportJob crée un nouveau job d'export avec validation
func NewExportJob(format ExportFormat, tenant domain.TenantID, path string) (*ExportJob, error) {
	if format != ExportFormatCSV && format != ExportFormatParquet {
		return nil, errors.New("invalid export format")
	}
	if tenant == "" {
		return nil, errors.New("tenant id cannot be empty")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("export path cannot be empty")
	}
	return &ExportJob{format: format, tenant: tenant, path: path, createdAt: time.Now()}, nil
}

// Format retourne le format d'export
func (j *ExportJob) Format() ExportFormat { return j.format }

// Tenant retourne le tenant exporté
func (j *ExportJob) Tenant() domain.TenantID { return j.tenant }

// Path retourne le fichier de destination
func (j *ExportJob) Path() string { return j.path }

// CreatedAt retourne la date de création
func (j *ExportJob) CreatedAt() time.Time { return j.createdAt }
