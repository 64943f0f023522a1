package application

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"etlfactures/internal/export/domain"
	"etlfactures/internal/export/infrastructure"
	"etlfactures/internal/ports"
)

// ExportService exporte les agrégats produits DWH d'un tenant
type ExportService struct {
	products  ports.ProductRepository
	logger    *zap.Logger
	batchSize int
}

// NewExportService crée une nouvelle instance de ExportService
func NewExportService(products ports.ProductRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{products: products, logger: logger, batchSize: 1000}
}

// Export écrit les produits du tenant au format du job et retourne le nombre de lignes
func (s *ExportService) Export(ctx context.Context, job *domain.ExportJob) (int, error) {
	products, err := s.products.ListProducts(ctx, job.Tenant())
	if err != nil {
		return 0, fmt.Errorf("failed to list products: %w", err)
	}
	rows := make([]domain.ProductRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, domain.NewProductRow(p))
	}

	switch job.Format() {
	case domain.ExportFormatParquet:
		err = infrastructure.WriteProductsParquet(job.Path(), rows)
	default:
		err = s.writeCSV(job.Path(), rows)
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("export des produits terminé",
		zap.String("format", string(job.Format())),
		zap.String("path", job.Path()),
		zap.Int("lignes", len(rows)),
	)
	return len(rows), nil
}

func (s *ExportService) writeCSV(path string, rows []domain.ProductRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := infrastructure.WriteProductsCSV(f, rows, s.batchSize); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
