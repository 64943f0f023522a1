package application

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"etlfactures/internal/analytics/domain"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
)

// DefaultTopProducts est la taille par défaut du classement produits
const DefaultTopProducts = 10

// StatsService calcule les statistiques d'achat d'un tenant depuis le DWH
type StatsService struct {
	products ports.ProductRepository
	logger   *zap.Logger
}

// NewStatsService crée le service
func NewStatsService(products ports.ProductRepository, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{products: products, logger: logger}
}

// GetStats charge les agrégats du tenant et calcule les statistiques
func (s *StatsService) GetStats(ctx context.Context, tenant shareddomain.TenantID, topN int) (*domain.PurchaseStats, error) {
	if topN <= 0 {
		topN = DefaultTopProducts
	}
	products, err := s.products.ListProducts(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	stats := domain.ComputeStats(tenant, products, topN)
	s.logger.Info("statistiques d'achat calculées",
		zap.String("tenant_id", string(tenant)),
		zap.Int("produits", stats.NbProduits()),
		zap.String("montant_ht", stats.TotalHT().Amount().StringFixed(2)),
	)
	return stats, nil
}

// WriteStatsFile calcule les statistiques et les écrit en JSON dans path
func (s *StatsService) WriteStatsFile(ctx context.Context, tenant shareddomain.TenantID, topN int, path string) error {
	stats, err := s.GetStats(ctx, tenant, topN)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
