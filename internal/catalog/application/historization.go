package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"etlfactures/internal/catalog/domain"
	invoicedomain "etlfactures/internal/invoices/domain"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
)

// ErrBatchAlreadyHistorized est retournée quand le batch a déjà été chargé au
// DWH et que le rechargement n'est pas forcé
var ErrBatchAlreadyHistorized = errors.New("batch already historized")

// HistorizeStats résume un chargement DWH
type HistorizeStats struct {
	Lines    int
	Products int
}

// Historizer replie les lignes ODS d'un batch en agrégats produits DWH
type Historizer struct {
	invoices ports.InvoiceRepository
	products ports.ProductRepository
	logger   *zap.Logger
}

// NewHistorizer crée le service d'historisation
func NewHistorizer(invoices ports.InvoiceRepository, products ports.ProductRepository, logger *zap.Logger) *Historizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Historizer{invoices: invoices, products: products, logger: logger}
}

// Historize charge le batch au DWH au plus une fois, sauf si force est vrai
// (le rechargement forcé compte alors les achats une seconde fois)
func (h *Historizer) Historize(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, force bool) (HistorizeStats, error) {
	var stats HistorizeStats

	loaded, err := h.products.IsBatchLoaded(ctx, tenant, batch)
	if err != nil {
		return stats, fmt.Errorf("failed to check batch load: %w", err)
	}
	if loaded && !force {
		return stats, fmt.Errorf("batch %s: %w", batch, ErrBatchAlreadyHistorized)
	}
	if loaded {
		h.logger.Warn("rechargement DWH forcé: les achats du batch seront comptés deux fois")
	}

	invoices, err := h.invoices.ListInvoices(ctx, tenant, batch)
	if err != nil {
		return stats, fmt.Errorf("failed to list invoices: %w", err)
	}
	aggregates, lines, err := FoldInvoices(invoices)
	if err != nil {
		return stats, err
	}
	stats.Lines = lines

	merged, err := h.products.MergeProducts(ctx, tenant, batch, aggregates)
	if err != nil {
		return stats, fmt.Errorf("failed to merge products: %w", err)
	}
	stats.Products = merged

	h.logger.Info("historisation DWH terminée", zap.Int("lignes", lines), zap.Int("produits", merged))
	return stats, nil
}

// FoldInvoices regroupe les lignes par produit (tenant, fournisseur,
// désignation). Le résultat est trié par clé et ne dépend pas de l'ordre des lignes.
func FoldInvoices(invoices []*invoicedomain.Invoice) ([]*domain.ProductAggregate, int, error) {
	byKey := map[domain.ProductKey]*domain.ProductAggregate{}
	lines := 0
	for _, inv := range invoices {
		for _, l := range inv.Lines() {
			p := domain.Purchase{
				Key: domain.ProductKey{
					TenantID:         inv.Key().TenantID,
					FournisseurCode:  inv.Key().FournisseurCode,
					DesignationClean: l.DesignationClean(),
				},
				EAN:          l.EAN(),
				Categorie:    l.CategorieCode(),
				PrixUnitaire: l.PrixUnitaire().Amount(),
				Quantite:     l.Quantite().Decimal(),
				MontantHT:    l.MontantHT().Amount(),
				MontantTTC:   l.MontantTTC().Amount(),
				Date:         inv.DateFacture(),
			}
			lines++
			if agg, ok := byKey[p.Key]; ok {
				if err := agg.AddPurchase(p); err != nil {
					return nil, 0, fmt.Errorf("%s:%d: %w", l.SourceFile(), l.LineNumber(), err)
				}
				continue
			}
			agg, err := domain.NewAggregateFromPurchase(p)
			if err != nil {
				return nil, 0, fmt.Errorf("%s:%d: %w", l.SourceFile(), l.LineNumber(), err)
			}
			byKey[p.Key] = agg
		}
	}

	out := make([]*domain.ProductAggregate, 0, len(byKey))
	for _, agg := range byKey {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.FournisseurCode != out[j].Key.FournisseurCode {
			return out[i].Key.FournisseurCode < out[j].Key.FournisseurCode
		}
		return out[i].Key.DesignationClean < out[j].Key.DesignationClean
	})
	return out, lines, nil
}
