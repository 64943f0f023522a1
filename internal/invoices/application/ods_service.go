package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	invoicedomain "etlfactures/internal/invoices/domain"
	"etlfactures/internal/normalization"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
	stagingdomain "etlfactures/internal/staging/domain"
)

// DefaultHeaderTolerance est l'écart toléré entre le total imprimé et la somme des lignes
var DefaultHeaderTolerance = decimal.RequireFromString("0.05")

// LoadStats résume le chargement ODS d'un batch
type LoadStats struct {
	Invoices      int
	Lines         int
	Saved         int
	Discrepancies int
	Skipped       int
	MontantHT     decimal.Decimal
	MontantTVA    decimal.Decimal
	MontantTTC    decimal.Decimal
}

// ODSService construit les factures ODS à partir des lignes VALIDATED
type ODSService struct {
	staging   ports.StagingRepository
	invoices  ports.InvoiceRepository
	logger    *zap.Logger
	tolerance decimal.Decimal
}

// NewODSService crée le service ODS; une tolérance nulle prend la valeur par défaut
func NewODSService(staging ports.StagingRepository, invoices ports.InvoiceRepository, logger *zap.Logger, tolerance decimal.Decimal) *ODSService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tolerance.IsZero() {
		tolerance = DefaultHeaderTolerance
	}
	return &ODSService{staging: staging, invoices: invoices, logger: logger, tolerance: tolerance}
}

// Load regroupe les lignes validées du batch en factures et les enregistre.
// Relancé, il ne réinsère aucune facture.
func (s *ODSService) Load(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) (LoadStats, error) {
	stats := LoadStats{MontantHT: decimal.Zero, MontantTVA: decimal.Zero, MontantTTC: decimal.Zero}

	lines, err := s.staging.ListLines(ctx, tenant, batch, stagingdomain.StatusValidated)
	if err != nil {
		return stats, fmt.Errorf("failed to list validated lines: %w", err)
	}

	invoices, skipped := BuildInvoices(lines, s.tolerance, s.logger)
	stats.Skipped = skipped
	articles := decimal.Zero
	for _, inv := range invoices {
		articles = articles.Add(inv.NbArticles().Decimal())
		stats.Invoices++
		stats.Lines += len(inv.Lines())
		stats.MontantHT = stats.MontantHT.Add(inv.MontantHT().Amount())
		stats.MontantTVA = stats.MontantTVA.Add(inv.MontantTVA().Amount())
		stats.MontantTTC = stats.MontantTTC.Add(inv.MontantTTC().Amount())
		if inv.EcartDocument() {
			stats.Discrepancies++
		}
	}

	saved, err := s.invoices.SaveInvoices(ctx, invoices)
	if err != nil {
		return stats, fmt.Errorf("failed to save invoices: %w", err)
	}
	stats.Saved = saved

	s.logger.Info("chargement ODS terminé",
		zap.Int("factures", stats.Invoices),
		zap.Int("enregistrees", saved),
		zap.Int("lignes", stats.Lines),
		zap.String("articles", articles.String()),
		zap.Int("ecarts", stats.Discrepancies),
		zap.String("montant_ht", stats.MontantHT.StringFixed(2)),
	)
	return stats, nil
}

// BuildInvoices regroupe des lignes VALIDATED par (batch, numéro, fournisseur),
// dans l'ordre des lignes. Les totaux sont la somme des lignes; le total
// imprimé n'est conservé que comme contrôle. Retourne aussi le nombre de
// lignes écartées faute de champs calculés.
func BuildInvoices(lines []*stagingdomain.StagingLine, tolerance decimal.Decimal, logger *zap.Logger) ([]*invoicedomain.Invoice, int) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		order    []invoicedomain.InvoiceKey
		byKey    = map[invoicedomain.InvoiceKey]*invoicedomain.Invoice{}
		document = map[invoicedomain.InvoiceKey]*decimal.Decimal{}
		skipped  int
	)

	for _, l := range lines {
		if l.Status != stagingdomain.StatusValidated {
			continue
		}
		key := invoiceKey(l)
		inv, ok := byKey[key]
		if !ok {
			created, err := invoicedomain.NewInvoice(key, deref(l.Norm.FournisseurNom, l.Supplier), deref(l.Raw.FournisseurTVA, ""),
				deref(l.Raw.Client, ""), l.SourceFile, dateOf(l))
			if err != nil {
				logger.Warn("ligne écartée de l'ODS", zap.String("fichier", l.SourceFile), zap.Int("ligne", l.LineNumber), zap.Error(err))
				skipped++
				continue
			}
			inv = created
			byKey[key] = inv
			order = append(order, key)
		}
		if document[key] == nil && l.Norm.MontantHTDocument != nil {
			document[key] = l.Norm.MontantHTDocument
		}

		line, err := toInvoiceLine(l)
		if err == nil {
			err = inv.AddLine(line)
		}
		if err != nil {
			logger.Warn("ligne écartée de l'ODS", zap.String("fichier", l.SourceFile), zap.Int("ligne", l.LineNumber), zap.Error(err))
			skipped++
		}
	}

	out := make([]*invoicedomain.Invoice, 0, len(order))
	for _, key := range order {
		inv := byKey[key]
		if len(inv.Lines()) == 0 {
			continue
		}
		if inv.CheckDocumentTotal(document[key], tolerance) {
			logger.Warn("écart entre le total imprimé et la somme des lignes",
				zap.String("facture", key.NumeroFacture),
				zap.String("fournisseur", key.FournisseurCode),
				zap.String("total_document", document[key].StringFixed(2)),
				zap.String("total_lignes", inv.MontantHT().Amount().StringFixed(2)),
			)
		}
		out = append(out, inv)
	}
	return out, skipped
}

func invoiceKey(l *stagingdomain.StagingLine) invoicedomain.InvoiceKey {
	return invoicedomain.InvoiceKey{
		TenantID:        l.TenantID,
		BatchID:         l.BatchID,
		NumeroFacture:   strings.TrimSpace(deref(l.Raw.NumeroFacture, "")),
		FournisseurCode: normalization.SupplierKey(l.Norm.FournisseurCode, l.Norm.FournisseurNom, l.Supplier),
	}
}

func toInvoiceLine(l *stagingdomain.StagingLine) (*invoicedomain.InvoiceLine, error) {
	n := l.Norm
	if n.DesignationClean == nil || n.Quantite == nil || n.PrixUnitaire == nil ||
		n.MontantHT == nil || n.MontantTVA == nil || n.MontantTTC == nil || n.TauxTVA == nil {
		return nil, fmt.Errorf("validated line %s:%d has missing computed fields", l.SourceFile, l.LineNumber)
	}
	qty, err := billedQuantity(n)
	if err != nil {
		return nil, err
	}
	return invoicedomain.NewInvoiceLine(
		l.ID, l.SourceFile, l.LineNumber, n.EAN, *n.DesignationClean,
		deref(n.CategorieCode, normalization.UnknownCode), qty,
		invoicedomain.LineAmounts{
			PrixUnitaire: *n.PrixUnitaire,
			TauxTVA:      *n.TauxTVA,
			HT:           *n.MontantHT,
			TVA:          *n.MontantTVA,
			TTC:          *n.MontantTTC,
		},
		l.Raw.Promo,
	)
}

// billedQuantity retourne le poids réel des lignes au kilo, la quantité
// entière sinon; HT = PU × quantité facturée à la tolérance près
func billedQuantity(n stagingdomain.NormalizedFields) (shareddomain.Quantity, error) {
	if n.Poids != nil {
		return shareddomain.NewQuantityDecimal(*n.Poids)
	}
	return shareddomain.NewQuantity(*n.Quantite)
}

func dateOf(l *stagingdomain.StagingLine) time.Time {
	if l.Norm.DateFacture != nil {
		return *l.Norm.DateFacture
	}
	return time.Time{}
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
