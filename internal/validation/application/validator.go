// Package application porte les étapes de normalisation et de validation des
// lignes de staging. Les échecs au niveau d'un champ ou d'une ligne sont
// enregistrés sur la ligne et comptés, seules les erreurs du store remontent.
package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	catalogdomain "etlfactures/internal/catalog/domain"
	"etlfactures/internal/normalization"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
	stagingdomain "etlfactures/internal/staging/domain"
)

// Unités des lignes pesées: la quantité lue est un poids décimal
const unitKilogram = "KG"

// taille des lots d'écriture vers le store
const updateChunkSize = 500

// Options des contrôles de cohérence
type Options struct {
	// écart toléré entre le montant de ligne lu et qté × PU
	Tolerance decimal.Decimal
	// taux appliqué quand la ligne n'en porte pas
	DefaultVATRate decimal.Decimal
}

// DefaultOptions retourne tolérance 0,02 et TVA 20%
func DefaultOptions() Options {
	return Options{
		Tolerance:      decimal.RequireFromString("0.02"),
		DefaultVATRate: normalization.DefaultTauxTVA,
	}
}

// FileStats compte les résultats d'un fichier source
type FileStats struct {
	Normalized int
	Validated  int
	NormError  int
	ValidError int
	Warnings   int
}

// StageStats résume une exécution d'étape
type StageStats struct {
	Processed int
	Succeeded int
	Failed    int
	Warnings  int
	Files     map[string]*FileStats
}

func newStageStats() StageStats {
	return StageStats{Files: map[string]*FileStats{}}
}

func (s *StageStats) file(name string) *FileStats {
	fs, ok := s.Files[name]
	if !ok {
		fs = &FileStats{}
		s.Files[name] = fs
	}
	return fs
}

// Service applique la normalisation puis la validation aux lignes d'un batch
type Service struct {
	staging    ports.StagingRepository
	mappings   ports.MappingRepository
	normalizer *normalization.Normalizer
	logger     *zap.Logger
	opts       Options
}

// NewService crée le service de validation
func NewService(staging ports.StagingRepository, mappings ports.MappingRepository, normalizer *normalization.Normalizer, opts Options) *Service {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = DefaultOptions().Tolerance
	}
	if opts.DefaultVATRate.IsZero() {
		opts.DefaultVATRate = normalization.DefaultTauxTVA
	}
	return &Service{
		staging:    staging,
		mappings:   mappings,
		normalizer: normalizer,
		logger:     normalizer.Logger(),
		opts:       opts,
	}
}

// ========================================
// Étape 1: normalisation (RAW -> NORMALIZED | NORM_ERROR)
// ========================================

// Normalize traite les lignes RAW du batch. Relancée sur un batch déjà
// normalisé, elle ne trouve aucune ligne et ne modifie rien.
func (s *Service) Normalize(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) (StageStats, error) {
	stats := newStageStats()

	table, err := s.mappings.LoadMappings(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load mappings: %w", err)
	}
	lines, err := s.staging.ListLines(ctx, tenant, batch, stagingdomain.StatusRaw)
	if err != nil {
		return stats, fmt.Errorf("failed to list raw lines: %w", err)
	}

	updates := make([]ports.LineUpdate, 0, len(lines))
	for _, line := range lines {
		from := line.Status
		s.NormalizeLine(line, table)

		fs := stats.file(line.SourceFile)
		stats.Processed++
		if line.Status == stagingdomain.StatusNormalized {
			stats.Succeeded++
			fs.Normalized++
		} else {
			stats.Failed++
			fs.NormError++
		}
		w := countWarnings(line.Issues)
		stats.Warnings += w
		fs.Warnings += w
		updates = append(updates, ports.LineUpdate{Line: line, From: from})
	}

	if err := s.flush(ctx, updates); err != nil {
		return stats, err
	}
	s.logger.Info("normalisation terminée",
		zap.Int("lignes", stats.Processed),
		zap.Int("normalisees", stats.Succeeded),
		zap.Int("norm_error", stats.Failed),
		zap.Int("warnings", stats.Warnings),
	)
	return stats, nil
}

// NormalizeLine remplit les champs normalisés d'une ligne RAW et la fait
// passer en NORMALIZED, ou en NORM_ERROR si la désignation ou un EAN présent
// ne se normalise pas. Les autres échecs sont des warnings.
func (s *Service) NormalizeLine(line *stagingdomain.StagingLine, table normalization.MappingLookup) {
	n := s.normalizer
	raw := line.Raw
	norm := &line.Norm

	norm.DesignationClean = n.NormalizeDesignation(raw.Designation)
	if norm.DesignationClean == nil {
		if isBlank(raw.Designation) {
			line.AddIssue(stagingdomain.NewError("designation", stagingdomain.CodeRequired, "", "désignation absente"))
		} else {
			line.AddIssue(stagingdomain.NewError("designation", stagingdomain.CodeUnparseable, *raw.Designation, "désignation non normalisable"))
		}
	}

	norm.EAN = n.NormalizeEAN(raw.EAN)
	if norm.EAN == nil && !isBlank(raw.EAN) {
		line.AddIssue(stagingdomain.NewError("ean", stagingdomain.CodeUnparseable, *raw.EAN, "EAN irrécupérable"))
	}

	norm.DateFacture = n.NormalizeDate(raw.DateFacture)
	warnIfLost(line, "date_facture", raw.DateFacture, norm.DateFacture == nil, "date illisible ou hors fenêtre")

	norm.PrixUnitaire = n.NormalizePrix(raw.PrixUnitaire)
	warnIfLost(line, "prix_unitaire", raw.PrixUnitaire, norm.PrixUnitaire == nil, "prix unitaire illisible ou hors bornes")

	norm.Quantite = s.normalizeQuantite(line)
	norm.Poids = s.weight(line)
	warnIfLost(line, "quantite", raw.Quantite, norm.Quantite == nil, "quantité illisible ou hors bornes")

	norm.MontantLigne = n.NormalizePrix(raw.MontantLigne)
	warnIfLost(line, "montant_ligne", raw.MontantLigne, norm.MontantLigne == nil, "montant de ligne illisible")

	norm.MontantHTDocument = n.NormalizePrix(raw.MontantHTDocument)

	norm.TauxTVA = n.NormalizeTauxTVA(raw.TauxTVA)
	warnIfLost(line, "taux_tva", raw.TauxTVA, norm.TauxTVA == nil, "taux de TVA inconnu")

	category := n.NormalizeCategorie(table, line.Supplier, raw.Categorie)
	norm.CategorieCode = &category
	if category == normalization.UnknownCode && !isBlank(raw.Categorie) {
		line.AddIssue(stagingdomain.NewWarning("categorie", stagingdomain.CodeUnmapped, *raw.Categorie, "catégorie sans correspondance"))
	}

	supplierName := raw.Fournisseur
	if isBlank(supplierName) && line.Supplier != "" {
		supplierName = &line.Supplier
	}
	if supplier := n.NormalizeFournisseur(table, supplierName); supplier != nil {
		norm.FournisseurCode = &supplier.Code
		norm.FournisseurNom = &supplier.Name
		if supplier.Code == normalization.UnknownCode {
			line.AddIssue(stagingdomain.NewWarning("fournisseur", stagingdomain.CodeUnmapped, *supplierName, "fournisseur sans correspondance"))
		}
	}

	next := stagingdomain.StatusNormalized
	if stagingdomain.HasErrors(line.Issues) {
		next = stagingdomain.StatusNormError
	}
	// une ligne RAW accepte toujours ces deux transitions
	_ = line.TransitionTo(next)
}

// normalizeQuantite arrondit le poids d'une ligne pesée à l'entier le plus
// proche, au minimum 1
func (s *Service) normalizeQuantite(line *stagingdomain.StagingLine) *int {
	weight := s.weight(line)
	if weight == nil {
		return s.normalizer.NormalizeQuantite(line.Raw.Quantite)
	}
	qty := int(weight.Round(0).IntPart())
	if qty < 1 {
		qty = 1
	}
	if _, err := shareddomain.NewQuantity(qty); err != nil {
		return nil
	}
	return &qty
}

// weight retourne le poids des lignes au kilo (QuantityScale décimales), nil sinon
func (s *Service) weight(line *stagingdomain.StagingLine) *decimal.Decimal {
	if line.Raw.Unite == nil || !strings.EqualFold(strings.TrimSpace(*line.Raw.Unite), unitKilogram) {
		return nil
	}
	w := s.normalizer.NormalizePrix(line.Raw.Quantite)
	if w == nil {
		return nil
	}
	q, err := shareddomain.NewQuantityDecimal(*w)
	if err != nil {
		return nil
	}
	value := q.Decimal()
	return &value
}

// ========================================
// Étape 2: validation et enrichissement (NORMALIZED -> VALIDATED | VALID_ERROR)
// ========================================

// Validate traite les lignes NORMALIZED du batch. Relancée, elle ne trouve
// aucune ligne et ne modifie rien.
func (s *Service) Validate(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) (StageStats, error) {
	stats := newStageStats()

	table, err := s.mappings.LoadMappings(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load mappings: %w", err)
	}
	lines, err := s.staging.ListLines(ctx, tenant, batch, stagingdomain.StatusNormalized)
	if err != nil {
		return stats, fmt.Errorf("failed to list normalized lines: %w", err)
	}

	updates := make([]ports.LineUpdate, 0, len(lines))
	for _, line := range lines {
		before := countWarnings(line.Issues)
		from := line.Status
		s.ValidateLine(line)
		Enrich(line, table)

		fs := stats.file(line.SourceFile)
		stats.Processed++
		if line.Status == stagingdomain.StatusValidated {
			stats.Succeeded++
			fs.Validated++
		} else {
			stats.Failed++
			fs.ValidError++
		}
		w := countWarnings(line.Issues) - before
		stats.Warnings += w
		fs.Warnings += w
		updates = append(updates, ports.LineUpdate{Line: line, From: from})
	}

	if err := s.flush(ctx, updates); err != nil {
		return stats, err
	}
	s.logger.Info("validation terminée",
		zap.Int("lignes", stats.Processed),
		zap.Int("validees", stats.Succeeded),
		zap.Int("valid_error", stats.Failed),
	)
	return stats, nil
}

// ValidateLine contrôle les champs obligatoires et la cohérence
// montant = qté × PU, calcule HT/TVA/TTC et fait passer la ligne en
// VALIDATED ou VALID_ERROR
func (s *Service) ValidateLine(line *stagingdomain.StagingLine) {
	raw := line.Raw
	norm := &line.Norm
	var failed bool
	fail := func(issue stagingdomain.Issue) {
		line.AddIssue(issue)
		failed = true
	}

	if isBlank(raw.NumeroFacture) {
		fail(stagingdomain.NewError("numero_facture", stagingdomain.CodeRequired, "", "numéro de facture absent"))
	}
	if norm.DateFacture == nil {
		fail(stagingdomain.NewError("date_facture", stagingdomain.CodeRequired, deref(raw.DateFacture), "date de facture absente ou invalide"))
	}
	if norm.Quantite == nil {
		fail(stagingdomain.NewError("quantite", stagingdomain.CodeRequired, deref(raw.Quantite), "quantité absente ou invalide"))
	}

	// quantité effective: le poids pour les lignes au kilo
	var qty *decimal.Decimal
	if norm.Poids != nil {
		qty = norm.Poids
	} else if norm.Quantite != nil {
		q := decimal.NewFromInt(int64(*norm.Quantite))
		qty = &q
	}

	if norm.PrixUnitaire == nil && isBlank(raw.PrixUnitaire) && norm.MontantLigne != nil && qty != nil {
		pu := norm.MontantLigne.DivRound(*qty, catalogdomain.PrixMoyenScale)
		norm.PrixUnitaire = &pu
		line.AddIssue(stagingdomain.NewWarning("prix_unitaire", stagingdomain.CodeRequired, "", "prix unitaire dérivé du montant de ligne"))
	}
	if norm.PrixUnitaire == nil {
		fail(stagingdomain.NewError("prix_unitaire", stagingdomain.CodeRequired, deref(raw.PrixUnitaire), "prix unitaire absent ou invalide"))
	}

	if norm.PrixUnitaire != nil && qty != nil && norm.MontantLigne != nil {
		computed := norm.PrixUnitaire.Mul(*qty)
		if !shareddomain.WithinTolerance(*norm.MontantLigne, computed, s.opts.Tolerance) {
			fail(stagingdomain.NewError("montant_ligne", stagingdomain.CodeAmountMismatch, deref(raw.MontantLigne),
				"montant %s différent de qté × PU = %s", norm.MontantLigne.StringFixed(2), computed.StringFixed(2)))
		}
	}

	if norm.EAN != nil && !normalization.ValidEANChecksum(*norm.EAN) {
		line.AddIssue(stagingdomain.NewWarning("ean", stagingdomain.CodeChecksumMismatch, *norm.EAN, "clé de contrôle EAN invalide, code conservé"))
	}

	next := stagingdomain.StatusValidated
	if failed {
		next = stagingdomain.StatusValidError
	} else {
		rate := norm.TauxTVA
		if rate == nil {
			rate = &s.opts.DefaultVATRate
		}
		m := normalization.CalculateMontantsDecimal(norm.PrixUnitaire, qty, rate)
		norm.MontantHT, norm.MontantTVA, norm.MontantTTC = &m.HT, &m.TVA, &m.TTC
		if norm.TauxTVA == nil {
			norm.TauxTVA = &m.Taux
		}
	}
	_ = line.TransitionTo(next)
}

// Enrich complète la catégorie et le fournisseur canoniques restés vides ou
// UNKNOWN quand la valeur source existe. Une valeur déjà résolue n'est jamais
// remplacée.
func Enrich(line *stagingdomain.StagingLine, table normalization.MappingLookup) {
	if table == nil {
		return
	}
	norm := &line.Norm
	if isUnresolved(norm.CategorieCode) && !isBlank(line.Raw.Categorie) {
		if code, ok := table.LookupCategory(line.Supplier, strings.TrimSpace(*line.Raw.Categorie)); ok {
			norm.CategorieCode = &code
		}
	}
	if isUnresolved(norm.FournisseurCode) {
		name := line.Raw.Fournisseur
		if isBlank(name) {
			name = &line.Supplier
		}
		if code, canonical, ok := table.LookupSupplier(strings.TrimSpace(*name)); ok {
			norm.FournisseurCode = &code
			norm.FournisseurNom = &canonical
		}
	}
}

func (s *Service) flush(ctx context.Context, updates []ports.LineUpdate) error {
	for start := 0; start < len(updates); start += updateChunkSize {
		end := start + updateChunkSize
		if end > len(updates) {
			end = len(updates)
		}
		if err := s.staging.UpdateLines(ctx, updates[start:end]); err != nil {
			return fmt.Errorf("failed to update staging lines: %w", err)
		}
	}
	return nil
}

func warnIfLost(line *stagingdomain.StagingLine, field string, raw *string, lost bool, msg string) {
	if lost && !isBlank(raw) {
		line.AddIssue(stagingdomain.NewWarning(field, stagingdomain.CodeUnparseable, *raw, msg))
	}
}

func countWarnings(issues []stagingdomain.Issue) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == stagingdomain.SeverityWarning {
			n++
		}
	}
	return n
}

func isUnresolved(code *string) bool {
	return code == nil || *code == "" || *code == normalization.UnknownCode
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
