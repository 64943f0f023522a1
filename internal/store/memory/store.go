// Package memory implémente ports.RelationalStore en mémoire, pour les tests
// et les exécutions sans base de données (--driver memory). Il applique les
// mêmes règles que le store SQL: unicité, machine d'état, liens jamais écrasés.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	catalogdomain "etlfactures/internal/catalog/domain"
	invoicedomain "etlfactures/internal/invoices/domain"
	"etlfactures/internal/normalization"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
	stagingdomain "etlfactures/internal/staging/domain"
)

type batchKey struct {
	tenant shareddomain.TenantID
	batch  shareddomain.BatchID
}

// position d'une ligne ODS, unique par batch comme dans le schéma SQL
type invoiceLinePosition struct {
	batch      batchKey
	sourceFile string
	lineNumber int
}

type storedLink struct {
	tenant shareddomain.TenantID
	link   catalogdomain.ReconciliationLink
}

// Store est un RelationalStore en mémoire, sûr pour un usage concurrent
type Store struct {
	mu sync.RWMutex

	batches map[batchKey]*stagingdomain.Batch

	lines       []*stagingdomain.StagingLine
	lineIndex   map[stagingdomain.LineKey]int
	transitions map[batchKey][]stagingdomain.Transition

	categories []*catalogdomain.CategoryMapping
	suppliers  []*catalogdomain.SupplierMapping

	invoices     map[invoicedomain.InvoiceKey]*invoicedomain.Invoice
	invoiceOrder []invoicedomain.InvoiceKey
	invoiceLines map[invoiceLinePosition]invoicedomain.InvoiceKey

	products      map[catalogdomain.ProductKey]*catalogdomain.ProductAggregate
	nextProductID catalogdomain.ProductID
	loads         map[batchKey]time.Time

	ingredients      []*catalogdomain.Ingredient
	nextIngredientID catalogdomain.IngredientID
	links            map[catalogdomain.LinkKey]*storedLink
	linkOrder        []catalogdomain.LinkKey
}

var _ ports.RelationalStore = (*Store)(nil)

// New crée un store vide
func New() *Store {
	return &Store{
		batches:      map[batchKey]*stagingdomain.Batch{},
		lineIndex:    map[stagingdomain.LineKey]int{},
		transitions:  map[batchKey][]stagingdomain.Transition{},
		invoices:     map[invoicedomain.InvoiceKey]*invoicedomain.Invoice{},
		invoiceLines: map[invoiceLinePosition]invoicedomain.InvoiceKey{},
		products:     map[catalogdomain.ProductKey]*catalogdomain.ProductAggregate{},
		loads:        map[batchKey]time.Time{},
		links:        map[catalogdomain.LinkKey]*storedLink{},
	}
}

// Close ne fait rien
func (s *Store) Close() error { return nil }

// ========================================
// Batches
// ========================================

// CreateBatch enregistre un nouveau batch
func (s *Store) CreateBatch(_ context.Context, b *stagingdomain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := batchKey{b.TenantID, b.ID}
	if _, exists := s.batches[k]; exists {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	s.batches[k] = cloneBatch(b)
	return nil
}

// GetBatch retourne un batch ou ports.ErrNotFound
func (s *Store) GetBatch(_ context.Context, tenant shareddomain.TenantID, id shareddomain.BatchID) (*stagingdomain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchKey{tenant, id}]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, ports.ErrNotFound)
	}
	return cloneBatch(b), nil
}

// UpdateBatch met à jour statut et date de fin
func (s *Store) UpdateBatch(_ context.Context, b *stagingdomain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.batches[batchKey{b.TenantID, b.ID}]
	if !ok {
		return fmt.Errorf("batch %s: %w", b.ID, ports.ErrNotFound)
	}
	stored.Status = b.Status
	stored.FinishedAt = b.FinishedAt
	return nil
}

// AppendStep ajoute une entrée au journal d'étapes
func (s *Store) AppendStep(_ context.Context, tenant shareddomain.TenantID, id shareddomain.BatchID, step stagingdomain.StepLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.batches[batchKey{tenant, id}]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, ports.ErrNotFound)
	}
	stored.Steps = append(stored.Steps, step)
	return nil
}

func cloneBatch(b *stagingdomain.Batch) *stagingdomain.Batch {
	out := *b
	out.Steps = append([]stagingdomain.StepLog(nil), b.Steps...)
	return &out
}

// ========================================
// Staging
// ========================================

// InsertLines ignore les lignes dont la clé existe déjà
func (s *Store) InsertLines(_ context.Context, lines []*stagingdomain.StagingLine) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	inserted := 0
	for _, l := range lines {
		if _, exists := s.lineIndex[l.Key()]; exists {
			continue
		}
		stored := l.Clone()
		stored.ID = int64(len(s.lines) + 1)
		stored.CreatedAt, stored.UpdatedAt = now, now
		s.lineIndex[l.Key()] = len(s.lines)
		s.lines = append(s.lines, stored)
		l.ID = stored.ID
		inserted++
	}
	return inserted, nil
}

// ListLines retourne des copies triées par (source_file, line_number)
func (s *Store) ListLines(_ context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, statuses ...stagingdomain.Status) ([]*stagingdomain.StagingLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*stagingdomain.StagingLine
	for _, l := range s.lines {
		if l.TenantID != tenant || l.BatchID != batch || !hasStatus(statuses, l.Status) {
			continue
		}
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceFile != out[j].SourceFile {
			return out[i].SourceFile < out[j].SourceFile
		}
		return out[i].LineNumber < out[j].LineNumber
	})
	return out, nil
}

func hasStatus(statuses []stagingdomain.Status, st stagingdomain.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// UpdateLines applique toutes les mises à jour ou aucune
func (s *Store) UpdateLines(_ context.Context, updates []ports.LineUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := make([]int, len(updates))
	for i, u := range updates {
		idx, ok := s.lineIndex[u.Line.Key()]
		if !ok {
			return fmt.Errorf("line %s:%d: %w", u.Line.SourceFile, u.Line.LineNumber, ports.ErrNotFound)
		}
		stored := s.lines[idx]
		if stored.Status != u.From {
			return fmt.Errorf("line %s:%d is %s, expected %s: %w", stored.SourceFile, stored.LineNumber, stored.Status, u.From, ports.ErrStaleLine)
		}
		if err := stagingdomain.CheckUpdate(u.From, u.Line.Status); err != nil {
			return fmt.Errorf("line %s:%d: %w", stored.SourceFile, stored.LineNumber, err)
		}
		targets[i] = idx
	}

	now := time.Now().UTC()
	for i, u := range updates {
		stored := s.lines[targets[i]]
		next := u.Line.Clone()
		next.ID, next.CreatedAt, next.UpdatedAt = stored.ID, stored.CreatedAt, now
		s.lines[targets[i]] = next
		if u.From != next.Status {
			k := batchKey{next.TenantID, next.BatchID}
			s.transitions[k] = append(s.transitions[k], stagingdomain.Transition{LineID: next.ID, From: u.From, To: next.Status})
		}
	}
	return nil
}

// Transitions retourne le journal des transitions d'un batch
func (s *Store) Transitions(_ context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) ([]stagingdomain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]stagingdomain.Transition(nil), s.transitions[batchKey{tenant, batch}]...), nil
}

// ========================================
// Mappings
// ========================================

// LoadMappings construit la table de référence
func (s *Store) LoadMappings(_ context.Context) (*catalogdomain.MappingTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return catalogdomain.NewMappingTable(s.categories, s.suppliers), nil
}

// SaveCategoryMapping ajoute ou remplace un mapping de catégorie
func (s *Store) SaveCategoryMapping(_ context.Context, m *catalogdomain.CategoryMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.categories {
		if normalization.MappingKey(existing.Supplier()) == normalization.MappingKey(m.Supplier()) &&
			normalization.MappingKey(existing.SourceTerm()) == normalization.MappingKey(m.SourceTerm()) {
			s.categories[i] = m
			return nil
		}
	}
	s.categories = append(s.categories, m)
	return nil
}

// SaveSupplierMapping ajoute ou remplace un mapping fournisseur
func (s *Store) SaveSupplierMapping(_ context.Context, m *catalogdomain.SupplierMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.suppliers {
		if normalization.MappingKey(existing.SourceName()) == normalization.MappingKey(m.SourceName()) {
			s.suppliers[i] = m
			return nil
		}
	}
	s.suppliers = append(s.suppliers, m)
	return nil
}

// ========================================
// ODS
// ========================================

// SaveInvoices ignore les factures déjà enregistrées. Une ligne dont la
// position (batch, fichier, ligne) appartient déjà à une autre facture fait
// échouer l'appel entier, sans rien enregistrer.
func (s *Store) SaveInvoices(_ context.Context, invoices []*invoicedomain.Invoice) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := map[invoiceLinePosition]invoicedomain.InvoiceKey{}
	var pending []*invoicedomain.Invoice
	for _, inv := range invoices {
		k := inv.Key()
		if _, exists := s.invoices[k]; exists {
			continue
		}
		if isPending(pending, k) {
			continue
		}
		for _, l := range inv.Lines() {
			pos := invoiceLinePosition{batchKey{k.TenantID, k.BatchID}, l.SourceFile(), l.LineNumber()}
			owner, taken := s.invoiceLines[pos]
			if !taken {
				owner, taken = claimed[pos]
			}
			if taken {
				return 0, fmt.Errorf("failed to insert lines of invoice %s: line %s:%d already belongs to invoice %s",
					k.NumeroFacture, l.SourceFile(), l.LineNumber(), owner.NumeroFacture)
			}
			claimed[pos] = k
		}
		pending = append(pending, inv)
	}

	for pos, k := range claimed {
		s.invoiceLines[pos] = k
	}
	for _, inv := range pending {
		s.invoices[inv.Key()] = inv
		s.invoiceOrder = append(s.invoiceOrder, inv.Key())
	}
	return len(pending), nil
}

func isPending(pending []*invoicedomain.Invoice, k invoicedomain.InvoiceKey) bool {
	for _, inv := range pending {
		if inv.Key() == k {
			return true
		}
	}
	return false
}

// ListInvoices retourne les factures d'un batch dans l'ordre d'enregistrement
func (s *Store) ListInvoices(_ context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) ([]*invoicedomain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*invoicedomain.Invoice
	for _, k := range s.invoiceOrder {
		if k.TenantID == tenant && k.BatchID == batch {
			out = append(out, s.invoices[k])
		}
	}
	return out, nil
}

// ========================================
// DWH
// ========================================

// IsBatchLoaded indique si le batch a déjà été historisé
func (s *Store) IsBatchLoaded(_ context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loads[batchKey{tenant, batch}]
	return ok, nil
}

// MergeProducts fusionne les agrégats et marque le batch comme chargé
func (s *Store) MergeProducts(_ context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, aggregates []*catalogdomain.ProductAggregate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[catalogdomain.ProductKey]*catalogdomain.ProductAggregate, len(aggregates))
	for _, agg := range aggregates {
		if agg.Key.TenantID != tenant {
			return 0, fmt.Errorf("aggregate tenant %s does not match %s", agg.Key.TenantID, tenant)
		}
		current, ok := staged[agg.Key]
		if !ok {
			if existing, found := s.products[agg.Key]; found {
				copied := *existing
				current = &copied
			}
		}
		if current == nil {
			copied := *agg
			current = &copied
		} else if err := current.Merge(agg); err != nil {
			return 0, err
		}
		staged[agg.Key] = current
	}

	now := time.Now().UTC()
	for k, agg := range staged {
		if agg.ID == 0 {
			s.nextProductID++
			agg.ID = s.nextProductID
		}
		agg.UpdatedAt = now
		s.products[k] = agg
	}
	s.loads[batchKey{tenant, batch}] = now
	return len(staged), nil
}

// ListProducts retourne les agrégats d'un tenant triés par fournisseur puis désignation
func (s *Store) ListProducts(_ context.Context, tenant shareddomain.TenantID) ([]*catalogdomain.ProductAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*catalogdomain.ProductAggregate
	for _, p := range s.products {
		if p.Key.TenantID == tenant {
			copied := *p
			out = append(out, &copied)
		}
	}
	sortProducts(out)
	return out, nil
}

// ListSuppliers retourne les codes fournisseurs présents au DWH
func (s *Store) ListSuppliers(_ context.Context, tenant shareddomain.TenantID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, p := range s.products {
		if p.Key.TenantID == tenant && !seen[p.Key.FournisseurCode] {
			seen[p.Key.FournisseurCode] = true
			out = append(out, p.Key.FournisseurCode)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SearchProducts cherche une sous-chaîne dans les désignations repliées
func (s *Store) SearchProducts(_ context.Context, tenant shareddomain.TenantID, supplier, term string, limit int) ([]*catalogdomain.ProductAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term = normalization.FoldText(term)
	var out []*catalogdomain.ProductAggregate
	for _, p := range s.products {
		if p.Key.TenantID != tenant || p.Key.FournisseurCode != supplier {
			continue
		}
		if strings.Contains(normalization.FoldText(p.Key.DesignationClean), term) {
			copied := *p
			out = append(out, &copied)
		}
	}
	sortProducts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortProducts(ps []*catalogdomain.ProductAggregate) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Key.FournisseurCode != ps[j].Key.FournisseurCode {
			return ps[i].Key.FournisseurCode < ps[j].Key.FournisseurCode
		}
		return ps[i].Key.DesignationClean < ps[j].Key.DesignationClean
	})
}

// ========================================
// Réconciliation
// ========================================

// ListIngredients retourne les ingrédients d'un tenant
func (s *Store) ListIngredients(_ context.Context, tenant shareddomain.TenantID) ([]*catalogdomain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*catalogdomain.Ingredient
	for _, ing := range s.ingredients {
		if ing.TenantID == tenant {
			copied := *ing
			copied.Aliases = append([]string(nil), ing.Aliases...)
			out = append(out, &copied)
		}
	}
	return out, nil
}

// SaveIngredient crée l'ingrédient, ou met à jour celui de même nom
func (s *Store) SaveIngredient(_ context.Context, ing *catalogdomain.Ingredient) (catalogdomain.IngredientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.ingredients {
		if existing.TenantID == ing.TenantID && strings.EqualFold(existing.Nom, ing.Nom) {
			copied := *ing
			copied.ID = existing.ID
			s.ingredients[i] = &copied
			return existing.ID, nil
		}
	}
	s.nextIngredientID++
	copied := *ing
	copied.ID = s.nextIngredientID
	s.ingredients = append(s.ingredients, &copied)
	return copied.ID, nil
}

// ListLinks retourne les liens d'un ingrédient
func (s *Store) ListLinks(_ context.Context, tenant shareddomain.TenantID, ingredient catalogdomain.IngredientID) ([]*catalogdomain.ReconciliationLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*catalogdomain.ReconciliationLink
	for _, k := range s.linkOrder {
		sl := s.links[k]
		if sl.tenant == tenant && k.IngredientID == ingredient {
			copied := sl.link
			out = append(out, &copied)
		}
	}
	return out, nil
}

// InsertLink n'écrase jamais un lien existant
func (s *Store) InsertLink(_ context.Context, tenant shareddomain.TenantID, link *catalogdomain.ReconciliationLink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.Key]; exists {
		return false, nil
	}
	s.links[link.Key] = &storedLink{tenant: tenant, link: *link}
	s.linkOrder = append(s.linkOrder, link.Key)
	return true, nil
}
