// Package ports déclare les capacités dont dépend le pipeline: lecture des
// documents et stockage relationnel. Les implémentations vivent dans
// extraction/infrastructure et store/{memory,sqlstore}.
package ports

import (
	"context"
	"errors"

	catalogdomain "etlfactures/internal/catalog/domain"
	invoicedomain "etlfactures/internal/invoices/domain"
	shareddomain "etlfactures/internal/shared/domain"
	stagingdomain "etlfactures/internal/staging/domain"
)

var (
	// ErrNotFound est retournée quand l'enregistrement demandé n'existe pas
	ErrNotFound = errors.New("not found")
	// ErrStaleLine est retournée quand l'état stocké d'une ligne ne correspond
	// plus à l'état lu avant modification
	ErrStaleLine = errors.New("staging line status changed concurrently")
)

// DocumentSource restitue le texte d'un document, page par page
type DocumentSource interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// BatchRepository persiste les batches et leur journal d'étapes
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *stagingdomain.Batch) error
	GetBatch(ctx context.Context, tenant shareddomain.TenantID, id shareddomain.BatchID) (*stagingdomain.Batch, error)
	UpdateBatch(ctx context.Context, batch *stagingdomain.Batch) error
	AppendStep(ctx context.Context, tenant shareddomain.TenantID, id shareddomain.BatchID, step stagingdomain.StepLog) error
}

// LineUpdate porte une ligne modifiée et l'état lu avant modification.
// Le store refuse la mise à jour si l'état stocké a changé entre-temps ou
// si la transition est interdite.
type LineUpdate struct {
	Line *stagingdomain.StagingLine
	From stagingdomain.Status
}

// StagingRepository est la zone d'atterrissage des lignes extraites
type StagingRepository interface {
	// InsertLines est idempotent sur (batch_id, source_file, line_number)
	InsertLines(ctx context.Context, lines []*stagingdomain.StagingLine) (inserted int, err error)
	// ListLines retourne les lignes triées par (source_file, line_number)
	ListLines(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, statuses ...stagingdomain.Status) ([]*stagingdomain.StagingLine, error)
	UpdateLines(ctx context.Context, updates []LineUpdate) error
	Transitions(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) ([]stagingdomain.Transition, error)
}

// MappingRepository expose les tables de référence catégorie/fournisseur
type MappingRepository interface {
	LoadMappings(ctx context.Context) (*catalogdomain.MappingTable, error)
	SaveCategoryMapping(ctx context.Context, m *catalogdomain.CategoryMapping) error
	SaveSupplierMapping(ctx context.Context, m *catalogdomain.SupplierMapping) error
}

// InvoiceRepository persiste les factures ODS
type InvoiceRepository interface {
	// SaveInvoices est idempotent sur la clé de facture et la position des lignes
	SaveInvoices(ctx context.Context, invoices []*invoicedomain.Invoice) (saved int, err error)
	ListInvoices(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) ([]*invoicedomain.Invoice, error)
}

// ProductRepository persiste les agrégats produit DWH
type ProductRepository interface {
	IsBatchLoaded(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) (bool, error)
	// MergeProducts fusionne les agrégats du batch avec l'existant et marque
	// le batch comme chargé, dans une seule transaction
	MergeProducts(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, aggregates []*catalogdomain.ProductAggregate) (merged int, err error)
	ListProducts(ctx context.Context, tenant shareddomain.TenantID) ([]*catalogdomain.ProductAggregate, error)
	ListSuppliers(ctx context.Context, tenant shareddomain.TenantID) ([]string, error)
	// SearchProducts cherche term (replié en minuscules sans accents) dans les désignations
	SearchProducts(ctx context.Context, tenant shareddomain.TenantID, supplier, term string, limit int) ([]*catalogdomain.ProductAggregate, error)
}

// ReconciliationRepository persiste ingrédients et liens ingrédient/produit
type ReconciliationRepository interface {
	ListIngredients(ctx context.Context, tenant shareddomain.TenantID) ([]*catalogdomain.Ingredient, error)
	SaveIngredient(ctx context.Context, ingredient *catalogdomain.Ingredient) (catalogdomain.IngredientID, error)
	ListLinks(ctx context.Context, tenant shareddomain.TenantID, ingredient catalogdomain.IngredientID) ([]*catalogdomain.ReconciliationLink, error)
	// InsertLink n'écrase jamais un lien existant: created=false s'il existe déjà
	InsertLink(ctx context.Context, tenant shareddomain.TenantID, link *catalogdomain.ReconciliationLink) (created bool, err error)
}

// RelationalStore regroupe toutes les capacités de stockage du pipeline
type RelationalStore interface {
	BatchRepository
	StagingRepository
	MappingRepository
	InvoiceRepository
	ProductRepository
	ReconciliationRepository
	Close() error
}
