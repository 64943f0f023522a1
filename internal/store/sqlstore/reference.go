package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	catalogdomain "etlfactures/internal/catalog/domain"
	"etlfactures/internal/normalization"
	shareddomain "etlfactures/internal/shared/domain"
)

// ========================================
// Mappings
// ========================================

// LoadMappings construit la table de référence depuis ref_categories et ref_fournisseurs
func (s *Store) LoadMappings(ctx context.Context) (*catalogdomain.MappingTable, error) {
	categories, err := s.listCategories(ctx)
	if err != nil {
		return nil, err
	}
	suppliers, err := s.listSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	return catalogdomain.NewMappingTable(categories, suppliers), nil
}

func (s *Store) listCategories(ctx context.Context) ([]*catalogdomain.CategoryMapping, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.Select("supplier", "source_term", "code", "label").From("ref_categories"))
	if err != nil {
		return nil, fmt.Errorf("failed to load category mappings: %w", err)
	}
	defer rows.Close()

	var out []*catalogdomain.CategoryMapping
	for rows.Next() {
		var supplier, term, code, label string
		if err := rows.Scan(&supplier, &term, &code, &label); err != nil {
			return nil, err
		}
		m, err := catalogdomain.NewCategoryMapping(supplier, term, code, label)
		if err != nil {
			return nil, fmt.Errorf("invalid category mapping %s/%s: %w", supplier, term, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) listSuppliers(ctx context.Context) ([]*catalogdomain.SupplierMapping, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.Select("source_name", "code", "canonical_name").From("ref_fournisseurs"))
	if err != nil {
		return nil, fmt.Errorf("failed to load supplier mappings: %w", err)
	}
	defer rows.Close()

	var out []*catalogdomain.SupplierMapping
	for rows.Next() {
		var name, code, canonical string
		if err := rows.Scan(&name, &code, &canonical); err != nil {
			return nil, err
		}
		m, err := catalogdomain.NewSupplierMapping(name, code, canonical)
		if err != nil {
			return nil, fmt.Errorf("invalid supplier mapping %s: %w", name, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveCategoryMapping ajoute ou remplace un mapping de catégorie
func (s *Store) SaveCategoryMapping(ctx context.Context, m *catalogdomain.CategoryMapping) error {
	_, err := s.exec(ctx, s.DB(), s.sb.Insert("ref_categories").
		Columns("supplier_key", "term_key", "supplier", "source_term", "code", "label").
		Values(normalization.MappingKey(m.Supplier()), normalization.MappingKey(m.SourceTerm()),
			m.Supplier(), m.SourceTerm(), m.Code(), m.Label()).
		Suffix("ON CONFLICT (supplier_key, term_key) DO UPDATE SET " +
			"supplier = excluded.supplier, source_term = excluded.source_term, code = excluded.code, label = excluded.label"))
	if err != nil {
		return fmt.Errorf("failed to save category mapping: %w", err)
	}
	return nil
}

// SaveSupplierMapping ajoute ou remplace un mapping fournisseur
func (s *Store) SaveSupplierMapping(ctx context.Context, m *catalogdomain.SupplierMapping) error {
	_, err := s.exec(ctx, s.DB(), s.sb.Insert("ref_fournisseurs").
		Columns("source_key", "source_name", "code", "canonical_name").
		Values(normalization.MappingKey(m.SourceName()), m.SourceName(), m.Code(), m.CanonicalName()).
		Suffix("ON CONFLICT (source_key) DO UPDATE SET " +
			"source_name = excluded.source_name, code = excluded.code, canonical_name = excluded.canonical_name"))
	if err != nil {
		return fmt.Errorf("failed to save supplier mapping: %w", err)
	}
	return nil
}

// ========================================
// Réconciliation
// ========================================

// ListIngredients retourne les ingrédients d'un tenant
func (s *Store) ListIngredients(ctx context.Context, tenant shareddomain.TenantID) ([]*catalogdomain.Ingredient, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.Select("id", "nom", "unite_stockage", "aliases").
		From("ingredients").
		Where(sq.Eq{"tenant_id": string(tenant)}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	defer rows.Close()

	var out []*catalogdomain.Ingredient
	for rows.Next() {
		var (
			id      int64
			nom     string
			unit    string
			aliases []byte
		)
		if err := rows.Scan(&id, &nom, &unit, &aliases); err != nil {
			return nil, err
		}
		var list []string
		if len(aliases) > 0 {
			if err := json.Unmarshal(aliases, &list); err != nil {
				return nil, fmt.Errorf("invalid aliases for ingredient %d: %w", id, err)
			}
		}
		ing, err := catalogdomain.NewIngredient(catalogdomain.IngredientID(id), tenant, nom, catalogdomain.StorageUnit(unit), list)
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// SaveIngredient crée l'ingrédient ou met à jour celui de même nom
func (s *Store) SaveIngredient(ctx context.Context, ing *catalogdomain.Ingredient) (catalogdomain.IngredientID, error) {
	aliases := ing.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	data, err := json.Marshal(aliases)
	if err != nil {
		return 0, err
	}
	row, err := s.queryRow(ctx, s.DB(), s.sb.Insert("ingredients").
		Columns("tenant_id", "nom", "unite_stockage", "aliases").
		Values(string(ing.TenantID), ing.Nom, string(ing.UniteStockage), string(data)).
		Suffix("ON CONFLICT (tenant_id, nom) DO UPDATE SET " +
			"unite_stockage = excluded.unite_stockage, aliases = excluded.aliases RETURNING id"))
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to save ingredient %q: %w", ing.Nom, err)
	}
	return catalogdomain.IngredientID(id), nil
}

// ListLinks retourne les liens d'un ingrédient
func (s *Store) ListLinks(ctx context.Context, tenant shareddomain.TenantID, ingredient catalogdomain.IngredientID) ([]*catalogdomain.ReconciliationLink, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.
		Select("produit_id", "fournisseur", "ratio", "is_primary", "score", "source", "created_at").
		From("liens_ingredient_produit").
		Where(sq.Eq{"tenant_id": string(tenant), "ingredient_id": int64(ingredient)}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var out []*catalogdomain.ReconciliationLink
	for rows.Next() {
		var (
			link    catalogdomain.ReconciliationLink
			produit int64
			ratio   decimal.Decimal
			source  string
			created dbTime
		)
		if err := rows.Scan(&produit, &link.Key.Fournisseur, &ratio, &link.IsPrimary, &link.Score, &source, &created); err != nil {
			return nil, err
		}
		link.Key.IngredientID = ingredient
		link.Key.ProduitID = catalogdomain.ProductID(produit)
		link.Ratio = ratio
		link.Source = catalogdomain.LinkSource(source)
		link.CreatedAt = created.Time
		out = append(out, &link)
	}
	return out, rows.Err()
}

// InsertLink n'écrase jamais un lien existant; created=false si la clé existe
func (s *Store) InsertLink(ctx context.Context, tenant shareddomain.TenantID, link *catalogdomain.ReconciliationLink) (bool, error) {
	var created bool
	err := s.InTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, s.sb.Insert("liens_ingredient_produit").
			Columns("tenant_id", "ingredient_id", "produit_id", "fournisseur", "ratio", "is_primary", "score", "source", "created_at").
			Values(string(tenant), int64(link.Key.IngredientID), int64(link.Key.ProduitID), link.Key.Fournisseur,
				link.Ratio.String(), link.IsPrimary, link.Score, string(link.Source), link.CreatedAt.UTC()).
			Suffix("ON CONFLICT (ingredient_id, produit_id, fournisseur) DO NOTHING"))
		if err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	})
	return created, err
}
