package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	catalogdomain "etlfactures/internal/catalog/domain"
	"etlfactures/internal/normalization"
	shareddomain "etlfactures/internal/shared/domain"
)

var productColumns = []string{
	"id", "fournisseur_code", "designation_clean", "ean", "categorie_code", "nb_achats", "quantite_totale",
	"montant_total_ht", "montant_total_ttc", "prix_min", "prix_max", "prix_moyen",
	"premier_achat", "dernier_achat", "updated_at",
}

// IsBatchLoaded indique si le batch a déjà été historisé
func (s *Store) IsBatchLoaded(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) (bool, error) {
	row, err := s.queryRow(ctx, s.DB(), s.sb.Select("COUNT(*)").
		From("dwh_batch_loads").
		Where(sq.Eq{"tenant_id": string(tenant), "batch_id": string(batch)}))
	if err != nil {
		return false, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check batch load: %w", err)
	}
	return n > 0, nil
}

// MergeProducts fusionne les agrégats avec les lignes existantes et marque le
// batch comme chargé, dans une seule transaction
func (s *Store) MergeProducts(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, aggregates []*catalogdomain.ProductAggregate) (int, error) {
	merged := 0
	err := s.InTx(ctx, func(tx *sql.Tx) error {
		staged := make(map[catalogdomain.ProductKey]*catalogdomain.ProductAggregate, len(aggregates))
		var order []catalogdomain.ProductKey
		for _, agg := range aggregates {
			if agg.Key.TenantID != tenant {
				return fmt.Errorf("aggregate tenant %s does not match %s", agg.Key.TenantID, tenant)
			}
			if current, ok := staged[agg.Key]; ok {
				if err := current.Merge(agg); err != nil {
					return err
				}
				continue
			}
			copied := *agg
			staged[agg.Key] = &copied
			order = append(order, agg.Key)
		}

		now := time.Now().UTC()
		for _, k := range order {
			agg := staged[k]
			existing, err := s.findProduct(ctx, tx, k)
			if err != nil {
				return err
			}
			if existing == nil {
				if err := s.insertProduct(ctx, tx, agg, now); err != nil {
					return err
				}
			} else {
				if err := existing.Merge(agg); err != nil {
					return err
				}
				if err := s.updateProduct(ctx, tx, existing, now); err != nil {
					return err
				}
			}
			merged++
		}

		_, err := s.exec(ctx, tx, s.sb.Insert("dwh_batch_loads").
			Columns("tenant_id", "batch_id", "loaded_at").
			Values(string(tenant), string(batch), now).
			Suffix("ON CONFLICT (tenant_id, batch_id) DO NOTHING"))
		if err != nil {
			return fmt.Errorf("failed to record batch load: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return merged, nil
}

func (s *Store) findProduct(ctx context.Context, tx *sql.Tx, k catalogdomain.ProductKey) (*catalogdomain.ProductAggregate, error) {
	rows, err := s.query(ctx, tx, s.sb.Select(productColumns...).
		From("dwh_produits").
		Where(sq.Eq{
			"tenant_id":         string(k.TenantID),
			"fournisseur_code":  k.FournisseurCode,
			"designation_clean": k.DesignationClean,
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to read product: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanProduct(rows, k.TenantID)
}

func (s *Store) insertProduct(ctx context.Context, tx *sql.Tx, a *catalogdomain.ProductAggregate, now time.Time) error {
	_, err := s.exec(ctx, tx, s.sb.Insert("dwh_produits").
		Columns("tenant_id", "fournisseur_code", "designation_clean", "designation_search", "ean", "categorie_code",
			"nb_achats", "quantite_totale", "montant_total_ht", "montant_total_ttc", "prix_min", "prix_max",
			"prix_moyen", "premier_achat", "dernier_achat", "updated_at").
		Values(string(a.Key.TenantID), a.Key.FournisseurCode, a.Key.DesignationClean,
			normalization.FoldText(a.Key.DesignationClean), a.EAN, a.CategorieCode,
			a.NbAchats, a.QuantiteTotale.String(), a.MontantTotalHT.String(), a.MontantTotalTTC.String(),
			a.PrixMin.String(), a.PrixMax.String(), a.PrixMoyen.String(), a.PremierAchat, a.DernierAchat, now))
	if err != nil {
		return fmt.Errorf("failed to insert product %q: %w", a.Key.DesignationClean, err)
	}
	return nil
}

func (s *Store) updateProduct(ctx context.Context, tx *sql.Tx, a *catalogdomain.ProductAggregate, now time.Time) error {
	_, err := s.exec(ctx, tx, s.sb.Update("dwh_produits").
		Set("ean", a.EAN).
		Set("categorie_code", a.CategorieCode).
		Set("nb_achats", a.NbAchats).
		Set("quantite_totale", a.QuantiteTotale.String()).
		Set("montant_total_ht", a.MontantTotalHT.String()).
		Set("montant_total_ttc", a.MontantTotalTTC.String()).
		Set("prix_min", a.PrixMin.String()).
		Set("prix_max", a.PrixMax.String()).
		Set("prix_moyen", a.PrixMoyen.String()).
		Set("premier_achat", a.PremierAchat).
		Set("dernier_achat", a.DernierAchat).
		Set("updated_at", now).
		Where(sq.Eq{"id": int64(a.ID)}))
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", a.ID, err)
	}
	return nil
}

func scanProduct(rows *sql.Rows, tenant shareddomain.TenantID) (*catalogdomain.ProductAggregate, error) {
	var (
		a                         catalogdomain.ProductAggregate
		id                        int64
		ean                       sql.NullString
		premier, dernier, updated dbTime
	)
	err := rows.Scan(&id, &a.Key.FournisseurCode, &a.Key.DesignationClean, &ean, &a.CategorieCode, &a.NbAchats,
		&a.QuantiteTotale, &a.MontantTotalHT, &a.MontantTotalTTC, &a.PrixMin, &a.PrixMax, &a.PrixMoyen,
		&premier, &dernier, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	a.ID = catalogdomain.ProductID(id)
	a.Key.TenantID = tenant
	a.EAN = stringPtr(ean)
	a.PremierAchat, a.DernierAchat, a.UpdatedAt = premier.Time, dernier.Time, updated.Time
	return &a, nil
}

// ListProducts retourne les agrégats d'un tenant triés par fournisseur puis désignation
func (s *Store) ListProducts(ctx context.Context, tenant shareddomain.TenantID) ([]*catalogdomain.ProductAggregate, error) {
	return s.listProducts(ctx, s.sb.Select(productColumns...).
		From("dwh_produits").
		Where(sq.Eq{"tenant_id": string(tenant)}).
		OrderBy("fournisseur_code", "designation_clean"), tenant)
}

// SearchProducts cherche une sous-chaîne dans la désignation repliée (sans accents, minuscules)
func (s *Store) SearchProducts(ctx context.Context, tenant shareddomain.TenantID, supplier, term string, limit int) ([]*catalogdomain.ProductAggregate, error) {
	b := s.sb.Select(productColumns...).
		From("dwh_produits").
		Where(sq.Eq{"tenant_id": string(tenant), "fournisseur_code": supplier}).
		Where(sq.Like{"designation_search": "%" + normalization.FoldText(term) + "%"}).
		OrderBy("designation_clean")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.listProducts(ctx, b, tenant)
}

func (s *Store) listProducts(ctx context.Context, b sq.SelectBuilder, tenant shareddomain.TenantID) ([]*catalogdomain.ProductAggregate, error) {
	rows, err := s.query(ctx, s.DB(), b)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []*catalogdomain.ProductAggregate
	for rows.Next() {
		p, err := scanProduct(rows, tenant)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListSuppliers retourne les codes fournisseurs présents au DWH
func (s *Store) ListSuppliers(ctx context.Context, tenant shareddomain.TenantID) ([]string, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.Select("DISTINCT fournisseur_code").
		From("dwh_produits").
		Where(sq.Eq{"tenant_id": string(tenant)}).
		OrderBy("fournisseur_code"))
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}
