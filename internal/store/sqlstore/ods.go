package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	invoicedomain "etlfactures/internal/invoices/domain"
	shareddomain "etlfactures/internal/shared/domain"
)

// SaveInvoices insère les factures et leurs lignes; une facture déjà présente
// pour la même clé est ignorée avec ses lignes
func (s *Store) SaveInvoices(ctx context.Context, invoices []*invoicedomain.Invoice) (int, error) {
	saved := 0
	err := s.InTx(ctx, func(tx *sql.Tx) error {
		for _, inv := range invoices {
			k := inv.Key()
			row, err := s.queryRow(ctx, tx, s.sb.Insert("ods_factures").
				Columns("tenant_id", "batch_id", "numero_facture", "fournisseur_code", "fournisseur_nom",
					"fournisseur_tva", "client", "source_file", "date_facture", "montant_ht", "montant_tva",
					"montant_ttc", "montant_ht_document", "ecart_document", "nb_lignes").
				Values(string(k.TenantID), string(k.BatchID), k.NumeroFacture, k.FournisseurCode, inv.FournisseurNom(),
					inv.FournisseurTVA(), inv.Client(), inv.SourceFile(), inv.DateFacture(),
					inv.MontantHT().Amount().String(), inv.MontantTVA().Amount().String(), inv.MontantTTC().Amount().String(),
					nullDecimal(inv.MontantHTDocument()), inv.EcartDocument(), len(inv.Lines())).
				Suffix("ON CONFLICT (tenant_id, batch_id, numero_facture, fournisseur_code) DO NOTHING RETURNING id"))
			if err != nil {
				return err
			}
			var id int64
			if err := row.Scan(&id); err != nil {
				if isNoRows(err) {
					continue
				}
				return fmt.Errorf("failed to insert invoice %s: %w", k.NumeroFacture, err)
			}
			if err := s.insertInvoiceLines(ctx, tx, id, k, inv.Lines()); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

func (s *Store) insertInvoiceLines(ctx context.Context, tx *sql.Tx, factureID int64, k invoicedomain.InvoiceKey, lines []*invoicedomain.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	b := s.sb.Insert("ods_lignes_facture").
		Columns("facture_id", "tenant_id", "batch_id", "staging_line_id", "source_file", "line_number", "ean",
			"designation_clean", "categorie_code", "quantite", "prix_unitaire", "taux_tva", "montant_ht",
			"montant_tva", "montant_ttc", "promo")
	for _, l := range lines {
		b = b.Values(factureID, string(k.TenantID), string(k.BatchID), l.StagingLineID(), l.SourceFile(), l.LineNumber(),
			l.EAN(), l.DesignationClean(), l.CategorieCode(), l.Quantite().String(), l.PrixUnitaire().Amount().String(),
			l.TauxTVA().String(), l.MontantHT().Amount().String(), l.MontantTVA().Amount().String(),
			l.MontantTTC().Amount().String(), l.Promo())
	}
	if _, err := s.exec(ctx, tx, b); err != nil {
		return fmt.Errorf("failed to insert lines of invoice %s: %w", k.NumeroFacture, err)
	}
	return nil
}

// ListInvoices relit les factures d'un batch avec leurs lignes
func (s *Store) ListInvoices(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) ([]*invoicedomain.Invoice, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.
		Select("id", "numero_facture", "fournisseur_code", "fournisseur_nom", "fournisseur_tva", "client",
			"source_file", "date_facture", "montant_ht_document", "ecart_document").
		From("ods_factures").
		Where(sq.Eq{"tenant_id": string(tenant), "batch_id": string(batch)}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	var (
		invoices []*invoicedomain.Invoice
		byID     = map[int64]*invoicedomain.Invoice{}
	)
	for rows.Next() {
		key := invoicedomain.InvoiceKey{TenantID: tenant, BatchID: batch}
		var (
			id                           int64
			nom, tva, client, sourceFile string
			date                         dbTime
			docHT                        decimal.NullDecimal
			ecart                        bool
		)
		if err := rows.Scan(&id, &key.NumeroFacture, &key.FournisseurCode, &nom, &tva, &client, &sourceFile, &date, &docHT, &ecart); err != nil {
			rows.Close()
			return nil, err
		}
		inv, err := invoicedomain.NewInvoice(key, nom, tva, client, sourceFile, date.Time)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("invalid stored invoice %d: %w", id, err)
		}
		inv.RestoreDocumentCheck(decimalPtr(docHT), ecart)
		invoices = append(invoices, inv)
		byID[id] = inv
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	if err := s.loadInvoiceLines(ctx, tenant, batch, byID); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) loadInvoiceLines(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, byID map[int64]*invoicedomain.Invoice) error {
	rows, err := s.query(ctx, s.DB(), s.sb.
		Select("facture_id", "staging_line_id", "source_file", "line_number", "ean", "designation_clean",
			"categorie_code", "quantite", "prix_unitaire", "taux_tva", "montant_ht", "montant_tva", "montant_ttc", "promo").
		From("ods_lignes_facture").
		Where(sq.Eq{"tenant_id": string(tenant), "batch_id": string(batch)}).
		OrderBy("facture_id", "source_file", "line_number"))
	if err != nil {
		return fmt.Errorf("failed to list invoice lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			factureID, stagingID  int64
			sourceFile            string
			lineNumber            int
			qty                   decimal.Decimal
			ean                   sql.NullString
			designation, category string
			amounts               invoicedomain.LineAmounts
			promo                 bool
		)
		if err := rows.Scan(&factureID, &stagingID, &sourceFile, &lineNumber, &ean, &designation, &category, &qty,
			&amounts.PrixUnitaire, &amounts.TauxTVA, &amounts.HT, &amounts.TVA, &amounts.TTC, &promo); err != nil {
			return err
		}
		inv, ok := byID[factureID]
		if !ok {
			continue
		}
		quantity, err := shareddomain.NewQuantityDecimal(qty)
		if err != nil {
			return err
		}
		line, err := invoicedomain.NewInvoiceLine(stagingID, sourceFile, lineNumber, stringPtr(ean), designation, category, quantity, amounts, promo)
		if err != nil {
			return fmt.Errorf("invalid stored invoice line %s:%d: %w", sourceFile, lineNumber, err)
		}
		if err := inv.AddLine(line); err != nil {
			return err
		}
	}
	return rows.Err()
}
