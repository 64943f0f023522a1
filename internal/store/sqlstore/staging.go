package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
	stagingdomain "etlfactures/internal/staging/domain"
)

// ========================================
// Batches
// ========================================

// CreateBatch enregistre un nouveau batch
func (s *Store) CreateBatch(ctx context.Context, b *stagingdomain.Batch) error {
	_, err := s.exec(ctx, s.DB(), s.sb.Insert("etl_batches").
		Columns("tenant_id", "batch_id", "source_directory", "status", "started_at", "finished_at").
		Values(string(b.TenantID), string(b.ID), b.SourceDirectory, string(b.Status), b.StartedAt.UTC(), b.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to create batch %s: %w", b.ID, err)
	}
	return nil
}

// GetBatch retourne un batch et son journal d'étapes
func (s *Store) GetBatch(ctx context.Context, tenant shareddomain.TenantID, id shareddomain.BatchID) (*stagingdomain.Batch, error) {
	row, err := s.queryRow(ctx, s.DB(), s.sb.
		Select("source_directory", "status", "started_at", "finished_at").
		From("etl_batches").
		Where(sq.Eq{"tenant_id": string(tenant), "batch_id": string(id)}))
	if err != nil {
		return nil, err
	}

	b := &stagingdomain.Batch{ID: id, TenantID: tenant}
	var (
		status   string
		started  dbTime
		finished dbTime
	)
	if err := row.Scan(&b.SourceDirectory, &status, &started, &finished); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("batch %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read batch %s: %w", id, err)
	}
	b.Status = stagingdomain.BatchStatus(status)
	b.StartedAt = started.Time
	b.FinishedAt = finished.ptr()

	steps, err := s.listSteps(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	b.Steps = steps
	return b, nil
}

func (s *Store) listSteps(ctx context.Context, tenant shareddomain.TenantID, id shareddomain.BatchID) ([]stagingdomain.StepLog, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.
		Select("step", "status", "counts", "message", "started_at", "finished_at").
		From("etl_batch_steps").
		Where(sq.Eq{"tenant_id": string(tenant), "batch_id": string(id)}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []stagingdomain.StepLog
	for rows.Next() {
		var (
			step              stagingdomain.StepLog
			status            string
			counts            []byte
			started, finished dbTime
		)
		if err := rows.Scan(&step.Step, &status, &counts, &step.Message, &started, &finished); err != nil {
			return nil, err
		}
		step.Status = stagingdomain.StepStatus(status)
		step.StartedAt, step.FinishedAt = started.Time, finished.Time
		if len(counts) > 0 {
			if err := json.Unmarshal(counts, &step.Counts); err != nil {
				return nil, fmt.Errorf("invalid step counts: %w", err)
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// UpdateBatch met à jour statut et date de fin
func (s *Store) UpdateBatch(ctx context.Context, b *stagingdomain.Batch) error {
	res, err := s.exec(ctx, s.DB(), s.sb.Update("etl_batches").
		Set("status", string(b.Status)).
		Set("finished_at", b.FinishedAt).
		Where(sq.Eq{"tenant_id": string(b.TenantID), "batch_id": string(b.ID)}))
	if err != nil {
		return fmt.Errorf("failed to update batch %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s: %w", b.ID, ports.ErrNotFound)
	}
	return nil
}

// AppendStep ajoute une entrée au journal d'étapes
func (s *Store) AppendStep(ctx context.Context, tenant shareddomain.TenantID, id shareddomain.BatchID, step stagingdomain.StepLog) error {
	counts, err := json.Marshal(step.Counts)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.DB(), s.sb.Insert("etl_batch_steps").
		Columns("tenant_id", "batch_id", "step", "status", "counts", "message", "started_at", "finished_at").
		Values(string(tenant), string(id), step.Step, string(step.Status), string(counts), step.Message, step.StartedAt.UTC(), step.FinishedAt.UTC()))
	if err != nil {
		return fmt.Errorf("failed to append step %s: %w", step.Step, err)
	}
	return nil
}

// ========================================
// Staging
// ========================================

var lineColumns = []string{
	"id", "tenant_id", "batch_id", "source_file", "line_number", "supplier", "grammar", "status",
	"raw_fields", "raw_line", "designation_clean", "ean", "date_facture", "prix_unitaire", "quantite",
	"poids", "taux_tva", "montant_ligne", "montant_ht_document", "montant_ht", "montant_tva", "montant_ttc",
	"categorie_code", "fournisseur_code", "fournisseur_nom", "validation_errors", "created_at", "updated_at",
}

// InsertLines insère les lignes en ignorant les clés déjà présentes
func (s *Store) InsertLines(ctx context.Context, lines []*stagingdomain.StagingLine) (int, error) {
	inserted := 0
	err := s.InTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, l := range lines {
			raw, err := json.Marshal(l.Raw)
			if err != nil {
				return err
			}
			issues, err := marshalIssues(l.Issues)
			if err != nil {
				return err
			}
			row, err := s.queryRow(ctx, tx, s.sb.Insert("stg_lignes").
				Columns("tenant_id", "batch_id", "source_file", "line_number", "supplier", "grammar", "status",
					"raw_fields", "raw_line", "validation_errors", "created_at", "updated_at").
				Values(string(l.TenantID), string(l.BatchID), l.SourceFile, l.LineNumber, l.Supplier, l.Grammar,
					string(l.Status), string(raw), l.RawLine, issues, now, now).
				Suffix("ON CONFLICT (batch_id, source_file, line_number) DO NOTHING RETURNING id"))
			if err != nil {
				return err
			}
			var id int64
			if err := row.Scan(&id); err != nil {
				if isNoRows(err) {
					continue
				}
				return fmt.Errorf("failed to insert %s:%d: %w", l.SourceFile, l.LineNumber, err)
			}
			l.ID = id
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListLines retourne les lignes d'un batch triées par (source_file, line_number)
func (s *Store) ListLines(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID, statuses ...stagingdomain.Status) ([]*stagingdomain.StagingLine, error) {
	where := sq.Eq{"tenant_id": string(tenant), "batch_id": string(batch)}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, st := range statuses {
			values[i] = string(st)
		}
		where["status"] = values
	}
	rows, err := s.query(ctx, s.DB(), s.sb.Select(lineColumns...).
		From("stg_lignes").
		Where(where).
		OrderBy("source_file", "line_number"))
	if err != nil {
		return nil, fmt.Errorf("failed to list staging lines: %w", err)
	}
	defer rows.Close()

	var out []*stagingdomain.StagingLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLine(rows *sql.Rows) (*stagingdomain.StagingLine, error) {
	var (
		l                                        stagingdomain.StagingLine
		tenant, batch, status                    string
		raw, issues                              []byte
		designation, ean, cat, supCode, supName  sql.NullString
		date, created, updated                   dbTime
		pu, poids, taux, montant, docHT, ht, tva decimal.NullDecimal
		ttc                                      decimal.NullDecimal
		qty                                      sql.NullInt64
	)
	err := rows.Scan(&l.ID, &tenant, &batch, &l.SourceFile, &l.LineNumber, &l.Supplier, &l.Grammar, &status,
		&raw, &l.RawLine, &designation, &ean, &date, &pu, &qty,
		&poids, &taux, &montant, &docHT, &ht, &tva, &ttc,
		&cat, &supCode, &supName, &issues, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to scan staging line: %w", err)
	}
	l.TenantID = shareddomain.TenantID(tenant)
	l.BatchID = shareddomain.BatchID(batch)
	l.Status = stagingdomain.Status(status)
	if err := json.Unmarshal(raw, &l.Raw); err != nil {
		return nil, fmt.Errorf("invalid raw fields on line %d: %w", l.ID, err)
	}
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &l.Issues); err != nil {
			return nil, fmt.Errorf("invalid issues on line %d: %w", l.ID, err)
		}
	}
	l.Norm = stagingdomain.NormalizedFields{
		DesignationClean:  stringPtr(designation),
		EAN:               stringPtr(ean),
		DateFacture:       date.ptr(),
		PrixUnitaire:      decimalPtr(pu),
		Quantite:          intPtr(qty),
		Poids:             decimalPtr(poids),
		TauxTVA:           decimalPtr(taux),
		MontantLigne:      decimalPtr(montant),
		MontantHTDocument: decimalPtr(docHT),
		MontantHT:         decimalPtr(ht),
		MontantTVA:        decimalPtr(tva),
		MontantTTC:        decimalPtr(ttc),
		CategorieCode:     stringPtr(cat),
		FournisseurCode:   stringPtr(supCode),
		FournisseurNom:    stringPtr(supName),
	}
	l.CreatedAt, l.UpdatedAt = created.Time, updated.Time
	return &l, nil
}

// UpdateLines écrit toutes les mises à jour dans une transaction, avec
// contrôle optimiste de l'état lu et journal des transitions
func (s *Store) UpdateLines(ctx context.Context, updates []ports.LineUpdate) error {
	return s.InTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, u := range updates {
			l := u.Line
			if err := stagingdomain.CheckUpdate(u.From, l.Status); err != nil {
				return fmt.Errorf("line %s:%d: %w", l.SourceFile, l.LineNumber, err)
			}
			issues, err := marshalIssues(l.Issues)
			if err != nil {
				return err
			}
			n := l.Norm
			row, err := s.queryRow(ctx, tx, s.sb.Update("stg_lignes").
				Set("status", string(l.Status)).
				Set("designation_clean", n.DesignationClean).
				Set("ean", n.EAN).
				Set("date_facture", n.DateFacture).
				Set("prix_unitaire", nullDecimal(n.PrixUnitaire)).
				Set("quantite", n.Quantite).
				Set("poids", nullDecimal(n.Poids)).
				Set("taux_tva", nullDecimal(n.TauxTVA)).
				Set("montant_ligne", nullDecimal(n.MontantLigne)).
				Set("montant_ht_document", nullDecimal(n.MontantHTDocument)).
				Set("montant_ht", nullDecimal(n.MontantHT)).
				Set("montant_tva", nullDecimal(n.MontantTVA)).
				Set("montant_ttc", nullDecimal(n.MontantTTC)).
				Set("categorie_code", n.CategorieCode).
				Set("fournisseur_code", n.FournisseurCode).
				Set("fournisseur_nom", n.FournisseurNom).
				Set("validation_errors", issues).
				Set("updated_at", now).
				Where(sq.Eq{
					"tenant_id":   string(l.TenantID),
					"batch_id":    string(l.BatchID),
					"source_file": l.SourceFile,
					"line_number": l.LineNumber,
					"status":      string(u.From),
				}).
				Suffix("RETURNING id"))
			if err != nil {
				return err
			}
			var id int64
			if err := row.Scan(&id); err != nil {
				if isNoRows(err) {
					return s.missingLine(ctx, tx, l, u.From)
				}
				return fmt.Errorf("failed to update %s:%d: %w", l.SourceFile, l.LineNumber, err)
			}
			if u.From == l.Status {
				continue
			}
			_, err = s.exec(ctx, tx, s.sb.Insert("stg_transitions").
				Columns("line_id", "tenant_id", "batch_id", "from_status", "to_status", "changed_at").
				Values(id, string(l.TenantID), string(l.BatchID), string(u.From), string(l.Status), now))
			if err != nil {
				return fmt.Errorf("failed to record transition: %w", err)
			}
		}
		return nil
	})
}

// missingLine distingue une ligne absente d'une ligne dont l'état a changé
func (s *Store) missingLine(ctx context.Context, tx *sql.Tx, l *stagingdomain.StagingLine, from stagingdomain.Status) error {
	row, err := s.queryRow(ctx, tx, s.sb.Select("status").From("stg_lignes").Where(sq.Eq{
		"tenant_id":   string(l.TenantID),
		"batch_id":    string(l.BatchID),
		"source_file": l.SourceFile,
		"line_number": l.LineNumber,
	}))
	if err != nil {
		return err
	}
	var current string
	if err := row.Scan(&current); err != nil {
		if isNoRows(err) {
			return fmt.Errorf("line %s:%d: %w", l.SourceFile, l.LineNumber, ports.ErrNotFound)
		}
		return err
	}
	return fmt.Errorf("line %s:%d is %s, expected %s: %w", l.SourceFile, l.LineNumber, current, from, ports.ErrStaleLine)
}

// Transitions retourne le journal des transitions d'un batch
func (s *Store) Transitions(ctx context.Context, tenant shareddomain.TenantID, batch shareddomain.BatchID) ([]stagingdomain.Transition, error) {
	rows, err := s.query(ctx, s.DB(), s.sb.Select("line_id", "from_status", "to_status").
		From("stg_transitions").
		Where(sq.Eq{"tenant_id": string(tenant), "batch_id": string(batch)}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var out []stagingdomain.Transition
	for rows.Next() {
		var (
			t        stagingdomain.Transition
			from, to string
		)
		if err := rows.Scan(&t.LineID, &from, &to); err != nil {
			return nil, err
		}
		t.From, t.To = stagingdomain.Status(from), stagingdomain.Status(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalIssues(issues []stagingdomain.Issue) (string, error) {
	if len(issues) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(issues)
	if err != nil {
		return "", fmt.Errorf("failed to encode issues: %w", err)
	}
	return string(data), nil
}
