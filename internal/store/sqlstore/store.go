// Package sqlstore implémente ports.RelationalStore sur PostgreSQL (lib/pq)
// ou SQLite (modernc.org/sqlite). Toutes les requêtes sont construites avec
// squirrel, le format des placeholders dépend du dialecte.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"etlfactures/database"
	"etlfactures/internal/ports"
	sharedinfra "etlfactures/internal/shared/infrastructure"
)

// Store est le RelationalStore SQL
type Store struct {
	sharedinfra.BaseRepository
	dialect database.Dialect
	sb      sq.StatementBuilderType
}

var _ ports.RelationalStore = (*Store)(nil)

// New crée un store sur une connexion ouverte par database.Open
func New(db *sql.DB, dialect database.Dialect) *Store {
	var format sq.PlaceholderFormat = sq.Dollar
	if dialect == database.SQLite {
		format = sq.Question
	}
	return &Store{
		BaseRepository: sharedinfra.NewBaseRepository(db),
		dialect:        dialect,
		sb:             sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Close ferme la connexion
func (s *Store) Close() error {
	return s.DB().Close()
}

// Dialect retourne le dialecte du store
func (s *Store) Dialect() database.Dialect {
	return s.dialect
}

func (s *Store) exec(ctx context.Context, ex sharedinfra.Executor, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return ex.ExecContext(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, ex sharedinfra.Executor, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return ex.QueryContext(ctx, query, args...)
}

// queryRow retourne sql.ErrNoRows via Scan quand aucune ligne ne correspond
func (s *Store) queryRow(ctx context.Context, ex sharedinfra.Executor, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return ex.QueryRowContext(ctx, query, args...), nil
}

// ========================================
// Conversions
// ========================================

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02",
}

// dbTime lit indifféremment un time.Time (lib/pq) ou le texte stocké par SQLite
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("cannot scan %T into time", value)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized time format %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
