package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/mybank/idalloc"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const transactionColumns = `id, tid, account_number, transaction_type, amount, currency,
	description, category, status, created_at, updated_at`

var schema = map[string]string{
	DriverSQLite: `CREATE TABLE IF NOT EXISTS transactions (
	id               INTEGER PRIMARY KEY,
	tid              TEXT NOT NULL,
	account_number   TEXT NOT NULL,
	transaction_type TEXT NOT NULL,
	amount           TEXT NOT NULL,
	currency         TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP
)`,
	DriverPostgres: `CREATE TABLE IF NOT EXISTS transactions (
	id               BIGINT PRIMARY KEY,
	tid              VARCHAR(20) NOT NULL,
	account_number   VARCHAR(19) NOT NULL,
	transaction_type VARCHAR(16) NOT NULL,
	amount           NUMERIC(11,2) NOT NULL,
	currency         CHAR(3) NOT NULL,
	description      VARCHAR(500) NOT NULL DEFAULT '',
	category         VARCHAR(64) NOT NULL DEFAULT '',
	status           VARCHAR(16) NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ
)`,
}

// Store persists transactions in a SQL database.
//
// Queries are written with ? placeholders and rebound to $n for postgres.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens a database handle for driver and checks connectivity.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if _, ok := schema[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// NewStore wraps db. driver selects placeholder style and schema.
func NewStore(db *sql.DB, driver string) (*Store, error) {
	if _, ok := schema[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return &Store{db: db, driver: driver}, nil
}

// Migrate creates the transactions table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema[s.driver]); err != nil {
		return fmt.Errorf("migrate transactions: %w", err)
	}
	return nil
}

// Insert stores t. A primary key collision returns ErrDuplicate.
func (s *Store) Insert(ctx context.Context, t *Transaction) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.TID, t.AccountNumber, t.TransactionType, t.Amount, t.Currency,
		t.Description, t.Category, t.Status, t.CreatedAt.UTC(), nullTime(t.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %d", ErrDuplicate, uint64(t.ID))
		}
		return fmt.Errorf("insert transaction %d: %w", uint64(t.ID), err)
	}
	return nil
}

// Get loads the transaction with id.
func (s *Store) Get(ctx context.Context, id idalloc.ID) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`), id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: uint64(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", uint64(id), err)
	}
	return t, nil
}

// Update overwrites the mutable columns of t. created_at is kept.
func (s *Store) Update(ctx context.Context, t *Transaction) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE transactions SET
		account_number = ?, transaction_type = ?, amount = ?, currency = ?,
		description = ?, category = ?, status = ?, updated_at = ?
		WHERE id = ?`),
		t.AccountNumber, t.TransactionType, t.Amount, t.Currency,
		t.Description, t.Category, t.Status, nullTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", uint64(t.ID), err)
	}
	return expectRows(res, t.ID)
}

// Delete removes the transaction with id.
func (s *Store) Delete(ctx context.Context, id idalloc.ID) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM transactions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", uint64(id), err)
	}
	return expectRows(res, id)
}

// List returns up to limit transactions ordered by ID, skipping offset rows.
func (s *Store) List(ctx context.Context, offset, limit int) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+transactionColumns+` FROM transactions ORDER BY id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Count returns the number of stored transactions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// ListIDs returns every stored ID in ascending order.
func (s *Store) ListIDs(ctx context.Context) ([]idalloc.ID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list transaction ids: %w", err)
	}
	defer rows.Close()

	var ids []idalloc.ID
	for rows.Next() {
		var id idalloc.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rebind rewrites ? placeholders to $1, $2, ... for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		t       Transaction
		updated sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TID, &t.AccountNumber, &t.TransactionType, &t.Amount, &t.Currency,
		&t.Description, &t.Category, &t.Status, &t.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	if cents, err := parseCents(t.Amount); err == nil {
		t.Amount = formatCents(cents)
	}
	if updated.Valid {
		u := updated.Time
		t.UpdatedAt = &u
	}
	return &t, nil
}

func expectRows(res sql.Result, id idalloc.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{ID: uint64(id)}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// isUniqueViolation recognizes primary key and unique constraint failures
// from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
