/*
Package postgres provides a shared document store on PostgreSQL.

PURPOSE:
  Several tills write to one database. Each collection is a table of
  JSONB documents keyed by id, matching the whole-entity write contract:
  a record is always replaced as a whole, never patched.

TABLES:
  products, variants, shifts, sales, expenses, returns, customers,
  discounts
    id         TEXT PRIMARY KEY
    doc        JSONB NOT NULL
    updated_at TIMESTAMPTZ NOT NULL

CONCURRENCY:
  Last writer wins. Two tills opening a shift at once both succeed; the
  poller's repair closes the extra one after the next load.

SEE ALSO:
  - pos/store.go: Store interface
  - replication/poller.go: Periodic reload and repair
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/warp/cashdrawer/pos"
)

type Store struct {
	db *sql.DB
}

// New connects, checks the connection and creates missing tables.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func table(k pos.Kind) string {
	return pq.QuoteIdentifier(string(k))
}

func (s *Store) migrate(ctx context.Context) error {
	for _, k := range pos.Kinds {
		_, err := s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS `+table(k)+` (
				id TEXT PRIMARY KEY,
				doc JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`)
		if err != nil {
			return fmt.Errorf("creating %s: %w", k, err)
		}
	}
	return nil
}

// Apply writes all changes in one transaction.
func (s *Store) Apply(ctx context.Context, changes ...pos.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		if !known(c.Kind) {
			return fmt.Errorf("unknown collection %q", c.Kind)
		}
		if c.Op == pos.OpDelete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table(c.Kind)+` WHERE id = $1`, c.ID); err != nil {
				return fmt.Errorf("failed to delete %s %s: %w", c.Kind, c.ID, err)
			}
			continue
		}
		doc, err := json.Marshal(c.Entity)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", c.Kind, c.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO `+table(c.Kind)+` (id, doc, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
		`, c.ID, string(doc))
		if err != nil {
			return fmt.Errorf("failed to save %s %s: %w", c.Kind, c.ID, describe(err))
		}
	}
	return tx.Commit()
}

// Load reads every collection, each ordered by id.
func (s *Store) Load(ctx context.Context) (pos.Snapshot, error) {
	var snap pos.Snapshot
	if err := loadKind(ctx, s.db, pos.KindProduct, &snap.Products); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s.db, pos.KindVariant, &snap.Variants); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s.db, pos.KindShift, &snap.Shifts); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s.db, pos.KindSale, &snap.Sales); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s.db, pos.KindExpense, &snap.Expenses); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s.db, pos.KindReturn, &snap.Returns); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s.db, pos.KindCustomer, &snap.Customers); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s.db, pos.KindDiscount, &snap.Discounts); err != nil {
		return pos.Snapshot{}, err
	}
	return snap, nil
}

func loadKind[T any](ctx context.Context, db *sql.DB, k pos.Kind, out *[]T) error {
	rows, err := db.QueryContext(ctx, `SELECT doc FROM `+table(k)+` ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", k, describe(err))
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan %s: %w", k, err)
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("failed to decode %s: %w", k, err)
		}
		*out = append(*out, v)
	}
	return rows.Err()
}

// Reset empties every collection.
func (s *Store) Reset(ctx context.Context) error {
	for _, k := range pos.Kinds {
		if _, err := s.db.ExecContext(ctx, `TRUNCATE `+table(k)); err != nil {
			return fmt.Errorf("failed to reset %s: %w", k, err)
		}
	}
	return nil
}

func known(k pos.Kind) bool {
	for _, kind := range pos.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// describe adds the server's error code to driver errors.
func describe(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
