package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

// SQLiteStore keeps statements in one SQLite table.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// schema stores each term twice: its canonical text for lookups and its
// JSON encoding for decoding.
const schema = `
CREATE TABLE IF NOT EXISTS quads (
    s_key TEXT NOT NULL,
    p TEXT NOT NULL,
    o_key TEXT NOT NULL,
    g TEXT NOT NULL DEFAULT '',
    s_json TEXT NOT NULL,
    o_json TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_quads_spog ON quads(s_key, p, o_key, g);
CREATE INDEX IF NOT EXISTS idx_quads_po ON quads(p, o_key);
CREATE INDEX IF NOT EXISTS idx_quads_o ON quads(o_key);
`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every ":memory:" connection is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, log: zap.NewNop()}, nil
}

// WithLogger sets the logger and returns s.
func (s *SQLiteStore) WithLogger(log *zap.Logger) *SQLiteStore {
	s.log = log
	return s
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Fetch implements graph.TripleStore.
func (s *SQLiteStore) Fetch(ctx context.Context, ids ...identity.ID) ([]term.Quad, error) {
	return fetch(ctx, s, ids)
}

// Select implements graph.TripleStore.
func (s *SQLiteStore) Select(ctx context.Context, q *pattern.Query) ([]pattern.Row, error) {
	return evaluate(ctx, s, q)
}

// Modify applies edits in one transaction.
func (s *SQLiteStore) Modify(ctx context.Context, edits []change.StoreEdit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, e := range edits {
		if e.Statement.Subject == nil || e.Statement.Object == nil {
			return errIncomplete(e)
		}
		q := e.Statement
		if e.Kind == change.EditRemoved {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM quads WHERE s_key = ? AND p = ? AND o_key = ? AND g = ?
			`, key(q.Subject), string(q.Predicate), key(q.Object), string(q.Graph))
			if err != nil {
				return fmt.Errorf("delete %s: %w", q.Triple(), err)
			}
			continue
		}

		sj, err := term.Encode(q.Subject)
		if err != nil {
			return err
		}
		oj, err := term.Encode(q.Object)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO quads (s_key, p, o_key, g, s_json, o_json)
			VALUES (?, ?, ?, ?, ?, ?)
		`, key(q.Subject), string(q.Predicate), key(q.Object), string(q.Graph), string(sj), string(oj))
		if err != nil {
			return fmt.Errorf("insert %s: %w", q.Triple(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("sqlite modified", zap.Int("edits", len(edits)))
	return nil
}

func (s *SQLiteStore) match(ctx context.Context, subj, pred, obj term.Term) ([]term.Quad, error) {
	var where []string
	var args []any
	if subj != nil {
		where = append(where, "s_key = ?")
		args = append(args, key(subj))
	}
	if pred != nil {
		where = append(where, "p = ?")
		args = append(args, predicateName(pred))
	}
	if obj != nil {
		where = append(where, "o_key = ?")
		args = append(args, key(obj))
	}

	query := "SELECT s_json, p, o_json, g FROM quads"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []term.Quad
	for rows.Next() {
		var sj, p, oj, g string
		if err := rows.Scan(&sj, &p, &oj, &g); err != nil {
			return nil, err
		}
		st, err := term.Decode([]byte(sj))
		if err != nil {
			return nil, err
		}
		ot, err := term.Decode([]byte(oj))
		if err != nil {
			return nil, err
		}
		out = append(out, term.Quad{Subject: st, Predicate: term.IRI(p), Object: ot, Graph: term.IRI(g)})
	}
	return out, rows.Err()
}
