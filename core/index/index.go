// Package index stores typed positional entries per document in SQLite.
//
// An entry ties a key (a verse number, say) to an offset range inside the
// text of one document. Entries of different types share the table; every
// delete is scoped by type as well as document id so maintainers of one
// entry type never touch another's rows.
package index

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/sqlite"
	"github.com/gremid/faust-app/internal/logging"
)

// Schema contains the DDL for the entry table.
const Schema = `
CREATE TABLE IF NOT EXISTS index_entries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    type        TEXT NOT NULL,
    document_id INTEGER NOT NULL,
    key         TEXT NOT NULL,
    start_pos   INTEGER NOT NULL,
    end_pos     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_key ON index_entries(type, key);
CREATE INDEX IF NOT EXISTS idx_entries_doc ON index_entries(type, document_id);
`

// deleteChunk bounds the number of bound parameters per DELETE statement.
const deleteChunk = 500

// Entry is one indexed range.
type Entry struct {
	Type       string
	DocumentID int64
	Key        string
	Start      int
	End        int
}

// Store is the index database handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the index database at path.
func Open(path string, opts ...sqlite.Option) (*Store, error) {
	allOpts := append([]sqlite.Option{
		sqlite.WithMkdirAll(),
		sqlite.WithImmediateTx(),
		sqlite.WithSchema(Schema),
	}, opts...)

	db, err := sqlite.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already opened database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, apperrors.NewStorage("schema", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in a write transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) Update(ctx context.Context, fn func(w *Writer) error) error {
	return s.run(ctx, "update", false, func(tx *sql.Tx) error {
		return fn(&Writer{Reader{ctx: ctx, tx: tx}})
	})
}

// View runs fn in a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(r *Reader) error) error {
	return s.run(ctx, "view", true, func(tx *sql.Tx) error {
		return fn(&Reader{ctx: ctx, tx: tx})
	})
}

func (s *Store) run(ctx context.Context, name string, readOnly bool, fn func(tx *sql.Tx) error) error {
	ctx = logging.WithTransactionID(ctx, uuid.NewString())
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorage("begin", err)
	}
	logging.TransactionEvent(ctx, "index", "begin", 0, "name", name)
	defer func() {
		logging.TransactionEvent(ctx, "index", "finish", time.Since(start), "name", name)
	}()

	if err := fn(tx); err != nil || readOnly {
		_ = tx.Rollback()
		if err != nil {
			logging.TransactionEvent(ctx, "index", "rollback", time.Since(start), "name", name)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStorage("commit", err)
	}
	logging.TransactionEvent(ctx, "index", "commit", time.Since(start), "name", name)
	return nil
}

// Reader queries entries inside a transaction.
type Reader struct {
	ctx context.Context
	tx  *sql.Tx
}

// Lookup returns up to limit entries of type typ with the given key, in
// insertion order. A limit of zero or less returns every match.
func (r *Reader) Lookup(typ, key string, limit int) ([]Entry, error) {
	query := `SELECT type, document_id, key, start_pos, end_pos FROM index_entries
		WHERE type = ? AND key = ? ORDER BY id`
	args := []any{typ, key}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.entries("lookup", query, args...)
}

// ForDocument returns every entry of type typ for one document, ordered by
// start offset.
func (r *Reader) ForDocument(typ string, documentID int64) ([]Entry, error) {
	return r.entries("for document", `SELECT type, document_id, key, start_pos, end_pos FROM index_entries
		WHERE type = ? AND document_id = ? ORDER BY start_pos, id`, typ, documentID)
}

// Count returns the number of entries of type typ.
func (r *Reader) Count(typ string) (int, error) {
	var n int
	err := r.tx.QueryRowContext(r.ctx, `SELECT COUNT(*) FROM index_entries WHERE type = ?`, typ).Scan(&n)
	if err != nil {
		return 0, apperrors.NewStorage("count", err)
	}
	return n, nil
}

func (r *Reader) entries(op, query string, args ...any) ([]Entry, error) {
	rows, err := r.tx.QueryContext(r.ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorage(op, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Type, &e.DocumentID, &e.Key, &e.Start, &e.End); err != nil {
			return nil, apperrors.NewStorage(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorage(op, err)
	}
	return out, nil
}

// Writer modifies entries inside a write transaction. It can read its own
// uncommitted writes.
type Writer struct {
	Reader
}

// Add inserts one entry.
func (w *Writer) Add(e Entry) error {
	if e.Type == "" {
		return apperrors.NewValidation("type", "entry type is required")
	}
	if e.End < e.Start {
		return &apperrors.ValidationError{Field: "end", Message: "range ends before it starts"}
	}
	_, err := w.tx.ExecContext(w.ctx,
		`INSERT INTO index_entries (type, document_id, key, start_pos, end_pos) VALUES (?, ?, ?, ?, ?)`,
		e.Type, e.DocumentID, e.Key, e.Start, e.End)
	if err != nil {
		return apperrors.NewStorage("add", err)
	}
	return nil
}

// Delete removes every entry of type typ belonging to one of ids and returns
// the number of rows removed.
func (w *Writer) Delete(typ string, ids []int64) (int64, error) {
	var total int64
	for len(ids) > 0 {
		n := min(len(ids), deleteChunk)
		chunk := ids[:n]
		ids = ids[n:]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, typ)
		for _, id := range chunk {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		res, err := w.tx.ExecContext(w.ctx,
			`DELETE FROM index_entries WHERE type = ? AND document_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return total, apperrors.NewStorage("delete", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, apperrors.NewStorage("delete", err)
		}
		total += affected
	}
	return total, nil
}
