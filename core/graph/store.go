// Package graph provides a transactional property-graph store on SQLite.
//
// Nodes and relationships live in two tables keyed by stable integer ids. A
// single reference node (id 0) anchors named root nodes; each root is linked
// from the reference node by a "root" relationship carrying its name, and is
// found by query rather than pointer traversal. Units of work run through
// Execute, which owns the transaction and releases it on every exit path.
package graph

import (
	"database/sql"

	"github.com/gremid/faust-app/core/sqlite"
)

// Schema contains the DDL for the graph tables.
const Schema = `
CREATE TABLE IF NOT EXISTS nodes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    kind       TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);

INSERT OR IGNORE INTO nodes (id, kind) VALUES (0, 'reference');

CREATE TABLE IF NOT EXISTS relationships (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    type       TEXT NOT NULL,
    start_node INTEGER NOT NULL,
    end_node   INTEGER NOT NULL,
    name       TEXT,
    FOREIGN KEY (start_node) REFERENCES nodes(id) ON DELETE CASCADE,
    FOREIGN KEY (end_node) REFERENCES nodes(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_rel_start ON relationships(start_node, type);
CREATE INDEX IF NOT EXISTS idx_rel_end ON relationships(end_node, type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rel_root ON relationships(start_node, name) WHERE type = 'root';
`

// Store is the graph database handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the graph database at path and applies the schema.
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
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
