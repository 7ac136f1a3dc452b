package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	apperrors "github.com/gremid/faust-app/core/errors"
)

// Prefix namespaces the well-known root names.
const Prefix = "faust"

// Well-known root names.
const (
	ArchivesRoot       = Prefix + ".archives"
	MaterialUnitsRoot  = Prefix + ".material-units"
	GeneticSourcesRoot = Prefix + ".genetic-sources"
)

// Relationship types.
const (
	RelRoot   = "root"
	RelMember = "member"
)

// NodeID identifies a node. Ids are never reused.
type NodeID int64

// ReferenceNode is the single well-known entry point of the graph.
const ReferenceNode NodeID = 0

func (id NodeID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Node is a stored node with its raw JSON properties.
type Node struct {
	ID         NodeID
	Kind       string
	Properties json.RawMessage
}

// Decode unmarshals the node properties into v.
func (n *Node) Decode(v any) error {
	return json.Unmarshal(n.Properties, v)
}

// Graph is a handle bound to one open transaction. It must not be used after
// the unit of work that received it returns.
type Graph struct {
	ctx context.Context
	tx  *sql.Tx
}

// Context returns the context of the enclosing unit of work.
func (g *Graph) Context() context.Context {
	return g.ctx
}

// CreateNode inserts a node of the given kind with props marshalled as JSON.
func (g *Graph) CreateNode(kind string, props any) (NodeID, error) {
	data, err := marshalProperties(props)
	if err != nil {
		return 0, err
	}
	res, err := g.tx.ExecContext(g.ctx, `INSERT INTO nodes (kind, properties) VALUES (?, ?)`, kind, data)
	if err != nil {
		return 0, apperrors.NewStorage("create node", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.NewStorage("create node", err)
	}
	return NodeID(id), nil
}

// Node loads a node by id.
func (g *Graph) Node(id NodeID) (*Node, error) {
	n := &Node{ID: id}
	var props string
	err := g.tx.QueryRowContext(g.ctx, `SELECT kind, properties FROM nodes WHERE id = ?`, id).Scan(&n.Kind, &props)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("node", id.String())
	}
	if err != nil {
		return nil, apperrors.NewStorage("load node", err)
	}
	n.Properties = json.RawMessage(props)
	return n, nil
}

// SetProperties replaces the properties of a node.
func (g *Graph) SetProperties(id NodeID, props any) error {
	data, err := marshalProperties(props)
	if err != nil {
		return err
	}
	res, err := g.tx.ExecContext(g.ctx, `UPDATE nodes SET properties = ? WHERE id = ?`, data, id)
	if err != nil {
		return apperrors.NewStorage("update node", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("node", id.String())
	}
	return nil
}

// DeleteNode removes a node and, by cascade, all its relationships.
func (g *Graph) DeleteNode(id NodeID) error {
	if id == ReferenceNode {
		return apperrors.NewValidation("node", "the reference node cannot be deleted")
	}
	if _, err := g.tx.ExecContext(g.ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return apperrors.NewStorage("delete node", err)
	}
	return nil
}

// Relate creates a relationship of relType from start to end.
func (g *Graph) Relate(start, end NodeID, relType string) error {
	_, err := g.tx.ExecContext(g.ctx,
		`INSERT INTO relationships (type, start_node, end_node) VALUES (?, ?, ?)`, relType, start, end)
	if err != nil {
		return apperrors.NewStorage("create relationship", err)
	}
	return nil
}

// Unrelate removes every relationship of relType from start to end.
func (g *Graph) Unrelate(start, end NodeID, relType string) error {
	_, err := g.tx.ExecContext(g.ctx,
		`DELETE FROM relationships WHERE type = ? AND start_node = ? AND end_node = ?`, relType, start, end)
	if err != nil {
		return apperrors.NewStorage("delete relationship", err)
	}
	return nil
}

// Outgoing returns the end nodes of relationships of relType leaving start,
// in creation order.
func (g *Graph) Outgoing(start NodeID, relType string) ([]NodeID, error) {
	return g.nodeIDs(`SELECT end_node FROM relationships WHERE start_node = ? AND type = ? ORDER BY id`, start, relType)
}

// Incoming returns the start nodes of relationships of relType arriving at end,
// in creation order.
func (g *Graph) Incoming(end NodeID, relType string) ([]NodeID, error) {
	return g.nodeIDs(`SELECT start_node FROM relationships WHERE end_node = ? AND type = ? ORDER BY id`, end, relType)
}

// Root returns the root node registered under name, creating and linking it
// to the reference node on first use. Repeated calls return the same node.
func (g *Graph) Root(name string) (NodeID, error) {
	var id NodeID
	err := g.tx.QueryRowContext(g.ctx,
		`SELECT end_node FROM relationships
		 WHERE start_node = ? AND type = ? AND name = ?
		 ORDER BY id LIMIT 1`, ReferenceNode, RelRoot, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewStorage("find root", err)
	}

	id, err = g.CreateNode("root", map[string]string{"root.name": name})
	if err != nil {
		return 0, err
	}
	_, err = g.tx.ExecContext(g.ctx,
		`INSERT INTO relationships (type, start_node, end_node, name) VALUES (?, ?, ?, ?)`,
		RelRoot, ReferenceNode, id, name)
	if err != nil {
		return 0, apperrors.NewStorage("create root", err)
	}
	return id, nil
}

// Archives returns the archive collection view.
func (g *Graph) Archives() (*Collection, error) {
	return g.Collection(ArchivesRoot)
}

// MaterialUnits returns the material unit collection view.
func (g *Graph) MaterialUnits() (*Collection, error) {
	return g.Collection(MaterialUnitsRoot)
}

// GeneticSources returns the genetic source collection view.
func (g *Graph) GeneticSources() (*Collection, error) {
	return g.Collection(GeneticSourcesRoot)
}

// Collection returns a view over the root named name. The root is resolved on
// every call; views are not cached.
func (g *Graph) Collection(name string) (*Collection, error) {
	root, err := g.Root(name)
	if err != nil {
		return nil, err
	}
	return &Collection{g: g, name: name, root: root}, nil
}

func (g *Graph) nodeIDs(query string, args ...any) ([]NodeID, error) {
	rows, err := g.tx.QueryContext(g.ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorage("query relationships", err)
	}
	defer rows.Close()

	var ids []NodeID
	for rows.Next() {
		var id NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewStorage("scan relationships", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorage("query relationships", err)
	}
	return ids, nil
}

func marshalProperties(props any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", apperrors.Wrap(err, "marshal node properties")
	}
	return string(data), nil
}
