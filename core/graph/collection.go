package graph

import (
	apperrors "github.com/gremid/faust-app/core/errors"
)

// Collection is a thin view over a named root node. Members are the end nodes
// of "member" relationships leaving the root.
type Collection struct {
	g    *Graph
	name string
	root NodeID
}

// Name returns the root name of the collection.
func (c *Collection) Name() string {
	return c.name
}

// Root returns the root node id.
func (c *Collection) Root() NodeID {
	return c.root
}

// Graph returns the handle the view is bound to.
func (c *Collection) Graph() *Graph {
	return c.g
}

// Add makes id a member of the collection.
func (c *Collection) Add(id NodeID) error {
	return c.g.Relate(c.root, id, RelMember)
}

// Remove drops id from the collection. The node itself is kept.
func (c *Collection) Remove(id NodeID) error {
	return c.g.Unrelate(c.root, id, RelMember)
}

// Members returns all member ids in insertion order.
func (c *Collection) Members() ([]NodeID, error) {
	return c.g.Outgoing(c.root, RelMember)
}

// Count returns the number of members.
func (c *Collection) Count() (int, error) {
	var n int
	err := c.g.tx.QueryRowContext(c.g.ctx,
		`SELECT COUNT(*) FROM relationships WHERE start_node = ? AND type = ?`, c.root, RelMember).Scan(&n)
	if err != nil {
		return 0, apperrors.NewStorage("count members", err)
	}
	return n, nil
}

// Contains reports whether id is a member.
func (c *Collection) Contains(id NodeID) (bool, error) {
	var n int
	err := c.g.tx.QueryRowContext(c.g.ctx,
		`SELECT COUNT(*) FROM relationships WHERE start_node = ? AND type = ? AND end_node = ?`,
		c.root, RelMember, id).Scan(&n)
	if err != nil {
		return false, apperrors.NewStorage("find member", err)
	}
	return n > 0, nil
}

// FindByProperty returns the members whose top-level JSON property key equals
// value, in id order.
func (c *Collection) FindByProperty(key string, value any) ([]NodeID, error) {
	return c.g.nodeIDs(
		`SELECT n.id FROM relationships r
		 JOIN nodes n ON n.id = r.end_node
		 WHERE r.start_node = ? AND r.type = ? AND json_extract(n.properties, ?) = ?
		 ORDER BY n.id`,
		c.root, RelMember, jsonPath(key), value)
}

func jsonPath(key string) string {
	return `$."` + key + `"`
}
