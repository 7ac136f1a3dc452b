package document

import (
	"sort"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/graph"
)

// ArchiveCollection is the typed view over faust.archives.
type ArchiveCollection struct {
	*graph.Collection
}

// Archives resolves the archive collection in g.
func Archives(g *graph.Graph) (*ArchiveCollection, error) {
	c, err := g.Archives()
	if err != nil {
		return nil, err
	}
	return &ArchiveCollection{c}, nil
}

// FindByID returns the archive with the given id attribute.
func (c *ArchiveCollection) FindByID(id string) (*Archive, error) {
	ids, err := c.FindByProperty("id", id)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperrors.NewNotFound("archive", id)
	}
	return c.load(ids[0])
}

// Put inserts a or, when an archive with the same id exists, replaces its
// properties. a.NodeID is set either way.
func (c *ArchiveCollection) Put(a *Archive) error {
	if a.ID == "" {
		return apperrors.NewValidation("id", "archive id must not be empty")
	}
	ids, err := c.FindByProperty("id", a.ID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		a.NodeID = ids[0]
		return c.Graph().SetProperties(a.NodeID, a)
	}
	id, err := c.Graph().CreateNode(KindArchive, a)
	if err != nil {
		return err
	}
	a.NodeID = id
	return c.Add(id)
}

// All returns every archive in insertion order.
func (c *ArchiveCollection) All() ([]*Archive, error) {
	ids, err := c.Members()
	if err != nil {
		return nil, err
	}
	archives := make([]*Archive, 0, len(ids))
	for _, id := range ids {
		a, err := c.load(id)
		if err != nil {
			return nil, err
		}
		archives = append(archives, a)
	}
	return archives, nil
}

// AddDocument records that the archive holds the document.
func (c *ArchiveCollection) AddDocument(a *Archive, doc graph.NodeID) error {
	return c.Graph().Relate(a.NodeID, doc, RelHas)
}

// Documents returns the ids of the documents held by a.
func (c *ArchiveCollection) Documents(a *Archive) ([]graph.NodeID, error) {
	return c.Graph().Outgoing(a.NodeID, RelHas)
}

func (c *ArchiveCollection) load(id graph.NodeID) (*Archive, error) {
	n, err := c.Graph().Node(id)
	if err != nil {
		return nil, err
	}
	a := &Archive{}
	if err := n.Decode(a); err != nil {
		return nil, apperrors.Wrapf(err, "decode archive %d", id)
	}
	a.NodeID = id
	return a, nil
}

// MaterialUnitCollection is the typed view over faust.material-units. Every
// stored unit is a member, whatever its depth.
type MaterialUnitCollection struct {
	*graph.Collection
}

// MaterialUnits resolves the material unit collection in g.
func MaterialUnits(g *graph.Graph) (*MaterialUnitCollection, error) {
	c, err := g.MaterialUnits()
	if err != nil {
		return nil, err
	}
	return &MaterialUnitCollection{c}, nil
}

// Register makes a stored unit a member.
func (c *MaterialUnitCollection) Register(u *MaterialUnit) error {
	if u.ID == 0 {
		return apperrors.NewValidation("unit", u.String()+" has not been stored")
	}
	return c.Add(u.ID)
}

// FindBySource returns the ids of documents parsed from uri.
func (c *MaterialUnitCollection) FindBySource(uri string) ([]graph.NodeID, error) {
	return c.FindByProperty("source", uri)
}

// DocumentIDs returns the ids of member document roots in id order.
func (c *MaterialUnitCollection) DocumentIDs() ([]graph.NodeID, error) {
	var ids []graph.NodeID
	for _, t := range []Type{TypeDocument, TypeArchivalDocument} {
		found, err := c.FindByProperty("type", string(t))
		if err != nil {
			return nil, err
		}
		ids = append(ids, found...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Documents loads every member document.
func (c *MaterialUnitCollection) Documents() ([]*Document, error) {
	ids, err := c.DocumentIDs()
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		d, err := Load(c.Graph(), id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// GeneticSource is a bibliographic source for genetic relations.
type GeneticSource struct {
	NodeID graph.NodeID `json:"-"`
	URI    string       `json:"uri"`
	Title  string       `json:"title,omitempty"`
}

// GeneticSourceCollection is the typed view over faust.genetic-sources.
type GeneticSourceCollection struct {
	*graph.Collection
}

// GeneticSources resolves the genetic source collection in g.
func GeneticSources(g *graph.Graph) (*GeneticSourceCollection, error) {
	c, err := g.GeneticSources()
	if err != nil {
		return nil, err
	}
	return &GeneticSourceCollection{c}, nil
}

// Put inserts s unless a source with the same URI is already a member.
func (c *GeneticSourceCollection) Put(s *GeneticSource) error {
	if s.URI == "" {
		return apperrors.NewValidation("uri", "genetic source uri must not be empty")
	}
	ids, err := c.FindByProperty("uri", s.URI)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		s.NodeID = ids[0]
		return c.Graph().SetProperties(s.NodeID, s)
	}
	id, err := c.Graph().CreateNode(KindGeneticSource, s)
	if err != nil {
		return err
	}
	s.NodeID = id
	return c.Add(id)
}

// FindByURI returns the source with the given URI.
func (c *GeneticSourceCollection) FindByURI(uri string) (*GeneticSource, error) {
	ids, err := c.FindByProperty("uri", uri)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperrors.NewNotFound("genetic source", uri)
	}
	n, err := c.Graph().Node(ids[0])
	if err != nil {
		return nil, err
	}
	s := &GeneticSource{}
	if err := n.Decode(s); err != nil {
		return nil, apperrors.Wrapf(err, "decode genetic source %d", ids[0])
	}
	s.NodeID = ids[0]
	return s, nil
}
