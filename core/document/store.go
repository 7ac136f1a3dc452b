package document

import (
	"sort"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/graph"
)

// Node kinds and relationship types used for the material unit model.
const (
	KindMaterialUnit  = "material-unit"
	KindArchive       = "archive"
	KindGeneticSource = "genetic-source"

	RelContains = "contains"
	RelHas      = "has"
)

type unitProperties struct {
	Type             Type     `json:"type"`
	Order            int      `json:"order"`
	Metadata         Metadata `json:"metadata,omitempty"`
	TranscriptSource string   `json:"transcript-source,omitempty"`
	Source           string   `json:"source,omitempty"`
	SourceHash       string   `json:"source-hash,omitempty"`
}

func propertiesOf(u *MaterialUnit) unitProperties {
	return unitProperties{
		Type:             u.Type,
		Order:            u.Order,
		Metadata:         u.Metadata,
		TranscriptSource: u.TranscriptSource,
	}
}

func documentProperties(d *Document) unitProperties {
	p := propertiesOf(&d.MaterialUnit)
	p.Source = d.SourceURI
	p.SourceHash = d.SourceHash
	return p
}

// CreateUnit stores u as a new node and assigns its id. When parent is not
// nil the new node is linked below it.
func CreateUnit(g *graph.Graph, u *MaterialUnit, parent *MaterialUnit) error {
	if !u.Type.Valid() {
		return apperrors.NewValidation("type", "unknown material unit type "+string(u.Type))
	}
	id, err := g.CreateNode(KindMaterialUnit, propertiesOf(u))
	if err != nil {
		return err
	}
	u.ID = id
	if parent == nil {
		return nil
	}
	return g.Relate(parent.ID, id, RelContains)
}

// CreateDocument stores d as a new root node and assigns its id.
func CreateDocument(g *graph.Graph, d *Document) error {
	if !d.Type.IsDocument() {
		return apperrors.NewValidation("type", string(d.Type)+" cannot be a document root")
	}
	id, err := g.CreateNode(KindMaterialUnit, documentProperties(d))
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

// UpdateUnit writes the current properties of a stored unit.
func UpdateUnit(g *graph.Graph, u *MaterialUnit) error {
	return g.SetProperties(u.ID, propertiesOf(u))
}

// UpdateDocument writes the current properties of a stored document.
func UpdateDocument(g *graph.Graph, d *Document) error {
	return g.SetProperties(d.ID, documentProperties(d))
}

// Load reads the document rooted at id with its whole unit tree. Children
// come back sorted by order.
func Load(g *graph.Graph, id graph.NodeID) (*Document, error) {
	root, props, err := loadUnit(g, id)
	if err != nil {
		return nil, err
	}
	if !root.Type.IsDocument() {
		return nil, apperrors.NewNotFound("document", id.String())
	}
	doc := &Document{MaterialUnit: *root, SourceURI: props.Source, SourceHash: props.SourceHash}
	if err := loadChildren(g, &doc.MaterialUnit); err != nil {
		return nil, err
	}
	return doc, nil
}

func loadUnit(g *graph.Graph, id graph.NodeID) (*MaterialUnit, *unitProperties, error) {
	n, err := g.Node(id)
	if err != nil {
		return nil, nil, err
	}
	if n.Kind != KindMaterialUnit {
		return nil, nil, apperrors.NewNotFound("material unit", id.String())
	}
	var props unitProperties
	if err := n.Decode(&props); err != nil {
		return nil, nil, apperrors.Wrapf(err, "decode material unit %d", id)
	}
	u := &MaterialUnit{
		ID:               id,
		Type:             props.Type,
		Order:            props.Order,
		Metadata:         props.Metadata,
		TranscriptSource: props.TranscriptSource,
	}
	if u.Metadata == nil {
		u.Metadata = Metadata{}
	}
	return u, &props, nil
}

func loadChildren(g *graph.Graph, parent *MaterialUnit) error {
	ids, err := g.Outgoing(parent.ID, RelContains)
	if err != nil {
		return err
	}
	for _, id := range ids {
		child, _, err := loadUnit(g, id)
		if err != nil {
			return err
		}
		if err := loadChildren(g, child); err != nil {
			return err
		}
		parent.Children = append(parent.Children, child)
	}
	sort.SliceStable(parent.Children, func(i, j int) bool {
		return parent.Children[i].Order < parent.Children[j].Order
	})
	return nil
}

// Delete removes the document rooted at id and every unit below it.
// Collection memberships and archive links go with the nodes.
func Delete(g *graph.Graph, id graph.NodeID) error {
	ids, err := subtree(g, id)
	if err != nil {
		return err
	}
	for i := len(ids) - 1; i >= 0; i-- {
		if err := g.DeleteNode(ids[i]); err != nil {
			return err
		}
	}
	return nil
}

func subtree(g *graph.Graph, id graph.NodeID) ([]graph.NodeID, error) {
	ids := []graph.NodeID{id}
	for i := 0; i < len(ids); i++ {
		children, err := g.Outgoing(ids[i], RelContains)
		if err != nil {
			return nil, err
		}
		ids = append(ids, children...)
	}
	return ids, nil
}
