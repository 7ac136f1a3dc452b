// Package archives loads the archive registry into the graph store.
//
// The registry is an XML file listing holding institutions:
//
//	<archives xmlns="http://www.faustedition.net/ns">
//	  <archive id="gsa">
//	    <name>Goethe- und Schiller-Archiv</name>
//	    <institution>Klassik Stiftung Weimar</institution>
//	    <city>Weimar</city>
//	    <country>Deutschland</country>
//	    <url>https://ores.klassik-stiftung.de/</url>
//	  </archive>
//	</archives>
//
// Element names are matched by local name, so the namespace is optional.
package archives

import (
	"context"
	"errors"
	"io"

	"github.com/gremid/faust-app/core/document"
	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/graph"
	"github.com/gremid/faust-app/core/xml"
	"github.com/gremid/faust-app/core/xmlstore"
	"github.com/gremid/faust-app/internal/logging"
)

const archiveXPath = "//*[local-name()='archive']"

// Parse reads the archives listed in a registry file. Archive ids must be
// present and unique.
func Parse(r io.Reader, source string) ([]*document.Archive, error) {
	doc, err := xml.ParseReader(r)
	if err != nil {
		return nil, &apperrors.ParseError{Format: "archives", Path: source, Message: err.Error(), Err: apperrors.ErrInvalidInput}
	}
	if root := doc.Root(); root == nil || root.Name() != "archives" {
		return nil, &apperrors.ParseError{Format: "archives", Path: source, Message: "root element must be archives"}
	}

	nodes, err := doc.XPath(archiveXPath)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(nodes))
	out := make([]*document.Archive, 0, len(nodes))
	for _, n := range nodes {
		a := &document.Archive{
			ID:          n.Attr("id"),
			Name:        n.ChildText("name"),
			Institution: n.ChildText("institution"),
			City:        n.ChildText("city"),
			Country:     n.ChildText("country"),
			URL:         n.ChildText("url"),
		}
		if a.ID == "" {
			return nil, &apperrors.ParseError{Format: "archives", Path: source, Message: "archive without id",
				Err: apperrors.NewValidation("id", "archive id must not be empty")}
		}
		if seen[a.ID] {
			return nil, &apperrors.ParseError{Format: "archives", Path: source, Message: "duplicate archive " + a.ID,
				Err: &apperrors.ValidationError{Field: "id", Value: a.ID, Message: "duplicate archive id",
					Err: errors.Join(apperrors.ErrAlreadyExists, apperrors.ErrInvalidInput)}}
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out, nil
}

// Put upserts archives into the archive collection in one transaction.
func Put(ctx context.Context, gs *graph.Store, archives []*document.Archive) error {
	return graph.Run(ctx, gs, func(g *graph.Graph) error {
		c, err := document.Archives(g)
		if err != nil {
			return err
		}
		for _, a := range archives {
			if err := c.Put(a); err != nil {
				return apperrors.Wrapf(err, "archive %s", a.ID)
			}
		}
		return nil
	}, graph.Named("archives"))
}

// Load reads the registry at uri from XML storage and upserts every archive.
// Loading the same registry twice leaves the collection unchanged. It
// returns the number of archives loaded.
func Load(ctx context.Context, gs *graph.Store, xs *xmlstore.Store, uri string) (int, error) {
	r, err := xs.Open(uri)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	archives, err := Parse(r, uri)
	if err != nil {
		return 0, err
	}
	if err := Put(ctx, gs, archives); err != nil {
		return 0, err
	}
	logging.InfoContext(ctx, "archives loaded", "uri", uri, "count", len(archives))
	return len(archives), nil
}
