package transcript

import (
	"context"

	"github.com/gremid/faust-app/core/document"
	"github.com/gremid/faust-app/core/graph"
	"github.com/gremid/faust-app/core/text"
	"github.com/gremid/faust-app/core/xmlstore"
	"github.com/gremid/faust-app/internal/logging"
)

// Source renders the textual transcript of stored documents. It looks up the
// document's transcript source in the graph and streams the TEI file from
// XML storage.
type Source struct {
	graph *graph.Store
	xml   *xmlstore.Store
}

var _ text.Transcripts = (*Source)(nil)

// NewSource returns a transcript source.
func NewSource(g *graph.Store, xs *xmlstore.Store) *Source {
	return &Source{graph: g, xml: xs}
}

// Textual implements text.Transcripts. A document without a transcript
// source yields an empty stream.
func (s *Source) Textual(ctx context.Context, documentID int64) (text.Stream, error) {
	uri, err := graph.Execute(ctx, s.graph, func(g *graph.Graph) (string, error) {
		doc, err := document.Load(g, graph.NodeID(documentID))
		if err != nil {
			return "", err
		}
		return doc.TranscriptSource, nil
	}, graph.ReadOnly(), graph.Named("transcript"))
	if err != nil {
		return nil, err
	}
	if uri == "" {
		logging.DebugContext(ctx, "document has no textual transcript", "document_id", documentID)
		return text.NewSliceStream(), nil
	}

	r, err := s.xml.Open(uri)
	if err != nil {
		return nil, err
	}
	return Tokenize(r, uri), nil
}
