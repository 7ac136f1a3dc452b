package descriptor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gremid/faust-app/core/document"
	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/graph"
	"github.com/gremid/faust-app/core/sqlite"
	"github.com/gremid/faust-app/core/xmlstore"
)

const testURI = "faust://xml/document/faust/2.5/gsa_390883.xml"

const fullDescriptor = `<?xml version="1.0" encoding="UTF-8"?>
<archivalDocument xmlns="http://www.faustedition.net/ns"
    xmlns:tei="http://www.tei-c.org/ns/1.0"
    xml:base="faust://xml/transcript/gsa/390883/">
  <metadata>
    <idno type="gsa_1">GSA 25/W 1</idno>
    <idno type="wa_faust">2 H</idno>
    <repository>gsa</repository>
    <textTranscript uri="390883.xml"/>
    <classification>Reinschrift</classification>
    <headNote>Ein <hi>Kopf</hi></headNote>
  </metadata>
  <sheet>
    <leaf>
      <page>
        <metadata>
          <docTranscript uri="0001.xml"/>
        </metadata>
      </page>
      <page/>
    </leaf>
    <disjunctLeaf>
      <page>
        <patch><patchSurface/></patch>
      </page>
    </disjunctLeaf>
  </sheet>
  <tei:note><tei:page/></tei:note>
</archivalDocument>
`

func newTestStore(t *testing.T, archiveIDs ...string) *graph.Store {
	t.Helper()
	s, err := graph.New(sqlite.OpenMemory(t))
	require.NoError(t, err)
	err = graph.Run(context.Background(), s, func(g *graph.Graph) error {
		archives, err := document.Archives(g)
		if err != nil {
			return err
		}
		for _, id := range archiveIDs {
			if err := archives.Put(&document.Archive{ID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return s
}

func parse(t *testing.T, s *graph.Store, src string, opts ...Option) (*document.Document, error) {
	t.Helper()
	return graph.Execute(context.Background(), s, func(g *graph.Graph) (*document.Document, error) {
		return Parse(g, strings.NewReader(src), testURI, opts...)
	})
}

func countUnits(t *testing.T, s *graph.Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM nodes WHERE kind = ?`, document.KindMaterialUnit).Scan(&n))
	return n
}

func TestParseBuildsTree(t *testing.T) {
	s := newTestStore(t, "gsa")

	doc, err := parse(t, s, fullDescriptor, WithSourceHash("feed"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, document.TypeArchivalDocument, doc.Type)
	assert.Equal(t, testURI, doc.SourceURI)
	assert.Equal(t, "feed", doc.SourceHash)
	assert.Equal(t, 9, doc.Count(), "one unit per structural element in the faust namespace")

	var orders []int
	var types []document.Type
	doc.Walk(func(u *document.MaterialUnit) {
		orders = append(orders, u.Order)
		types = append(types, u.Type)
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, orders)
	assert.Equal(t, []document.Type{
		document.TypeArchivalDocument, document.TypeSheet, document.TypeLeaf,
		document.TypePage, document.TypePage, document.TypeDisjunctLeaf,
		document.TypePage, document.TypePatch, document.TypePatchSurface,
	}, types)

	assert.Equal(t, []string{"gsa"}, doc.Metadata.Values("archive"))
	assert.Equal(t, "GSA 25/W 1", doc.Metadata.Value("callnumber.gsa-1"))
	assert.Equal(t, "2 H", doc.Metadata.Value("callnumber.wa-faust"))
	assert.Equal(t, "GSA 25/W 1", doc.Metadata.Value("callnumber"), "folded from the archive's own idno")
	assert.Equal(t, "Reinschrift", doc.Metadata.Value("classification"))
	assert.Equal(t, "Ein Kopf", doc.Metadata.Value("head-note"), "nested text is kept")
	assert.Empty(t, doc.Metadata.Values("text-transcript"), "transcript references are not metadata")

	assert.Equal(t, "faust://xml/transcript/gsa/390883/390883.xml", doc.TranscriptSource)
	page := doc.Children[0].Children[0].Children[0]
	assert.Equal(t, document.TypePage, page.Type)
	assert.Equal(t, "faust://xml/transcript/gsa/390883/0001.xml", page.TranscriptSource)
}

func TestParsePersists(t *testing.T) {
	s := newTestStore(t, "gsa")
	ctx := context.Background()

	doc, err := parse(t, s, fullDescriptor)
	require.NoError(t, err)

	err = graph.Run(ctx, s, func(g *graph.Graph) error {
		loaded, err := document.Load(g, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, loaded.Count())
		assert.Equal(t, "gsa", loaded.Archive())
		assert.Equal(t, doc.TranscriptSource, loaded.TranscriptSource)
		assert.Equal(t, "faust://xml/transcript/gsa/390883/0001.xml",
			loaded.Children[0].Children[0].Children[0].TranscriptSource)

		units, err := document.MaterialUnits(g)
		require.NoError(t, err)
		n, err := units.Count()
		require.NoError(t, err)
		assert.Equal(t, 9, n, "units are registered regardless of depth")

		ids, err := units.FindBySource(testURI)
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeID{doc.ID}, ids)

		archives, err := document.Archives(g)
		require.NoError(t, err)
		gsa, err := archives.FindByID("gsa")
		require.NoError(t, err)
		held, err := archives.Documents(gsa)
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeID{doc.ID}, held)
		return nil
	}, graph.ReadOnly())
	require.NoError(t, err)
}

func TestParseResolvesAgainstSource(t *testing.T) {
	s := newTestStore(t, "gsa")
	src := `<document xmlns="http://www.faustedition.net/ns">
  <metadata>
    <archive>gsa</archive>
    <docTranscript uri="../../../transcript/x.xml"/>
  </metadata>
  <page xml:base="faust://xml/transcript/other/">
    <metadata><docTranscript uri="p1.xml"/></metadata>
  </page>
</document>`

	doc, err := parse(t, s, src)
	require.NoError(t, err)
	assert.Equal(t, document.TypeDocument, doc.Type)
	assert.Equal(t, "faust://xml/transcript/x.xml", doc.TranscriptSource)
	assert.Equal(t, "faust://xml/transcript/other/p1.xml", doc.Children[0].TranscriptSource)
}

func TestParseCallnumberFoldTakesFirstValue(t *testing.T) {
	// Known limitation: duplicate idno types for the document's archive are
	// not disambiguated, only the first value is folded.
	s := newTestStore(t, "gsa")
	src := `<archivalDocument xmlns="http://www.faustedition.net/ns">
  <metadata>
    <repository>gsa</repository>
    <idno type="gsa_1">first</idno>
    <idno type="gsa_1">second</idno>
  </metadata>
</archivalDocument>`

	doc, err := parse(t, s, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, doc.Metadata.Values("callnumber.gsa-1"))
	assert.Equal(t, []string{"first"}, doc.Metadata.Values("callnumber"))
}

func TestParseUnitsInsideMetadata(t *testing.T) {
	s := newTestStore(t, "gsa")
	src := `<archivalDocument xmlns="http://www.faustedition.net/ns">
  <metadata>
    <repository>gsa</repository>
    <page/>
    <headNote>before <leaf/>after</headNote>
    <classification>Reinschrift</classification>
  </metadata>
</archivalDocument>`

	doc, err := parse(t, s, src)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, 3, doc.Count(), "unit elements open units even inside metadata")
	assert.Equal(t, 3, countUnits(t, s))
	require.Len(t, doc.Children, 2)
	assert.Equal(t, document.TypePage, doc.Children[0].Type)
	assert.Equal(t, 1, doc.Children[0].Order)
	assert.Equal(t, document.TypeLeaf, doc.Children[1].Type)
	assert.Equal(t, 2, doc.Children[1].Order)

	assert.Empty(t, doc.Metadata.Values("page"))
	assert.Empty(t, doc.Metadata.Values("leaf"))
	assert.Equal(t, "before after", doc.Metadata.Value("head-note"))
	assert.Equal(t, "Reinschrift", doc.Metadata.Value("classification"), "metadata continues after a unit")
	assert.Equal(t, []string{"gsa"}, doc.Metadata.Values("archive"))
}

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		target error
	}{
		{
			name:   "wrong root type",
			src:    `<sheet xmlns="http://www.faustedition.net/ns"><metadata><repository>gsa</repository></metadata></sheet>`,
			target: apperrors.ErrInvalidInput,
		},
		{
			name:   "no archive",
			src:    `<archivalDocument xmlns="http://www.faustedition.net/ns"><metadata><idno>1</idno></metadata></archivalDocument>`,
			target: apperrors.ErrInvalidInput,
		},
		{
			name:   "two archives",
			src:    `<archivalDocument xmlns="http://www.faustedition.net/ns"><metadata><repository>gsa</repository><repository>bl</repository></metadata></archivalDocument>`,
			target: apperrors.ErrInvalidInput,
		},
		{
			name:   "no metadata section",
			src:    `<archivalDocument xmlns="http://www.faustedition.net/ns"><sheet/></archivalDocument>`,
			target: apperrors.ErrInvalidInput,
		},
		{
			name:   "unknown archive",
			src:    `<archivalDocument xmlns="http://www.faustedition.net/ns"><metadata><repository>nowhere</repository></metadata></archivalDocument>`,
			target: apperrors.ErrNotFound,
		},
		{
			name:   "nested document",
			src:    `<archivalDocument xmlns="http://www.faustedition.net/ns"><metadata><repository>gsa</repository></metadata><document/></archivalDocument>`,
			target: apperrors.ErrInvalidInput,
		},
		{
			name:   "transcript without uri",
			src:    `<archivalDocument xmlns="http://www.faustedition.net/ns"><metadata><repository>gsa</repository><textTranscript/></metadata></archivalDocument>`,
			target: apperrors.ErrInvalidInput,
		},
		{
			name:   "malformed xml",
			src:    `<archivalDocument xmlns="http://www.faustedition.net/ns"><metadata>`,
			target: apperrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, "gsa", "bl")

			doc, err := parse(t, s, tt.src)
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.ErrorIs(t, err, tt.target)

			var pe *apperrors.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, testURI, pe.Path)
			assert.Positive(t, pe.Line)

			assert.Equal(t, 0, countUnits(t, s), "no partial tree survives the rollback")
		})
	}
}

func TestParseNoDocument(t *testing.T) {
	s := newTestStore(t)
	tests := []string{
		``,
		`<root xmlns="urn:example:other"><archivalDocument/></root>`,
		`<wrapper xmlns="http://www.faustedition.net/ns"><metadata><repository>gsa</repository></metadata></wrapper>`,
	}
	for _, src := range tests {
		doc, err := parse(t, s, src)
		require.NoError(t, err)
		assert.Nil(t, doc)
	}
	assert.Equal(t, 0, countUnits(t, s))
}

func TestParseIgnoresForeignNamespaces(t *testing.T) {
	s := newTestStore(t, "gsa")
	src := `<archivalDocument xmlns="http://www.faustedition.net/ns" xmlns:x="urn:example:other">
  <metadata><repository>gsa</repository><x:note><classification>kept</classification></x:note></metadata>
  <x:sheet><leaf/></x:sheet>
</archivalDocument>`

	doc, err := parse(t, s, src)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Count(), "faust elements below foreign ones still count")
	assert.Equal(t, document.TypeLeaf, doc.Children[0].Type)
	assert.Equal(t, "kept", doc.Metadata.Value("classification"))
}

func TestParseSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "document", "a.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(fullDescriptor), 0o644))
	xs, err := xmlstore.New(dir)
	require.NoError(t, err)

	s := newTestStore(t, "gsa")
	doc, err := graph.Execute(context.Background(), s, func(g *graph.Graph) (*document.Document, error) {
		return ParseSource(g, xs, "faust://xml/document/a.xml")
	})
	require.NoError(t, err)
	assert.Equal(t, "faust://xml/document/a.xml", doc.SourceURI)

	_, err = graph.Execute(context.Background(), s, func(g *graph.Graph) (*document.Document, error) {
		return ParseSource(g, xs, "faust://xml/document/missing.xml")
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConvertKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"someIdno", "some-idno"},
		{"headNote", "head-note"},
		{"callnumber.gsa_1", "callnumber.gsa-1"},
		{"Archive", "archive"},
		{"already-kebab", "already-kebab"},
		{"with space", "with-space"},
		{"hand:Goethe", "hand--goethe"},
		{"ÄrchivÜbersicht", "ärchiv-übersicht"},
		{"titleǅcase", "titleǅcase"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ConvertKey(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ConvertKey(got), "conversion is idempotent")
		})
	}
}

func TestMetadataKey(t *testing.T) {
	s := newTestStore(t, "gsa")
	src := `<archivalDocument xmlns="http://www.faustedition.net/ns">
  <metadata>
    <repository>gsa</repository>
    <idno>plain</idno>
    <idno type="bl">typed</idno>
    <title type="main">not an idno</title>
  </metadata>
</archivalDocument>`

	doc, err := parse(t, s, src)
	require.NoError(t, err)
	assert.Equal(t, "plain", doc.Metadata.Value("callnumber"))
	assert.Equal(t, "typed", doc.Metadata.Value("callnumber.bl"))
	assert.Equal(t, "not an idno", doc.Metadata.Value("title"), "only idno takes a type suffix")
}
