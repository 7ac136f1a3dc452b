package transcript

import (
	"context"
	"io"
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
	"github.com/gremid/faust-app/core/text"
	"github.com/gremid/faust-app/core/xmlstore"
)

const tei = `<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0"><teiHeader><fileDesc><title>Faust</title></fileDesc></teiHeader><text><body><l n="354">Habe nun, ach!</l><l n="355">Philosophie</l></body></text></TEI>`

func tokens(t *testing.T, src string) []text.Token {
	t.Helper()
	got, err := text.Collect(Tokenize(io.NopCloser(strings.NewReader(src)), "test.xml"))
	require.NoError(t, err)
	return got
}

func TestTokenizeSkipsHeader(t *testing.T) {
	got := tokens(t, tei)

	assert.Equal(t, "Habe nun, ach!Philosophie", text.Plain(got))

	var names []string
	for _, tok := range got {
		if start, ok := tok.(text.AnnotationStart); ok {
			names = append(names, start.Name.Local)
		}
	}
	assert.Equal(t, []string{"TEI", "text", "body", "l", "l"}, names)
}

func TestTokenizeBalancesAnnotations(t *testing.T) {
	got := tokens(t, tei)

	open := map[string]bool{}
	for _, tok := range got {
		switch tok := tok.(type) {
		case text.AnnotationStart:
			assert.False(t, open[tok.ID], "ids are unique")
			open[tok.ID] = true
		case text.AnnotationEnd:
			assert.True(t, open[tok.ID], "end without start: %s", tok.ID)
			delete(open, tok.ID)
		}
	}
	assert.Empty(t, open)

	line, ok := got[3].(text.AnnotationStart)
	require.True(t, ok)
	assert.Equal(t, TEINamespace, line.Name.Space)
	n, ok := line.Attr("n")
	assert.True(t, ok)
	assert.Equal(t, "354", n)
}

func TestTokenizeMalformed(t *testing.T) {
	_, err := text.Collect(Tokenize(io.NopCloser(strings.NewReader(`<TEI><l>`)), "broken.xml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSourceTextual(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript", "p1.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(tei), 0o644))
	xs, err := xmlstore.New(dir)
	require.NoError(t, err)

	gs, err := graph.New(sqlite.OpenMemory(t))
	require.NoError(t, err)
	ctx := context.Background()

	with := document.NewDocument(document.TypeArchivalDocument, 0, "faust://xml/document/a.xml")
	with.TranscriptSource = "faust://xml/transcript/p1.xml"
	without := document.NewDocument(document.TypeArchivalDocument, 0, "faust://xml/document/b.xml")
	err = graph.Run(ctx, gs, func(g *graph.Graph) error {
		if err := document.CreateDocument(g, with); err != nil {
			return err
		}
		return document.CreateDocument(g, without)
	})
	require.NoError(t, err)

	src := NewSource(gs, xs)

	stream, err := src.Textual(ctx, int64(with.ID))
	require.NoError(t, err)
	got, err := text.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "Habe nun, ach!Philosophie", text.Plain(got))

	stream, err = src.Textual(ctx, int64(without.ID))
	require.NoError(t, err)
	got, err = text.Collect(stream)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = src.Textual(ctx, 4242)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
