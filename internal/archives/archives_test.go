package archives

import (
	"context"
	"errors"
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

const registry = `<?xml version="1.0" encoding="UTF-8"?>
<archives xmlns="http://www.faustedition.net/ns">
  <archive id="gsa">
    <name>Goethe- und Schiller-Archiv</name>
    <institution>Klassik Stiftung Weimar</institution>
    <city>Weimar</city>
    <country>Deutschland</country>
    <url>https://ores.klassik-stiftung.de/</url>
  </archive>
  <archive id="bl">
    <name>British Library</name>
    <city>London</city>
  </archive>
</archives>`

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(registry), "archives.xml")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, &document.Archive{
		ID:          "gsa",
		Name:        "Goethe- und Schiller-Archiv",
		Institution: "Klassik Stiftung Weimar",
		City:        "Weimar",
		Country:     "Deutschland",
		URL:         "https://ores.klassik-stiftung.de/",
	}, got[0])
	assert.Equal(t, "bl", got[1].ID)
	assert.Empty(t, got[1].Country)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		xml       string
		duplicate bool
	}{
		{"malformed", `<archives><archive id="a"></archives>`, false},
		{"wrong root", `<registry><archive id="a"/></registry>`, false},
		{"missing id", `<archives><archive><name>x</name></archive></archives>`, false},
		{"duplicate id", `<archives><archive id="a"/><archive id="a"/></archives>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.xml), "archives.xml")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

			var perr *apperrors.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "archives.xml", perr.Path)
			assert.Equal(t, tt.duplicate, errors.Is(err, apperrors.ErrAlreadyExists))
		})
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archives.xml"), []byte(registry), 0o644))
	xs, err := xmlstore.New(dir)
	require.NoError(t, err)
	gs, err := graph.New(sqlite.OpenMemory(t))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n, err := Load(ctx, gs, xs, "faust://xml/archives.xml")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	err = graph.Run(ctx, gs, func(g *graph.Graph) error {
		c, err := document.Archives(g)
		require.NoError(t, err)

		all, err := c.All()
		require.NoError(t, err)
		assert.Len(t, all, 2)

		gsa, err := c.FindByID("gsa")
		require.NoError(t, err)
		assert.Equal(t, "Weimar", gsa.City)
		return nil
	}, graph.ReadOnly())
	require.NoError(t, err)
}

func TestLoadMissingRegistry(t *testing.T) {
	xs, err := xmlstore.New(t.TempDir())
	require.NoError(t, err)
	gs, err := graph.New(sqlite.OpenMemory(t))
	require.NoError(t, err)

	_, err = Load(context.Background(), gs, xs, "faust://xml/archives.xml")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
