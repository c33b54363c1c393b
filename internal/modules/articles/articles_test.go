package articles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/petal/internal/ir"
)

const seed = `
articles:
  - title: Gecko Adhesion
    summary: Van der Waals forces in setae.
    url: https://example.org/gecko
    authors: [Autumn, Full]
  - title: "  Lotus Effect "
    summary: Superhydrophobic leaf surfaces.
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "articles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(t *testing.T, s *Source) ([]ir.Transaction, error) {
	t.Helper()
	var txs []ir.Transaction
	for tx, err := range s.Process(context.Background(), nil) {
		if err != nil {
			return txs, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func TestSource_Spec(t *testing.T) {
	spec := New("x").Spec()
	assert.Equal(t, Name, spec.Name)
	assert.Equal(t, Label, spec.OutLabel)
	assert.True(t, spec.IsSource())
	assert.Nil(t, spec.ConnectLabels)
}

func TestSource_EmitsArticles(t *testing.T) {
	s := New(writeSeed(t, seed))

	txs, err := collect(t, s)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	for _, tx := range txs {
		require.NoError(t, tx.Validate())
		assert.Equal(t, Label, tx.OutLabel)
		assert.False(t, tx.HasLink())
	}

	assert.Equal(t, ir.NameID(idNamespace, "https://example.org/gecko"), txs[0].UUID)
	assert.Equal(t, "Gecko Adhesion", txs[0].Data["title"])
	assert.Equal(t, []string{"Autumn", "Full"}, txs[0].Data["authors"])

	assert.Equal(t, ir.NameID(idNamespace, "lotus effect"), txs[1].UUID)
	assert.NotContains(t, txs[1].Data, "url")
}

func TestSource_StableIDs(t *testing.T) {
	s := New(writeSeed(t, seed))
	first, err := collect(t, s)
	require.NoError(t, err)
	second, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSource_MissingFileYieldsNothing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.yaml"))
	txs, err := collect(t, s)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestSource_MalformedSeed(t *testing.T) {
	s := New(writeSeed(t, "articles: [unclosed"))
	_, err := collect(t, s)
	assert.ErrorContains(t, err, "parse seed")
}

func TestSource_UntitledArticleIsAnError(t *testing.T) {
	s := New(writeSeed(t, "articles:\n  - summary: no title\n"))
	_, err := collect(t, s)
	assert.ErrorContains(t, err, "has no title")
}
