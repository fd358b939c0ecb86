package vectorindex

import (
	"testing"

	"github.com/aingdesk/daemon/pkg/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	store, err := objectstore.New(t.TempDir())
	require.NoError(t, err)
	return Open(store, "kb1")
}

func TestAddAndQueryOrdersByScore(t *testing.T) {
	t.Parallel()
	idx := newIndex(t)

	require.NoError(t, idx.Add("c1", "doc1", []float64{1, 0, 0}, "exact match"))
	require.NoError(t, idx.Add("c2", "doc1", []float64{0, 1, 0}, "orthogonal"))
	require.NoError(t, idx.Add("c3", "doc1", []float64{0.9, 0.1, 0}, "close"))

	hits, err := idx.Query([]float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, "c3", hits[1].ChunkID)
}

func TestQueryTieBreaksByChunkID(t *testing.T) {
	t.Parallel()
	idx := newIndex(t)

	require.NoError(t, idx.Add("c2", "doc1", []float64{1, 0}, "a"))
	require.NoError(t, idx.Add("c1", "doc1", []float64{1, 0}, "b"))

	hits, err := idx.Query([]float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, "c2", hits[1].ChunkID)
}

func TestRemoveDocumentExcludesFromQuery(t *testing.T) {
	t.Parallel()
	idx := newIndex(t)

	require.NoError(t, idx.Add("c1", "doc1", []float64{1, 0}, "a"))
	require.NoError(t, idx.Add("c2", "doc2", []float64{1, 0}, "b"))

	require.NoError(t, idx.RemoveDocument("doc1"))

	hits, err := idx.Query([]float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ChunkID)
}

func TestCompactDropsTombstonedRecords(t *testing.T) {
	t.Parallel()
	idx := newIndex(t)

	require.NoError(t, idx.Add("c1", "doc1", []float64{1, 0}, "a"))
	require.NoError(t, idx.Add("c2", "doc2", []float64{0, 1}, "b"))
	require.NoError(t, idx.RemoveDocument("doc1"))
	require.NoError(t, idx.Compact())

	m, err := idx.readManifest()
	require.NoError(t, err)
	require.Len(t, m.Records, 1)
	assert.Equal(t, "c2", m.Records[0].ChunkID)

	hits, err := idx.Query([]float64{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ChunkID)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{1, 0, 0}))
}
