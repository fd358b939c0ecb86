package rag

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aingdesk/daemon/pkg/objectstore"
)

// fakeEmbedProvider returns a fixed-dimension embedding derived from text
// length, deterministic and cheap, standing in for a real supplier call.
type fakeEmbedProvider struct{}

func (fakeEmbedProvider) Embed(_ context.Context, _ string, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	store, err := objectstore.New(t.TempDir())
	require.NoError(t, err)

	factory := func(_ *KnowledgeBase) (*Embedder, error) {
		return NewEmbedder(fakeEmbedProvider{}, "fake-embed"), nil
	}
	return NewManager(store, factory, slog.Default())
}

func TestCreateBaseAndAddDocumentIngestsSynchronously(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	_, err := m.CreateBase(KnowledgeBase{Name: "kb1"})
	require.NoError(t, err)

	doc, err := m.AddDocument("kb1", "notes.txt", "hello world, this is a test document")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, doc.Status)

	// process is normally run by the background worker; invoke it directly
	// here so the test doesn't depend on goroutine scheduling.
	m.process(context.Background(), ingestJob{base: "kb1", docID: doc.ID})

	got, err := m.GetDocument("kb1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusParsed, got.Status)
	assert.NotEmpty(t, got.ChunkIDs)
}

func TestAddDocumentUnknownBaseFails(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	_, err := m.AddDocument("missing", "f.txt", "content")
	require.Error(t, err)
}

func TestQueryReturnsIngestedChunks(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	_, err := m.CreateBase(KnowledgeBase{Name: "kb1"})
	require.NoError(t, err)

	doc, err := m.AddDocument("kb1", "notes.txt", "a short document")
	require.NoError(t, err)
	m.process(context.Background(), ingestJob{base: "kb1", docID: doc.ID})

	hits, err := m.Query(context.Background(), "kb1", "a short document", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestRemoveDocumentExcludesFromFutureQueries(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	_, err := m.CreateBase(KnowledgeBase{Name: "kb1"})
	require.NoError(t, err)
	doc, err := m.AddDocument("kb1", "notes.txt", "some content to embed")
	require.NoError(t, err)
	m.process(context.Background(), ingestJob{base: "kb1", docID: doc.ID})

	require.NoError(t, m.RemoveDocument("kb1", doc.ID))

	_, err = m.GetDocument("kb1", doc.ID)
	require.Error(t, err)

	hits, err := m.Query(context.Background(), "kb1", "some content to embed", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChunkProducesOverlappingWindows(t *testing.T) {
	t.Parallel()
	text := "0123456789"
	chunks := Chunk(text, 4, 2)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "0123", chunks[0])
	assert.Equal(t, "2345", chunks[1])
}

func TestChunkEmptyTextReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Chunk("   ", 10, 2))
}

func TestListBasesAndModifyBase(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	_, err := m.CreateBase(KnowledgeBase{Name: "kb1", ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)
	_, err = m.CreateBase(KnowledgeBase{Name: "kb2"})
	require.NoError(t, err)

	bases, err := m.ListBases()
	require.NoError(t, err)
	assert.Len(t, bases, 2)

	updated, err := m.ModifyBase("kb1", 200, 20)
	require.NoError(t, err)
	assert.Equal(t, 200, updated.ChunkSize)
	assert.Equal(t, 20, updated.ChunkOverlap)

	got, err := m.GetBase("kb1")
	require.NoError(t, err)
	assert.Equal(t, 200, got.ChunkSize)
}

func TestRemoveBase(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	_, err := m.CreateBase(KnowledgeBase{Name: "kb1"})
	require.NoError(t, err)

	require.NoError(t, m.RemoveBase("kb1"))

	_, err = m.GetBase("kb1")
	require.Error(t, err)
}
