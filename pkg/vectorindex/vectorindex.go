// Package vectorindex implements the per-knowledge-base cosine-similarity
// chunk index: an append-only vector log plus a manifest of live chunk
// offsets. Grounded on the teacher's pkg/rag/database.CosineSimilarity /
// SortByScore helpers and the single-writer posture of
// pkg/rag/strategy/vector_store.go.
package vectorindex

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aingdesk/daemon/pkg/objectstore"
)

// Record is one chunk's manifest entry: its IDs, dimension, tombstone flag,
// and the offset of its embedding and content in vectors.bin.
type Record struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Offset     int64     `json:"offset"` // byte offset into vectors.bin
	Dimension  int       `json:"dimension"`
	Tombstoned bool      `json:"tombstoned"`
}

type manifest struct {
	Dimension int      `json:"dimension"`
	Records   []Record `json:"records"`
}

// Hit is one scored retrieval result.
type Hit struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float64
}

type vectorEntry struct {
	ChunkID   string
	Embedding []float64
	Content   string
}

// Index is the vector store for a single knowledge base.
type Index struct {
	store *objectstore.Store
	base  string // knowledge base name, used as the relative directory

	mu sync.Mutex // single-writer invariant: one goroutine mutates at a time
}

func Open(store *objectstore.Store, base string) *Index {
	return &Index{store: store, base: base}
}

func (idx *Index) manifestPath() string { return filepath.Join("rag", idx.base, "manifest.json") }
func (idx *Index) vectorsPath() string  { return filepath.Join("rag", idx.base, "vectors.bin") }

func (idx *Index) readManifest() (manifest, error) {
	var m manifest
	if err := idx.store.Read(idx.manifestPath(), &m); err != nil {
		return manifest{}, err
	}
	return m, nil
}

// Add appends one chunk's embedding and content to the index under the
// caller-supplied chunkID. An embedding whose dimension differs from the
// first one ever added to this base is rejected.
func (idx *Index) Add(chunkID, documentID string, embedding []float64, content string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	m, err := idx.readManifest()
	if err != nil {
		return err
	}
	if m.Dimension == 0 {
		m.Dimension = len(embedding)
	} else if len(embedding) != m.Dimension {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d", len(embedding), m.Dimension)
	}

	f, err := idx.store.OpenAppend(idx.vectorsPath())
	if err != nil {
		return err
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(vectorEntry{ChunkID: chunkID, Embedding: embedding, Content: content}); err != nil {
		return err
	}

	m.Records = append(m.Records, Record{
		ChunkID:    chunkID,
		DocumentID: documentID,
		Offset:     offset,
		Dimension:  len(embedding),
	})
	return idx.store.Write(idx.manifestPath(), m)
}

// Query returns the top-k chunks by cosine similarity to queryVector, ties
// broken by ascending chunk ID, matching spec.md §4.C's determinism
// requirement.
func (idx *Index) Query(queryVector []float64, k int) ([]Hit, error) {
	m, err := idx.readManifest()
	if err != nil {
		return nil, err
	}

	f, err := idx.store.OpenRead(idx.vectorsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	hits := make([]Hit, 0, len(m.Records))
	for _, rec := range m.Records {
		if rec.Tombstoned {
			continue
		}
		entry, err := readEntryAt(f, rec.Offset)
		if err != nil {
			continue // skip unreadable record rather than fail the whole query
		}
		hits = append(hits, Hit{
			ChunkID:    rec.ChunkID,
			DocumentID: rec.DocumentID,
			Content:    entry.Content,
			Score:      CosineSimilarity(queryVector, entry.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func readEntryAt(f *os.File, offset int64) (vectorEntry, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return vectorEntry{}, err
	}
	var entry vectorEntry
	if err := gob.NewDecoder(f).Decode(&entry); err != nil {
		return vectorEntry{}, err
	}
	return entry, nil
}

// RemoveDocument tombstones every chunk belonging to documentID.
func (idx *Index) RemoveDocument(documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	m, err := idx.readManifest()
	if err != nil {
		return err
	}

	changed := false
	for i := range m.Records {
		if m.Records[i].DocumentID == documentID && !m.Records[i].Tombstoned {
			m.Records[i].Tombstoned = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return idx.store.Write(idx.manifestPath(), m)
}

// Compact rewrites vectors.bin without tombstoned chunks and resets their
// offsets in the manifest. It is idempotent: calling it with nothing to
// compact is a no-op write of the same manifest.
func (idx *Index) Compact() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	m, err := idx.readManifest()
	if err != nil {
		return err
	}

	f, err := idx.store.OpenRead(idx.vectorsPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	tmpPath := idx.vectorsPath() + ".compact"
	tmpAbs := idx.store.AbsPath(tmpPath)
	if err := os.MkdirAll(filepath.Dir(tmpAbs), 0o755); err != nil {
		return err
	}
	out, err := os.Create(tmpAbs)
	if err != nil {
		return err
	}

	live := make([]Record, 0, len(m.Records))
	var offset int64
	for _, rec := range m.Records {
		if rec.Tombstoned {
			continue
		}
		if f == nil {
			continue
		}
		entry, err := readEntryAt(f, rec.Offset)
		if err != nil {
			continue
		}
		// A fresh encoder per record, as in Add, so each record carries its
		// own gob type header and can be decoded alone from its offset.
		if err := gob.NewEncoder(out).Encode(entry); err != nil {
			out.Close()
			return err
		}
		rec.Offset = offset
		live = append(live, rec)
		offset, _ = out.Seek(0, io.SeekCurrent)
	}
	if f != nil {
		f.Close()
	}
	out.Close()

	finalAbs := idx.store.AbsPath(idx.vectorsPath())
	if err := os.Rename(tmpAbs, finalAbs); err != nil {
		return err
	}

	m.Records = live
	return idx.store.Write(idx.manifestPath(), m)
}

// CosineSimilarity mirrors the teacher's pkg/rag/database.CosineSimilarity.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
