// Package rag implements document ingest/chunk/embed/persist for knowledge
// bases, with an asynchronous parse worker. Grounded on the ingest pipeline
// shape of the teacher's pkg/rag/strategy/vector_store.go, simplified: no
// filesystem watch (ingestion here is upload-triggered, per spec.md §4.D),
// no BM25/rerank fusion (pure cosine retrieval, per spec.md §4.C).
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/objectstore"
	"github.com/aingdesk/daemon/pkg/vectorindex"
)

type DocStatus string

const (
	StatusPending DocStatus = "pending"
	StatusParsing DocStatus = "parsing"
	StatusParsed  DocStatus = "parsed"
	StatusFailed  DocStatus = "failed"
)

// KnowledgeBase is the persisted configuration of one RAG base.
type KnowledgeBase struct {
	Name         string    `json:"name"`
	SupplierName string    `json:"supplier_name"`
	EmbedModel   string    `json:"embed_model"`
	ChunkSize    int       `json:"chunk_size"`
	ChunkOverlap int       `json:"chunk_overlap"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document is one ingested file belonging to a knowledge base.
type Document struct {
	ID        string    `json:"id"`
	Base      string    `json:"base"`
	Filename  string    `json:"filename"`
	Status    DocStatus `json:"status"`
	Abstract  string    `json:"abstract,omitempty"`
	Error     string    `json:"error,omitempty"`
	ChunkIDs  []string  `json:"chunk_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func basePath(base string) string    { return fmt.Sprintf("rag/%s/base.json", base) }
func docDir(base string) string      { return fmt.Sprintf("rag/%s/docs", base) }
func docPath(base, id string) string { return fmt.Sprintf("rag/%s/docs/%s.json", base, id) }
func contentPath(base, id string) string {
	return fmt.Sprintf("rag/%s/content/%s.txt", base, id)
}

// EmbedderFactory resolves the provider+model to embed with, for a knowledge
// base, indirecting through the supplier registry so rag never imports it
// directly (keeps the dependency direction one-way).
type EmbedderFactory func(kb *KnowledgeBase) (*Embedder, error)

// Manager owns every knowledge base's documents and vector indexes, and runs
// the asynchronous ingest worker.
type Manager struct {
	store    *objectstore.Store
	newEmbed EmbedderFactory
	logger   *slog.Logger
	jobs     chan ingestJob
}

type ingestJob struct {
	base  string
	docID string
}

func NewManager(store *objectstore.Store, newEmbed EmbedderFactory, logger *slog.Logger) *Manager {
	m := &Manager{
		store:    store,
		newEmbed: newEmbed,
		logger:   logger,
		jobs:     make(chan ingestJob, 64),
	}
	return m
}

// Run starts the background parse worker; it exits when ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.jobs:
			m.process(ctx, job)
		}
	}
}

// CreateBase registers a new knowledge base.
func (m *Manager) CreateBase(kb KnowledgeBase) (*KnowledgeBase, error) {
	if m.store.Exists(basePath(kb.Name)) {
		return nil, apierr.ErrAlreadyExists
	}
	if kb.ChunkSize == 0 {
		kb.ChunkSize = DefaultChunkSize
	}
	if kb.ChunkOverlap == 0 {
		kb.ChunkOverlap = DefaultOverlap
	}
	kb.CreatedAt = time.Now()
	if err := m.store.Write(basePath(kb.Name), kb); err != nil {
		return nil, err
	}
	return &kb, nil
}

func (m *Manager) GetBase(name string) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	if err := m.store.Read(basePath(name), &kb); err != nil {
		return nil, err
	}
	if kb.Name == "" {
		return nil, apierr.ErrNotFound
	}
	return &kb, nil
}

func (m *Manager) RemoveBase(name string) error {
	if !m.store.Exists(basePath(name)) {
		return apierr.ErrNotFound
	}
	return m.store.RemoveTree(fmt.Sprintf("rag/%s", name))
}

// ListBases returns every registered knowledge base, for spec.md §4.D's
// list_rag.
func (m *Manager) ListBases() ([]*KnowledgeBase, error) {
	names, err := m.store.List("rag")
	if err != nil {
		return nil, err
	}
	bases := make([]*KnowledgeBase, 0, len(names))
	for _, name := range names {
		kb, err := m.GetBase(name)
		if err != nil {
			continue
		}
		bases = append(bases, kb)
	}
	return bases, nil
}

// ModifyBase updates a knowledge base's chunking configuration, per spec.md
// §4.D's modify_rag. The embed model/supplier are immutable after creation
// (changing them requires Reembed) so only chunking parameters are mutable
// here.
func (m *Manager) ModifyBase(name string, chunkSize, chunkOverlap int) (*KnowledgeBase, error) {
	kb, err := m.GetBase(name)
	if err != nil {
		return nil, err
	}
	if chunkSize > 0 {
		kb.ChunkSize = chunkSize
	}
	if chunkOverlap > 0 {
		kb.ChunkOverlap = chunkOverlap
	}
	if err := m.store.Write(basePath(name), *kb); err != nil {
		return nil, err
	}
	return kb, nil
}

// AddDocument persists the raw content and enqueues it for async
// chunk+embed, returning immediately with a StatusPending document, matching
// spec.md §4.D's async ingestion contract.
func (m *Manager) AddDocument(base, filename, content string) (*Document, error) {
	if _, err := m.GetBase(base); err != nil {
		return nil, err
	}

	doc := Document{
		ID:        uuid.NewString(),
		Base:      base,
		Filename:  filename,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := m.store.Write(docPath(base, doc.ID), doc); err != nil {
		return nil, err
	}
	if err := m.store.Write(contentPath(base, doc.ID), rawContent{Text: content}); err != nil {
		return nil, err
	}

	select {
	case m.jobs <- ingestJob{base: base, docID: doc.ID}:
	default:
		m.logger.Warn("rag ingest queue full, processing inline", "base", base, "doc", doc.ID)
		go m.process(context.Background(), ingestJob{base: base, docID: doc.ID})
	}

	return &doc, nil
}

type rawContent struct {
	Text string `json:"text"`
}

func (m *Manager) process(ctx context.Context, job ingestJob) {
	var doc Document
	if err := m.store.Read(docPath(job.base, job.docID), &doc); err != nil || doc.ID == "" {
		m.logger.Error("rag ingest: document vanished", "base", job.base, "doc", job.docID)
		return
	}

	doc.Status = StatusParsing
	_ = m.store.Write(docPath(job.base, job.docID), doc)

	if err := m.ingest(ctx, &doc); err != nil {
		doc.Status = StatusFailed
		doc.Error = err.Error()
		m.logger.Error("rag ingest failed", "base", job.base, "doc", job.docID, "err", err)
	} else {
		doc.Status = StatusParsed
	}
	_ = m.store.Write(docPath(job.base, job.docID), doc)
}

func (m *Manager) ingest(ctx context.Context, doc *Document) error {
	kb, err := m.GetBase(doc.Base)
	if err != nil {
		return err
	}

	var raw rawContent
	if err := m.store.Read(contentPath(doc.Base, doc.ID), &raw); err != nil {
		return err
	}

	chunks := Chunk(raw.Text, kb.ChunkSize, kb.ChunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("document produced no chunks")
	}

	embedder, err := m.newEmbed(kb)
	if err != nil {
		return err
	}
	vectors, err := embedder.EmbedAll(ctx, chunks)
	if err != nil {
		return err
	}

	idx := vectorindex.Open(m.store, doc.Base)
	chunkIDs := make([]string, len(chunks))
	for i, text := range chunks {
		chunkID := fmt.Sprintf("%s-%d", doc.ID, i)
		if err := idx.Add(chunkID, doc.ID, vectors[i], text); err != nil {
			return err
		}
		chunkIDs[i] = chunkID
	}
	doc.ChunkIDs = chunkIDs
	return nil
}

// RemoveDocument tombstones a document's chunks and deletes its record.
func (m *Manager) RemoveDocument(base, docID string) error {
	idx := vectorindex.Open(m.store, base)
	if err := idx.RemoveDocument(docID); err != nil {
		return err
	}
	if err := m.store.RemoveTree(docPath(base, docID)); err != nil {
		return err
	}
	return m.store.RemoveTree(contentPath(base, docID))
}

// GetDocument returns one document's metadata.
func (m *Manager) GetDocument(base, docID string) (*Document, error) {
	var doc Document
	if err := m.store.Read(docPath(base, docID), &doc); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, apierr.ErrNotFound
	}
	return &doc, nil
}

// GetDocumentContent returns the raw ingested text of a document.
func (m *Manager) GetDocumentContent(base, docID string) (string, error) {
	var raw rawContent
	if err := m.store.Read(contentPath(base, docID), &raw); err != nil {
		return "", err
	}
	return raw.Text, nil
}

// ListDocuments returns every document registered under a knowledge base.
func (m *Manager) ListDocuments(base string) ([]*Document, error) {
	names, err := m.store.List(docDir(base))
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(names))
	for _, n := range names {
		id := trimExt(n, ".json")
		if id == "" {
			continue
		}
		doc, err := m.GetDocument(base, id)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func trimExt(name, ext string) string {
	if len(name) <= len(ext) || name[len(name)-len(ext):] != ext {
		return ""
	}
	return name[:len(name)-len(ext)]
}

// Query retrieves the top-k chunks from a base relevant to queryText,
// embedding the query with the same model the base was built with.
func (m *Manager) Query(ctx context.Context, base, queryText string, k int) ([]vectorindex.Hit, error) {
	kb, err := m.GetBase(base)
	if err != nil {
		return nil, err
	}
	embedder, err := m.newEmbed(kb)
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.EmbedAll(ctx, []string{queryText})
	if err != nil || len(vectors) == 0 {
		return nil, err
	}

	idx := vectorindex.Open(m.store, base)
	return idx.Query(vectors[0], k)
}

// Reembed recomputes every document's chunks against the base's current
// embed model, replacing the vector index wholesale. Supplements spec.md §3's
// embedding-model-change invariant with an explicit migration path, per
// DESIGN.md.
func (m *Manager) Reembed(ctx context.Context, base string) error {
	if _, err := m.GetBase(base); err != nil {
		return err
	}
	if err := m.store.RemoveTree(fmt.Sprintf("rag/%s/manifest.json", base)); err != nil {
		return err
	}
	if err := m.store.RemoveTree(fmt.Sprintf("rag/%s/vectors.bin", base)); err != nil {
		return err
	}

	docs, err := m.ListDocuments(base)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		doc.Status = StatusPending
		if err := m.ingest(ctx, doc); err != nil {
			doc.Status = StatusFailed
			doc.Error = err.Error()
		} else {
			doc.Status = StatusParsed
		}
		if err := m.store.Write(docPath(base, doc.ID), doc); err != nil {
			return err
		}
	}
	return nil
}
