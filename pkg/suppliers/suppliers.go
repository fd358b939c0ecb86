// Package suppliers implements the registry of LLM suppliers and the models
// each one exposes, persisted as one JSON document per supplier under
// suppliers/<name>.json. Grounded on the teacher's pkg/model/provider.New
// dispatch-on-Type shape (pkg/model/provider/provider.go).
package suppliers

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/concurrent"
	"github.com/aingdesk/daemon/pkg/httpclient"
	"github.com/aingdesk/daemon/pkg/objectstore"
)

// Kind distinguishes the daemon's one local runtime supplier from every
// remote, OpenAI-compatible supplier. Exactly one Kind == Local supplier may
// exist at a time (see spec.md §4.B's single-local-supplier invariant).
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
)

// Capability tags a model's usable role. A model can carry more than one.
type Capability string

const (
	CapabilityChat      Capability = "chat"
	CapabilityEmbedding Capability = "embedding"
)

// Model describes one model a supplier exposes.
type Model struct {
	Name          string       `json:"name"`
	Title         string       `json:"title"`
	ContextLength int          `json:"context_length"`
	ParameterTag  string       `json:"parameter_tag"` // e.g. "7b", "70b-instruct-q4"
	Capabilities  []Capability `json:"capabilities"`
	Enabled       bool         `json:"enabled"`
}

func (m Model) hasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Supplier is the persisted configuration for one LLM backend.
type Supplier struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	BaseURL   string    `json:"base_url"`
	APIKey    string    `json:"api_key,omitempty"`
	Enabled   bool      `json:"enabled"`
	Models    []Model   `json:"models"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func relPath(name string) string {
	return fmt.Sprintf("suppliers/%s.json", name)
}

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomName generates the spec-mandated random 10-char alphanumeric supplier
// name used when a caller omits one on Create.
func randomName() string {
	b := make([]byte, 10)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(nameAlphabet))))
		if err != nil {
			// crypto/rand failure is effectively unrecoverable; fall back to
			// a fixed character rather than panic mid-registry-mutation.
			b[i] = nameAlphabet[0]
			continue
		}
		b[i] = nameAlphabet[n.Int64()]
	}
	return string(b)
}

// Registry is the supplier CRUD façade, backed by the object store with an
// in-memory read cache invalidated on every mutation.
type Registry struct {
	store      *objectstore.Store
	cache      *concurrent.Map[string, *Supplier]
	httpClient *http.Client
}

// New constructs a Registry over store, warming its cache from disk.
func New(store *objectstore.Store) (*Registry, error) {
	r := &Registry{
		store:      store,
		cache:      concurrent.NewMap[string, *Supplier](),
		httpClient: httpclient.NewHTTPClient(),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	names, err := r.store.List("suppliers")
	if err != nil {
		return err
	}
	for _, n := range names {
		name := trimJSON(n)
		if name == "" {
			continue
		}
		var sup Supplier
		if err := r.store.Read(relPath(name), &sup); err != nil {
			return err
		}
		if sup.Name == "" {
			continue // corrupt/empty document, skip rather than surface a half-record
		}
		r.cache.Set(name, &sup)
	}
	return nil
}

func trimJSON(filename string) string {
	const suffix = ".json"
	if len(filename) <= len(suffix) || filename[len(filename)-len(suffix):] != suffix {
		return ""
	}
	return filename[:len(filename)-len(suffix)]
}

// List returns every registered supplier, ordered by name.
func (r *Registry) List() []*Supplier {
	all := r.cache.Values()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Get returns the supplier with the given name.
func (r *Registry) Get(name string) (*Supplier, error) {
	sup, ok := r.cache.Get(name)
	if !ok {
		return nil, apierr.ErrNotFound
	}
	return sup, nil
}

// Create registers a new supplier. Name is auto-generated as a random
// 10-char alphanumeric string when omitted, per spec.md §4.B. It is an error
// to reuse an existing name, and an error to register a second KindLocal
// supplier.
func (r *Registry) Create(ctx context.Context, sup Supplier) (*Supplier, error) {
	_ = ctx
	if sup.Name == "" {
		sup.Name = randomName()
		for _, ok := r.cache.Get(sup.Name); ok; _, ok = r.cache.Get(sup.Name) {
			sup.Name = randomName()
		}
	} else if _, ok := r.cache.Get(sup.Name); ok {
		return nil, apierr.ErrAlreadyExists
	}
	if sup.Kind == KindLocal {
		for _, existing := range r.cache.Values() {
			if existing.Kind == KindLocal {
				return nil, apierr.Wrap(apierr.ErrConflict, fmt.Errorf("a local supplier %q already exists", existing.Name))
			}
		}
	}

	now := time.Now()
	sup.CreatedAt = now
	sup.UpdatedAt = now
	if err := r.store.Write(relPath(sup.Name), sup); err != nil {
		return nil, err
	}
	r.cache.Set(sup.Name, &sup)
	return &sup, nil
}

// Update replaces the models/config of an existing supplier.
func (r *Registry) Update(ctx context.Context, name string, mutate func(*Supplier)) (*Supplier, error) {
	_ = ctx
	sup, ok := r.cache.Get(name)
	if !ok {
		return nil, apierr.ErrNotFound
	}
	updated := *sup
	mutate(&updated)
	updated.Name = name
	updated.UpdatedAt = time.Now()

	if err := r.store.Write(relPath(name), updated); err != nil {
		return nil, err
	}
	r.cache.Set(name, &updated)
	return &updated, nil
}

// Remove deletes a supplier from the registry.
func (r *Registry) Remove(ctx context.Context, name string) error {
	_ = ctx
	if _, ok := r.cache.Get(name); !ok {
		return apierr.ErrNotFound
	}
	if err := r.store.RemoveTree(relPath(name)); err != nil {
		return err
	}
	r.cache.Delete(name)
	return nil
}

// SetSupplierStatus enables or disables a supplier without touching its
// models, per spec.md §4.B's set_supplier_status.
func (r *Registry) SetSupplierStatus(ctx context.Context, name string, enabled bool) (*Supplier, error) {
	return r.Update(ctx, name, func(s *Supplier) { s.Enabled = enabled })
}

// AddModel appends a new model to a supplier, rejecting a duplicate name.
func (r *Registry) AddModel(ctx context.Context, supplierName string, model Model) (*Supplier, error) {
	var addErr error
	sup, err := r.Update(ctx, supplierName, func(s *Supplier) {
		for _, m := range s.Models {
			if m.Name == model.Name {
				addErr = apierr.Wrap(apierr.ErrAlreadyExists, fmt.Errorf("model %q already exists on supplier %q", model.Name, supplierName))
				return
			}
		}
		s.Models = append(s.Models, model)
	})
	if err != nil {
		return nil, err
	}
	if addErr != nil {
		return nil, addErr
	}
	return sup, nil
}

// RemoveModel deletes a model from a supplier by name.
func (r *Registry) RemoveModel(ctx context.Context, supplierName, modelName string) (*Supplier, error) {
	return r.Update(ctx, supplierName, func(s *Supplier) {
		kept := make([]Model, 0, len(s.Models))
		for _, m := range s.Models {
			if m.Name != modelName {
				kept = append(kept, m)
			}
		}
		s.Models = kept
	})
}

// SetModelStatus enables or disables one of a supplier's models.
func (r *Registry) SetModelStatus(ctx context.Context, supplierName, modelName string, enabled bool) (*Supplier, error) {
	return r.Update(ctx, supplierName, func(s *Supplier) {
		for i := range s.Models {
			if s.Models[i].Name == modelName {
				s.Models[i].Enabled = enabled
			}
		}
	})
}

// SetModelTitle renames a model's display title without touching its name.
func (r *Registry) SetModelTitle(ctx context.Context, supplierName, modelName, title string) (*Supplier, error) {
	return r.Update(ctx, supplierName, func(s *Supplier) {
		for i := range s.Models {
			if s.Models[i].Name == modelName {
				s.Models[i].Title = title
			}
		}
	})
}

// EmbeddingModel pairs a model with the supplier it belongs to, for listing
// embedding-capable models across the whole registry.
type EmbeddingModel struct {
	SupplierName string `json:"supplier_name"`
	Model        Model  `json:"model"`
}

// ListEmbeddingModels returns every enabled embedding-capable model across
// every enabled supplier, for RAG base creation to choose from.
func (r *Registry) ListEmbeddingModels() []EmbeddingModel {
	var out []EmbeddingModel
	for _, sup := range r.List() {
		if !sup.Enabled {
			continue
		}
		for _, m := range sup.Models {
			if m.Enabled && m.hasCapability(CapabilityEmbedding) {
				out = append(out, EmbeddingModel{SupplierName: sup.Name, Model: m})
			}
		}
	}
	return out
}

// ModelsOf returns the models a registered supplier exposes.
func (r *Registry) ModelsOf(name string) ([]Model, error) {
	sup, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return sup.Models, nil
}

// CheckConfig probes a supplier's base URL with a minimal, zero-token request
// to confirm the configured endpoint and credentials are reachable, grounded
// on the teacher's pattern of issuing a cheap upstream call before accepting
// a model-provider configuration.
func (r *Registry) CheckConfig(ctx context.Context, name string) error {
	sup, err := r.Get(name)
	if err != nil {
		return err
	}

	url := sup.BaseURL + "/models"
	if sup.Kind == KindLocal {
		url = sup.BaseURL + "/api/tags"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apierr.Wrap(apierr.ErrInvalidInput, err)
	}
	if sup.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+sup.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apierr.Wrap(apierr.ErrUpstream, fmt.Errorf("supplier %q returned status %d", name, resp.StatusCode))
	}
	return nil
}

// Local returns the registry's single local supplier, if any.
func (r *Registry) Local() (*Supplier, bool) {
	for _, sup := range r.cache.Values() {
		if sup.Kind == KindLocal {
			return sup, true
		}
	}
	return nil, false
}
