// Package modelmanager implements the install/uninstall lifecycle for local
// model runtime artifacts, with pollable install jobs. Grounded on the
// teacher's local-runtime-client shape (pkg/model/provider/dmr: a managed
// local model runtime with named installed artifacts), generalized from
// "Docker Model Runner" to this spec's local, ollama-compatible runtime; the
// job-polling loop follows the teacher's general background-goroutine idiom.
package modelmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/concurrent"
	"github.com/aingdesk/daemon/pkg/objectstore"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

type JobState string

const (
	StateQueued      JobState = "queued"
	StateDownloading JobState = "downloading"
	StateInstalling  JobState = "installing"
	StateDone        JobState = "done"
	StateFailed      JobState = "failed"
)

func isTerminal(s JobState) bool { return s == StateDone || s == StateFailed }

// runtimeJobModel is the synthetic "model name" install_model_manager polls,
// distinct from any real model name a user installs.
const runtimeJobModel = "__model_manager_runtime__"

// InstallJob tracks one install's progress, polled at 1 Hz by the client per
// spec.md §4.G.
type InstallJob struct {
	ID        string    `json:"id"`
	ModelName string    `json:"model_name"`
	Mirror    string    `json:"mirror"`
	State     JobState  `json:"state"`
	Progress  float64   `json:"progress"` // 0..1
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Runtime is the local control-plane client the manager drives; a real
// implementation speaks to the locally managed ollama-compatible process.
type Runtime interface {
	Pull(ctx context.Context, modelName, mirror string, onProgress func(float64)) error
	Remove(ctx context.Context, modelName string) error
	Installed(ctx context.Context) ([]string, error)
}

func jobPath(id string) string { return fmt.Sprintf("models/jobs/%s.json", id) }

// Manager owns the install-job table and the installed-model registry.
type Manager struct {
	store     *objectstore.Store
	runtime   Runtime
	suppliers *suppliers.Registry
	logger    *slog.Logger
	jobs      *concurrent.Map[string, *InstallJob]
}

func New(store *objectstore.Store, runtime Runtime, registry *suppliers.Registry, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		store:     store,
		runtime:   runtime,
		suppliers: registry,
		logger:    logger,
		jobs:      concurrent.NewMap[string, *InstallJob](),
	}
	names, err := store.List("models/jobs")
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		var job InstallJob
		if err := store.Read(fmt.Sprintf("models/jobs/%s", n), &job); err == nil && job.ID != "" {
			m.jobs.Set(job.ID, &job)
		}
	}
	return m, nil
}

// jobForModel returns an already-terminal, successful job for modelName if
// one exists, so repeated installs of an already-installed model are
// idempotent per spec.md §8.
func (m *Manager) jobForModel(modelName string) *InstallJob {
	for _, job := range m.jobs.Values() {
		if job.ModelName == modelName && job.State == StateDone {
			return job
		}
	}
	return nil
}

// Install starts an async pull of modelName from mirror, returning
// immediately with a StateQueued job the caller polls. If modelName is
// already installed (a prior job reached StateDone), that job is returned
// unchanged instead of starting a redundant pull.
func (m *Manager) Install(ctx context.Context, modelName, mirror string) (*InstallJob, error) {
	if existing := m.jobForModel(modelName); existing != nil {
		return existing, nil
	}

	job := &InstallJob{
		ID:        uuid.NewString(),
		ModelName: modelName,
		Mirror:    mirror,
		State:     StateQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := m.persist(job); err != nil {
		return nil, err
	}
	m.jobs.Set(job.ID, job)

	go m.run(context.Background(), job)
	return job, nil
}

// InstallModelManager installs the local model-runtime software itself
// (install_model_manager), reusing the same job machinery under a reserved
// model name.
func (m *Manager) InstallModelManager(ctx context.Context) (*InstallJob, error) {
	return m.Install(ctx, runtimeJobModel, "")
}

// ModelManagerInstallProgress polls the runtime-install job started by
// InstallModelManager (get_model_manager_install_progress).
func (m *Manager) ModelManagerInstallProgress() (*InstallJob, error) {
	for _, job := range m.jobs.Values() {
		if job.ModelName == runtimeJobModel {
			return job, nil
		}
	}
	return nil, apierr.ErrNotFound
}

func (m *Manager) persist(job *InstallJob) error {
	return m.store.Write(jobPath(job.ID), *job)
}

func (m *Manager) run(ctx context.Context, job *InstallJob) {
	m.setState(job, StateDownloading, 0)

	err := m.runtime.Pull(ctx, job.ModelName, job.Mirror, func(progress float64) {
		m.setState(job, StateDownloading, progress)
	})
	if err != nil {
		m.fail(job, err)
		return
	}

	m.setState(job, StateInstalling, 1)
	m.registerInstalled(job.ModelName)
	m.setTerminal(job, StateDone, "")
}

// registerInstalled auto-registers a successfully installed model into the
// local supplier's model list, per spec.md §4.G. A missing local supplier is
// logged and skipped rather than treated as a fatal install error.
func (m *Manager) registerInstalled(modelName string) {
	if m.suppliers == nil || modelName == runtimeJobModel {
		return
	}
	local, ok := m.suppliers.Local()
	if !ok {
		m.logger.Warn("modelmanager: no local supplier registered, skipping auto-register", "model", modelName)
		return
	}
	if _, err := m.suppliers.AddModel(context.Background(), local.Name, suppliers.Model{
		Name:         modelName,
		Capabilities: []suppliers.Capability{suppliers.CapabilityChat},
		Enabled:      true,
	}); err != nil && !errors.Is(err, apierr.ErrAlreadyExists) {
		m.logger.Error("modelmanager: failed to auto-register installed model", "model", modelName, "err", err)
	}
}

func (m *Manager) setState(job *InstallJob, state JobState, progress float64) {
	job.State = state
	job.Progress = progress
	job.UpdatedAt = time.Now()
	if err := m.persist(job); err != nil {
		m.logger.Error("modelmanager: failed to persist job", "job", job.ID, "err", err)
	}
}

func (m *Manager) fail(job *InstallJob, err error) {
	m.setTerminal(job, StateFailed, err.Error())
}

func (m *Manager) setTerminal(job *InstallJob, state JobState, errMsg string) {
	// Monotonic: once a job reaches a terminal state it never regresses.
	if isTerminal(job.State) {
		return
	}
	job.State = state
	job.Error = errMsg
	job.UpdatedAt = time.Now()
	if err := m.persist(job); err != nil {
		m.logger.Error("modelmanager: failed to persist terminal job", "job", job.ID, "err", err)
	}
}

// GetJob returns one job's current state for polling.
func (m *Manager) GetJob(id string) (*InstallJob, error) {
	job, ok := m.jobs.Get(id)
	if !ok {
		return nil, apierr.ErrNotFound
	}
	return job, nil
}

// ReconnectDownload swaps a queued/downloading job's mirror and resumes it
// from StateDownloading, per spec.md §4.G's reconnect_model_download.
func (m *Manager) ReconnectDownload(ctx context.Context, id, newMirror string) (*InstallJob, error) {
	job, ok := m.jobs.Get(id)
	if !ok {
		return nil, apierr.ErrNotFound
	}
	if isTerminal(job.State) {
		return nil, apierr.Wrap(apierr.ErrConflict, fmt.Errorf("job %q already finished", id))
	}

	job.Mirror = newMirror
	job.State = StateQueued
	job.UpdatedAt = time.Now()
	if err := m.persist(job); err != nil {
		return nil, err
	}

	go m.run(ctx, job)
	return job, nil
}

// Uninstall removes a locally installed model and drops it from the local
// supplier's model list, per spec.md §4.G.
func (m *Manager) Uninstall(ctx context.Context, modelName string) error {
	if err := m.runtime.Remove(ctx, modelName); err != nil {
		return err
	}
	if m.suppliers != nil {
		if local, ok := m.suppliers.Local(); ok {
			if _, err := m.suppliers.RemoveModel(ctx, local.Name, modelName); err != nil {
				m.logger.Error("modelmanager: failed to deregister uninstalled model", "model", modelName, "err", err)
			}
		}
	}
	return nil
}

// ListInstalled returns the names of every locally installed model.
func (m *Manager) ListInstalled(ctx context.Context) ([]string, error) {
	return m.runtime.Installed(ctx)
}

// ListVisibleModels returns every model the UI should show as locally
// available: installed models plus models with an install job still in
// flight, per spec.md §4.G's list_visible_models.
func (m *Manager) ListVisibleModels(ctx context.Context) ([]string, error) {
	installed, err := m.runtime.Installed(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(installed))
	visible := append([]string{}, installed...)
	for _, name := range installed {
		seen[name] = true
	}
	for _, job := range m.jobs.Values() {
		if job.ModelName == runtimeJobModel || seen[job.ModelName] || isTerminal(job.State) {
			continue
		}
		visible = append(visible, job.ModelName)
		seen[job.ModelName] = true
	}
	return visible, nil
}
