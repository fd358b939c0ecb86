package modelmanager

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aingdesk/daemon/pkg/objectstore"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

type fakeRuntime struct {
	failWith   error
	installed  []string
	pullCalled chan struct{}
}

func (f *fakeRuntime) Pull(_ context.Context, modelName, _ string, onProgress func(float64)) error {
	onProgress(0.5)
	if f.pullCalled != nil {
		close(f.pullCalled)
	}
	if f.failWith != nil {
		return f.failWith
	}
	f.installed = append(f.installed, modelName)
	onProgress(1)
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, modelName string) error {
	var kept []string
	for _, m := range f.installed {
		if m != modelName {
			kept = append(kept, m)
		}
	}
	f.installed = kept
	return nil
}

func (f *fakeRuntime) Installed(context.Context) ([]string, error) {
	return f.installed, nil
}

func newManagerWithRegistry(t *testing.T, rt Runtime) (*Manager, *suppliers.Registry) {
	t.Helper()
	store, err := objectstore.New(t.TempDir())
	require.NoError(t, err)
	supplyStore, err := objectstore.New(t.TempDir())
	require.NoError(t, err)
	registry, err := suppliers.New(supplyStore)
	require.NoError(t, err)
	_, err = registry.Create(context.Background(), suppliers.Supplier{Name: "local", Kind: suppliers.KindLocal})
	require.NoError(t, err)

	m, err := New(store, rt, registry, slog.Default())
	require.NoError(t, err)
	return m, registry
}

func waitForTerminal(t *testing.T, m *Manager, id string) *InstallJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.GetJob(id)
		require.NoError(t, err)
		if isTerminal(job.State) {
			return job
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestInstallSucceeds(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	m, _ := newManagerWithRegistry(t, rt)

	job, err := m.Install(context.Background(), "llama3", "mirror-a")
	require.NoError(t, err)

	done := waitForTerminal(t, m, job.ID)
	assert.Equal(t, StateDone, done.State)
	assert.Contains(t, rt.installed, "llama3")
}

func TestInstallFailurePersistsError(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{failWith: errors.New("mirror unreachable")}
	m, _ := newManagerWithRegistry(t, rt)

	job, err := m.Install(context.Background(), "llama3", "mirror-a")
	require.NoError(t, err)

	done := waitForTerminal(t, m, job.ID)
	assert.Equal(t, StateFailed, done.State)
	assert.Contains(t, done.Error, "mirror unreachable")
}

func TestInstallIsIdempotentForAlreadyDoneModel(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	m, _ := newManagerWithRegistry(t, rt)

	first, err := m.Install(context.Background(), "llama3", "mirror-a")
	require.NoError(t, err)
	waitForTerminal(t, m, first.ID)

	second, err := m.Install(context.Background(), "llama3", "mirror-b")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestInstallRegistersModelIntoLocalSupplier(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	m, registry := newManagerWithRegistry(t, rt)

	job, err := m.Install(context.Background(), "llama3", "mirror-a")
	require.NoError(t, err)
	waitForTerminal(t, m, job.ID)

	models, err := registry.ModelsOf("local")
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama3", models[0].Name)
}

func TestUninstallDeregistersModelFromLocalSupplier(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{installed: []string{"llama3"}}
	m, registry := newManagerWithRegistry(t, rt)
	_, err := registry.AddModel(context.Background(), "local", suppliers.Model{Name: "llama3"})
	require.NoError(t, err)

	require.NoError(t, m.Uninstall(context.Background(), "llama3"))

	names, err := m.ListInstalled(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, names, "llama3")

	models, err := registry.ModelsOf("local")
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestTerminalStateIsMonotonic(t *testing.T) {
	t.Parallel()
	m, _ := newManagerWithRegistry(t, &fakeRuntime{})

	job := &InstallJob{ID: "j1", ModelName: "x", State: StateDone}
	m.jobs.Set(job.ID, job)

	m.setTerminal(job, StateFailed, "should not apply")
	assert.Equal(t, StateDone, job.State)
}

func TestInstallModelManagerAndProgress(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	m, _ := newManagerWithRegistry(t, rt)

	job, err := m.InstallModelManager(context.Background())
	require.NoError(t, err)

	done := waitForTerminal(t, m, job.ID)
	assert.Equal(t, StateDone, done.State)

	progress, err := m.ModelManagerInstallProgress()
	require.NoError(t, err)
	assert.Equal(t, job.ID, progress.ID)
}

func TestListVisibleModelsIncludesInFlightInstalls(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	m, _ := newManagerWithRegistry(t, rt)

	_, err := m.Install(context.Background(), "llama3", "mirror-a")
	require.NoError(t, err)

	visible, err := m.ListVisibleModels(context.Background())
	require.NoError(t, err)
	assert.Contains(t, visible, "llama3")
}
