package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aingdesk/daemon/pkg/chatengine"
	"github.com/aingdesk/daemon/pkg/chatstore"
	"github.com/aingdesk/daemon/pkg/modelmanager"
	"github.com/aingdesk/daemon/pkg/objectstore"
	"github.com/aingdesk/daemon/pkg/rag"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

type noopRuntime struct{}

func (noopRuntime) Pull(context.Context, string, string, func(float64)) error { return nil }
func (noopRuntime) Remove(context.Context, string) error                     { return nil }
func (noopRuntime) Installed(context.Context) ([]string, error)              { return nil, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	objs, err := objectstore.New(root)
	require.NoError(t, err)

	chats := chatstore.New(objs)
	supplies, err := suppliers.New(objs)
	require.NoError(t, err)
	ragMgr := rag.NewManager(objs, func(kb *rag.KnowledgeBase) (*rag.Embedder, error) {
		return nil, nil
	}, slog.Default())
	engine := chatengine.New(chats, supplies, ragMgr, nil, slog.Default())
	models, err := modelmanager.New(objs, noopRuntime{}, supplies, slog.Default())
	require.NoError(t, err)

	return New(chats, supplies, ragMgr, engine, models)
}

func TestGetVersion(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/index/get_version", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), daemonVersion)
}

func TestCreateChatRequiresKnownSupplier(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/create_chat", jsonBody(`{"title":"x","supplier":"missing","model":"m"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestAddSupplierThenCreateChat(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/model/add_supplier", jsonBody(`{"name":"openai","kind":"remote","base_url":"https://api.openai.com/v1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/chat/create_chat", jsonBody(`{"title":"x","supplier":"openai","model":"gpt-4o"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func jsonBody(s string) *strings.Reader { return strings.NewReader(s) }
