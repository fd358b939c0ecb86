// Package server wires the daemon's HTTP surface with Echo, grounded on the
// teacher's pkg/server/server.go: a Server struct holding the component
// stores, functional options, an /api-style route grouping (here /index,
// /chat, /manager, /rag, /model, /share per spec.md §6), JSON envelope
// responses via pkg/apierr, and a streaming handler that flushes per event.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/chatengine"
	"github.com/aingdesk/daemon/pkg/chatstore"
	"github.com/aingdesk/daemon/pkg/modelmanager"
	"github.com/aingdesk/daemon/pkg/rag"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

const daemonVersion = "0.1.0"

// Server holds every component the HTTP layer dispatches into.
type Server struct {
	echo     *echo.Echo
	chats    *chatstore.Store
	supplies *suppliers.Registry
	ragMgr   *rag.Manager
	engine   *chatengine.Engine
	models   *modelmanager.Manager
	logger   *slog.Logger
}

type Opt func(*Server)

func WithLogger(l *slog.Logger) Opt { return func(s *Server) { s.logger = l } }

// New constructs the Echo instance and registers every route.
func New(chats *chatstore.Store, supplies *suppliers.Registry, ragMgr *rag.Manager, engine *chatengine.Engine, models *modelmanager.Manager, opts ...Opt) *Server {
	s := &Server{
		chats:    chats,
		supplies: supplies,
		ragMgr:   ragMgr,
		engine:   engine,
		models:   models,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	s.echo = e

	s.registerRoutes()
	return s
}

// Start blocks serving on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		_ = s.echo.Shutdown(context.Background())
	}()
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	index := s.echo.Group("/index")
	index.GET("/get_version", s.handleGetVersion)
	index.GET("/get_languages", s.handleGetLanguages)
	index.POST("/set_language", s.handleSetLanguage)

	chat := s.echo.Group("/chat")
	chat.GET("/get_chat_list", s.handleGetChatList)
	chat.POST("/create_chat", s.handleCreateChat)
	chat.GET("/get_chat_info", s.handleGetChatInfo)
	chat.GET("/get_last_chat_history", s.handleGetLastChatHistory)
	chat.POST("/remove_chat", s.handleRemoveChat)
	chat.POST("/modify_chat_title", s.handleModifyChatTitle)
	chat.POST("/stop_generate", s.handleStopGenerate)
	chat.GET("/get_model_list", s.handleGetModelList)
	chat.POST("/chat", s.handleChat)

	// /manager hosts model-manager operations and /model hosts supplier
	// registry operations, per spec.md §6's authoritative route table.
	manager := s.echo.Group("/manager")
	manager.POST("/install", s.handleInstallModel)
	manager.GET("/install_status", s.handleInstallStatus)
	manager.POST("/reconnect_model_download", s.handleReconnectDownload)
	manager.POST("/uninstall", s.handleUninstallModel)
	manager.GET("/list_installed", s.handleListInstalled)
	manager.GET("/list_visible_models", s.handleListVisibleModels)
	manager.POST("/install_model_manager", s.handleInstallModelManager)
	manager.GET("/get_model_manager_install_progress", s.handleGetModelManagerInstallProgress)

	ragGroup := s.echo.Group("/rag")
	ragGroup.POST("/create_base", s.handleCreateBase)
	ragGroup.POST("/add_doc", s.handleAddDoc)
	ragGroup.GET("/get_doc_content", s.handleGetDocContent)
	ragGroup.GET("/remove_doc", s.handleRemoveDoc)
	ragGroup.GET("/list_docs", s.handleListDocs)
	ragGroup.GET("/list_rag", s.handleListRAG)
	ragGroup.GET("/remove_rag", s.handleRemoveRAG)
	ragGroup.POST("/modify_rag", s.handleModifyRAG)

	model := s.echo.Group("/model")
	model.GET("/get_supplier_list", s.handleGetSupplierList)
	model.POST("/add_supplier", s.handleAddSupplier)
	model.POST("/update_supplier", s.handleUpdateSupplier)
	model.POST("/remove_supplier", s.handleRemoveSupplier)
	model.POST("/check_supplier_config", s.handleCheckSupplierConfig)
	model.POST("/set_supplier_status", s.handleSetSupplierStatus)
	model.POST("/add_model", s.handleAddModel)
	model.POST("/remove_model", s.handleRemoveModel)
	model.POST("/set_model_status", s.handleSetModelStatus)
	model.POST("/set_model_title", s.handleSetModelTitle)
	model.GET("/list_embedding_models", s.handleListEmbeddingModels)

	share := s.echo.Group("/share")
	share.GET("/ping", func(c echo.Context) error { return apierr.Respond(c, map[string]string{"status": "ok"}) })
}

func (s *Server) handleGetVersion(c echo.Context) error {
	return apierr.Respond(c, map[string]string{"version": daemonVersion})
}

func (s *Server) handleGetLanguages(c echo.Context) error {
	return apierr.Respond(c, []string{"en", "zh-CN"})
}

func (s *Server) handleSetLanguage(c echo.Context) error {
	var body struct {
		Language string `json:"language"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	return apierr.Respond(c, map[string]string{"language": body.Language})
}
