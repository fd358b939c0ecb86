package server

import (
	"github.com/labstack/echo/v4"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/rag"
)

func (s *Server) handleCreateBase(c echo.Context) error {
	var body rag.KnowledgeBase
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	kb, err := s.ragMgr.CreateBase(body)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, kb)
}

func (s *Server) handleAddDoc(c echo.Context) error {
	var body struct {
		Base     string `json:"base"`
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	doc, err := s.ragMgr.AddDocument(body.Base, body.Filename, body.Content)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, doc)
}

func (s *Server) handleGetDocContent(c echo.Context) error {
	content, err := s.ragMgr.GetDocumentContent(c.QueryParam("base"), c.QueryParam("doc_id"))
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, map[string]string{"content": content})
}

func (s *Server) handleRemoveDoc(c echo.Context) error {
	if err := s.ragMgr.RemoveDocument(c.QueryParam("base"), c.QueryParam("doc_id")); err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, nil)
}

func (s *Server) handleListDocs(c echo.Context) error {
	docs, err := s.ragMgr.ListDocuments(c.QueryParam("base"))
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, docs)
}

func (s *Server) handleListRAG(c echo.Context) error {
	bases, err := s.ragMgr.ListBases()
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, bases)
}

func (s *Server) handleRemoveRAG(c echo.Context) error {
	if err := s.ragMgr.RemoveBase(c.QueryParam("base")); err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, nil)
}

func (s *Server) handleModifyRAG(c echo.Context) error {
	var body struct {
		Base         string `json:"base"`
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	kb, err := s.ragMgr.ModifyBase(body.Base, body.ChunkSize, body.ChunkOverlap)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, kb)
}
