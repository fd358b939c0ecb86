package server

import (
	"bufio"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/chatengine"
	"github.com/aingdesk/daemon/pkg/chatstore"
	"github.com/aingdesk/daemon/pkg/provider"
)

func (s *Server) handleGetChatList(c echo.Context) error {
	convs, err := s.chats.ListConversations()
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, convs)
}

func (s *Server) handleCreateChat(c echo.Context) error {
	var body struct {
		Title    string `json:"title"`
		Supplier string `json:"supplier"`
		Model    string `json:"model"`
		RAGBase  string `json:"rag_base"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	if _, err := s.supplies.Get(body.Supplier); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}

	conv, err := s.chats.CreateConversation(chatstore.Conversation{
		Title: body.Title, Supplier: body.Supplier, Model: body.Model, RAGBase: body.RAGBase,
	})
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, conv)
}

func (s *Server) handleGetChatInfo(c echo.Context) error {
	conv, err := s.chats.GetConversation(c.QueryParam("chat_id"))
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, conv)
}

func (s *Server) handleGetLastChatHistory(c echo.Context) error {
	history, err := s.chats.History(c.QueryParam("chat_id"))
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, history)
}

func (s *Server) handleRemoveChat(c echo.Context) error {
	var body struct {
		ChatID string `json:"chat_id"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	if err := s.chats.RemoveConversation(body.ChatID); err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, nil)
}

func (s *Server) handleModifyChatTitle(c echo.Context) error {
	var body struct {
		ChatID string `json:"chat_id"`
		Title  string `json:"title"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	if err := s.chats.RenameConversation(body.ChatID, body.Title); err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, nil)
}

func (s *Server) handleStopGenerate(c echo.Context) error {
	var body struct {
		ChatID string `json:"chat_id"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	s.engine.Stop(body.ChatID)
	return apierr.Respond(c, nil)
}

func (s *Server) handleGetModelList(c echo.Context) error {
	name := c.QueryParam("supplier")
	models, err := s.supplies.ModelsOf(name)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, models)
}

// handleChat streams the assistant's reply as server-sent events
// (text/event-stream): one "delta" event per content chunk and one "error"
// event per error the engine reports. It does not write a raw text/plain
// token stream. Grounded on the teacher's runAgent SSE-flush-per-event loop
// in pkg/server/server.go. An empty context_id implicitly creates a new
// conversation (spec.md §4.F step 1 / §9); a non-empty regenerate_id replaces
// that turn instead of appending a new one (spec.md §4.E, §8).
func (s *Server) handleChat(c echo.Context) error {
	var body struct {
		ContextID    string   `json:"context_id"`
		RegenerateID string   `json:"regenerate_id"`
		UserContent  string   `json:"user_content"`
		DocFiles     []string `json:"doc_files"`
		Images       []string `json:"images"`
		Search       bool     `json:"search"`
		RAGList      []string `json:"rag_list"`
		TempChat     bool     `json:"temp_chat"`
		Model        string   `json:"model"`
		SupplierName string   `json:"supplierName"`
		Parameters   struct {
			Temperature float64 `json:"temperature"`
			TopP        float64 `json:"top_p"`
		} `json:"parameters"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	if body.ContextID != "" {
		if _, err := s.chats.GetConversation(body.ContextID); err != nil {
			return apierr.RespondErr(c, err)
		}
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(c.Response())
	defer writer.Flush()

	events := s.engine.Stream(c.Request().Context(), chatengine.Request{
		ConversationID: body.ContextID,
		RegenerateID:   body.RegenerateID,
		Message:        body.UserContent,
		DocFiles:       body.DocFiles,
		Images:         body.Images,
		UseRAG:         len(body.RAGList) > 0,
		RAGBases:       body.RAGList,
		UseWebSearch:   body.Search,
		TempChat:       body.TempChat,
		Model:          body.Model,
		SupplierName:   body.SupplierName,
		Parameters: provider.Parameters{
			Temperature: body.Parameters.Temperature,
			TopP:        body.Parameters.TopP,
		},
	})

	for ev := range events {
		if ev.Err != nil {
			writeSSE(writer, "error", ev.Err.Error())
			c.Response().Flush()
			continue
		}
		if ev.Content != "" {
			writeSSE(writer, "delta", ev.Content)
			c.Response().Flush()
		}
		if ev.Done {
			writeSSE(writer, "done", "")
			c.Response().Flush()
		}
	}
	return nil
}

func writeSSE(w *bufio.Writer, event, data string) {
	w.WriteString("event: " + event + "\n")
	w.WriteString("data: " + data + "\n\n")
	w.Flush()
}
