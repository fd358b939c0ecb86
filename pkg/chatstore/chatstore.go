// Package chatstore implements conversation/turn-log persistence: append,
// abort finalisation, regenerate-truncate, and context-budget assembly. The
// in-flight partial reply is held by the chat engine, not by this store. Grounded on the *shape* of the teacher's
// pkg/session.Store interface (AddMessage/UpdateSession granularity),
// re-expressed over pkg/objectstore per spec.md §6's JSON-file layout
// instead of the teacher's SQLite backing.
package chatstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/objectstore"
)

// Turn is one history entry: either a user message or an assistant reply,
// as given by Role. Error is set only on the synthetic "interrupted" assistant entry
// written when a stream is aborted mid-generation. The Search* fields and
// Reasoning are assistant-only; DocFiles/Images are user-only attachments.
type Turn struct {
	ID            string         `json:"id"`
	Role          string         `json:"role"` // "user" | "assistant"
	Content       string         `json:"content"`
	Reasoning     string         `json:"reasoning,omitempty"`
	DocFiles      []string       `json:"doc_files,omitempty"`
	Images        []string       `json:"images,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	SearchResult  string         `json:"search_result,omitempty"`
	SearchType    string         `json:"search_type,omitempty"`
	SearchQuery   string         `json:"search_query,omitempty"`
	Error         string         `json:"error,omitempty"`
	Tokens        int            `json:"tokens"`
	Stat          map[string]any `json:"stat,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CreatedAtText string         `json:"created_at_text"`
}

// ToolCall records one tool invocation an assistant turn made, name and raw
// JSON arguments/result, mirroring the wire shape spec.md §3 describes.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
}

// Conversation is the persisted configuration of one chat context.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Supplier  string    `json:"supplier"`
	Model     string    `json:"model"`
	RAGBase   string    `json:"rag_base,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func configPath(id string) string  { return fmt.Sprintf("context/%s/config.json", id) }
func historyPath(id string) string { return fmt.Sprintf("context/%s/history.json", id) }

type historyFile struct {
	Turns []Turn `json:"turns"`
}

// Store is the chat conversation/turn persistence façade.
type Store struct {
	objects *objectstore.Store
}

func New(objects *objectstore.Store) *Store {
	return &Store{objects: objects}
}

// CreateConversation registers a new conversation.
func (s *Store) CreateConversation(conv Conversation) (*Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	if err := s.objects.Write(configPath(conv.ID), conv); err != nil {
		return nil, err
	}
	if err := s.objects.Write(historyPath(conv.ID), historyFile{}); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation returns one conversation's configuration.
func (s *Store) GetConversation(id string) (*Conversation, error) {
	var conv Conversation
	if err := s.objects.Read(configPath(id), &conv); err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, apierr.ErrNotFound
	}
	return &conv, nil
}

// ListConversations returns every conversation, most recently updated first.
func (s *Store) ListConversations() ([]*Conversation, error) {
	names, err := s.objects.List("context")
	if err != nil {
		return nil, err
	}
	convs := make([]*Conversation, 0, len(names))
	for _, id := range names {
		conv, err := s.GetConversation(id)
		if err != nil {
			continue
		}
		convs = append(convs, conv)
	}
	sortConversationsByUpdatedDesc(convs)
	return convs, nil
}

func sortConversationsByUpdatedDesc(convs []*Conversation) {
	for i := 1; i < len(convs); i++ {
		for j := i; j > 0 && convs[j].UpdatedAt.After(convs[j-1].UpdatedAt); j-- {
			convs[j], convs[j-1] = convs[j-1], convs[j]
		}
	}
}

// RenameConversation updates a conversation's title.
func (s *Store) RenameConversation(id, title string) error {
	conv, err := s.GetConversation(id)
	if err != nil {
		return err
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	return s.objects.Write(configPath(id), conv)
}

// RemoveConversation deletes a conversation and its history.
func (s *Store) RemoveConversation(id string) error {
	if _, err := s.GetConversation(id); err != nil {
		return err
	}
	return s.objects.RemoveTree(fmt.Sprintf("context/%s", id))
}

// History returns every turn in a conversation, in order.
func (s *Store) History(id string) ([]Turn, error) {
	var hf historyFile
	if err := s.objects.Read(historyPath(id), &hf); err != nil {
		return nil, err
	}
	return hf.Turns, nil
}

// AppendTurn appends one completed turn (user or assistant) and bumps the
// conversation's UpdatedAt.
func (s *Store) AppendTurn(id string, turn Turn) (*Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	turn.CreatedAt = time.Now()
	turn.CreatedAtText = turn.CreatedAt.Format("2006-01-02 15:04:05")
	turn.Tokens = len(turn.Content)

	var hf historyFile
	if err := s.objects.Read(historyPath(id), &hf); err != nil {
		return nil, err
	}
	hf.Turns = append(hf.Turns, turn)
	if err := s.objects.Write(historyPath(id), hf); err != nil {
		return nil, err
	}
	s.touch(id)
	return &turn, nil
}

func (s *Store) touch(id string) {
	conv, err := s.GetConversation(id)
	if err != nil {
		return
	}
	conv.UpdatedAt = time.Now()
	_ = s.objects.Write(configPath(id), *conv)
}

// FinalizeAborted writes the synthetic "interrupted" assistant entry for a
// turn the chat engine was streaming when stop_generate cancelled it,
// capturing whatever partial content had already been produced.
func (s *Store) FinalizeAborted(id, partialContent string) (*Turn, error) {
	return s.AppendTurn(id, Turn{
		Role:    "assistant",
		Content: partialContent,
		Error:   "interrupted",
	})
}

// TruncateForRegeneration drops every turn from (and including) the given
// turn ID onward, so a regenerate request replaces the prior assistant
// answer instead of appending a new one.
func (s *Store) TruncateForRegeneration(id, fromTurnID string) error {
	var hf historyFile
	if err := s.objects.Read(historyPath(id), &hf); err != nil {
		return err
	}

	idx := -1
	for i, t := range hf.Turns {
		if t.ID == fromTurnID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apierr.ErrNotFound
	}

	hf.Turns = hf.Turns[:idx]
	if err := s.objects.Write(historyPath(id), hf); err != nil {
		return err
	}
	s.touch(id)
	return nil
}

// AssembleContext returns as many of the most recent turns as fit within a
// budget of contextLength/2 characters, counting from the end of history
// backward, per spec.md §9's "tokens as character count" convention.
func AssembleContext(turns []Turn, contextLength int) []Turn {
	budget := contextLength / 2
	if budget <= 0 || len(turns) == 0 {
		return nil
	}

	used := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		next := used + len(turns[i].Content)
		if next > budget && start != len(turns) {
			// Always keep at least the most recent turn, even over budget.
			break
		}
		used = next
		start = i
	}
	return turns[start:]
}
