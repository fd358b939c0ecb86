// Package chatengine orchestrates the single streaming chat endpoint: history
// assembly, optional RAG retrieval, optional web search, upstream provider
// streaming, and cancellation. Grounded on the teacher's pkg/server.go
// runAgent streaming handler (SSE-style flush-per-event loop) and the
// cancellation shape of teacher's pkg/runtime.Runtime (RunStream channel +
// resume/cancel), drastically simplified to a single-turn, no-tool-calling
// loop, with spec.md §9's store-and-stream inversion applied: the engine
// itself persists on completion/abort, not a second client call.
package chatengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/chatstore"
	"github.com/aingdesk/daemon/pkg/concurrent"
	"github.com/aingdesk/daemon/pkg/provider"
	"github.com/aingdesk/daemon/pkg/rag"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

// Event is one increment of a streamed reply, handed to the HTTP layer to
// flush over SSE/chunked transfer exactly as produced.
type Event struct {
	Content string
	Done    bool
	Err     error
}

// WebSearcher performs the spec's web-search augmentation step. Its actual
// fetch implementation is out of scope (spec.md Non-goals); this is the seam
// a real fetcher plugs into.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// ProviderFactory resolves a supplier into a live provider client. Exposed so
// tests can substitute a fake without talking to any real supplier.
type ProviderFactory func(*suppliers.Supplier) (provider.Provider, error)

// inflight wraps the cancel func for one conversation's running stream. It is
// a distinct pointer per Stream call so a stale goroutine's deferred cleanup
// can tell, by pointer identity, whether it still owns the map entry before
// deleting it. done is closed once that stream's goroutine has finished.
type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine wires together the stores needed to run one chat turn.
type Engine struct {
	chats       *chatstore.Store
	supplies    *suppliers.Registry
	ragMgr      *rag.Manager
	search      WebSearcher
	logger      *slog.Logger
	inFlight    *concurrent.Map[string, *inflight]
	newProvider ProviderFactory
}

func New(chats *chatstore.Store, supplies *suppliers.Registry, ragMgr *rag.Manager, search WebSearcher, logger *slog.Logger) *Engine {
	return &Engine{
		chats:       chats,
		supplies:    supplies,
		ragMgr:      ragMgr,
		search:      search,
		logger:      logger,
		inFlight:    concurrent.NewMap[string, *inflight](),
		newProvider: provider.New,
	}
}

// WithProviderFactory overrides how the engine resolves a supplier into a
// provider client (used by tests to inject a fake).
func (e *Engine) WithProviderFactory(f ProviderFactory) *Engine {
	e.newProvider = f
	return e
}

// Request is one /chat/chat call. ConversationID empty implicitly creates a
// new conversation from Model/SupplierName and the first of RAGBases, per spec.md
// §4.F step 1 and §9's Open-Question resolution. RegenerateID, when set,
// replaces the turn it names instead of appending a new user turn.
type Request struct {
	ConversationID string
	RegenerateID   string
	Message        string
	DocFiles       []string
	Images         []string
	UseRAG         bool
	RAGBases       []string
	UseWebSearch   bool
	TempChat       bool
	Model          string
	SupplierName   string
	Parameters     provider.Parameters
}

// Stream runs a full chat turn: assemble history+RAG+web-search context,
// stream the upstream completion, and persist the result (or the aborted
// placeholder) before returning. The returned channel is closed once the
// turn is fully persisted.
//
// A new Stream call for a conversation ID already in flight cancels the
// prior goroutine and waits for it to finish (cancel-and-replace, spec.md §5
// Concurrency) so only one goroutine at a time ever appends to that
// conversation's history.
func (e *Engine) Stream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event)

	var prior *inflight
	if req.ConversationID != "" {
		if p, ok := e.inFlight.Get(req.ConversationID); ok {
			p.cancel()
			prior = p
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	entry := &inflight{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(entry.done)
		defer close(out)
		defer cancel()

		// Wait for the cancelled prior stream to persist its aborted turn
		// before this one touches the conversation's history.
		if prior != nil {
			<-prior.done
		}

		convID, err := e.resolveConversation(ctx, &req)
		if err != nil {
			out <- Event{Err: err}
			return
		}
		e.inFlight.Set(convID, entry)
		defer func() {
			// Only delete the entry if it's still ours: a later Stream call
			// for the same conversation may have already replaced it.
			if cur, ok := e.inFlight.Get(convID); ok && cur == entry {
				e.inFlight.Delete(convID)
			}
		}()

		e.run(ctx, convID, req, out)
	}()

	return out
}

// Stop cancels an in-flight generation for a conversation, matching
// /chat/stop_generate. It is a no-op if nothing is in flight.
func (e *Engine) Stop(conversationID string) {
	if entry, ok := e.inFlight.Get(conversationID); ok {
		entry.cancel()
	}
}

// resolveConversation implicitly creates a conversation when req carries no
// ConversationID, and mutates req.ConversationID to match, per spec.md §9.
func (e *Engine) resolveConversation(_ context.Context, req *Request) (string, error) {
	if req.ConversationID != "" {
		return req.ConversationID, nil
	}

	ragBase := ""
	if len(req.RAGBases) > 0 {
		ragBase = req.RAGBases[0]
	}
	conv, err := e.chats.CreateConversation(chatstore.Conversation{
		Title:    titleFromContent(req.Message),
		Supplier: req.SupplierName,
		Model:    req.Model,
		RAGBase:  ragBase,
	})
	if err != nil {
		return "", err
	}
	req.ConversationID = conv.ID
	return conv.ID, nil
}

func (e *Engine) run(ctx context.Context, convID string, req Request, out chan<- Event) {
	conv, err := e.chats.GetConversation(convID)
	if err != nil {
		out <- Event{Err: err}
		return
	}

	sup, err := e.supplies.Get(conv.Supplier)
	if err != nil {
		out <- Event{Err: apierr.Wrap(apierr.ErrInvalidInput, fmt.Errorf("supplier %q: %w", conv.Supplier, err))}
		return
	}

	userContent := req.Message
	if req.RegenerateID != "" {
		content, err := e.prepareRegeneration(convID, req.RegenerateID)
		if err != nil {
			out <- Event{Err: err}
			return
		}
		userContent = content
	} else if !req.TempChat {
		if _, err := e.chats.AppendTurn(convID, chatstore.Turn{
			Role:     "user",
			Content:  userContent,
			DocFiles: req.DocFiles,
			Images:   req.Images,
		}); err != nil {
			out <- Event{Err: err}
			return
		}
	}

	messages, searchMeta, err := e.assembleMessages(ctx, conv, req, userContent)
	if err != nil {
		out <- Event{Err: err}
		return
	}

	prov, err := e.newProvider(sup)
	if err != nil {
		out <- Event{Err: apierr.Wrap(apierr.ErrInternal, err)}
		return
	}

	deltas, errs := prov.StreamChat(ctx, conv.Model, messages, req.Parameters)

	var full string
	for {
		select {
		case <-ctx.Done():
			if !req.TempChat {
				e.finalizeAbort(convID, full)
			}
			out <- Event{Err: apierr.ErrCancelled}
			return
		case delta, ok := <-deltas:
			if !ok {
				if ctx.Err() != nil {
					// The provider closed its stream because of cancellation.
					if !req.TempChat {
						e.finalizeAbort(convID, full)
					}
					out <- Event{Err: apierr.ErrCancelled}
					return
				}
				if !req.TempChat {
					e.finalizeComplete(convID, full, searchMeta)
				}
				return
			}
			if delta.Content != "" {
				full += delta.Content
				out <- Event{Content: delta.Content}
			}
			if delta.Done {
				if !req.TempChat {
					e.finalizeComplete(convID, full, searchMeta)
				}
				return
			}
		case err, ok := <-errs:
			if !ok {
				// Channel closed with no error: stop selecting on it so a
				// closed-channel read can't busy-spin ahead of deltas closing.
				errs = nil
				continue
			}
			if err != nil {
				if !req.TempChat {
					e.finalizeAbort(convID, full)
				}
				out <- Event{Err: apierr.Wrap(apierr.ErrUpstream, err)}
				return
			}
		}
	}
}

// prepareRegeneration truncates history from regenerateID onward and returns
// the content of the user turn that preceded it, so the caller resends that
// content instead of appending a fresh user turn, per spec.md §4.E / §8's
// regeneration monotonicity.
func (e *Engine) prepareRegeneration(convID, regenerateID string) (string, error) {
	history, err := e.chats.History(convID)
	if err != nil {
		return "", err
	}

	idx := -1
	for i, t := range history {
		if t.ID == regenerateID {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", apierr.ErrNotFound
	}
	preceding := history[idx-1]

	// Truncate at (and including) the turn being regenerated, leaving the
	// preceding user turn in place; its content is resent rather than
	// appended again so the log doesn't gain a duplicate user entry.
	if err := e.chats.TruncateForRegeneration(convID, regenerateID); err != nil {
		return "", err
	}
	return preceding.Content, nil
}

// searchMetadata records what augmentation contributed to a turn, persisted
// on the assistant's turn rather than folded only into the system prompt, per
// spec.md §3's assistant-only search_result/search_type/search_query fields.
type searchMetadata struct {
	result string
	typ    string
	query  string
}

func (e *Engine) assembleMessages(ctx context.Context, conv *chatstore.Conversation, req Request, userMessage string) ([]provider.Message, *searchMetadata, error) {
	history, err := e.chats.History(req.ConversationID)
	if err != nil {
		return nil, nil, err
	}

	contextLength := 4096
	if sup, err := e.supplies.Get(conv.Supplier); err == nil {
		for _, m := range sup.Models {
			if m.Name == conv.Model && m.ContextLength > 0 {
				contextLength = m.ContextLength
			}
		}
	}
	budgeted := chatstore.AssembleContext(history, contextLength)

	var systemParts []string
	var meta *searchMetadata

	ragBases := req.RAGBases
	if len(ragBases) == 0 && conv.RAGBase != "" {
		ragBases = []string{conv.RAGBase}
	}
	if req.UseRAG && e.ragMgr != nil {
		var ragHits []string
		for _, base := range ragBases {
			hits, err := e.ragMgr.Query(ctx, base, userMessage, 5)
			if err != nil {
				e.logger.Warn("rag retrieval failed", "base", base, "err", err)
				continue
			}
			for _, h := range hits {
				ragHits = append(ragHits, h.Content)
			}
		}
		if len(ragHits) > 0 {
			systemParts = append(systemParts, ragHits...)
			meta = &searchMetadata{
				result: joinLines(ragHits),
				typ:    "rag",
				query:  userMessage,
			}
		}
	}
	if req.UseWebSearch && e.search != nil {
		results, err := e.search.Search(ctx, userMessage)
		if err == nil && len(results) > 0 {
			systemParts = append(systemParts, results...)
			meta = &searchMetadata{
				result: joinLines(results),
				typ:    "web",
				query:  userMessage,
			}
		} else if err != nil {
			e.logger.Warn("web search failed", "err", err)
		}
	}

	messages := make([]provider.Message, 0, len(budgeted)+2)
	if len(systemParts) > 0 {
		messages = append(messages, provider.Message{Role: "system", Content: joinLines(systemParts)})
	}
	for _, t := range budgeted {
		messages = append(messages, provider.Message{Role: t.Role, Content: t.Content})
	}
	return messages, meta, nil
}

// titleFromContent is the default conversation title for an implicit create:
// the first 18 characters of the opening user message, per spec.md §4.F.
func titleFromContent(content string) string {
	const maxTitleLen = 18
	r := []rune(content)
	if len(r) > maxTitleLen {
		return string(r[:maxTitleLen])
	}
	return content
}

func joinLines(parts []string) string {
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += "\n---\n"
		}
		joined += p
	}
	return joined
}

func (e *Engine) finalizeComplete(conversationID, content string, meta *searchMetadata) {
	turn := chatstore.Turn{Role: "assistant", Content: content}
	if meta != nil {
		turn.SearchResult = meta.result
		turn.SearchType = meta.typ
		turn.SearchQuery = meta.query
	}
	if _, err := e.chats.AppendTurn(conversationID, turn); err != nil {
		e.logger.Error("failed to persist completed turn", "conversation", conversationID, "err", err)
	}
}

func (e *Engine) finalizeAbort(conversationID, partialContent string) {
	if _, err := e.chats.FinalizeAborted(conversationID, partialContent); err != nil {
		e.logger.Error("failed to persist aborted turn", "conversation", conversationID, "err", err)
	}
}
