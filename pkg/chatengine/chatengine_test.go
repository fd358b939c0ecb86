package chatengine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aingdesk/daemon/pkg/chatstore"
	"github.com/aingdesk/daemon/pkg/objectstore"
	"github.com/aingdesk/daemon/pkg/provider"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

// fakeProvider streams back a fixed reply, word by word, without touching
// the network.
type fakeProvider struct {
	reply string
}

func (f fakeProvider) StreamChat(ctx context.Context, _ string, _ []provider.Message, _ provider.Parameters) (<-chan provider.StreamDelta, <-chan error) {
	deltas := make(chan provider.StreamDelta)
	errs := make(chan error, 1)
	go func() {
		defer close(deltas)
		defer close(errs)
		for _, word := range splitWords(f.reply) {
			select {
			case deltas <- provider.StreamDelta{Content: word}:
			case <-ctx.Done():
				return
			}
			time.Sleep(time.Millisecond)
		}
		deltas <- provider.StreamDelta{Done: true}
	}()
	return deltas, errs
}

func (f fakeProvider) Embed(context.Context, string, []string) ([][]float64, error) {
	return nil, nil
}

func splitWords(s string) []string {
	var out []string
	word := ""
	for _, r := range s {
		if r == ' ' {
			if word != "" {
				out = append(out, word+" ")
				word = ""
			}
			continue
		}
		word += string(r)
	}
	if word != "" {
		out = append(out, word)
	}
	return out
}

func setup(t *testing.T) (*Engine, *chatstore.Store, *chatstore.Conversation) {
	t.Helper()
	objs, err := objectstore.New(t.TempDir())
	require.NoError(t, err)

	chats := chatstore.New(objs)
	supplyStore, err := objectstore.New(t.TempDir())
	require.NoError(t, err)
	supplies, err := suppliers.New(supplyStore)
	require.NoError(t, err)

	_, err = supplies.Create(context.Background(), suppliers.Supplier{
		Name: "test-supplier", Kind: suppliers.KindRemote,
		Models: []suppliers.Model{{Name: "test-model", ContextLength: 4096}},
	})
	require.NoError(t, err)

	conv, err := chats.CreateConversation(chatstore.Conversation{
		Supplier: "test-supplier", Model: "test-model",
	})
	require.NoError(t, err)

	engine := New(chats, supplies, nil, nil, slog.Default())
	engine.WithProviderFactory(func(*suppliers.Supplier) (provider.Provider, error) {
		return fakeProvider{reply: "hello there, this is a longer reply so a cancel can land mid-stream"}, nil
	})
	return engine, chats, conv
}

func TestStreamPersistsCompletedAnswer(t *testing.T) {
	t.Parallel()
	engine, chats, conv := setup(t)

	events := engine.Stream(context.Background(), Request{ConversationID: conv.ID, Message: "hello"})
	var collected []Event
	for ev := range events {
		collected = append(collected, ev)
	}
	require.NotEmpty(t, collected)

	history, err := chats.History(conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Empty(t, history[1].Error)
}

func TestStopCancelsInFlightGeneration(t *testing.T) {
	t.Parallel()
	engine, chats, conv := setup(t)

	events := engine.Stream(context.Background(), Request{ConversationID: conv.ID, Message: "hello"})

	// Give the provider goroutine a moment to register as in-flight, then cancel.
	time.Sleep(5 * time.Millisecond)
	engine.Stop(conv.ID)

	for range events {
		// drain until closed
	}

	history, err := chats.History(conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "interrupted", history[1].Error)
}

func TestStreamUnknownConversationErrors(t *testing.T) {
	t.Parallel()
	engine, _, _ := setup(t)

	events := engine.Stream(context.Background(), Request{ConversationID: "missing", Message: "hi"})
	var lastErr error
	for ev := range events {
		if ev.Err != nil {
			lastErr = ev.Err
		}
	}
	require.Error(t, lastErr)
}

func TestStreamCancelsAndReplacesPriorInFlightGeneration(t *testing.T) {
	t.Parallel()
	engine, chats, conv := setup(t)

	first := engine.Stream(context.Background(), Request{ConversationID: conv.ID, Message: "first"})
	time.Sleep(5 * time.Millisecond)

	second := engine.Stream(context.Background(), Request{ConversationID: conv.ID, Message: "second"})

	for range first {
		// drain until the replaced goroutine's cancellation closes it
	}
	for range second {
		// drain until the replacement completes normally
	}

	history, err := chats.History(conv.ID)
	require.NoError(t, err)
	// first's (user, interrupted-assistant) pair, then second's (user, assistant) pair.
	require.Len(t, history, 4)
	assert.Equal(t, "interrupted", history[1].Error)
	assert.Empty(t, history[3].Error)
}

func TestStreamWithEmptyConversationIDImplicitlyCreates(t *testing.T) {
	t.Parallel()
	engine, chats, _ := setup(t)

	events := engine.Stream(context.Background(), Request{
		Message: "a brand new implicit conversation", SupplierName: "test-supplier", Model: "test-model",
	})
	for range events {
	}

	// setup's conversation plus the implicit one, most recently updated first.
	convs, err := chats.ListConversations()
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "a brand new implic", convs[0].Title)
}

func TestStreamRegenerateReplacesLastAnswer(t *testing.T) {
	t.Parallel()
	engine, chats, conv := setup(t)

	first := engine.Stream(context.Background(), Request{ConversationID: conv.ID, Message: "hello"})
	for range first {
	}

	history, err := chats.History(conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assistantID := history[1].ID

	second := engine.Stream(context.Background(), Request{ConversationID: conv.ID, RegenerateID: assistantID})
	for range second {
	}

	history, err = chats.History(conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
}

func TestStreamTempChatSkipsPersistence(t *testing.T) {
	t.Parallel()
	engine, chats, conv := setup(t)

	events := engine.Stream(context.Background(), Request{ConversationID: conv.ID, Message: "throwaway", TempChat: true})
	for range events {
	}

	history, err := chats.History(conv.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
