// Package provider wraps the two supplier wire formats this daemon speaks:
// OpenAI-compatible remote suppliers (via github.com/openai/openai-go/v3) and
// the single local runtime supplier (a hand-rolled NDJSON streaming client).
// Grounded on the teacher's pkg/model/provider dispatch-on-Type shape
// (pkg/model/provider/provider.go) and its OpenAI client
// (pkg/model/provider/openai/client.go).
package provider

import (
	"context"

	"github.com/aingdesk/daemon/pkg/suppliers"
)

// Message is one chat turn handed to a provider, independent of wire format.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// StreamDelta is one incremental piece of an assistant's streamed reply.
type StreamDelta struct {
	Content string
	Done    bool
	Usage   *Usage
}

// Usage reports token accounting, when the supplier provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Parameters carries the caller-tunable generation knobs spec.md §4.F's
// /chat/chat "parameters" field exposes. A zero value means "use the
// supplier's default" for that knob.
type Parameters struct {
	Temperature float64
	TopP        float64
}

// ChatProvider streams a chat completion from a configured supplier/model.
type ChatProvider interface {
	StreamChat(ctx context.Context, model string, messages []Message, params Parameters) (<-chan StreamDelta, <-chan error)
}

// EmbeddingProvider computes embedding vectors for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float64, error)
}

// Provider is the full capability set a supplier client offers: chat
// streaming and embeddings. Both clients New returns implement both.
type Provider interface {
	ChatProvider
	EmbeddingProvider
}

// New dispatches on the supplier's Kind exactly as the teacher's
// pkg/model/provider.New dispatches on cfg.Type.
func New(sup *suppliers.Supplier) (Provider, error) {
	switch sup.Kind {
	case suppliers.KindLocal:
		return newLocalClient(sup), nil
	default:
		return newOpenAIClient(sup), nil
	}
}
