package provider

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/aingdesk/daemon/pkg/httpclient"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

// openaiClient talks to any OpenAI-compatible remote supplier, grounded on
// the teacher's pkg/model/provider/openai/client.go.
type openaiClient struct {
	client openai.Client
}

func newOpenAIClient(sup *suppliers.Supplier) *openaiClient {
	opts := []option.RequestOption{
		option.WithHTTPClient(httpclient.NewHTTPClient(httpclient.WithSupplier(sup.Name))),
	}
	if sup.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(sup.BaseURL))
	}
	if sup.APIKey != "" {
		opts = append(opts, option.WithAPIKey(sup.APIKey))
	}
	return &openaiClient{client: openai.NewClient(opts...)}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (c *openaiClient) StreamChat(ctx context.Context, model string, messages []Message, genParams Parameters) (<-chan StreamDelta, <-chan error) {
	deltas := make(chan StreamDelta)
	errs := make(chan error, 1)

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if genParams.Temperature > 0 {
		params.Temperature = openai.Float(genParams.Temperature)
	}
	if genParams.TopP > 0 {
		params.TopP = openai.Float(genParams.TopP)
	}

	go func() {
		defer close(deltas)
		defer close(errs)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case deltas <- StreamDelta{Content: content}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errs <- err
			return
		}
		select {
		case deltas <- StreamDelta{Done: true}:
		case <-ctx.Done():
		}
	}()

	return deltas, errs
}

func (c *openaiClient) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
