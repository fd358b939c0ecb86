package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aingdesk/daemon/pkg/httpclient"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

// localClient speaks to the daemon's one locally managed model runtime over
// an Ollama-style NDJSON streaming wire format: one JSON object per line, a
// "message.content" delta, and a final object carrying "done": true. No
// Ollama-specific grounding file was available in the retrieval pack (see
// DESIGN.md Open Question #3); this is modeled on that ecosystem convention,
// the dominant local-runtime wire shape, the same way the teacher's dmr
// provider speaks its own local runtime's format distinct from OpenAI's.
type localClient struct {
	baseURL string
	http    *http.Client
}

func newLocalClient(sup *suppliers.Supplier) *localClient {
	return &localClient{
		baseURL: sup.BaseURL,
		http:    httpclient.NewHTTPClient(httpclient.WithSupplier(sup.Name)),
	}
}

type localChatRequest struct {
	Model    string            `json:"model"`
	Messages []localChatMsg    `json:"messages"`
	Stream   bool              `json:"stream"`
	Options  map[string]string `json:"options,omitempty"`
}

type localChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type localChatChunk struct {
	Message localChatMsg `json:"message"`
	Done    bool         `json:"done"`
}

func (c *localClient) StreamChat(ctx context.Context, model string, messages []Message, genParams Parameters) (<-chan StreamDelta, <-chan error) {
	deltas := make(chan StreamDelta)
	errs := make(chan error, 1)

	msgs := make([]localChatMsg, len(messages))
	for i, m := range messages {
		msgs[i] = localChatMsg{Role: m.Role, Content: m.Content}
	}

	var options map[string]string
	if genParams.Temperature > 0 || genParams.TopP > 0 {
		options = map[string]string{}
		if genParams.Temperature > 0 {
			options["temperature"] = fmt.Sprintf("%g", genParams.Temperature)
		}
		if genParams.TopP > 0 {
			options["top_p"] = fmt.Sprintf("%g", genParams.TopP)
		}
	}

	body, err := json.Marshal(localChatRequest{Model: model, Messages: msgs, Stream: true, Options: options})
	if err != nil {
		close(deltas)
		errs <- err
		close(errs)
		return deltas, errs
	}

	go func() {
		defer close(deltas)
		defer close(errs)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			errs <- fmt.Errorf("local runtime returned status %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk localChatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // tolerate a malformed line rather than abort the whole stream
			}

			select {
			case deltas <- StreamDelta{Content: chunk.Message.Content, Done: chunk.Done}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- err
		}
	}()

	return deltas, errs
}

type localEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type localEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *localClient) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	body, err := json.Marshal(localEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("local runtime returned status %d", resp.StatusCode)
	}

	var out localEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}
