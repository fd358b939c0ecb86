package modelmanager

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

// localRuntime drives the daemon's single local model runtime over its
// ollama-compatible control-plane endpoints, mirroring the wire format of
// pkg/provider's localClient for chat/embeddings (see DESIGN.md Open
// Question #3).
type localRuntime struct {
	registry *suppliers.Registry
	http     *http.Client
}

// NewLocalRuntime builds a Runtime that targets the registry's configured
// local supplier.
func NewLocalRuntime(registry *suppliers.Registry) Runtime {
	return &localRuntime{registry: registry, http: httpclient.NewHTTPClient()}
}

func (r *localRuntime) baseURL() (string, error) {
	sup, ok := r.registry.Local()
	if !ok {
		return "", fmt.Errorf("no local supplier is registered")
	}
	return sup.BaseURL, nil
}

type pullProgressLine struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

func (r *localRuntime) Pull(ctx context.Context, modelName, mirror string, onProgress func(float64)) error {
	base, err := r.baseURL()
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{"model": modelName, "mirror": mirror, "stream": "true"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("local runtime pull returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line pullProgressLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Total > 0 {
			onProgress(float64(line.Completed) / float64(line.Total))
		}
	}
	return scanner.Err()
}

func (r *localRuntime) Remove(ctx context.Context, modelName string) error {
	base, err := r.baseURL()
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{"model": modelName})
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, base+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("local runtime delete returned status %d", resp.StatusCode)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (r *localRuntime) Installed(ctx context.Context) ([]string, error) {
	base, err := r.baseURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	names := make([]string, len(out.Models))
	for i, m := range out.Models {
		names[i] = m.Name
	}
	return names, nil
}
