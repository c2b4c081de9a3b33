package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Flavor string

const (
	FlavorOpenAI Flavor = "openai"
	FlavorOllama Flavor = "ollama"
)

// HTTPClient calls an OpenAI-compatible /embeddings endpoint, or Ollama's
// /api/embed when Flavor is FlavorOllama.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	flavor     Flavor
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey, model string, flavor Flavor, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		flavor:     flavor,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding vector for the given text.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	endpoint := c.baseURL + "/embeddings"
	if c.flavor == FlavorOllama {
		endpoint = c.baseURL + "/api/embed"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s embed: %w", c.flavor, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s embed: status %d: %s", c.flavor, resp.StatusCode, string(body))
	}

	if c.flavor == FlavorOllama {
		var result ollamaEmbedResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode embed response: %w", err)
		}
		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("ollama returned no embeddings")
		}
		return result.Embeddings[0], nil
	}

	var result openAIEmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response has no vectors")
	}
	return result.Data[0].Embedding, nil
}
