package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	defaultModel   = "gemini-embedding-001"
	embedAPIBase   = "https://generativelanguage.googleapis.com/v1beta/models"
	maxRetries     = 3
	initialBackoff = time.Second
	// maximum number of texts per batchEmbedContents call
	maxBatchSize = 64
	dimension    = 768
)

// Encoder converts texts into dense vectors. Implementations must return
// fixed-dimension, L2-normalized vectors in the caller's order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// EmbedRequest represents an embedding API request
type EmbedRequest struct {
	Model                string       `json:"model"`
	Content              ContentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

// ContentInput represents content for embedding
type ContentInput struct {
	Parts []PartInput `json:"parts"`
}

// PartInput represents a part of content
type PartInput struct {
	Text string `json:"text"`
}

// EmbedResponse represents an embedding API response
type EmbedResponse struct {
	Embedding EmbedValues `json:"embedding"`
}

// EmbedValues contains the embedding values
type EmbedValues struct {
	Values []float64 `json:"values"`
}

// BatchEmbedRequest wraps multiple embedding requests
type BatchEmbedRequest struct {
	Requests []EmbedRequest `json:"requests"`
}

// BatchEmbedResponse is the batch API shape (no nested "embedding" key)
type BatchEmbedResponse struct {
	Embeddings []EmbedValues `json:"embeddings"`
}

// GeminiEncoder calls the Gemini embedding API over REST
type GeminiEncoder struct {
	apiKey string
	model  string
	client *http.Client
}

// NewGeminiEncoder creates an encoder for the given API key. An empty model
// selects the default embedding model.
func NewGeminiEncoder(apiKey, model string) *GeminiEncoder {
	if model == "" {
		model = defaultModel
	}
	return &GeminiEncoder{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Model returns the embedding model name
func (g *GeminiEncoder) Model() string { return g.model }

// Dimension returns the dimensionality of produced vectors
func (g *GeminiEncoder) Dimension() int { return dimension }

// Encode embeds the given texts, batching requests to the API limit and
// preserving input order. Vectors are L2-normalized.
func (g *GeminiEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := g.encodeBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (g *GeminiEncoder) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 {
		vec, err := g.encodeOne(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	}

	reqs := make([]EmbedRequest, len(texts))
	for i, text := range texts {
		reqs[i] = EmbedRequest{
			Model:                "models/" + g.model,
			Content:              ContentInput{Parts: []PartInput{{Text: text}}},
			TaskType:             "RETRIEVAL_DOCUMENT",
			OutputDimensionality: dimension,
		}
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents", embedAPIBase, g.model)
	var apiResp BatchEmbedResponse
	if err := g.post(ctx, url, BatchEmbedRequest{Requests: reqs}, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("batch API returned %d embeddings for %d texts", len(apiResp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range apiResp.Embeddings {
		vectors[i] = normalize(emb.Values)
	}
	return vectors, nil
}

func (g *GeminiEncoder) encodeOne(ctx context.Context, text string) ([]float32, error) {
	req := EmbedRequest{
		Model:                "models/" + g.model,
		Content:              ContentInput{Parts: []PartInput{{Text: text}}},
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: dimension,
	}

	url := fmt.Sprintf("%s/%s:embedContent", embedAPIBase, g.model)
	var apiResp EmbedResponse
	if err := g.post(ctx, url, req, &apiResp); err != nil {
		return nil, err
	}
	return normalize(apiResp.Embedding.Values), nil
}

func (g *GeminiEncoder) post(ctx context.Context, url string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.client.Do(req)
		if err != nil {
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				if attempt == maxRetries-1 {
					return fmt.Errorf("failed to decode response: %w", err)
				}
				continue
			}
			return nil
		}
		resp.Body.Close()

		// Don't retry on 400 or 401 errors
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("embedding API error: %d", resp.StatusCode)
		}
		if attempt == maxRetries-1 {
			return fmt.Errorf("embedding API error after %d attempts: %d", maxRetries, resp.StatusCode)
		}
	}
	return fmt.Errorf("embedding request failed")
}

func normalize(values []float64) []float32 {
	norm := 0.0
	for _, v := range values {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(values))
	for i, v := range values {
		if norm > 0 {
			out[i] = float32(v / norm)
		}
	}
	return out
}
