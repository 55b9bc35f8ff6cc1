package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"regadvisor-backend/config"
	"regadvisor-backend/providers"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	embeddingAPIFormat = "https://generativelanguage.googleapis.com/v1beta/models/%s:embedContent"
	batchAPIFormat     = "https://generativelanguage.googleapis.com/v1beta/models/%s:batchEmbedContents"
	maxRetries         = 3
	initialBackoff     = time.Second
)

func init() {
	providers.RegisterEmbedder("gemini", func(cfg config.EmbeddingConfig) (providers.Embedder, error) {
		return NewEmbedder(cfg)
	})
	providers.RegisterGenerator("gemini", func(cfg config.GenerationConfig) (providers.Generator, error) {
		return NewGenerator(cfg)
	})
}

// EmbeddingRequest represents an embedding API request
type EmbeddingRequest struct {
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

// EmbeddingResponse represents an embedding API response
type EmbeddingResponse struct {
	Embedding EmbeddingData `json:"embedding"`
}

// EmbeddingData contains the embedding values
type EmbeddingData struct {
	Values []float64 `json:"values"`
}

// BatchEmbeddingItem is the structure returned by the batch API (no nested "embedding" key)
type BatchEmbeddingItem struct {
	Values []float64 `json:"values"`
}

// BatchEmbeddingRequest wraps multiple embedding requests
type BatchEmbeddingRequest struct {
	Requests []EmbeddingRequest `json:"requests"`
}

// BatchEmbeddingResponse carries the batch API results
type BatchEmbeddingResponse struct {
	Embeddings []BatchEmbeddingItem `json:"embeddings"`
}

// Embedder generates embeddings via the Gemini embedding API
type Embedder struct {
	client     *http.Client
	apiKey     string
	model      string
	dimensions int
	maxTokens  int
}

// NewEmbedder creates a Gemini embedding client
func NewEmbedder(cfg config.EmbeddingConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 768
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Embedder{
		client:     &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: dimensions,
		maxTokens:  cfg.MaxTokens,
	}, nil
}

// Embed generates an embedding for a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text, err := providers.TruncateTokens(text, e.maxTokens)
	if err != nil {
		return nil, err
	}

	reqBody := EmbeddingRequest{
		Model: "models/" + e.model,
		Content: ContentInput{
			Parts: []PartInput{{Text: text}},
		},
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: e.dimensions,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf(embeddingAPIFormat, e.model)

	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("%w: %v", providers.ErrEmbeddingUnavailable, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var apiResp EmbeddingResponse
			if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
				resp.Body.Close()
				if attempt == maxRetries-1 {
					return nil, fmt.Errorf("%w: failed to decode response: %v", providers.ErrEmbeddingUnavailable, err)
				}
				continue
			}
			resp.Body.Close()
			return normalize(apiResp.Embedding.Values), nil
		}

		resp.Body.Close()

		// Don't retry on client errors other than rate limiting
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: API error %d", providers.ErrEmbeddingUnavailable, resp.StatusCode)
		}

		if attempt == maxRetries-1 {
			return nil, fmt.Errorf("%w: API error %d after %d attempts",
				providers.ErrEmbeddingUnavailable, resp.StatusCode, maxRetries)
		}
	}

	return nil, providers.ErrEmbeddingUnavailable
}

// EmbedBatch generates embeddings for multiple texts in one call
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchReq := BatchEmbeddingRequest{
		Requests: make([]EmbeddingRequest, 0, len(texts)),
	}
	for _, text := range texts {
		truncated, err := providers.TruncateTokens(text, e.maxTokens)
		if err != nil {
			return nil, err
		}
		batchReq.Requests = append(batchReq.Requests, EmbeddingRequest{
			Model: "models/" + e.model,
			Content: ContentInput{
				Parts: []PartInput{{Text: truncated}},
			},
			TaskType:             "SEMANTIC_SIMILARITY",
			OutputDimensionality: e.dimensions,
		})
	}

	jsonData, err := json.Marshal(batchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	url := fmt.Sprintf(batchAPIFormat, e.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: batch API error %d", providers.ErrEmbeddingUnavailable, resp.StatusCode)
	}

	var apiResp BatchEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode batch response: %v", providers.ErrEmbeddingUnavailable, err)
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: batch returned %d embeddings for %d inputs",
			providers.ErrEmbeddingUnavailable, len(apiResp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, item := range apiResp.Embeddings {
		vectors[i] = normalize(item.Values)
	}
	return vectors, nil
}

// Dimensions returns the embedding vector size
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the embedding model identifier
func (e *Embedder) ModelName() string {
	return e.model
}

// normalize converts to float32 and L2-normalizes so cosine similarity
// reduces to a dot product over stored vectors
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
		} else {
			out[i] = float32(v)
		}
	}
	return out
}

// Generator produces text via the Gemini generation API
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator creates a Gemini generation client
func NewGenerator(cfg config.GenerationConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Generator{
		client: client,
		model:  model,
	}, nil
}

// Generate sends the system instruction, history and question to Gemini
// and returns the generated text
func (g *Generator) Generate(ctx context.Context, system string, history []providers.Message, question string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	chat := model.StartChat()
	chat.History = make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		chat.History = append(chat.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := chat.SendMessage(ctx, genai.Text(question))
	if err != nil {
		return "", fmt.Errorf("%w: %v", providers.ErrGenerationUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response", providers.ErrGenerationUnavailable)
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	if out == "" {
		return "", fmt.Errorf("%w: no text in response (finish reason %d)",
			providers.ErrGenerationUnavailable, resp.Candidates[0].FinishReason)
	}

	return out, nil
}

// ModelName returns the generation model identifier
func (g *Generator) ModelName() string {
	return g.model
}
