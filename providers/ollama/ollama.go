package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"regadvisor-backend/config"
	"regadvisor-backend/providers"
)

func init() {
	providers.RegisterEmbedder("ollama", func(cfg config.EmbeddingConfig) (providers.Embedder, error) {
		return NewEmbedder(cfg)
	})
	providers.RegisterGenerator("ollama", func(cfg config.GenerationConfig) (providers.Generator, error) {
		return NewGenerator(cfg)
	})
}

// Embedder generates embeddings via a local Ollama instance
type Embedder struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
	maxTokens  int
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewEmbedder creates an Ollama embedding client
func NewEmbedder(cfg config.EmbeddingConfig) (*Embedder, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
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
		baseURL:    baseURL,
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

	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", providers.ErrEmbeddingUnavailable, resp.StatusCode, string(respBody))
	}

	var embedResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", providers.ErrEmbeddingUnavailable, err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", providers.ErrEmbeddingUnavailable)
	}

	return normalize(embedResp.Embedding), nil
}

// EmbedBatch embeds texts sequentially; the Ollama embeddings endpoint
// accepts one prompt per call
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
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

// Generator produces text via the Ollama generate API
type Generator struct {
	client  *http.Client
	baseURL string
	model   string
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// NewGenerator creates an Ollama generation client
func NewGenerator(cfg config.GenerationConfig) (*Generator, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}

	return &Generator{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		model:   model,
	}, nil
}

// Generate sends the system instruction, history and question to Ollama.
// The generate endpoint has no native chat history, so prior turns are
// folded into the prompt in chronological order with roles labeled.
func (g *Generator) Generate(ctx context.Context, system string, history []providers.Message, question string) (string, error) {
	var prompt strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case "assistant":
			prompt.WriteString("Assistant: ")
		default:
			prompt.WriteString("User: ")
		}
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}
	prompt.WriteString("User: ")
	prompt.WriteString(question)

	body, err := json.Marshal(generateRequest{
		Model:  g.model,
		System: system,
		Prompt: prompt.String(),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", providers.ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", providers.ErrGenerationUnavailable, resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", providers.ErrGenerationUnavailable, err)
	}
	if genResp.Response == "" {
		return "", fmt.Errorf("%w: empty response", providers.ErrGenerationUnavailable)
	}

	return genResp.Response, nil
}

// ModelName returns the generation model identifier
func (g *Generator) ModelName() string {
	return g.model
}
