package providers

import (
	"context"
	"errors"
	"fmt"

	"regadvisor-backend/config"
)

var (
	// ErrEmbeddingUnavailable indicates the embedding service could not be
	// reached or returned an error. Callers must skip the affected passage
	// rather than substitute a zero vector.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable indicates the completion service failed.
	// Callers must surface this error, never fabricate an answer.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
)

// Message is one turn of conversation history with its role preserved
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Embedder converts text into a fixed-length numeric vector. Input longer
// than the service limit is truncated, not rejected.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// Generator produces free text from a system instruction, chronological
// conversation history, and the user's question.
type Generator interface {
	Generate(ctx context.Context, system string, history []Message, question string) (string, error)
	ModelName() string
}

// embedderFactories and generatorFactories map provider names to constructors.
// Concrete providers register themselves via RegisterEmbedder/RegisterGenerator.
var (
	embedderFactories  = map[string]func(config.EmbeddingConfig) (Embedder, error){}
	generatorFactories = map[string]func(config.GenerationConfig) (Generator, error){}
)

// RegisterEmbedder registers an embedding provider constructor under a name
func RegisterEmbedder(name string, factory func(config.EmbeddingConfig) (Embedder, error)) {
	embedderFactories[name] = factory
}

// RegisterGenerator registers a generation provider constructor under a name
func RegisterGenerator(name string, factory func(config.GenerationConfig) (Generator, error)) {
	generatorFactories[name] = factory
}

// NewEmbedder creates the configured embedding provider
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	factory, ok := embedderFactories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// NewGenerator creates the configured generation provider
func NewGenerator(cfg config.GenerationConfig) (Generator, error) {
	factory, ok := generatorFactories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
	return factory(cfg)
}
