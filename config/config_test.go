package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Providers.Embedding.Provider)
	assert.Equal(t, 768, cfg.Providers.Embedding.Dimensions)
	assert.Equal(t, 1500, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 200, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 50, cfg.Pipeline.MinChunkSize)
	assert.Equal(t, 25, cfg.Pipeline.SaveBatch)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.3, cfg.Retrieval.MinScore, 1e-9)
	assert.InDelta(t, 0.6, cfg.Retrieval.StrictScore, 1e-9)
	assert.InDelta(t, 0.95, cfg.Retrieval.ConfidenceCap, 1e-9)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("RETRIEVAL_MIN_SCORE", "0.25")
	t.Setenv("EMBEDDING_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.Providers.Embedding.Provider)
	assert.Equal(t, 800, cfg.Pipeline.ChunkSize)
	assert.InDelta(t, 0.25, cfg.Retrieval.MinScore, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Providers.Embedding.Timeout)
}

func TestLoadRejectsOverlapNotBelowChunkSize(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_OVERLAP")
}

func TestLoadRejectsStrictScoreBelowMinScore(t *testing.T) {
	t.Setenv("RETRIEVAL_MIN_SCORE", "0.7")
	t.Setenv("RETRIEVAL_STRICT_SCORE", "0.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRIEVAL_STRICT_SCORE")
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Pipeline.ChunkSize)
}
