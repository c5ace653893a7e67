package embed

import (
	"context"
	"errors"
	"math"
)

var (
	ErrEmbeddingServiceUnavailable = errors.New("embedding service unavailable")
	ErrEmbeddingDimensionMismatch  = errors.New("embedding dimension mismatch")
)

// Embedder converts text into fixed-dimension vectors. Implementations make
// at most one outbound call per invocation and keep no state between calls.
type Embedder interface {
	// EmbedText converts a single text into a vector embedding.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts converts a batch of texts into vector embeddings.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Provider returns the provider name.
	Provider() string
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider  string // "openai", "siliconflow", "hash" (fallback)
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// NewEmbedder builds an embedder from config. Unknown providers fall back to
// the offline hash embedder.
func NewEmbedder(config Config) Embedder {
	switch config.Provider {
	case "openai":
		return NewOpenAIEmbedder(config)
	case "siliconflow":
		return NewSiliconFlowEmbedder(config)
	case "hash":
		fallthrough
	default:
		return NewHashEmbedder()
	}
}

// CosineSimilarity returns the cosine similarity of two vectors in [-1, 1].
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
