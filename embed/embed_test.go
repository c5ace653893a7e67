package embed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"lorekeep/embed"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := embed.NewHashEmbedder()
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "The fire station is at grid E4.")
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "The fire station is at grid E4.")
	require.NoError(t, err)

	require.Len(t, a, e.Dimension())
	require.Equal(t, a, b)
	require.InDelta(t, 1.0, embed.CosineSimilarity(a, b), 1e-9)

	c, err := e.EmbedText(ctx, "Respawn point three is behind the ridge.")
	require.NoError(t, err)
	require.Less(t, embed.CosineSimilarity(a, c), 1.0)
}

func TestHashEmbedderBatch(t *testing.T) {
	e := embed.NewHashEmbedder()
	ctx := context.Background()

	vecs, err := e.EmbedTexts(ctx, []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := e.EmbedText(ctx, "one")
	require.NoError(t, err)
	require.Equal(t, single, vecs[0])
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, embed.CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 0.0, embed.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, embed.CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs score zero.
	require.Zero(t, embed.CosineSimilarity(nil, []float32{1}))
	require.Zero(t, embed.CosineSimilarity([]float32{1, 0}, []float32{1}))
	require.Zero(t, embed.CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestNewEmbedderFallsBackToHash(t *testing.T) {
	e := embed.NewEmbedder(embed.Config{Provider: "no-such-provider"})
	require.Equal(t, "hash", e.Provider())

	e = embed.NewEmbedder(embed.Config{Provider: "openai"})
	require.Equal(t, "openai", e.Provider())
}

func embeddingHandler(t *testing.T, dim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input any    `json:"input"`
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vec := make([]float32, dim)
		vec[0] = 1
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "embedding": vec, "index": 0},
			},
			"model": req.Model,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestOpenAIEmbedText(t *testing.T) {
	srv := httptest.NewServer(embeddingHandler(t, 8))
	defer srv.Close()

	e := embed.NewOpenAIEmbedder(embed.Config{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		Dimension: 8,
	})

	vec, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 8)
	require.Equal(t, float32(1), vec[0])
}

func TestOpenAIEmptyTextSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected network call for empty input")
	}))
	defer srv.Close()

	e := embed.NewOpenAIEmbedder(embed.Config{BaseURL: srv.URL, Dimension: 4})
	vec, err := e.EmbedText(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, make([]float32, 4), vec)
}

func TestOpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := embed.NewOpenAIEmbedder(embed.Config{APIKey: "test-key", BaseURL: srv.URL, Dimension: 4})
	_, err := e.EmbedText(context.Background(), "hello")
	require.ErrorIs(t, err, embed.ErrEmbeddingServiceUnavailable)
}

func TestOpenAIMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	e := embed.NewOpenAIEmbedder(embed.Config{APIKey: "test-key", BaseURL: srv.URL, Dimension: 4})
	_, err := e.EmbedText(context.Background(), "hello")
	require.ErrorIs(t, err, embed.ErrEmbeddingServiceUnavailable)
}

func TestOpenAIDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(embeddingHandler(t, 8))
	defer srv.Close()

	e := embed.NewOpenAIEmbedder(embed.Config{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		Dimension: 16,
	})

	_, err := e.EmbedText(context.Background(), "hello")
	require.ErrorIs(t, err, embed.ErrEmbeddingDimensionMismatch)
}

func TestOpenAIUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	e := embed.NewOpenAIEmbedder(embed.Config{BaseURL: srv.URL, Dimension: 4})
	_, err := e.EmbedText(context.Background(), "hello")
	require.ErrorIs(t, err, embed.ErrEmbeddingServiceUnavailable)
}
