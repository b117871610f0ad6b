package pipeline

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEmbedder(t *testing.T) {
	// Note: DefaultEmbedder uses hugot which requires downloading models
	// These tests may take longer on first run

	t.Run("Create embedder successfully", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping DefaultEmbedder test in short mode (requires model download)")
		}

		embedder, err := DefaultEmbedder()

		require.NoError(t, err)
		assert.NotNil(t, embedder)
	})

	t.Run("Generate embedding for chunk text", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping DefaultEmbedder test in short mode (requires model download)")
		}

		embedder, err := DefaultEmbedder()
		require.NoError(t, err)

		text := "Kael rode through the gates at dusk and nobody stopped him."
		embedding, err := embedder(text)

		require.NoError(t, err)
		assert.Equal(t, 384, len(embedding), "all-MiniLM-L6-v2 produces 384-dimensional embeddings")

		hasNonZero := false
		for _, val := range embedding {
			if val != 0 {
				hasNonZero = true
				break
			}
		}
		assert.True(t, hasNonZero, "Embedding should contain non-zero values")
	})

	t.Run("Same text produces same embedding", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping DefaultEmbedder test in short mode (requires model download)")
		}

		embedder, err := DefaultEmbedder()
		require.NoError(t, err)

		text := "The siege lasted through the winter."
		embedding1, err := embedder(text)
		require.NoError(t, err)

		embedding2, err := embedder(text)
		require.NoError(t, err)

		require.Equal(t, len(embedding1), len(embedding2))
		for i := range embedding1 {
			assert.InDelta(t, embedding1[i], embedding2[i], 0.0001, "Same text should produce same embedding")
		}
	})

	t.Run("Related passages have similar embeddings", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping DefaultEmbedder test in short mode (requires model download)")
		}

		embedder, err := DefaultEmbedder()
		require.NoError(t, err)

		battle1 := "The soldiers stormed the castle walls at dawn."
		battle2 := "At first light the army attacked the fortress."
		dinner := "She set the table and poured the wine."

		embedding1, err := embedder(battle1)
		require.NoError(t, err)

		embedding2, err := embedder(battle2)
		require.NoError(t, err)

		embedding3, err := embedder(dinner)
		require.NoError(t, err)

		similarityBattles := cosineSimilarity(embedding1, embedding2)
		similarityMixed := cosineSimilarity(embedding1, embedding3)

		assert.Greater(t, similarityBattles, similarityMixed,
			"Passages about the same event should be closer than unrelated ones")
	})

	t.Run("Handle long passage", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping DefaultEmbedder test in short mode (requires model download)")
		}

		embedder, err := DefaultEmbedder()
		require.NoError(t, err)

		longText := strings.Repeat("The column marched on through mud and rain without rest. ", 100)
		embedding, err := embedder(longText)

		require.NoError(t, err)
		assert.Equal(t, 384, len(embedding))
	})
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
