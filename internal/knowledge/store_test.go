package knowledge

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T, dim int) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "kb.db"), dim, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSearchOrdersByDescendingSimilarity(t *testing.T) {
	store := openTestStore(t, 3)
	ctx := context.Background()

	docs := []Document{
		{ID: "orthogonal", Text: "unrelated", Embedding: []float64{0, 1, 0}},
		{ID: "exact", Text: "identical", Embedding: []float64{1, 0, 0}},
		{ID: "close", Text: "similar", Embedding: []float64{1, 0.2, 0}},
		{ID: "opposite", Text: "inverse", Embedding: []float64{-1, 0, 0}},
	}
	for _, doc := range docs {
		require.NoError(t, store.Add(ctx, doc))
	}

	matches, err := store.Search(ctx, []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 4)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity,
			"results must be sorted by non-increasing similarity")
	}

	for _, match := range matches {
		assert.GreaterOrEqual(t, match.Similarity, -1.0)
		assert.LessOrEqual(t, match.Similarity, 1.0)
	}

	assert.Equal(t, "exact", matches[0].Document.ID)
	assert.Equal(t, "opposite", matches[3].Document.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.InDelta(t, -1.0, matches[3].Similarity, 1e-9)
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, Document{ID: "first", Embedding: []float64{0, 1}}))
	require.NoError(t, store.Add(ctx, Document{ID: "second", Embedding: []float64{0, 2}}))

	matches, err := store.Search(ctx, []float64{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Both score exactly 1.0; the stable sort must preserve insertion order.
	assert.Equal(t, "first", matches[0].Document.ID)
	assert.Equal(t, "second", matches[1].Document.ID)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Add(ctx, Document{ID: id, Embedding: []float64{1, 1}}))
	}

	matches, err := store.Search(ctx, []float64{1, 1}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestSearchEmptyStoreReturnsEmptyList(t *testing.T) {
	store := openTestStore(t, 3)

	matches, err := store.Search(context.Background(), []float64{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	store := openTestStore(t, 3)

	err := store.Add(context.Background(), Document{ID: "short", Embedding: []float64{1, 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddRoundTripsMetadata(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, Document{
		ID:        "faq-1",
		Text:      "Kozi connects job seekers with employers.",
		Embedding: []float64{0.5, 0.5},
		Metadata:  map[string]string{"type": "faq", "category": "about"},
	}))

	matches, err := store.Search(ctx, []float64{0.5, 0.5}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	doc := matches[0].Document
	assert.Equal(t, "Kozi connects job seekers with employers.", doc.Text)
	assert.Equal(t, "faq", doc.Metadata["type"])
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "zero vector", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
		{name: "length mismatch", a: []float64{1}, b: []float64{1, 1}, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Cosine(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("cosine = %v, want %v", got, tc.want)
			}
		})
	}
}
