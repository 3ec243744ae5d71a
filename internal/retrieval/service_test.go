package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/irihojaphet/kozi-chatbot/internal/ai"
	"github.com/irihojaphet/kozi-chatbot/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSearcher struct {
	matches []knowledge.Match
	err     error
}

func (s *stubSearcher) Search(_ context.Context, _ []float64, _ int) ([]knowledge.Match, error) {
	return s.matches, s.err
}

type stubEmbedder struct {
	vector []float64
	err    error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return s.vector, s.err
}

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
	lastTurns  []ai.Turn
}

func (s *stubGenerator) Generate(_ context.Context, turns []ai.Turn, systemPrompt string) (string, error) {
	s.lastTurns = turns
	s.lastPrompt = systemPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func match(id, text string, similarity float64) knowledge.Match {
	return knowledge.Match{
		Document:   knowledge.Document{ID: id, Text: text},
		Similarity: similarity,
	}
}

func TestRelevantContextFiltersByThreshold(t *testing.T) {
	store := &stubSearcher{matches: []knowledge.Match{
		match("a", "High relevance.", 0.92),
		match("b", "Also relevant.", 0.75),
		match("c", "Exactly at threshold.", 0.7),
		match("d", "Not relevant.", 0.4),
	}}
	svc := New(store, &stubEmbedder{vector: []float64{1}}, nil, zap.NewNop())

	context := svc.RelevantContext(context.Background(), "what is kozi", 3)

	assert.Equal(t, "High relevance.\n\nAlso relevant.", context)
	assert.NotContains(t, context, "Exactly at threshold.",
		"similarity equal to the threshold must be excluded")
}

func TestRelevantContextReturnsEmptyWhenNothingQualifies(t *testing.T) {
	store := &stubSearcher{matches: []knowledge.Match{match("a", "Weak.", 0.2)}}
	svc := New(store, &stubEmbedder{vector: []float64{1}}, nil, zap.NewNop())

	assert.Empty(t, svc.RelevantContext(context.Background(), "query", 3))
}

func TestRelevantContextDegradesOnEmbeddingFailure(t *testing.T) {
	svc := New(&stubSearcher{}, &stubEmbedder{err: errors.New("embed down")}, nil, zap.NewNop())

	assert.Empty(t, svc.RelevantContext(context.Background(), "query", 3))
}

func TestRelevantContextDegradesOnSearchFailure(t *testing.T) {
	store := &stubSearcher{err: errors.New("db locked")}
	svc := New(store, &stubEmbedder{vector: []float64{1}}, nil, zap.NewNop())

	assert.Empty(t, svc.RelevantContext(context.Background(), "query", 3))
}

func TestContextualResponseInjectsContextAndStatus(t *testing.T) {
	store := &stubSearcher{matches: []knowledge.Match{match("a", "Kozi serves Rwanda.", 0.9)}}
	gen := &stubGenerator{response: "Kozi is a job-placement platform."}
	svc := New(store, &stubEmbedder{vector: []float64{1}}, gen, zap.NewNop())

	status := &ProfileStatus{CompletionPercentage: 40, MissingFields: []string{"education", "skills"}}
	recent := []ai.Turn{{Sender: ai.SenderUser, Text: "hi"}, {Sender: ai.SenderAssistant, Text: "hello"}}

	response, err := svc.ContextualResponse(context.Background(), "What is Kozi?", recent, status)
	require.NoError(t, err)
	assert.Equal(t, "Kozi is a job-placement platform.", response)

	assert.Contains(t, gen.lastPrompt, "Relevant information:")
	assert.Contains(t, gen.lastPrompt, "Kozi serves Rwanda.")
	assert.Contains(t, gen.lastPrompt, "profile 40% complete")
	assert.Contains(t, gen.lastPrompt, "education, skills")

	require.Len(t, gen.lastTurns, 3)
	assert.Equal(t, "What is Kozi?", gen.lastTurns[2].Text)
}

func TestContextualResponseOmitsEmptySections(t *testing.T) {
	gen := &stubGenerator{response: "ok"}
	svc := New(&stubSearcher{}, &stubEmbedder{vector: []float64{1}}, gen, zap.NewNop())

	_, err := svc.ContextualResponse(context.Background(), "hello", nil, nil)
	require.NoError(t, err)

	assert.False(t, strings.Contains(gen.lastPrompt, "Relevant information:"))
	assert.False(t, strings.Contains(gen.lastPrompt, "User status:"))
}

func TestContextualResponsePropagatesGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable")}
	svc := New(&stubSearcher{}, &stubEmbedder{vector: []float64{1}}, gen, zap.NewNop())

	_, err := svc.ContextualResponse(context.Background(), "hello", nil, nil)
	require.Error(t, err)
}
