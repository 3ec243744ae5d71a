package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/irihojaphet/kozi-chatbot/internal/ai"
	"github.com/irihojaphet/kozi-chatbot/internal/knowledge"
	"go.uber.org/zap"
)

const (
	// RelevanceThreshold is the minimum cosine similarity for a retrieved
	// document to be injected as context.
	RelevanceThreshold = 0.7

	// DefaultLimit caps how many documents are considered per query.
	DefaultLimit = 3
)

const personaPolicy = `You are Kozi, the assistant of a job-placement platform that connects
job seekers with employers for both professional and domestic work.
Answer questions about the platform, job searching, CV writing, applications
and career advice. Be concise, friendly and practical. If a question is
outside these topics, politely steer the conversation back to them.`

// Searcher answers nearest-neighbor queries over the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query []float64, limit int) ([]knowledge.Match, error)
}

// ProfileStatus summarizes how complete a user's profile is.
type ProfileStatus struct {
	CompletionPercentage float64
	MissingFields        []string
	ProfileData          map[string]string
}

// Service turns a user query into relevant knowledge-base context and composes
// grounded responses via the text-generation collaborator.
type Service struct {
	store     Searcher
	embedder  ai.Embedder
	generator ai.Generator
	logger    *zap.Logger
}

func New(store Searcher, embedder ai.Embedder, generator ai.Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:     store,
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}
}

// RelevantContext returns the text of up to limit documents scoring above the
// relevance threshold, joined by blank lines. Retrieval failures degrade to an
// empty string; the caller proceeds with zero context.
func (s *Service) RelevantContext(ctx context.Context, query string, limit int) string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("embedding query failed, proceeding without context", zap.Error(err))
		return ""
	}

	matches, err := s.store.Search(ctx, vector, limit)
	if err != nil {
		s.logger.Warn("knowledge search failed, proceeding without context", zap.Error(err))
		return ""
	}

	parts := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.Similarity <= RelevanceThreshold {
			continue
		}
		parts = append(parts, match.Document.Text)
	}

	s.logger.Debug("retrieved context",
		zap.Int("candidates", len(matches)),
		zap.Int("above_threshold", len(parts)),
	)

	return strings.Join(parts, "\n\n")
}

// ContextualResponse builds the system prompt (persona policy, retrieved
// context, user status) and delegates to the generator with the message and
// recent turns as conversational input.
func (s *Service) ContextualResponse(ctx context.Context, message string, recent []ai.Turn, status *ProfileStatus) (string, error) {
	prompt := s.buildSystemPrompt(ctx, message, status)

	turns := make([]ai.Turn, 0, len(recent)+1)
	turns = append(turns, recent...)
	turns = append(turns, ai.Turn{Sender: ai.SenderUser, Text: message})

	response, err := s.generator.Generate(ctx, turns, prompt)
	if err != nil {
		return "", fmt.Errorf("generate contextual response: %w", err)
	}

	return response, nil
}

func (s *Service) buildSystemPrompt(ctx context.Context, message string, status *ProfileStatus) string {
	var builder strings.Builder
	builder.WriteString(personaPolicy)

	if context := s.RelevantContext(ctx, message, DefaultLimit); context != "" {
		builder.WriteString("\n\nRelevant information:\n")
		builder.WriteString(context)
	}

	if status != nil {
		builder.WriteString(fmt.Sprintf("\n\nUser status: profile %.0f%% complete.", status.CompletionPercentage))
		if len(status.MissingFields) > 0 {
			builder.WriteString(" Missing: ")
			builder.WriteString(strings.Join(status.MissingFields, ", "))
			builder.WriteString(".")
		}
	}

	return builder.String()
}
