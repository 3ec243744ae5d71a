package ai

import "context"

// Turn is one message of conversational input passed to a generator.
type Turn struct {
	Sender string
	Text   string
}

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Generator produces a textual completion for a conversation guided by a
// system prompt. Implementations may fail for any reason; callers must treat
// an error as "generation failed" and degrade accordingly.
type Generator interface {
	Generate(ctx context.Context, turns []Turn, systemPrompt string) (string, error)
}

// Embedder converts text into a fixed-length numeric vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
